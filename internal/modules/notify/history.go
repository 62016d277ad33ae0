package notify

import (
	"log"
	"sync"
)

const (
	historyLimit     = 50
	historyKeyPrefix = "notification_history_"
)

// KV — the slice of local storage the history persists through.
type KV interface {
	Get(key string, out any) error
	Set(key string, v any) error
	Delete(key string) error
}

// History is the bounded, persisted notification list, most-recent-first,
// keyed by the authenticated subject. The unread count is recomputed from
// the entries on every mutation so it can never drift.
type History struct {
	mu      sync.Mutex
	store   KV
	key     string
	entries []Event
	unread  int
}

func NewHistory(store KV) *History {
	return &History{store: store}
}

// LoadFor switches the history to the given subject and loads its persisted
// entries. Called on login and on reconnect for a new user.
func (h *History) LoadFor(subject string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.key = historyKeyPrefix + subject
	h.entries = nil
	var stored []Event
	if err := h.store.Get(h.key, &stored); err == nil {
		h.entries = stored
	}
	h.unread = countUnread(h.entries)
}

// Add prepends an event, enforces the length cap, recomputes the unread
// count and persists.
func (h *History) Add(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append([]Event{ev}, h.entries...)
	if len(h.entries) > historyLimit {
		h.entries = h.entries[:historyLimit]
	}
	h.finishLocked()
}

func (h *History) MarkAsRead(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.entries {
		if h.entries[i].ID == id {
			h.entries[i].Read = true
		}
	}
	h.finishLocked()
}

func (h *History) MarkAllAsRead() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.entries {
		h.entries[i].Read = true
	}
	h.finishLocked()
}

// Clear empties both the in-memory view and the persisted history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = nil
	h.unread = 0
	if h.key != "" {
		if err := h.store.Delete(h.key); err != nil {
			log.Printf("notify: clearing history: %v", err)
		}
	}
}

// Reset drops the in-memory view without touching persisted history. Used on
// logout so other users' stored history survives.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
	h.unread = 0
	h.key = ""
}

func (h *History) Entries() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Event, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) UnreadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unread
}

func (h *History) finishLocked() {
	h.unread = countUnread(h.entries)
	if h.key == "" {
		return
	}
	if err := h.store.Set(h.key, h.entries); err != nil {
		log.Printf("notify: persisting history: %v", err)
	}
}

func countUnread(entries []Event) int {
	count := 0
	for _, e := range entries {
		if !e.Read {
			count++
		}
	}
	return count
}
