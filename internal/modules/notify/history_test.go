package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(key string, out any) error {
	raw, ok := m.data[key]
	if !ok {
		return errors.New("not found")
	}
	return json.Unmarshal(raw, out)
}

func (m *memKV) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memKV) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func event(id, message string) Event {
	return Event{ID: id, Kind: KindGeneric, Message: message, Timestamp: time.Now()}
}

func TestAddPrependsNewest(t *testing.T) {
	h := NewHistory(newMemKV())
	h.LoadFor("user-1")

	h.Add(event("a", "first"))
	h.Add(event("b", "second"))

	entries := h.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, "a", entries[1].ID)
	assert.Equal(t, 2, h.UnreadCount())
}

func TestCapDropsOldest(t *testing.T) {
	h := NewHistory(newMemKV())
	h.LoadFor("user-1")

	for i := 0; i < 60; i++ {
		h.Add(event(fmt.Sprintf("ev-%d", i), "m"))
	}

	entries := h.Entries()
	require.Len(t, entries, 50)
	assert.Equal(t, "ev-59", entries[0].ID)
	assert.Equal(t, "ev-10", entries[49].ID)
	assert.Equal(t, 50, h.UnreadCount())
}

func TestMarkAsRead(t *testing.T) {
	h := NewHistory(newMemKV())
	h.LoadFor("user-1")
	h.Add(event("a", "m"))
	h.Add(event("b", "m"))

	h.MarkAsRead("a")
	assert.Equal(t, 1, h.UnreadCount())

	// unknown id is a no-op
	h.MarkAsRead("missing")
	assert.Equal(t, 1, h.UnreadCount())
}

func TestMarkAllAsReadIsIdempotent(t *testing.T) {
	h := NewHistory(newMemKV())
	h.LoadFor("user-1")
	h.Add(event("a", "m"))
	h.Add(event("b", "m"))

	h.MarkAllAsRead()
	h.MarkAllAsRead()
	assert.Equal(t, 0, h.UnreadCount())
}

func TestHistoryIsPerSubject(t *testing.T) {
	kv := newMemKV()
	h := NewHistory(kv)

	h.LoadFor("alice")
	h.Add(event("a", "for alice"))

	h.LoadFor("bob")
	assert.Empty(t, h.Entries())
	h.Add(event("b", "for bob"))

	h.LoadFor("alice")
	entries := h.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)
}

func TestReadStateSurvivesReload(t *testing.T) {
	kv := newMemKV()
	h := NewHistory(kv)
	h.LoadFor("user-1")
	h.Add(event("a", "m"))
	h.MarkAllAsRead()

	reloaded := NewHistory(kv)
	reloaded.LoadFor("user-1")
	require.Len(t, reloaded.Entries(), 1)
	assert.Equal(t, 0, reloaded.UnreadCount())
}

func TestResetKeepsPersistedHistory(t *testing.T) {
	kv := newMemKV()
	h := NewHistory(kv)
	h.LoadFor("user-1")
	h.Add(event("a", "m"))

	h.Reset()
	assert.Empty(t, h.Entries())
	assert.Equal(t, 0, h.UnreadCount())

	h.LoadFor("user-1")
	assert.Len(t, h.Entries(), 1)
}

func TestClearRemovesPersistedHistory(t *testing.T) {
	kv := newMemKV()
	h := NewHistory(kv)
	h.LoadFor("user-1")
	h.Add(event("a", "m"))

	h.Clear()
	h.LoadFor("user-1")
	assert.Empty(t, h.Entries())
}
