package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Auto-dismiss durations per kind.
const (
	successDuration = 3 * time.Second
	infoDuration    = 3 * time.Second
	warningDuration = 4 * time.Second
	errorDuration   = 5 * time.Second
)

// Toast is one transient user-facing message.
type Toast struct {
	ID       string
	Kind     Kind
	Message  string
	Duration time.Duration
}

// Service holds the visible toasts and auto-dismisses each after its
// kind-dependent duration. It never fails: a toast that cannot be delivered
// is dropped.
type Service struct {
	mu     sync.Mutex
	active []Toast
	subs   map[int]chan Toast
	nextID int
}

func NewService() *Service {
	return &Service{subs: make(map[int]chan Toast)}
}

func (s *Service) Success(message string) { s.show(KindSuccess, message, successDuration) }
func (s *Service) Error(message string)   { s.show(KindError, message, errorDuration) }
func (s *Service) Warning(message string) { s.show(KindWarning, message, warningDuration) }
func (s *Service) Info(message string)    { s.show(KindInfo, message, infoDuration) }

func (s *Service) show(kind Kind, message string, duration time.Duration) {
	t := Toast{
		ID:       "notif-" + uuid.NewString(),
		Kind:     kind,
		Message:  message,
		Duration: duration,
	}

	s.mu.Lock()
	s.active = append(s.active, t)
	for _, ch := range s.subs {
		select {
		case ch <- t:
		default:
		}
	}
	s.mu.Unlock()

	time.AfterFunc(duration, func() { s.Clear(t.ID) })
}

// Clear dismisses a single toast by id.
func (s *Service) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.active[:0]
	for _, t := range s.active {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	s.active = kept
}

func (s *Service) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
}

// Active returns a snapshot of the currently visible toasts.
func (s *Service) Active() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Toast, len(s.active))
	copy(out, s.active)
	return out
}

// Subscribe streams every new toast as it is shown. The returned func
// cancels the subscription.
func (s *Service) Subscribe() (<-chan Toast, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan Toast, 16)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
