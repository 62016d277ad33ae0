package pipeline

import (
	"net/http"
	"sync"
)

// SkipLoaderHeader marks a call that must not drive the loading indicator.
// The header is stripped before the request leaves the client.
const SkipLoaderHeader = "X-Skip-Loader"

// LoadingTracker counts in-flight requests and publishes "loading" while the
// count is above zero.
type LoadingTracker struct {
	mu     sync.Mutex
	count  int
	subs   map[int]chan bool
	nextID int
}

func NewLoadingTracker() *LoadingTracker {
	return &LoadingTracker{subs: make(map[int]chan bool)}
}

func (t *LoadingTracker) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count > 0
}

// Subscribe delivers a value on every idle/loading transition. The returned
// func cancels the subscription.
func (t *LoadingTracker) Subscribe() (<-chan bool, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	ch := make(chan bool, 8)
	t.subs[id] = ch
	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

func (t *LoadingTracker) begin() {
	t.mu.Lock()
	t.count++
	notify := t.count == 1
	t.mu.Unlock()
	if notify {
		t.broadcast(true)
	}
}

func (t *LoadingTracker) end() {
	t.mu.Lock()
	t.count--
	if t.count < 0 {
		t.count = 0
	}
	notify := t.count == 0
	t.mu.Unlock()
	if notify {
		t.broadcast(false)
	}
}

func (t *LoadingTracker) broadcast(loading bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- loading:
		default:
		}
	}
}

// loadingTransport increments the tracker before dispatch and decrements on
// completion, success or failure alike.
type loadingTransport struct {
	next    http.RoundTripper
	tracker *LoadingTracker
}

func (t *loadingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(SkipLoaderHeader) != "" {
		clone := req.Clone(req.Context())
		clone.Header.Del(SkipLoaderHeader)
		return t.next.RoundTrip(clone)
	}

	t.tracker.begin()
	defer t.tracker.end()
	return t.next.RoundTrip(req)
}
