package session

import (
	"context"
	"sync"
)

type gateOutcome struct {
	token string
	err   error
}

// Gate serializes refresh attempts: at most one refresh network call exists
// system-wide, and every 401 observed during that window resumes from its
// single outcome.
type Gate struct {
	mu       sync.Mutex
	inFlight bool
	last     *gateOutcome
	waiters  []chan gateOutcome
}

func NewGate() *Gate {
	return &Gate{}
}

// TryBegin claims the gate. It returns false when a refresh is already
// outstanding; the caller must not issue a second network call.
func (g *Gate) TryBegin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight {
		return false
	}
	g.inFlight = true
	g.last = nil
	return true
}

// InFlight reports whether a refresh is currently outstanding.
func (g *Gate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Resolve publishes the refresh outcome to every waiter and releases the
// gate. Must be called exactly once per successful TryBegin.
func (g *Gate) Resolve(token string, err error) {
	g.mu.Lock()
	out := gateOutcome{token: token, err: err}
	g.inFlight = false
	g.last = &out
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()

	for _, w := range waiters {
		w <- out
		close(w)
	}
}

// Wait parks until the outstanding refresh resolves and returns its token.
// If the refresh already resolved between the caller observing the in-flight
// state and calling Wait, the most recent outcome is returned instead of
// blocking forever.
func (g *Gate) Wait(ctx context.Context) (string, error) {
	g.mu.Lock()
	if !g.inFlight {
		last := g.last
		g.mu.Unlock()
		if last != nil {
			return last.token, last.err
		}
		return "", ErrNoStoredTokens
	}
	w := make(chan gateOutcome, 1)
	g.waiters = append(g.waiters, w)
	g.mu.Unlock()

	select {
	case out := <-w:
		return out.token, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
