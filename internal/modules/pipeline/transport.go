package pipeline

import "net/http"

// Chain assembles the request pipeline. Order, outermost first:
// error normalization, 401 recovery, loading tracking, auth injection.
// A retried request re-enters the chain below the recovery transform, so it
// is counted by the loading tracker again and dispatched with the token the
// recovery step chose.
func Chain(base http.RoundTripper, session SessionController, loading *LoadingTracker, toasts Notifier) http.RoundTripper {
	rt := base
	if rt == nil {
		rt = http.DefaultTransport
	}
	rt = &authTransport{next: rt, session: session}
	rt = &loadingTransport{next: rt, tracker: loading}
	rt = &recoveryTransport{next: rt, session: session}
	rt = &errorTransport{next: rt, toasts: toasts}
	return rt
}
