package pipeline

import "net/http"

type tokenSource interface {
	AccessToken() string
}

// authTransport attaches the current bearer token unless the caller already
// supplied an Authorization header.
type authTransport struct {
	next    http.RoundTripper
	session tokenSource
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return t.next.RoundTrip(req)
	}

	token := t.session.AccessToken()
	if token == "" {
		return t.next.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return t.next.RoundTrip(clone)
}
