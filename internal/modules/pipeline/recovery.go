package pipeline

import (
	"context"
	"log"
	"net/http"
	"strings"
)

type retryMarker struct{}

// isAuthEndpoint reports whether the request targets the authentication
// sub-service, which is exempt from transparent refresh.
func isAuthEndpoint(req *http.Request) bool {
	return strings.Contains(req.URL.Path, "/auth/")
}

// isRetried reports whether the request is the retried-after-refresh
// generation of a call. A 401 on a retried request propagates; one retry
// per 401 sequence, never two.
func isRetried(req *http.Request) bool {
	return req.Context().Value(retryMarker{}) != nil
}

// recoveryTransport transparently recovers from token expiry: on a 401 for a
// non-auth endpoint it obtains a fresh token (sharing the single in-flight
// refresh with every other concurrent 401) and retries the original request
// exactly once.
type recoveryTransport struct {
	next    http.RoundTripper
	session SessionController
}

func (t *recoveryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if isAuthEndpoint(req) || isRetried(req) {
		return resp, nil
	}

	token, refreshErr := t.session.TokenAfterRefresh(req.Context())
	if refreshErr != nil {
		log.Printf("pipeline: token refresh failed, forcing logout: %v", refreshErr)
		t.session.Logout()
		return resp, nil
	}

	retry := req.Clone(context.WithValue(req.Context(), retryMarker{}, true))
	retry.Header.Set("Authorization", "Bearer "+token)
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return resp, nil
		}
		retry.Body = body
	}

	resp.Body.Close()
	return t.next.RoundTrip(retry)
}
