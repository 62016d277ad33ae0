package pipeline

import "context"

// SessionController — what the pipeline needs from the session manager.
type SessionController interface {
	// AccessToken returns the current bearer token, or "" when logged out.
	AccessToken() string
	// TokenAfterRefresh returns a token usable for a retry after a 401.
	// It either performs the single refresh call or parks behind the one
	// already in flight; either way at most one refresh request exists.
	TokenAfterRefresh(ctx context.Context) (string, error)
	// Logout is the forced-logout path taken when recovery fails.
	Logout()
}

// Notifier receives the one user-facing message emitted per failed call.
type Notifier interface {
	Error(message string)
}
