package session

import "net/http"

// KV — the slice of local storage the credential store uses.
type KV interface {
	Get(key string, out any) error
	Set(key string, v any) error
	Delete(key string) error
}

// Doer issues HTTP requests. The shared client is passed in so login and
// refresh pass through the same pipeline as every other call.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
