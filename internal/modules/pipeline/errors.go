package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// RequestError is the normalized failure the API clients surface for any
// non-2xx response.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed: %s (status %d)", e.Message, e.StatusCode)
}

// errorTransport maps failures to user-facing messages. Exactly one
// notification is emitted per failed call. Non-auth 401s are left to the
// recovery transform and produce no message here.
type errorTransport struct {
	next   http.RoundTripper
	toasts Notifier
}

func (t *errorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		// Network-level failure: surface the transport's own message.
		if t.toasts != nil {
			t.toasts.Error(err.Error())
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		if msg := normalizeMessage(req, resp); msg != "" && t.toasts != nil {
			t.toasts.Error(msg)
		}
	}
	return resp, nil
}

func normalizeMessage(req *http.Request, resp *http.Response) string {
	switch resp.StatusCode {
	case http.StatusBadRequest:
		if msg := serverMessage(resp); msg != "" {
			return msg
		}
		return "Bad request"
	case http.StatusUnauthorized:
		if isAuthEndpoint(req) {
			return "Invalid credentials"
		}
		return ""
	case http.StatusForbidden:
		return "Access forbidden"
	case http.StatusNotFound:
		return "Resource not found"
	case http.StatusInternalServerError:
		return "Internal server error"
	default:
		return "Something went wrong"
	}
}

// serverMessage extracts the API's error field, leaving the body readable
// for downstream consumers.
func serverMessage(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return payload.Error
}
