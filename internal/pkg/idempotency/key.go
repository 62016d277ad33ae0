package idempotency

import "github.com/google/uuid"

// Header is attached to create requests so retransmission of the same
// logical submission is deduplicated server-side.
const Header = "Idempotency-Key"

// NewKey returns a fresh key. Callers reuse one key across retries of the
// same logical submission and generate a new one for each new submission.
func NewKey() string {
	return uuid.NewString()
}
