package notify

import "errors"

// ErrTransportUnavailable is returned when an operation needs a live
// connection and the channel does not have one.
var ErrTransportUnavailable = errors.New("notification transport unavailable")
