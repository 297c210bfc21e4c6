package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrSyncFailed indicates the device never produced a valid ID register
	// response during the synchronization handshake.
	ErrSyncFailed = errors.New("device sync failed: no valid ID response")

	// ErrRxClearFailed indicates the receive buffer could not be emptied, which
	// usually means the device is still streaming autonomously.
	ErrRxClearFailed = errors.New("receive buffer could not be cleared")

	// ErrTimeout indicates a bounded poll or scan exhausted its attempt budget.
	ErrTimeout = errors.New("operation timed out")
)

// FramingError reports a response that violated the wire framing rules: a
// wrong echoed address, a missing delimiter, or a short read.
type FramingError struct {
	Op    string
	Want  byte
	Frame []byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("%s: malformed frame % X (expected address %#02x)", e.Op, e.Frame, e.Want)
}
