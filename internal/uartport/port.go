// Package uartport provides an abstraction over the UART device file used by
// Epson sensing devices, plus a scripted in-memory implementation for tests.
package uartport

import (
	"io"
	"time"
)

// Port defines the minimal duplex byte-stream interface the protocol engine
// needs. This abstraction enables unit testing without real serial hardware.
type Port interface {
	io.ReadWriter
	io.Closer

	// BytesAvailable returns the number of bytes buffered for reading.
	BytesAvailable() (int, error)

	// DiscardInput drops any bytes buffered for reading.
	DiscardInput() error

	// SetReadTimeout sets the read timeout for subsequent Read calls.
	SetReadTimeout(timeout time.Duration) error
}
