package uartport

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// pollTimeout is how long serialPort peeks at the device when asked how many
// bytes are pending. Kept short so that polling loops stay responsive.
const pollTimeout = 5 * time.Millisecond

// serialPort adapts a go.bug.st/serial port to the Port interface. The
// underlying library exposes no pending-byte count, so reads are staged
// through an internal buffer: BytesAvailable drains whatever the device has
// ready into the buffer and reports its length, and Read serves buffered
// bytes before touching the device again.
type serialPort struct {
	mu      sync.Mutex
	port    serial.Port
	pending bytes.Buffer
	timeout time.Duration
}

// Open opens the serial device at path with the given options.
func Open(path string, opts Options) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	sp := &serialPort{port: port, timeout: time.Second}
	if err := port.SetReadTimeout(sp.timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}

	return sp, nil
}

func (s *serialPort) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending.Len() > 0 {
		return s.pending.Read(p)
	}
	return s.port.Read(p)
}

func (s *serialPort) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.port.Write(p)
	if err != nil {
		return n, err
	}
	if err := s.port.Drain(); err != nil {
		return n, err
	}
	return n, nil
}

func (s *serialPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.port.Close()
}

// BytesAvailable pulls any bytes the device has ready into the staging buffer
// and returns the buffered count.
func (s *serialPort) BytesAvailable() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.port.SetReadTimeout(pollTimeout); err != nil {
		return s.pending.Len(), err
	}
	defer s.port.SetReadTimeout(s.timeout)

	chunk := make([]byte, 256)
	for {
		n, err := s.port.Read(chunk)
		if n > 0 {
			s.pending.Write(chunk[:n])
		}
		if err != nil {
			return s.pending.Len(), err
		}
		if n == 0 {
			return s.pending.Len(), nil
		}
	}
}

func (s *serialPort) DiscardInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending.Reset()
	return s.port.ResetInputBuffer()
}

func (s *serialPort) SetReadTimeout(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timeout = timeout
	return s.port.SetReadTimeout(timeout)
}
