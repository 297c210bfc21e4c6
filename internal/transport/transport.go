// Package transport implements the framed register protocol spoken by Epson
// sensing devices over UART: 3-byte command frames, 4-byte read responses,
// register window selection, and the synchronization handshake that recovers
// a device left streaming by a previous session.
package transport

import (
	"fmt"
	"time"

	"github.com/epson-sensing/esensor/internal/timeutil"
	"github.com/epson-sensing/esensor/internal/uartport"
)

// Wire framing constants.
const (
	// BurstMarker is the first byte of every burst frame and, with the write
	// bit, the address that triggers a burst read.
	BurstMarker = 0x80

	// Delimiter terminates every command and response frame.
	Delimiter = 0x0D

	// writeBit is ORed into the address byte of a write command.
	writeBit = 0x80

	// readAddrMask clears bit 0 so read commands always target the low byte
	// of a register pair.
	readAddrMask = 0xFE

	// winIDAddr is the window selection register, reachable from any window.
	winIDAddr = 0x7E

	// idAddr is the window-0 ID register; idValue is its fixed contents,
	// ASCII "SE".
	idAddr  = 0x4C
	idValue = 0x5345

	// modeCmdAddr is the window-0 high byte of the mode control register.
	// Writing 0x02 there requests CONFIG mode.
	modeCmdAddr   = 0x03
	modeCmdConfig = 0x02
)

// Register exchange pacing. The device needs a stall after a read command
// before its response is complete, and a gap between consecutive writes.
const (
	DefaultStall     = 70 * time.Microsecond
	DefaultWriteRate = 350 * time.Microsecond
)

// Bounded retry defaults.
const (
	DefaultSyncRetries  = 10
	DefaultDrainRetries = 10
	DefaultDrainDelay   = 100 * time.Millisecond
	DefaultScanLimit    = 100
	DefaultFrameRetries = 1000
	defaultFramePoll    = time.Millisecond
)

// Transport exchanges register frames with a device over a uartport.Port.
// It is not safe for concurrent use; callers serialize access.
type Transport struct {
	port uartport.Port

	// Stall is the delay between sending a read command and reading the
	// response. WriteRate is the delay appended to every write command.
	// Tests zero these to run fast.
	Stall     time.Duration
	WriteRate time.Duration

	// FramePoll is the interval between pending-byte checks while waiting
	// for a full frame; FrameRetries bounds those checks.
	FramePoll    time.Duration
	FrameRetries int

	// DrainRetries and DrainDelay bound the receive buffer flush loop.
	DrainRetries int
	DrainDelay   time.Duration

	// Clock paces the exchanges above. Tests substitute a mock.
	Clock timeutil.Clock
}

// New creates a Transport over the given port with default pacing.
func New(port uartport.Port) *Transport {
	return &Transport{
		port:         port,
		Stall:        DefaultStall,
		WriteRate:    DefaultWriteRate,
		FramePoll:    defaultFramePoll,
		FrameRetries: DefaultFrameRetries,
		DrainRetries: DefaultDrainRetries,
		DrainDelay:   DefaultDrainDelay,
		Clock:        timeutil.RealClock{},
	}
}

// Port returns the underlying port, for callers that need direct control
// such as reconfiguring the host baud rate.
func (t *Transport) Port() uartport.Port {
	return t.port
}

// rawRead16 sends a read command for addr and returns the 16-bit register
// value from the 4-byte response. The response must echo the command address
// and end with the delimiter.
func (t *Transport) rawRead16(addr byte) (uint16, error) {
	cmd := [3]byte{addr & readAddrMask, 0x00, Delimiter}
	if _, err := t.port.Write(cmd[:]); err != nil {
		return 0, fmt.Errorf("read command %#02x: %w", addr, err)
	}
	t.Clock.Sleep(t.Stall)

	resp, err := t.readExact(4)
	if err != nil {
		return 0, fmt.Errorf("read response %#02x: %w", addr, err)
	}
	if resp[0] != addr&readAddrMask || resp[3] != Delimiter {
		return 0, &FramingError{Op: "register read", Want: addr & readAddrMask, Frame: resp}
	}

	return uint16(resp[1])<<8 | uint16(resp[2]), nil
}

// rawWrite8 sends a single-byte write command to addr. Writes produce no
// response; the write-rate delay paces consecutive commands.
func (t *Transport) rawWrite8(addr, value byte) error {
	cmd := [3]byte{addr | writeBit, value, Delimiter}
	if _, err := t.port.Write(cmd[:]); err != nil {
		return fmt.Errorf("write command %#02x: %w", addr, err)
	}
	t.Clock.Sleep(t.WriteRate)
	return nil
}

// selectWindow switches the active register window. The window register is
// visible from every window so no prior selection is needed.
func (t *Transport) selectWindow(window byte) error {
	return t.rawWrite8(winIDAddr, window)
}

// ReadRegister selects the window and reads the 16-bit register at addr.
func (t *Transport) ReadRegister(window, addr byte) (uint16, error) {
	if err := t.selectWindow(window); err != nil {
		return 0, err
	}
	return t.rawRead16(addr)
}

// WriteRegister selects the window and writes a single byte at addr.
func (t *Transport) WriteRegister(window, addr, value byte) error {
	if err := t.selectWindow(window); err != nil {
		return err
	}
	return t.rawWrite8(addr, value)
}

// SendBurstTrigger requests one burst frame from a device configured for
// triggered output.
func (t *Transport) SendBurstTrigger() error {
	cmd := [3]byte{BurstMarker, 0x00, Delimiter}
	if _, err := t.port.Write(cmd[:]); err != nil {
		return fmt.Errorf("burst trigger: %w", err)
	}
	t.Clock.Sleep(t.Stall)
	return nil
}

// readExact reads exactly n bytes, polling the port until enough bytes are
// pending or the attempt budget runs out.
func (t *Transport) readExact(n int) ([]byte, error) {
	if err := t.waitPending(n, t.FrameRetries); err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := t.port.Read(buf[read:])
		if err != nil {
			return nil, err
		}
		if m == 0 {
			return nil, fmt.Errorf("short read %d/%d bytes: %w", read, n, ErrTimeout)
		}
		read += m
	}
	return buf, nil
}

// waitPending blocks until at least n bytes are buffered, checking up to
// maxAttempts times.
func (t *Transport) waitPending(n, maxAttempts int) error {
	for i := 0; i < maxAttempts; i++ {
		pending, err := t.port.BytesAvailable()
		if err != nil {
			return err
		}
		if pending >= n {
			return nil
		}
		t.Clock.Sleep(t.FramePoll)
	}
	return fmt.Errorf("waiting for %d bytes: %w", n, ErrTimeout)
}

// ReadFrame returns the next n-byte frame from the port.
func (t *Transport) ReadFrame(n int) ([]byte, error) {
	return t.readExact(n)
}

// ScanToDelimiter discards bytes until a frame delimiter is consumed,
// re-aligning the stream after a corrupted frame. The scan is bounded so a
// dead or misconfigured device cannot wedge the caller.
func (t *Transport) ScanToDelimiter(maxScan int) error {
	one := make([]byte, 1)
	for i := 0; i < maxScan; i++ {
		n, err := t.port.Read(one)
		if err != nil {
			return err
		}
		if n == 1 && one[0] == Delimiter {
			return nil
		}
	}
	return fmt.Errorf("no delimiter within %d bytes: %w", maxScan, ErrTimeout)
}

// DrainInput repeatedly flushes the receive buffer until it stays empty.
// A device still in sampling mode refills the buffer faster than it can be
// flushed, which surfaces as ErrRxClearFailed.
func (t *Transport) DrainInput(maxAttempts int, delay time.Duration) error {
	for i := 0; i < maxAttempts; i++ {
		if err := t.port.DiscardInput(); err != nil {
			return err
		}
		t.Clock.Sleep(delay)

		pending, err := t.port.BytesAvailable()
		if err != nil {
			return err
		}
		if pending == 0 {
			return nil
		}
	}
	return ErrRxClearFailed
}

// Synchronize establishes register-level communication with a device in an
// unknown state. Each attempt forces CONFIG mode, drains the receive buffer,
// and verifies the fixed ID register. A stray delimiter is emitted between
// attempts to flush any partial command the device may be holding.
func (t *Transport) Synchronize(maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		// Best effort: the device may be mid-frame and swallow this.
		_ = t.WriteRegister(0, modeCmdAddr, modeCmdConfig)

		if err := t.DrainInput(t.DrainRetries, t.DrainDelay); err != nil {
			return err
		}

		id, err := t.ReadRegister(0, idAddr)
		if err == nil && id == idValue {
			return nil
		}

		// Re-align the device command parser before the next attempt.
		if _, err := t.port.Write([]byte{Delimiter}); err != nil {
			return fmt.Errorf("sync realign: %w", err)
		}
		t.Clock.Sleep(t.WriteRate)
	}
	return ErrSyncFailed
}
