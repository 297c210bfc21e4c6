package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epson-sensing/esensor/internal/timeutil"
	"github.com/epson-sensing/esensor/internal/uartport"
)

// newFastTransport returns a Transport over the given port with all pacing
// delays removed and tight retry budgets so tests run instantly.
func newFastTransport(port uartport.Port) *Transport {
	tr := New(port)
	tr.Stall = 0
	tr.WriteRate = 0
	tr.FramePoll = 0
	tr.FrameRetries = 5
	tr.DrainRetries = 3
	tr.DrainDelay = 0
	return tr
}

// registerResponder wires a TestablePort so that register read commands are
// answered from the regs map. Window select and other writes are absorbed.
func registerResponder(port *uartport.TestablePort, regs map[byte]uint16) {
	port.OnWrite = func(p []byte) {
		if len(p) != 3 || p[2] != Delimiter {
			return
		}
		addr := p[0]
		if addr&0x80 != 0 {
			// Write command, no response.
			return
		}
		value, ok := regs[addr]
		if !ok {
			return
		}
		// OnWrite runs under the port lock; append to the buffer directly.
		port.ReadBuffer.Write([]byte{addr, byte(value >> 8), byte(value), Delimiter})
	}
}

func TestReadRegister(t *testing.T) {
	port := uartport.NewTestablePort()
	registerResponder(port, map[byte]uint16{0x4C: 0x5345})

	tr := newFastTransport(port)
	value, err := tr.ReadRegister(0, 0x4C)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x5345), value)

	// Window select write then the read command itself.
	want := []byte{
		0xFE, 0x00, Delimiter,
		0x4C, 0x00, Delimiter,
	}
	assert.Equal(t, want, port.GetWrittenData())
}

func TestReadRegisterMasksLowAddressBit(t *testing.T) {
	port := uartport.NewTestablePort()
	registerResponder(port, map[byte]uint16{0x0A: 0x1234})

	tr := newFastTransport(port)
	value, err := tr.ReadRegister(0, 0x0B)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), value)
}

func TestReadRegisterFramingError(t *testing.T) {
	port := uartport.NewTestablePort()
	port.OnWrite = func(p []byte) {
		if len(p) == 3 && p[0] == 0x4C {
			// Echo the wrong address.
			port.ReadBuffer.Write([]byte{0x4E, 0x53, 0x45, Delimiter})
		}
	}

	tr := newFastTransport(port)
	_, err := tr.ReadRegister(0, 0x4C)
	require.Error(t, err)

	var fe *FramingError
	assert.ErrorAs(t, err, &fe)
	assert.Equal(t, byte(0x4C), fe.Want)
}

func TestWriteRegister(t *testing.T) {
	port := uartport.NewTestablePort()
	tr := newFastTransport(port)

	require.NoError(t, tr.WriteRegister(1, 0x04, 0x07))

	want := []byte{
		0xFE, 0x01, Delimiter, // window select
		0x84, 0x07, Delimiter, // write with bit 7 set
	}
	assert.Equal(t, want, port.GetWrittenData())
}

func TestSendBurstTrigger(t *testing.T) {
	port := uartport.NewTestablePort()
	tr := newFastTransport(port)

	require.NoError(t, tr.SendBurstTrigger())
	assert.Equal(t, []byte{BurstMarker, 0x00, Delimiter}, port.GetWrittenData())
}

func TestScanToDelimiter(t *testing.T) {
	port := uartport.NewTestablePort()
	port.AddReadData([]byte{0x01, 0x02, Delimiter, 0xAA})

	tr := newFastTransport(port)
	require.NoError(t, tr.ScanToDelimiter(10))

	// Everything through the delimiter is consumed, the rest remains.
	pending, err := port.BytesAvailable()
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestScanToDelimiterBounded(t *testing.T) {
	port := uartport.NewTestablePort()
	port.AddReadData([]byte{0x01, 0x02, 0x03, 0x04})

	tr := newFastTransport(port)
	err := tr.ScanToDelimiter(4)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestReadFrameTimesOut(t *testing.T) {
	port := uartport.NewTestablePort()
	port.AddReadData([]byte{0x80, 0x01})

	tr := newFastTransport(port)
	_, err := tr.ReadFrame(10)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDrainInput(t *testing.T) {
	port := uartport.NewTestablePort()
	port.AddReadData([]byte{0x01, 0x02, 0x03})

	tr := newFastTransport(port)
	require.NoError(t, tr.DrainInput(3, 0))

	pending, err := port.BytesAvailable()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

// streamingPort refills its read buffer on every flush, imitating a device
// stuck in sampling mode.
type streamingPort struct {
	*uartport.TestablePort
}

func (s *streamingPort) DiscardInput() error {
	if err := s.TestablePort.DiscardInput(); err != nil {
		return err
	}
	s.AddReadData([]byte{0x80, 0x00, 0x01, Delimiter})
	return nil
}

func TestDrainInputKeepsFailingOnStream(t *testing.T) {
	port := &streamingPort{uartport.NewTestablePort()}
	tr := newFastTransport(port)

	err := tr.DrainInput(3, 0)
	assert.ErrorIs(t, err, ErrRxClearFailed)
}

func TestSynchronize(t *testing.T) {
	port := uartport.NewTestablePort()
	registerResponder(port, map[byte]uint16{0x4C: 0x5345})

	tr := newFastTransport(port)
	require.NoError(t, tr.Synchronize(DefaultSyncRetries))
}

func TestSynchronizeFailsOnWrongID(t *testing.T) {
	port := uartport.NewTestablePort()
	registerResponder(port, map[byte]uint16{0x4C: 0xDEAD})

	tr := newFastTransport(port)
	err := tr.Synchronize(3)
	assert.ErrorIs(t, err, ErrSyncFailed)
}

func TestSynchronizeRecoversAfterGarbage(t *testing.T) {
	port := uartport.NewTestablePort()

	attempts := 0
	port.OnWrite = func(p []byte) {
		if len(p) == 3 && p[0] == 0x4C && p[2] == Delimiter {
			attempts++
			if attempts == 1 {
				// First attempt: stale garbage instead of the ID echo.
				port.ReadBuffer.Write([]byte{0xFF, 0xFF, 0xFF, Delimiter})
				return
			}
			port.ReadBuffer.Write([]byte{0x4C, 0x53, 0x45, Delimiter})
		}
	}

	tr := newFastTransport(port)
	require.NoError(t, tr.Synchronize(DefaultSyncRetries))
	assert.Equal(t, 2, attempts)
}

func TestExchangePacing(t *testing.T) {
	port := uartport.NewTestablePort()
	registerResponder(port, map[byte]uint16{0x4C: 0x5345})

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	tr := New(port)
	tr.Clock = clock

	// Window select write, then the read stall.
	_, err := tr.ReadRegister(0, 0x4C)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{DefaultWriteRate, DefaultStall}, clock.Sleeps())

	// Window select plus the register write, each paced.
	require.NoError(t, tr.WriteRegister(1, 0x04, 0x07))
	assert.Equal(t,
		[]time.Duration{DefaultWriteRate, DefaultStall, DefaultWriteRate, DefaultWriteRate},
		clock.Sleeps())
}
