package uartport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestOptionsNormalizeDefaults(t *testing.T) {
	opts, err := Options{}.Normalize()
	require.NoError(t, err)

	assert.Equal(t, 460800, opts.BaudRate)
	assert.Equal(t, 8, opts.DataBits)
	assert.Equal(t, 1, opts.StopBits)
	assert.Equal(t, "N", opts.Parity)
}

func TestOptionsNormalizeParity(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "N", false},
		{"none", "N", false},
		{"EVEN", "E", false},
		{"o", "O", false},
		{"mark", "", true},
	}

	for _, tt := range tests {
		opts, err := Options{Parity: tt.in}.Normalize()
		if tt.wantErr {
			assert.Error(t, err, "parity %q", tt.in)
			continue
		}
		require.NoError(t, err, "parity %q", tt.in)
		assert.Equal(t, tt.want, opts.Parity)
	}
}

func TestOptionsNormalizeRejectsBadFraming(t *testing.T) {
	_, err := Options{DataBits: 4}.Normalize()
	assert.Error(t, err)

	_, err = Options{StopBits: 3}.Normalize()
	assert.Error(t, err)
}

func TestOptionsEqual(t *testing.T) {
	a := Options{BaudRate: 460800, Parity: "none"}
	b := Options{BaudRate: 460800, DataBits: 8, StopBits: 1, Parity: "N"}
	assert.True(t, a.Equal(b))

	c := Options{BaudRate: 230400}
	assert.False(t, a.Equal(c))
}

func TestOptionsSerialMode(t *testing.T) {
	mode, err := Options{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 460800, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
	// serial.StopBits is an enum, not a bit count: value 1 is 1.5 stop bits.
	assert.Equal(t, serial.OneStopBit, mode.StopBits)

	mode, err = Options{StopBits: 2, Parity: "even"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)
}

func TestTestablePortRoundTrip(t *testing.T) {
	port := NewTestablePort()
	port.AddReadData([]byte{0x01, 0x02, 0x03})

	n, err := port.BytesAvailable()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	buf := make([]byte, 2)
	read, err := port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, read)
	assert.Equal(t, []byte{0x01, 0x02}, buf)

	require.NoError(t, port.DiscardInput())
	n, err = port.BytesAvailable()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
