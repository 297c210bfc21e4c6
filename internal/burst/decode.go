package burst

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame envelope bytes. These mirror the transport constants; the decoder
// validates them independently so a schema mismatch cannot pass silently.
const (
	frameMarker    = 0x80
	frameDelimiter = 0x0D
)

// ErrCorruptedFrame indicates a burst frame with a missing marker or
// delimiter. The stream must be re-aligned before the next read.
var ErrCorruptedFrame = errors.New("corrupted burst frame")

// Decode validates the frame envelope and unpacks the component counts in
// wire order. All multi-byte values are big-endian.
func Decode(s *Schema, frame []byte) ([]int64, error) {
	if len(frame) != s.FrameSize {
		return nil, fmt.Errorf("frame length %d, schema expects %d: %w",
			len(frame), s.FrameSize, ErrCorruptedFrame)
	}
	if frame[0] != frameMarker || frame[len(frame)-1] != frameDelimiter {
		return nil, fmt.Errorf("bad envelope %#02x..%#02x: %w",
			frame[0], frame[len(frame)-1], ErrCorruptedFrame)
	}

	values := make([]int64, 0, len(s.Components))
	offset := 1
	for _, comp := range s.Components {
		raw := frame[offset : offset+comp.Width]
		values = append(values, decodeComponent(comp, raw))
		offset += comp.Width
	}
	return values, nil
}

func decodeComponent(comp Component, raw []byte) int64 {
	switch comp.Width {
	case 1:
		if comp.Signed {
			return int64(int8(raw[0]))
		}
		return int64(raw[0])
	case 2:
		v := binary.BigEndian.Uint16(raw)
		if comp.Signed {
			return int64(int16(v))
		}
		return int64(v)
	case 3:
		// A byte plus short pair: place them in the top 24 bits and
		// arithmetic-shift back down to sign extend.
		v := uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8
		return int64(int32(v) >> 8)
	case 4:
		v := binary.BigEndian.Uint32(raw)
		if comp.Signed {
			return int64(int32(v))
		}
		return int64(v)
	default:
		return 0
	}
}
