// Package burst derives the layout of a device burst frame from the enabled
// output flags, decodes raw frames against that layout, and converts the
// decoded counts to physical units.
package burst

import (
	"fmt"
	"strings"

	"github.com/epson-sensing/esensor/internal/model"
)

// Kind classifies a burst component for unit conversion.
type Kind int

const (
	KindNDFlags Kind = iota
	KindTempC
	KindTempC8
	KindExiAlrmCnt
	KindGyro
	KindAccl
	KindDltA
	KindDltV
	KindQtn
	KindAtti
	KindTilt
	KindVel
	KindDisp
	KindGPIO
	KindCounter
	KindChecksum
)

// Flags captures which outputs are enabled in the device burst registers,
// plus the signal settings that change how those outputs are named and
// decoded.
type Flags struct {
	NDFlags  bool
	TempC    bool
	Gyro     bool
	Accl     bool
	DltA     bool
	DltV     bool
	Qtn      bool
	Atti     bool
	GPIO     bool
	Counter  bool
	Checksum bool

	// 32-bit companions, IMU only.
	TempC32 bool
	Gyro32  bool
	Accl32  bool
	DltA32  bool
	DltV32  bool
	Qtn32   bool
	Atti32  bool

	// Per-axis enables, accelerometer and vibration families.
	AxisX bool
	AxisY bool
	AxisZ bool

	// Tilt axis selection, accelerometer family. A set bit renames the
	// matching acceleration axis to tilt output.
	TiltX bool
	TiltY bool
	TiltZ bool

	// Temp16 selects 16-bit temperature on vibration sensors. When false
	// the 16-bit slot carries an 8-bit temperature plus a status byte.
	Temp16 bool

	// OutputSelect is the vibration output mode, one of the VELOCITY_* or
	// DISP_* selectors.
	OutputSelect string
}

// FlagsFromRegisters decodes the burst control register contents into Flags.
// ctrl2 is ignored for the single-register families.
func FlagsFromRegisters(family model.Family, ctrl1, ctrl2 uint16) Flags {
	var f Flags
	switch family {
	case FamilyIMU:
		f.NDFlags = ctrl1&0x8000 != 0
		f.TempC = ctrl1&0x4000 != 0
		f.Gyro = ctrl1&0x2000 != 0
		f.Accl = ctrl1&0x1000 != 0
		f.DltA = ctrl1&0x0800 != 0
		f.DltV = ctrl1&0x0400 != 0
		f.Qtn = ctrl1&0x0200 != 0
		f.Atti = ctrl1&0x0100 != 0
		f.GPIO = ctrl1&0x0004 != 0
		f.Counter = ctrl1&0x0002 != 0
		f.Checksum = ctrl1&0x0001 != 0

		f.TempC32 = ctrl2&0x4000 != 0
		f.Gyro32 = ctrl2&0x2000 != 0
		f.Accl32 = ctrl2&0x1000 != 0
		f.DltA32 = ctrl2&0x0800 != 0
		f.DltV32 = ctrl2&0x0400 != 0
		f.Qtn32 = ctrl2&0x0200 != 0
		f.Atti32 = ctrl2&0x0100 != 0
	default:
		f.NDFlags = ctrl1&0x8000 != 0
		f.TempC = ctrl1&0x4000 != 0
		f.AxisX = ctrl1&0x0400 != 0
		f.AxisY = ctrl1&0x0200 != 0
		f.AxisZ = ctrl1&0x0100 != 0
		f.Counter = ctrl1&0x0002 != 0
		f.Checksum = ctrl1&0x0001 != 0
	}
	return f
}

// Family aliases, to keep the tables below readable.
const (
	FamilyIMU       = model.FamilyIMU
	FamilyAccel     = model.FamilyAccel
	FamilyVibration = model.FamilyVibration
)

// Component is one decoded value in a burst frame.
type Component struct {
	Name   string
	Kind   Kind
	Width  int // bytes on the wire: 1, 2, 3, or 4
	Signed bool
}

// Schema is the derived layout of a burst frame. FrameSize includes the
// leading marker byte and the trailing delimiter.
type Schema struct {
	Family     model.Family
	Components []Component
	FrameSize  int
}

// Build derives the burst schema for the capability and flags. The component
// order is fixed by the device; only widths and presence vary.
func Build(c *model.Capability, f Flags) (*Schema, error) {
	s := &Schema{Family: c.Family}

	switch c.Family {
	case FamilyIMU:
		buildIMU(s, f)
	case FamilyAccel:
		buildAccel(s, f)
	case FamilyVibration:
		buildVibration(s, f)
	default:
		return nil, fmt.Errorf("unsupported device family %v", c.Family)
	}

	size := 2 // marker + delimiter
	for _, comp := range s.Components {
		size += comp.Width
	}
	s.FrameSize = size
	return s, nil
}

func (s *Schema) add(name string, kind Kind, width int, signed bool) {
	s.Components = append(s.Components, Component{
		Name:   name,
		Kind:   kind,
		Width:  width,
		Signed: signed,
	})
}

// addVector appends one component per axis suffix, choosing the 32-bit width
// when the companion flag is set and renaming the field to match.
func (s *Schema) addVector(name string, kind Kind, wide bool, suffixes ...string) {
	width := 2
	if wide {
		width = 4
		name += "32"
	}
	for _, suffix := range suffixes {
		s.add(name+suffix, kind, width, true)
	}
}

func buildIMU(s *Schema, f Flags) {
	if f.NDFlags {
		s.add("ndflags", KindNDFlags, 2, false)
	}
	if f.TempC {
		if f.TempC32 {
			s.add("tempc32", KindTempC, 4, true)
		} else {
			s.add("tempc", KindTempC, 2, true)
		}
	}
	if f.Gyro {
		s.addVector("gyro", KindGyro, f.Gyro32, "_X", "_Y", "_Z")
	}
	if f.Accl {
		s.addVector("accl", KindAccl, f.Accl32, "_X", "_Y", "_Z")
	}
	if f.DltA {
		s.addVector("dlta", KindDltA, f.DltA32, "_X", "_Y", "_Z")
	}
	if f.DltV {
		s.addVector("dltv", KindDltV, f.DltV32, "_X", "_Y", "_Z")
	}
	if f.Qtn {
		s.addVector("qtn", KindQtn, f.Qtn32, "_0", "_1", "_2", "_3")
	}
	if f.Atti {
		s.addVector("atti", KindAtti, f.Atti32, "_X", "_Y", "_Z")
	}
	if f.GPIO {
		s.add("gpio", KindGPIO, 2, false)
	}
	if f.Counter {
		s.add("counter", KindCounter, 2, false)
	}
	if f.Checksum {
		s.add("chksm", KindChecksum, 2, false)
	}
}

func buildAccel(s *Schema, f Flags) {
	if f.NDFlags {
		s.add("ndflags", KindNDFlags, 2, false)
	}
	if f.TempC {
		s.add("tempc", KindTempC, 4, true)
	}
	// A tilt-enabled axis replaces the acceleration output on that axis.
	axes := []struct {
		enabled bool
		tilt    bool
		suffix  string
	}{
		{f.AxisX, f.TiltX, "x"},
		{f.AxisY, f.TiltY, "y"},
		{f.AxisZ, f.TiltZ, "z"},
	}
	for _, axis := range axes {
		if !axis.enabled {
			continue
		}
		if axis.tilt {
			s.add("tilt"+axis.suffix, KindTilt, 4, true)
		} else {
			s.add("accl"+axis.suffix, KindAccl, 4, true)
		}
	}
	if f.Counter {
		s.add("counter", KindCounter, 2, false)
	}
	if f.Checksum {
		s.add("chksm", KindChecksum, 2, false)
	}
}

func buildVibration(s *Schema, f Flags) {
	prefix := "disp"
	kind := KindDisp
	if strings.HasPrefix(strings.ToUpper(f.OutputSelect), "VELOCITY") {
		prefix = "vel"
		kind = KindVel
	}

	if f.NDFlags {
		s.add("ndflags", KindNDFlags, 2, false)
	}
	if f.TempC {
		if f.Temp16 {
			s.add("tempc", KindTempC, 2, false)
		} else {
			// The 16-bit slot splits into an 8-bit temperature and
			// an EXI/alarm/counter status byte.
			s.add("tempc8", KindTempC8, 1, true)
			s.add("exi-alrm-cnt", KindExiAlrmCnt, 1, false)
		}
	}
	// Vibration axes are 24-bit on the wire.
	if f.AxisX {
		s.add(prefix+"x", kind, 3, true)
	}
	if f.AxisY {
		s.add(prefix+"y", kind, 3, true)
	}
	if f.AxisZ {
		s.add(prefix+"z", kind, 3, true)
	}
	if f.Counter {
		s.add("counter", KindCounter, 2, false)
	}
	if f.Checksum {
		s.add("chksm", KindChecksum, 2, false)
	}
}

// FieldNames returns the component names in wire order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Components))
	for i, comp := range s.Components {
		names[i] = comp.Name
	}
	return names
}
