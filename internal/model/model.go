// Package model holds the static capability tables for the supported Epson
// sensing devices. Each model contributes its register map, value enums,
// scale constants, and timing budget; the rest of the stack is table-driven
// from these.
package model

import "time"

// Family groups models by their burst layout and configuration surface.
type Family int

const (
	FamilyIMU Family = iota
	FamilyAccel
	FamilyVibration
)

func (f Family) String() string {
	switch f {
	case FamilyIMU:
		return "imu"
	case FamilyAccel:
		return "accel"
	case FamilyVibration:
		return "vibration"
	default:
		return "unknown"
	}
}

// RegisterRef locates a 16-bit register: its window and the address of the
// low byte. The high byte sits at the next address.
type RegisterRef struct {
	Window byte
	Addr   byte
}

// High returns the address of the register's upper byte, used for single-byte
// writes to the high half.
func (r RegisterRef) High() byte {
	return r.Addr + 1
}

// Zero reports whether the reference is unset. Models leave registers they
// lack at the zero value, except BURST which genuinely lives at (0, 0x00)
// and is never referenced through this check.
func (r RegisterRef) Zero() bool {
	return r.Window == 0 && r.Addr == 0
}

// Registers names the subset of the register map the driver touches.
// Families that lack a register leave it zero.
type Registers struct {
	ModeCtrl RegisterRef
	DiagStat RegisterRef
	// DiagStat2 exists only on vibration sensors.
	DiagStat2  RegisterRef
	Flag       RegisterRef
	GPIO       RegisterRef
	Count      RegisterRef
	RangeOver  RegisterRef
	ID         RegisterRef
	SigCtrl    RegisterRef
	MscCtrl    RegisterRef
	SmplCtrl   RegisterRef
	FilterCtrl RegisterRef
	UartCtrl   RegisterRef
	GlobCmd    RegisterRef
	// BurstCtrl is BURST_CTRL1 on IMUs and the single BURST_CTRL on
	// accelerometer and vibration models. BurstCtrl2 is IMU-only.
	BurstCtrl  RegisterRef
	BurstCtrl2 RegisterRef
	PolCtrl    RegisterRef
	DltCtrl    RegisterRef
	AttiCtrl   RegisterRef
	GlobCmd2   RegisterRef
	ProdID     [4]RegisterRef
	Version    RegisterRef
	SerialNum  [4]RegisterRef
	WinCtrl    RegisterRef
}

// NamedRegister pairs a register with its datasheet name for dumps.
type NamedRegister struct {
	Name string
	Reg  RegisterRef
}

// Scale holds the per-model conversion constants applied to raw burst counts.
// Entries a model does not support stay zero.
type Scale struct {
	Gyro     float64 // (deg/s)/LSB
	Accl     float64 // mG/LSB
	TempC    float64 // degC/LSB
	TempC25C float64 // raw offset at 25 degC
	DltA     float64 // deg/LSB before range exponent
	DltV     float64 // (m/s)/LSB before range exponent
	Atti     float64 // deg/LSB
	Qtn      float64 // 1/LSB
	Tilt     float64 // rad/LSB
	Vel      float64 // (mm/s)/LSB
	Disp     float64 // mm/LSB
}

// Timing is the per-model delay budget for slow device operations.
type Timing struct {
	PowerOn           time.Duration
	Reset             time.Duration
	FlashTest         time.Duration
	FlashBackup       time.Duration
	SelfTest          time.Duration
	SelfTestFlash     time.Duration
	SelfTestResonance time.Duration
	SelfTestSensAxis  time.Duration
	FilterSetting     time.Duration
	AttiMotionSetting time.Duration
	OutputModeSetting time.Duration
}

// Diag holds the DIAG_STAT bit masks checked by the diagnostic operations.
type Diag struct {
	HardErr     uint16
	SelfTestErr uint16
	FlashErr    uint16
	BackupErr   uint16
}

// Features flags optional capability blocks per model.
type Features struct {
	Sleep      bool
	GPIO       bool
	RangeOver  bool
	Delta      bool
	Attitude   bool
	Quaternion bool
	ARange     bool
	ExtTrigger bool
}

// Capability is the full static description of one device model.
type Capability struct {
	ProductID string
	Family    Family

	Registers Registers
	Dump      []NamedRegister

	// Value enums. Keys are the caller-facing identifiers, values the raw
	// bytes written to the device.
	BaudRates    map[int]byte
	OutputRates  map[float64]byte
	Filters      map[string]byte
	FiltersAlt   map[string]byte // G370 variant used at 2000/400/80 sps
	AutoFilters  map[float64]string
	ExtSelectors map[string]byte
	OutputSelect map[string]byte // vibration only
	AttiProfiles map[string]byte

	Scale    Scale
	Timing   Timing
	Diag     Diag
	Features Features
}

// SupportsOutputRate reports whether rate is a valid DOUT_RATE for the model.
func (c *Capability) SupportsOutputRate(rate float64) bool {
	_, ok := c.OutputRates[rate]
	return ok
}

// SupportsBaudRate reports whether baud is settable on the model.
func (c *Capability) SupportsBaudRate(baud int) bool {
	_, ok := c.BaudRates[baud]
	return ok
}
