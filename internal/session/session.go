// Package session drives a single Epson sensing device: mode control,
// configuration, burst sampling, and the maintenance operations (self test,
// flash test, backup, reset). It sits on top of the register transport and
// the static model tables.
package session

import (
	"fmt"
	"time"

	"github.com/epson-sensing/esensor/internal/burst"
	"github.com/epson-sensing/esensor/internal/model"
	"github.com/epson-sensing/esensor/internal/timeutil"
	"github.com/epson-sensing/esensor/internal/transport"
)

// Mode is the device operating mode as reported by MODE_CTRL.
type Mode int

const (
	ModeSampling Mode = 0
	ModeConfig   Mode = 1
	ModeSleep    Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeSampling:
		return "sampling"
	case ModeConfig:
		return "config"
	case ModeSleep:
		return "sleep"
	default:
		return "unknown"
	}
}

// MODE_CTRL command bytes and status fields.
const (
	modeCmdSampling = 0x01
	modeCmdConfig   = 0x02
	modeCmdSleep    = 0x03

	modeBusyMask   = 0x0300
	modeFieldMask  = 0x0C00
	modeFieldShift = 10
)

// Default bounds for the register poll loops and the settle time after a
// mode command.
const (
	DefaultPollRetries   = 100
	DefaultPollDelay     = 10 * time.Millisecond
	DefaultModePostDelay = 100 * time.Millisecond
)

// Session drives one device over an established transport. It is not safe
// for concurrent use; samplemux provides fan-out when multiple consumers
// need the stream.
type Session struct {
	tr  *transport.Transport
	cap *model.Capability

	// PollRetries and PollDelay bound the busy-bit poll loops. Tests
	// shrink them to run fast.
	PollRetries int
	PollDelay   time.Duration

	// ModePostDelay is how long the device gets to settle after a mode
	// command before any further traffic.
	ModePostDelay time.Duration

	clock timeutil.Clock

	mode       Mode
	slept      bool
	configured bool
	cfg        Config
	schema     *burst.Schema
	scaleOpts  burst.ScaleOptions
}

// New creates a session for a device that has been synchronized into CONFIG
// mode (transport.Synchronize leaves it there).
func New(tr *transport.Transport, c *model.Capability) *Session {
	return &Session{
		tr:          tr,
		cap:         c,
		PollRetries:   DefaultPollRetries,
		PollDelay:     DefaultPollDelay,
		ModePostDelay: DefaultModePostDelay,
		clock:         timeutil.RealClock{},
		mode:          ModeConfig,
	}
}

// Capability returns the model table the session was built with.
func (s *Session) Capability() *model.Capability { return s.cap }

// Schema returns the current burst schema, or nil before Configure.
func (s *Session) Schema() *burst.Schema { return s.schema }

// DeviceInfo reads the product ID, serial number, and firmware version.
func (s *Session) DeviceInfo() (model.DeviceInfo, error) {
	return model.ReadDeviceInfo(s.tr)
}

// GetMode polls the device mode register until the transition bits clear and
// returns the reported mode. A sleeping device cannot answer, so the cached
// mode is returned instead.
func (s *Session) GetMode() (Mode, error) {
	if s.slept {
		return ModeSleep, nil
	}
	m, err := s.readMode()
	if err != nil {
		return 0, err
	}
	s.mode = m
	return m, nil
}

func (s *Session) readMode() (Mode, error) {
	reg := s.cap.Registers.ModeCtrl
	for i := 0; i < s.PollRetries; i++ {
		v, err := s.tr.ReadRegister(reg.Window, reg.Addr)
		if err != nil {
			return 0, err
		}
		if v&modeBusyMask == 0 {
			return Mode((v & modeFieldMask) >> modeFieldShift), nil
		}
		s.clock.Sleep(s.PollDelay)
	}
	return 0, fmt.Errorf("mode transition pending: %w", transport.ErrTimeout)
}

// GoTo requests a mode change. Sleep is terminal: only a power cycle or
// hardware reset wakes the device, so any later software mode change fails.
func (s *Session) GoTo(target Mode) error {
	if s.slept {
		return fmt.Errorf("device is asleep: %w", ErrInvalidCommand)
	}

	var cmd byte
	switch target {
	case ModeSampling:
		cmd = modeCmdSampling
	case ModeConfig:
		cmd = modeCmdConfig
	case ModeSleep:
		if !s.cap.Features.Sleep {
			return fmt.Errorf("%s has no sleep mode: %w", s.cap.ProductID, ErrInvalidCommand)
		}
		cmd = modeCmdSleep
	default:
		return fmt.Errorf("unknown mode %d: %w", target, ErrInvalidCommand)
	}

	if target == ModeSampling {
		if !s.configured {
			return ErrNotConfigured
		}
		// Pick up any register changes made since Configure.
		if err := s.refreshSchema(s.cfg); err != nil {
			return err
		}
	}

	reg := s.cap.Registers.ModeCtrl
	if err := s.tr.WriteRegister(reg.Window, reg.High(), cmd); err != nil {
		return err
	}
	s.clock.Sleep(s.ModePostDelay)

	switch target {
	case ModeSleep:
		s.mode = ModeSleep
		s.slept = true
		return nil
	case ModeSampling:
		s.mode = ModeSampling
		return nil
	default:
		// The device may have streamed bursts up to the mode change.
		if err := s.tr.DrainInput(s.tr.DrainRetries, s.tr.DrainDelay); err != nil {
			return err
		}
		m, err := s.readMode()
		if err != nil {
			return err
		}
		if m != ModeConfig {
			return fmt.Errorf("device reports %v after config request: %w", m, ErrInvalidCommand)
		}
		s.mode = ModeConfig
		return nil
	}
}

// ReadSample returns the next decoded and scaled burst. Outside sampling
// mode, or before Configure, it returns an empty sample with a sentinel
// error so polling loops can skip without special cases. A corrupted frame
// re-aligns the stream and also returns empty.
func (s *Session) ReadSample() (burst.Sample, error) {
	if !s.configured {
		return burst.Sample{}, ErrNotConfigured
	}
	if s.mode != ModeSampling {
		return burst.Sample{}, fmt.Errorf("not in sampling mode: %w", ErrInvalidCommand)
	}

	if !s.cfg.UartAuto {
		if err := s.tr.SendBurstTrigger(); err != nil {
			return burst.Sample{}, err
		}
	}

	frame, err := s.tr.ReadFrame(s.schema.FrameSize)
	if err != nil {
		return burst.Sample{}, err
	}

	values, err := burst.Decode(s.schema, frame)
	if err != nil {
		// Skip to the next delimiter so the following read starts on
		// a frame boundary.
		_ = s.tr.ScanToDelimiter(transport.DefaultScanLimit)
		return burst.Sample{}, err
	}

	return burst.Scale(s.schema, s.cap, s.scaleOpts, values), nil
}

// refreshSchema rebuilds the burst schema from the burst control registers,
// merged with the config settings the registers do not encode.
func (s *Session) refreshSchema(cfg Config) error {
	regs := s.cap.Registers

	ctrl1, err := s.tr.ReadRegister(regs.BurstCtrl.Window, regs.BurstCtrl.Addr)
	if err != nil {
		return err
	}
	var ctrl2 uint16
	if s.cap.Family == model.FamilyIMU {
		ctrl2, err = s.tr.ReadRegister(regs.BurstCtrl2.Window, regs.BurstCtrl2.Addr)
		if err != nil {
			return err
		}
	}

	flags := burst.FlagsFromRegisters(s.cap.Family, ctrl1, ctrl2)
	flags.TiltX, flags.TiltY, flags.TiltZ = cfg.TiltX, cfg.TiltY, cfg.TiltZ
	flags.Temp16 = cfg.Temp16
	flags.OutputSelect = cfg.OutputSelect
	if s.cap.Family == model.FamilyVibration && flags.OutputSelect == "" {
		flags.OutputSelect = "VELOCITY_RMS"
	}

	schema, err := burst.Build(s.cap, flags)
	if err != nil {
		return err
	}
	s.schema = schema
	return nil
}

// requireConfigMode gates the operations the device only accepts in CONFIG
// mode.
func (s *Session) requireConfigMode(op string) error {
	if s.slept {
		return fmt.Errorf("%s: device is asleep: %w", op, ErrInvalidCommand)
	}
	if s.mode != ModeConfig {
		return fmt.Errorf("%s outside config mode: %w", op, ErrInvalidCommand)
	}
	return nil
}

// pollClear waits delay, then polls the register until the mask bits clear.
func (s *Session) pollClear(reg model.RegisterRef, mask uint16, delay time.Duration) error {
	s.clock.Sleep(delay)
	for i := 0; i < s.PollRetries; i++ {
		v, err := s.tr.ReadRegister(reg.Window, reg.Addr)
		if err != nil {
			return err
		}
		if v&mask == 0 {
			return nil
		}
		s.clock.Sleep(s.PollDelay)
	}
	return fmt.Errorf("bits %#04x stuck in register (%d, %#02x): %w",
		mask, reg.Window, reg.Addr, transport.ErrTimeout)
}
