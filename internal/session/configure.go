package session

import (
	"github.com/epson-sensing/esensor/internal/burst"
	"github.com/epson-sensing/esensor/internal/model"
)

// Register bit positions used by Configure.
const (
	filterBusyMask  = 0x0020
	sigCtrlBusyMask = 0x0001
)

// Configure validates cfg, writes the device registers for it, and derives
// the burst schema from the register read-back. Validation happens before
// any I/O: an unsupported setting fails without touching the device.
func (s *Session) Configure(cfg Config) error {
	if err := s.requireConfigMode("configure"); err != nil {
		return err
	}

	r, err := resolve(s.cap, cfg)
	if err != nil {
		return err
	}

	switch s.cap.Family {
	case model.FamilyIMU:
		err = s.configureIMU(cfg, r)
	case model.FamilyAccel:
		err = s.configureAccel(cfg, r)
	case model.FamilyVibration:
		err = s.configureVibration(cfg, r)
	}
	if err != nil {
		return err
	}

	if err := s.refreshSchema(cfg); err != nil {
		return err
	}

	s.cfg = cfg
	s.configured = true
	s.scaleOpts = burst.ScaleOptions{
		ARange:    cfg.ARange,
		DltARange: cfg.DltARange,
		DltVRange: cfg.DltVRange,
	}
	return nil
}

func (s *Session) configureIMU(cfg Config, r resolved) error {
	regs := s.cap.Registers

	if r.hasExt {
		if err := s.updateLow(regs.MscCtrl, 0x06, r.extByte<<6); err != nil {
			return err
		}
	}
	// DRDY active high.
	if err := s.updateLow(regs.MscCtrl, 0xFD, 1<<1); err != nil {
		return err
	}

	if err := s.tr.WriteRegister(regs.SmplCtrl.Window, regs.SmplCtrl.High(), r.rateByte); err != nil {
		return err
	}

	if err := s.setFilter(r.filterByte); err != nil {
		return err
	}

	if err := s.tr.WriteRegister(regs.UartCtrl.Window, regs.UartCtrl.Addr, r.uartByte); err != nil {
		return err
	}

	if s.cap.Features.ARange {
		if err := s.tr.WriteRegister(regs.DltCtrl.Window, regs.DltCtrl.High(), boolByte(cfg.ARange)); err != nil {
			return err
		}
	}

	// BURST_CTRL1: gyro and accel are always present on IMUs.
	high := boolByte(cfg.NDFlags)<<7 | boolByte(cfg.TempC)<<6 | 1<<5 | 1<<4
	if err := s.tr.WriteRegister(regs.BurstCtrl.Window, regs.BurstCtrl.High(), high); err != nil {
		return err
	}
	low := boolByte(cfg.Counter)<<1 | boolByte(cfg.Checksum)
	if err := s.tr.WriteRegister(regs.BurstCtrl.Window, regs.BurstCtrl.Addr, low); err != nil {
		return err
	}

	var wide byte
	if cfg.Bit32 {
		wide = 0x7F
	}
	if err := s.tr.WriteRegister(regs.BurstCtrl2.Window, regs.BurstCtrl2.High(), wide); err != nil {
		return err
	}

	// Attitude off by default; the delta or attitude block below re-enables
	// it when requested.
	if !regs.AttiCtrl.Zero() {
		if err := s.tr.WriteRegister(regs.AttiCtrl.Window, regs.AttiCtrl.High(), 0x00); err != nil {
			return err
		}
	}

	if !cfg.UartAuto {
		sig := boolByte(cfg.TempC)<<7 | 7<<4 | 7<<1
		if err := s.tr.WriteRegister(regs.SigCtrl.Window, regs.SigCtrl.High(), sig); err != nil {
			return err
		}
	}

	if cfg.DltA || cfg.DltV {
		if err := s.configureDelta(cfg); err != nil {
			return err
		}
	} else if cfg.Atti || cfg.Qtn {
		if err := s.configureAttitude(cfg, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) configureDelta(cfg Config) error {
	regs := s.cap.Registers

	ranges := byte(cfg.DltARange&0xF)<<4 | byte(cfg.DltVRange&0xF)
	if err := s.tr.WriteRegister(regs.DltCtrl.Window, regs.DltCtrl.Addr, ranges); err != nil {
		return err
	}

	tmp, err := s.tr.ReadRegister(regs.BurstCtrl.Window, regs.BurstCtrl.Addr)
	if err != nil {
		return err
	}
	high := byte(tmp>>8)&0xF3 | boolByte(cfg.DltA)<<3 | boolByte(cfg.DltV)<<2
	if err := s.tr.WriteRegister(regs.BurstCtrl.Window, regs.BurstCtrl.High(), high); err != nil {
		return err
	}

	if !regs.AttiCtrl.Zero() {
		tmp, err = s.tr.ReadRegister(regs.AttiCtrl.Window, regs.AttiCtrl.Addr)
		if err != nil {
			return err
		}
		// ATTI_ON = 0b01 selects the delta angle/velocity function.
		high = byte(tmp>>8)&0xF9 | 0b01<<1
		if err := s.tr.WriteRegister(regs.AttiCtrl.Window, regs.AttiCtrl.High(), high); err != nil {
			return err
		}
	}

	if !cfg.UartAuto {
		sig := byte(7<<5 | 7<<2)
		if err := s.tr.WriteRegister(regs.SigCtrl.Window, regs.SigCtrl.Addr, sig); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) configureAttitude(cfg Config, r resolved) error {
	regs := s.cap.Registers

	tmp, err := s.tr.ReadRegister(regs.BurstCtrl.Window, regs.BurstCtrl.Addr)
	if err != nil {
		return err
	}
	high := byte(tmp>>8)&0xFC | boolByte(cfg.Qtn)<<1 | boolByte(cfg.Atti)
	if err := s.tr.WriteRegister(regs.BurstCtrl.Window, regs.BurstCtrl.High(), high); err != nil {
		return err
	}

	tmp, err = s.tr.ReadRegister(regs.AttiCtrl.Window, regs.AttiCtrl.Addr)
	if err != nil {
		return err
	}
	// ATTI_ON = 0b10 selects attitude/quaternion output.
	high = byte(tmp>>8)&0xF1 | boolByte(cfg.AttiEuler)<<3 | 0b10<<1
	if err := s.tr.WriteRegister(regs.AttiCtrl.Window, regs.AttiCtrl.High(), high); err != nil {
		return err
	}

	if err := s.tr.WriteRegister(regs.AttiCtrl.Window, regs.AttiCtrl.Addr, byte(cfg.AttiConv)); err != nil {
		return err
	}

	if r.hasAttiProfile {
		if err := s.tr.WriteRegister(regs.GlobCmd2.Window, regs.GlobCmd2.Addr, r.attiProfileByte<<4); err != nil {
			return err
		}
		s.clock.Sleep(s.cap.Timing.AttiMotionSetting)
	}
	return nil
}

func (s *Session) configureAccel(cfg Config, r resolved) error {
	regs := s.cap.Registers

	if err := s.updateLow(regs.MscCtrl, 0x06, r.extByte<<6); err != nil {
		return err
	}
	if err := s.updateLow(regs.MscCtrl, 0xFD, 1<<1); err != nil {
		return err
	}
	if err := s.updateLow(regs.SigCtrl, 0x1F, r.tiltMask<<5); err != nil {
		return err
	}

	if err := s.tr.WriteRegister(regs.SmplCtrl.Window, regs.SmplCtrl.High(), r.rateByte); err != nil {
		return err
	}
	if err := s.setFilter(r.filterByte); err != nil {
		return err
	}
	if err := s.tr.WriteRegister(regs.UartCtrl.Window, regs.UartCtrl.Addr, r.uartByte); err != nil {
		return err
	}

	// Acceleration axes are always present in the burst.
	high := boolByte(cfg.NDFlags)<<7 | boolByte(cfg.TempC)<<6 | 0b111
	if err := s.tr.WriteRegister(regs.BurstCtrl.Window, regs.BurstCtrl.High(), high); err != nil {
		return err
	}
	low := boolByte(cfg.Counter)<<1 | boolByte(cfg.Checksum)
	if err := s.tr.WriteRegister(regs.BurstCtrl.Window, regs.BurstCtrl.Addr, low); err != nil {
		return err
	}

	if !cfg.UartAuto {
		sig := boolByte(cfg.TempC)<<7 | 7<<1
		if err := s.tr.WriteRegister(regs.SigCtrl.Window, regs.SigCtrl.High(), sig); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) configureVibration(cfg Config, r resolved) error {
	regs := s.cap.Registers

	if err := s.updateLow(regs.MscCtrl, 0xDF, boolByte(cfg.ExtActiveLow)<<5); err != nil {
		return err
	}
	if err := s.updateLow(regs.MscCtrl, 0xFD, 1<<1); err != nil {
		return err
	}

	if cfg.TempC {
		if err := s.updateLow(regs.SigCtrl, 0xFD, boolByte(cfg.Temp16)<<1); err != nil {
			return err
		}
	}

	// Output mode switch: the device recomputes its signal path, signals
	// completion in SIG_CTRL, and flags failures in DIAG_STAT.
	if err := s.updateLow(regs.SigCtrl, 0x0F, r.outputSelByte<<4); err != nil {
		return err
	}
	if err := s.pollClear(regs.SigCtrl, sigCtrlBusyMask, s.cap.Timing.OutputModeSetting); err != nil {
		return err
	}
	diag, err := s.tr.ReadRegister(regs.DiagStat.Window, regs.DiagStat.Addr)
	if err != nil {
		return err
	}
	if bits := diag & s.cap.Diag.HardErr; bits != 0 {
		return &HardwareError{Status: bits}
	}

	if !r.rawMode {
		if err := s.tr.WriteRegister(regs.SmplCtrl.Window, regs.SmplCtrl.High(), r.doutRMSPP); err != nil {
			return err
		}
		if err := s.tr.WriteRegister(regs.SmplCtrl.Window, regs.SmplCtrl.Addr, r.updateRMSPP); err != nil {
			return err
		}
	}

	if err := s.tr.WriteRegister(regs.UartCtrl.Window, regs.UartCtrl.Addr, r.uartByte); err != nil {
		return err
	}

	high := boolByte(cfg.NDFlags)<<7 | boolByte(cfg.TempC)<<6 |
		boolByte(r.sensX)<<2 | boolByte(r.sensY)<<1 | boolByte(r.sensZ)
	if err := s.tr.WriteRegister(regs.BurstCtrl.Window, regs.BurstCtrl.High(), high); err != nil {
		return err
	}
	low := boolByte(cfg.Counter)<<1 | boolByte(cfg.Checksum)
	if err := s.tr.WriteRegister(regs.BurstCtrl.Window, regs.BurstCtrl.Addr, low); err != nil {
		return err
	}

	if !cfg.UartAuto {
		sig := boolByte(cfg.TempC)<<7 |
			boolByte(r.sensX)<<3 | boolByte(r.sensY)<<2 | boolByte(r.sensZ)<<1
		if err := s.tr.WriteRegister(regs.SigCtrl.Window, regs.SigCtrl.High(), sig); err != nil {
			return err
		}
	}
	return nil
}

// setFilter writes the filter selection and waits for the setting busy bit
// to clear.
func (s *Session) setFilter(filterByte byte) error {
	reg := s.cap.Registers.FilterCtrl
	if err := s.tr.WriteRegister(reg.Window, reg.Addr, filterByte); err != nil {
		return err
	}
	return s.pollClear(reg, filterBusyMask, s.cap.Timing.FilterSetting)
}

// updateLow read-modify-writes the low byte of a register: the current value
// is masked with keep and ORed with set.
func (s *Session) updateLow(reg model.RegisterRef, keep byte, set byte) error {
	tmp, err := s.tr.ReadRegister(reg.Window, reg.Addr)
	if err != nil {
		return err
	}
	return s.tr.WriteRegister(reg.Window, reg.Addr, byte(tmp)&keep|set)
}
