package session

import (
	"time"

	"github.com/epson-sensing/esensor/internal/model"
)

// GLOB_CMD and MSC_CTRL command bits.
const (
	cmdSoftReset   = 0x80
	cmdFlashBackup = 0x08
	notReadyMask   = 0x0400

	mscFlashTest = 0x08
)

// InitCheck waits for the device's power-on sequence to finish and verifies
// the hard-error bits are clear.
func (s *Session) InitCheck() error {
	regs := s.cap.Registers

	if err := s.pollClear(regs.GlobCmd, notReadyMask, 0); err != nil {
		return err
	}

	diag, err := s.tr.ReadRegister(regs.DiagStat.Window, regs.DiagStat.Addr)
	if err != nil {
		return err
	}
	if bits := diag & s.cap.Diag.HardErr; bits != 0 {
		return &HardwareError{Status: bits}
	}
	return nil
}

// SelfTest runs the built-in test sequence for the device family and reports
// any failing bits.
func (s *Session) SelfTest() error {
	if err := s.requireConfigMode("self test"); err != nil {
		return err
	}

	switch s.cap.Family {
	case model.FamilyAccel:
		return s.selfTestAccel()
	case model.FamilyVibration:
		return s.selfTestVibration()
	default:
		return s.selfTestIMU()
	}
}

func (s *Session) selfTestIMU() error {
	if err := s.mscPhase(0x04, 0x0400, s.cap.Timing.SelfTest); err != nil {
		return err
	}
	return s.checkDiag(s.cap.Diag.SelfTestErr, func(bits uint16) error {
		return &SelfTestError{Status: bits}
	})
}

// selfTestAccel runs the combined ACC/TEMP/VDD test, then exercises each
// sensing axis. The axis phases are slow; the per-model timing budget covers
// them.
func (s *Session) selfTestAccel() error {
	phases := []struct {
		cmd   byte
		mask  uint16
		delay time.Duration
	}{
		{0x07, 0x0700, s.cap.Timing.SelfTest},
		{0x10, 0x0100, s.cap.Timing.SelfTestSensAxis},
		{0x20, 0x0200, s.cap.Timing.SelfTestSensAxis},
		{0x40, 0x0400, s.cap.Timing.SelfTestSensAxis},
	}
	for _, p := range phases {
		if err := s.mscPhase(p.cmd, p.mask, p.delay); err != nil {
			return err
		}
	}
	return s.checkDiag(s.cap.Diag.SelfTestErr, func(bits uint16) error {
		return &SelfTestError{Status: bits}
	})
}

// selfTestVibration runs the EXI resonance test, the flash test, and the
// combined ACC/TEMP/VDD test, then checks both diagnostic registers.
func (s *Session) selfTestVibration() error {
	phases := []struct {
		cmd   byte
		mask  uint16
		delay time.Duration
	}{
		{0x80, 0x8000, s.cap.Timing.SelfTestResonance},
		{0x08, 0x0800, s.cap.Timing.SelfTestFlash},
		{0x07, 0x0700, s.cap.Timing.SelfTest},
	}
	for _, p := range phases {
		if err := s.mscPhase(p.cmd, p.mask, p.delay); err != nil {
			return err
		}
	}

	regs := s.cap.Registers
	diag1, err := s.tr.ReadRegister(regs.DiagStat.Window, regs.DiagStat.Addr)
	if err != nil {
		return err
	}
	diag2, err := s.tr.ReadRegister(regs.DiagStat2.Window, regs.DiagStat2.Addr)
	if err != nil {
		return err
	}
	if bits := diag1 | diag2; bits != 0 {
		return &SelfTestError{Status: bits}
	}
	return nil
}

// FlashTest verifies the on-device flash and reports the FLASH_ERR bit.
func (s *Session) FlashTest() error {
	if err := s.requireConfigMode("flash test"); err != nil {
		return err
	}

	delay := s.cap.Timing.FlashTest
	if delay == 0 {
		delay = s.cap.Timing.SelfTestFlash
	}
	if err := s.mscPhase(mscFlashTest, 0x0800, delay); err != nil {
		return err
	}
	return s.checkDiag(s.cap.Diag.FlashErr, func(bits uint16) error {
		return &FlashTestError{Status: bits}
	})
}

// FlashBackup persists the current register settings to flash.
func (s *Session) FlashBackup() error {
	if err := s.requireConfigMode("flash backup"); err != nil {
		return err
	}

	regs := s.cap.Registers
	if err := s.tr.WriteRegister(regs.GlobCmd.Window, regs.GlobCmd.Addr, cmdFlashBackup); err != nil {
		return err
	}
	if err := s.pollClear(regs.GlobCmd, uint16(cmdFlashBackup), s.cap.Timing.FlashBackup); err != nil {
		return err
	}
	return s.checkDiag(s.cap.Diag.BackupErr, func(bits uint16) error {
		return &FlashBackupError{Status: bits}
	})
}

// InitialBackup restores the factory register settings.
func (s *Session) InitialBackup() error {
	if err := s.requireConfigMode("initial backup"); err != nil {
		return err
	}

	cmd := byte(0x10)
	if s.cap.Family != model.FamilyIMU {
		cmd = 0x04
	}
	regs := s.cap.Registers
	if err := s.tr.WriteRegister(regs.GlobCmd.Window, regs.GlobCmd.Addr, cmd); err != nil {
		return err
	}
	return s.pollClear(regs.GlobCmd, uint16(cmd), s.cap.Timing.FlashBackup)
}

// SoftReset restarts the device firmware. Settings not backed up to flash
// are lost, so the session must be configured again.
func (s *Session) SoftReset() error {
	if s.slept {
		return ErrInvalidCommand
	}

	regs := s.cap.Registers
	if err := s.tr.WriteRegister(regs.GlobCmd.Window, regs.GlobCmd.Addr, cmdSoftReset); err != nil {
		return err
	}
	s.clock.Sleep(s.cap.Timing.Reset)

	s.mode = ModeConfig
	s.configured = false
	s.schema = nil
	return nil
}

// SetBaudRate switches the device UART to a new rate. The caller must
// reopen the host port at the same rate afterwards. The setting takes effect
// after a flash backup and reset or power cycle.
func (s *Session) SetBaudRate(baud int) error {
	if err := s.requireConfigMode("set baud rate"); err != nil {
		return err
	}

	code, ok := s.cap.BaudRates[baud]
	if !ok {
		return &ConfigError{Setting: "baud rate", Value: baud}
	}
	reg := s.cap.Registers.UartCtrl
	return s.tr.WriteRegister(reg.Window, reg.High(), code)
}

// RegisterValue is one entry of a register dump.
type RegisterValue struct {
	Name   string
	Window byte
	Addr   byte
	Value  uint16
}

// DumpRegisters reads every register in the model's dump table.
func (s *Session) DumpRegisters() ([]RegisterValue, error) {
	if err := s.requireConfigMode("register dump"); err != nil {
		return nil, err
	}

	out := make([]RegisterValue, 0, len(s.cap.Dump))
	for _, nr := range s.cap.Dump {
		v, err := s.tr.ReadRegister(nr.Reg.Window, nr.Reg.Addr)
		if err != nil {
			return nil, err
		}
		out = append(out, RegisterValue{
			Name:   nr.Name,
			Window: nr.Reg.Window,
			Addr:   nr.Reg.Addr,
			Value:  v,
		})
	}
	return out, nil
}

// mscPhase writes an MSC_CTRL high-byte command and waits for the matching
// busy bits to clear.
func (s *Session) mscPhase(cmd byte, mask uint16, delay time.Duration) error {
	reg := s.cap.Registers.MscCtrl
	if err := s.tr.WriteRegister(reg.Window, reg.High(), cmd); err != nil {
		return err
	}
	return s.pollClear(reg, mask, delay)
}

// checkDiag reads DIAG_STAT, masks it, and wraps any set bits with mkErr.
func (s *Session) checkDiag(mask uint16, mkErr func(uint16) error) error {
	reg := s.cap.Registers.DiagStat
	diag, err := s.tr.ReadRegister(reg.Window, reg.Addr)
	if err != nil {
		return err
	}
	if bits := diag & mask; bits != 0 {
		return mkErr(bits)
	}
	return nil
}
