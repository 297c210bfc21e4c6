package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCommand indicates an operation that is not legal in the
	// device's current mode, or a setting the model does not support.
	ErrInvalidCommand = errors.New("invalid command for device state")

	// ErrNotConfigured indicates sampling was requested before Configure.
	ErrNotConfigured = errors.New("device not configured")
)

// ConfigError reports a configuration value the model cannot accept. It is
// raised before any register write, so a failed Configure leaves the device
// untouched.
type ConfigError struct {
	Setting string
	Value   any
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("unsupported %s %v", e.Setting, e.Value)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidCommand }

// HardwareError carries the hard-error bits read from DIAG_STAT.
type HardwareError struct {
	Status uint16
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("hardware error, diagnostic bits %#04x", e.Status)
}

// SelfTestError carries the non-zero self-test result bits.
type SelfTestError struct {
	Status uint16
}

func (e *SelfTestError) Error() string {
	return fmt.Sprintf("self test failed, diagnostic bits %#04x", e.Status)
}

// FlashTestError indicates the flash memory test reported an error.
type FlashTestError struct {
	Status uint16
}

func (e *FlashTestError) Error() string {
	return fmt.Sprintf("flash test failed, diagnostic bits %#04x", e.Status)
}

// FlashBackupError indicates a flash backup did not complete cleanly.
type FlashBackupError struct {
	Status uint16
}

func (e *FlashBackupError) Error() string {
	return fmt.Sprintf("flash backup failed, diagnostic bits %#04x", e.Status)
}
