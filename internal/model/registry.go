package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownModel indicates the requested or detected product is not in the
// registry.
var ErrUnknownModel = errors.New("unknown device model")

// Shared IMU value tables. Individual models override where they differ.

var imuOutputRates = map[float64]byte{
	2000: 0x00, 1000: 0x01, 500: 0x02, 250: 0x03,
	125: 0x04, 62.5: 0x05, 31.25: 0x06, 15.625: 0x07,
	400: 0x08, 200: 0x09, 100: 0x0A, 80: 0x0B,
	50: 0x0C, 40: 0x0D, 25: 0x0E, 20: 0x0F,
}

// imuFiltersFC400 is the filter table with kaiser cutoffs up to 400 Hz,
// used by most IMU models. imuFiltersFC200 tops out at 200 Hz and is the
// G370 default table.
var imuFiltersFC400 = map[string]byte{
	"MV_AVG0": 0x00, "MV_AVG2": 0x01, "MV_AVG4": 0x02, "MV_AVG8": 0x03,
	"MV_AVG16": 0x04, "MV_AVG32": 0x05, "MV_AVG64": 0x06, "MV_AVG128": 0x07,
	"K32_FC50": 0x08, "K32_FC100": 0x09, "K32_FC200": 0x0A, "K32_FC400": 0x0B,
	"K64_FC50": 0x0C, "K64_FC100": 0x0D, "K64_FC200": 0x0E, "K64_FC400": 0x0F,
	"K128_FC50": 0x10, "K128_FC100": 0x11, "K128_FC200": 0x12, "K128_FC400": 0x13,
}

var imuFiltersFC200 = map[string]byte{
	"MV_AVG0": 0x00, "MV_AVG2": 0x01, "MV_AVG4": 0x02, "MV_AVG8": 0x03,
	"MV_AVG16": 0x04, "MV_AVG32": 0x05, "MV_AVG64": 0x06, "MV_AVG128": 0x07,
	"K32_FC25": 0x08, "K32_FC50": 0x09, "K32_FC100": 0x0A, "K32_FC200": 0x0B,
	"K64_FC25": 0x0C, "K64_FC50": 0x0D, "K64_FC100": 0x0E, "K64_FC200": 0x0F,
	"K128_FC25": 0x10, "K128_FC50": 0x11, "K128_FC100": 0x12, "K128_FC200": 0x13,
}

// imuAutoFilters picks a safe moving-average filter for each output rate when
// the caller does not request one.
var imuAutoFilters = map[float64]string{
	2000: "MV_AVG0", 1000: "MV_AVG2", 500: "MV_AVG4", 400: "MV_AVG8",
	250: "MV_AVG8", 200: "MV_AVG16", 125: "MV_AVG16", 100: "MV_AVG32",
	80: "MV_AVG32", 62.5: "MV_AVG32", 50: "MV_AVG64", 40: "MV_AVG64",
	31.25: "MV_AVG64", 25: "MV_AVG128", 20: "MV_AVG128", 15.625: "MV_AVG128",
}

var acclOutputRates = map[float64]byte{
	1000: 0x02, 500: 0x03, 200: 0x04, 100: 0x05, 50: 0x06,
}

var acclFilters = map[string]byte{
	"K64_FC83": 0x01, "K64_FC220": 0x02, "K128_FC36": 0x03,
	"K128_FC110": 0x04, "K128_FC350": 0x05, "K512_FC9": 0x06,
	"K512_FC16": 0x07, "K512_FC60": 0x08, "K512_FC210": 0x09,
	"K512_FC460": 0x0A, "UDF4": 0x0B, "UDF64": 0x0C,
	"UDF128": 0x0D, "UDF512": 0x0E,
}

var acclAutoFilters = map[float64]string{
	1000: "K512_FC460", 500: "K512_FC210", 200: "K512_FC60",
	100: "K512_FC16", 50: "K512_FC9",
}

var vibOutputSelect = map[string]byte{
	"VELOCITY_RAW": 0x00, "VELOCITY_RMS": 0x01, "VELOCITY_PP": 0x02,
	"DISP_RAW": 0x04, "DISP_RMS": 0x05, "DISP_PP": 0x06,
}

var imuDiag = Diag{HardErr: 0x0060, SelfTestErr: 0x7800, FlashErr: 0x0004, BackupErr: 0x0001}

// imuRegisters returns the register map shared by the IMU models.
func imuRegisters() Registers {
	return Registers{
		ModeCtrl:   RegisterRef{0, 0x02},
		DiagStat:   RegisterRef{0, 0x04},
		Flag:       RegisterRef{0, 0x06},
		GPIO:       RegisterRef{0, 0x08},
		Count:      RegisterRef{0, 0x0A},
		RangeOver:  RegisterRef{0, 0x0C},
		ID:         RegisterRef{0, 0x4C},
		SigCtrl:    RegisterRef{1, 0x00},
		MscCtrl:    RegisterRef{1, 0x02},
		SmplCtrl:   RegisterRef{1, 0x04},
		FilterCtrl: RegisterRef{1, 0x06},
		UartCtrl:   RegisterRef{1, 0x08},
		GlobCmd:    RegisterRef{1, 0x0A},
		BurstCtrl:  RegisterRef{1, 0x0C},
		BurstCtrl2: RegisterRef{1, 0x0E},
		PolCtrl:    RegisterRef{1, 0x10},
		DltCtrl:    RegisterRef{1, 0x12},
		AttiCtrl:   RegisterRef{1, 0x14},
		GlobCmd2:   RegisterRef{1, 0x16},
		ProdID: [4]RegisterRef{
			{1, 0x6A}, {1, 0x6C}, {1, 0x6E}, {1, 0x70},
		},
		Version: RegisterRef{1, 0x72},
		SerialNum: [4]RegisterRef{
			{1, 0x74}, {1, 0x76}, {1, 0x78}, {1, 0x7A},
		},
		WinCtrl: RegisterRef{0, 0x7E},
	}
}

// dumpList builds the register dump table from the populated references.
func dumpList(r Registers) []NamedRegister {
	candidates := []NamedRegister{
		{"MODE_CTRL", r.ModeCtrl},
		{"DIAG_STAT", r.DiagStat},
		{"DIAG_STAT2", r.DiagStat2},
		{"FLAG", r.Flag},
		{"GPIO", r.GPIO},
		{"COUNT", r.Count},
		{"RANGE_OVER", r.RangeOver},
		{"ID", r.ID},
		{"SIG_CTRL", r.SigCtrl},
		{"MSC_CTRL", r.MscCtrl},
		{"SMPL_CTRL", r.SmplCtrl},
		{"FILTER_CTRL", r.FilterCtrl},
		{"UART_CTRL", r.UartCtrl},
		{"GLOB_CMD", r.GlobCmd},
		{"BURST_CTRL1", r.BurstCtrl},
		{"BURST_CTRL2", r.BurstCtrl2},
		{"POL_CTRL", r.PolCtrl},
		{"DLT_CTRL", r.DltCtrl},
		{"ATTI_CTRL", r.AttiCtrl},
		{"GLOB_CMD2", r.GlobCmd2},
		{"PROD_ID1", r.ProdID[0]},
		{"PROD_ID2", r.ProdID[1]},
		{"PROD_ID3", r.ProdID[2]},
		{"PROD_ID4", r.ProdID[3]},
		{"VERSION", r.Version},
		{"SERIAL_NUM1", r.SerialNum[0]},
		{"SERIAL_NUM2", r.SerialNum[1]},
		{"SERIAL_NUM3", r.SerialNum[2]},
		{"SERIAL_NUM4", r.SerialNum[3]},
		{"WIN_CTRL", r.WinCtrl},
	}

	out := make([]NamedRegister, 0, len(candidates))
	for _, c := range candidates {
		if c.Reg.Zero() && c.Name != "MODE_CTRL" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func newG366PDG0() *Capability {
	regs := imuRegisters()
	return &Capability{
		ProductID:   "G366PDG0",
		Family:      FamilyIMU,
		Registers:   regs,
		Dump:        dumpList(regs),
		BaudRates:   map[int]byte{460800: 0x00, 230400: 0x01, 921600: 0x02},
		OutputRates: imuOutputRates,
		Filters:     imuFiltersFC400,
		AutoFilters: imuAutoFilters,
		ExtSelectors: map[string]byte{
			"GPIO": 0x00, "RESET": 0x01, "TYPEB": 0x03,
		},
		AttiProfiles: map[string]byte{"MODEA": 0x00, "MODEB": 0x01, "MODEC": 0x02},
		Scale: Scale{
			Gyro:     1.0 / 66,
			Accl:     1.0 / 4,
			TempC:    0.00390625,
			TempC25C: 0,
			DltA:     1.0 / 66 / 2000,
			DltV:     1.0 / 4 / 1000 / 2000 * 9.80665,
			Atti:     0.00699411,
			Qtn:      1.0 / 16384,
		},
		Timing: Timing{
			PowerOn:           800 * time.Millisecond,
			Reset:             800 * time.Millisecond,
			FlashTest:         30 * time.Millisecond,
			FlashBackup:       200 * time.Millisecond,
			SelfTest:          80 * time.Millisecond,
			FilterSetting:     time.Millisecond,
			AttiMotionSetting: time.Millisecond,
		},
		Diag: imuDiag,
		Features: Features{
			GPIO:       true,
			RangeOver:  true,
			Delta:      true,
			Attitude:   true,
			Quaternion: true,
			ARange:     true,
			ExtTrigger: true,
		},
	}
}

func newG370PDF1() *Capability {
	regs := imuRegisters()
	return &Capability{
		ProductID:   "G370PDF1",
		Family:      FamilyIMU,
		Registers:   regs,
		Dump:        dumpList(regs),
		BaudRates:   map[int]byte{460800: 0x00, 230400: 0x01, 921600: 0x02},
		OutputRates: imuOutputRates,
		Filters:     imuFiltersFC200,
		FiltersAlt:  imuFiltersFC400,
		AutoFilters: imuAutoFilters,
		ExtSelectors: map[string]byte{
			"GPIO": 0x00, "RESET": 0x01, "TYPEA": 0x02, "TYPEB": 0x03,
		},
		Scale: Scale{
			Gyro:     1.0 / 66,
			Accl:     1.0 / 2.5,
			TempC:    -0.0037918,
			TempC25C: 2634,
			DltA:     1.0 / 66 / 1000,
			DltV:     1.0 / 2.5 / 1000 / 1000 * 9.80665,
			Qtn:      1.0 / 16384,
		},
		Timing: Timing{
			PowerOn:       800 * time.Millisecond,
			Reset:         800 * time.Millisecond,
			FlashTest:     5 * time.Millisecond,
			FlashBackup:   200 * time.Millisecond,
			SelfTest:      150 * time.Millisecond,
			FilterSetting: time.Millisecond,
		},
		Diag: imuDiag,
		Features: Features{
			GPIO:       true,
			RangeOver:  true,
			Delta:      true,
			ExtTrigger: true,
		},
	}
}

func newG354() *Capability {
	regs := imuRegisters()
	// No RANGE_OVER, attitude, or second command register on this
	// generation.
	regs.RangeOver = RegisterRef{}
	regs.AttiCtrl = RegisterRef{}
	regs.GlobCmd2 = RegisterRef{}
	return &Capability{
		ProductID:   "G354",
		Family:      FamilyIMU,
		Registers:   regs,
		Dump:        dumpList(regs),
		BaudRates:   map[int]byte{460800: 0x00, 230400: 0x01},
		OutputRates: imuOutputRates,
		Filters:     imuFiltersFC400,
		AutoFilters: imuAutoFilters,
		ExtSelectors: map[string]byte{
			"GPIO": 0x00, "RESET": 0x01, "TYPEB": 0x02,
		},
		Scale: Scale{
			Gyro:     1.0 / 62.5,
			Accl:     1.0 / 5,
			TempC:    -0.0037918,
			TempC25C: 2634,
			DltA:     1.0 / 62.5 / 2000,
			DltV:     1.0 / 5 / 1000 / 2000 * 9.80665,
			Qtn:      1.0 / 16384,
		},
		Timing: Timing{
			PowerOn:       800 * time.Millisecond,
			Reset:         800 * time.Millisecond,
			FlashTest:     5 * time.Millisecond,
			FlashBackup:   200 * time.Millisecond,
			SelfTest:      80 * time.Millisecond,
			FilterSetting: time.Millisecond,
		},
		Diag: imuDiag,
		Features: Features{
			GPIO:       true,
			Delta:      true,
			ExtTrigger: true,
		},
	}
}

func newG570PR20() *Capability {
	regs := imuRegisters()
	return &Capability{
		ProductID: "G570PR20",
		Family:    FamilyIMU,
		Registers: regs,
		Dump:      dumpList(regs),
		BaudRates: map[int]byte{
			460800: 0x00, 230400: 0x01, 921600: 0x02,
			1000000: 0x03, 1500000: 0x04, 2000000: 0x05,
		},
		OutputRates: imuOutputRates,
		Filters:     imuFiltersFC400,
		AutoFilters: imuAutoFilters,
		Scale: Scale{
			Gyro:     1.0 / 66,
			Accl:     1.0 / 2,
			TempC:    0.00390625,
			TempC25C: 0,
			Qtn:      1.0 / 16384,
		},
		Timing: Timing{
			PowerOn:       5 * time.Second,
			Reset:         5 * time.Second,
			FlashTest:     30 * time.Millisecond,
			FlashBackup:   200 * time.Millisecond,
			SelfTest:      200 * time.Millisecond,
			FilterSetting: time.Millisecond,
		},
		Diag: imuDiag,
		Features: Features{
			GPIO:      true,
			RangeOver: true,
		},
	}
}

func newA352AD10() *Capability {
	regs := Registers{
		ModeCtrl:   RegisterRef{0, 0x02},
		DiagStat:   RegisterRef{0, 0x04},
		Flag:       RegisterRef{0, 0x06},
		Count:      RegisterRef{0, 0x0A},
		ID:         RegisterRef{0, 0x4C},
		SigCtrl:    RegisterRef{1, 0x00},
		MscCtrl:    RegisterRef{1, 0x02},
		SmplCtrl:   RegisterRef{1, 0x04},
		FilterCtrl: RegisterRef{1, 0x06},
		UartCtrl:   RegisterRef{1, 0x08},
		GlobCmd:    RegisterRef{1, 0x0A},
		BurstCtrl:  RegisterRef{1, 0x0C},
		ProdID: [4]RegisterRef{
			{1, 0x6A}, {1, 0x6C}, {1, 0x6E}, {1, 0x70},
		},
		Version: RegisterRef{1, 0x72},
		SerialNum: [4]RegisterRef{
			{1, 0x74}, {1, 0x76}, {1, 0x78}, {1, 0x7A},
		},
		WinCtrl: RegisterRef{0, 0x7E},
	}
	return &Capability{
		ProductID:   "A352AD10",
		Family:      FamilyAccel,
		Registers:   regs,
		Dump:        dumpList(regs),
		BaudRates:   map[int]byte{460800: 0x01, 230400: 0x02, 115200: 0x03},
		OutputRates: acclOutputRates,
		Filters:     acclFilters,
		AutoFilters: acclAutoFilters,
		Scale: Scale{
			Accl:  0.06e-3,
			TempC: -0.0037918,
			Tilt:  0.002e-6,
		},
		Timing: Timing{
			PowerOn:          900 * time.Millisecond,
			Reset:            970 * time.Millisecond,
			FlashBackup:      310 * time.Millisecond,
			SelfTest:         200 * time.Millisecond,
			SelfTestFlash:    5 * time.Millisecond,
			SelfTestSensAxis: 40 * time.Second,
			FilterSetting:    100 * time.Millisecond,
		},
		Diag: Diag{HardErr: 0x0060, SelfTestErr: 0xFFFF, FlashErr: 0x0004, BackupErr: 0x0001},
		Features: Features{
			Sleep:      true,
			ExtTrigger: true,
		},
	}
}

func newA342VD10() *Capability {
	regs := Registers{
		ModeCtrl:  RegisterRef{0, 0x02},
		DiagStat:  RegisterRef{0, 0x04},
		DiagStat2: RegisterRef{0, 0x0C},
		Flag:      RegisterRef{0, 0x06},
		Count:     RegisterRef{0, 0x0A},
		ID:        RegisterRef{0, 0x4C},
		SigCtrl:   RegisterRef{1, 0x00},
		MscCtrl:   RegisterRef{1, 0x02},
		SmplCtrl:  RegisterRef{1, 0x04},
		UartCtrl:  RegisterRef{1, 0x08},
		GlobCmd:   RegisterRef{1, 0x0A},
		BurstCtrl: RegisterRef{1, 0x0C},
		ProdID: [4]RegisterRef{
			{1, 0x6A}, {1, 0x6C}, {1, 0x6E}, {1, 0x70},
		},
		Version: RegisterRef{1, 0x72},
		SerialNum: [4]RegisterRef{
			{1, 0x74}, {1, 0x76}, {1, 0x78}, {1, 0x7A},
		},
		WinCtrl: RegisterRef{0, 0x7E},
	}
	return &Capability{
		ProductID: "A342VD10",
		Family:    FamilyVibration,
		Registers: regs,
		Dump:      dumpList(regs),
		BaudRates: map[int]byte{
			921600: 0x00, 460800: 0x01, 230400: 0x02, 115200: 0x03,
		},
		OutputSelect: vibOutputSelect,
		Scale: Scale{
			TempC: -0.0037918,
			Vel:   2.38e-4,
			Disp:  2.38e-4,
		},
		Timing: Timing{
			PowerOn:           900 * time.Millisecond,
			Reset:             970 * time.Millisecond,
			FlashBackup:       310 * time.Millisecond,
			SelfTest:          300 * time.Millisecond,
			SelfTestFlash:     5 * time.Millisecond,
			SelfTestResonance: 820 * time.Millisecond,
			OutputModeSetting: 118 * time.Millisecond,
		},
		Diag: Diag{HardErr: 0x00E0, SelfTestErr: 0xFFFF, FlashErr: 0x0004, BackupErr: 0x0001},
		Features: Features{
			Sleep: true,
		},
	}
}

// registry maps canonical product names to capability constructors. Fresh
// values are built per lookup so callers can hold them without sharing.
var registry = map[string]func() *Capability{
	"G366PDG0": newG366PDG0,
	"G370PDF1": newG370PDF1,
	"G354":     newG354,
	"G570PR20": newG570PR20,
	"A352AD10": newA352AD10,
	"A342VD10": newA342VD10,
}

// canonicalName folds product aliases onto their registry entry. The G330
// variants share the G366PDG0 silicon, and the G320/G354 generation is
// identified by its four-character prefix.
func canonicalName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	switch name {
	case "G330PDG0", "G330PDE0", "G366PDE0":
		return "G366PDG0"
	}
	if strings.HasPrefix(name, "G354") {
		return "G354"
	}
	return name
}

// Lookup returns the capability table for the named product.
func Lookup(name string) (*Capability, error) {
	build, ok := registry[canonicalName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return build(), nil
}

// Supported lists the canonical product names in the registry.
func Supported() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
