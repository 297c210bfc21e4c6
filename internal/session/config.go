package session

import (
	"strings"

	"github.com/epson-sensing/esensor/internal/model"
)

// Config describes the desired device setup. Zero values select the device
// defaults; fields a family does not have are ignored for that family.
type Config struct {
	// OutputRate is the sample rate in sps for IMU and accelerometer
	// models. On vibration sensors it is the RMS/peak-to-peak output rate
	// setting (1-255) and is ignored in the RAW output modes.
	OutputRate float64

	// Filter selects the output filter by name. Empty picks the model's
	// recommended filter for the output rate.
	Filter string

	// Burst content enables.
	NDFlags  bool
	TempC    bool
	Counter  bool
	Checksum bool

	// AutoStart makes the device enter sampling mode on power-up. UartAuto
	// makes it stream bursts without per-sample trigger commands.
	AutoStart bool
	UartAuto  bool

	// Bit32 selects 32-bit output resolution, IMU only.
	Bit32 bool

	// ARange selects the extended accelerometer range on models that
	// support it.
	ARange bool

	// Delta angle/velocity settings, IMU only.
	DltA      bool
	DltV      bool
	DltARange int
	DltVRange int

	// Attitude and quaternion settings, IMU only. Mutually exclusive with
	// the delta function.
	Atti        bool
	Qtn         bool
	AttiEuler   bool
	AttiConv    int
	AttiProfile string

	// ExtSel names the EXT pin function on IMU models. Empty leaves the
	// pin as GPIO. On accelerometers any non-empty value enables the
	// external trigger.
	ExtSel string

	// Tilt output per axis, accelerometer only.
	TiltX bool
	TiltY bool
	TiltZ bool

	// Vibration settings. OutputSelect picks the velocity/displacement
	// mode, UpdateRate the RMS/peak-to-peak update interval (0-15), Temp16
	// the 16-bit temperature format, ExtActiveLow the EXT pin polarity.
	// SensX/Y/Z enable the measurement axes; all false enables all three.
	OutputSelect string
	UpdateRate   int
	Temp16       bool
	ExtActiveLow bool
	SensX        bool
	SensY        bool
	SensZ        bool
}

// resolved holds the register bytes derived from a validated Config.
type resolved struct {
	rateByte   byte
	filterByte byte

	extByte byte
	hasExt  bool

	uartByte byte

	attiProfileByte byte
	hasAttiProfile  bool

	tiltMask byte

	outputSelName string
	outputSelByte byte
	rawMode       bool
	doutRMSPP     byte
	updateRMSPP   byte
	sensX         bool
	sensY         bool
	sensZ         bool
}

// resolve validates cfg against the model capability and computes the
// register values. It performs no I/O.
func resolve(c *model.Capability, cfg Config) (resolved, error) {
	var r resolved
	r.uartByte = boolByte(cfg.AutoStart)<<1 | boolByte(cfg.UartAuto)

	switch c.Family {
	case model.FamilyVibration:
		return resolveVibration(c, cfg, r)
	default:
		return resolveRated(c, cfg, r)
	}
}

// resolveRated covers the IMU and accelerometer families, which share the
// rate/filter tables.
func resolveRated(c *model.Capability, cfg Config, r resolved) (resolved, error) {
	rateByte, ok := c.OutputRates[cfg.OutputRate]
	if !ok {
		return r, &ConfigError{Setting: "output rate", Value: cfg.OutputRate}
	}
	r.rateByte = rateByte

	name := strings.ToUpper(cfg.Filter)
	if name == "" {
		name = c.AutoFilters[cfg.OutputRate]
	}
	filterByte, ok := c.Filters[name]
	if !ok {
		filterByte, ok = c.FiltersAlt[name]
	}
	if !ok {
		return r, &ConfigError{Setting: "filter", Value: cfg.Filter}
	}
	r.filterByte = filterByte

	if c.Family == model.FamilyAccel {
		if cfg.ExtSel != "" && !c.Features.ExtTrigger {
			return r, &ConfigError{Setting: "external trigger", Value: cfg.ExtSel}
		}
		r.hasExt = cfg.ExtSel != ""
		if r.hasExt {
			r.extByte = 1
		}
		r.tiltMask = boolByte(cfg.TiltX)<<2 | boolByte(cfg.TiltY)<<1 | boolByte(cfg.TiltZ)
		return r, nil
	}

	// IMU EXT pin function. Models without the pin have no selector table.
	if len(c.ExtSelectors) > 0 {
		sel := strings.ToUpper(cfg.ExtSel)
		if sel == "" {
			sel = "GPIO"
		}
		extByte, ok := c.ExtSelectors[sel]
		if !ok {
			return r, &ConfigError{Setting: "EXT selector", Value: cfg.ExtSel}
		}
		r.extByte = extByte
		r.hasExt = true
	} else if cfg.ExtSel != "" {
		return r, &ConfigError{Setting: "EXT selector", Value: cfg.ExtSel}
	}

	if cfg.ARange && !c.Features.ARange {
		return r, &ConfigError{Setting: "A_RANGE", Value: cfg.ARange}
	}
	if (cfg.DltA || cfg.DltV) && !c.Features.Delta {
		return r, &ConfigError{Setting: "delta function", Value: true}
	}
	if cfg.DltARange < 0 || cfg.DltARange > 15 {
		return r, &ConfigError{Setting: "delta angle range", Value: cfg.DltARange}
	}
	if cfg.DltVRange < 0 || cfg.DltVRange > 15 {
		return r, &ConfigError{Setting: "delta velocity range", Value: cfg.DltVRange}
	}

	if cfg.Atti && !c.Features.Attitude {
		return r, &ConfigError{Setting: "attitude output", Value: cfg.Atti}
	}
	if cfg.Qtn && !c.Features.Quaternion {
		return r, &ConfigError{Setting: "quaternion output", Value: cfg.Qtn}
	}
	if (cfg.Atti || cfg.Qtn) && (cfg.DltA || cfg.DltV) {
		return r, &ConfigError{Setting: "attitude with delta function", Value: true}
	}
	if cfg.AttiConv < 0 || cfg.AttiConv > 23 {
		return r, &ConfigError{Setting: "attitude conversion", Value: cfg.AttiConv}
	}
	if cfg.AttiProfile != "" {
		profile, ok := c.AttiProfiles[strings.ToUpper(cfg.AttiProfile)]
		if !ok {
			return r, &ConfigError{Setting: "attitude profile", Value: cfg.AttiProfile}
		}
		r.attiProfileByte = profile
		r.hasAttiProfile = true
	}
	return r, nil
}

func resolveVibration(c *model.Capability, cfg Config, r resolved) (resolved, error) {
	name := strings.ToUpper(cfg.OutputSelect)
	if name == "" {
		name = "VELOCITY_RMS"
	}
	selByte, ok := c.OutputSelect[name]
	if !ok {
		return r, &ConfigError{Setting: "output select", Value: cfg.OutputSelect}
	}
	r.outputSelName = name
	r.outputSelByte = selByte
	r.rawMode = strings.HasSuffix(name, "_RAW")

	if !r.rawMode {
		dout := int(cfg.OutputRate)
		if dout < 1 || dout > 255 {
			return r, &ConfigError{Setting: "output rate", Value: cfg.OutputRate}
		}
		if cfg.UpdateRate < 0 || cfg.UpdateRate > 15 {
			return r, &ConfigError{Setting: "update rate", Value: cfg.UpdateRate}
		}
		r.doutRMSPP = byte(dout)
		r.updateRMSPP = byte(cfg.UpdateRate)
	}

	r.sensX, r.sensY, r.sensZ = cfg.SensX, cfg.SensY, cfg.SensZ
	if !r.sensX && !r.sensY && !r.sensZ {
		r.sensX, r.sensY, r.sensZ = true, true, true
	}
	return r, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
