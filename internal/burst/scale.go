package burst

import (
	"math"

	"github.com/epson-sensing/esensor/internal/model"
)

// Sample is one decoded and unit-converted burst. Fields and Values are
// parallel slices in wire order. A zero Sample means no data was produced.
type Sample struct {
	Fields []string
	Values []float64
}

// Empty reports whether the sample carries no data.
func (s Sample) Empty() bool {
	return len(s.Fields) == 0
}

// ScaleOptions carries the session settings that modify scale factors.
type ScaleOptions struct {
	// ARange doubles the accelerometer and delta velocity factors on
	// models with the extended range.
	ARange bool

	// DltARange and DltVRange are the delta function range exponents.
	DltARange int
	DltVRange int
}

// Scale converts decoded counts to physical units using the model's scale
// constants. Status words, counters, and checksums pass through unchanged.
func Scale(s *Schema, c *model.Capability, opts ScaleOptions, values []int64) Sample {
	sfAccl := c.Scale.Accl
	sfDltV := c.Scale.DltV
	if opts.ARange && c.Features.ARange {
		sfAccl *= 2
		sfDltV *= 2
	}
	sfDltA := c.Scale.DltA * math.Pow(2, float64(opts.DltARange))
	sfDltV *= math.Pow(2, float64(opts.DltVRange))

	out := Sample{
		Fields: s.FieldNames(),
		Values: make([]float64, len(values)),
	}

	for i, comp := range s.Components {
		x := float64(values[i])
		var v float64

		switch comp.Kind {
		case KindTempC:
			v = scaleTempC(s.Family, c, comp, x)
		case KindTempC8:
			v = roundTo(x*c.Scale.TempC*256+34.987, 4)
		case KindGyro:
			v = scaleVector(comp, x, c.Scale.Gyro)
		case KindAccl:
			if s.Family == FamilyAccel {
				// 32-bit counts are full scale on this family.
				v = roundTo(x*sfAccl, 6)
			} else {
				v = scaleVector(comp, x, sfAccl)
			}
		case KindDltA:
			v = scaleVector(comp, x, sfDltA)
		case KindDltV:
			v = scaleVector(comp, x, sfDltV)
		case KindQtn:
			v = scaleVector(comp, x, c.Scale.Qtn)
		case KindAtti:
			v = scaleVector(comp, x, c.Scale.Atti)
		case KindTilt:
			v = roundTo(x*c.Scale.Tilt, 6)
		case KindVel:
			v = roundTo(x*c.Scale.Vel, 8)
		case KindDisp:
			v = roundTo(x*c.Scale.Disp, 8)
		default:
			// ndflags, gpio, counter, chksm, exi-alrm-cnt.
			v = x
		}
		out.Values[i] = v
	}
	return out
}

// scaleTempC applies the family-specific temperature conversion.
func scaleTempC(family model.Family, c *model.Capability, comp Component, x float64) float64 {
	switch family {
	case FamilyIMU:
		if comp.Width == 4 {
			return roundTo((x-c.Scale.TempC25C*65536)*c.Scale.TempC/65536+25, 4)
		}
		return roundTo((x-c.Scale.TempC25C)*c.Scale.TempC+25, 4)
	default:
		// Accelerometer and vibration models share a fixed offset.
		return roundTo(x*c.Scale.TempC+34.987, 4)
	}
}

// scaleVector converts a motion component. 32-bit outputs are 16.16 fixed
// point, so the factor shifts down by 65536.
func scaleVector(comp Component, x, sf float64) float64 {
	if comp.Width == 4 {
		return roundTo(x*sf/65536, 8)
	}
	return roundTo(x*sf, 6)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
