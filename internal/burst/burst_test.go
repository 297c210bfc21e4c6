package burst

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epson-sensing/esensor/internal/model"
)

func mustLookup(t *testing.T, name string) *model.Capability {
	t.Helper()
	c, err := model.Lookup(name)
	require.NoError(t, err)
	return c
}

func TestFlagsFromRegistersIMU(t *testing.T) {
	f := FlagsFromRegisters(FamilyIMU, 0xF007, 0x3000)

	assert.True(t, f.NDFlags)
	assert.True(t, f.TempC)
	assert.True(t, f.Gyro)
	assert.True(t, f.Accl)
	assert.False(t, f.DltA)
	assert.True(t, f.GPIO)
	assert.True(t, f.Counter)
	assert.True(t, f.Checksum)
	assert.True(t, f.Gyro32)
	assert.True(t, f.Accl32)
	assert.False(t, f.TempC32)
}

func TestFlagsFromRegistersVibration(t *testing.T) {
	f := FlagsFromRegisters(FamilyVibration, 0x8701, 0)

	assert.True(t, f.NDFlags)
	assert.False(t, f.TempC)
	assert.True(t, f.AxisX)
	assert.True(t, f.AxisY)
	assert.True(t, f.AxisZ)
	assert.False(t, f.Counter)
	assert.True(t, f.Checksum)
}

func TestBuildIMUSchemaSize(t *testing.T) {
	g366 := mustLookup(t, "G366PDG0")

	tests := []struct {
		name      string
		flags     Flags
		wantNames []string
		wantSize  int
	}{
		{
			name: "mixed widths",
			flags: Flags{
				NDFlags: true,
				TempC:   true, TempC32: true,
				Gyro: true, Gyro32: true,
				Accl: true,
			},
			wantNames: []string{
				"ndflags", "tempc32",
				"gyro32_X", "gyro32_Y", "gyro32_Z",
				"accl_X", "accl_Y", "accl_Z",
			},
			wantSize: 26,
		},
		{
			name: "all 16-bit outputs",
			flags: Flags{
				NDFlags: true, TempC: true, Gyro: true, Accl: true,
				DltA: true, DltV: true, Qtn: true, Atti: true,
				GPIO: true, Counter: true, Checksum: true,
			},
			wantNames: []string{
				"ndflags", "tempc",
				"gyro_X", "gyro_Y", "gyro_Z",
				"accl_X", "accl_Y", "accl_Z",
				"dlta_X", "dlta_Y", "dlta_Z",
				"dltv_X", "dltv_Y", "dltv_Z",
				"qtn_0", "qtn_1", "qtn_2", "qtn_3",
				"atti_X", "atti_Y", "atti_Z",
				"gpio", "counter", "chksm",
			},
			wantSize: 50,
		},
		{
			name:      "gyro and accel only",
			flags:     Flags{Gyro: true, Accl: true},
			wantNames: []string{"gyro_X", "gyro_Y", "gyro_Z", "accl_X", "accl_Y", "accl_Z"},
			wantSize:  14,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Build(g366, tt.flags)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNames, s.FieldNames())
			assert.Equal(t, tt.wantSize, s.FrameSize)
		})
	}
}

func TestDecodeAndScaleIMU(t *testing.T) {
	g366 := mustLookup(t, "G366PDG0")
	s, err := Build(g366, Flags{
		NDFlags: true,
		TempC:   true, TempC32: true,
		Gyro: true, Gyro32: true,
		Accl: true,
	})
	require.NoError(t, err)
	require.Equal(t, 26, s.FrameSize)

	frame := []byte{
		0x80,
		0x00, 0xA5, // ndflags
		0x00, 0x01, 0x00, 0x00, // tempc32 = 65536
		0x00, 0x0A, 0x11, 0xA0, // gyro32_X = 660000
		0x00, 0x00, 0x00, 0x00, // gyro32_Y = 0
		0xFF, 0xF5, 0xEE, 0x60, // gyro32_Z = -660000
		0x0F, 0xA0, // accl_X = 4000
		0xF0, 0x60, // accl_Y = -4000
		0x00, 0x02, // accl_Z = 2
		0x0D,
	}

	values, err := Decode(s, frame)
	require.NoError(t, err)
	assert.Equal(t, []int64{165, 65536, 660000, 0, -660000, 4000, -4000, 2}, values)

	sample := Scale(s, g366, ScaleOptions{}, values)
	want := Sample{
		Fields: s.FieldNames(),
		Values: []float64{
			165,
			25.0039,     // 65536 counts of 1/256 degC over 16.16
			0.15258789,  // 660000 / 66 / 65536
			0,
			-0.15258789,
			1000, // 4000 counts at 1/4 mG
			-1000,
			0.5,
		},
	}
	if diff := cmp.Diff(want, sample, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("scaled sample mismatch (-want +got):\n%s", diff)
	}
}

func TestScaleARangeDoubles(t *testing.T) {
	g366 := mustLookup(t, "G366PDG0")
	s, err := Build(g366, Flags{Accl: true})
	require.NoError(t, err)

	values := []int64{4000, 0, 0}
	normal := Scale(s, g366, ScaleOptions{}, values)
	doubled := Scale(s, g366, ScaleOptions{ARange: true}, values)

	assert.InDelta(t, 1000, normal.Values[0], 1e-9)
	assert.InDelta(t, 2000, doubled.Values[0], 1e-9)
}

func TestScaleARangeIgnoredWithoutSupport(t *testing.T) {
	g370 := mustLookup(t, "G370PDF1")
	s, err := Build(g370, Flags{Accl: true})
	require.NoError(t, err)

	values := []int64{2500, 0, 0}
	sample := Scale(s, g370, ScaleOptions{ARange: true}, values)
	assert.InDelta(t, 1000, sample.Values[0], 1e-9)
}

func TestScaleDeltaRangeExponent(t *testing.T) {
	g366 := mustLookup(t, "G366PDG0")
	s, err := Build(g366, Flags{DltA: true})
	require.NoError(t, err)

	values := []int64{1000, 0, 0}
	// SF_DLTA = (1/66)/2000; range 12 multiplies by 4096.
	sample := Scale(s, g366, ScaleOptions{DltARange: 12}, values)
	assert.InDelta(t, 31.030303, sample.Values[0], 1e-6)
}

func TestDecodeRejectsCorruptedFrames(t *testing.T) {
	g366 := mustLookup(t, "G366PDG0")
	s, err := Build(g366, Flags{Counter: true})
	require.NoError(t, err)
	require.Equal(t, 4, s.FrameSize)

	// Wrong marker.
	_, err = Decode(s, []byte{0x81, 0x00, 0x01, 0x0D})
	assert.ErrorIs(t, err, ErrCorruptedFrame)

	// Missing delimiter.
	_, err = Decode(s, []byte{0x80, 0x00, 0x01, 0x0E})
	assert.ErrorIs(t, err, ErrCorruptedFrame)

	// Short frame.
	_, err = Decode(s, []byte{0x80, 0x00, 0x0D})
	assert.ErrorIs(t, err, ErrCorruptedFrame)

	// Valid frame still decodes after the failures.
	values, err := Decode(s, []byte{0x80, 0x00, 0x01, 0x0D})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, values)
}

func TestBuildAccelTiltRename(t *testing.T) {
	a352 := mustLookup(t, "A352AD10")
	s, err := Build(a352, Flags{
		TempC: true,
		AxisX: true, AxisY: true, AxisZ: true,
		TiltY:   true,
		Counter: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"tempc", "acclx", "tilty", "acclz", "counter"}, s.FieldNames())
	assert.Equal(t, 20, s.FrameSize)
}

func TestDecodeAndScaleAccel(t *testing.T) {
	a352 := mustLookup(t, "A352AD10")
	s, err := Build(a352, Flags{
		TempC: true,
		AxisX: true, AxisY: true, AxisZ: true,
		TiltY:   true,
		Counter: true,
	})
	require.NoError(t, err)

	values := []int64{-1000, 1000000, 50000000, -16667, 123}
	sample := Scale(s, a352, ScaleOptions{}, values)

	want := []float64{
		38.7788,  // -1000 * -0.0037918 + 34.987
		60,       // 1000000 * 0.06e-3
		0.1,      // 50000000 * 0.002e-6
		-1.00002, // -16667 * 0.06e-3
		123,
	}
	for i, w := range want {
		assert.InDelta(t, w, sample.Values[i], 1e-9, "field %s", sample.Fields[i])
	}
}

func TestVibrationSchemaAndDecode(t *testing.T) {
	a342 := mustLookup(t, "A342VD10")
	s, err := Build(a342, Flags{
		TempC:  true,
		Temp16: false,
		AxisX:  true, AxisY: true, AxisZ: true,
		Counter: true, Checksum: true,
		OutputSelect: "VELOCITY_RMS",
	})
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"tempc8", "exi-alrm-cnt", "velx", "vely", "velz", "counter", "chksm"},
		s.FieldNames())
	assert.Equal(t, 17, s.FrameSize)

	frame := []byte{
		0x80,
		0x9F,             // tempc8 = -97
		0x03,             // exi-alrm-cnt
		0xFF, 0xFF, 0xFE, // velx = -2
		0x00, 0x00, 0x01, // vely = 1
		0x7F, 0xFF, 0xFF, // velz = 8388607
		0x00, 0x10, // counter = 16
		0xAB, 0xCD, // chksm
		0x0D,
	}

	values, err := Decode(s, frame)
	require.NoError(t, err)
	assert.Equal(t, []int64{-97, 3, -2, 1, 8388607, 16, 43981}, values)

	sample := Scale(s, a342, ScaleOptions{}, values)
	want := []float64{
		129.145, // -97 * -0.0037918 * 256 + 34.987
		3,
		-0.000476,   // -2 * 2.38e-4
		0.000238,    // 1 * 2.38e-4
		1996.488466, // 8388607 * 2.38e-4
		16,
		43981,
	}
	for i, w := range want {
		assert.InDelta(t, w, sample.Values[i], 1e-6, "field %s", sample.Fields[i])
	}
}

func TestVibrationDisplacementNaming(t *testing.T) {
	a342 := mustLookup(t, "A342VD10")
	s, err := Build(a342, Flags{
		AxisX: true, AxisZ: true,
		OutputSelect: "DISP_PP",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"dispx", "dispz"}, s.FieldNames())
	assert.Equal(t, 8, s.FrameSize)
}

func TestVibration16BitTemperature(t *testing.T) {
	a342 := mustLookup(t, "A342VD10")
	s, err := Build(a342, Flags{
		TempC:        true,
		Temp16:       true,
		AxisX:        true,
		OutputSelect: "VELOCITY_RAW",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"tempc", "velx"}, s.FieldNames())

	values, err := Decode(s, []byte{0x80, 0x30, 0x00, 0x00, 0x00, 0x01, 0x0D})
	require.NoError(t, err)
	assert.Equal(t, []int64{0x3000, 1}, values)

	sample := Scale(s, a342, ScaleOptions{}, values)
	// 0x3000 = 12288 counts, unsigned.
	assert.InDelta(t, 12288*-0.0037918+34.987, sample.Values[0], 1e-9)
}
