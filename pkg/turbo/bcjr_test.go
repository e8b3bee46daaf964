package turbo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSumExp(t *testing.T) {
	inf := math.Inf(-1)

	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"equal zeros", 0, 0, math.Ln2},
		{"one and zero", 1, 0, math.Log(math.E + 1)},
		{"large equal", 1000, 1000, 1000 + math.Ln2},
		{"large gap", 800, -800, 800},
		{"very negative", -1000, -1001, -1000 + math.Log1p(math.Exp(-1))},
		{"left -inf", inf, 3.5, 3.5},
		{"right -inf", -2, inf, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogSumExp(tt.a, tt.b)
			assert.False(t, math.IsNaN(got))
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.InDelta(t, got, LogSumExp(tt.b, tt.a), 1e-12, "must be symmetric")
		})
	}

	assert.True(t, math.IsInf(LogSumExp(inf, inf), -1))
}

// A naive probability-domain sum underflows here; the log domain must not.
func TestLogSumExpNoUnderflow(t *testing.T) {
	acc := math.Inf(-1)
	for i := 0; i < 1000; i++ {
		acc = LogSumExp(acc, -2000)
	}
	assert.InDelta(t, -2000+math.Log(1000), acc, 1e-9)
}

func TestComponentDecoderCleanChannel(t *testing.T) {
	tr := DefaultTrellis()
	msg := bitsOf([]byte("Hello, world! "))
	sys, par := EncodeRSC(msg, tr)

	ls := UnitReliability{}.Map(sys)
	lp := UnitReliability{}.Map(par)

	ext, err := NewComponentDecoder(tr).Decode(ls, lp, make([]float64, len(msg)))
	require.NoError(t, err)
	require.Len(t, ext, len(msg))

	for i := range msg {
		assert.False(t, math.IsNaN(ext[i]) || math.IsInf(ext[i], 0), "bit %d", i)
		assert.Equal(t, msg[i], HardDecision([]float64{ls[i] + ext[i]})[0], "bit %d", i)
	}
}

func TestComponentDecoderLongBlockStaysFinite(t *testing.T) {
	tr := DefaultTrellis()
	msg := make([]uint8, 20000)
	for i := range msg {
		msg[i] = uint8((i * 7 / 3) & 1)
	}
	sys, par := EncodeRSC(msg, tr)
	strong := ChannelReliability{Lc: 40}

	ext, err := NewComponentDecoder(tr).Decode(strong.Map(sys), strong.Map(par), make([]float64, len(msg)))
	require.NoError(t, err)
	for i, v := range ext {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "bit %d: %v", i, v)
	}
}

func TestComponentDecoderLengthMismatch(t *testing.T) {
	d := NewComponentDecoder(DefaultTrellis())
	_, err := d.Decode(make([]float64, 4), make([]float64, 3), make([]float64, 4))
	assert.Error(t, err)

	ext, err := d.Decode(nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, ext)
}
