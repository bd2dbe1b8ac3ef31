package filters_test

import (
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-sync/algorithms/filters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, rate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func TestLowpassFilter_Response(t *testing.T) {
	lp, err := filters.NewLowpassFilter(48000, 4000, 1/math.Sqrt2)
	require.NoError(t, err)

	dc, _ := lp.GetFrequencyResponse(0)
	assert.InDelta(t, 1.0, dc, 1e-9)

	atCutoff, _ := lp.GetFrequencyResponse(4000)
	assert.InDelta(t, 1/math.Sqrt2, atCutoff, 1e-9)

	stop, _ := lp.GetFrequencyResponse(20000)
	assert.Less(t, stop, 0.05)

	// a step settles at unity gain
	out := lp.ProcessBuffer(make([]float64, 2000))
	assert.Zero(t, out[len(out)-1])
	step := make([]float64, 2000)
	for i := range step {
		step[i] = 1
	}
	out = lp.ProcessBuffer(step)
	assert.InDelta(t, 1.0, out[len(out)-1], 1e-9)

	lp.Reset()
	assert.InDelta(t, lp.ProcessBuffer([]float64{1})[0], out[0], 1e-12)
}

func TestLowpassFilter_InvalidParameters(t *testing.T) {
	cases := map[string][3]float64{
		"zero rate":      {0, 1000, 0.7},
		"zero cutoff":    {16000, 0, 0.7},
		"above nyquist":  {16000, 8000, 0.7},
		"non-positive q": {16000, 1000, 0},
	}
	for name, c := range cases {
		_, err := filters.NewLowpassFilter(int(c[0]), c[1], c[2])
		assert.Error(t, err, name)
	}

	for _, order := range []int{0, 3, -2} {
		_, err := filters.NewButterworthLowpass(48000, 7200, order)
		assert.Error(t, err, "order %d", order)
	}
}

func TestButterworthLowpass_Response(t *testing.T) {
	bw, err := filters.NewButterworthLowpass(48000, 7200, 8)
	require.NoError(t, err)

	for _, f := range []float64{100, 500, 2000} {
		m, _ := bw.GetFrequencyResponse(f)
		assert.InDelta(t, 1.0, m, 1e-3, "%g Hz", f)
	}

	atCutoff, _ := bw.GetFrequencyResponse(7200)
	assert.InDelta(t, 1/math.Sqrt2, atCutoff, 1e-9)

	stop, _ := bw.GetFrequencyResponse(12000)
	assert.Less(t, 20*math.Log10(stop), -40.0)
}

func TestAntiAlias_RemovesBandAboveTargetNyquist(t *testing.T) {
	const rate = 48000
	pure := sine(500, rate, rate/2)
	mixed := sine(12000, rate, rate/2)
	for i := range mixed {
		mixed[i] += pure[i]
	}

	out := filters.AntiAlias(mixed, rate, 16000)
	require.Len(t, out, len(mixed))

	// the forward-backward pass leaves the passband tone in phase
	worst := 0.0
	for i := 1000; i < len(out)-1000; i++ {
		worst = math.Max(worst, math.Abs(out[i]-pure[i]))
	}
	assert.Less(t, worst, 1e-4)
}

func TestAntiAlias_PassesThroughWithoutDownsampling(t *testing.T) {
	in := sine(12000, 48000, 480)

	assert.Equal(t, in, filters.AntiAlias(in, 48000, 48000))
	assert.Equal(t, in, filters.AntiAlias(in, 16000, 48000))
	assert.Empty(t, filters.AntiAlias(nil, 48000, 16000))
}

func TestButterworthLowpass_FilterZeroPhase(t *testing.T) {
	bw, err := filters.NewButterworthLowpass(48000, 7200, 4)
	require.NoError(t, err)

	assert.Empty(t, bw.FilterZeroPhase(nil, 10))
	assert.Len(t, bw.FilterZeroPhase([]float64{0.25}, 10), 1)

	// a long constant passes unchanged once the padding absorbs the transients
	constant := make([]float64, 2000)
	for i := range constant {
		constant[i] = 0.3
	}
	for i, v := range bw.FilterZeroPhase(constant, 100) {
		require.InDelta(t, 0.3, v, 1e-9, "sample %d", i)
	}
}
