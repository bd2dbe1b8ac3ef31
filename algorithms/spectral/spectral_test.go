package spectral_test

import (
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-sync/algorithms/spectral"
	"github.com/RyanBlaney/sonido-sync/algorithms/windowing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func TestNextPowerOfTwo(t *testing.T) {
	assert.Equal(t, 1, spectral.NextPowerOfTwo(0))
	assert.Equal(t, 1, spectral.NextPowerOfTwo(1))
	assert.Equal(t, 512, spectral.NextPowerOfTwo(400))
	assert.Equal(t, 512, spectral.NextPowerOfTwo(512))
}

func TestSTFT_PeakBin(t *testing.T) {
	const sampleRate = 16000
	// 1 kHz lands exactly on bin 32 of a 512-point FFT at 16 kHz
	signal := sine(1000, sampleRate, 4000)

	window := windowing.New(windowing.Hann, 400, false)
	res, err := spectral.NewSTFT().Compute(signal, 400, 160, 512, 10, sampleRate, window)
	require.NoError(t, err)
	require.Equal(t, 10, res.TimeFrames)
	require.Equal(t, 257, res.FreqBins)

	peak := 0
	for i, v := range res.Magnitude[3] {
		if v > res.Magnitude[3][peak] {
			peak = i
		}
	}
	assert.Equal(t, 32, peak)
	assert.InDelta(t, 31.25, res.FreqResolution, 1e-9)
	assert.InDelta(t, 0.01, res.TimeResolution, 1e-12)
}

func TestSTFT_TailFramesAreZeroPadded(t *testing.T) {
	signal := make([]float64, 100)
	for i := range signal {
		signal[i] = 1
	}

	res, err := spectral.NewSTFT().Compute(signal, 64, 32, 64, 5, 8000, nil)
	require.NoError(t, err)
	// frame 4 starts at sample 128, entirely past the signal
	for _, v := range res.Magnitude[4] {
		assert.Zero(t, v)
	}
	// DC of the full first frame equals the frame length
	assert.InDelta(t, 64, res.Magnitude[0][0], 1e-9)
}

func TestSTFT_InvalidArguments(t *testing.T) {
	stft := spectral.NewSTFT()
	_, err := stft.Compute(nil, 64, 32, 64, 1, 8000, nil)
	assert.Error(t, err)
	_, err = stft.Compute([]float64{1}, 64, 0, 64, 1, 8000, nil)
	assert.Error(t, err)
	_, err = stft.Compute([]float64{1}, 64, 32, 32, 1, 8000, nil)
	assert.Error(t, err)
}

func TestMelScale_RoundTrip(t *testing.T) {
	ms := spectral.NewMelScale()
	for _, hz := range []float64{0, 300, 1000, 4000, 8000} {
		assert.InDelta(t, hz, ms.MelToHz(ms.HzToMel(hz)), 1e-6)
	}
	assert.InDelta(t, 1000, ms.HzToMel(1000), 0.1)
}

func TestMelScale_FilterBankShape(t *testing.T) {
	bank := spectral.NewMelScale().CreateMelFilterBank(26, 512, 16000, 0, 8000)
	require.Len(t, bank, 26)
	for i, filter := range bank {
		require.Len(t, filter, 257)
		peak := 0.0
		for _, v := range filter {
			assert.GreaterOrEqual(t, v, 0.0)
			peak = math.Max(peak, v)
		}
		assert.InDelta(t, 1.0, peak, 1e-9, "filter %d should peak at 1", i)
	}
}

func TestMFCC_ComputeFrames(t *testing.T) {
	const sampleRate = 16000
	signal := sine(440, sampleRate, 8000)
	window := windowing.New(windowing.Hamming, 400, false)
	spec, err := spectral.NewSTFT().Compute(signal, 400, 160, 512, 40, sampleRate, window)
	require.NoError(t, err)

	mfcc := spectral.NewMFCC(sampleRate, spectral.DefaultMFCCParams(sampleRate))
	frames, err := mfcc.ComputeFrames(spec.Magnitude)
	require.NoError(t, err)
	require.Len(t, frames, 40)

	for _, frame := range frames {
		require.Len(t, frame, 13)
		for _, c := range frame {
			assert.False(t, math.IsNaN(c) || math.IsInf(c, 0))
		}
	}

	// a steady tone gives (nearly) identical interior frames
	for k := range frames[5] {
		assert.InDelta(t, frames[5][k], frames[10][k], 1e-6)
	}

	again, err := spectral.NewMFCC(sampleRate, spectral.DefaultMFCCParams(sampleRate)).ComputeFrames(spec.Magnitude)
	require.NoError(t, err)
	assert.Equal(t, frames, again)
}

func TestMFCC_TooManyCoefficients(t *testing.T) {
	mfcc := spectral.NewMFCC(16000, spectral.MFCCParams{NumCoefficients: 40, NumMelFilters: 26})
	assert.Error(t, mfcc.Initialize(512))
}
