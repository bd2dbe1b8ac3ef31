package spectral

import (
	"fmt"
	"math"
)

// logFloor keeps log() finite on silent bands
const logFloor = 1e-10

// MFCC computes Mel-Frequency Cepstral Coefficients
type MFCC struct {
	numCoefficients int
	numMelFilters   int
	sampleRate      int
	lowFreq         float64
	highFreq        float64
	useLiftering    bool
	lifterCoeff     float64

	melScale    *MelScale
	filterBank  [][]float64
	dctMatrix   [][]float64
	fftSize     int
	initialized bool
}

// MFCCParams contains parameters for MFCC computation
type MFCCParams struct {
	NumCoefficients int     `json:"num_coefficients"` // Number of MFCC coefficients (default: 13)
	NumMelFilters   int     `json:"num_mel_filters"`  // Number of mel filter bank filters (default: 26)
	LowFreq         float64 `json:"low_freq"`         // Low frequency bound (default: 0)
	HighFreq        float64 `json:"high_freq"`        // High frequency bound (default: sampleRate/2)
	UseLiftering    bool    `json:"use_liftering"`    // Apply liftering
	LifterCoeff     float64 `json:"lifter_coeff"`     // Liftering coefficient (default: 22)
}

// DefaultMFCCParams returns the usual speech settings: 13 coefficients,
// 26 filters over the full band, liftering at 22.
func DefaultMFCCParams(sampleRate int) MFCCParams {
	return MFCCParams{
		NumCoefficients: 13,
		NumMelFilters:   26,
		LowFreq:         0.0,
		HighFreq:        float64(sampleRate) / 2.0,
		UseLiftering:    true,
		LifterCoeff:     22.0,
	}
}

// NewMFCC creates a new MFCC computer with custom parameters.
// Zero-valued parameters take their defaults.
func NewMFCC(sampleRate int, params MFCCParams) *MFCC {
	if params.NumCoefficients <= 0 {
		params.NumCoefficients = 13
	}
	if params.NumMelFilters <= 0 {
		params.NumMelFilters = 26
	}
	if params.HighFreq <= 0 {
		params.HighFreq = float64(sampleRate) / 2.0
	}
	if params.LifterCoeff <= 0 {
		params.LifterCoeff = 22.0
	}

	return &MFCC{
		numCoefficients: params.NumCoefficients,
		numMelFilters:   params.NumMelFilters,
		sampleRate:      sampleRate,
		lowFreq:         params.LowFreq,
		highFreq:        params.HighFreq,
		useLiftering:    params.UseLiftering,
		lifterCoeff:     params.LifterCoeff,
		melScale:        NewMelScale(),
	}
}

// Initialize prepares the filter bank and DCT matrix for the given FFT size
func (mfcc *MFCC) Initialize(fftSize int) error {
	if fftSize <= 0 {
		return fmt.Errorf("invalid FFT size: %d", fftSize)
	}

	if mfcc.numCoefficients > mfcc.numMelFilters {
		return fmt.Errorf("%d coefficients requested from only %d mel filters", mfcc.numCoefficients, mfcc.numMelFilters)
	}

	mfcc.filterBank = mfcc.melScale.CreateMelFilterBank(
		mfcc.numMelFilters,
		fftSize,
		mfcc.sampleRate,
		mfcc.lowFreq,
		mfcc.highFreq,
	)

	if len(mfcc.filterBank) == 0 {
		return fmt.Errorf("failed to create mel filter bank")
	}

	mfcc.createDCTMatrix()

	mfcc.fftSize = fftSize
	mfcc.initialized = true
	return nil
}

// Compute calculates MFCC coefficients from one magnitude spectrum
func (mfcc *MFCC) Compute(magnitudeSpectrum []float64) ([]float64, error) {
	if len(magnitudeSpectrum) == 0 {
		return nil, fmt.Errorf("empty magnitude spectrum")
	}

	if !mfcc.initialized {
		return nil, fmt.Errorf("MFCC not initialized")
	}

	if len(magnitudeSpectrum) != mfcc.fftSize/2+1 {
		return nil, fmt.Errorf("spectrum has %d bins, expected %d", len(magnitudeSpectrum), mfcc.fftSize/2+1)
	}

	powerSpectrum := make([]float64, len(magnitudeSpectrum))
	for i, mag := range magnitudeSpectrum {
		powerSpectrum[i] = mag * mag
	}

	melSpectrum := mfcc.melScale.ApplyFilterBank(powerSpectrum, mfcc.filterBank)

	for i, mel := range melSpectrum {
		melSpectrum[i] = math.Log(math.Max(mel, logFloor))
	}

	coeffs := mfcc.applyDCT(melSpectrum)

	if mfcc.useLiftering {
		mfcc.applyLiftering(coeffs)
	}

	return coeffs, nil
}

// ComputeFrames processes every frame of a magnitude spectrogram
func (mfcc *MFCC) ComputeFrames(spectrogram [][]float64) ([][]float64, error) {
	if len(spectrogram) == 0 {
		return [][]float64{}, nil
	}

	if !mfcc.initialized {
		fftSize := (len(spectrogram[0]) - 1) * 2
		if err := mfcc.Initialize(fftSize); err != nil {
			return nil, fmt.Errorf("failed to initialize MFCC: %w", err)
		}
	}

	mfccFrames := make([][]float64, len(spectrogram))

	for t, magnitudeSpectrum := range spectrogram {
		coeffs, err := mfcc.Compute(magnitudeSpectrum)
		if err != nil {
			return nil, fmt.Errorf("failed to compute MFCC for frame %d: %w", t, err)
		}
		mfccFrames[t] = coeffs
	}

	return mfccFrames, nil
}

// createDCTMatrix creates the orthonormal DCT-II matrix
func (mfcc *MFCC) createDCTMatrix() {
	mfcc.dctMatrix = make([][]float64, mfcc.numCoefficients)

	for k := 0; k < mfcc.numCoefficients; k++ {
		mfcc.dctMatrix[k] = make([]float64, mfcc.numMelFilters)

		scale := math.Sqrt(2.0 / float64(mfcc.numMelFilters))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(mfcc.numMelFilters))
		}

		for n := 0; n < mfcc.numMelFilters; n++ {
			mfcc.dctMatrix[k][n] = scale * math.Cos(math.Pi*float64(k)*(float64(n)+0.5)/float64(mfcc.numMelFilters))
		}
	}
}

func (mfcc *MFCC) applyDCT(logMelSpectrum []float64) []float64 {
	coeffs := make([]float64, mfcc.numCoefficients)

	for k := 0; k < mfcc.numCoefficients; k++ {
		sum := 0.0
		for n := 0; n < len(logMelSpectrum) && n < len(mfcc.dctMatrix[k]); n++ {
			sum += logMelSpectrum[n] * mfcc.dctMatrix[k][n]
		}
		coeffs[k] = sum
	}

	return coeffs
}

// applyLiftering applies sinusoidal liftering in place; C0 is left alone
func (mfcc *MFCC) applyLiftering(coeffs []float64) {
	for i := 1; i < len(coeffs); i++ {
		coeffs[i] *= 1.0 + (mfcc.lifterCoeff/2.0)*math.Sin(math.Pi*float64(i)/mfcc.lifterCoeff)
	}
}
