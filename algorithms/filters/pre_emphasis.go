package filters

import (
	"fmt"
)

// PreEmphasis implements a first-order high-pass used ahead of cepstral
// analysis of speech. It flattens the natural spectral roll-off of voiced
// speech so the upper mel bands carry comparable energy.
//
// The filter implements the transfer function:
// H(z) = 1 - α*z^-1
//
// With the difference equation:
// y[n] = x[n] - α*x[n-1]
//
// References:
//   - L.R. Rabiner, R.W. Schafer, "Digital Processing of Speech Signals",
//     Prentice-Hall, 1978, Chapter 4
type PreEmphasis struct {
	coefficient float64 // Pre-emphasis coefficient α
	lastSample  float64 // Previous input sample x[n-1]
}

// DefaultPreEmphasisCoefficient is the usual value for speech
const DefaultPreEmphasisCoefficient = 0.97

// NewPreEmphasis creates a pre-emphasis filter with the given coefficient.
// α must lie in [0, 1); zero makes the filter a pass-through.
func NewPreEmphasis(coefficient float64) (*PreEmphasis, error) {
	if coefficient < 0.0 || coefficient >= 1.0 {
		return nil, fmt.Errorf("pre-emphasis coefficient must be in [0, 1), got %f", coefficient)
	}
	return &PreEmphasis{coefficient: coefficient}, nil
}

// Process applies pre-emphasis filtering to a single sample.
func (pe *PreEmphasis) Process(input float64) float64 {
	output := input - pe.coefficient*pe.lastSample
	pe.lastSample = input
	return output
}

// ProcessBuffer applies pre-emphasis to an entire buffer of samples,
// continuing from the filter's current state.
func (pe *PreEmphasis) ProcessBuffer(input []float64) []float64 {
	output := make([]float64, len(input))
	for i, sample := range input {
		output[i] = pe.Process(sample)
	}
	return output
}

// Reset clears the filter's internal state.
// Call this when processing discontinuous audio segments.
func (pe *PreEmphasis) Reset() {
	pe.lastSample = 0.0
}

// Coefficient returns α
func (pe *PreEmphasis) Coefficient() float64 {
	return pe.coefficient
}
