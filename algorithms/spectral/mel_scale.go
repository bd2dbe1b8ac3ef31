package spectral

import (
	"math"
)

// MelScale provides mel frequency conversion utilities (HTK formula)
type MelScale struct{}

// NewMelScale creates a new mel scale converter
func NewMelScale() *MelScale {
	return &MelScale{}
}

// HzToMel converts frequency in Hz to mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// MelToHz converts mel scale to frequency in Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// CreateMelFilterBank creates numFilters triangular filters spaced evenly on
// the mel scale between lowFreq and highFreq. Each filter spans fftSize/2+1 bins.
func (ms *MelScale) CreateMelFilterBank(numFilters int, fftSize int, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	if numFilters <= 0 || fftSize <= 0 || sampleRate <= 0 {
		return nil
	}

	lowMel := ms.HzToMel(lowFreq)
	highMel := ms.HzToMel(highFreq)

	// numFilters+2 equally spaced mel points, converted to FFT bin indices
	binPoints := make([]int, numFilters+2)
	melStep := (highMel - lowMel) / float64(numFilters+1)
	for i := range binPoints {
		hz := ms.MelToHz(lowMel + float64(i)*melStep)
		bin := int(math.Floor((float64(fftSize)+1.0)*hz/float64(sampleRate) + 0.5))
		binPoints[i] = min(bin, fftSize/2)
	}

	filterBank := make([][]float64, numFilters)
	for i := range filterBank {
		filterBank[i] = make([]float64, fftSize/2+1)
	}

	for m := 1; m <= numFilters; m++ {
		leftBin := binPoints[m-1]
		centerBin := binPoints[m]
		rightBin := binPoints[m+1]
		filter := filterBank[m-1]

		// Rising edge
		for k := leftBin; k < centerBin && k < len(filter); k++ {
			filter[k] = float64(k-leftBin) / float64(centerBin-leftBin)
		}

		// Falling edge
		for k := centerBin; k < rightBin && k < len(filter); k++ {
			filter[k] = float64(rightBin-k) / float64(rightBin-centerBin)
		}

		// Filters narrower than one bin still pick up their centre bin
		if leftBin == centerBin && centerBin == rightBin && centerBin < len(filter) {
			filter[centerBin] = 1.0
		}
	}

	return filterBank
}

// ApplyFilterBank applies mel filter bank to power spectrum
func (ms *MelScale) ApplyFilterBank(powerSpectrum []float64, filterBank [][]float64) []float64 {
	if len(filterBank) == 0 || len(powerSpectrum) == 0 {
		return []float64{}
	}

	melSpectrum := make([]float64, len(filterBank))

	for i, filter := range filterBank {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(powerSpectrum); j++ {
			sum += powerSpectrum[j] * filter[j]
		}
		melSpectrum[i] = sum
	}

	return melSpectrum
}
