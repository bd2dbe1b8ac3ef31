package filters

import (
	"fmt"
	"math"
)

// LowpassFilter implements a second-order digital low-pass filter using
// biquad topology.
//
// This implementation uses the cookbook formulas from Robert Bristow-Johnson's
// "Cookbook formulae for audio EQ biquad filter coefficients"
// Reference: https://webaudio.github.io/Audio-EQ-Cookbook/audio-eq-cookbook.html
type LowpassFilter struct {
	sampleRate int
	cutoff     float64 // -3 dB frequency in Hz for Q = 1/sqrt(2)
	qFactor    float64

	// Biquad coefficients, normalized so a0 = 1
	b0, b1, b2 float64
	a1, a2     float64

	// Direct form II state
	w1, w2 float64
}

// NewLowpassFilter creates a low-pass biquad. The cutoff must lie strictly
// between 0 and the Nyquist frequency and Q must be positive.
func NewLowpassFilter(sampleRate int, cutoff, qFactor float64) (*LowpassFilter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if cutoff <= 0 || cutoff >= float64(sampleRate)/2 {
		return nil, fmt.Errorf("cutoff must be between 0 and Nyquist frequency (%d Hz), got %g", sampleRate/2, cutoff)
	}
	if qFactor <= 0 {
		return nil, fmt.Errorf("q factor must be positive, got %g", qFactor)
	}

	lp := &LowpassFilter{
		sampleRate: sampleRate,
		cutoff:     cutoff,
		qFactor:    qFactor,
	}
	lp.computeCoefficients()
	return lp, nil
}

// computeCoefficients calculates the biquad coefficients using the cookbook formula.
func (lp *LowpassFilter) computeCoefficients() {
	// w0 = 2*pi*f0/Fs
	w0 := 2.0 * math.Pi * lp.cutoff / float64(lp.sampleRate)
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2.0 * lp.qFactor)

	a0 := 1.0 + alpha
	lp.b0 = (1.0 - cosW0) / 2.0 / a0
	lp.b1 = (1.0 - cosW0) / a0
	lp.b2 = (1.0 - cosW0) / 2.0 / a0
	lp.a1 = -2.0 * cosW0 / a0
	lp.a2 = (1.0 - alpha) / a0
}

// Process applies the filter to a single sample.
//
// The difference equation is:
// y[n] = b0*x[n] + b1*x[n-1] + b2*x[n-2] - a1*y[n-1] - a2*y[n-2]
func (lp *LowpassFilter) Process(input float64) float64 {
	// w[n] = x[n] - a1*w[n-1] - a2*w[n-2]
	w := input - lp.a1*lp.w1 - lp.a2*lp.w2

	// y[n] = b0*w[n] + b1*w[n-1] + b2*w[n-2]
	output := lp.b0*w + lp.b1*lp.w1 + lp.b2*lp.w2

	lp.w2 = lp.w1
	lp.w1 = w

	return output
}

// ProcessBuffer applies the filter to an entire buffer of samples.
func (lp *LowpassFilter) ProcessBuffer(input []float64) []float64 {
	output := make([]float64, len(input))
	for i, sample := range input {
		output[i] = lp.Process(sample)
	}
	return output
}

// Reset clears the filter's delay line.
func (lp *LowpassFilter) Reset() {
	lp.w1, lp.w2 = 0, 0
}

// GetFrequencyResponse computes the magnitude (linear) and phase (radians)
// response at the given frequency.
//
// H(e^jw) = (b0 + b1*e^-jw + b2*e^-j2w) / (1 + a1*e^-jw + a2*e^-j2w)
func (lp *LowpassFilter) GetFrequencyResponse(frequency float64) (magnitude, phase float64) {
	w := 2.0 * math.Pi * frequency / float64(lp.sampleRate)

	cosW, sinW := math.Cos(w), math.Sin(w)
	cos2W, sin2W := math.Cos(2*w), math.Sin(2*w)

	numReal := lp.b0 + lp.b1*cosW + lp.b2*cos2W
	numImag := -lp.b1*sinW - lp.b2*sin2W

	denReal := 1.0 + lp.a1*cosW + lp.a2*cos2W
	denImag := -lp.a1*sinW - lp.a2*sin2W

	denMagSq := denReal*denReal + denImag*denImag
	hReal := (numReal*denReal + numImag*denImag) / denMagSq
	hImag := (numImag*denReal - numReal*denImag) / denMagSq

	return math.Hypot(hReal, hImag), math.Atan2(hImag, hReal)
}

// ButterworthLowpass cascades biquad sections into an even-order
// Butterworth low-pass. Section k of an order-N design uses
// Q = 1 / (2*cos((2k+1)*pi / (2N))).
type ButterworthLowpass struct {
	sections []*LowpassFilter
}

// NewButterworthLowpass creates a Butterworth low-pass of the given even order
func NewButterworthLowpass(sampleRate int, cutoff float64, order int) (*ButterworthLowpass, error) {
	if order < 2 || order%2 != 0 {
		return nil, fmt.Errorf("butterworth order must be even and at least 2, got %d", order)
	}

	bw := &ButterworthLowpass{sections: make([]*LowpassFilter, order/2)}
	for k := range bw.sections {
		q := 1.0 / (2.0 * math.Cos(float64(2*k+1)*math.Pi/float64(2*order)))
		section, err := NewLowpassFilter(sampleRate, cutoff, q)
		if err != nil {
			return nil, err
		}
		bw.sections[k] = section
	}
	return bw, nil
}

// Process runs one sample through every section
func (bw *ButterworthLowpass) Process(input float64) float64 {
	for _, s := range bw.sections {
		input = s.Process(input)
	}
	return input
}

// Reset clears every section's state.
func (bw *ButterworthLowpass) Reset() {
	for _, s := range bw.sections {
		s.Reset()
	}
}

// GetFrequencyResponse multiplies the section magnitudes and sums their phases
func (bw *ButterworthLowpass) GetFrequencyResponse(frequency float64) (magnitude, phase float64) {
	magnitude = 1
	for _, s := range bw.sections {
		m, p := s.GetFrequencyResponse(frequency)
		magnitude *= m
		phase += p
	}
	return magnitude, phase
}

// FilterZeroPhase runs the cascade forward and then backward over input,
// squaring the magnitude response and cancelling its phase. Both ends are
// padded with an odd reflection of padLen samples to suppress start-up
// transients. The filter state is reset before each pass.
func (bw *ButterworthLowpass) FilterZeroPhase(input []float64, padLen int) []float64 {
	if len(input) == 0 {
		return []float64{}
	}
	padLen = max(0, min(padLen, len(input)-1))

	n := len(input)
	padded := make([]float64, n+2*padLen)
	for k := 1; k <= padLen; k++ {
		padded[padLen-k] = 2*input[0] - input[k]
		padded[padLen+n-1+k] = 2*input[n-1] - input[n-1-k]
	}
	copy(padded[padLen:], input)

	bw.Reset()
	for i, v := range padded {
		padded[i] = bw.Process(v)
	}
	bw.Reset()
	for i := len(padded) - 1; i >= 0; i-- {
		padded[i] = bw.Process(padded[i])
	}
	bw.Reset()

	out := make([]float64, n)
	copy(out, padded[padLen:padLen+n])
	return out
}

const (
	// AntiAliasCutoff is the anti-aliasing cutoff as a fraction of the target rate
	AntiAliasCutoff = 0.45

	// AntiAliasOrder is the order of each pass; the zero-phase response
	// attenuates like a Butterworth of twice this order.
	AntiAliasOrder = 8
)

// AntiAlias band-limits signal below the Nyquist frequency of targetRate
// ahead of decimation. Signals that are not being downsampled are returned
// as-is.
func AntiAlias(signal []float64, originalRate, targetRate int) []float64 {
	if len(signal) == 0 || targetRate <= 0 || targetRate >= originalRate {
		return signal
	}

	lp, err := NewButterworthLowpass(originalRate, AntiAliasCutoff*float64(targetRate), AntiAliasOrder)
	if err != nil {
		return signal
	}

	ratio := int(math.Ceil(float64(originalRate) / float64(targetRate)))
	return lp.FilterZeroPhase(signal, 3*AntiAliasOrder*ratio)
}
