package windowing

import (
	"fmt"
	"math"
	"strings"
)

// Type selects the window shape.
type Type int

const (
	Hann Type = iota
	Hamming
	Rectangular
	Blackman
	BlackmanHarris
	Bartlett
)

func (t Type) String() string {
	switch t {
	case Hann:
		return "hann"
	case Hamming:
		return "hamming"
	case Rectangular:
		return "rectangular"
	case Blackman:
		return "blackman"
	case BlackmanHarris:
		return "blackman_harris"
	case Bartlett:
		return "bartlett"
	default:
		return "unknown"
	}
}

// ParseType maps a window name to its Type.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hann", "hanning":
		return Hann, nil
	case "hamming", "":
		return Hamming, nil
	case "rectangular", "rect", "none":
		return Rectangular, nil
	case "blackman":
		return Blackman, nil
	case "blackman_harris", "blackman-harris", "blackmanharris":
		return BlackmanHarris, nil
	case "bartlett", "triangular":
		return Bartlett, nil
	default:
		return Hann, fmt.Errorf("unknown window type: %q", name)
	}
}

// Window holds precomputed coefficients for one window shape and size.
// Coefficients are read-only after construction, so one Window may be
// shared by concurrent STFT workers.
type Window struct {
	kind         Type
	size         int
	symmetric    bool
	coefficients []float64
}

// New creates a window of the given shape. Symmetric windows divide by
// size-1 (filter design); periodic windows divide by size (spectral analysis).
func New(kind Type, size int, symmetric bool) *Window {
	w := &Window{
		kind:      kind,
		size:      size,
		symmetric: symmetric,
	}
	w.generate()
	return w
}

func (w *Window) generate() {
	w.coefficients = make([]float64, w.size)

	denominator := float64(w.size)
	if w.symmetric {
		denominator = float64(w.size - 1)
	}
	if denominator <= 0 {
		denominator = 1
	}

	for i := range w.size {
		phase := 2 * math.Pi * float64(i) / denominator
		switch w.kind {
		case Hann:
			w.coefficients[i] = 0.5 * (1.0 - math.Cos(phase))
		case Hamming:
			w.coefficients[i] = 0.54 - 0.46*math.Cos(phase)
		case Blackman:
			w.coefficients[i] = 0.42 - 0.5*math.Cos(phase) + 0.08*math.Cos(2*phase)
		case BlackmanHarris:
			w.coefficients[i] = 0.35875 - 0.48829*math.Cos(phase) + 0.14128*math.Cos(2*phase) - 0.01168*math.Cos(3*phase)
		case Bartlett:
			w.coefficients[i] = 1 - math.Abs(2*float64(i)/denominator-1)
		default:
			w.coefficients[i] = 1.0
		}
	}
}

// Apply applies the window to a signal (creates new array)
func (w *Window) Apply(signal []float64) []float64 {
	if len(signal) != w.size {
		return nil
	}

	windowed := make([]float64, w.size)
	for i := range w.size {
		windowed[i] = signal[i] * w.coefficients[i]
	}

	return windowed
}

// ApplyInPlace applies the window to a signal in-place
func (w *Window) ApplyInPlace(signal []float64) error {
	if len(signal) != w.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), w.size)
	}

	for i := range w.size {
		signal[i] *= w.coefficients[i]
	}

	return nil
}

// Coefficients returns a copy of the window coefficients
func (w *Window) Coefficients() []float64 {
	coeffs := make([]float64, len(w.coefficients))
	copy(coeffs, w.coefficients)
	return coeffs
}

// Size returns the window size
func (w *Window) Size() int {
	return w.size
}

// Type returns the window shape
func (w *Window) Type() Type {
	return w.kind
}
