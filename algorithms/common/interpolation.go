package common

import (
	"fmt"
	"math"
	"strings"

	"github.com/RyanBlaney/sonido-sync/algorithms/filters"
)

// InterpolationType defines interpolation method
type InterpolationType int

const (
	Linear InterpolationType = iota
	Cubic
	Hermite
	Lanczos
)

func (t InterpolationType) String() string {
	switch t {
	case Linear:
		return "linear"
	case Cubic:
		return "cubic"
	case Hermite:
		return "hermite"
	case Lanczos:
		return "lanczos"
	default:
		return "unknown"
	}
}

// ParseInterpolation maps a name ("linear", "cubic", ...) to its type.
// The empty string selects Linear.
func ParseInterpolation(name string) (InterpolationType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "linear":
		return Linear, nil
	case "cubic":
		return Cubic, nil
	case "hermite":
		return Hermite, nil
	case "lanczos":
		return Lanczos, nil
	default:
		return Linear, fmt.Errorf("unknown interpolation order: %q", name)
	}
}

// lanczosA is the Lanczos kernel half-width
const lanczosA = 3

// Interpolator evaluates a sampled signal at fractional indices.
// Indices outside [0, len-1] read the nearest edge sample.
type Interpolator struct {
	method InterpolationType
}

// NewInterpolator creates a new interpolator
func NewInterpolator(method InterpolationType) *Interpolator {
	return &Interpolator{
		method: method,
	}
}

// Method returns the interpolation type
func (interp *Interpolator) Method() InterpolationType {
	return interp.method
}

// Interpolate performs interpolation at fractional index
func (interp *Interpolator) Interpolate(data []float64, index float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	if index <= 0 {
		return data[0]
	}
	if index >= float64(len(data)-1) {
		return data[len(data)-1]
	}

	switch interp.method {
	case Cubic:
		return interp.cubicInterpolate(data, index)
	case Hermite:
		return interp.hermiteInterpolate(data, index)
	case Lanczos:
		return interp.lanczosInterpolate(data, index)
	default:
		return interp.linearInterpolate(data, index)
	}
}

// at reads data[i] with edge clamping
func at(data []float64, i int) float64 {
	if i < 0 {
		return data[0]
	}
	if i >= len(data) {
		return data[len(data)-1]
	}
	return data[i]
}

func (interp *Interpolator) linearInterpolate(data []float64, index float64) float64 {
	i := int(index)
	frac := index - float64(i)
	return data[i] + frac*(at(data, i+1)-data[i])
}

// cubicInterpolate uses a Catmull-Rom spline through the 4 nearest samples
func (interp *Interpolator) cubicInterpolate(data []float64, index float64) float64 {
	i := int(index)
	t := index - float64(i)

	y0 := at(data, i-1)
	y1 := at(data, i)
	y2 := at(data, i+1)
	y3 := at(data, i+2)

	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	a3 := y1

	return ((a0*t+a1)*t+a2)*t + a3
}

// hermiteInterpolate uses cubic Hermite basis functions with centred tangents
func (interp *Interpolator) hermiteInterpolate(data []float64, index float64) float64 {
	i := int(index)
	t := index - float64(i)

	y0 := at(data, i-1)
	y1 := at(data, i)
	y2 := at(data, i+1)
	y3 := at(data, i+2)

	m0 := 0.5 * (y2 - y0)
	m1 := 0.5 * (y3 - y1)

	t2 := t * t
	t3 := t2 * t

	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2

	return h00*y1 + h10*m0 + h01*y2 + h11*m1
}

// lanczosInterpolate sums 2a samples weighted by the windowed sinc kernel,
// normalised so a constant signal stays constant near the edges
func (interp *Interpolator) lanczosInterpolate(data []float64, index float64) float64 {
	i := int(math.Floor(index))

	sum := 0.0
	weights := 0.0
	for j := i - lanczosA + 1; j <= i+lanczosA; j++ {
		w := lanczosKernel(index-float64(j), lanczosA)
		sum += at(data, j) * w
		weights += w
	}

	if weights == 0 {
		return interp.linearInterpolate(data, index)
	}
	return sum / weights
}

func lanczosKernel(x, a float64) float64 {
	if math.Abs(x) < 1e-10 {
		return 1.0
	}
	if math.Abs(x) >= a {
		return 0.0
	}

	px := math.Pi * x
	return (a * math.Sin(px) * math.Sin(px/a)) / (px * px)
}

// ResampleSignal converts a signal between sample rates. The output holds
// round(len * targetRate / originalRate) samples so durations are preserved.
// Downsampling first band-limits the signal with filters.AntiAlias.
func (interp *Interpolator) ResampleSignal(signal []float64, originalRate, targetRate int) []float64 {
	if len(signal) == 0 || originalRate <= 0 || targetRate <= 0 {
		return signal
	}

	if originalRate == targetRate {
		out := make([]float64, len(signal))
		copy(out, signal)
		return out
	}

	if targetRate < originalRate {
		signal = filters.AntiAlias(signal, originalRate, targetRate)
	}

	ratio := float64(originalRate) / float64(targetRate)
	newLength := int(math.Round(float64(len(signal)) / ratio))

	if newLength <= 0 {
		return []float64{}
	}

	resampled := make([]float64, newLength)

	for i := range resampled {
		resampled[i] = interp.Interpolate(signal, float64(i)*ratio)
	}

	return resampled
}
