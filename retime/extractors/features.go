package extractors

import (
	"slices"
	"time"

	"github.com/pkg/errors"
)

// DefaultDeltaWindow is the regression half-width used for delta features
const DefaultDeltaWindow = 2

// FeatureSequence is a fixed-rate sequence of acoustic feature vectors.
// It is read-only once returned by an extractor.
type FeatureSequence struct {
	Vectors    [][]float64 `json:"vectors"`     // One vector per frame
	Dim        int         `json:"dim"`         // Dimensionality shared by every vector
	FrameRate  float64     `json:"frame_rate"`  // Frames per second
	HopSize    int         `json:"hop_size"`    // Hop in samples at SampleRate
	FrameSize  int         `json:"frame_size"`  // Frame length in samples at SampleRate
	SampleRate int         `json:"sample_rate"` // Analysis sample rate
}

// Len returns the number of frames
func (fs *FeatureSequence) Len() int {
	return len(fs.Vectors)
}

// FrameTime returns the start time of frame k in seconds
func (fs *FeatureSequence) FrameTime(k int) float64 {
	return float64(k) / fs.FrameRate
}

// Duration returns the time spanned by the frame grid
func (fs *FeatureSequence) Duration() time.Duration {
	return time.Duration(float64(fs.Len()) / fs.FrameRate * float64(time.Second))
}

// ComputeDelta returns first-order regression deltas over ±window frames,
// clamping at the sequence edges:
//
//	d[t] = Σ n·(c[t+n] - c[t-n]) / (2·Σ n²)
func ComputeDelta(features [][]float64, window int) ([][]float64, error) {
	if len(features) == 0 {
		return nil, errors.New("no features to compute delta")
	}
	if window <= 0 {
		return nil, errors.Errorf("invalid delta window: %d", window)
	}
	dim := len(features[0])
	if dim == 0 {
		return nil, errors.New("no coefficients to compute delta")
	}

	denom := 0.0
	for n := 1; n <= window; n++ {
		denom += float64(n * n)
	}
	denom *= 2

	frameCount := len(features)
	delta := make([][]float64, frameCount)
	buf := make([]float64, frameCount*dim)
	for t := range delta {
		delta[t] = buf[t*dim : (t+1)*dim]
		for k := range delta[t] {
			sum := 0.0
			for n := 1; n <= window; n++ {
				prev := max(t-n, 0)
				next := min(t+n, frameCount-1)
				sum += float64(n) * (features[next][k] - features[prev][k])
			}
			delta[t][k] = sum / denom
		}
	}

	return delta, nil
}

// AppendDeltas returns features with deltas (order 1) or deltas and
// delta-deltas (order 2) appended to every frame. Order 0 returns a copy.
func AppendDeltas(features [][]float64, window, order int) ([][]float64, error) {
	if len(features) == 0 {
		return nil, errors.New("no features to append deltas")
	}
	if order < 0 || order > 2 {
		return nil, errors.Errorf("unsupported delta order: %d", order)
	}
	if order == 0 {
		out := make([][]float64, len(features))
		for i, frame := range features {
			out[i] = slices.Clone(frame)
		}
		return out, nil
	}

	delta1, err := ComputeDelta(features, window)
	if err != nil {
		return nil, err
	}

	var delta2 [][]float64
	if order == 2 {
		if delta2, err = ComputeDelta(delta1, window); err != nil {
			return nil, err
		}
	}

	dim := len(features[0])
	total := dim * (1 + order)
	out := make([][]float64, len(features))
	buf := make([]float64, len(features)*total)
	for i := range out {
		out[i] = buf[i*total : (i+1)*total]
		copy(out[i][:dim], features[i])
		copy(out[i][dim:2*dim], delta1[i])
		if order == 2 {
			copy(out[i][2*dim:], delta2[i])
		}
	}

	return out, nil
}
