package warp

import (
	"github.com/pkg/errors"

	"github.com/RyanBlaney/sonido-sync/algorithms/common"
	"github.com/RyanBlaney/sonido-sync/audio"
	"github.com/RyanBlaney/sonido-sync/logging"
	"github.com/RyanBlaney/sonido-sync/retime/timemap"
)

var (
	// ErrOutOfRange is returned in strict mode when an output instant falls
	// outside the original-time range of the map.
	ErrOutOfRange = errors.New("output time outside time map range")

	// ErrInvalidParameters rejects a non-positive target rate or length.
	ErrInvalidParameters = errors.New("invalid resampler parameters")
)

// Resampler renders a waveform on another signal's timeline by following a
// TimeMap piecewise rather than applying one global rate change.
type Resampler struct {
	interp *common.Interpolator
	strict bool
	logger logging.Logger
}

// Result is the warped waveform plus how many output samples were clamped
type Result struct {
	Waveform       *audio.Waveform `json:"-"`
	Clamped        int             `json:"clamped"`
	ClampedSeconds float64         `json:"clamped_seconds"`
}

// NewResampler creates a resampler. In strict mode an output instant the
// map does not cover fails with ErrOutOfRange; otherwise it holds the
// nearest anchor and the clamp is logged.
func NewResampler(order common.InterpolationType, strict bool) *Resampler {
	return &Resampler{
		interp: common.NewInterpolator(order),
		strict: strict,
		logger: logging.WithFields(logging.Fields{
			"component": "warp",
			"order":     order.String(),
		}),
	}
}

// Resample produces exactly targetSamples samples at targetRate. Output
// sample n sits at original time t = n/targetRate; the map is inverted at t
// and the mono input is interpolated at the resulting replacement time.
func (r *Resampler) Resample(wf *audio.Waveform, tm *timemap.TimeMap, targetRate, targetSamples int) (*Result, error) {
	if err := wf.ValidateMono(); err != nil {
		return nil, err
	}
	if err := tm.Validate(); err != nil {
		return nil, err
	}
	if targetRate <= 0 || targetSamples <= 0 {
		return nil, errors.Wrapf(ErrInvalidParameters, "target of %d samples at %d Hz", targetSamples, targetRate)
	}

	out := make([]float64, targetSamples)
	cursor := tm.Inverse()
	inputRate := float64(wf.SampleRate)
	outputRate := float64(targetRate)

	clamped := 0
	firstClamp := -1
	for n := range out {
		t := float64(n) / outputRate
		rt, wasClamped := cursor.ReplacementAt(t)
		if wasClamped {
			if r.strict {
				start, end := tm.Range()
				return nil, errors.Wrapf(ErrOutOfRange, "t=%.4fs outside [%.4fs, %.4fs]", t, start, end)
			}
			if firstClamp < 0 {
				firstClamp = n
			}
			clamped++
		}
		out[n] = r.interp.Interpolate(wf.Samples, rt*inputRate)
	}

	result := &Result{
		Waveform:       &audio.Waveform{Samples: out, SampleRate: targetRate, Channels: 1},
		Clamped:        clamped,
		ClampedSeconds: float64(clamped) / outputRate,
	}

	if clamped > 0 {
		start, end := tm.Range()
		r.logger.Warn("Time map does not cover output; holding nearest anchor", logging.Fields{
			"clamped_samples": clamped,
			"clamped_seconds": result.ClampedSeconds,
			"first_clamped_s": float64(firstClamp) / outputRate,
			"map_start_s":     start,
			"map_end_s":       end,
		})
	}

	r.logger.Debug("Resampled waveform", logging.Fields{
		"input_samples":  len(wf.Samples),
		"input_rate":     wf.SampleRate,
		"output_samples": targetSamples,
		"output_rate":    targetRate,
		"anchors":        tm.Len(),
	})

	return result, nil
}
