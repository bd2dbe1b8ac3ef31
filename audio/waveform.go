// Package audio holds the in-memory sampled signal shared by every stage of
// the retiming pipeline.
package audio

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidAudio reports malformed, empty or wrong-channel input.
var ErrInvalidAudio = errors.New("invalid audio")

// Waveform is a sampled audio signal. Multi-channel samples are interleaved.
// SampleRate and Channels never change after construction.
type Waveform struct {
	Samples    []float64 `json:"-"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
}

// NewWaveform builds a waveform and validates it.
func NewWaveform(samples []float64, sampleRate, channels int) (*Waveform, error) {
	wf := &Waveform{Samples: samples, SampleRate: sampleRate, Channels: channels}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

// NewMono is shorthand for a single-channel waveform.
func NewMono(samples []float64, sampleRate int) (*Waveform, error) {
	return NewWaveform(samples, sampleRate, 1)
}

// Validate checks the waveform invariants: positive rate and channel count,
// non-empty, whole frames and finite samples.
func (w *Waveform) Validate() error {
	if w == nil {
		return errors.Wrap(ErrInvalidAudio, "nil waveform")
	}
	if w.SampleRate <= 0 {
		return errors.Wrapf(ErrInvalidAudio, "sample rate must be positive, got %d", w.SampleRate)
	}
	if w.Channels <= 0 {
		return errors.Wrapf(ErrInvalidAudio, "channel count must be positive, got %d", w.Channels)
	}
	if len(w.Samples) == 0 {
		return errors.Wrap(ErrInvalidAudio, "empty waveform")
	}
	if len(w.Samples)%w.Channels != 0 {
		return errors.Wrapf(ErrInvalidAudio, "%d samples is not a whole number of %d-channel frames", len(w.Samples), w.Channels)
	}
	for i, s := range w.Samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return errors.Wrapf(ErrInvalidAudio, "non-finite sample at index %d", i)
		}
	}
	return nil
}

// ValidateMono validates the waveform and additionally requires one channel.
func (w *Waveform) ValidateMono() error {
	if err := w.Validate(); err != nil {
		return err
	}
	if w.Channels != 1 {
		return errors.Wrapf(ErrInvalidAudio, "expected mono audio, got %d channels", w.Channels)
	}
	return nil
}

// Frames returns the number of sample frames (samples per channel).
func (w *Waveform) Frames() int {
	if w == nil || w.Channels <= 0 {
		return 0
	}
	return len(w.Samples) / w.Channels
}

// Seconds returns the duration in seconds.
func (w *Waveform) Seconds() float64 {
	if w == nil || w.SampleRate <= 0 {
		return 0
	}
	return float64(w.Frames()) / float64(w.SampleRate)
}

// Duration returns the duration as a time.Duration.
func (w *Waveform) Duration() time.Duration {
	return time.Duration(w.Seconds() * float64(time.Second))
}

// Downmix averages interleaved channels into a new mono waveform.
// A mono waveform is returned as a copy.
func (w *Waveform) Downmix() *Waveform {
	frames := w.Frames()
	mono := make([]float64, frames)
	if w.Channels == 1 {
		copy(mono, w.Samples)
	} else {
		inv := 1.0 / float64(w.Channels)
		for f := 0; f < frames; f++ {
			sum := 0.0
			base := f * w.Channels
			for c := 0; c < w.Channels; c++ {
				sum += w.Samples[base+c]
			}
			mono[f] = sum * inv
		}
	}
	return &Waveform{Samples: mono, SampleRate: w.SampleRate, Channels: 1}
}

// Clone returns a deep copy.
func (w *Waveform) Clone() *Waveform {
	samples := make([]float64, len(w.Samples))
	copy(samples, w.Samples)
	return &Waveform{Samples: samples, SampleRate: w.SampleRate, Channels: w.Channels}
}
