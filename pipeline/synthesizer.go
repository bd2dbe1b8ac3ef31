package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/RyanBlaney/sonido-sync/audio"
)

// FileSynthesizer stands in for a text-to-speech service by returning a
// recording that was synthesized ahead of time.
type FileSynthesizer struct {
	Source AudioSource
	Path   string
}

// NewFileSynthesizer returns a synthesizer that decodes path with source
func NewFileSynthesizer(source AudioSource, path string) *FileSynthesizer {
	return &FileSynthesizer{Source: source, Path: path}
}

// Synthesize ignores text and decodes the configured file
func (s *FileSynthesizer) Synthesize(ctx context.Context, _ string) (*audio.Waveform, error) {
	if s.Source == nil || s.Path == "" {
		return nil, errors.Wrap(ErrMissingStage, "file synthesizer needs a source and a path")
	}
	wf, err := s.Source.Decode(ctx, s.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", s.Path)
	}
	return wf, nil
}
