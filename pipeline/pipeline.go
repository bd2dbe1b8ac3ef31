// Package pipeline wires the retiming engine between the external services
// of a dubbing run: decode, transcribe, correct, synthesize, retime, mux.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/RyanBlaney/sonido-sync/audio"
	"github.com/RyanBlaney/sonido-sync/logging"
	"github.com/RyanBlaney/sonido-sync/retime"
	"github.com/RyanBlaney/sonido-sync/transcode"
)

// ErrMissingStage reports a pipeline built without a required collaborator
var ErrMissingStage = errors.New("pipeline stage not configured")

// AudioSource decodes a media file into a waveform
type AudioSource interface {
	Decode(ctx context.Context, path string) (*audio.Waveform, error)
}

// Transcriber turns speech into text
type Transcriber interface {
	Transcribe(ctx context.Context, wf *audio.Waveform) (string, error)
}

// Corrector rewrites a transcript
type Corrector interface {
	Correct(ctx context.Context, transcript string) (string, error)
}

// Synthesizer produces the replacement speech for a transcript
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*audio.Waveform, error)
}

// Muxer replaces the soundtrack of a video
type Muxer interface {
	ReplaceAudio(ctx context.Context, videoPath string, wf *audio.Waveform, outPath string) error
}

// Retimer aligns a replacement track onto the original's timeline
type Retimer interface {
	Align(ctx context.Context, original, replacement *audio.Waveform) (*retime.Result, error)
}

// Step names a pipeline step in reports and errors
type Step string

const (
	StepDecode     Step = "decode"
	StepTranscribe Step = "transcribe"
	StepCorrect    Step = "correct"
	StepSynthesize Step = "synthesize"
	StepRetime     Step = "retime"
	StepOutput     Step = "output"
)

// Report summarises a completed run
type Report struct {
	RunID              uuid.UUID              `json:"run_id"`
	Transcript         string                 `json:"transcript,omitempty"`
	Corrected          string                 `json:"corrected,omitempty"`
	OriginalSeconds    float64                `json:"original_seconds"`
	ReplacementSeconds float64                `json:"replacement_seconds"`
	Retime             *retime.Result         `json:"retime"`
	OutputPath         string                 `json:"output_path"`
	Timings            map[Step]time.Duration `json:"timings"`
}

// Pipeline runs one dubbing job. Transcriber and Corrector are optional;
// Muxer is only needed when the output is not a .wav file.
type Pipeline struct {
	Source      AudioSource
	Transcriber Transcriber
	Corrector   Corrector
	Synthesizer Synthesizer
	Retimer     Retimer
	Muxer       Muxer
}

// Run decodes the audio of videoPath, produces and retimes the replacement
// speech and writes outPath. A .wav outPath receives the retimed audio
// alone; any other extension gets the video with its audio replaced.
func (p *Pipeline) Run(ctx context.Context, videoPath, outPath string) (*Report, error) {
	if err := p.check(outPath); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:      uuid.New(),
		OutputPath: outPath,
		Timings:    make(map[Step]time.Duration),
	}
	ctx = logging.ContextWithFields(ctx, logging.Fields{"pipeline_run": report.RunID.String()})
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "pipeline",
		"input":     videoPath,
	})

	timed := func(step Step, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "%s", step)
		}
		start := time.Now()
		err := fn()
		report.Timings[step] = time.Since(start)
		if err != nil {
			logger.Error(err, "Pipeline step failed", logging.Fields{"step": string(step)})
			return errors.Wrapf(err, "%s", step)
		}
		return nil
	}

	var original, replacement *audio.Waveform

	err := timed(StepDecode, func() (err error) {
		original, err = p.Source.Decode(ctx, videoPath)
		return err
	})
	if err != nil {
		return nil, err
	}
	report.OriginalSeconds = original.Seconds()

	text := ""
	if p.Transcriber != nil {
		err = timed(StepTranscribe, func() (err error) {
			report.Transcript, err = p.Transcriber.Transcribe(ctx, original)
			return err
		})
		if err != nil {
			return nil, err
		}
		text = report.Transcript
	}

	if p.Corrector != nil {
		err = timed(StepCorrect, func() error {
			corrected, err := p.Corrector.Correct(ctx, text)
			if err != nil {
				return err
			}
			report.Corrected = Sanitize(corrected)
			return nil
		})
		if err != nil {
			return nil, err
		}
		text = report.Corrected
	}

	err = timed(StepSynthesize, func() (err error) {
		replacement, err = p.Synthesizer.Synthesize(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	report.ReplacementSeconds = replacement.Seconds()

	err = timed(StepRetime, func() (err error) {
		report.Retime, err = p.Retimer.Align(ctx, original, replacement)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = timed(StepOutput, func() error {
		if isWAV(outPath) {
			return transcode.WriteWAVFile(outPath, report.Retime.Waveform)
		}
		return p.Muxer.ReplaceAudio(ctx, videoPath, report.Retime.Waveform, outPath)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Pipeline completed", logging.Fields{
		"output":              outPath,
		"original_seconds":    report.OriginalSeconds,
		"replacement_seconds": report.ReplacementSeconds,
		"retime_run":          report.Retime.RunID.String(),
	})

	return report, nil
}

func (p *Pipeline) check(outPath string) error {
	switch {
	case p.Source == nil:
		return errors.Wrap(ErrMissingStage, "audio source")
	case p.Synthesizer == nil:
		return errors.Wrap(ErrMissingStage, "synthesizer")
	case p.Retimer == nil:
		return errors.Wrap(ErrMissingStage, "retimer")
	case p.Muxer == nil && !isWAV(outPath):
		return errors.Wrap(ErrMissingStage, "muxer")
	}
	return nil
}

func isWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

// Sanitize strips the markdown emphasis and list markers ('*' and '-')
// that language-model corrections tend to add, and trims the result.
func Sanitize(text string) string {
	return strings.TrimSpace(strings.NewReplacer("*", "", "-", "").Replace(text))
}
