package retime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-sync/audio"
	"github.com/RyanBlaney/sonido-sync/logging"
	"github.com/RyanBlaney/sonido-sync/retime/alignment"
	"github.com/RyanBlaney/sonido-sync/retime/config"
	"github.com/RyanBlaney/sonido-sync/retime/extractors"
	"github.com/RyanBlaney/sonido-sync/retime/timemap"
	"github.com/RyanBlaney/sonido-sync/retime/warp"
)

// Result is a completed alignment run
type Result struct {
	RunID     uuid.UUID               `json:"run_id"`
	Waveform  *audio.Waveform         `json:"-"`
	TimeMap   *timemap.TimeMap        `json:"time_map"`
	Alignment *alignment.Alignment    `json:"alignment"`
	Clamped   int                     `json:"clamped"`
	Timings   map[Stage]time.Duration `json:"timings"`
}

// Engine retimes a replacement speech track onto the timeline of an
// original one: MFCC extraction, DTW alignment, path interpretation and
// piecewise resampling. An Engine holds no per-run state and may be shared.
type Engine struct {
	cfg         config.Config
	extractor   *extractors.MFCCExtractor
	solver      *alignment.Solver
	interpreter *timemap.Interpreter
	resampler   *warp.Resampler
	logger      logging.Logger
}

// NewEngine validates cfg and builds every stage
func NewEngine(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	window, err := cfg.Window()
	if err != nil {
		return nil, errors.Wrap(config.ErrInvalidConfig, err.Error())
	}

	extractor, err := extractors.NewMFCCExtractor(extractors.ExtractorParams{
		FrameLengthMs:      cfg.FrameLengthMs,
		HopLengthMs:        cfg.HopLengthMs,
		NumCoefficients:    cfg.NumCoefficients,
		AnalysisSampleRate: cfg.AnalysisSampleRate,
		NumMelFilters:      cfg.NumMelFilters,
		PreEmphasis:        cfg.PreEmphasis,
		NormalizeFeatures:  cfg.NormalizeFeatures,
		DeltaOrder:         cfg.DeltaOrder,
		Window:             window,
	})
	if err != nil {
		return nil, errors.Wrap(config.ErrInvalidConfig, err.Error())
	}

	solver, err := alignment.NewSolverFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	order, err := cfg.Interpolation()
	if err != nil {
		return nil, errors.Wrap(config.ErrInvalidConfig, err.Error())
	}

	return &Engine{
		cfg:         cfg,
		extractor:   extractor,
		solver:      solver,
		interpreter: timemap.NewInterpreter(),
		resampler:   warp.NewResampler(order, cfg.StrictRange),
		logger: logging.WithFields(logging.Fields{
			"component": "retime_engine",
		}),
	}, nil
}

// Config returns the engine's configuration
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Align retimes replacement so it lasts exactly as long as original, at the
// original's sample rate, following the acoustic alignment of the two.
// ctx is checked between stages. On failure the error is a *StageError and
// no partial result is returned.
func (e *Engine) Align(ctx context.Context, original, replacement *audio.Waveform) (*Result, error) {
	runID := uuid.New()
	ctx = logging.ContextWithFields(ctx, logging.Fields{"run_id": runID.String()})
	logger := e.logger.WithContext(ctx)

	fail := func(stage Stage, err error) (*Result, error) {
		logger.Error(err, "Alignment stage failed", logging.Fields{"stage": string(stage)})
		return nil, &StageError{Stage: stage, RunID: runID, Err: err}
	}

	timings := make(map[Stage]time.Duration)
	timed := func(stage Stage, start time.Time) {
		timings[stage] = time.Since(start)
	}

	if err := ctx.Err(); err != nil {
		return fail(StageExtractOriginal, err)
	}

	originalMono, err := e.prepare(original)
	if err != nil {
		return fail(StageExtractOriginal, err)
	}
	replacementMono, err := e.prepare(replacement)
	if err != nil {
		return fail(StageExtractReplacement, err)
	}

	logger.Info("Aligning replacement speech", logging.Fields{
		"original_s":    originalMono.Seconds(),
		"replacement_s": replacementMono.Seconds(),
	})

	// extract both signals concurrently
	var originalFeatures, replacementFeatures *extractors.FeatureSequence
	var originalTime, replacementTime time.Duration
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		originalFeatures, originalTime, err = e.extract(gctx, StageExtractOriginal, runID, originalMono)
		return err
	})
	g.Go(func() (err error) {
		replacementFeatures, replacementTime, err = e.extract(gctx, StageExtractReplacement, runID, replacementMono)
		return err
	})
	if err := g.Wait(); err != nil {
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			return fail(stageErr.Stage, stageErr.Err)
		}
		return fail(StageExtractOriginal, err)
	}
	timings[StageExtractOriginal] = originalTime
	timings[StageExtractReplacement] = replacementTime

	if err := ctx.Err(); err != nil {
		return fail(StageAlign, err)
	}

	start := time.Now()
	aligned, err := e.solver.Align(originalFeatures, replacementFeatures)
	if err != nil {
		return fail(StageAlign, err)
	}
	timed(StageAlign, start)

	if err := ctx.Err(); err != nil {
		return fail(StageInterpret, err)
	}

	start = time.Now()
	tm, err := e.interpreter.ToTimeMap(aligned.Path, aligned.FrameRate)
	if err != nil {
		return fail(StageInterpret, err)
	}
	if e.cfg.AnchorEndpoints {
		tm = tm.Extend(replacementMono.Seconds(), originalMono.Seconds())
	}
	timed(StageInterpret, start)

	if err := ctx.Err(); err != nil {
		return fail(StageResample, err)
	}

	start = time.Now()
	warped, err := e.resampler.Resample(replacementMono, tm, originalMono.SampleRate, originalMono.Frames())
	if err != nil {
		return fail(StageResample, err)
	}
	timed(StageResample, start)

	logger.Info("Alignment complete", logging.Fields{
		"total_cost":     aligned.TotalCost,
		"path_length":    len(aligned.Path),
		"anchors":        tm.Len(),
		"clamped":        warped.Clamped,
		"diagonal_ratio": aligned.Quality["diagonal_ratio"],
	})

	return &Result{
		RunID:     runID,
		Waveform:  warped.Waveform,
		TimeMap:   tm,
		Alignment: aligned,
		Clamped:   warped.Clamped,
		Timings:   timings,
	}, nil
}

// extract runs the feature extractor for one side of the alignment. Every
// failure, cancellation included, is reported against stage.
func (e *Engine) extract(ctx context.Context, stage Stage, runID uuid.UUID, wf *audio.Waveform) (*extractors.FeatureSequence, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, &StageError{Stage: stage, RunID: runID, Err: err}
	}
	start := time.Now()
	seq, err := e.extractor.Extract(wf)
	if err != nil {
		return nil, 0, &StageError{Stage: stage, RunID: runID, Err: err}
	}
	return seq, time.Since(start), nil
}

// prepare validates a waveform and downmixes it when configured to
func (e *Engine) prepare(wf *audio.Waveform) (*audio.Waveform, error) {
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	if wf.Channels > 1 && e.cfg.Downmix {
		return wf.Downmix(), nil
	}
	return wf, nil
}
