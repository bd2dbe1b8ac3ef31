package extractors

import (
	"math"

	"github.com/pkg/errors"

	"github.com/RyanBlaney/sonido-sync/algorithms/common"
	"github.com/RyanBlaney/sonido-sync/algorithms/filters"
	"github.com/RyanBlaney/sonido-sync/algorithms/spectral"
	"github.com/RyanBlaney/sonido-sync/algorithms/windowing"
	"github.com/RyanBlaney/sonido-sync/audio"
	"github.com/RyanBlaney/sonido-sync/logging"
)

// ErrInvalidParameters is returned for unusable frame, hop or coefficient settings.
var ErrInvalidParameters = errors.New("invalid extractor parameters")

// ExtractorParams configures MFCC extraction
type ExtractorParams struct {
	FrameLengthMs      float64        `json:"frame_length_ms"`
	HopLengthMs        float64        `json:"hop_length_ms"`
	NumCoefficients    int            `json:"n_coefficients"`
	AnalysisSampleRate int            `json:"analysis_sample_rate"`
	NumMelFilters      int            `json:"n_mel_filters"`
	PreEmphasis        float64        `json:"pre_emphasis"`
	NormalizeFeatures  bool           `json:"normalize_features"`
	DeltaOrder         int            `json:"delta_order"`
	Window             windowing.Type `json:"window"`
}

// DefaultExtractorParams returns 25 ms frames, a 10 ms hop and 13 coefficients at 16 kHz
func DefaultExtractorParams() ExtractorParams {
	return ExtractorParams{
		FrameLengthMs:      25,
		HopLengthMs:        10,
		NumCoefficients:    13,
		AnalysisSampleRate: 16000,
		NumMelFilters:      26,
		PreEmphasis:        filters.DefaultPreEmphasisCoefficient,
		NormalizeFeatures:  true,
		Window:             windowing.Hamming,
	}
}

// MFCCExtractor converts mono waveforms into MFCC feature sequences.
// It holds no per-call state and is safe for concurrent use.
type MFCCExtractor struct {
	params    ExtractorParams
	frameSize int
	hopSize   int
	fftSize   int
	window    *windowing.Window
	resampler *common.Interpolator
	logger    logging.Logger
}

// NewMFCCExtractor validates params and precomputes the analysis window
func NewMFCCExtractor(params ExtractorParams) (*MFCCExtractor, error) {
	switch {
	case params.FrameLengthMs <= 0 || params.HopLengthMs <= 0:
		return nil, errors.Wrapf(ErrInvalidParameters, "frame (%g ms) and hop (%g ms) must be positive", params.FrameLengthMs, params.HopLengthMs)
	case params.FrameLengthMs < params.HopLengthMs:
		return nil, errors.Wrapf(ErrInvalidParameters, "frame (%g ms) shorter than hop (%g ms)", params.FrameLengthMs, params.HopLengthMs)
	case params.NumCoefficients <= 0:
		return nil, errors.Wrapf(ErrInvalidParameters, "n_coefficients must be positive, got %d", params.NumCoefficients)
	case params.AnalysisSampleRate <= 0:
		return nil, errors.Wrapf(ErrInvalidParameters, "analysis sample rate must be positive, got %d", params.AnalysisSampleRate)
	case params.DeltaOrder < 0 || params.DeltaOrder > 2:
		return nil, errors.Wrapf(ErrInvalidParameters, "delta order must be 0, 1 or 2, got %d", params.DeltaOrder)
	case params.PreEmphasis < 0 || params.PreEmphasis >= 1:
		return nil, errors.Wrapf(ErrInvalidParameters, "pre-emphasis must be in [0, 1), got %g", params.PreEmphasis)
	}
	if params.NumMelFilters <= 0 {
		params.NumMelFilters = 26
	}
	if params.NumMelFilters < params.NumCoefficients {
		return nil, errors.Wrapf(ErrInvalidParameters, "%d coefficients requested from %d mel filters", params.NumCoefficients, params.NumMelFilters)
	}

	rate := float64(params.AnalysisSampleRate)
	frameSize := int(math.Round(params.FrameLengthMs * rate / 1000))
	hopSize := int(math.Round(params.HopLengthMs * rate / 1000))
	if frameSize < 2 || hopSize < 1 {
		return nil, errors.Wrapf(ErrInvalidParameters, "frame of %d samples and hop of %d samples at %d Hz", frameSize, hopSize, params.AnalysisSampleRate)
	}

	return &MFCCExtractor{
		params:    params,
		frameSize: frameSize,
		hopSize:   hopSize,
		fftSize:   spectral.NextPowerOfTwo(frameSize),
		window:    windowing.New(params.Window, frameSize, false),
		resampler: common.NewInterpolator(common.Linear),
		logger: logging.WithFields(logging.Fields{
			"component": "mfcc_extractor",
		}),
	}, nil
}

// FrameSize returns the frame length in samples at the analysis rate
func (e *MFCCExtractor) FrameSize() int {
	return e.frameSize
}

// HopSize returns the hop in samples at the analysis rate
func (e *MFCCExtractor) HopSize() int {
	return e.hopSize
}

// FrameRate returns the feature frame rate in frames per second
func (e *MFCCExtractor) FrameRate() float64 {
	return float64(e.params.AnalysisSampleRate) / float64(e.hopSize)
}

// Extract computes the feature sequence of a mono waveform. The waveform is
// first brought to the analysis rate so sequences from different native
// rates are comparable. The sequence holds round(samples/hop) frames.
func (e *MFCCExtractor) Extract(wf *audio.Waveform) (*FeatureSequence, error) {
	if err := wf.ValidateMono(); err != nil {
		return nil, err
	}

	rate := e.params.AnalysisSampleRate
	samples := e.resampler.ResampleSignal(wf.Samples, wf.SampleRate, rate)
	if len(samples) < e.frameSize {
		return nil, errors.Wrapf(audio.ErrInvalidAudio, "%d samples at %d Hz is shorter than one %d-sample frame", len(samples), rate, e.frameSize)
	}

	if e.params.PreEmphasis > 0 {
		pe, err := filters.NewPreEmphasis(e.params.PreEmphasis)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidParameters, err.Error())
		}
		samples = pe.ProcessBuffer(samples)
	}

	numFrames := int(math.Round(float64(len(samples)) / float64(e.hopSize)))

	spec, err := spectral.NewSTFT().Compute(samples, e.frameSize, e.hopSize, e.fftSize, numFrames, rate, e.window)
	if err != nil {
		return nil, errors.Wrap(err, "stft failed")
	}

	mfcc := spectral.NewMFCC(rate, spectral.MFCCParams{
		NumCoefficients: e.params.NumCoefficients,
		NumMelFilters:   e.params.NumMelFilters,
		HighFreq:        float64(rate) / 2,
		UseLiftering:    true,
	})
	vectors, err := mfcc.ComputeFrames(spec.Magnitude)
	if err != nil {
		return nil, errors.Wrap(err, "mfcc failed")
	}

	if e.params.NormalizeFeatures {
		common.SubtractColumnMeans(vectors)
	}

	if e.params.DeltaOrder > 0 {
		vectors, err = AppendDeltas(vectors, DefaultDeltaWindow, e.params.DeltaOrder)
		if err != nil {
			return nil, errors.Wrap(err, "delta features failed")
		}
	}

	seq := &FeatureSequence{
		Vectors:    vectors,
		Dim:        len(vectors[0]),
		FrameRate:  e.FrameRate(),
		HopSize:    e.hopSize,
		FrameSize:  e.frameSize,
		SampleRate: rate,
	}

	e.logger.Debug("Extracted MFCC features", logging.Fields{
		"frames":      seq.Len(),
		"dim":         seq.Dim,
		"native_rate": wf.SampleRate,
		"frame_rate":  seq.FrameRate,
	})

	return seq, nil
}
