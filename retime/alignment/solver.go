package alignment

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/sonido-sync/algorithms/stats"
	"github.com/RyanBlaney/sonido-sync/logging"
	"github.com/RyanBlaney/sonido-sync/retime/config"
	"github.com/RyanBlaney/sonido-sync/retime/extractors"
)

// ErrExtremeRatio rejects inputs whose lengths differ by more than the
// configured factor; DTW alignments that far apart are rarely usable.
var ErrExtremeRatio = errors.New("duration ratio exceeds limit")

// ErrFrameRateMismatch means the two sequences were extracted on different grids.
var ErrFrameRateMismatch = errors.New("feature sequences have different frame rates")

// Alignment is the solver's output: a warping path from (0,0) to
// (N-1, M-1) with I indexing the original and J the replacement.
type Alignment struct {
	Path              []stats.AlignPoint `json:"path"`
	TotalCost         float64            `json:"total_cost"`
	NormalizedCost    float64            `json:"normalized_cost"`
	OriginalFrames    int                `json:"original_frames"`
	ReplacementFrames int                `json:"replacement_frames"`
	FrameRate         float64            `json:"frame_rate"`
	CellsEvaluated    int                `json:"cells_evaluated"`
	Quality           map[string]float64 `json:"quality"`
}

// Solver wraps DTW with the duration-ratio policy and path checks
type Solver struct {
	dtw      *stats.DTWAlignment
	maxRatio float64
	logger   logging.Logger
}

// NewSolver creates a solver. bandRadius < 0 computes the full matrix;
// maxRatio 0 disables the duration-ratio check.
func NewSolver(metric stats.DistanceMetric, bandRadius int, maxRatio float64) *Solver {
	return &Solver{
		dtw: stats.NewDTWAlignment(
			stats.WithDistanceMetric(metric),
			stats.WithBandRadius(bandRadius),
		),
		maxRatio: maxRatio,
		logger: logging.WithFields(logging.Fields{
			"component": "alignment_solver",
		}),
	}
}

// NewSolverFromConfig builds a solver from the run config
func NewSolverFromConfig(cfg config.Config) (*Solver, error) {
	metric, err := cfg.Metric()
	if err != nil {
		return nil, errors.Wrap(config.ErrInvalidConfig, err.Error())
	}
	return NewSolver(metric, cfg.BandRadius, cfg.MaxDurationRatio), nil
}

// Align computes the minimum-cost warping path between the original and
// replacement feature sequences.
func (s *Solver) Align(original, replacement *extractors.FeatureSequence) (*Alignment, error) {
	if original == nil || replacement == nil || original.Len() == 0 || replacement.Len() == 0 {
		return nil, stats.ErrEmptySequence
	}
	if math.Abs(original.FrameRate-replacement.FrameRate) > 1e-9 {
		return nil, errors.Wrapf(ErrFrameRateMismatch, "original %g fps, replacement %g fps", original.FrameRate, replacement.FrameRate)
	}

	n, m := original.Len(), replacement.Len()
	if ratio := durationRatio(n, m); s.maxRatio > 0 && ratio > s.maxRatio {
		return nil, errors.Wrapf(ErrExtremeRatio, "%d vs %d frames is %.2fx, limit %.2fx", n, m, ratio, s.maxRatio)
	}

	result, err := s.dtw.Align(original.Vectors, replacement.Vectors)
	if err != nil {
		return nil, err
	}
	if err := stats.ValidatePath(result.Path, n, m); err != nil {
		return nil, errors.WithStack(err)
	}

	quality := Quality(result)

	s.logger.Debug("Alignment solved", logging.Fields{
		"original_frames":    n,
		"replacement_frames": m,
		"total_cost":         result.Distance,
		"path_length":        len(result.Path),
		"diagonal_ratio":     quality["diagonal_ratio"],
	})

	return &Alignment{
		Path:              result.Path,
		TotalCost:         result.Distance,
		NormalizedCost:    result.NormalizedDistance,
		OriginalFrames:    n,
		ReplacementFrames: m,
		FrameRate:         original.FrameRate,
		CellsEvaluated:    result.CellsEvaluated,
		Quality:           quality,
	}, nil
}

func durationRatio(n, m int) float64 {
	return float64(max(n, m)) / float64(min(n, m))
}

// Quality extends stats.PathQuality with:
//
//   - path_stability: 1 - share of steps that change direction
//   - confidence: 1/(1+variance of local costs), in (0, 1]
//   - time_stretch: N/M, the overall original-to-replacement length ratio
func Quality(result *stats.DTWResult) map[string]float64 {
	quality := stats.PathQuality(result)
	if len(quality) == 0 {
		return quality
	}

	quality["path_stability"] = pathStability(result.Path)

	costs := make([]float64, len(result.Path))
	for k, p := range result.Path {
		costs[k] = p.Cost
	}
	variance := 0.0
	if len(costs) > 1 {
		variance = stat.PopVariance(costs, nil)
	}
	quality["confidence"] = 1.0 / (1.0 + variance)
	quality["time_stretch"] = float64(result.LengthA) / float64(result.LengthB)

	return quality
}

func pathStability(path []stats.AlignPoint) float64 {
	if len(path) < 3 {
		return 1.0
	}

	changes := 0
	for k := 2; k < len(path); k++ {
		prevI, prevJ := path[k-1].I-path[k-2].I, path[k-1].J-path[k-2].J
		curI, curJ := path[k].I-path[k-1].I, path[k].J-path[k-1].J
		if prevI != curI || prevJ != curJ {
			changes++
		}
	}

	return math.Max(0, 1.0-float64(changes)/float64(len(path)-1))
}
