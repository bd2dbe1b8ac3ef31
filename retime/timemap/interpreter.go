package timemap

import (
	"github.com/pkg/errors"

	"github.com/RyanBlaney/sonido-sync/algorithms/stats"
	"github.com/RyanBlaney/sonido-sync/logging"
)

// ErrInvalidPath rejects warping paths that cannot be interpreted.
var ErrInvalidPath = errors.New("invalid warping path")

// Interpreter turns a DTW warping path into a TimeMap
type Interpreter struct {
	logger logging.Logger
}

// NewInterpreter creates a path interpreter
func NewInterpreter() *Interpreter {
	return &Interpreter{
		logger: logging.WithFields(logging.Fields{
			"component": "path_interpreter",
		}),
	}
}

// ToTimeMap converts a warping path (I indexes the original, J the
// replacement) into anchors at frame times k/frameRate:
//
//  1. steps sharing one J collapse to a single anchor whose original time is
//     the midpoint of their I range
//  2. consecutive anchors sharing one original time (a pause in the
//     replacement) collapse to the midpoint of their replacement range
//  3. equal replacement times merge, keeping the later original time
//
// The result is strictly increasing in both coordinates. Fewer than two
// anchors is reported as ErrDegenerateMap; a 1x1 alignment is one anchor.
func (in *Interpreter) ToTimeMap(path []stats.AlignPoint, frameRate float64) (*TimeMap, error) {
	if frameRate <= 0 {
		return nil, errors.Wrapf(ErrInvalidPath, "frame rate must be positive, got %g", frameRate)
	}
	if len(path) == 0 {
		return nil, errors.Wrap(ErrInvalidPath, "empty path")
	}
	last := path[len(path)-1]
	if err := stats.ValidatePath(path, last.I+1, last.J+1); err != nil {
		return nil, errors.Wrap(ErrInvalidPath, err.Error())
	}

	byReplacement := collapseColumns(path)
	byOriginal := collapseRows(byReplacement)
	anchors := mergeDuplicates(byOriginal)

	for k := range anchors {
		anchors[k].Replacement /= frameRate
		anchors[k].Original /= frameRate
	}

	tm := &TimeMap{Anchors: anchors}
	if err := tm.Validate(); err != nil {
		return nil, err
	}

	in.logger.Debug("Interpreted warping path", logging.Fields{
		"path_length":      len(path),
		"column_anchors":   len(byReplacement),
		"anchors":          len(anchors),
		"collapsed_pauses": len(byReplacement) - len(byOriginal),
	})

	return tm, nil
}

// collapseColumns emits one anchor per J (in frame units)
func collapseColumns(path []stats.AlignPoint) []Anchor {
	anchors := make([]Anchor, 0, path[len(path)-1].J+1)

	start := 0
	for k := 1; k <= len(path); k++ {
		if k < len(path) && path[k].J == path[start].J {
			continue
		}
		anchors = append(anchors, Anchor{
			Replacement: float64(path[start].J),
			Original:    float64(path[start].I+path[k-1].I) / 2,
		})
		start = k
	}
	return anchors
}

// collapseRows merges consecutive anchors with the same original time
func collapseRows(anchors []Anchor) []Anchor {
	out := make([]Anchor, 0, len(anchors))

	start := 0
	for k := 1; k <= len(anchors); k++ {
		if k < len(anchors) && anchors[k].Original == anchors[start].Original {
			continue
		}
		out = append(out, Anchor{
			Replacement: (anchors[start].Replacement + anchors[k-1].Replacement) / 2,
			Original:    anchors[start].Original,
		})
		start = k
	}
	return out
}

// mergeDuplicates keeps one anchor per replacement time, the later one
func mergeDuplicates(anchors []Anchor) []Anchor {
	out := make([]Anchor, 0, len(anchors))
	for _, a := range anchors {
		if n := len(out); n > 0 && out[n-1].Replacement == a.Replacement {
			out[n-1].Original = max(out[n-1].Original, a.Original)
			continue
		}
		out = append(out, a)
	}
	return out
}
