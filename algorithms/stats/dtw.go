package stats

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-sync/logging"
)

var (
	// ErrEmptySequence indicates one or both inputs are empty.
	ErrEmptySequence = errors.New("dtw: input sequences must be non-empty")

	// ErrIncompatibleFeatures indicates vectors of differing dimensionality.
	ErrIncompatibleFeatures = errors.New("dtw: feature vectors have incompatible dimensionality")

	// ErrInvalidWarpingPath indicates a path that breaks the monotone-contiguous invariant.
	ErrInvalidWarpingPath = errors.New("dtw: invalid warping path")
)

// DTWAlignment computes Dynamic Time Warping between two feature sequences.
//
// The cumulative cost follows the symmetric step pattern
//
//	cost(i,j) = d(A[i], B[j]) + min(cost(i-1,j), cost(i,j-1), cost(i-1,j-1))
//
// with cost(0,0) = d(A[0], B[0]). An optional Sakoe-Chiba band follows the
// line from (0,0) to (N-1,M-1) rather than the main diagonal, so sequences
// with different tempos stay inside it. Memory is O(N·(2r+1)) when banded
// and O(N·M) otherwise.
type DTWAlignment struct {
	bandRadius int // negative disables the band
	metric     DistanceMetric
	distanceFn DistanceFunction
	workers    int
	logger     logging.Logger
}

// DTWOption configures a DTWAlignment
type DTWOption func(*DTWAlignment)

// WithBandRadius restricts |i·(M-1)/(N-1) - j| <= radius. Negative means unbounded.
func WithBandRadius(radius int) DTWOption {
	return func(d *DTWAlignment) {
		d.bandRadius = radius
	}
}

// WithDistanceMetric selects one of the built-in distance functions
func WithDistanceMetric(metric DistanceMetric) DTWOption {
	return func(d *DTWAlignment) {
		d.metric = metric
		d.distanceFn = GetDistanceFunction(metric)
	}
}

// WithDistanceFunc installs a custom distance function
func WithDistanceFunc(fn DistanceFunction) DTWOption {
	return func(d *DTWAlignment) {
		if fn != nil {
			d.distanceFn = fn
		}
	}
}

// WithWorkers sets how many goroutines fill the local distance matrix
func WithWorkers(n int) DTWOption {
	return func(d *DTWAlignment) {
		if n > 0 {
			d.workers = n
		}
	}
}

// DTWResult contains DTW alignment results
type DTWResult struct {
	Distance           float64      `json:"distance"`            // Total cumulative cost at (N-1, M-1)
	NormalizedDistance float64      `json:"normalized_distance"` // Distance divided by path length
	Path               []AlignPoint `json:"path"`                // Optimal warping path from (0,0) to (N-1,M-1)
	LengthA            int          `json:"length_a"`            // Length of sequence A
	LengthB            int          `json:"length_b"`            // Length of sequence B
	BandRadius         int          `json:"band_radius"`         // Band constraint used (-1 = none)
	CellsEvaluated     int          `json:"cells_evaluated"`     // Matrix cells computed
}

// AlignPoint is one step of a warping path
type AlignPoint struct {
	I    int     `json:"i"`    // Index in sequence A
	J    int     `json:"j"`    // Index in sequence B
	Cost float64 `json:"cost"` // Local distance at (I, J)
}

// NewDTWAlignment creates a DTW aligner: Euclidean distance, no band
func NewDTWAlignment(opts ...DTWOption) *DTWAlignment {
	dtw := &DTWAlignment{
		bandRadius: -1,
		metric:     EuclideanDistance,
		distanceFn: EuclideanDistanceFunc,
		workers:    runtime.NumCPU(),
		logger: logging.WithFields(logging.Fields{
			"component": "dtw",
		}),
	}
	for _, opt := range opts {
		opt(dtw)
	}
	return dtw
}

// costMatrix stores one contiguous column range [lo[i], hi[i]] per row.
// Cells outside the range read as +Inf.
type costMatrix struct {
	lo, hi []int
	rows   [][]float64
}

func (c *costMatrix) get(i, j int) float64 {
	if j < c.lo[i] || j > c.hi[i] {
		return math.Inf(1)
	}
	return c.rows[i][j-c.lo[i]]
}

// Align performs DTW between sequences a and b. Both must be non-empty and
// every vector must share one dimensionality.
func (dtw *DTWAlignment) Align(a, b [][]float64) (*DTWResult, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, ErrEmptySequence
	}

	if err := checkDimensions(a, b); err != nil {
		return nil, err
	}

	n, m := len(a), len(b)

	matrix := dtw.newCostMatrix(n, m)
	cells := dtw.fillLocalDistances(matrix, a, b)
	accumulate(matrix)

	path := backtrack(matrix, n, m)
	distance := matrix.get(n-1, m-1)

	dtw.logger.Debug("DTW alignment computed", logging.Fields{
		"length_a":    n,
		"length_b":    m,
		"band_radius": dtw.bandRadius,
		"cells":       cells,
		"path_length": len(path),
		"distance":    distance,
		"metric":      dtw.metric.String(),
	})

	return &DTWResult{
		Distance:           distance,
		NormalizedDistance: distance / float64(len(path)),
		Path:               path,
		LengthA:            n,
		LengthB:            m,
		BandRadius:         dtw.bandRadius,
		CellsEvaluated:     cells,
	}, nil
}

func checkDimensions(a, b [][]float64) error {
	dim := len(a[0])
	if dim == 0 {
		return fmt.Errorf("%w: zero-dimensional vectors", ErrIncompatibleFeatures)
	}
	for i, v := range a {
		if len(v) != dim {
			return fmt.Errorf("%w: sequence A vector %d has %d dimensions, expected %d", ErrIncompatibleFeatures, i, len(v), dim)
		}
	}
	for j, v := range b {
		if len(v) != dim {
			return fmt.Errorf("%w: sequence B vector %d has %d dimensions, expected %d", ErrIncompatibleFeatures, j, len(v), dim)
		}
	}
	return nil
}

// newCostMatrix lays out the band. Row i is centred on i·(M-1)/(N-1); each
// row is widened where needed so that (i, lo[i]) is reachable from row i-1.
func (dtw *DTWAlignment) newCostMatrix(n, m int) *costMatrix {
	lo := make([]int, n)
	hi := make([]int, n)

	if dtw.bandRadius < 0 || n == 1 {
		for i := range n {
			hi[i] = m - 1
		}
	} else {
		slope := float64(m-1) / float64(n-1)
		radius := float64(dtw.bandRadius)
		for i := range n {
			centre := float64(i) * slope
			lo[i] = max(0, int(math.Floor(centre-radius)))
			hi[i] = min(m-1, int(math.Ceil(centre+radius)))
		}
		hi[n-1] = m - 1
		for i := 1; i < n; i++ {
			if lo[i] > hi[i-1]+1 {
				hi[i-1] = lo[i] - 1
			}
		}
	}

	rows := make([][]float64, n)
	for i := range n {
		rows[i] = make([]float64, hi[i]-lo[i]+1)
	}

	return &costMatrix{lo: lo, hi: hi, rows: rows}
}

// fillLocalDistances writes d(A[i], B[j]) into every in-band cell. Rows are
// independent so workers each own whole rows.
func (dtw *DTWAlignment) fillLocalDistances(matrix *costMatrix, a, b [][]float64) int {
	n := len(a)
	numWorkers := max(1, min(dtw.workers, n))

	jobs := make(chan int, n)
	var wg sync.WaitGroup

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				row := matrix.rows[i]
				lo := matrix.lo[i]
				for k := range row {
					row[k] = dtw.distanceFn(a[i], b[lo+k])
				}
			}
		}()
	}

	for i := range n {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	cells := 0
	for _, row := range matrix.rows {
		cells += len(row)
	}
	return cells
}

// accumulate turns local distances into cumulative costs in place
func accumulate(matrix *costMatrix) {
	for i, row := range matrix.rows {
		lo := matrix.lo[i]
		for k := range row {
			j := lo + k
			if i == 0 && j == 0 {
				continue
			}

			best := math.Inf(1)
			if k > 0 {
				best = row[k-1]
			}
			if i > 0 {
				best = math.Min(best, matrix.get(i-1, j))
				if j > 0 {
					best = math.Min(best, matrix.get(i-1, j-1))
				}
			}
			row[k] += best
		}
	}
}

// backtrack walks from (N-1,M-1) to (0,0) along minimal predecessors.
// Among tied predecessors it takes the one nearest the line joining the
// two endpoints; the diagonal wins when it is no farther than the others.
func backtrack(matrix *costMatrix, n, m int) []AlignPoint {
	path := make([]AlignPoint, 0, n+m)
	i, j := n-1, m-1

	for {
		current := matrix.get(i, j)
		if i == 0 && j == 0 {
			path = append(path, AlignPoint{I: 0, J: 0, Cost: current})
			break
		}

		pi, pj := predecessor(matrix, i, j, n, m)
		path = append(path, AlignPoint{I: i, J: j, Cost: current - matrix.get(pi, pj)})
		i, j = pi, pj
	}

	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path
}

// tieTolerance is the relative gap under which cumulative costs count as equal
const tieTolerance = 1e-12

func predecessor(matrix *costMatrix, i, j, n, m int) (int, int) {
	if i == 0 {
		return 0, j - 1
	}
	if j == 0 {
		return i - 1, 0
	}

	// listed order settles equal offsets, diagonal first
	candidates := [3][2]int{{i - 1, j - 1}, {i - 1, j}, {i, j - 1}}
	var costs [3]float64
	best := math.Inf(1)
	for k, c := range candidates {
		costs[k] = matrix.get(c[0], c[1])
		best = math.Min(best, costs[k])
	}
	limit := best + tieTolerance*math.Max(1, math.Abs(best))

	chosen := -1
	var chosenOff int
	for k, c := range candidates {
		if math.IsInf(costs[k], 1) || costs[k] > limit {
			continue
		}
		off := slopeOffset(c[0], c[1], n, m)
		if chosen < 0 || off < chosenOff {
			chosen, chosenOff = k, off
		}
	}
	if chosen < 0 {
		return i - 1, j - 1
	}
	return candidates[chosen][0], candidates[chosen][1]
}

// slopeOffset is proportional to the distance of (i,j) from the line
// through (0,0) and (n-1,m-1)
func slopeOffset(i, j, n, m int) int {
	off := i*(m-1) - j*(n-1)
	if off < 0 {
		return -off
	}
	return off
}

// ValidatePath checks the warping path invariants for sequences of length
// n and m: it starts at (0,0), ends at (n-1,m-1), and every step advances
// I, J or both by exactly one.
func ValidatePath(path []AlignPoint, n, m int) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidWarpingPath)
	}
	if first := path[0]; first.I != 0 || first.J != 0 {
		return fmt.Errorf("%w: starts at (%d,%d)", ErrInvalidWarpingPath, first.I, first.J)
	}
	if last := path[len(path)-1]; last.I != n-1 || last.J != m-1 {
		return fmt.Errorf("%w: ends at (%d,%d), expected (%d,%d)", ErrInvalidWarpingPath, last.I, last.J, n-1, m-1)
	}
	for k := 1; k < len(path); k++ {
		di := path[k].I - path[k-1].I
		dj := path[k].J - path[k-1].J
		if di < 0 || dj < 0 || di > 1 || dj > 1 || di+dj == 0 {
			return fmt.Errorf("%w: step %d goes from (%d,%d) to (%d,%d)", ErrInvalidWarpingPath, k, path[k-1].I, path[k-1].J, path[k].I, path[k].J)
		}
	}
	return nil
}

// PathQuality summarises how well-behaved an alignment is.
//
//   - path_efficiency: max(N, M) / path length (1 for a pure diagonal-like path)
//   - diagonal_ratio: share of steps advancing both sequences
//   - average_cost: mean local cost along the path
//   - normalized_distance: total cost / path length
func PathQuality(result *DTWResult) map[string]float64 {
	if result == nil || len(result.Path) == 0 {
		return map[string]float64{}
	}

	quality := make(map[string]float64)

	expectedLength := math.Max(float64(result.LengthA), float64(result.LengthB))
	quality["path_efficiency"] = expectedLength / float64(len(result.Path))

	diagonalSteps := 0
	for k := 1; k < len(result.Path); k++ {
		if result.Path[k].I > result.Path[k-1].I && result.Path[k].J > result.Path[k-1].J {
			diagonalSteps++
		}
	}
	if len(result.Path) > 1 {
		quality["diagonal_ratio"] = float64(diagonalSteps) / float64(len(result.Path)-1)
	} else {
		quality["diagonal_ratio"] = 1.0
	}

	costs := make([]float64, len(result.Path))
	for k, p := range result.Path {
		costs[k] = p.Cost
	}
	quality["average_cost"] = floats.Sum(costs) / float64(len(costs))
	quality["normalized_distance"] = result.NormalizedDistance

	return quality
}
