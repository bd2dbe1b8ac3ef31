package stats_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/RyanBlaney/sonido-sync/algorithms/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scalarSequence(values ...float64) [][]float64 {
	seq := make([][]float64, len(values))
	for i, v := range values {
		seq[i] = []float64{v}
	}
	return seq
}

func randomSequence(rng *rand.Rand, n, dim int) [][]float64 {
	seq := make([][]float64, n)
	for i := range seq {
		seq[i] = make([]float64, dim)
		for k := range seq[i] {
			seq[i][k] = rng.NormFloat64()
		}
	}
	return seq
}

func requireValidPath(t *testing.T, result *stats.DTWResult, n, m int) {
	t.Helper()
	require.NoError(t, stats.ValidatePath(result.Path, n, m))
}

func TestDTW_SelfAlignmentIsDiagonal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := randomSequence(rng, 50, 13)

	result, err := stats.NewDTWAlignment().Align(a, a)
	require.NoError(t, err)
	requireValidPath(t, result, 50, 50)

	require.Len(t, result.Path, 50)
	for k, p := range result.Path {
		assert.Equal(t, k, p.I)
		assert.Equal(t, k, p.J)
		assert.Zero(t, p.Cost)
	}
	assert.Zero(t, result.Distance)
	assert.Zero(t, result.NormalizedDistance)
}

func TestDTW_CompressedDiagonal(t *testing.T) {
	// A holds every value of B twice: a 2x slower rendition
	a := make([]float64, 200)
	for i := range a {
		a[i] = float64(i / 2)
	}
	b := make([]float64, 100)
	for j := range b {
		b[j] = float64(j)
	}

	result, err := stats.NewDTWAlignment().Align(scalarSequence(a...), scalarSequence(b...))
	require.NoError(t, err)
	requireValidPath(t, result, 200, 100)

	assert.Zero(t, result.Distance)
	for _, p := range result.Path {
		assert.Equal(t, p.I/2, p.J, "point (%d,%d) off the compressed diagonal", p.I, p.J)
	}
}

func TestDTW_PauseProducesVerticalRun(t *testing.T) {
	// B repeats value 4 five times where A holds it once
	a := scalarSequence(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	b := scalarSequence(0, 1, 2, 3, 4, 4, 4, 4, 4, 5, 6, 7, 8, 9)

	result, err := stats.NewDTWAlignment().Align(a, b)
	require.NoError(t, err)
	requireValidPath(t, result, 10, 14)
	assert.Zero(t, result.Distance)

	var run []int
	for _, p := range result.Path {
		if p.I == 4 {
			run = append(run, p.J)
		}
	}
	assert.Equal(t, []int{4, 5, 6, 7, 8}, run)
}

func TestDTW_SingleFrames(t *testing.T) {
	result, err := stats.NewDTWAlignment().Align(scalarSequence(1), scalarSequence(4))
	require.NoError(t, err)

	require.Len(t, result.Path, 1)
	assert.Equal(t, stats.AlignPoint{I: 0, J: 0, Cost: 3}, result.Path[0])
	assert.Equal(t, 3.0, result.Distance)
	assert.Equal(t, 1, result.CellsEvaluated)
}

func TestDTW_SingleRowAgainstMany(t *testing.T) {
	result, err := stats.NewDTWAlignment(stats.WithBandRadius(0)).Align(
		scalarSequence(0),
		scalarSequence(0, 1, 2),
	)
	require.NoError(t, err)
	requireValidPath(t, result, 1, 3)
	assert.Len(t, result.Path, 3)
	assert.Equal(t, 3.0, result.Distance)
}

func TestDTW_EqualCostsPreferDiagonal(t *testing.T) {
	zeros := scalarSequence(0, 0, 0, 0, 0)
	result, err := stats.NewDTWAlignment().Align(zeros, zeros)
	require.NoError(t, err)

	require.Len(t, result.Path, 5)
	for k, p := range result.Path {
		assert.Equal(t, stats.AlignPoint{I: k, J: k}, p)
	}
}

func TestDTW_TiedCostsFollowSlopeLine(t *testing.T) {
	for _, dims := range [][2]int{{200, 100}, {100, 200}, {150, 61}} {
		n, m := dims[0], dims[1]
		a := make([][]float64, n)
		for i := range a {
			a[i] = []float64{1, 2, 3}
		}
		b := make([][]float64, m)
		for j := range b {
			b[j] = []float64{1, 2, 3}
		}

		result, err := stats.NewDTWAlignment().Align(a, b)
		require.NoError(t, err)
		requireValidPath(t, result, n, m)
		assert.Zero(t, result.Distance)

		// every point stays within a frame or two of the straight line
		worst := 0.0
		for _, p := range result.Path {
			want := float64(p.I) * float64(m-1) / float64(n-1)
			worst = math.Max(worst, math.Abs(float64(p.J)-want))
		}
		assert.LessOrEqual(t, worst, 1.0+1e-9, "%dx%d", n, m)
	}
}

func TestDTW_IdenticalHalfLengthStaysOnCompressedDiagonal(t *testing.T) {
	a := make([][]float64, 200)
	for i := range a {
		a[i] = []float64{0.5, -0.25}
	}
	b := a[:100]

	result, err := stats.NewDTWAlignment().Align(a, b)
	require.NoError(t, err)
	requireValidPath(t, result, 200, 100)

	maxOff, longestRun, run := 0, 0, 0
	for k, p := range result.Path {
		off := p.I - 2*p.J
		if off < 0 {
			off = -off
		}
		maxOff = max(maxOff, off)

		if k > 0 && result.Path[k-1].J == p.J {
			run++
		} else {
			run = 1
		}
		longestRun = max(longestRun, run)
	}
	assert.LessOrEqual(t, maxOff, 2)
	assert.LessOrEqual(t, longestRun, 3)
}

func TestDTW_WideBandMatchesFullMatrix(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := randomSequence(rng, 60, 4)
	b := randomSequence(rng, 45, 4)

	full, err := stats.NewDTWAlignment().Align(a, b)
	require.NoError(t, err)

	wide, err := stats.NewDTWAlignment(stats.WithBandRadius(100)).Align(a, b)
	require.NoError(t, err)

	assert.Equal(t, full.Path, wide.Path)
	assert.Equal(t, full.Distance, wide.Distance)
	assert.Equal(t, 60*45, wide.CellsEvaluated)
}

func TestDTW_NarrowBand(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := randomSequence(rng, 120, 6)
	b := randomSequence(rng, 70, 6)

	full, err := stats.NewDTWAlignment().Align(a, b)
	require.NoError(t, err)

	for _, radius := range []int{0, 1, 3, 10} {
		banded, err := stats.NewDTWAlignment(stats.WithBandRadius(radius)).Align(a, b)
		require.NoError(t, err, "radius %d", radius)
		requireValidPath(t, banded, 120, 70)

		assert.GreaterOrEqual(t, banded.Distance, full.Distance-1e-9, "radius %d", radius)
		assert.Less(t, banded.CellsEvaluated, full.CellsEvaluated, "radius %d", radius)
		assert.Equal(t, radius, banded.BandRadius)
	}
}

func TestDTW_BandFollowsSlope(t *testing.T) {
	a := make([]float64, 200)
	for i := range a {
		a[i] = float64(i / 2)
	}
	b := make([]float64, 100)
	for j := range b {
		b[j] = float64(j)
	}

	// the exact 2:1 alignment stays inside a radius-2 band around the
	// endpoint-to-endpoint line
	result, err := stats.NewDTWAlignment(stats.WithBandRadius(2)).Align(scalarSequence(a...), scalarSequence(b...))
	require.NoError(t, err)
	assert.Zero(t, result.Distance)
}

func TestDTW_Errors(t *testing.T) {
	dtw := stats.NewDTWAlignment()

	_, err := dtw.Align(nil, scalarSequence(1))
	assert.ErrorIs(t, err, stats.ErrEmptySequence)

	_, err = dtw.Align(scalarSequence(1), [][]float64{})
	assert.ErrorIs(t, err, stats.ErrEmptySequence)

	_, err = dtw.Align([][]float64{{1, 2}}, [][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, stats.ErrIncompatibleFeatures)

	_, err = dtw.Align([][]float64{{1, 2}, {1}}, [][]float64{{1, 2}})
	assert.ErrorIs(t, err, stats.ErrIncompatibleFeatures)

	_, err = dtw.Align([][]float64{{}}, [][]float64{{}})
	assert.ErrorIs(t, err, stats.ErrIncompatibleFeatures)
}

func TestDTW_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	a := randomSequence(rng, 80, 13)
	b := randomSequence(rng, 95, 13)

	first, err := stats.NewDTWAlignment(stats.WithWorkers(1)).Align(a, b)
	require.NoError(t, err)

	for range 3 {
		again, err := stats.NewDTWAlignment(stats.WithWorkers(8)).Align(a, b)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDTW_PathCostsSumToDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := randomSequence(rng, 40, 3)
	b := randomSequence(rng, 55, 3)

	for _, metric := range []stats.DistanceMetric{stats.EuclideanDistance, stats.ManhattanDistance, stats.CosineDistance, stats.ChebyshevDistance} {
		result, err := stats.NewDTWAlignment(stats.WithDistanceMetric(metric)).Align(a, b)
		require.NoError(t, err)
		requireValidPath(t, result, 40, 55)

		sum := 0.0
		for _, p := range result.Path {
			assert.GreaterOrEqual(t, p.Cost, -1e-9)
			sum += p.Cost
		}
		assert.InDelta(t, result.Distance, sum, 1e-6, "metric %s", metric)
		assert.InDelta(t, result.Distance/float64(len(result.Path)), result.NormalizedDistance, 1e-12)
	}
}

func TestDTW_CustomDistance(t *testing.T) {
	calls := 0
	squared := func(a, b []float64) float64 {
		calls++
		d := a[0] - b[0]
		return d * d
	}

	result, err := stats.NewDTWAlignment(stats.WithDistanceFunc(squared), stats.WithWorkers(1)).
		Align(scalarSequence(0, 2), scalarSequence(0, 2))
	require.NoError(t, err)
	assert.Zero(t, result.Distance)
	assert.Equal(t, 4, calls)
}

func TestValidatePath(t *testing.T) {
	good := []stats.AlignPoint{{I: 0, J: 0}, {I: 1, J: 0}, {I: 1, J: 1}, {I: 2, J: 2}}
	assert.NoError(t, stats.ValidatePath(good, 3, 3))

	cases := map[string][]stats.AlignPoint{
		"empty":     nil,
		"bad start": {{I: 0, J: 1}, {I: 2, J: 2}},
		"bad end":   {{I: 0, J: 0}, {I: 1, J: 1}},
		"skip":      {{I: 0, J: 0}, {I: 2, J: 1}, {I: 2, J: 2}},
		"reversal":  {{I: 0, J: 0}, {I: 1, J: 1}, {I: 0, J: 2}, {I: 2, J: 2}},
		"repeat":    {{I: 0, J: 0}, {I: 0, J: 0}, {I: 1, J: 1}, {I: 2, J: 2}},
	}
	for name, path := range cases {
		assert.ErrorIs(t, stats.ValidatePath(path, 3, 3), stats.ErrInvalidWarpingPath, name)
	}
}

func TestPathQuality(t *testing.T) {
	zeros := scalarSequence(0, 0, 0, 0)
	result, err := stats.NewDTWAlignment().Align(zeros, zeros)
	require.NoError(t, err)

	quality := stats.PathQuality(result)
	assert.Equal(t, 1.0, quality["path_efficiency"])
	assert.Equal(t, 1.0, quality["diagonal_ratio"])
	assert.Zero(t, quality["average_cost"])

	assert.Empty(t, stats.PathQuality(nil))
}

func TestDistanceFunctions(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{4, 6, 3}

	assert.InDelta(t, 5.0, stats.EuclideanDistanceFunc(a, b), 1e-12)
	assert.InDelta(t, 7.0, stats.ManhattanDistanceFunc(a, b), 1e-12)
	assert.InDelta(t, 4.0, stats.ChebyshevDistanceFunc(a, b), 1e-12)
	assert.InDelta(t, 0.0, stats.CosineDistanceFunc(a, []float64{2, 4, 6}), 1e-12)
	assert.InDelta(t, 2.0, stats.CosineDistanceFunc(a, []float64{-1, -2, -3}), 1e-12)
	assert.Equal(t, 0.0, stats.CosineDistanceFunc([]float64{0, 0}, []float64{0, 0}))
	assert.Equal(t, 1.0, stats.CosineDistanceFunc([]float64{0, 0}, []float64{1, 0}))
	assert.False(t, math.IsNaN(stats.CosineDistanceFunc(a, a)))
}

func TestParseDistanceMetric(t *testing.T) {
	for name, want := range map[string]stats.DistanceMetric{
		"":          stats.EuclideanDistance,
		"Euclidean": stats.EuclideanDistance,
		"manhattan": stats.ManhattanDistance,
		"cosine":    stats.CosineDistance,
		"chebyshev": stats.ChebyshevDistance,
	} {
		got, err := stats.ParseDistanceMetric(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := stats.ParseDistanceMetric("mahalanobis")
	assert.Error(t, err)
}
