package timemap_test

import (
	"math/rand"
	"testing"

	"github.com/RyanBlaney/sonido-sync/algorithms/stats"
	"github.com/RyanBlaney/sonido-sync/retime/timemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func path(points ...[2]int) []stats.AlignPoint {
	out := make([]stats.AlignPoint, len(points))
	for k, p := range points {
		out[k] = stats.AlignPoint{I: p[0], J: p[1]}
	}
	return out
}

func randomPath(rng *rand.Rand, steps int) []stats.AlignPoint {
	out := []stats.AlignPoint{{I: 0, J: 0}}
	for range steps {
		p := out[len(out)-1]
		switch rng.Intn(3) {
		case 0:
			p.I++
		case 1:
			p.J++
		default:
			p.I++
			p.J++
		}
		out = append(out, p)
	}
	return out
}

func TestToTimeMap_Diagonal(t *testing.T) {
	tm, err := timemap.NewInterpreter().ToTimeMap(path([2]int{0, 0}, [2]int{1, 1}, [2]int{2, 2}, [2]int{3, 3}), 100)
	require.NoError(t, err)

	require.Equal(t, 4, tm.Len())
	for k, a := range tm.Anchors {
		assert.InDelta(t, float64(k)/100, a.Replacement, 1e-12)
		assert.InDelta(t, float64(k)/100, a.Original, 1e-12)
	}
}

func TestToTimeMap_CompressedRunsUseMidpoint(t *testing.T) {
	// every replacement frame covers two original frames
	var points [][2]int
	for i := range 20 {
		points = append(points, [2]int{i, i / 2})
	}

	tm, err := timemap.NewInterpreter().ToTimeMap(path(points...), 10)
	require.NoError(t, err)

	require.Equal(t, 10, tm.Len())
	for j, a := range tm.Anchors {
		assert.InDelta(t, float64(j)/10, a.Replacement, 1e-12)
		assert.InDelta(t, (float64(2*j)+0.5)/10, a.Original, 1e-12)
	}
}

func TestToTimeMap_PauseCollapsesToOneAnchor(t *testing.T) {
	// replacement frames 2..4 all match original frame 2
	p := path([2]int{0, 0}, [2]int{1, 1}, [2]int{2, 2}, [2]int{2, 3}, [2]int{2, 4}, [2]int{3, 5})

	tm, err := timemap.NewInterpreter().ToTimeMap(p, 1)
	require.NoError(t, err)

	assert.Equal(t, []timemap.Anchor{
		{Replacement: 0, Original: 0},
		{Replacement: 1, Original: 1},
		{Replacement: 3, Original: 2},
		{Replacement: 5, Original: 3},
	}, tm.Anchors)
	assert.NoError(t, tm.Validate())
}

func TestToTimeMap_SingleFrameIsDegenerate(t *testing.T) {
	_, err := timemap.NewInterpreter().ToTimeMap(path([2]int{0, 0}), 100)
	assert.ErrorIs(t, err, timemap.ErrDegenerateMap)

	// one original frame against many replacement frames is one pause
	_, err = timemap.NewInterpreter().ToTimeMap(path([2]int{0, 0}, [2]int{0, 1}, [2]int{0, 2}), 100)
	assert.ErrorIs(t, err, timemap.ErrDegenerateMap)
}

func TestToTimeMap_InvalidInput(t *testing.T) {
	in := timemap.NewInterpreter()

	_, err := in.ToTimeMap(nil, 100)
	assert.ErrorIs(t, err, timemap.ErrInvalidPath)

	_, err = in.ToTimeMap(path([2]int{0, 0}, [2]int{1, 1}), 0)
	assert.ErrorIs(t, err, timemap.ErrInvalidPath)

	_, err = in.ToTimeMap(path([2]int{0, 0}, [2]int{2, 1}), 100)
	assert.ErrorIs(t, err, timemap.ErrInvalidPath)

	_, err = in.ToTimeMap(path([2]int{1, 0}, [2]int{2, 1}), 100)
	assert.ErrorIs(t, err, timemap.ErrInvalidPath)
}

func TestToTimeMap_RandomPathsAreStrictlyMonotone(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	in := timemap.NewInterpreter()

	for trial := range 200 {
		p := randomPath(rng, 5+rng.Intn(300))
		tm, err := in.ToTimeMap(p, 100)
		if err != nil {
			assert.ErrorIs(t, err, timemap.ErrDegenerateMap, "trial %d", trial)
			continue
		}
		for k := 1; k < tm.Len(); k++ {
			assert.Greater(t, tm.Anchors[k].Replacement, tm.Anchors[k-1].Replacement, "trial %d", trial)
			assert.Greater(t, tm.Anchors[k].Original, tm.Anchors[k-1].Original, "trial %d", trial)
		}
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := timemap.New([]timemap.Anchor{{0, 0}})
	assert.ErrorIs(t, err, timemap.ErrDegenerateMap)

	_, err = timemap.New([]timemap.Anchor{{0, 0}, {0, 1}})
	assert.ErrorIs(t, err, timemap.ErrNonMonotone)

	_, err = timemap.New([]timemap.Anchor{{0, 1}, {1, 0}})
	assert.ErrorIs(t, err, timemap.ErrNonMonotone)

	tm, err := timemap.New([]timemap.Anchor{{0, 0}, {1, 1}, {2, 1}})
	require.NoError(t, err)
	assert.Equal(t, 3, tm.Len())
}

func TestTimeMap_ForwardAndInverse(t *testing.T) {
	tm, err := timemap.New([]timemap.Anchor{{0, 0}, {1, 2}, {3, 3}})
	require.NoError(t, err)

	ot, clamped := tm.OriginalAt(0.5)
	assert.False(t, clamped)
	assert.InDelta(t, 1.0, ot, 1e-12)

	ot, _ = tm.OriginalAt(2)
	assert.InDelta(t, 2.5, ot, 1e-12)

	ot, clamped = tm.OriginalAt(10)
	assert.True(t, clamped)
	assert.Equal(t, 3.0, ot)

	rt, clamped := tm.ReplacementAt(1)
	assert.False(t, clamped)
	assert.InDelta(t, 0.5, rt, 1e-12)

	rt, _ = tm.ReplacementAt(2.5)
	assert.InDelta(t, 2.0, rt, 1e-12)

	rt, clamped = tm.ReplacementAt(-1)
	assert.True(t, clamped)
	assert.Equal(t, 0.0, rt)

	rt, clamped = tm.ReplacementAt(3)
	assert.False(t, clamped)
	assert.Equal(t, 3.0, rt)

	// forward then inverse is the identity inside the domain
	for _, x := range []float64{0, 0.25, 1, 1.7, 2.9} {
		o, _ := tm.OriginalAt(x)
		back, _ := tm.ReplacementAt(o)
		assert.InDelta(t, x, back, 1e-9)
	}
}

func TestTimeMap_InverseFlatSegmentTakesLatest(t *testing.T) {
	tm, err := timemap.New([]timemap.Anchor{{0, 0}, {1, 1}, {2, 1}, {3, 2}})
	require.NoError(t, err)

	rt, clamped := tm.ReplacementAt(1)
	assert.False(t, clamped)
	assert.Equal(t, 2.0, rt)
}

func TestInverseCursor_MatchesRandomAccess(t *testing.T) {
	tm, err := timemap.New([]timemap.Anchor{{0, 0}, {0.5, 0.2}, {1, 1.1}, {1.2, 1.1}, {2, 1.9}, {3, 4}})
	require.NoError(t, err)

	cursor := tm.Inverse()
	for k := range 500 {
		ot := float64(k) * 0.01
		want, wantClamped := tm.ReplacementAt(ot)
		got, gotClamped := cursor.ReplacementAt(ot)
		assert.InDelta(t, want, got, 1e-12, "ot=%g", ot)
		assert.Equal(t, wantClamped, gotClamped, "ot=%g", ot)
	}

	// going backwards re-seeks
	got, _ := cursor.ReplacementAt(0.1)
	assert.InDelta(t, 0.25, got, 1e-12)
}

func TestTimeMap_Extend(t *testing.T) {
	tm, err := timemap.New([]timemap.Anchor{{0.1, 0.2}, {0.9, 1.8}})
	require.NoError(t, err)

	ext := tm.Extend(1.0, 2.0)
	assert.Equal(t, []timemap.Anchor{{0, 0}, {0.1, 0.2}, {0.9, 1.8}, {1.0, 2.0}}, ext.Anchors)
	assert.NoError(t, ext.Validate())
	assert.Equal(t, 2, tm.Len(), "Extend must not modify the receiver")

	// pins that would break strict monotonicity are skipped
	edge, err := timemap.New([]timemap.Anchor{{0, 0.5}, {1, 2}})
	require.NoError(t, err)
	assert.Equal(t, edge.Anchors, edge.Extend(1, 3).Anchors)

	start, end := ext.Domain()
	assert.Equal(t, 0.0, start)
	assert.Equal(t, 1.0, end)
	assert.Contains(t, ext.String(), "4 anchors")
}
