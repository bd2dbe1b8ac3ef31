package timemap

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"
)

var (
	// ErrDegenerateMap means fewer than two anchors survived interpretation.
	ErrDegenerateMap = errors.New("degenerate time map")

	// ErrNonMonotone means anchors are out of order.
	ErrNonMonotone = errors.New("time map is not monotone")
)

// Anchor pairs an instant in the replacement signal with the instant in
// the original signal it should land on. Both are in seconds.
type Anchor struct {
	Replacement float64 `json:"replacement"`
	Original    float64 `json:"original"`
}

// TimeMap is a piecewise-linear monotone map from replacement time to
// original time. Replacement times strictly increase; original times never
// decrease.
type TimeMap struct {
	Anchors []Anchor `json:"anchors"`
}

// New copies anchors into a map and validates it
func New(anchors []Anchor) (*TimeMap, error) {
	tm := &TimeMap{Anchors: append([]Anchor(nil), anchors...)}
	if err := tm.Validate(); err != nil {
		return nil, err
	}
	return tm, nil
}

// Len returns the number of anchors
func (tm *TimeMap) Len() int {
	return len(tm.Anchors)
}

// Validate checks anchor count, ordering and finiteness
func (tm *TimeMap) Validate() error {
	if tm == nil || len(tm.Anchors) < 2 {
		n := 0
		if tm != nil {
			n = len(tm.Anchors)
		}
		return errors.Wrapf(ErrDegenerateMap, "%d anchors, need at least 2", n)
	}
	for k, a := range tm.Anchors {
		if !finite(a.Replacement) || !finite(a.Original) {
			return errors.Wrapf(ErrNonMonotone, "anchor %d is not finite", k)
		}
		if k == 0 {
			continue
		}
		prev := tm.Anchors[k-1]
		if a.Replacement <= prev.Replacement {
			return errors.Wrapf(ErrNonMonotone, "replacement time %g at anchor %d does not exceed %g", a.Replacement, k, prev.Replacement)
		}
		if a.Original < prev.Original {
			return errors.Wrapf(ErrNonMonotone, "original time %g at anchor %d is before %g", a.Original, k, prev.Original)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Domain returns the replacement-time span covered by the map
func (tm *TimeMap) Domain() (start, end float64) {
	return tm.Anchors[0].Replacement, tm.Anchors[len(tm.Anchors)-1].Replacement
}

// Range returns the original-time span covered by the map
func (tm *TimeMap) Range() (start, end float64) {
	return tm.Anchors[0].Original, tm.Anchors[len(tm.Anchors)-1].Original
}

// Extend returns a copy pinned at (0, 0) and at (replacementDuration,
// originalDuration). Each pin is added only when it keeps both coordinates
// strictly increasing, so the result covers the whole of both signals
// whenever the interpreted anchors lie strictly inside them.
func (tm *TimeMap) Extend(replacementDuration, originalDuration float64) *TimeMap {
	anchors := make([]Anchor, 0, len(tm.Anchors)+2)

	if first := tm.Anchors[0]; first.Replacement > 0 && first.Original > 0 {
		anchors = append(anchors, Anchor{})
	}
	anchors = append(anchors, tm.Anchors...)
	if last := tm.Anchors[len(tm.Anchors)-1]; replacementDuration > last.Replacement && originalDuration > last.Original {
		anchors = append(anchors, Anchor{Replacement: replacementDuration, Original: originalDuration})
	}

	return &TimeMap{Anchors: anchors}
}

// OriginalAt maps a replacement time forward. Times outside the domain
// hold the nearest anchor and report clamped.
func (tm *TimeMap) OriginalAt(rt float64) (ot float64, clamped bool) {
	a := tm.Anchors
	if rt < a[0].Replacement {
		return a[0].Original, true
	}
	if rt > a[len(a)-1].Replacement {
		return a[len(a)-1].Original, true
	}

	k := sort.Search(len(a), func(i int) bool { return a[i].Replacement >= rt })
	if k == 0 {
		return a[0].Original, false
	}
	return lerp(a[k-1].Replacement, a[k-1].Original, a[k].Replacement, a[k].Original, rt), false
}

// ReplacementAt inverts the map. Times outside the range hold the nearest
// anchor and report clamped. Within a flat segment the latest replacement
// time wins.
func (tm *TimeMap) ReplacementAt(ot float64) (rt float64, clamped bool) {
	return tm.Inverse().ReplacementAt(ot)
}

// Inverse returns a cursor for evaluating the inverse map at a
// non-decreasing series of original times in amortised O(1).
func (tm *TimeMap) Inverse() *InverseCursor {
	return &InverseCursor{anchors: tm.Anchors}
}

// InverseCursor evaluates the inverse map, remembering the last segment.
// Not safe for concurrent use.
type InverseCursor struct {
	anchors []Anchor
	seg     int // index of the segment's right anchor once positioned
}

// ReplacementAt returns the replacement time for original time ot.
// Queries may go backwards; the cursor then re-seeks.
func (c *InverseCursor) ReplacementAt(ot float64) (rt float64, clamped bool) {
	a := c.anchors
	last := len(a) - 1
	if ot < a[0].Original {
		return a[0].Replacement, true
	}
	if ot > a[last].Original {
		return a[last].Replacement, true
	}

	if c.seg < 1 || c.seg > last || a[c.seg-1].Original > ot {
		c.seg = max(1, sort.Search(len(a), func(i int) bool { return a[i].Original >= ot }))
	}
	// skip segments ending before ot, then through flat segments at ot
	for c.seg < last && a[c.seg].Original < ot {
		c.seg++
	}
	for c.seg < last && a[c.seg+1].Original == ot {
		c.seg++
	}

	left, right := a[c.seg-1], a[c.seg]
	if right.Original == left.Original {
		return right.Replacement, false
	}
	return lerp(left.Original, left.Replacement, right.Original, right.Replacement, ot), false
}

func lerp(x0, y0, x1, y1, x float64) float64 {
	if x1 == x0 {
		return y1
	}
	return y0 + (x-x0)*(y1-y0)/(x1-x0)
}

// String summarises the map for logs
func (tm *TimeMap) String() string {
	if tm == nil || len(tm.Anchors) == 0 {
		return "TimeMap{}"
	}
	replStart, replEnd := tm.Domain()
	origStart, origEnd := tm.Range()
	return fmt.Sprintf("TimeMap{%d anchors, replacement %.3fs-%.3fs -> original %.3fs-%.3fs}",
		len(tm.Anchors), replStart, replEnd, origStart, origEnd)
}
