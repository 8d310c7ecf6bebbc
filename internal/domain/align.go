package domain

import (
	"math"
	"sort"
	"time"
)

// UndefinedPolicy decides what Align does with a paired row where some
// column's delta is NaN.
type UndefinedPolicy int

const (
	// DropUndefined removes the whole row.
	DropUndefined UndefinedPolicy = iota
	// KeepUndefined emits the row with NaN values in place.
	KeepUndefined
)

// AlignedValue holds one column of a paired row. Delta is B - A.
type AlignedValue struct {
	A     float64
	B     float64
	Delta float64
}

// AlignedRow pairs a point of series A with its nearest partner in series B.
// Timestamp is the A point's timestamp.
type AlignedRow struct {
	Timestamp time.Time
	Values    map[string]AlignedValue
}

// Align pairs every point of a, in a's order, with the point of b nearest in
// time strictly inside (t-tolerance, t+tolerance). Points of a without a
// candidate are dropped. Among equally near candidates the one that comes
// first in b wins. A tolerance of zero or less never matches.
//
// b is indexed once by timestamp, so each lookup is a binary search for the
// window bounds plus a scan of the candidates inside it, rather than a scan
// over all of b.
func Align(a, b Series, tolerance time.Duration, columns []string, policy UndefinedPolicy) []AlignedRow {
	idx := newTimeIndex(b)
	out := make([]AlignedRow, 0, len(a))
	for _, pa := range a {
		j, ok := idx.nearest(pa.Timestamp, tolerance)
		if !ok {
			continue
		}
		pb := b[j]

		row := AlignedRow{Timestamp: pa.Timestamp, Values: make(map[string]AlignedValue, len(columns))}
		defined := true
		for _, col := range columns {
			va, vb := pa.Value(col), pb.Value(col)
			v := AlignedValue{A: va, B: vb, Delta: vb - va}
			if math.IsNaN(v.Delta) {
				defined = false
			}
			row.Values[col] = v
		}
		if !defined && policy == DropUndefined {
			continue
		}
		out = append(out, row)
	}
	return out
}

type indexEntry struct {
	ts  time.Time
	pos int
}

// timeIndex is b's positions sorted by timestamp. Equal timestamps keep b's
// order, so the lowest position among ties is always reached first.
type timeIndex []indexEntry

func newTimeIndex(s Series) timeIndex {
	idx := make(timeIndex, len(s))
	for i, p := range s {
		idx[i] = indexEntry{ts: p.Timestamp, pos: i}
	}
	sort.SliceStable(idx, func(i, j int) bool { return idx[i].ts.Before(idx[j].ts) })
	return idx
}

// nearest returns the position in the indexed series of the best candidate for t.
func (idx timeIndex) nearest(t time.Time, tolerance time.Duration) (int, bool) {
	if tolerance <= 0 {
		return 0, false
	}
	start, end := t.Add(-tolerance), t.Add(tolerance)
	lo := sort.Search(len(idx), func(i int) bool { return idx[i].ts.After(start) })
	hi := sort.Search(len(idx), func(i int) bool { return !idx[i].ts.Before(end) })
	if lo >= hi {
		return 0, false
	}

	best, bestPos := time.Duration(math.MaxInt64), -1
	for _, e := range idx[lo:hi] {
		d := absDuration(e.ts.Sub(t))
		if d < best || (d == best && e.pos < bestPos) {
			best, bestPos = d, e.pos
		}
	}
	return bestPos, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
