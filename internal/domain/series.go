package domain

import (
	"math"
	"sort"
	"time"
)

// Column names used by the comparison pass.
const (
	ColumnTemperature = "temperature"
	ColumnHumidity    = "humidity"
	ColumnDewPoint    = "dew_point"
)

// Point is one row of a Series. A column that is absent reads as NaN.
type Point struct {
	Timestamp time.Time
	Values    map[string]float64
}

// Value returns the point's value for col, or NaN when the column is absent.
func (p Point) Value(col string) float64 {
	v, ok := p.Values[col]
	if !ok {
		return math.NaN()
	}
	return v
}

// Series is a collection of points. Order is significant: Align iterates and
// breaks ties in the order given.
type Series []Point

// SeriesFromMeasurements builds a one-column series ordered by timestamp.
func SeriesFromMeasurements(col string, ms []Measurement) Series {
	s := make(Series, 0, len(ms))
	for _, m := range ms {
		s = append(s, Point{Timestamp: m.Timestamp, Values: map[string]float64{col: m.Value}})
	}
	s.Sort()
	return s
}

// Sort orders the series by timestamp, keeping the relative order of equal
// timestamps.
func (s Series) Sort() {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Timestamp.Before(s[j].Timestamp) })
}

// Between returns the points with from <= t < to. A zero bound is open.
func (s Series) Between(from, to time.Time) Series {
	var out Series
	for _, p := range s {
		if !from.IsZero() && p.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !p.Timestamp.Before(to) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// LeftJoin returns a copy of s where every point also carries the columns of
// the point in other with the exact same timestamp. Points of s without a
// partner keep only their own columns.
func (s Series) LeftJoin(other Series) Series {
	byTime := make(map[int64]Point, len(other))
	for _, p := range other {
		k := p.Timestamp.UnixNano()
		if _, dup := byTime[k]; !dup {
			byTime[k] = p
		}
	}
	out := make(Series, len(s))
	for i, p := range s {
		values := make(map[string]float64, len(p.Values)+1)
		if match, ok := byTime[p.Timestamp.UnixNano()]; ok {
			for k, v := range match.Values {
				values[k] = v
			}
		}
		for k, v := range p.Values {
			values[k] = v
		}
		out[i] = Point{Timestamp: p.Timestamp, Values: values}
	}
	return out
}

// WithDewPoint returns a copy of s with a dew_point column derived from the
// temperature and humidity columns.
func (s Series) WithDewPoint() Series {
	out := make(Series, len(s))
	for i, p := range s {
		values := make(map[string]float64, len(p.Values)+1)
		for k, v := range p.Values {
			values[k] = v
		}
		values[ColumnDewPoint] = DewPoint(p.Value(ColumnTemperature), p.Value(ColumnHumidity))
		out[i] = Point{Timestamp: p.Timestamp, Values: values}
	}
	return out
}
