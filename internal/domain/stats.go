package domain

import (
	"math"
	"sort"
	"time"
)

// MonthlyStat summarizes one column over one calendar month. Low and High are
// the smallest and largest daily mean in the month.
type MonthlyStat struct {
	Month  time.Time `json:"month"`
	Column string    `json:"column"`
	Count  int       `json:"count"`
	Mean   float64   `json:"mean"`
	Low    float64   `json:"low"`
	High   float64   `json:"high"`
}

type accumulator struct {
	n   int
	sum float64
}

func (a *accumulator) add(v float64) {
	a.n++
	a.sum += v
}

func (a accumulator) mean() float64 {
	if a.n == 0 {
		return math.NaN()
	}
	return a.sum / float64(a.n)
}

// MonthlySummary computes per-month statistics for each column, grouping by
// calendar month and day in loc. NaN values are ignored. Results are ordered
// by month, then by the order of columns.
func MonthlySummary(s Series, columns []string, loc *time.Location) []MonthlyStat {
	if loc == nil {
		loc = time.UTC
	}
	type monthKey struct {
		month time.Time
		col   string
	}
	months := make(map[monthKey]*accumulator)
	days := make(map[monthKey]map[time.Time]*accumulator)

	for _, p := range s {
		local := p.Timestamp.In(loc)
		month := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		for _, col := range columns {
			v := p.Value(col)
			if math.IsNaN(v) {
				continue
			}
			k := monthKey{month, col}
			if months[k] == nil {
				months[k] = &accumulator{}
				days[k] = make(map[time.Time]*accumulator)
			}
			months[k].add(v)
			if days[k][day] == nil {
				days[k][day] = &accumulator{}
			}
			days[k][day].add(v)
		}
	}

	colOrder := make(map[string]int, len(columns))
	for i, c := range columns {
		colOrder[c] = i
	}

	out := make([]MonthlyStat, 0, len(months))
	for k, acc := range months {
		low, high := math.Inf(1), math.Inf(-1)
		for _, d := range days[k] {
			m := d.mean()
			low = math.Min(low, m)
			high = math.Max(high, m)
		}
		out = append(out, MonthlyStat{
			Month:  k.month,
			Column: k.col,
			Count:  acc.n,
			Mean:   acc.mean(),
			Low:    low,
			High:   high,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Month.Equal(out[j].Month) {
			return out[i].Month.Before(out[j].Month)
		}
		return colOrder[out[i].Column] < colOrder[out[j].Column]
	})
	return out
}

// DiffMonthly subtracts b from a for every month and column present in both.
// Count is the smaller of the two counts.
func DiffMonthly(a, b []MonthlyStat) []MonthlyStat {
	type key struct {
		month int64
		col   string
	}
	other := make(map[key]MonthlyStat, len(b))
	for _, s := range b {
		other[key{s.Month.Unix(), s.Column}] = s
	}
	var out []MonthlyStat
	for _, s := range a {
		o, ok := other[key{s.Month.Unix(), s.Column}]
		if !ok {
			continue
		}
		out = append(out, MonthlyStat{
			Month:  s.Month,
			Column: s.Column,
			Count:  min(s.Count, o.Count),
			Mean:   s.Mean - o.Mean,
			Low:    s.Low - o.Low,
			High:   s.High - o.High,
		})
	}
	return out
}

// BucketStat summarizes the deltas of one column within one daytime bucket.
type BucketStat struct {
	Column string  `json:"column"`
	Bucket Bucket  `json:"bucket"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// BucketSummary aggregates record deltas per column and bucket. Records
// without a delta are ignored. Results follow the column order of first
// appearance, then bucket display order.
func BucketSummary(records []ComparisonRecord) []BucketStat {
	type key struct {
		col    string
		bucket Bucket
	}
	stats := make(map[key]*BucketStat)
	var cols []string
	seenCol := make(map[string]bool)

	for _, r := range records {
		if r.Delta == nil {
			continue
		}
		if !seenCol[r.Column] {
			seenCol[r.Column] = true
			cols = append(cols, r.Column)
		}
		k := key{r.Column, r.Bucket}
		st := stats[k]
		if st == nil {
			st = &BucketStat{Column: r.Column, Bucket: r.Bucket, Min: math.Inf(1), Max: math.Inf(-1)}
			stats[k] = st
		}
		d := *r.Delta
		st.Count++
		st.Mean += d
		st.Min = math.Min(st.Min, d)
		st.Max = math.Max(st.Max, d)
	}

	var out []BucketStat
	for _, col := range cols {
		for _, b := range Buckets() {
			st, ok := stats[key{col, b}]
			if !ok {
				continue
			}
			st.Mean /= float64(st.Count)
			out = append(out, *st)
		}
	}
	return out
}
