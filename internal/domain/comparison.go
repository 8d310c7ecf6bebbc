package domain

import (
	"math"
	"time"
)

// ComparisonRecord is the tidy output of a comparison pass: one column of one
// aligned row. A, B and Delta are nil when the value is undefined.
type ComparisonRecord struct {
	Station   string    `json:"station"`
	Timestamp time.Time `json:"timestamp"`
	Column    string    `json:"column"`
	A         *float64  `json:"a"`
	B         *float64  `json:"b"`
	Delta     *float64  `json:"delta"`
	Bucket    Bucket    `json:"bucket"`
}

// Key identifies the record within a run.
func (r ComparisonRecord) Key() string {
	return r.Station + "|" + r.Column + "|" + r.Timestamp.UTC().Format(time.RFC3339)
}

// Classifier assigns a daytime bucket to an instant.
type Classifier interface {
	Classify(t time.Time) Bucket
}

// ComparisonRecords flattens aligned rows into one record per column, in row
// order and then column order.
func ComparisonRecords(station string, rows []AlignedRow, columns []string, c Classifier) []ComparisonRecord {
	out := make([]ComparisonRecord, 0, len(rows)*len(columns))
	for _, row := range rows {
		bucket := c.Classify(row.Timestamp)
		for _, col := range columns {
			v, ok := row.Values[col]
			if !ok {
				continue
			}
			out = append(out, ComparisonRecord{
				Station:   station,
				Timestamp: row.Timestamp,
				Column:    col,
				A:         optional(v.A),
				B:         optional(v.B),
				Delta:     optional(v.Delta),
				Bucket:    bucket,
			})
		}
	}
	return out
}

func optional(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
