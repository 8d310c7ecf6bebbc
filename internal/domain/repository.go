package domain

import (
	"context"
	"time"
)

// TimeRange selects instants with From <= t < To. A zero bound is open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Repository is the persistence boundary for stations and measurements.
// Measurement inserts skip keys that already exist and report how many rows
// were actually added.
type Repository interface {
	KnownStations(ctx context.Context) ([]Station, error)
	InsertStations(ctx context.Context, stations []Station) error
	InsertMeasurements(ctx context.Context, kind Kind, ms []Measurement) (int, error)
	QueryMeasurements(ctx context.Context, kind Kind, stationID int64, r TimeRange) ([]Measurement, error)
	LatestTimestamps(ctx context.Context) (map[Kind]time.Time, error)
}

// Store is a Repository that can group writes into one all-or-nothing batch.
type Store interface {
	Repository
	WithinTx(ctx context.Context, fn func(Repository) error) error
}
