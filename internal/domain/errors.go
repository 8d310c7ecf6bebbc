package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStation is returned when a measurement row references an
	// abbreviation that is not in the resolved station map.
	ErrUnknownStation = errors.New("unknown station")
	// ErrMissingField is returned when a required cell is absent, empty or "-".
	ErrMissingField = errors.New("missing field")
	ErrNotNumeric   = errors.New("not numeric")
	ErrBadTimestamp = errors.New("unparseable timestamp")

	// ErrNoKindMatched and ErrAmbiguousKind are table classification outcomes.
	ErrNoKindMatched = errors.New("no measurement kind matched")
	ErrAmbiguousKind = errors.New("ambiguous measurement kind")

	// ErrTooFewRows marks a feed body that held no rows once the footer was stripped.
	ErrTooFewRows = errors.New("too few rows")

	// ErrCircuitOpen is returned instead of a request while a feed's breaker is open.
	ErrCircuitOpen = errors.New("circuit open")
)

// FetchError is the per-feed failure produced by the fetch stage.
type FetchError struct {
	Locator string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Locator, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RowError describes one rejected measurement row. Row is the zero-based data
// row index within its table.
type RowError struct {
	Kind    Kind
	Row     int
	Station string
	Err     error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d (station %q): %v", e.Kind, e.Row, e.Station, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// TableError describes a feed table that could not be parsed or classified.
type TableError struct {
	Source string
	Err    error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("table %s: %v", e.Source, e.Err)
}

func (e *TableError) Unwrap() error { return e.Err }

// PersistenceError is the only failure that aborts an ingestion batch.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
