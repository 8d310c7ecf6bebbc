package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is one of the closed set of measurement streams.
type Kind string

const (
	KindTemperature   Kind = "temperature"
	KindHumidity      Kind = "humidity"
	KindWind          Kind = "wind"
	KindPrecipitation Kind = "precipitation"
)

// Kinds returns every measurement kind in a fixed order.
func Kinds() []Kind {
	return []Kind{KindTemperature, KindHumidity, KindWind, KindPrecipitation}
}

// KindSpec declares how a table of one kind is recognized and read. Marker is
// a substring of the value column header. DirectionMarker, when set, names a
// second required column holding a direction in degrees.
type KindSpec struct {
	Kind            Kind
	Marker          string
	DirectionMarker string
}

// DefaultKindSpecs returns the header markers used by the MeteoSwiss feeds.
func DefaultKindSpecs() []KindSpec {
	return []KindSpec{
		{Kind: KindTemperature, Marker: "Temperature"},
		{Kind: KindHumidity, Marker: "Humidity"},
		{Kind: KindWind, Marker: "Wind km/h", DirectionMarker: "Wind direction"},
		{Kind: KindPrecipitation, Marker: "Precipitation mm"},
	}
}

// Measurement is one observation of a kind at a station. Direction is only
// set for wind.
type Measurement struct {
	Kind      Kind      `json:"kind"`
	StationID int64     `json:"station_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Direction *float64  `json:"direction,omitempty"`
}

// Columns names the header cells a measurement row is read from.
type Columns struct {
	Station   string
	Timestamp string
	Value     string
	Direction string
}

// ClassifyTable picks the single KindSpec whose marker appears in the table's
// header. Zero or several matches are errors for this table only.
func ClassifyTable(t Table, kinds []KindSpec) (KindSpec, error) {
	var matched []KindSpec
	for _, spec := range kinds {
		if _, ok := t.HeaderContaining(spec.Marker); ok {
			matched = append(matched, spec)
		}
	}
	switch len(matched) {
	case 0:
		return KindSpec{}, ErrNoKindMatched
	case 1:
		return matched[0], nil
	default:
		names := make([]string, len(matched))
		for i, m := range matched {
			names[i] = string(m.Kind)
		}
		return KindSpec{}, fmt.Errorf("%w: %s", ErrAmbiguousKind, strings.Join(names, ", "))
	}
}

// ResolveColumns locates the columns s needs in t. stationCol and
// timestampCol are exact header names.
func (s KindSpec) ResolveColumns(t Table, stationCol, timestampCol string) (Columns, error) {
	cols := Columns{Station: stationCol, Timestamp: timestampCol}
	if !t.HasColumn(stationCol) {
		return Columns{}, fmt.Errorf("%w: column %q", ErrMissingField, stationCol)
	}
	if !t.HasColumn(timestampCol) {
		return Columns{}, fmt.Errorf("%w: column %q", ErrMissingField, timestampCol)
	}
	value, ok := t.HeaderContaining(s.Marker)
	if !ok {
		return Columns{}, fmt.Errorf("%w: column containing %q", ErrMissingField, s.Marker)
	}
	cols.Value = value
	if s.DirectionMarker != "" {
		dir, ok := t.HeaderContaining(s.DirectionMarker)
		if !ok {
			return Columns{}, fmt.Errorf("%w: column containing %q", ErrMissingField, s.DirectionMarker)
		}
		cols.Direction = dir
	}
	return cols, nil
}

// ConvertRow turns one feed row into a Measurement. Timestamps without an
// offset are read in loc.
func ConvertRow(spec KindSpec, row Row, ids map[string]int64, cols Columns, loc *time.Location) (Measurement, error) {
	abbr := strings.TrimSpace(row[cols.Station])
	if abbr == "" {
		return Measurement{}, fmt.Errorf("station: %w", ErrMissingField)
	}
	id, ok := ids[abbr]
	if !ok {
		return Measurement{}, fmt.Errorf("%w: %q", ErrUnknownStation, abbr)
	}

	ts, err := ParseTimestamp(row[cols.Timestamp], loc)
	if err != nil {
		return Measurement{}, err
	}

	value, err := parseValue(row[cols.Value])
	if err != nil {
		return Measurement{}, fmt.Errorf("%s: %w", cols.Value, err)
	}

	m := Measurement{Kind: spec.Kind, StationID: id, Timestamp: ts, Value: value}
	if cols.Direction != "" {
		dir, err := parseValue(row[cols.Direction])
		if err != nil {
			return Measurement{}, fmt.Errorf("%s: %w", cols.Direction, err)
		}
		m.Direction = &dir
	}
	return m, nil
}

// parseValue reads a numeric cell. The feeds mark missing readings with "-".
func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, ErrMissingField
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	return v, nil
}
