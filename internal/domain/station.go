package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Station is a fixed measurement location. Abbreviation is the natural key;
// ID is assigned by the store on first insert.
type Station struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name" validate:"required"`
	Abbreviation string  `json:"abbreviation" validate:"required"`
	Latitude     float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude    float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Altitude     float64 `json:"altitude"`
}

// Validate checks the fields a station needs before it can be stored.
func (s Station) Validate() error {
	return validate.Struct(s)
}

// StationColumns names the header cells station attributes are read from.
type StationColumns struct {
	Name         string
	Abbreviation string
	Latitude     string
	Longitude    string
	Altitude     string
}

// DefaultStationColumns matches the MeteoSwiss feeds.
func DefaultStationColumns() StationColumns {
	return StationColumns{
		Name:         "Station",
		Abbreviation: "Abbr.",
		Latitude:     "Latitude",
		Longitude:    "Longitude",
		Altitude:     "Measurement height m a. sea level",
	}
}

// StationFromRow builds a validated station from one feed row.
func StationFromRow(row Row, cols StationColumns) (Station, error) {
	s := Station{
		Name:         strings.TrimSpace(row[cols.Name]),
		Abbreviation: strings.TrimSpace(row[cols.Abbreviation]),
	}
	var err error
	if s.Latitude, err = parseValue(row[cols.Latitude]); err != nil {
		return Station{}, fmt.Errorf("latitude: %w", err)
	}
	if s.Longitude, err = parseValue(row[cols.Longitude]); err != nil {
		return Station{}, fmt.Errorf("longitude: %w", err)
	}
	if s.Altitude, err = parseValue(row[cols.Altitude]); err != nil {
		return Station{}, fmt.Errorf("altitude: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Station{}, fmt.Errorf("%w: %v", ErrMissingField, err)
	}
	return s, nil
}

// StationCandidates collects stations from every table. Rows that do not form
// a valid station are skipped; the first row seen for an abbreviation wins.
func StationCandidates(tables []Table, cols StationColumns) []Station {
	seen := make(map[string]bool)
	var out []Station
	for _, t := range tables {
		for _, row := range t.Rows {
			s, err := StationFromRow(row, cols)
			if err != nil || seen[s.Abbreviation] {
				continue
			}
			seen[s.Abbreviation] = true
			out = append(out, s)
		}
	}
	return out
}

// NewStations returns the candidates whose abbreviation is not already known.
func NewStations(candidates, known []Station) []Station {
	have := make(map[string]bool, len(known))
	for _, s := range known {
		have[s.Abbreviation] = true
	}
	var out []Station
	for _, s := range candidates {
		if have[s.Abbreviation] {
			continue
		}
		have[s.Abbreviation] = true
		out = append(out, s)
	}
	return out
}

// StationIndex maps abbreviation to station id.
func StationIndex(stations []Station) map[string]int64 {
	ids := make(map[string]int64, len(stations))
	for _, s := range stations {
		ids[s.Abbreviation] = s.ID
	}
	return ids
}

