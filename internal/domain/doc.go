// Package domain models weather-station measurements and the comparison of
// two independently sampled time series.
//
// # Data Source
//
// Station measurements come from the MeteoSwiss open-data "messwerte" feeds
// published at https://data.geo.admin.ch/. Each feed is a single CSV file with
// the current 10-minute value of one quantity for every automatic station:
//
//	ch.meteoschweiz.messwerte-lufttemperatur-10min         temperature
//	ch.meteoschweiz.messwerte-luftfeuchtigkeit-10min       relative humidity
//	ch.meteoschweiz.messwerte-windgeschwindigkeit-kmh-10min wind speed + direction
//	ch.meteoschweiz.messwerte-niederschlag-10min           precipitation
//
// # Feed Conventions
//
// Encoding: ISO-8859-1. Station names such as "Zürich / Fluntern" arrive as
// single bytes and are decoded without ever failing on a byte value.
//
// Delimiter: ";". The header row names every column verbatim, including units:
//
//	Station;Abbr.;Measurement date;Temperature °C;Latitude;Longitude;Measurement height m a. sea level
//
// Footer: every file ends with a fixed number of legend/disclaimer lines after
// the data rows. They are dropped by count, not by content (see [ParseTable]).
//
// Missing values: "-" or an empty cell. Such a row is rejected with
// [ErrMissingField] rather than stored as zero.
//
// Timestamps: free text, typically "2024-06-14 10:20" in UTC. Layouts are tried
// in order by [ParseTimestamp]; a value without an offset is interpreted in the
// configured feed zone.
//
// # Measurement Kinds
//
// The kind of a table is never taken from its URL. It is derived from the
// column headers: each [KindSpec] declares a marker substring and the table
// must match exactly one KindSpec (see [ClassifyTable]).
//
//	temperature    "Temperature"
//	humidity       "Humidity"
//	wind           "Wind km/h"   (+ "Wind direction" for the direction column)
//	precipitation  "Precipitation mm"
//
// # Identity
//
// A station's abbreviation is its natural key across runs. The numeric id is
// assigned by the store on first insert and never changes. A measurement is
// keyed by (station id, timestamp) per kind; re-ingesting the same key is a
// no-op.
//
// # Comparison
//
// A reporting pass pairs every point of one series with the nearest point of a
// second series inside a tolerance window ([Align]), derives an approximate dew
// point ([DewPoint]) and buckets each timestamp into morning, afternoon or night
// relative to the sun at a fixed site ([DaytimeClassifier]).
package domain
