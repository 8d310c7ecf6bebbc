// Package reference loads the externally recorded series a station is compared against.
package reference

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/meteo-etl-service/internal/domain"
)

// Options describes the reference file layout.
type Options struct {
	Delimiter       rune
	TimestampColumn string
	// Location applies to timestamps without an offset.
	Location *time.Location
}

// DefaultOptions reads a comma separated file with a "timestamp" column.
func DefaultOptions() Options {
	return Options{Delimiter: ',', TimestampColumn: "timestamp", Location: time.UTC}
}

// LoadFile reads the reference series at path.
func LoadFile(path string, opts Options) (domain.Series, error) {
	//nolint:gosec // G304: path comes from the operator's command line.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	s, err := Load(f, opts)
	if err != nil {
		return nil, fmt.Errorf("reference %s: %w", path, err)
	}
	return s, nil
}

// Load reads a reference series. Every column other than the timestamp is a
// numeric column; empty, "-" and "nan" cells are undefined. The result is
// ordered by timestamp.
func Load(r io.Reader, opts Options) (domain.Series, error) {
	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	tsIdx := -1
	for i, h := range header {
		if h == opts.TimestampColumn {
			tsIdx = i
			break
		}
	}
	if tsIdx < 0 {
		return nil, fmt.Errorf("%w: column %q", domain.ErrMissingField, opts.TimestampColumn)
	}

	var series domain.Series
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		ts, err := domain.ParseTimestamp(record[tsIdx], opts.Location)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		values := make(map[string]float64, len(header)-1)
		for i, h := range header {
			if i == tsIdx {
				continue
			}
			v, err := parseCell(record[i])
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, h, err)
			}
			values[h] = v
		}
		series = append(series, domain.Point{Timestamp: ts, Values: values})
	}

	series.Sort()
	return series, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrNotNumeric, s)
	}
	return v, nil
}
