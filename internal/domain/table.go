package domain

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// FeedResult is the outcome of downloading one feed. Exactly one of Body and
// Err is meaningful; Err is a *FetchError.
type FeedResult struct {
	Locator string
	Body    []byte
	Err     error
}

// Row maps a header cell to the row's value in that column.
type Row map[string]string

// Table is a parsed feed body. Header keeps the column names exactly as the
// feed spells them.
type Table struct {
	Source string
	Header []string
	Rows   []Row
}

// Empty reports whether the table has no header, which is what a body with
// fewer lines than the footer produces.
func (t Table) Empty() bool {
	return len(t.Header) == 0
}

// HeaderContaining returns the first header cell containing substr.
func (t Table) HeaderContaining(substr string) (string, bool) {
	for _, h := range t.Header {
		if strings.Contains(h, substr) {
			return h, true
		}
	}
	return "", false
}

// HasColumn reports whether name is one of the header cells.
func (t Table) HasColumn(name string) bool {
	for _, h := range t.Header {
		if h == name {
			return true
		}
	}
	return false
}

// ParseOptions controls how a feed body is split into rows.
type ParseOptions struct {
	Delimiter   rune
	FooterLines int
}

// DefaultParseOptions matches the MeteoSwiss 10-minute feeds.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{Delimiter: ';', FooterLines: 5}
}

// ParseTable decodes an ISO-8859-1 feed body, drops the trailing footer lines
// and reads the remainder as delimited text with a header row.
//
// A single trailing newline terminates the last line and is not counted as a
// footer line. When the body has no more lines than the footer, the result is
// an empty table and no error.
func ParseTable(raw []byte, opts ParseOptions) (Table, error) {
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return Table{}, fmt.Errorf("decode: %w", err)
	}

	text := strings.TrimSuffix(string(decoded), "\n")
	if text == "" {
		return Table{}, nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= opts.FooterLines {
		return Table{}, nil
	}
	lines = lines[:len(lines)-opts.FooterLines]

	r := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	r.Comma = opts.Delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}

	t := Table{Header: header}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row %d: %w", len(t.Rows), err)
		}
		row := make(Row, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = rec[i]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
