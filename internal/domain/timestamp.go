package domain

import (
	"fmt"
	"strings"
	"time"
)

// zoneLayouts carry their own offset.
var zoneLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
}

// localLayouts are read in the caller's location.
var localLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"02.01.2006 15:04",
	"200601021504",
}

// ParseTimestamp parses a feed timestamp into a UTC instant. Values without an
// offset are interpreted in loc; a nil loc means UTC.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp: %w", ErrMissingField)
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zoneLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}
