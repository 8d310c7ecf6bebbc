package reference

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/meteo-etl-service/internal/domain"
)

func TestLoad(t *testing.T) {
	in := "timestamp, temperature, humidity\n" +
		"2024-06-14 10:20,21.5,55\n" +
		"2024-06-14 10:05,21.0,\n"

	s, err := Load(strings.NewReader(in), DefaultOptions())

	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.Equal(t, time.Date(2024, 6, 14, 10, 5, 0, 0, time.UTC), s[0].Timestamp)
	assert.InDelta(t, 21.0, s[0].Value(domain.ColumnTemperature), 1e-9)
	assert.True(t, math.IsNaN(s[0].Value(domain.ColumnHumidity)))
	assert.InDelta(t, 55.0, s[1].Value(domain.ColumnHumidity), 1e-9)
}

func TestLoadLocation(t *testing.T) {
	opts := DefaultOptions()
	opts.Location = time.FixedZone("CEST", 2*60*60)
	opts.Delimiter = ';'

	s, err := Load(strings.NewReader("timestamp;temperature\n2024-06-14 12:00;20\n"), opts)

	require.NoError(t, err)
	require.Len(t, s, 1)
	assert.Equal(t, time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC), s[0].Timestamp)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		wantMsg string
	}{
		{"no timestamp column", "time,temperature\n2024-06-14 10:00,1\n", domain.ErrMissingField, "timestamp"},
		{"bad timestamp", "timestamp,temperature\nnoon,1\n", domain.ErrBadTimestamp, "line 2"},
		{"bad number", "timestamp,temperature\n2024-06-14 10:00,warm\n", domain.ErrNotNumeric, "temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input), DefaultOptions())
			require.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}

	_, err := Load(strings.NewReader(""), DefaultOptions())
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balcony.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,temperature\n2024-06-14T10:00:00Z,20\n"), 0o600))

	s, err := LoadFile(path, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, s, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"), DefaultOptions())
	assert.Error(t, err)
}
