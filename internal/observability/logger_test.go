package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("feed fetch failed", "locator", "http://x")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "feed fetch failed", line["msg"])
	assert.Equal(t, "http://x", line["locator"])
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "text")

	logger.Debug("row rejected", "station", "SMA")

	assert.Contains(t, buf.String(), "row rejected")
	assert.Contains(t, buf.String(), "SMA")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
	assert.False(t, newLogger(&bytes.Buffer{}, "error", "json").Enabled(context.Background(), slog.LevelWarn))
}

func TestNewMetricsForTestingIsIndependent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.MeasurementsInserted.WithLabelValues("temperature").Add(3)

	assert.InDelta(t, 3.0, testutil.ToFloat64(a.MeasurementsInserted.WithLabelValues("temperature")), 1e-9)
	assert.InDelta(t, 0.0, testutil.ToFloat64(b.MeasurementsInserted.WithLabelValues("temperature")), 1e-9)
}
