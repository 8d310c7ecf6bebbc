package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/meteo-etl-service/internal/domain"
	"github.com/couchcryptid/meteo-etl-service/internal/pipeline"
)

var zurichSite = domain.Site{Latitude: 47.3769, Longitude: 8.5417, Location: time.UTC}

func june14(hour, minute int) time.Time {
	return time.Date(2024, 6, 14, hour, minute, 0, 0, time.UTC)
}

var wholeDay = domain.TimeRange{From: june14(0, 0), To: june14(0, 0).AddDate(0, 0, 1)}

// seedStation stores SMA with the given humidity and temperature readings,
// keyed by minutes after 10:00.
func seedStation(t *testing.T, store domain.Store, humidity, temperature map[int]float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.InsertStations(ctx, []domain.Station{
		{Name: "Zürich / Fluntern", Abbreviation: "SMA", Latitude: 47.3779, Longitude: 8.5656, Altitude: 556},
	}))
	stations, err := store.KnownStations(ctx)
	require.NoError(t, err)
	id := stations[0].ID

	insert := func(kind domain.Kind, values map[int]float64) {
		var ms []domain.Measurement
		for minute, v := range values {
			ms = append(ms, domain.Measurement{Kind: kind, StationID: id, Timestamp: june14(10, minute), Value: v})
		}
		_, err := store.InsertMeasurements(ctx, kind, ms)
		require.NoError(t, err)
	}
	insert(domain.KindHumidity, humidity)
	insert(domain.KindTemperature, temperature)
}

func refPoint(ts time.Time, temp, hum float64) domain.Point {
	return domain.Point{Timestamp: ts, Values: map[string]float64{
		domain.ColumnTemperature: temp,
		domain.ColumnHumidity:    hum,
	}}
}

func compareOptions(policy domain.UndefinedPolicy) pipeline.CompareOptions {
	return pipeline.CompareOptions{
		Tolerance: 5 * time.Minute,
		Policy:    policy,
		Site:      zurichSite,
	}
}

func TestComparer_Compare_NearestWithinTolerance(t *testing.T) {
	store := newStore(t)
	seedStation(t, store, map[int]float64{0: 60, 10: 62}, map[int]float64{0: 20, 10: 21})
	reference := domain.Series{
		refPoint(june14(10, 25), 25, 50),
		refPoint(june14(10, 3), 21, 70),
	}
	c := pipeline.NewComparer(store, compareOptions(domain.DropUndefined), discardLogger())

	res, err := c.Compare(context.Background(), "SMA", wholeDay, reference)

	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "SMA", res.Station.Abbreviation)
	require.Len(t, res.Meteo, 2)
	assert.InDelta(t, 12.0, res.Meteo[0].Value(domain.ColumnDewPoint), 1e-9)
	require.Len(t, res.Reference, 2)
	assert.Equal(t, june14(10, 3), res.Reference[0].Timestamp, "reference is sorted")

	for _, col := range pipeline.DefaultColumns() {
		require.Len(t, res.Aligned[col], 1, col)
		assert.Equal(t, june14(10, 0), res.Aligned[col][0].Timestamp)
	}

	require.Len(t, res.Records, 3)
	want := map[string]float64{
		domain.ColumnTemperature: 1,
		domain.ColumnHumidity:    10,
		domain.ColumnDewPoint:    3,
	}
	for i, col := range pipeline.DefaultColumns() {
		rec := res.Records[i]
		assert.Equal(t, col, rec.Column)
		assert.Equal(t, "SMA", rec.Station)
		assert.Equal(t, domain.BucketMorning, rec.Bucket)
		require.NotNil(t, rec.Delta)
		assert.InDelta(t, want[col], *rec.Delta, 1e-9, col)
	}

	require.NotEmpty(t, res.Buckets)
	assert.Equal(t, domain.ColumnTemperature, res.Buckets[0].Column)
	assert.Equal(t, domain.BucketMorning, res.Buckets[0].Bucket)
	assert.Equal(t, 1, res.Buckets[0].Count)
	assert.InDelta(t, 1.0, res.Buckets[0].Mean, 1e-9)
}

func TestComparer_Compare_UndefinedPolicy(t *testing.T) {
	// Humidity at 10:10 has no temperature partner, so the meteo temperature
	// and dew point are undefined there.
	humidity := map[int]float64{0: 60, 10: 62}
	temperature := map[int]float64{0: 20}
	reference := domain.Series{
		refPoint(june14(10, 1), 21, 70),
		refPoint(june14(10, 11), 22, 71),
	}

	t.Run("drop", func(t *testing.T) {
		store := newStore(t)
		seedStation(t, store, humidity, temperature)
		c := pipeline.NewComparer(store, compareOptions(domain.DropUndefined), discardLogger())

		res, err := c.Compare(context.Background(), "SMA", wholeDay, reference)

		require.NoError(t, err)
		assert.Len(t, res.Aligned[domain.ColumnTemperature], 1)
		assert.Len(t, res.Aligned[domain.ColumnHumidity], 2)
		assert.Len(t, res.Aligned[domain.ColumnDewPoint], 1)
		assert.Len(t, res.Records, 4)
	})

	t.Run("keep", func(t *testing.T) {
		store := newStore(t)
		seedStation(t, store, humidity, temperature)
		c := pipeline.NewComparer(store, compareOptions(domain.KeepUndefined), discardLogger())

		res, err := c.Compare(context.Background(), "SMA", wholeDay, reference)

		require.NoError(t, err)
		require.Len(t, res.Aligned[domain.ColumnTemperature], 2)
		assert.Len(t, res.Records, 6)

		var undefined *domain.ComparisonRecord
		for i := range res.Records {
			r := res.Records[i]
			if r.Column == domain.ColumnTemperature && r.Timestamp.Equal(june14(10, 10)) {
				undefined = &res.Records[i]
			}
		}
		require.NotNil(t, undefined)
		assert.Nil(t, undefined.A)
		require.NotNil(t, undefined.B)
		assert.InDelta(t, 22.0, *undefined.B, 1e-9)
		assert.Nil(t, undefined.Delta)
	})
}

func TestComparer_Compare_RestrictsToRange(t *testing.T) {
	store := newStore(t)
	seedStation(t, store, map[int]float64{0: 60, 30: 61}, map[int]float64{0: 20, 30: 21})
	reference := domain.Series{
		refPoint(june14(10, 2), 21, 70),
		refPoint(june14(10, 31), 22, 71),
	}
	c := pipeline.NewComparer(store, compareOptions(domain.DropUndefined), discardLogger())

	res, err := c.Compare(context.Background(), "SMA", domain.TimeRange{From: june14(10, 15), To: june14(11, 0)}, reference)

	require.NoError(t, err)
	require.Len(t, res.Meteo, 1)
	require.Len(t, res.Reference, 1)
	assert.Equal(t, june14(10, 30), res.Aligned[domain.ColumnHumidity][0].Timestamp)
}

func TestComparer_Compare_MonthlyStatistics(t *testing.T) {
	store := newStore(t)
	seedStation(t, store, map[int]float64{0: 60, 10: 70}, map[int]float64{0: 20, 10: 22})
	reference := domain.Series{
		refPoint(june14(10, 0), 23, 65),
		refPoint(june14(10, 10), 25, 75),
	}
	c := pipeline.NewComparer(store, compareOptions(domain.DropUndefined), discardLogger())

	res, err := c.Compare(context.Background(), "SMA", wholeDay, reference)

	require.NoError(t, err)
	require.NotEmpty(t, res.MeteoMonthly)
	assert.Equal(t, domain.ColumnTemperature, res.MeteoMonthly[0].Column)
	assert.InDelta(t, 21.0, res.MeteoMonthly[0].Mean, 1e-9)
	assert.InDelta(t, 24.0, res.ReferenceMonthly[0].Mean, 1e-9)
	assert.InDelta(t, 3.0, res.MonthlyDelta[0].Mean, 1e-9)
	assert.Equal(t, 2, res.MonthlyDelta[0].Count)
}

func TestComparer_Compare_UnknownStation(t *testing.T) {
	store := newStore(t)
	c := pipeline.NewComparer(store, compareOptions(domain.DropUndefined), discardLogger())

	_, err := c.Compare(context.Background(), "XYZ", wholeDay, nil)

	assert.ErrorIs(t, err, domain.ErrUnknownStation)
}

type recordingSink struct {
	runID   string
	records []domain.ComparisonRecord
	calls   int
	err     error
}

func (s *recordingSink) LoadBatch(_ context.Context, runID string, records []domain.ComparisonRecord) error {
	s.calls++
	s.runID = runID
	s.records = records
	return s.err
}

func TestComparer_Publish(t *testing.T) {
	c := pipeline.NewComparer(newStore(t), compareOptions(domain.DropUndefined), discardLogger())
	a, b := 20.0, 21.0
	res := pipeline.ComparisonResult{
		RunID:   "run-1",
		Station: domain.Station{Abbreviation: "SMA"},
		Records: []domain.ComparisonRecord{{Station: "SMA", Column: domain.ColumnTemperature, A: &a, B: &b}},
	}

	t.Run("sends records", func(t *testing.T) {
		sink := &recordingSink{}
		require.NoError(t, c.Publish(context.Background(), sink, res))
		assert.Equal(t, 1, sink.calls)
		assert.Equal(t, "run-1", sink.runID)
		assert.Len(t, sink.records, 1)
	})

	t.Run("skips empty result", func(t *testing.T) {
		sink := &recordingSink{}
		require.NoError(t, c.Publish(context.Background(), sink, pipeline.ComparisonResult{RunID: "run-2"}))
		assert.Equal(t, 0, sink.calls)
	})

	t.Run("wraps sink error", func(t *testing.T) {
		sinkErr := errors.New("broker unavailable")
		err := c.Publish(context.Background(), &recordingSink{err: sinkErr}, res)
		assert.ErrorIs(t, err, sinkErr)
	})
}
