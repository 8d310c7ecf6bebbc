package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/meteo-etl-service/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db, discardLogger()))
	return NewStore(db)
}

var (
	zurich = domain.Station{Name: "Zürich / Fluntern", Abbreviation: "SMA", Latitude: 47.3779, Longitude: 8.5656, Altitude: 556}
	basel  = domain.Station{Name: "Basel / Binningen", Abbreviation: "BAS", Latitude: 47.5411, Longitude: 7.5836, Altitude: 316}
)

func ts(hour, minute int) time.Time {
	return time.Date(2024, 6, 14, hour, minute, 0, 0, time.UTC)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := Open(MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(context.Background(), db, discardLogger()))
	require.NoError(t, Migrate(context.Background(), db, discardLogger()))

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpenFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "meteo.db")

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(context.Background(), db, discardLogger()))
	assert.FileExists(t, path)
}

func TestInsertStationsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertStations(ctx, []domain.Station{zurich, basel}))
	require.NoError(t, s.InsertStations(ctx, []domain.Station{zurich}))

	known, err := s.KnownStations(ctx)
	require.NoError(t, err)
	require.Len(t, known, 2)
	assert.Equal(t, "SMA", known[0].Abbreviation)
	assert.Equal(t, "Zürich / Fluntern", known[0].Name)
	assert.NotZero(t, known[0].ID)
	assert.NotEqual(t, known[0].ID, known[1].ID)
}

func TestInsertMeasurementsSkipsDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertStations(ctx, []domain.Station{zurich}))
	known, err := s.KnownStations(ctx)
	require.NoError(t, err)
	id := known[0].ID

	batch := []domain.Measurement{
		{Kind: domain.KindTemperature, StationID: id, Timestamp: ts(10, 0), Value: 18.4},
		{Kind: domain.KindTemperature, StationID: id, Timestamp: ts(10, 10), Value: 18.9},
	}

	n, err := s.InsertMeasurements(ctx, domain.KindTemperature, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.InsertMeasurements(ctx, domain.KindTemperature, batch[:1])
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := s.QueryMeasurements(ctx, domain.KindTemperature, id, domain.TimeRange{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ts(10, 0), got[0].Timestamp)
	assert.InDelta(t, 18.4, got[0].Value, 1e-9)
	assert.Equal(t, domain.KindTemperature, got[0].Kind)
}

func TestInsertMeasurementsUnknownStationFails(t *testing.T) {
	s := newTestStore(t)

	_, err := s.InsertMeasurements(context.Background(), domain.KindHumidity, []domain.Measurement{
		{StationID: 999, Timestamp: ts(10, 0), Value: 50},
	})

	var perr *domain.PersistenceError
	assert.ErrorAs(t, err, &perr)
}

func TestWindDirectionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertStations(ctx, []domain.Station{zurich}))
	known, _ := s.KnownStations(ctx)
	dir := 245.0

	_, err := s.InsertMeasurements(ctx, domain.KindWind, []domain.Measurement{
		{StationID: known[0].ID, Timestamp: ts(10, 0), Value: 12.6, Direction: &dir},
		{StationID: known[0].ID, Timestamp: ts(10, 10), Value: 3},
	})
	require.NoError(t, err)

	got, err := s.QueryMeasurements(ctx, domain.KindWind, known[0].ID, domain.TimeRange{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Direction)
	assert.InDelta(t, 245.0, *got[0].Direction, 1e-9)
	assert.Nil(t, got[1].Direction)
}

func TestQueryMeasurementsTimeRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertStations(ctx, []domain.Station{zurich, basel}))
	known, _ := s.KnownStations(ctx)

	_, err := s.InsertMeasurements(ctx, domain.KindHumidity, []domain.Measurement{
		{StationID: known[0].ID, Timestamp: ts(9, 0), Value: 1},
		{StationID: known[0].ID, Timestamp: ts(10, 0), Value: 2},
		{StationID: known[0].ID, Timestamp: ts(11, 0), Value: 3},
		{StationID: known[1].ID, Timestamp: ts(10, 0), Value: 4},
	})
	require.NoError(t, err)

	got, err := s.QueryMeasurements(ctx, domain.KindHumidity, known[0].ID, domain.TimeRange{From: ts(10, 0), To: ts(11, 0)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 2.0, got[0].Value, 1e-9)
}

func TestLatestTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertStations(ctx, []domain.Station{zurich}))
	known, _ := s.KnownStations(ctx)

	_, err := s.InsertMeasurements(ctx, domain.KindPrecipitation, []domain.Measurement{
		{StationID: known[0].ID, Timestamp: ts(9, 0), Value: 0},
		{StationID: known[0].ID, Timestamp: ts(9, 50), Value: 0.2},
	})
	require.NoError(t, err)

	latest, err := s.LatestTimestamps(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.Kind]time.Time{domain.KindPrecipitation: ts(9, 50)}, latest)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(r domain.Repository) error {
		require.NoError(t, r.InsertStations(ctx, []domain.Station{zurich}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	known, err := s.KnownStations(ctx)
	require.NoError(t, err)
	assert.Empty(t, known)
}

func TestWithinTxCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(r domain.Repository) error {
		if err := r.InsertStations(ctx, []domain.Station{basel}); err != nil {
			return err
		}
		known, err := r.KnownStations(ctx)
		if err != nil {
			return err
		}
		_, err = r.InsertMeasurements(ctx, domain.KindTemperature, []domain.Measurement{
			{StationID: known[0].ID, Timestamp: ts(10, 0), Value: 20},
		})
		return err
	})
	require.NoError(t, err)

	latest, err := s.LatestTimestamps(ctx)
	require.NoError(t, err)
	assert.Equal(t, ts(10, 0), latest[domain.KindTemperature])
}

func TestUnknownKind(t *testing.T) {
	s := newTestStore(t)

	_, err := s.InsertMeasurements(context.Background(), domain.Kind("snow"), []domain.Measurement{{}})
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "resolve table", perr.Op)
}
