package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/meteo-etl-service/internal/domain"
)

// measurementTables maps each kind to its fact table.
var measurementTables = map[domain.Kind]string{
	domain.KindTemperature:   "temperature_measurements",
	domain.KindHumidity:      "humidity_measurements",
	domain.KindWind:          "wind_measurements",
	domain.KindPrecipitation: "precipitation_measurements",
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store implements domain.Store on SQLite.
type Store struct {
	repo
	db *sql.DB
}

// NewStore wraps an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{repo: repo{q: db}, db: db}
}

// WithinTx runs fn against a repository bound to one transaction. The
// transaction commits only if fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(domain.Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "begin", Err: err}
	}
	if err := fn(&repo{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, &domain.PersistenceError{Op: "rollback", Err: rbErr})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "commit", Err: err}
	}
	return nil
}

type repo struct {
	q querier
}

func (r *repo) KnownStations(ctx context.Context) ([]domain.Station, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, abbreviation, latitude, longitude, altitude FROM stations ORDER BY id`)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "query stations", Err: err}
	}
	defer rows.Close()

	var out []domain.Station
	for rows.Next() {
		var s domain.Station
		if err := rows.Scan(&s.ID, &s.Name, &s.Abbreviation, &s.Latitude, &s.Longitude, &s.Altitude); err != nil {
			return nil, &domain.PersistenceError{Op: "scan station", Err: err}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "query stations", Err: err}
	}
	return out, nil
}

func (r *repo) InsertStations(ctx context.Context, stations []domain.Station) error {
	if len(stations) == 0 {
		return nil
	}
	stmt, err := r.q.PrepareContext(ctx, `
		INSERT INTO stations (name, abbreviation, latitude, longitude, altitude)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (abbreviation) DO NOTHING`)
	if err != nil {
		return &domain.PersistenceError{Op: "prepare station insert", Err: err}
	}
	defer stmt.Close()

	for _, s := range stations {
		if _, err := stmt.ExecContext(ctx, s.Name, s.Abbreviation, s.Latitude, s.Longitude, s.Altitude); err != nil {
			return &domain.PersistenceError{Op: "insert station " + s.Abbreviation, Err: err}
		}
	}
	return nil
}

func (r *repo) InsertMeasurements(ctx context.Context, kind domain.Kind, ms []domain.Measurement) (int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	if len(ms) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`INSERT INTO %s (station_id, ts, value) VALUES (?, ?, ?)
		ON CONFLICT (station_id, ts) DO NOTHING`, table)
	if kind == domain.KindWind {
		query = fmt.Sprintf(`INSERT INTO %s (station_id, ts, value, direction) VALUES (?, ?, ?, ?)
		ON CONFLICT (station_id, ts) DO NOTHING`, table)
	}
	stmt, err := r.q.PrepareContext(ctx, query)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "prepare " + table + " insert", Err: err}
	}
	defer stmt.Close()

	inserted := 0
	for _, m := range ms {
		args := []any{m.StationID, m.Timestamp.Unix(), m.Value}
		if kind == domain.KindWind {
			args = append(args, nullFloat(m.Direction))
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return inserted, &domain.PersistenceError{Op: "insert " + table, Err: err}
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

func (r *repo) QueryMeasurements(ctx context.Context, kind domain.Kind, stationID int64, tr domain.TimeRange) ([]domain.Measurement, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	from, to := int64(math.MinInt64), int64(math.MaxInt64)
	if !tr.From.IsZero() {
		from = tr.From.Unix()
	}
	if !tr.To.IsZero() {
		to = tr.To.Unix()
	}

	direction := "NULL"
	if kind == domain.KindWind {
		direction = "direction"
	}
	rows, err := r.q.QueryContext(ctx, fmt.Sprintf(
		`SELECT station_id, ts, value, %s FROM %s WHERE station_id = ? AND ts >= ? AND ts < ? ORDER BY ts`,
		direction, table), stationID, from, to)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "query " + table, Err: err}
	}
	defer rows.Close()

	var out []domain.Measurement
	for rows.Next() {
		var (
			m   = domain.Measurement{Kind: kind}
			ts  int64
			dir sql.NullFloat64
		)
		if err := rows.Scan(&m.StationID, &ts, &m.Value, &dir); err != nil {
			return nil, &domain.PersistenceError{Op: "scan " + table, Err: err}
		}
		m.Timestamp = time.Unix(ts, 0).UTC()
		if dir.Valid {
			d := dir.Float64
			m.Direction = &d
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "query " + table, Err: err}
	}
	return out, nil
}

func (r *repo) LatestTimestamps(ctx context.Context) (map[domain.Kind]time.Time, error) {
	out := make(map[domain.Kind]time.Time, len(measurementTables))
	for _, kind := range domain.Kinds() {
		table := measurementTables[kind]
		rows, err := r.q.QueryContext(ctx, "SELECT MAX(ts) FROM "+table)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "latest " + table, Err: err}
		}
		var ts sql.NullInt64
		if rows.Next() {
			err = rows.Scan(&ts)
		}
		rows.Close()
		if err != nil {
			return nil, &domain.PersistenceError{Op: "latest " + table, Err: err}
		}
		if ts.Valid {
			out[kind] = time.Unix(ts.Int64, 0).UTC()
		}
	}
	return out, nil
}

func tableFor(kind domain.Kind) (string, error) {
	table, ok := measurementTables[kind]
	if !ok {
		return "", &domain.PersistenceError{Op: "resolve table", Err: fmt.Errorf("unknown kind %q", kind)}
	}
	return table, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
