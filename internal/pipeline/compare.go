package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/meteo-etl-service/internal/config"
	"github.com/couchcryptid/meteo-etl-service/internal/domain"
)

// RecordSink receives the tidy comparison records of one pass.
type RecordSink interface {
	LoadBatch(ctx context.Context, runID string, records []domain.ComparisonRecord) error
}

// CompareOptions configures a Comparer.
type CompareOptions struct {
	Tolerance time.Duration
	Policy    domain.UndefinedPolicy
	Site      domain.Site
	Columns   []string
}

// DefaultColumns are the columns compared between the station and the reference.
func DefaultColumns() []string {
	return []string{domain.ColumnTemperature, domain.ColumnHumidity, domain.ColumnDewPoint}
}

// CompareOptionsFromConfig maps the ALIGN_* and SITE_* settings.
func CompareOptionsFromConfig(cfg *config.Config) CompareOptions {
	return CompareOptions{
		Tolerance: cfg.AlignTolerance,
		Policy:    cfg.UndefinedPolicy(),
		Site:      cfg.Site(),
		Columns:   DefaultColumns(),
	}
}

// ComparisonResult is everything one comparison pass produces.
type ComparisonResult struct {
	RunID     string
	Station   domain.Station
	Range     domain.TimeRange
	Meteo     domain.Series
	Reference domain.Series

	// Aligned holds the paired rows of each column, aligned independently.
	Aligned map[string][]domain.AlignedRow
	Records []domain.ComparisonRecord

	MeteoMonthly     []domain.MonthlyStat
	ReferenceMonthly []domain.MonthlyStat
	MonthlyDelta     []domain.MonthlyStat
	Buckets          []domain.BucketStat
}

// Comparer reads a station's stored series and compares it with a reference
// series.
type Comparer struct {
	repo       domain.Repository
	opts       CompareOptions
	classifier *domain.DaytimeClassifier
	logger     *slog.Logger
}

// NewComparer creates a Comparer. Sun times are cached for the Comparer's
// lifetime.
func NewComparer(repo domain.Repository, opts CompareOptions, logger *slog.Logger) *Comparer {
	if len(opts.Columns) == 0 {
		opts.Columns = DefaultColumns()
	}
	return &Comparer{
		repo:       repo,
		opts:       opts,
		classifier: domain.NewDaytimeClassifier(opts.Site),
		logger:     logger,
	}
}

// Compare builds the station's meteo series (humidity left-joined with
// temperature, plus dew point), derives dew point for the reference, and
// aligns the two per column within r. reference need not be sorted.
func (c *Comparer) Compare(ctx context.Context, station string, r domain.TimeRange, reference domain.Series) (ComparisonResult, error) {
	st, err := c.findStation(ctx, station)
	if err != nil {
		return ComparisonResult{}, err
	}

	meteo, err := c.meteoSeries(ctx, st.ID, r)
	if err != nil {
		return ComparisonResult{}, err
	}

	ref := make(domain.Series, len(reference))
	copy(ref, reference)
	ref.Sort()
	ref = ref.Between(r.From, r.To).WithDewPoint()

	res := ComparisonResult{
		RunID:     uuid.NewString(),
		Station:   st,
		Range:     r,
		Meteo:     meteo,
		Reference: ref,
		Aligned:   make(map[string][]domain.AlignedRow, len(c.opts.Columns)),
	}

	for _, col := range c.opts.Columns {
		cols := []string{col}
		rows := domain.Align(meteo, ref, c.opts.Tolerance, cols, c.opts.Policy)
		res.Aligned[col] = rows
		res.Records = append(res.Records, domain.ComparisonRecords(st.Abbreviation, rows, cols, c.classifier)...)
	}

	loc := c.opts.Site.Location
	res.MeteoMonthly = domain.MonthlySummary(meteo, c.opts.Columns, loc)
	res.ReferenceMonthly = domain.MonthlySummary(ref, c.opts.Columns, loc)
	res.MonthlyDelta = domain.DiffMonthly(res.ReferenceMonthly, res.MeteoMonthly)
	res.Buckets = domain.BucketSummary(res.Records)

	c.logger.Info("comparison complete",
		"run_id", res.RunID,
		"station", st.Abbreviation,
		"meteo_points", len(meteo),
		"reference_points", len(ref),
		"records", len(res.Records),
		"sun_days_cached", c.classifier.CachedDays(),
	)
	return res, nil
}

// Publish hands the result's records to sink. An empty result is not sent.
func (c *Comparer) Publish(ctx context.Context, sink RecordSink, res ComparisonResult) error {
	if len(res.Records) == 0 {
		c.logger.Warn("no comparison records to publish", "run_id", res.RunID, "station", res.Station.Abbreviation)
		return nil
	}
	if err := sink.LoadBatch(ctx, res.RunID, res.Records); err != nil {
		return fmt.Errorf("publish comparison records: %w", err)
	}
	c.logger.Info("comparison records published", "run_id", res.RunID, "count", len(res.Records))
	return nil
}

func (c *Comparer) findStation(ctx context.Context, abbr string) (domain.Station, error) {
	stations, err := c.repo.KnownStations(ctx)
	if err != nil {
		return domain.Station{}, err
	}
	for _, s := range stations {
		if s.Abbreviation == abbr {
			return s, nil
		}
	}
	return domain.Station{}, fmt.Errorf("%w: %q", domain.ErrUnknownStation, abbr)
}

func (c *Comparer) meteoSeries(ctx context.Context, stationID int64, r domain.TimeRange) (domain.Series, error) {
	humidity, err := c.repo.QueryMeasurements(ctx, domain.KindHumidity, stationID, r)
	if err != nil {
		return nil, err
	}
	temperature, err := c.repo.QueryMeasurements(ctx, domain.KindTemperature, stationID, r)
	if err != nil {
		return nil, err
	}
	joined := domain.SeriesFromMeasurements(domain.ColumnHumidity, humidity).
		LeftJoin(domain.SeriesFromMeasurements(domain.ColumnTemperature, temperature))
	return joined.WithDewPoint(), nil
}
