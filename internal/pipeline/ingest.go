package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/meteo-etl-service/internal/config"
	"github.com/couchcryptid/meteo-etl-service/internal/domain"
	"github.com/couchcryptid/meteo-etl-service/internal/observability"
)

// Fetcher downloads every locator and returns one result per locator, in order.
type Fetcher interface {
	FetchAll(ctx context.Context, locators []string) []domain.FeedResult
}

// IngestOptions configures an Ingestor.
type IngestOptions struct {
	Locators        []string
	Kinds           []domain.KindSpec
	Parse           domain.ParseOptions
	StationColumn   string
	TimestampColumn string
	StationColumns  domain.StationColumns
	FeedLocation    *time.Location
	StaleAfter      time.Duration
}

// IngestOptionsFromConfig maps the feed, column, and freshness settings.
func IngestOptionsFromConfig(cfg *config.Config) IngestOptions {
	sc := domain.DefaultStationColumns()
	sc.Abbreviation = cfg.StationColumn
	return IngestOptions{
		Locators:        cfg.FeedURLs,
		Kinds:           cfg.KindSpecs(),
		Parse:           cfg.ParseOptions(),
		StationColumn:   cfg.StationColumn,
		TimestampColumn: cfg.TimestampColumn,
		StationColumns:  sc,
		FeedLocation:    cfg.FeedLocation,
		StaleAfter:      cfg.StaleAfter,
	}
}

// IngestReport summarizes one run. Failures other than persistence faults are
// collected here instead of being returned.
type IngestReport struct {
	RunID       string              `json:"run_id"`
	StartedAt   time.Time           `json:"started_at"`
	Duration    time.Duration       `json:"-"`
	Feeds       int                 `json:"feeds"`
	Tables      int                 `json:"tables"`
	NewStations int                 `json:"new_stations"`
	Inserted    map[domain.Kind]int `json:"inserted"`
	StaleKinds  []domain.Kind       `json:"stale_kinds"`

	FeedErrors  []error `json:"-"`
	TableErrors []error `json:"-"`
	RowErrors   []error `json:"-"`
}

// RunSummary is the JSON view of an IngestReport served on /runs/latest.
type RunSummary struct {
	IngestReport
	DurationSeconds float64  `json:"duration_seconds"`
	FeedErrors      []string `json:"feed_errors"`
	TableErrors     []string `json:"table_errors"`
	RowErrors       int      `json:"row_errors"`
}

// Summary flattens the report for display.
func (r IngestReport) Summary() RunSummary {
	return RunSummary{
		IngestReport:    r,
		DurationSeconds: r.Duration.Seconds(),
		FeedErrors:      messages(r.FeedErrors),
		TableErrors:     messages(r.TableErrors),
		RowErrors:       len(r.RowErrors),
	}
}

// TotalInserted is the number of measurements stored across all kinds.
func (r IngestReport) TotalInserted() int {
	n := 0
	for _, c := range r.Inserted {
		n += c
	}
	return n
}

func messages(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

// Ingestor runs fetch, parse, station resolution, and measurement ingestion.
// Stations and measurements of one run are written in a single transaction.
type Ingestor struct {
	store   domain.Store
	fetcher Fetcher
	opts    IngestOptions
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool

	mu   sync.Mutex
	last *IngestReport
}

// NewIngestor creates an Ingestor.
func NewIngestor(store domain.Store, fetcher Fetcher, opts IngestOptions, logger *slog.Logger, metrics *observability.Metrics) *Ingestor {
	if opts.FeedLocation == nil {
		opts.FeedLocation = time.UTC
	}
	return &Ingestor{
		store:   store,
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a run has committed.
func (in *Ingestor) CheckReadiness(_ context.Context) error {
	if !in.ready.Load() {
		return errors.New("no ingestion run has completed yet")
	}
	return nil
}

// LastRun returns the summary of the most recent committed run.
func (in *Ingestor) LastRun() (any, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.last == nil {
		return nil, false
	}
	return in.last.Summary(), true
}

// RunScheduled adapts Run to the scheduler, which has no use for the result.
func (in *Ingestor) RunScheduled(ctx context.Context) {
	_, _ = in.Run(ctx)
}

// Run performs one ingestion pass. The returned error is non-nil only for
// persistence failures, in which case nothing from this run was stored.
func (in *Ingestor) Run(ctx context.Context) (IngestReport, error) {
	start := time.Now()
	report := IngestReport{
		RunID:     uuid.NewString(),
		StartedAt: domain.Now(),
		Feeds:     len(in.opts.Locators),
		Inserted:  make(map[domain.Kind]int),
	}
	logger := in.logger.With("run_id", report.RunID)

	in.metrics.PipelineRunning.Set(1)
	defer in.metrics.PipelineRunning.Set(0)

	tables := in.fetchAndParse(ctx, &report, logger)
	report.Tables = len(tables)

	err := in.store.WithinTx(ctx, func(repo domain.Repository) error {
		return in.ingest(ctx, repo, tables, &report, logger)
	})
	report.Duration = time.Since(start)
	in.metrics.RunDuration.Observe(report.Duration.Seconds())
	if err != nil {
		report.NewStations = 0
		report.Inserted = make(map[domain.Kind]int)
		in.metrics.RunsTotal.WithLabelValues("error").Inc()
		logger.Error("ingestion run failed", "error", err)
		return report, err
	}

	in.metrics.StationsInserted.Add(float64(report.NewStations))
	for kind, n := range report.Inserted {
		in.metrics.MeasurementsInserted.WithLabelValues(string(kind)).Add(float64(n))
	}
	in.metrics.RunsTotal.WithLabelValues("success").Inc()

	report.StaleKinds = in.checkFreshness(ctx, logger)

	logger.Info("ingestion run complete",
		"feeds", report.Feeds,
		"feed_errors", len(report.FeedErrors),
		"table_errors", len(report.TableErrors),
		"new_stations", report.NewStations,
		"inserted", report.TotalInserted(),
		"row_errors", len(report.RowErrors),
		"duration", report.Duration,
	)
	for _, kind := range domain.Kinds() {
		if n, ok := report.Inserted[kind]; ok {
			logger.Debug("measurements inserted", "kind", kind, "count", n)
		}
	}

	in.mu.Lock()
	last := report
	in.last = &last
	in.mu.Unlock()
	in.ready.Store(true)
	return report, nil
}

// fetchAndParse downloads all feeds and parses the bodies that arrived.
func (in *Ingestor) fetchAndParse(ctx context.Context, report *IngestReport, logger *slog.Logger) []domain.Table {
	results := in.fetcher.FetchAll(ctx, in.opts.Locators)
	tables := make([]domain.Table, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			logger.Warn("feed fetch failed", "locator", res.Locator, "error", res.Err)
			report.FeedErrors = append(report.FeedErrors, res.Err)
			continue
		}

		t, err := domain.ParseTable(res.Body, in.opts.Parse)
		if err != nil {
			in.tableError(report, logger, res.Locator, "parse", err)
			continue
		}
		if t.Empty() {
			in.tableError(report, logger, res.Locator, "empty", domain.ErrTooFewRows)
			continue
		}
		t.Source = res.Locator
		tables = append(tables, t)
	}
	return tables
}

// ingest resolves stations and stores measurements through repo. Only
// persistence errors are returned.
func (in *Ingestor) ingest(ctx context.Context, repo domain.Repository, tables []domain.Table, report *IngestReport, logger *slog.Logger) error {
	known, err := repo.KnownStations(ctx)
	if err != nil {
		return err
	}
	fresh := domain.NewStations(domain.StationCandidates(tables, in.opts.StationColumns), known)
	if len(fresh) > 0 {
		if err := repo.InsertStations(ctx, fresh); err != nil {
			return err
		}
		if known, err = repo.KnownStations(ctx); err != nil {
			return err
		}
	}
	report.NewStations = len(fresh)
	ids := domain.StationIndex(known)

	batches := make(map[domain.Kind][]domain.Measurement)
	for _, t := range tables {
		spec, cols, ok := in.route(t, report, logger)
		if !ok {
			continue
		}
		for i, row := range t.Rows {
			m, err := domain.ConvertRow(spec, row, ids, cols, in.opts.FeedLocation)
			if err != nil {
				rowErr := &domain.RowError{Kind: spec.Kind, Row: i, Station: row[cols.Station], Err: err}
				logger.Debug("row rejected", "source", t.Source, "error", rowErr)
				in.metrics.RowErrors.WithLabelValues(string(spec.Kind)).Inc()
				report.RowErrors = append(report.RowErrors, rowErr)
				continue
			}
			batches[spec.Kind] = append(batches[spec.Kind], m)
		}
	}

	for _, kind := range domain.Kinds() {
		ms, ok := batches[kind]
		if !ok {
			continue
		}
		n, err := repo.InsertMeasurements(ctx, kind, ms)
		if err != nil {
			return err
		}
		report.Inserted[kind] += n
	}
	return nil
}

// route picks the measurement kind of t and the columns it is read from.
func (in *Ingestor) route(t domain.Table, report *IngestReport, logger *slog.Logger) (domain.KindSpec, domain.Columns, bool) {
	spec, err := domain.ClassifyTable(t, in.opts.Kinds)
	if err != nil {
		reason := "no_kind"
		if errors.Is(err, domain.ErrAmbiguousKind) {
			reason = "ambiguous_kind"
		}
		in.tableError(report, logger, t.Source, reason, err)
		return domain.KindSpec{}, domain.Columns{}, false
	}
	cols, err := spec.ResolveColumns(t, in.opts.StationColumn, in.opts.TimestampColumn)
	if err != nil {
		in.tableError(report, logger, t.Source, "columns", fmt.Errorf("%s: %w", spec.Kind, err))
		return domain.KindSpec{}, domain.Columns{}, false
	}
	return spec, cols, true
}

func (in *Ingestor) tableError(report *IngestReport, logger *slog.Logger, source, reason string, err error) {
	tErr := &domain.TableError{Source: source, Err: err}
	logger.Warn("feed table skipped", "reason", reason, "error", tErr)
	in.metrics.TableErrors.WithLabelValues(reason).Inc()
	report.TableErrors = append(report.TableErrors, tErr)
}

// checkFreshness flags kinds without a recent measurement. A failed lookup is
// logged and leaves the gauges unchanged.
func (in *Ingestor) checkFreshness(ctx context.Context, logger *slog.Logger) []domain.Kind {
	if in.opts.StaleAfter <= 0 {
		return nil
	}
	latest, err := in.store.LatestTimestamps(ctx)
	if err != nil {
		logger.Error("freshness check failed", "error", err)
		return nil
	}

	stale := domain.StaleKinds(latest, domain.Now(), in.opts.StaleAfter)
	isStale := make(map[domain.Kind]bool, len(stale))
	for _, kind := range stale {
		isStale[kind] = true
	}
	for _, kind := range domain.Kinds() {
		if isStale[kind] {
			in.metrics.KindStale.WithLabelValues(string(kind)).Set(1)
			logger.Warn("measurement kind is stale", "kind", kind, "latest", latest[kind], "max_age", in.opts.StaleAfter)
			continue
		}
		in.metrics.KindStale.WithLabelValues(string(kind)).Set(0)
	}
	return stale
}
