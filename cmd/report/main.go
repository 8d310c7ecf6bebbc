// Command report compares a stored station series against a reference series
// recorded elsewhere, publishes the tidy comparison records, and prints
// monthly and daytime-bucketed statistics.
//
// Usage:
//
//	go run ./cmd/report \
//	  -reference data/mock/reference.csv \
//	  -station SMA \
//	  -from 2024-06-01 -to 2024-07-01 \
//	  -sink stdout
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	kafkaadapter "github.com/couchcryptid/meteo-etl-service/internal/adapter/kafka"
	"github.com/couchcryptid/meteo-etl-service/internal/adapter/reference"
	"github.com/couchcryptid/meteo-etl-service/internal/adapter/sqlite"
	"github.com/couchcryptid/meteo-etl-service/internal/config"
	"github.com/couchcryptid/meteo-etl-service/internal/domain"
	"github.com/couchcryptid/meteo-etl-service/internal/observability"
	"github.com/couchcryptid/meteo-etl-service/internal/pipeline"
)

const dayLayout = "2006-01-02"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	refPath := flag.String("reference", "", "path to the reference series CSV")
	station := flag.String("station", cfg.ReportStation, "station abbreviation to compare")
	from := flag.String("from", "", "first day to include, "+dayLayout+" in SITE_TIMEZONE")
	to := flag.String("to", "", "day after the last day to include, "+dayLayout+" in SITE_TIMEZONE")
	sink := flag.String("sink", "stdout", "where comparison records go: stdout or kafka")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database written by the etl service")
	flag.Parse()

	if *refPath == "" || (*sink != "stdout" && *sink != "kafka") {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(cfg)
	if err := run(ctx, cfg, logger, options{
		referencePath: *refPath,
		station:       *station,
		from:          *from,
		to:            *to,
		sink:          *sink,
		dbPath:        *dbPath,
	}); err != nil {
		logger.Error("report failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	referencePath string
	station       string
	from, to      string
	sink          string
	dbPath        string
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts options) error {
	r, err := parseRange(opts.from, opts.to, cfg.SiteLocation)
	if err != nil {
		return err
	}

	refOpts := reference.DefaultOptions()
	refOpts.Delimiter = cfg.ReferenceDelimiter
	refOpts.Location = cfg.ReferenceLocation
	ref, err := reference.LoadFile(opts.referencePath, refOpts)
	if err != nil {
		return err
	}

	db, err := sqlite.Open(opts.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := sqlite.Migrate(ctx, db, logger); err != nil {
		return err
	}

	comparer := pipeline.NewComparer(sqlite.NewStore(db), pipeline.CompareOptionsFromConfig(cfg), logger)
	res, err := comparer.Compare(ctx, opts.station, r, ref)
	if err != nil {
		return err
	}

	var recordSink pipeline.RecordSink = jsonLinesSink{enc: json.NewEncoder(os.Stdout)}
	if opts.sink == "kafka" {
		w := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		recordSink = w
	}
	if err := comparer.Publish(ctx, recordSink, res); err != nil {
		return err
	}

	out := os.Stdout
	if opts.sink == "stdout" {
		// Keep stdout a clean JSON lines stream.
		out = os.Stderr
	}
	printStatistics(out, res, cfg.SiteLocation)
	return nil
}

// parseRange reads the -from/-to days. An empty flag leaves that side open.
func parseRange(from, to string, loc *time.Location) (domain.TimeRange, error) {
	var r domain.TimeRange
	var err error
	if from != "" {
		if r.From, err = time.ParseInLocation(dayLayout, from, loc); err != nil {
			return r, fmt.Errorf("invalid -from %q: %w", from, err)
		}
	}
	if to != "" {
		if r.To, err = time.ParseInLocation(dayLayout, to, loc); err != nil {
			return r, fmt.Errorf("invalid -to %q: %w", to, err)
		}
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return r, fmt.Errorf("-from %s must be before -to %s", from, to)
	}
	return r, nil
}

// jsonLinesSink writes one JSON object per record.
type jsonLinesSink struct {
	enc *json.Encoder
}

func (s jsonLinesSink) LoadBatch(_ context.Context, _ string, records []domain.ComparisonRecord) error {
	for _, rec := range records {
		if err := s.enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	return nil
}

func printStatistics(w io.Writer, res pipeline.ComparisonResult, loc *time.Location) {
	fmt.Fprintf(w, "=== %s (%s) vs reference, run %s ===\n\n", res.Station.Name, res.Station.Abbreviation, res.RunID)
	fmt.Fprintf(w, "Points: %d station, %d reference, %d comparison records\n\n",
		len(res.Meteo), len(res.Reference), len(res.Records))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tCOLUMN\tSTATION MEAN\tREFERENCE MEAN\tDELTA MEAN\tDELTA LOW\tDELTA HIGH")
	station := indexMonthly(res.MeteoMonthly)
	ref := indexMonthly(res.ReferenceMonthly)
	for _, d := range res.MonthlyDelta {
		k := monthlyKey(d)
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%+.2f\t%+.2f\t%+.2f\n",
			d.Month.In(loc).Format("2006-01"), d.Column, station[k].Mean, ref[k].Mean, d.Mean, d.Low, d.High)
	}
	_ = tw.Flush()
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tBUCKET\tCOUNT\tMEAN\tMIN\tMAX")
	for _, b := range res.Buckets {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%+.2f\t%+.2f\t%+.2f\n", b.Column, b.Bucket, b.Count, b.Mean, b.Min, b.Max)
	}
	_ = tw.Flush()
}

func monthlyKey(s domain.MonthlyStat) string {
	return s.Month.UTC().Format(time.RFC3339) + "|" + s.Column
}

func indexMonthly(stats []domain.MonthlyStat) map[string]domain.MonthlyStat {
	out := make(map[string]domain.MonthlyStat, len(stats))
	for _, s := range stats {
		out[monthlyKey(s)] = s
	}
	return out
}
