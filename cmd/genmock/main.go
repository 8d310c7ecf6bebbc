// Command genmock writes synthetic feed files shaped like the MeteoSwiss
// 10-minute CSVs (ISO-8859-1, semicolon separated, five footer lines) plus a
// matching reference CSV. Each generated feed is read back through the domain
// parser so the fixtures always match what the service accepts.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -day 2024-06-14
//	go run ./cmd/genmock -out data/mock -serve :8081
//
// With -serve the directory is served over HTTP so the etl service can use
// FEED_URLS=http://localhost:8081/temperature.csv,... against it.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/couchcryptid/meteo-etl-service/internal/domain"
)

const (
	interval     = 10 * time.Minute
	refOffset    = 3 * time.Minute
	stationTail  = "Latitude;Longitude;Measurement height m a. sea level"
	feedTSLayout = "2006-01-02 15:04"
)

type station struct {
	name, abbr string
	lat, lon   float64
	altitude   float64
	tempBias   float64
}

var stations = []station{
	{name: "Zürich / Fluntern", abbr: "SMA", lat: 47.3779, lon: 8.5656, altitude: 556, tempBias: 0},
	{name: "Basel / Binningen", abbr: "BAS", lat: 47.5411, lon: 7.5836, altitude: 316, tempBias: 1.2},
	{name: "Genève / Cointrin", abbr: "GVE", lat: 46.2479, lon: 6.1278, altitude: 411, tempBias: 0.8},
}

var footer = []string{
	"",
	"Legend:",
	"Measurement date in UTC",
	"Source: MeteoSwiss",
	"Disclaimer: synthetic data generated for local runs",
}

type feedDef struct {
	file   string
	header string
	kind   domain.Kind
	values func(st station, ts time.Time, r *rand.Rand) string
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock", "output directory")
	day := flag.String("day", "2024-06-14", "UTC day to generate, 2006-01-02")
	seed := flag.Uint64("seed", 42, "random seed")
	serve := flag.String("serve", "", "serve -out over HTTP on this address after writing")
	flag.Parse()

	start, err := time.Parse("2006-01-02", *day)
	if err != nil {
		return fmt.Errorf("invalid -day %q: %w", *day, err)
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	r := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	times := dayTimes(start)

	for _, def := range feedDefs() {
		body, err := renderFeed(def, times, r)
		if err != nil {
			return fmt.Errorf("render %s: %w", def.file, err)
		}
		if err := verifyFeed(def, body, len(times)*len(stations)); err != nil {
			return fmt.Errorf("verify %s: %w", def.file, err)
		}
		path := filepath.Join(*out, def.file)
		if err := os.WriteFile(path, body, 0o600); err != nil {
			return err
		}
		log.Printf("%s: %d rows -> %s", def.kind, len(times)*len(stations), path)
	}

	refPath := filepath.Join(*out, "reference.csv")
	if err := os.WriteFile(refPath, []byte(renderReference(times, r)), 0o600); err != nil {
		return err
	}
	log.Printf("reference: %d rows -> %s", len(times), refPath)

	if *serve == "" {
		return nil
	}
	log.Printf("serving %s on %s", *out, *serve)
	srv := &http.Server{Addr: *serve, Handler: http.FileServer(http.Dir(*out)), ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func dayTimes(start time.Time) []time.Time {
	var out []time.Time
	for ts := start; ts.Before(start.AddDate(0, 0, 1)); ts = ts.Add(interval) {
		out = append(out, ts)
	}
	return out
}

// temperature follows a daily cycle peaking mid-afternoon UTC.
func temperature(st station, ts time.Time) float64 {
	hour := float64(ts.Hour()) + float64(ts.Minute())/60
	return 17 + st.tempBias + 6*math.Sin((hour-9)/24*2*math.Pi)
}

func humidity(st station, ts time.Time) float64 {
	return math.Min(100, 95-2.5*(temperature(st, ts)-11))
}

func feedDefs() []feedDef {
	return []feedDef{
		{file: "temperature.csv", header: "Temperature °C", kind: domain.KindTemperature,
			values: func(st station, ts time.Time, r *rand.Rand) string {
				return fmt.Sprintf("%.1f", temperature(st, ts)+r.NormFloat64()*0.2)
			}},
		{file: "humidity.csv", header: "Humidity %", kind: domain.KindHumidity,
			values: func(st station, ts time.Time, r *rand.Rand) string {
				return fmt.Sprintf("%.1f", humidity(st, ts)+r.NormFloat64())
			}},
		{file: "wind.csv", header: "Wind km/h;Wind direction °", kind: domain.KindWind,
			values: func(_ station, _ time.Time, r *rand.Rand) string {
				return fmt.Sprintf("%.1f;%d", math.Abs(8+r.NormFloat64()*4), r.IntN(360))
			}},
		{file: "precipitation.csv", header: "Precipitation mm", kind: domain.KindPrecipitation,
			values: func(_ station, _ time.Time, r *rand.Rand) string {
				if r.Float64() < 0.9 {
					return "0.0"
				}
				return fmt.Sprintf("%.1f", r.Float64()*2)
			}},
	}
}

func renderFeed(def feedDef, times []time.Time, r *rand.Rand) ([]byte, error) {
	lines := []string{"Station;Abbr.;Measurement date;" + def.header + ";" + stationTail}
	for _, st := range stations {
		for _, ts := range times {
			value := def.values(st, ts, r)
			// An occasional gap, the way the live feeds report one.
			if r.Float64() < 0.01 {
				value = strings.Repeat("-;", strings.Count(value, ";")) + "-"
			}
			lines = append(lines, fmt.Sprintf("%s;%s;%s;%s;%.4f;%.4f;%.0f",
				st.name, st.abbr, ts.Format(feedTSLayout), value, st.lat, st.lon, st.altitude))
		}
	}
	lines = append(lines, footer...)
	return charmap.ISO8859_1.NewEncoder().Bytes([]byte(strings.Join(lines, "\n") + "\n"))
}

// verifyFeed parses body exactly as the ingestor does.
func verifyFeed(def feedDef, body []byte, wantRows int) error {
	t, err := domain.ParseTable(body, domain.DefaultParseOptions())
	if err != nil {
		return err
	}
	if len(t.Rows) != wantRows {
		return fmt.Errorf("parsed %d rows, want %d", len(t.Rows), wantRows)
	}
	spec, err := domain.ClassifyTable(t, domain.DefaultKindSpecs())
	if err != nil {
		return err
	}
	if spec.Kind != def.kind {
		return fmt.Errorf("classified as %s, want %s", spec.Kind, def.kind)
	}
	if _, err := spec.ResolveColumns(t, "Abbr.", "Measurement date"); err != nil {
		return err
	}
	if got := len(domain.StationCandidates([]domain.Table{t}, domain.DefaultStationColumns())); got != len(stations) {
		return fmt.Errorf("found %d stations, want %d", got, len(stations))
	}
	return nil
}

// renderReference writes a second sensor near the first station, sampled a
// few minutes after the feed and reading slightly warmer and drier.
func renderReference(times []time.Time, r *rand.Rand) string {
	var b strings.Builder
	b.WriteString("timestamp,temperature,humidity\n")
	st := stations[0]
	for _, ts := range times {
		at := ts.Add(refOffset)
		temp := temperature(st, at) + 0.6 + r.NormFloat64()*0.3
		hum := humidity(st, at) - 3 + r.NormFloat64()*1.5
		if r.Float64() < 0.02 {
			fmt.Fprintf(&b, "%s,%.2f,nan\n", at.Format(time.RFC3339), temp)
			continue
		}
		fmt.Fprintf(&b, "%s,%.2f,%.2f\n", at.Format(time.RFC3339), temp, hum)
	}
	return b.String()
}
