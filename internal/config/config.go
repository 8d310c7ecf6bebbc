package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for SITE_TIMEZONE on minimal images
	"unicode/utf8"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/meteo-etl-service/internal/domain"
)

// DefaultFeedURLs are the MeteoSwiss 10-minute measurement feeds.
var DefaultFeedURLs = []string{
	"https://data.geo.admin.ch/ch.meteoschweiz.messwerte-lufttemperatur-10min/ch.meteoschweiz.messwerte-lufttemperatur-10min_en.csv",
	"https://data.geo.admin.ch/ch.meteoschweiz.messwerte-luftfeuchtigkeit-10min/ch.meteoschweiz.messwerte-luftfeuchtigkeit-10min_en.csv",
	"https://data.geo.admin.ch/ch.meteoschweiz.messwerte-niederschlag-10min/ch.meteoschweiz.messwerte-niederschlag-10min_en.csv",
	"https://data.geo.admin.ch/ch.meteoschweiz.messwerte-windgeschwindigkeit-kmh-10min/ch.meteoschweiz.messwerte-windgeschwindigkeit-kmh-10min_en.csv",
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

// Config holds all service settings, populated from environment variables.
type Config struct {
	FeedURLs            []string
	FeedTimeout         time.Duration
	FeedDelimiter       rune
	FeedFooterLines     int
	FeedLocation        *time.Location
	FeedUserAgent       string
	FeedBreakerFailures uint32
	FeedBreakerCooldown time.Duration

	// Column headers and per-kind markers.
	StationColumn       string
	TimestampColumn     string
	MarkerTemperature   string
	MarkerHumidity      string
	MarkerWind          string
	MarkerWindDirection string
	MarkerPrecipitation string

	FetchInterval time.Duration
	StaleAfter    time.Duration
	SQLitePath    string

	AlignTolerance     time.Duration
	AlignDropUndefined bool

	SiteLatitude  float64
	SiteLongitude float64
	SiteLocation  *time.Location

	ReportStation      string
	ReferenceDelimiter rune
	ReferenceLocation  *time.Location

	KafkaBrokers   []string
	KafkaSinkTopic string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		FeedURLs:            parseList(sharedcfg.EnvOrDefault("FEED_URLS", strings.Join(DefaultFeedURLs, ","))),
		FeedUserAgent:       sharedcfg.EnvOrDefault("FEED_USER_AGENT", defaultUserAgent),
		StationColumn:       sharedcfg.EnvOrDefault("STATION_COLUMN", "Abbr."),
		TimestampColumn:     sharedcfg.EnvOrDefault("TIMESTAMP_COLUMN", "Measurement date"),
		MarkerTemperature:   sharedcfg.EnvOrDefault("MARKER_TEMPERATURE", "Temperature"),
		MarkerHumidity:      sharedcfg.EnvOrDefault("MARKER_HUMIDITY", "Humidity"),
		MarkerWind:          sharedcfg.EnvOrDefault("MARKER_WIND", "Wind km/h"),
		MarkerWindDirection: sharedcfg.EnvOrDefault("MARKER_WIND_DIRECTION", "Wind direction"),
		MarkerPrecipitation: sharedcfg.EnvOrDefault("MARKER_PRECIPITATION", "Precipitation mm"),
		SQLitePath:          sharedcfg.EnvOrDefault("SQLITE_PATH", "data/meteo.db"),
		ReportStation:       sharedcfg.EnvOrDefault("REPORT_STATION", "SMA"),
		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:      sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "station-comparisons"),
		HTTPAddr:            sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:            sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:     shutdownTimeout,
	}

	if cfg.FeedTimeout, err = parsePositiveDuration("FEED_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.FeedBreakerCooldown, err = parsePositiveDuration("FEED_BREAKER_COOLDOWN", "2h"); err != nil {
		return nil, err
	}
	if cfg.FetchInterval, err = parsePositiveDuration("FETCH_INTERVAL", "1h"); err != nil {
		return nil, err
	}
	if cfg.StaleAfter, err = parsePositiveDuration("STALE_AFTER", "2h"); err != nil {
		return nil, err
	}
	if cfg.AlignTolerance, err = parsePositiveDuration("ALIGN_TOLERANCE", "15m"); err != nil {
		return nil, err
	}
	if cfg.FeedDelimiter, err = parseDelimiter("FEED_DELIMITER", ";"); err != nil {
		return nil, err
	}
	if cfg.ReferenceDelimiter, err = parseDelimiter("REFERENCE_DELIMITER", ","); err != nil {
		return nil, err
	}

	footer, err := strconv.Atoi(sharedcfg.EnvOrDefault("FEED_FOOTER_LINES", "5"))
	if err != nil || footer < 0 {
		return nil, errors.New("invalid FEED_FOOTER_LINES")
	}
	cfg.FeedFooterLines = footer

	failures, err := strconv.ParseUint(sharedcfg.EnvOrDefault("FEED_BREAKER_FAILURES", "3"), 10, 32)
	if err != nil || failures == 0 {
		return nil, errors.New("invalid FEED_BREAKER_FAILURES")
	}
	cfg.FeedBreakerFailures = uint32(failures)

	cfg.AlignDropUndefined, err = strconv.ParseBool(sharedcfg.EnvOrDefault("ALIGN_DROP_UNDEFINED", "true"))
	if err != nil {
		return nil, errors.New("invalid ALIGN_DROP_UNDEFINED")
	}

	if cfg.SiteLatitude, err = parseCoordinate("SITE_LATITUDE", "47.3769", 90); err != nil {
		return nil, err
	}
	if cfg.SiteLongitude, err = parseCoordinate("SITE_LONGITUDE", "8.5417", 180); err != nil {
		return nil, err
	}

	if cfg.FeedLocation, err = parseLocation("FEED_TIMEZONE", "UTC"); err != nil {
		return nil, err
	}
	siteZone := sharedcfg.EnvOrDefault("SITE_TIMEZONE", "Europe/Zurich")
	if cfg.SiteLocation, err = parseLocation("SITE_TIMEZONE", siteZone); err != nil {
		return nil, err
	}
	if cfg.ReferenceLocation, err = parseLocation("REFERENCE_TIMEZONE", siteZone); err != nil {
		return nil, err
	}

	if len(cfg.FeedURLs) == 0 {
		return nil, errors.New("FEED_URLS is required")
	}
	if cfg.StationColumn == "" {
		return nil, errors.New("STATION_COLUMN is required")
	}
	if cfg.TimestampColumn == "" {
		return nil, errors.New("TIMESTAMP_COLUMN is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseDelimiter(key, def string) (rune, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("invalid %s: must be a single character", key)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func parseCoordinate(key, def string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil || v < -limit || v > limit {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parseLocation(key, def string) (*time.Location, error) {
	name := def
	if v := os.Getenv(key); v != "" {
		name = v
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return loc, nil
}

// KindSpecs returns the measurement kinds with the configured header markers.
func (c *Config) KindSpecs() []domain.KindSpec {
	return []domain.KindSpec{
		{Kind: domain.KindTemperature, Marker: c.MarkerTemperature},
		{Kind: domain.KindHumidity, Marker: c.MarkerHumidity},
		{Kind: domain.KindWind, Marker: c.MarkerWind, DirectionMarker: c.MarkerWindDirection},
		{Kind: domain.KindPrecipitation, Marker: c.MarkerPrecipitation},
	}
}

// ParseOptions returns the feed parsing settings.
func (c *Config) ParseOptions() domain.ParseOptions {
	return domain.ParseOptions{Delimiter: c.FeedDelimiter, FooterLines: c.FeedFooterLines}
}

// Site returns the location daytime buckets are computed for.
func (c *Config) Site() domain.Site {
	return domain.Site{Latitude: c.SiteLatitude, Longitude: c.SiteLongitude, Location: c.SiteLocation}
}

// UndefinedPolicy maps ALIGN_DROP_UNDEFINED to the aligner policy.
func (c *Config) UndefinedPolicy() domain.UndefinedPolicy {
	if c.AlignDropUndefined {
		return domain.DropUndefined
	}
	return domain.KeepUndefined
}
