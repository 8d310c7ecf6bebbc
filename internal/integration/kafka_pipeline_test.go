//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/meteo-etl-service/internal/adapter/feed"
	"github.com/couchcryptid/meteo-etl-service/internal/adapter/kafka"
	"github.com/couchcryptid/meteo-etl-service/internal/adapter/reference"
	"github.com/couchcryptid/meteo-etl-service/internal/adapter/sqlite"
	"github.com/couchcryptid/meteo-etl-service/internal/config"
	"github.com/couchcryptid/meteo-etl-service/internal/domain"
	"github.com/couchcryptid/meteo-etl-service/internal/observability"
	"github.com/couchcryptid/meteo-etl-service/internal/pipeline"
)

const testSinkTopic = "test-comparisons"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	c, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("meteo-etl-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(c) })

	brokers, err := c.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

// publishedRecord holds a deserialized message read from the sink topic.
type publishedRecord struct {
	Record  domain.ComparisonRecord
	Key     string
	Headers map[string]string
}

func readRecord(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedRecord {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var rec domain.ComparisonRecord
	require.NoError(t, json.Unmarshal(msg.Value, &rec), "unmarshal sink message")
	return publishedRecord{Record: rec, Key: string(msg.Key), Headers: headers}
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaWriterRoundTrip verifies that comparison records survive the broker
// with their key, headers, and undefined values intact.
func TestKafkaWriterRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaSinkTopic: testSinkTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	ts := time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)
	a, b, d := 20.0, 21.0, 1.0
	records := []domain.ComparisonRecord{
		{Station: "SMA", Timestamp: ts, Column: domain.ColumnTemperature, A: &a, B: &b, Delta: &d, Bucket: domain.BucketMorning},
		{Station: "SMA", Timestamp: ts, Column: domain.ColumnHumidity, A: &a, Bucket: domain.BucketMorning},
	}
	require.NoError(t, writer.LoadBatch(ctx, "run-rt", records))

	consumer := newConsumer(t, broker)
	first := readRecord(ctx, t, consumer)
	second := readRecord(ctx, t, consumer)

	assert.Equal(t, "SMA|temperature", first.Key)
	assert.Equal(t, "run-rt", first.Headers["run_id"])
	assert.Equal(t, "morning", first.Headers["bucket"])
	require.NotNil(t, first.Record.Delta)
	assert.InDelta(t, 1.0, *first.Record.Delta, 1e-9)
	assert.True(t, first.Record.Timestamp.Equal(ts))

	assert.Equal(t, "humidity", second.Headers["column"])
	assert.Nil(t, second.Record.B)
	assert.Nil(t, second.Record.Delta)
}

const footer = "\nLegend:\nMeasurement date in UTC\nSource: MeteoSwiss\nDisclaimer: provisional data\n"

func feedBody(valueHeader string, values ...string) string {
	var sb strings.Builder
	sb.WriteString("Station;Abbr.;Measurement date;" + valueHeader + ";Latitude;Longitude;Measurement height m a. sea level\n")
	for i, v := range values {
		fmt.Fprintf(&sb, "Z\xfcrich / Fluntern;SMA;2024-06-14 10:%02d;%s;47.3779;8.5656;556\n", i*10, v)
	}
	sb.WriteString(footer)
	return sb.String()
}

// TestIngestCompareAndPublish runs the whole flow: feeds served over HTTP are
// ingested into SQLite, compared against a reference series, and published.
func TestIngestCompareAndPublish(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	feeds := map[string]string{
		"/temperature.csv": feedBody("Temperature \xb0C", "20.0", "21.0", "22.0"),
		"/humidity.csv":    feedBody("Humidity %", "60.0", "62.0", "64.0"),
		"/broken.csv":      "",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := feeds[r.URL.Path]
		if !ok || body == "" {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	db, err := sqlite.Open(sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(ctx, db, discardLogger()))
	store := sqlite.NewStore(db)

	metrics := observability.NewMetricsForTesting()
	fetcher := feed.NewFetcher(feed.Options{Timeout: 5 * time.Second, BreakerFailures: 3, BreakerCooldown: time.Minute}, metrics, discardLogger())
	opts := pipeline.IngestOptions{
		Locators:        []string{srv.URL + "/temperature.csv", srv.URL + "/humidity.csv", srv.URL + "/broken.csv"},
		Kinds:           domain.DefaultKindSpecs(),
		Parse:           domain.DefaultParseOptions(),
		StationColumn:   "Abbr.",
		TimestampColumn: "Measurement date",
		StationColumns:  domain.DefaultStationColumns(),
		FeedLocation:    time.UTC,
	}
	report, err := pipeline.NewIngestor(store, fetcher, opts, discardLogger(), metrics).Run(ctx)
	require.NoError(t, err)
	assert.Len(t, report.FeedErrors, 1)
	assert.Equal(t, 3, report.Inserted[domain.KindTemperature])
	assert.Equal(t, 3, report.Inserted[domain.KindHumidity])

	ref, err := reference.Load(strings.NewReader(
		"timestamp,temperature,humidity\n"+
			"2024-06-14T10:02:00Z,21.0,58.0\n"+
			"2024-06-14T10:12:00Z,22.0,nan\n"),
		reference.DefaultOptions())
	require.NoError(t, err)

	comparer := pipeline.NewComparer(store, pipeline.CompareOptions{
		Tolerance: 5 * time.Minute,
		Policy:    domain.DropUndefined,
		Site:      domain.Site{Latitude: 47.3769, Longitude: 8.5417, Location: time.UTC},
	}, discardLogger())
	res, err := comparer.Compare(ctx, "SMA", domain.TimeRange{}, ref)
	require.NoError(t, err)
	// Temperature pairs at 10:00 and 10:10; humidity and dew point only at 10:00.
	require.Len(t, res.Records, 4)

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)
	writer := kafka.NewWriter(&config.Config{KafkaBrokers: []string{broker}, KafkaSinkTopic: testSinkTopic}, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, comparer.Publish(ctx, writer, res))

	consumer := newConsumer(t, broker)
	columns := map[string]int{}
	for range res.Records {
		pr := readRecord(ctx, t, consumer)
		assert.Equal(t, res.RunID, pr.Headers["run_id"])
		assert.Equal(t, "SMA", pr.Record.Station)
		assert.Equal(t, domain.BucketMorning, pr.Record.Bucket)
		columns[pr.Record.Column]++
	}
	assert.Equal(t, map[string]int{
		domain.ColumnTemperature: 2,
		domain.ColumnHumidity:    1,
		domain.ColumnDewPoint:    1,
	}, columns)
}
