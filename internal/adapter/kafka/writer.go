package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/meteo-etl-service/internal/config"
	"github.com/couchcryptid/meteo-etl-service/internal/domain"
)

// Writer publishes comparison records to a Kafka topic.
// It implements pipeline.RecordSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaSinkTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes the records of one comparison run in a
// single WriteMessages call. Records of the same station and column share a
// partition.
func (w *Writer) LoadBatch(ctx context.Context, runID string, records []domain.ComparisonRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(runID, records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d comparison records: %w", len(msgs), err)
	}
	w.logger.Debug("comparison records published", "run_id", runID, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ComparisonRecord into a Kafka message.
func serializeToMessage(runID string, rec domain.ComparisonRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize comparison record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.Station + "|" + rec.Column),
		Value: data,
		Time:  rec.Timestamp,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "column", Value: []byte(rec.Column)},
			{Key: "bucket", Value: []byte(rec.Bucket)},
		},
	}, nil
}
