// Package kafka adapts the delivery outbox to a Kafka topic.
package kafka

import (
	"context"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-alert-triage/internal/config"
	"github.com/couchcryptid/storm-alert-triage/internal/outbox"
)

// Sender implements outbox.Sender by publishing delivery payloads to the
// configured topic, keyed by event key so a consumer can dedupe replays.
type Sender struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewSender creates a Kafka producer for the delivery topic.
func NewSender(cfg *config.Config, logger *slog.Logger) *Sender {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.DeliveryTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Sender{writer: w, logger: logger}
}

// Send publishes one outbox entry. The payload goes out exactly as it was
// snapshotted at enqueue time.
func (s *Sender) Send(ctx context.Context, entry outbox.Entry) (string, error) {
	msg := kafkago.Message{
		Key:   []byte(entry.EventKey),
		Value: entry.Payload,
		Headers: []kafkago.Header{
			{Key: "alert_id", Value: []byte(entry.AlertID)},
			{Key: "destination", Value: []byte(entry.Destination)},
			{Key: "enqueued_at", Value: []byte(entry.CreatedAt.Format(time.RFC3339))},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return "", err
	}
	// Kafka assigns no job id; the event key is the delivery's identity.
	return entry.EventKey, nil
}

// Close flushes and closes the producer.
func (s *Sender) Close() error {
	return s.writer.Close()
}
