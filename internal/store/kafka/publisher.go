// Package kafka publishes pattern events to a Kafka topic for downstream
// consumers (alerting, reporting).
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// Config configures the publisher.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is a PatternWriter backed by a Kafka topic. Messages are keyed
// by asset so one asset's events stay ordered within a partition.
type Publisher struct {
	w     messageWriter
	topic string
	log   *slog.Logger
}

var _ model.PatternWriter = (*Publisher)(nil)

// NewPublisher creates a synchronous publisher for cfg.Topic.
func NewPublisher(cfg Config, log *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, cfg.Topic, log), nil
}

func newPublisher(w messageWriter, topic string, log *slog.Logger) *Publisher {
	return &Publisher{w: w, topic: topic, log: log.With("component", "kafka", "topic", topic)}
}

// AppendEvents publishes events as one batch.
func (p *Publisher) AppendEvents(ctx context.Context, events []model.PatternEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i := range events {
		msgs[i] = toMessage(&events[i])
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka publish %d events to %s: %w", len(events), p.topic, err)
	}
	p.log.Debug("published events", "count", len(events))
	return nil
}

func toMessage(ev *model.PatternEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(ev.Asset),
		Value: ev.JSON(),
		Time:  ev.DetectedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID.String())},
			{Key: "kind", Value: []byte(ev.Kind)},
			{Key: "originator", Value: []byte(ev.Originator)},
		},
	}
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
