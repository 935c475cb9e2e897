package report

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/kafka"
)

// EventPublisher is the part of the Kafka producer KafkaSink uses.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaSink publishes the whole report as one JSON event keyed by run ID.
type KafkaSink struct {
	producer EventPublisher
}

func NewKafkaSink(producer EventPublisher) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, r Report) error {
	return s.producer.Publish(ctx, kafka.Event{Key: r.RunID, Value: r})
}
