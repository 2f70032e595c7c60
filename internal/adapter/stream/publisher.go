package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/V4T54L/worksync/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes events to their per-type topics, keyed by employee so an
// employee's events stay ordered within a partition.
type Publisher struct {
	writer MessageWriter
}

// NewPublisher creates a publisher writing to brokers.
func NewPublisher(brokers []string) *Publisher {
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	})
}

func NewPublisherWithWriter(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// Publish encodes and writes the events in one batch.
func (p *Publisher) Publish(ctx context.Context, events ...domain.Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		if !e.EventType.Valid() {
			return fmt.Errorf("event for %s: %w", e.EmployeeID, &domain.ValidationError{Field: "eventType", Reason: "is required to pick a topic"})
		}
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Topic: TopicFor(e.EventType),
			Key:   []byte(e.EmployeeID),
			Value: value,
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d events: %w", len(msgs), err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
