// Package stream feeds events between Kafka topics and the admission queue.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/V4T54L/worksync/internal/domain"
)

// TopicSuffix is appended to an event type slug to name its topic, e.g.
// "app-usage-events".
const TopicSuffix = "-events"

// TopicFor returns the topic carrying events of type t.
func TopicFor(t domain.EventType) string {
	return t.Slug() + TopicSuffix
}

// EventTypeForTopic is the inverse of TopicFor.
func EventTypeForTopic(topic string) (domain.EventType, bool) {
	slug, ok := strings.CutSuffix(topic, TopicSuffix)
	if !ok {
		return "", false
	}
	return domain.ParseEventTypeSlug(slug)
}

// EventSubmitter admits one event.
type EventSubmitter interface {
	Submit(ctx context.Context, event *domain.Event) error
}

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig configures NewConsumer.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
}

// Consumer reads one reader per topic and submits every message as an
// event of the topic's type.
type Consumer struct {
	readers   map[string]MessageReader
	submitter EventSubmitter
	logger    *slog.Logger
	backoff   time.Duration
}

// NewConsumer creates a consumer group member for every configured topic.
// Topics that do not name an event type are rejected.
func NewConsumer(cfg ConsumerConfig, submitter EventSubmitter, logger *slog.Logger) (*Consumer, error) {
	readers := make(map[string]MessageReader, len(cfg.Topics))
	for _, topic := range cfg.Topics {
		if _, ok := EventTypeForTopic(topic); !ok {
			return nil, fmt.Errorf("topic %q does not name an event type", topic)
		}
		readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  time.Second,
		})
	}
	return NewConsumerWithReaders(readers, submitter, logger), nil
}

// NewConsumerWithReaders builds a consumer over existing readers keyed by topic.
func NewConsumerWithReaders(readers map[string]MessageReader, submitter EventSubmitter, logger *slog.Logger) *Consumer {
	return &Consumer{
		readers:   readers,
		submitter: submitter,
		logger:    logger.With("component", "kafka_consumer"),
		backoff:   time.Second,
	}
}

// Run consumes every topic until ctx is cancelled, then closes the readers.
func (c *Consumer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(c.readers))
	for topic, reader := range c.readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.consume(ctx, topic, reader); err != nil {
				errs <- fmt.Errorf("topic %s: %w", topic, err)
			}
		}()
	}
	wg.Wait()
	close(errs)

	var all []error
	for err := range errs {
		all = append(all, err)
	}
	for topic, reader := range c.readers {
		if err := reader.Close(); err != nil {
			c.logger.Warn("failed to close reader", "topic", topic, "error", err)
		}
	}
	return errors.Join(all...)
}

func (c *Consumer) consume(ctx context.Context, topic string, reader MessageReader) error {
	eventType, ok := EventTypeForTopic(topic)
	if !ok {
		return fmt.Errorf("topic does not name an event type")
	}
	logger := c.logger.With("topic", topic)
	logger.Info("consumer started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				logger.Info("consumer stopped")
				return nil
			}
			logger.Error("failed to fetch message", "error", err)
			select {
			case <-time.After(c.backoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		if !c.deliver(ctx, logger, eventType, msg) {
			logger.Info("consumer stopped with message uncommitted", "offset", msg.Offset)
			return nil
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Error("failed to commit message", "error", err, "offset", msg.Offset)
		}
	}
}

// deliver submits msg until it is admitted or permanently rejected. Store and
// other transient failures are retried with backoff and the message stays
// uncommitted, so a restart redelivers it. It returns false only when ctx is
// cancelled first.
func (c *Consumer) deliver(ctx context.Context, logger *slog.Logger, eventType domain.EventType, msg kafka.Message) bool {
	var event domain.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Warn("skipping undecodable message", "error", err, "partition", msg.Partition, "offset", msg.Offset)
		return true
	}
	if !event.AssignType(eventType) {
		logger.Warn("skipping message with mismatched event type", "event_type", event.EventType, "offset", msg.Offset)
		return true
	}

	for attempt := 1; ; attempt++ {
		err := c.submitter.Submit(ctx, &event)
		if err == nil {
			logger.Debug("event submitted", "event_id", event.ID, "priority", event.Priority)
			return true
		}
		if errors.Is(err, domain.ErrValidation) {
			logger.Warn("skipping invalid event", "error", err, "offset", msg.Offset)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		logger.Error("failed to submit event, will redeliver",
			"error", err, "event_id", event.ID, "employee_id", event.EmployeeID,
			"priority", event.Priority, "attempt", attempt, "offset", msg.Offset)

		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
			return false
		}
	}
}
