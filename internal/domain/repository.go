package domain

import (
	"context"
	"time"
)

// EventStore is the durable home of raw events.
type EventStore interface {
	// Save persists one event and returns its id. Saving an id that already
	// exists is a no-op.
	Save(ctx context.Context, event Event) (string, error)

	// FindByTimestampBetween returns events of one type with
	// start <= timestamp < end.
	FindByTimestampBetween(ctx context.Context, eventType EventType, start, end time.Time) ([]Event, error)
}

// AggregationStore holds materialized aggregation records.
type AggregationStore interface {
	// UpsertAggregations writes records, replacing any existing record with
	// the same (employee, event type, window) key.
	UpsertAggregations(ctx context.Context, records []AggregationRecord) error

	// FindAggregations returns the records of an exact window.
	FindAggregations(ctx context.Context, eventType EventType, start, end time.Time) ([]AggregationRecord, error)
}

// VectorStore is an append-only store of embedded summaries.
type VectorStore interface {
	SaveVector(ctx context.Context, v SummaryVector) error
	FindAllVectors(ctx context.Context) ([]SummaryVector, error)
}

// TierQueue is an unbounded FIFO buffering one (event type, tier) pair.
type TierQueue interface {
	Push(ctx context.Context, event Event) error
	// Pop removes the oldest event. ok is false when the queue is empty.
	Pop(ctx context.Context) (event Event, ok bool, err error)
	Len(ctx context.Context) (int64, error)
}

// DeadLetterSink receives events that exhausted their redeliveries.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, event Event, reason error) error
}

// APIKeyRepository defines the interface for validating API keys.
type APIKeyRepository interface {
	// IsValid checks if the provided API key is valid and active.
	// Implementations should handle caching to reduce database load.
	IsValid(ctx context.Context, key string) (bool, error)
}

// WALRepository defines the interface for the Write-Ahead Log failover mechanism.
type WALRepository interface {
	// Write appends an event to the local WAL file.
	Write(ctx context.Context, event Event) error

	// Replay reads events from the WAL and sends them to a handler function.
	// The handler is responsible for re-buffering the event (e.g., to Redis).
	Replay(ctx context.Context, handler func(event Event) error) error

	// Truncate removes WAL segments that have been successfully replayed.
	Truncate(ctx context.Context) error
}

// DeadLetterCounter reports how many events a dead-letter sink holds.
type DeadLetterCounter interface {
	DeadLetterLen(ctx context.Context) (int64, error)
}
