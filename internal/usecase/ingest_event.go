package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/V4T54L/worksync/internal/adapter/metrics"
	"github.com/V4T54L/worksync/internal/adapter/pii"
	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/pkg/retry"
)

// IngestEventUseCase admits events by priority tier. CRITICAL events are
// persisted before Submit returns; HIGH and NORMAL events are buffered in
// their tier queue for the drainer.
type IngestEventUseCase struct {
	store    domain.EventStore
	queues   map[domain.QueueKey]domain.TierQueue
	redactor *pii.Redactor
	retry    retry.Policy
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewIngestEventUseCase creates the admission use case. queues must hold one
// queue per event type for each batched tier.
func NewIngestEventUseCase(
	store domain.EventStore,
	queues map[domain.QueueKey]domain.TierQueue,
	redactor *pii.Redactor,
	policy retry.Policy,
	m *metrics.Metrics,
	logger *slog.Logger,
) *IngestEventUseCase {
	return &IngestEventUseCase{
		store:    store,
		queues:   queues,
		redactor: redactor,
		retry:    policy,
		metrics:  m,
		logger:   logger.With("component", "ingest_event"),
		now:      time.Now,
	}
}

// Queues returns the tier queues shared with the drainer.
func (uc *IngestEventUseCase) Queues() map[domain.QueueKey]domain.TierQueue {
	return uc.queues
}

// Submit validates, enriches, redacts and routes one event. The event is
// updated in place with its assigned id.
func (uc *IngestEventUseCase) Submit(ctx context.Context, event *domain.Event) error {
	ctx, span := otel.Tracer("ingest-event").Start(ctx, "Submit")
	defer span.End()

	if err := event.Validate(); err != nil {
		uc.metrics.ObserveEvent(string(event.EventType), string(event.Priority), "rejected")
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// 1. Enrich with server-side data
	now := uc.now().UTC()
	event.ReceivedAt = now
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", string(event.EventType)),
		attribute.String("event.priority", string(event.Priority)),
	)

	// 2. Redact PII
	if uc.redactor != nil {
		uc.redactor.Redact(event)
	}

	// 3. Route by tier
	if event.Priority == domain.PriorityCritical {
		if err := uc.Persist(ctx, *event); err != nil {
			uc.metrics.ObserveEvent(string(event.EventType), string(event.Priority), "failed")
			recordSpanError(span, err)
			return err
		}
		uc.metrics.ObserveEvent(string(event.EventType), string(event.Priority), "persisted")
		return nil
	}

	q, ok := uc.queues[event.Key()]
	if !ok {
		err := fmt.Errorf("no queue for %s", event.Key())
		recordSpanError(span, err)
		return err
	}
	if err := q.Push(ctx, *event); err != nil {
		uc.logger.Error("failed to enqueue event", "error", err, "event_id", event.ID, "queue", event.Key().String())
		uc.metrics.ObserveEvent(string(event.EventType), string(event.Priority), "failed")
		recordSpanError(span, err)
		return err
	}
	uc.metrics.ObserveEvent(string(event.EventType), string(event.Priority), "queued")
	return nil
}

// Persist writes one event to the store with the configured retry policy.
func (uc *IngestEventUseCase) Persist(ctx context.Context, event domain.Event) error {
	return uc.persist(ctx, event, uc.retry)
}

func (uc *IngestEventUseCase) persist(ctx context.Context, event domain.Event, policy retry.Policy) error {
	attempt := 0
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		attempt++
		_, err := uc.store.Save(ctx, event)
		if err != nil && attempt < policy.Attempts {
			uc.logger.Warn("failed to persist event, retrying...", "attempt", attempt, "error", err, "event_id", event.ID)
		}
		return err
	})
	if err != nil {
		uc.logger.Error("failed to persist event", "error", err, "event_id", event.ID, "employee_id", event.EmployeeID)
		return err
	}
	return nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
