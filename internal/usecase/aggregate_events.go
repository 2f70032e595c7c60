package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/worksync/internal/adapter/metrics"
	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/pkg/retry"
)

// AggregateEventsUseCase groups stored events by employee over a window,
// either materializing per-type records or streaming bundles to the
// summary pipeline.
type AggregateEventsUseCase struct {
	events       domain.EventStore
	aggregations domain.AggregationStore
	retry        retry.Policy
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

func NewAggregateEventsUseCase(events domain.EventStore, aggregations domain.AggregationStore, policy retry.Policy, m *metrics.Metrics, logger *slog.Logger) *AggregateEventsUseCase {
	return &AggregateEventsUseCase{
		events:       events,
		aggregations: aggregations,
		retry:        policy,
		metrics:      m,
		logger:       logger.With("component", "aggregate_events"),
		now:          time.Now,
	}
}

// Aggregate groups the events that fall inside window by employee id.
// Events outside the window are ignored.
func Aggregate(events []domain.Event, window domain.Window) map[string]*domain.AggregatedBundle {
	bundles := make(map[string]*domain.AggregatedBundle)
	for _, e := range events {
		if !window.Contains(e.Timestamp) {
			continue
		}
		b, ok := bundles[e.EmployeeID]
		if !ok {
			b = domain.NewAggregatedBundle(e.EmployeeID, e.EmployeeName)
			bundles[e.EmployeeID] = b
		}
		b.Add(e)
	}
	return bundles
}

// BuildRecords turns bundles into one record per employee and event type
// that has at least one event. Records are ordered by employee then type.
func BuildRecords(bundles map[string]*domain.AggregatedBundle, window domain.Window, now time.Time) []domain.AggregationRecord {
	ids := make([]string, 0, len(bundles))
	for id := range bundles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var records []domain.AggregationRecord
	for _, id := range ids {
		b := bundles[id]
		base := domain.AggregationRecord{
			EmployeeID:   b.EmployeeID,
			EmployeeName: b.EmployeeName,
			WindowStart:  window.Start,
			WindowEnd:    window.End,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if len(b.AppUsageEvents) > 0 {
			r := base
			r.ID = uuid.NewString()
			r.EventType = domain.EventTypeAppUsage
			r.Data = domain.AggregatedData{AppDurations: b.AppDurations()}
			records = append(records, r)
		}
		if len(b.SecurityEvents) > 0 {
			r := base
			r.ID = uuid.NewString()
			r.EventType = domain.EventTypeSecurity
			r.Data = domain.AggregatedData{ThreatCounts: b.ThreatCounts()}
			records = append(records, r)
		}
		if len(b.AlertEvents) > 0 {
			r := base
			r.ID = uuid.NewString()
			r.EventType = domain.EventTypeAlert
			r.Data = domain.AggregatedData{AlertsByType: b.AlertsByType()}
			records = append(records, r)
		}
	}
	return records
}

// Stream returns the bundle of every employee with events in the window.
func (uc *AggregateEventsUseCase) Stream(ctx context.Context, window domain.Window) (map[string]*domain.AggregatedBundle, error) {
	var all []domain.Event
	for _, t := range domain.EventTypes {
		events, err := retry.DoValue(ctx, uc.retry, func(ctx context.Context) ([]domain.Event, error) {
			return uc.events.FindByTimestampBetween(ctx, t, window.Start, window.End)
		})
		if err != nil {
			return nil, fmt.Errorf("load %s events: %w", t, err)
		}
		all = append(all, events...)
	}
	return Aggregate(all, window), nil
}

// Materialize writes one aggregation record per (employee, event type) for
// the window. Re-running a window replaces its records. It returns the
// number of records written.
func (uc *AggregateEventsUseCase) Materialize(ctx context.Context, window domain.Window) (int, error) {
	bundles, err := uc.Stream(ctx, window)
	if err != nil {
		uc.logger.Error("failed to load events for aggregation", "error", err, "window_start", window.Start, "window_end", window.End)
		return 0, err
	}

	records := BuildRecords(bundles, window, uc.now().UTC())
	if len(records) == 0 {
		uc.logger.Debug("no events to aggregate", "window_start", window.Start, "window_end", window.End)
		return 0, nil
	}

	if err := retry.Do(ctx, uc.retry, func(ctx context.Context) error {
		return uc.aggregations.UpsertAggregations(ctx, records)
	}); err != nil {
		uc.logger.Error("failed to write aggregation records", "error", err, "count", len(records))
		return 0, err
	}
	uc.metrics.ObserveAggregationRecords(len(records))
	uc.logger.Info("aggregation records written",
		"count", len(records),
		"employees", len(bundles),
		"window_start", window.Start,
		"window_end", window.End,
	)
	return len(records), nil
}

// MaterializePrevious materializes the last complete window of length d.
func (uc *AggregateEventsUseCase) MaterializePrevious(ctx context.Context, d time.Duration) error {
	_, err := uc.Materialize(ctx, domain.PreviousWindow(uc.now(), d))
	return err
}
