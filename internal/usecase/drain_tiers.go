package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/V4T54L/worksync/internal/adapter/metrics"
	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/pkg/retry"
)

// DrainerConfig controls the drain schedule and the redelivery bound.
type DrainerConfig struct {
	HighInterval    time.Duration
	NormalInterval  time.Duration
	MaxRedeliveries int
	DrainOnShutdown bool
	ShutdownTimeout time.Duration
}

// TierDrainer periodically empties the HIGH and NORMAL queues into the store.
type TierDrainer struct {
	ingest     *IngestEventUseCase
	deadLetter domain.DeadLetterSink
	cfg        DrainerConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewTierDrainer creates a drainer over the ingest use case's queues.
// deadLetter may be nil, in which case exhausted events are only logged.
func NewTierDrainer(ingest *IngestEventUseCase, deadLetter domain.DeadLetterSink, cfg DrainerConfig, m *metrics.Metrics, logger *slog.Logger) *TierDrainer {
	if cfg.HighInterval <= 0 {
		cfg.HighInterval = 5 * time.Minute
	}
	if cfg.NormalInterval <= 0 {
		cfg.NormalInterval = 30 * time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 20 * time.Second
	}
	return &TierDrainer{
		ingest:     ingest,
		deadLetter: deadLetter,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.With("component", "tier_drainer"),
	}
}

// DrainTier pops every queue of the tier until empty and persists each event
// with a single attempt. Failed events are requeued once the loop is over,
// so a drain always terminates. It returns the number of events persisted.
func (d *TierDrainer) DrainTier(ctx context.Context, tier domain.Priority) (int, error) {
	var (
		drained int
		errs    []error
	)
	for _, eventType := range domain.EventTypes {
		key := domain.QueueKey{EventType: eventType, Tier: tier}
		q, ok := d.ingest.Queues()[key]
		if !ok {
			continue
		}

		var failed, interrupted []domain.Event
		for {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				break
			}
			event, ok, err := q.Pop(ctx)
			if err != nil {
				d.logger.Error("failed to pop from tier queue", "error", err, "queue", key.String())
				errs = append(errs, fmt.Errorf("pop %s: %w", key, err))
				break
			}
			if !ok {
				break
			}
			if err := d.ingest.persist(ctx, event, retry.Once); err != nil {
				if ctx.Err() != nil {
					// Cancelled mid-write: not a delivery failure.
					interrupted = append(interrupted, event)
					continue
				}
				failed = append(failed, event)
				continue
			}
			drained++
		}

		// Cancellation must not lose popped events.
		putBackCtx := context.WithoutCancel(ctx)
		d.restore(putBackCtx, q, key, interrupted)
		d.requeue(putBackCtx, q, key, failed)
		if depth, err := q.Len(putBackCtx); err == nil {
			d.metrics.SetQueueDepth(key.String(), depth)
		}
	}

	d.metrics.ObserveDrained(string(tier), drained)
	if drained > 0 {
		d.logger.Info("drained tier", "tier", tier, "count", drained)
	}
	return drained, errors.Join(errs...)
}

// restore pushes back events whose persist was cut short by cancellation,
// leaving their retry count untouched.
func (d *TierDrainer) restore(ctx context.Context, q domain.TierQueue, key domain.QueueKey, events []domain.Event) {
	for _, event := range events {
		if err := q.Push(ctx, event); err != nil {
			d.logger.Error("failed to restore interrupted event", "error", err, "event_id", event.ID, "queue", key.String())
			d.deadLetterEvent(ctx, event, key)
		}
	}
	if len(events) > 0 {
		d.logger.Info("restored events interrupted by shutdown", "queue", key.String(), "count", len(events))
	}
}

func (d *TierDrainer) requeue(ctx context.Context, q domain.TierQueue, key domain.QueueKey, failed []domain.Event) {
	for _, event := range failed {
		event.RetryCount++
		if event.RetryCount > d.cfg.MaxRedeliveries {
			d.deadLetterEvent(ctx, event, key)
			continue
		}
		if err := q.Push(ctx, event); err != nil {
			d.logger.Error("failed to requeue event, dropping", "error", err, "event_id", event.ID, "queue", key.String())
			d.deadLetterEvent(ctx, event, key)
			continue
		}
		d.metrics.ObserveRedelivered(string(key.Tier))
		d.logger.Warn("event requeued after failed persist", "event_id", event.ID, "queue", key.String(), "retry_count", event.RetryCount)
	}
}

func (d *TierDrainer) deadLetterEvent(ctx context.Context, event domain.Event, key domain.QueueKey) {
	d.metrics.ObserveDeadLettered(string(key.Tier))
	d.logger.Error("event dropped after exhausting redeliveries",
		"event_id", event.ID,
		"employee_id", event.EmployeeID,
		"queue", key.String(),
		"retry_count", event.RetryCount,
	)
	if d.deadLetter == nil {
		return
	}
	reason := fmt.Errorf("%w: gave up after %d redeliveries", domain.ErrStore, event.RetryCount-1)
	if err := d.deadLetter.DeadLetter(ctx, event, reason); err != nil {
		d.logger.Error("failed to write dead letter", "error", err, "event_id", event.ID)
	}
}

// Run drains each batched tier on its own ticker until ctx is done. With
// DrainOnShutdown set, each tier gets one final bounded drain on the way out.
func (d *TierDrainer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	intervals := map[domain.Priority]time.Duration{
		domain.PriorityHigh:   d.cfg.HighInterval,
		domain.PriorityNormal: d.cfg.NormalInterval,
	}
	for _, tier := range domain.BatchedTiers {
		wg.Add(1)
		go func(tier domain.Priority, interval time.Duration) {
			defer wg.Done()
			d.runTier(ctx, tier, interval)
		}(tier, intervals[tier])
	}
	wg.Wait()
	d.logger.Info("tier drainer stopped")
}

func (d *TierDrainer) runTier(ctx context.Context, tier domain.Priority, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("starting tier drain loop", "tier", tier, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			if d.cfg.DrainOnShutdown {
				d.finalDrain(tier)
			}
			return
		case <-ticker.C:
			if _, err := d.DrainTier(ctx, tier); err != nil && ctx.Err() == nil {
				d.logger.Error("tier drain finished with errors", "tier", tier, "error", err)
			}
		}
	}
}

func (d *TierDrainer) finalDrain(tier domain.Priority) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
	defer cancel()
	n, err := d.DrainTier(ctx, tier)
	if err != nil {
		d.logger.Error("final drain incomplete", "tier", tier, "drained", n, "error", err)
		return
	}
	d.logger.Info("final drain complete", "tier", tier, "drained", n)
}
