package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/worksync/internal/adapter/metrics"
	"github.com/V4T54L/worksync/internal/domain"
)

const (
	keyPrefix        = "worksync:queue:"
	deadLetterKey    = "worksync:deadletter"
	deadLetterMaxLen = 10000
)

// ErrUnavailable is returned by reads while Redis is unreachable.
var ErrUnavailable = errors.New("redis is unavailable")

// QueueRepository keeps the batched tier queues in Redis lists. Producers
// LPUSH and drainers RPOP, so each list is FIFO. While Redis is unreachable
// pushes go to the WAL and are replayed on recovery.
type QueueRepository struct {
	client      *redis.Client
	logger      *slog.Logger
	wal         domain.WALRepository
	metrics     *metrics.Metrics
	isAvailable atomic.Bool
}

// NewQueueRepository creates a new Redis-backed queue repository.
// The WAL is optional; pass nil if not needed.
func NewQueueRepository(ctx context.Context, client *redis.Client, wal domain.WALRepository, m *metrics.Metrics, logger *slog.Logger) *QueueRepository {
	repo := &QueueRepository{
		client:  client,
		logger:  logger.With("component", "redis_queue"),
		wal:     wal,
		metrics: m,
	}
	repo.isAvailable.Store(true)

	if err := client.Ping(ctx).Err(); err != nil {
		repo.markUnavailable(err)
	}
	return repo
}

// Available reports the last observed Redis health.
func (r *QueueRepository) Available() bool {
	return r.isAvailable.Load()
}

// Queue returns the TierQueue view of one (event type, tier) list.
func (r *QueueRepository) Queue(key domain.QueueKey) domain.TierQueue {
	return &tierQueue{repo: r, key: key}
}

// QueueSet returns a view for every batched (event type, tier) pair.
func (r *QueueRepository) QueueSet() map[domain.QueueKey]domain.TierQueue {
	set := make(map[domain.QueueKey]domain.TierQueue)
	for _, t := range domain.EventTypes {
		for _, tier := range domain.BatchedTiers {
			key := domain.QueueKey{EventType: t, Tier: tier}
			set[key] = r.Queue(key)
		}
	}
	return set
}

// StartHealthCheck starts a loop to monitor Redis connectivity and trigger WAL replay.
func (r *QueueRepository) StartHealthCheck(ctx context.Context, interval time.Duration) {
	if r.wal == nil {
		r.logger.Info("WAL is not configured, skipping health check/replayer")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("starting Redis health check and WAL replayer")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping Redis health check")
			return
		case <-ticker.C:
			if err := r.client.Ping(ctx).Err(); err != nil {
				r.markUnavailable(err)
				continue
			}
			if r.isAvailable.CompareAndSwap(false, true) {
				r.logger.Info("Redis connection recovered")
				if err := r.ReplayWAL(ctx); err != nil {
					r.logger.Error("failed to replay WAL after Redis recovery", "error", err)
					r.isAvailable.Store(false)
					continue
				}
				r.metrics.SetWALActive(false)
			}
		}
	}
}

// ReplayWAL pushes every WAL entry back onto its tier list, then truncates the WAL.
func (r *QueueRepository) ReplayWAL(ctx context.Context) error {
	if r.wal == nil {
		return nil
	}
	replayHandler := func(event domain.Event) error {
		return r.pushToRedis(ctx, event.Key(), event)
	}

	if err := r.wal.Replay(ctx, replayHandler); err != nil {
		return fmt.Errorf("WAL replay failed: %w", err)
	}
	if err := r.wal.Truncate(ctx); err != nil {
		return fmt.Errorf("failed to truncate WAL after successful replay: %w", err)
	}
	return nil
}

func (r *QueueRepository) push(ctx context.Context, key domain.QueueKey, event domain.Event) error {
	if !r.isAvailable.Load() {
		return r.writeWAL(ctx, event, nil)
	}

	err := r.pushToRedis(ctx, key, event)
	if err != nil && isNetworkError(err) {
		r.markUnavailable(err)
		return r.writeWAL(ctx, event, err)
	}
	return err
}

func (r *QueueRepository) writeWAL(ctx context.Context, event domain.Event, cause error) error {
	if r.wal == nil {
		if cause != nil {
			return fmt.Errorf("redis became unavailable and WAL is not configured: %w", cause)
		}
		return fmt.Errorf("%w and WAL is not configured", ErrUnavailable)
	}
	r.logger.Warn("Redis is unavailable, writing to WAL", "event_id", event.ID)
	return r.wal.Write(ctx, event)
}

func (r *QueueRepository) pushToRedis(ctx context.Context, key domain.QueueKey, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.LPush(ctx, listKey(key), payload).Err(); err != nil {
		return fmt.Errorf("failed to LPUSH to %s: %w", listKey(key), err)
	}
	return nil
}

func (r *QueueRepository) pop(ctx context.Context, key domain.QueueKey) (domain.Event, bool, error) {
	if !r.isAvailable.Load() {
		return domain.Event{}, false, ErrUnavailable
	}

	for {
		payload, err := r.client.RPop(ctx, listKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.Event{}, false, nil
		}
		if err != nil {
			if isNetworkError(err) {
				r.markUnavailable(err)
			}
			return domain.Event{}, false, fmt.Errorf("failed to RPOP from %s: %w", listKey(key), err)
		}

		var event domain.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			r.logger.Warn("failed to unmarshal queued event, skipping", "queue", key.String(), "error", err)
			continue
		}
		return event, true, nil
	}
}

func (r *QueueRepository) length(ctx context.Context, key domain.QueueKey) (int64, error) {
	n, err := r.client.LLen(ctx, listKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to LLEN %s: %w", listKey(key), err)
	}
	r.metrics.SetQueueDepth(key.String(), n)
	return n, nil
}

type deadLetterEntry struct {
	Event    domain.Event `json:"event"`
	Reason   string       `json:"reason"`
	FailedAt time.Time    `json:"failedAt"`
}

// DeadLetter appends an event that exhausted its redeliveries to a capped list.
func (r *QueueRepository) DeadLetter(ctx context.Context, event domain.Event, reason error) error {
	entry := deadLetterEntry{Event: event, FailedAt: time.Now().UTC()}
	if reason != nil {
		entry.Reason = reason.Error()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, deadLetterKey, payload)
	pipe.LTrim(ctx, deadLetterKey, 0, deadLetterMaxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute dead letter pipeline: %w", err)
	}
	return nil
}

// DeadLetterLen returns the number of retained dead letters.
func (r *QueueRepository) DeadLetterLen(ctx context.Context) (int64, error) {
	n, err := r.client.LLen(ctx, deadLetterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to LLEN %s: %w", deadLetterKey, err)
	}
	return n, nil
}

func (r *QueueRepository) markUnavailable(err error) {
	if r.isAvailable.CompareAndSwap(true, false) {
		r.logger.Error("Redis connection lost", "error", err)
		if r.wal != nil {
			r.metrics.SetWALActive(true)
		}
	}
}

// tierQueue binds the repository to one list.
type tierQueue struct {
	repo *QueueRepository
	key  domain.QueueKey
}

func (q *tierQueue) Push(ctx context.Context, event domain.Event) error {
	return q.repo.push(ctx, q.key, event)
}

func (q *tierQueue) Pop(ctx context.Context) (domain.Event, bool, error) {
	return q.repo.pop(ctx, q.key)
}

func (q *tierQueue) Len(ctx context.Context) (int64, error) {
	return q.repo.length(ctx, q.key)
}

func listKey(key domain.QueueKey) string {
	return keyPrefix + key.String()
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.DeadlineExceeded)
}
