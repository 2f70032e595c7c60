package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/V4T54L/worksync/internal/adapter/metrics"
	"github.com/V4T54L/worksync/internal/domain"
)

// AdminQueuesUseCase reports on the tier queues and the dead-letter sink.
type AdminQueuesUseCase struct {
	queues      map[domain.QueueKey]domain.TierQueue
	deadLetters domain.DeadLetterCounter
	metrics     *metrics.Metrics
}

// NewAdminQueuesUseCase creates the admin use case. deadLetters may be nil.
func NewAdminQueuesUseCase(queues map[domain.QueueKey]domain.TierQueue, deadLetters domain.DeadLetterCounter, m *metrics.Metrics) *AdminQueuesUseCase {
	return &AdminQueuesUseCase{queues: queues, deadLetters: deadLetters, metrics: m}
}

// QueueStats returns the depth of every tier queue, ordered by name. It also
// refreshes the queue depth gauge.
func (uc *AdminQueuesUseCase) QueueStats(ctx context.Context) ([]domain.QueueStats, error) {
	stats := make([]domain.QueueStats, 0, len(uc.queues))
	for key, q := range uc.queues {
		depth, err := q.Len(ctx)
		if err != nil {
			return nil, fmt.Errorf("queue %s length: %w", key, err)
		}
		uc.metrics.SetQueueDepth(key.String(), depth)
		stats = append(stats, domain.QueueStats{
			Queue:     key.String(),
			EventType: key.EventType,
			Tier:      key.Tier,
			Depth:     depth,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Queue < stats[j].Queue })
	return stats, nil
}

// DeadLetterStats returns the dead-letter depth, zero when no sink is wired.
func (uc *AdminQueuesUseCase) DeadLetterStats(ctx context.Context) (domain.DeadLetterStats, error) {
	if uc.deadLetters == nil {
		return domain.DeadLetterStats{}, nil
	}
	n, err := uc.deadLetters.DeadLetterLen(ctx)
	if err != nil {
		return domain.DeadLetterStats{}, err
	}
	return domain.DeadLetterStats{Depth: n}, nil
}
