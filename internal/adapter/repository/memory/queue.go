package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/V4T54L/worksync/internal/domain"
)

// Queue is an unbounded in-process FIFO implementing domain.TierQueue. Each
// queue has its own lock; there is no lock shared across queues.
type Queue struct {
	mu    sync.Mutex
	items *list.List
}

func NewQueue() *Queue {
	return &Queue{items: list.New()}
}

func (q *Queue) Push(ctx context.Context, event domain.Event) error {
	q.mu.Lock()
	q.items.PushBack(event)
	q.mu.Unlock()
	return nil
}

func (q *Queue) Pop(ctx context.Context) (domain.Event, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.items.Front()
	if front == nil {
		return domain.Event{}, false, nil
	}
	q.items.Remove(front)
	return front.Value.(domain.Event), true, nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(q.items.Len()), nil
}

// NewQueueSet builds one in-memory queue per (event type, batched tier).
func NewQueueSet() map[domain.QueueKey]domain.TierQueue {
	set := make(map[domain.QueueKey]domain.TierQueue)
	for _, t := range domain.EventTypes {
		for _, tier := range domain.BatchedTiers {
			set[domain.QueueKey{EventType: t, Tier: tier}] = NewQueue()
		}
	}
	return set
}

// DeadLetters keeps dropped events in memory.
type DeadLetters struct {
	mu     sync.Mutex
	events []domain.Event
}

func (d *DeadLetters) DeadLetter(ctx context.Context, event domain.Event, reason error) error {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
	return nil
}

func (d *DeadLetters) DeadLetterLen(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.events)), nil
}
