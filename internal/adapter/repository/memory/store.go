package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/worksync/internal/domain"
)

type aggregationKey struct {
	employeeID string
	eventType  domain.EventType
	start, end int64
}

// Store is an in-process implementation of the event, aggregation and
// vector stores. It backs local runs and scenario tests.
type Store struct {
	mu           sync.RWMutex
	events       []domain.Event
	eventIDs     map[string]struct{}
	aggregations map[aggregationKey]domain.AggregationRecord
	vectors      []domain.SummaryVector
	now          func() time.Time
}

func NewStore() *Store {
	return &Store{
		eventIDs:     make(map[string]struct{}),
		aggregations: make(map[aggregationKey]domain.AggregationRecord),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Save(ctx context.Context, event domain.Event) (string, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.eventIDs[event.ID]; ok {
		return event.ID, nil
	}
	s.eventIDs[event.ID] = struct{}{}
	s.events = append(s.events, event)
	return event.ID, nil
}

func (s *Store) FindByTimestampBetween(ctx context.Context, eventType domain.EventType, start, end time.Time) ([]domain.Event, error) {
	w := domain.Window{Start: start, End: end}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Event
	for _, e := range s.events {
		if e.EventType == eventType && w.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) UpsertAggregations(ctx context.Context, records []domain.AggregationRecord) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		key := aggregationKey{r.EmployeeID, r.EventType, r.WindowStart.UnixNano(), r.WindowEnd.UnixNano()}
		if existing, ok := s.aggregations[key]; ok {
			r.ID = existing.ID
			r.CreatedAt = existing.CreatedAt
		} else {
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		s.aggregations[key] = r
	}
	return nil
}

func (s *Store) FindAggregations(ctx context.Context, eventType domain.EventType, start, end time.Time) ([]domain.AggregationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AggregationRecord
	for k, r := range s.aggregations {
		if k.eventType == eventType && k.start == start.UnixNano() && k.end == end.UnixNano() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func (s *Store) SaveVector(ctx context.Context, v domain.SummaryVector) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.Embedding = append([]float32(nil), v.Embedding...)
	s.mu.Lock()
	s.vectors = append(s.vectors, v)
	s.mu.Unlock()
	return nil
}

func (s *Store) FindAllVectors(ctx context.Context) ([]domain.SummaryVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SummaryVector(nil), s.vectors...), nil
}
