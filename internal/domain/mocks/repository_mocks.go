package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/V4T54L/worksync/internal/domain"
)

// MockEventStore is a mock implementation of domain.EventStore for testing.
// SaveErrs and FindErrs are consumed one entry per call before SaveErr and
// FindErr apply.
type MockEventStore struct {
	mu        sync.Mutex
	Saved     []domain.Event
	SaveCalls int
	SaveErrs  []error
	SaveErr   error
	FindCalls int
	FindErrs  []error
	FindErr   error
}

func (m *MockEventStore) Save(ctx context.Context, event domain.Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if len(m.SaveErrs) > 0 {
		err := m.SaveErrs[0]
		m.SaveErrs = m.SaveErrs[1:]
		if err != nil {
			return "", err
		}
	} else if m.SaveErr != nil {
		return "", m.SaveErr
	}
	m.Saved = append(m.Saved, event)
	return event.ID, nil
}

func (m *MockEventStore) FindByTimestampBetween(ctx context.Context, eventType domain.EventType, start, end time.Time) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindCalls++
	if err := popErr(&m.FindErrs, m.FindErr); err != nil {
		return nil, err
	}
	w := domain.Window{Start: start, End: end}
	var out []domain.Event
	for _, e := range m.Saved {
		if e.EventType == eventType && w.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out, nil
}

// SavedEvents returns a copy of everything saved so far.
func (m *MockEventStore) SavedEvents() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.Saved...)
}

// MockAggregationStore is a mock implementation of domain.AggregationStore.
type MockAggregationStore struct {
	mu        sync.Mutex
	Records   []domain.AggregationRecord
	Calls     int
	UpsertErr error
}

func (m *MockAggregationStore) UpsertAggregations(ctx context.Context, records []domain.AggregationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.Records = append(m.Records, records...)
	return nil
}

func (m *MockAggregationStore) FindAggregations(ctx context.Context, eventType domain.EventType, start, end time.Time) ([]domain.AggregationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AggregationRecord
	for _, r := range m.Records {
		if r.EventType == eventType && r.WindowStart.Equal(start) && r.WindowEnd.Equal(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

// MockVectorStore is a mock implementation of domain.VectorStore. FindErrs
// is consumed one entry per call before FindErr applies.
type MockVectorStore struct {
	mu        sync.Mutex
	Vectors   []domain.SummaryVector
	SaveErr   error
	FindErrs  []error
	FindErr   error
	SaveCall  int
	FindCalls int
}

func (m *MockVectorStore) SaveVector(ctx context.Context, v domain.SummaryVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCall++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Vectors = append(m.Vectors, v)
	return nil
}

func (m *MockVectorStore) FindAllVectors(ctx context.Context) ([]domain.SummaryVector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindCalls++
	if err := popErr(&m.FindErrs, m.FindErr); err != nil {
		return nil, err
	}
	return append([]domain.SummaryVector(nil), m.Vectors...), nil
}

// MockDeadLetterSink records dead-lettered events.
type MockDeadLetterSink struct {
	mu     sync.Mutex
	Events []domain.Event
	Err    error
}

func (m *MockDeadLetterSink) DeadLetter(ctx context.Context, event domain.Event, reason error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, event)
	return nil
}

// MockAPIKeyRepository accepts the keys in Valid.
type MockAPIKeyRepository struct {
	Valid map[string]bool
	Err   error
}

func (m *MockAPIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return m.Valid[key], nil
}

// popErr takes the next scripted error, falling back to def once the script
// is exhausted. A nil entry means that call succeeds.
func popErr(script *[]error, def error) error {
	if len(*script) > 0 {
		err := (*script)[0]
		*script = (*script)[1:]
		return err
	}
	return def
}
