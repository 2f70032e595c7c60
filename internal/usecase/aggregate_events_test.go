package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/V4T54L/worksync/internal/adapter/repository/memory"
	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/domain/mocks"
)

func TestAggregate(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	window := domain.Window{Start: start, End: start.Add(time.Hour)}

	events := []domain.Event{
		appUsage("EMP001", "Chrome", 1800, domain.PriorityNormal, start),
		appUsage("EMP001", "Chrome", 1200, domain.PriorityNormal, start.Add(10*time.Minute)),
		appUsage("EMP001", "Slack", 300, domain.PriorityNormal, start.Add(20*time.Minute)),
		security("EMP001", "MALWARE", "http://a", domain.PriorityHigh, start.Add(30*time.Minute)),
		security("EMP001", "MALWARE", "http://b", domain.PriorityHigh, start.Add(31*time.Minute)),
		security("EMP002", "PHISHING", "http://c", domain.PriorityHigh, start.Add(32*time.Minute)),
		alert("EMP002", "PRINTER", "toner low", domain.PriorityNormal, start.Add(40*time.Minute)),
		alert("EMP002", "PRINTER", "paper jam", domain.PriorityNormal, start.Add(41*time.Minute)),
		// window end is exclusive
		appUsage("EMP003", "Excel", 60, domain.PriorityNormal, start.Add(time.Hour)),
	}

	bundles := Aggregate(events, window)
	if len(bundles) != 2 {
		t.Fatalf("expected 2 employees, got %d", len(bundles))
	}

	emp1 := bundles["EMP001"]
	if got, want := emp1.AppDurations(), map[string]int64{"Chrome": 3000, "Slack": 300}; !reflect.DeepEqual(got, want) {
		t.Errorf("app durations: expected %v, got %v", want, got)
	}
	if got, want := emp1.ThreatCounts(), map[string]int64{"MALWARE": 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("threat counts: expected %v, got %v", want, got)
	}
	if got := emp1.SortedDeviceIDs(); !reflect.DeepEqual(got, []string{"PC-1"}) {
		t.Errorf("device ids: expected [PC-1], got %v", got)
	}

	emp2 := bundles["EMP002"]
	if got, want := emp2.ThreatCounts(), map[string]int64{"PHISHING": 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("threat counts: expected %v, got %v", want, got)
	}
	if got, want := emp2.AlertsByType(), map[string][]string{"PRINTER": {"toner low", "paper jam"}}; !reflect.DeepEqual(got, want) {
		t.Errorf("alerts: expected %v, got %v", want, got)
	}
	if len(emp2.AppUsageEvents) != 0 {
		t.Errorf("expected no app usage for EMP002, got %d", len(emp2.AppUsageEvents))
	}
}

func TestBuildRecords(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	window := domain.Window{Start: start, End: start.Add(time.Hour)}
	now := start.Add(2 * time.Hour)

	bundles := Aggregate([]domain.Event{
		appUsage("EMP002", "Chrome", 60, domain.PriorityNormal, start),
		appUsage("EMP001", "Chrome", 60, domain.PriorityNormal, start),
		alert("EMP001", "DISK", "full", domain.PriorityHigh, start),
	}, window)

	records := BuildRecords(bundles, window, now)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].EmployeeID != "EMP001" || records[0].EventType != domain.EventTypeAppUsage {
		t.Errorf("unexpected first record %s/%s", records[0].EmployeeID, records[0].EventType)
	}
	if records[1].EventType != domain.EventTypeAlert {
		t.Errorf("expected the second record to be an alert, got %s", records[1].EventType)
	}
	if got := records[1].Data.AlertsByType; !reflect.DeepEqual(got, map[string][]string{"DISK": {"full"}}) {
		t.Errorf("unexpected alert data %v", got)
	}
	if records[1].Data.AppDurations != nil {
		t.Errorf("expected only the alert map to be set, got %v", records[1].Data.AppDurations)
	}
	if records[2].EmployeeID != "EMP002" {
		t.Errorf("expected EMP002 last, got %s", records[2].EmployeeID)
	}
	for _, r := range records {
		if r.ID == "" {
			t.Error("expected a record id")
		}
		if !r.WindowStart.Equal(window.Start) || !r.WindowEnd.Equal(window.End) {
			t.Errorf("unexpected window [%v, %v)", r.WindowStart, r.WindowEnd)
		}
		if !r.CreatedAt.Equal(now) {
			t.Errorf("expected createdAt %v, got %v", now, r.CreatedAt)
		}
	}
}

func TestAggregateEventsUseCase_CriticalEventScenario(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ingest := newIngest(store)
	uc := NewAggregateEventsUseCase(store, store, fastRetry, nil, discardLogger())

	ts := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	event := appUsage("EMP001", "Chrome", 3600, domain.PriorityCritical, ts)
	if err := ingest.Submit(ctx, &event); err != nil {
		t.Fatalf("submit: %v", err)
	}

	window := domain.Window{Start: ts.Add(-30 * time.Minute), End: ts.Add(30 * time.Minute)}
	n, err := uc.Materialize(ctx, window)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}

	records, err := store.FindAggregations(ctx, domain.EventTypeAppUsage, window.Start, window.End)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(records))
	}
	if records[0].EmployeeID != "EMP001" {
		t.Errorf("expected EMP001, got %s", records[0].EmployeeID)
	}
	if got := records[0].Data.AppDurations; !reflect.DeepEqual(got, map[string]int64{"Chrome": 3600}) {
		t.Errorf("expected Chrome 3600, got %v", got)
	}
}

func TestAggregateEventsUseCase_MaterializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	uc := NewAggregateEventsUseCase(store, store, fastRetry, nil, discardLogger())

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	window := domain.Window{Start: start, End: start.Add(time.Hour)}
	if _, err := store.Save(ctx, appUsage("EMP001", "Chrome", 600, domain.PriorityNormal, start.Add(time.Minute))); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := uc.Materialize(ctx, window); err != nil {
		t.Fatalf("first materialize: %v", err)
	}

	e := appUsage("EMP001", "Chrome", 400, domain.PriorityNormal, start.Add(2*time.Minute))
	e.ID = "second"
	if _, err := store.Save(ctx, e); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := uc.Materialize(ctx, window); err != nil {
		t.Fatalf("second materialize: %v", err)
	}

	records, err := store.FindAggregations(ctx, domain.EventTypeAppUsage, window.Start, window.End)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected the record to be replaced, got %d records", len(records))
	}
	if got := records[0].Data.AppDurations["Chrome"]; got != 1000 {
		t.Errorf("expected 1000 seconds, got %d", got)
	}
}

func TestAggregateEventsUseCase_EmptyWindowIsNoop(t *testing.T) {
	aggs := &mocks.MockAggregationStore{}
	uc := NewAggregateEventsUseCase(&mocks.MockEventStore{}, aggs, fastRetry, nil, discardLogger())

	n, err := uc.Materialize(context.Background(), domain.LastWindow(time.Now(), time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 0 || aggs.Calls != 0 {
		t.Errorf("expected no records and no writes, got %d records and %d writes", n, aggs.Calls)
	}
}

func TestAggregateEventsUseCase_StoreErrors(t *testing.T) {
	window := domain.LastWindow(time.Now(), time.Hour)

	t.Run("Load Failure After Retries", func(t *testing.T) {
		events := &mocks.MockEventStore{FindErr: domain.ErrStore}
		uc := NewAggregateEventsUseCase(events, &mocks.MockAggregationStore{}, fastRetry, nil, discardLogger())
		if _, err := uc.Materialize(context.Background(), window); !errors.Is(err, domain.ErrStore) {
			t.Errorf("expected a store error, got %v", err)
		}
		if events.FindCalls != 3 {
			t.Errorf("expected 3 attempts, got %d", events.FindCalls)
		}
	})

	t.Run("Transient Load Failure Recovers", func(t *testing.T) {
		events := &mocks.MockEventStore{
			Saved:    []domain.Event{appUsage("EMP001", "Chrome", 60, domain.PriorityNormal, window.Start)},
			FindErrs: []error{domain.ErrStore},
		}
		aggs := &mocks.MockAggregationStore{}
		uc := NewAggregateEventsUseCase(events, aggs, fastRetry, nil, discardLogger())

		n, err := uc.Materialize(context.Background(), window)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if n != 1 || len(aggs.Records) != 1 {
			t.Errorf("expected 1 record written, got %d (%d stored)", n, len(aggs.Records))
		}
	})

	t.Run("Upsert Failure", func(t *testing.T) {
		events := &mocks.MockEventStore{Saved: []domain.Event{appUsage("EMP001", "Chrome", 60, domain.PriorityNormal, window.Start)}}
		aggs := &mocks.MockAggregationStore{UpsertErr: domain.ErrStore}
		uc := NewAggregateEventsUseCase(events, aggs, fastRetry, nil, discardLogger())
		if _, err := uc.Materialize(context.Background(), window); !errors.Is(err, domain.ErrStore) {
			t.Errorf("expected a store error, got %v", err)
		}
		if aggs.Calls != 3 {
			t.Errorf("expected 3 upsert attempts, got %d", aggs.Calls)
		}
	})
}

func TestPreviousWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 20, 0, 0, time.UTC)
	w := domain.PreviousWindow(now, time.Hour)
	if want := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC); !w.Start.Equal(want) {
		t.Errorf("expected start %v, got %v", want, w.Start)
	}
	if want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC); !w.End.Equal(want) {
		t.Errorf("expected end %v, got %v", want, w.End)
	}
}
