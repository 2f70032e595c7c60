package domain

import (
	"sort"
	"time"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// LastWindow returns the window of length d ending at end.
func LastWindow(end time.Time, d time.Duration) Window {
	return Window{Start: end.Add(-d), End: end}
}

// PreviousWindow returns the last complete window of length d before now,
// aligned to multiples of d. For d of one hour at 10:20 it is [09:00, 10:00).
func PreviousWindow(now time.Time, d time.Duration) Window {
	end := now.Truncate(d)
	return Window{Start: end.Add(-d), End: end}
}

// Contains reports whether t falls inside [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// AggregatedBundle is every event of one employee within one window. It is
// built by the aggregation engine and handed to summarization once.
type AggregatedBundle struct {
	EmployeeID     string
	EmployeeName   string
	DeviceIDs      map[string]struct{}
	Categories     map[string]struct{}
	AppUsageEvents []Event
	SecurityEvents []Event
	AlertEvents    []Event
}

// NewAggregatedBundle returns an empty bundle for an employee.
func NewAggregatedBundle(employeeID, employeeName string) *AggregatedBundle {
	return &AggregatedBundle{
		EmployeeID:   employeeID,
		EmployeeName: employeeName,
		DeviceIDs:    make(map[string]struct{}),
		Categories:   make(map[string]struct{}),
	}
}

// Add places the event in the list matching its tag and records its device
// and category.
func (b *AggregatedBundle) Add(e Event) {
	if b.EmployeeName == "" {
		b.EmployeeName = e.EmployeeName
	}
	if e.DeviceID != "" {
		b.DeviceIDs[e.DeviceID] = struct{}{}
	}
	if e.Category != "" {
		b.Categories[e.Category] = struct{}{}
	}

	switch e.EventType {
	case EventTypeAppUsage:
		b.AppUsageEvents = append(b.AppUsageEvents, e)
	case EventTypeSecurity:
		b.SecurityEvents = append(b.SecurityEvents, e)
	case EventTypeAlert:
		b.AlertEvents = append(b.AlertEvents, e)
	}
}

// Empty reports whether the bundle holds no events at all.
func (b *AggregatedBundle) Empty() bool {
	return len(b.AppUsageEvents) == 0 && len(b.SecurityEvents) == 0 && len(b.AlertEvents) == 0
}

func (b *AggregatedBundle) SortedDeviceIDs() []string { return sortedKeys(b.DeviceIDs) }

func (b *AggregatedBundle) SortedCategories() []string { return sortedKeys(b.Categories) }

// AppDurations sums durationSeconds per application name.
func (b *AggregatedBundle) AppDurations() map[string]int64 {
	return AppDurations(b.AppUsageEvents)
}

// ThreatCounts counts security events per threat type.
func (b *AggregatedBundle) ThreatCounts() map[string]int64 {
	return ThreatCounts(b.SecurityEvents)
}

// AlertsByType groups alert descriptions by alert type.
func (b *AggregatedBundle) AlertsByType() map[string][]string {
	return AlertsByType(b.AlertEvents)
}

// AppDurations sums durationSeconds per distinct appName. Events of other
// types are ignored.
func AppDurations(events []Event) map[string]int64 {
	out := make(map[string]int64)
	for _, e := range events {
		if e.AppUsage == nil {
			continue
		}
		out[e.AppName] += e.DurationSeconds
	}
	return out
}

// ThreatCounts counts occurrences per threatType.
func ThreatCounts(events []Event) map[string]int64 {
	out := make(map[string]int64)
	for _, e := range events {
		if e.Security == nil {
			continue
		}
		out[e.ThreatType]++
	}
	return out
}

// AlertsByType groups descriptions by alertType, in event order.
func AlertsByType(events []Event) map[string][]string {
	out := make(map[string][]string)
	for _, e := range events {
		if e.Alert == nil {
			continue
		}
		out[e.AlertType] = append(out[e.AlertType], e.Description)
	}
	return out
}

// AggregatedData is the payload of a materialized aggregation record. Only
// the map belonging to the record's event type is set.
type AggregatedData struct {
	AppDurations map[string]int64    `json:"appDurations,omitempty"`
	ThreatCounts map[string]int64    `json:"threatCounts,omitempty"`
	AlertsByType map[string][]string `json:"alertsByType,omitempty"`
}

// AggregationRecord is one materialized aggregate. (EmployeeID, EventType,
// WindowStart, WindowEnd) is its idempotency key.
type AggregationRecord struct {
	ID           string         `json:"id"`
	EmployeeID   string         `json:"employeeId"`
	EmployeeName string         `json:"employeeName,omitempty"`
	EventType    EventType      `json:"eventType"`
	WindowStart  time.Time      `json:"windowStart"`
	WindowEnd    time.Time      `json:"windowEnd"`
	Data         AggregatedData `json:"aggregatedData"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
