package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Priority is the admission tier of an event.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityNormal   Priority = "NORMAL"
)

// MaxDurationSeconds bounds one app usage report to a year so per-app
// totals cannot overflow.
const MaxDurationSeconds int64 = 366 * 24 * 3600

// BatchedTiers are the tiers that are buffered and drained on a schedule.
var BatchedTiers = []Priority{PriorityHigh, PriorityNormal}

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal:
		return true
	}
	return false
}

// EventType is the tag of the Event variant.
type EventType string

const (
	EventTypeAppUsage EventType = "APP_USAGE"
	EventTypeSecurity EventType = "SECURITY"
	EventTypeAlert    EventType = "ALERT"
)

// EventTypes lists every event variant in a stable order.
var EventTypes = []EventType{EventTypeAppUsage, EventTypeSecurity, EventTypeAlert}

func (t EventType) Valid() bool {
	switch t {
	case EventTypeAppUsage, EventTypeSecurity, EventTypeAlert:
		return true
	}
	return false
}

// Slug is the URL and topic friendly form of the type, e.g. "app-usage".
func (t EventType) Slug() string {
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", "-")
}

// ParseEventTypeSlug is the inverse of EventType.Slug.
func ParseEventTypeSlug(slug string) (EventType, bool) {
	for _, t := range EventTypes {
		if t.Slug() == slug {
			return t, true
		}
	}
	return "", false
}

// Header holds the fields shared by every event variant.
type Header struct {
	ID           string         `json:"eventId"`
	Timestamp    time.Time      `json:"timestamp"`
	ReceivedAt   time.Time      `json:"receivedAt"`
	EmployeeID   string         `json:"employeeId"`
	EmployeeName string         `json:"employeeName,omitempty"`
	DeviceID     string         `json:"deviceId,omitempty"`
	EventType    EventType      `json:"eventType"`
	Category     string         `json:"category,omitempty"`
	Priority     Priority       `json:"priority"`
	Description  string         `json:"description,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RetryCount   int            `json:"retryCount,omitempty"`
	PIIRedacted  bool           `json:"piiRedacted,omitempty"`
}

// AppUsage is the payload of an APP_USAGE event.
type AppUsage struct {
	AppName         string `json:"appName"`
	DurationSeconds int64  `json:"durationSeconds"`
}

// Security is the payload of a SECURITY event.
type Security struct {
	URL        string `json:"url,omitempty"`
	ThreatType string `json:"threatType"`
}

// Alert is the payload of an ALERT event.
type Alert struct {
	AlertType string `json:"alertType"`
	Severity  string `json:"severity,omitempty"`
}

// Event is a tagged variant: Header.EventType selects which one of the
// embedded payloads is set. The wire form is flat JSON.
type Event struct {
	Header
	*AppUsage
	*Security
	*Alert
}

// NewAppUsageEvent, NewSecurityEvent and NewAlertEvent build a variant with
// the tag and payload kept consistent.
func NewAppUsageEvent(h Header, p AppUsage) Event {
	h.EventType = EventTypeAppUsage
	return Event{Header: h, AppUsage: &p}
}

func NewSecurityEvent(h Header, p Security) Event {
	h.EventType = EventTypeSecurity
	return Event{Header: h, Security: &p}
}

func NewAlertEvent(h Header, p Alert) Event {
	h.EventType = EventTypeAlert
	return Event{Header: h, Alert: &p}
}

// UnmarshalJSON decodes the flat wire form. It accepts the legacy field
// names "pcId" and "durationInSeconds". When the tag is present, payload
// fields that do not belong to it are dropped; an untagged event keeps what
// it decoded until AssignType is called.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var aux struct {
		plain
		PCID              *string `json:"pcId"`
		DurationInSeconds *int64  `json:"durationInSeconds"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = Event(aux.plain)

	if e.DeviceID == "" && aux.PCID != nil {
		e.DeviceID = *aux.PCID
	}
	if aux.DurationInSeconds != nil {
		if e.AppUsage == nil {
			e.AppUsage = &AppUsage{}
		}
		if e.AppUsage.DurationSeconds == 0 {
			e.AppUsage.DurationSeconds = *aux.DurationInSeconds
		}
	}
	if e.EventType != "" {
		e.normalize()
	}
	return nil
}

// AssignType tags an untagged event with t. It returns false when the event
// already carries a different tag.
func (e *Event) AssignType(t EventType) bool {
	if e.EventType == "" {
		e.EventType = t
	}
	if e.EventType != t {
		return false
	}
	e.normalize()
	return true
}

func (e *Event) normalize() {
	if e.EventType != EventTypeAppUsage {
		e.AppUsage = nil
	}
	if e.EventType != EventTypeSecurity {
		e.Security = nil
	}
	if e.EventType != EventTypeAlert {
		e.Alert = nil
	}
}

// Validate reports the first missing or malformed required field as a
// *ValidationError.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.EmployeeID) == "" {
		return &ValidationError{Field: "employeeId", Reason: "is required"}
	}
	if !e.EventType.Valid() {
		return &ValidationError{Field: "eventType", Reason: "must be one of APP_USAGE, SECURITY, ALERT"}
	}
	if !e.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "must be one of CRITICAL, HIGH, NORMAL"}
	}

	switch e.EventType {
	case EventTypeAppUsage:
		if e.AppUsage == nil || strings.TrimSpace(e.AppName) == "" {
			return &ValidationError{Field: "appName", Reason: "is required for APP_USAGE events"}
		}
		if e.DurationSeconds < 0 {
			return &ValidationError{Field: "durationSeconds", Reason: "must not be negative"}
		}
		if e.DurationSeconds > MaxDurationSeconds {
			return &ValidationError{Field: "durationSeconds", Reason: "must not exceed one year"}
		}
	case EventTypeSecurity:
		if e.Security == nil || strings.TrimSpace(e.ThreatType) == "" {
			return &ValidationError{Field: "threatType", Reason: "is required for SECURITY events"}
		}
	case EventTypeAlert:
		if e.Alert == nil || strings.TrimSpace(e.AlertType) == "" {
			return &ValidationError{Field: "alertType", Reason: "is required for ALERT events"}
		}
	}
	return nil
}

// QueueKey identifies one tier queue.
type QueueKey struct {
	EventType EventType
	Tier      Priority
}

func (k QueueKey) String() string {
	return k.EventType.Slug() + ":" + strings.ToLower(string(k.Tier))
}

// Key returns the queue an event is admitted to.
func (e *Event) Key() QueueKey {
	return QueueKey{EventType: e.EventType, Tier: e.Priority}
}
