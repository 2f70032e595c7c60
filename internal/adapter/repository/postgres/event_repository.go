package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/worksync/internal/domain"
)

// EventRepository implements domain.EventStore on PostgreSQL. Header fields
// are columns and the variant payload is a JSONB document.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger.With("component", "postgres_events")}
}

// Save inserts one event. A duplicate event_id is ignored so redelivered
// events are idempotent.
func (r *EventRepository) Save(ctx context.Context, event domain.Event) (string, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	payload, err := encodePayload(event)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	metadata, err := encodeMetadata(event.Metadata)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO events (event_id, event_type, priority, employee_id, employee_name, device_id,
			category, description, metadata, payload, event_ts, received_at, retry_count, pii_redacted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (event_id) DO NOTHING`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, string(event.EventType), string(event.Priority), event.EmployeeID,
		nullString(event.EmployeeName), nullString(event.DeviceID), nullString(event.Category),
		nullString(event.Description), metadata, string(payload), event.Timestamp.UTC(), receivedAt,
		event.RetryCount, event.PIIRedacted,
	)
	if err != nil {
		return "", fmt.Errorf("%w: insert event %s: %v", domain.ErrStore, event.ID, err)
	}
	return event.ID, nil
}

// FindByTimestampBetween returns events of one type with start <= ts < end,
// oldest first.
func (r *EventRepository) FindByTimestampBetween(ctx context.Context, eventType domain.EventType, start, end time.Time) ([]domain.Event, error) {
	const query = `
		SELECT event_id, event_type, priority, employee_id, COALESCE(employee_name, ''), COALESCE(device_id, ''),
			COALESCE(category, ''), COALESCE(description, ''), metadata, payload, event_ts, received_at,
			retry_count, pii_redacted
		FROM events
		WHERE event_type = $1 AND event_ts >= $2 AND event_ts < $3
		ORDER BY event_ts ASC`

	rows, err := r.db.QueryContext(ctx, query, string(eventType), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: query events: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			h        domain.Header
			etype    string
			priority string
			metadata []byte
			payload  []byte
		)
		if err := rows.Scan(&h.ID, &etype, &priority, &h.EmployeeID, &h.EmployeeName, &h.DeviceID,
			&h.Category, &h.Description, &metadata, &payload, &h.Timestamp, &h.ReceivedAt,
			&h.RetryCount, &h.PIIRedacted); err != nil {
			return nil, fmt.Errorf("%w: scan event: %v", domain.ErrStore, err)
		}
		h.EventType = domain.EventType(etype)
		h.Priority = domain.Priority(priority)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &h.Metadata); err != nil {
				r.logger.Warn("failed to decode event metadata", "event_id", h.ID, "error", err)
			}
		}
		event, err := decodePayload(h, payload)
		if err != nil {
			r.logger.Warn("skipping event with unreadable payload", "event_id", h.ID, "error", err)
			continue
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate events: %v", domain.ErrStore, err)
	}
	return events, nil
}

func encodePayload(e domain.Event) ([]byte, error) {
	switch e.EventType {
	case domain.EventTypeAppUsage:
		if e.AppUsage == nil {
			return nil, fmt.Errorf("event %s has no app usage payload", e.ID)
		}
		return json.Marshal(e.AppUsage)
	case domain.EventTypeSecurity:
		if e.Security == nil {
			return nil, fmt.Errorf("event %s has no security payload", e.ID)
		}
		return json.Marshal(e.Security)
	case domain.EventTypeAlert:
		if e.Alert == nil {
			return nil, fmt.Errorf("event %s has no alert payload", e.ID)
		}
		return json.Marshal(e.Alert)
	}
	return nil, fmt.Errorf("event %s has unknown type %q", e.ID, e.EventType)
}

func decodePayload(h domain.Header, payload []byte) (domain.Event, error) {
	switch h.EventType {
	case domain.EventTypeAppUsage:
		var p domain.AppUsage
		if err := json.Unmarshal(payload, &p); err != nil {
			return domain.Event{}, err
		}
		return domain.NewAppUsageEvent(h, p), nil
	case domain.EventTypeSecurity:
		var p domain.Security
		if err := json.Unmarshal(payload, &p); err != nil {
			return domain.Event{}, err
		}
		return domain.NewSecurityEvent(h, p), nil
	case domain.EventTypeAlert:
		var p domain.Alert
		if err := json.Unmarshal(payload, &p); err != nil {
			return domain.Event{}, err
		}
		return domain.NewAlertEvent(h, p), nil
	}
	return domain.Event{}, fmt.Errorf("unknown event type %q", h.EventType)
}

func encodeMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
