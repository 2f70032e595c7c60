package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/V4T54L/worksync/internal/domain"
)

// AggregationRepository implements domain.AggregationStore on PostgreSQL.
type AggregationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAggregationRepository creates a new PostgreSQL aggregation repository.
func NewAggregationRepository(db *sql.DB, logger *slog.Logger) *AggregationRepository {
	return &AggregationRepository{db: db, logger: logger.With("component", "postgres_aggregations")}
}

// UpsertAggregations writes records using the COPY protocol into a staging
// table, then merges on (employee_id, event_type, window_start, window_end)
// so re-running a window replaces its records.
func (r *AggregationRepository) UpsertAggregations(ctx context.Context, records []domain.AggregationRecord) error {
	if len(records) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStore, err)
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	const tempTableName = "aggregation_records_import"
	if _, err := txn.ExecContext(ctx, `CREATE TEMP TABLE `+tempTableName+` (LIKE aggregation_records INCLUDING DEFAULTS) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("%w: create staging table: %v", domain.ErrStore, err)
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(tempTableName,
		"id", "employee_id", "employee_name", "event_type", "window_start", "window_end", "aggregated_data"))
	if err != nil {
		return fmt.Errorf("%w: prepare copy: %v", domain.ErrStore, err)
	}

	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		data, err := json.Marshal(rec.Data)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("%w: encode aggregated data: %v", domain.ErrStore, err)
		}
		if _, err := stmt.ExecContext(ctx, id, rec.EmployeeID, nullString(rec.EmployeeName), string(rec.EventType),
			rec.WindowStart.UTC(), rec.WindowEnd.UTC(), string(data)); err != nil {
			// Close the statement to avoid connection issues
			_ = stmt.Close()
			return fmt.Errorf("%w: copy record: %v", domain.ErrStore, err)
		}
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("%w: flush copy: %v", domain.ErrStore, err)
	}

	const upsertQuery = `
		INSERT INTO aggregation_records (id, employee_id, employee_name, event_type, window_start, window_end, aggregated_data)
		SELECT id, employee_id, employee_name, event_type, window_start, window_end, aggregated_data FROM ` + tempTableName + `
		ON CONFLICT (employee_id, event_type, window_start, window_end) DO UPDATE SET
			employee_name = EXCLUDED.employee_name,
			aggregated_data = EXCLUDED.aggregated_data,
			updated_at = NOW()`
	if _, err := txn.ExecContext(ctx, upsertQuery); err != nil {
		return fmt.Errorf("%w: merge records: %v", domain.ErrStore, err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStore, err)
	}
	return nil
}

// FindAggregations returns the records of exactly one window.
func (r *AggregationRepository) FindAggregations(ctx context.Context, eventType domain.EventType, start, end time.Time) ([]domain.AggregationRecord, error) {
	const query = `
		SELECT id, employee_id, COALESCE(employee_name, ''), event_type, window_start, window_end,
			aggregated_data, created_at, updated_at
		FROM aggregation_records
		WHERE event_type = $1 AND window_start = $2 AND window_end = $3
		ORDER BY employee_id`

	rows, err := r.db.QueryContext(ctx, query, string(eventType), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: query aggregations: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	var out []domain.AggregationRecord
	for rows.Next() {
		var (
			rec   domain.AggregationRecord
			etype string
			data  []byte
		)
		if err := rows.Scan(&rec.ID, &rec.EmployeeID, &rec.EmployeeName, &etype, &rec.WindowStart,
			&rec.WindowEnd, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan aggregation: %v", domain.ErrStore, err)
		}
		rec.EventType = domain.EventType(etype)
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			r.logger.Warn("failed to decode aggregated data", "id", rec.ID, "error", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate aggregations: %v", domain.ErrStore, err)
	}
	return out, nil
}
