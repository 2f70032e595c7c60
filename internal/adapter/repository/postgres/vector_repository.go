package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/pkg/vecmath"
)

// VectorRepository implements domain.VectorStore. Embeddings are stored as
// BYTEA blobs; a failed embedding is stored as NULL.
type VectorRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewVectorRepository(db *sql.DB, logger *slog.Logger) *VectorRepository {
	return &VectorRepository{db: db, logger: logger.With("component", "postgres_vectors")}
}

func (r *VectorRepository) SaveVector(ctx context.Context, v domain.SummaryVector) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	blob, err := vecmath.Encode(v.Embedding)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStore, err)
	}

	const query = `INSERT INTO summary_vectors (id, employee_id, summary_text, embedding, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, v.ID, v.EmployeeID, v.SummaryText, blob, v.Timestamp.UTC()); err != nil {
		return fmt.Errorf("%w: insert summary vector: %v", domain.ErrStore, err)
	}
	return nil
}

// FindAllVectors returns every stored summary, including those without an
// embedding. Undecodable blobs are returned with an empty embedding.
func (r *VectorRepository) FindAllVectors(ctx context.Context) ([]domain.SummaryVector, error) {
	const query = `SELECT id, employee_id, summary_text, embedding, created_at FROM summary_vectors ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query summary vectors: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	var out []domain.SummaryVector
	for rows.Next() {
		var (
			v    domain.SummaryVector
			blob []byte
		)
		if err := rows.Scan(&v.ID, &v.EmployeeID, &v.SummaryText, &blob, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: scan summary vector: %v", domain.ErrStore, err)
		}
		if v.Embedding, err = vecmath.Decode(blob); err != nil {
			r.logger.Warn("failed to decode embedding", "id", v.ID, "error", err)
			v.Embedding = nil
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate summary vectors: %v", domain.ErrStore, err)
	}
	return out, nil
}
