package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/worksync/internal/adapter/metrics"
	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/pkg/retry"
	"github.com/V4T54L/worksync/internal/pkg/vecmath"
)

// NoiseFloor is the similarity at or below which a match is discarded.
const NoiseFloor = 0.1

// VectorIndexUseCase embeds summaries and serves similarity search over them.
type VectorIndexUseCase struct {
	embedder domain.Embedder
	store    domain.VectorStore
	retry    retry.Policy
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewVectorIndexUseCase(embedder domain.Embedder, store domain.VectorStore, policy retry.Policy, m *metrics.Metrics, logger *slog.Logger) *VectorIndexUseCase {
	return &VectorIndexUseCase{
		embedder: embedder,
		store:    store,
		retry:    policy,
		metrics:  m,
		logger:   logger.With("component", "vector_index"),
	}
}

// EmbedAndStore embeds text and persists it. A failed embedding still
// persists the summary with an empty vector so it is kept for audit; only a
// failed store write is returned as an error.
func (uc *VectorIndexUseCase) EmbedAndStore(ctx context.Context, employeeID, text string, ts time.Time) (domain.SummaryVector, error) {
	v := domain.SummaryVector{
		ID:          uuid.NewString(),
		EmployeeID:  employeeID,
		SummaryText: text,
		Timestamp:   ts,
	}

	embedding, err := retry.DoValue(ctx, uc.retry, func(ctx context.Context) ([]float32, error) {
		e, err := uc.embedder.Embed(ctx, text)
		if err == nil && len(e) == 0 {
			err = fmt.Errorf("%w: empty embedding", domain.ErrGateway)
		}
		return e, err
	})
	if err != nil {
		uc.logger.Warn("embedding failed, storing summary without vector", "error", err, "employee_id", employeeID)
	} else {
		v.Embedding = embedding
	}

	if err := retry.Do(ctx, uc.retry, func(ctx context.Context) error {
		return uc.store.SaveVector(ctx, v)
	}); err != nil {
		uc.logger.Error("failed to store summary vector", "error", err, "employee_id", employeeID)
		return domain.SummaryVector{}, err
	}

	uc.metrics.ObserveVectorStored(v.HasEmbedding())
	return v, nil
}

// SimilaritySearch returns up to topK summaries most similar to query, best
// first. A failed query embedding yields no matches rather than an error.
func (uc *VectorIndexUseCase) SimilaritySearch(ctx context.Context, query string, topK int) ([]domain.SummaryMatch, error) {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return []domain.SummaryMatch{}, nil
	}

	q, err := retry.DoValue(ctx, uc.retry, func(ctx context.Context) ([]float32, error) {
		e, err := uc.embedder.Embed(ctx, query)
		if err == nil && len(e) == 0 {
			err = fmt.Errorf("%w: empty embedding", domain.ErrGateway)
		}
		return e, err
	})
	if err != nil {
		uc.logger.Warn("query embedding failed, returning no matches", "error", err)
		return []domain.SummaryMatch{}, nil
	}

	vectors, err := retry.DoValue(ctx, uc.retry, uc.store.FindAllVectors)
	if err != nil {
		uc.logger.Error("failed to load summary vectors", "error", err)
		return nil, err
	}

	return rank(q, vectors, topK, uc.logger), nil
}

// rank scores every usable vector against q and keeps the best topK above
// the noise floor. Ties are broken by the newer timestamp.
func rank(q []float32, vectors []domain.SummaryVector, topK int, logger *slog.Logger) []domain.SummaryMatch {
	matches := make([]domain.SummaryMatch, 0, len(vectors))
	for _, v := range vectors {
		if !v.HasEmbedding() {
			continue
		}
		score, err := vecmath.Cosine(q, v.Embedding)
		if err != nil {
			if !errors.Is(err, vecmath.ErrZeroNorm) {
				logger.Debug("skipping vector", "vector_id", v.ID, "error", err)
			}
			continue
		}
		if score <= NoiseFloor {
			continue
		}
		matches = append(matches, domain.SummaryMatch{
			EmployeeID:  v.EmployeeID,
			SummaryText: v.SummaryText,
			Timestamp:   v.Timestamp,
			Similarity:  score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Timestamp.After(matches[j].Timestamp)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
