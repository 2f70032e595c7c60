package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/V4T54L/worksync/internal/adapter/metrics"
	"github.com/V4T54L/worksync/internal/domain"
)

type cacheEntry struct {
	isValid   bool
	expiresAt time.Time
}

// APIKeyRepository implements domain.APIKeyRepository with PostgreSQL as the
// source of truth behind a time-based in-memory cache.
type APIKeyRepository struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cacheTTL time.Duration
	lookup   func(ctx context.Context, key string) (bool, error)
	now      func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewAPIKeyRepository creates a new instance of the PostgreSQL API key repository.
func NewAPIKeyRepository(db *sql.DB, logger *slog.Logger, cacheTTL time.Duration, m *metrics.Metrics) *APIKeyRepository {
	r := newCachedKeys(logger, cacheTTL, m)
	r.lookup = func(ctx context.Context, key string) (bool, error) {
		var isValid bool
		// A key is valid if it exists, is active, and has not expired.
		const query = `SELECT EXISTS(SELECT 1 FROM api_keys WHERE key = $1 AND is_active = true AND (expires_at IS NULL OR expires_at > NOW()))`
		if err := db.QueryRowContext(ctx, query, key).Scan(&isValid); err != nil {
			return false, fmt.Errorf("%w: validate api key: %v", domain.ErrStore, err)
		}
		return isValid, nil
	}
	return r
}

func newCachedKeys(logger *slog.Logger, cacheTTL time.Duration, m *metrics.Metrics) *APIKeyRepository {
	return &APIKeyRepository{
		logger:   logger.With("component", "apikey_repository"),
		metrics:  m,
		cacheTTL: cacheTTL,
		now:      time.Now,
		cache:    make(map[string]cacheEntry),
	}
}

// IsValid checks the cache first and falls back to the database when the
// key is missing or its entry has expired. Lookup errors are not cached.
func (r *APIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if valid, ok := r.cached(key); ok {
		r.metrics.ObserveAPIKeyCache(true)
		return valid, nil
	}
	r.metrics.ObserveAPIKeyCache(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have populated the entry while we waited.
	if entry, found := r.cache[key]; found && r.now().Before(entry.expiresAt) {
		return entry.isValid, nil
	}

	isValid, err := r.lookup(ctx, key)
	if err != nil {
		r.logger.Error("failed to validate API key", "error", err)
		return false, err
	}

	r.cache[key] = cacheEntry{isValid: isValid, expiresAt: r.now().Add(r.cacheTTL)}
	return isValid, nil
}

func (r *APIKeyRepository) cached(key string) (bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, found := r.cache[key]
	if !found || !r.now().Before(entry.expiresAt) {
		return false, false
	}
	return entry.isValid, true
}
