package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/pkg/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreBackend:        "memory",
		QueueBackend:        "memory",
		StaticAPIKeys:       []string{"dev-key"},
		RetryAttempts:       1,
		MaxRedeliveries:     3,
		AggregationCron:     "0 * * * *",
		SummaryCron:         "5 * * * *",
		SummaryEnabled:      true,
		SummaryWindow:       time.Hour,
		LLMModel:            "test-model",
		EmbeddingProvider:   "hash",
		EmbeddingDim:        256,
		SimilarityThreshold: 0.2,
		DefaultTopK:         10,
		NoDataMessage:       "nothing found",
		PIIRedactionFields:  "email",
	}
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNew_MemoryEndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), discardLogger())
	require.NoError(t, err)
	defer a.Close()

	ok, err := a.APIKeys.IsValid(ctx, "dev-key")
	require.NoError(t, err)
	assert.True(t, ok)

	ts := time.Now().Add(-10 * time.Minute)
	critical := domain.NewAppUsageEvent(
		domain.Header{EmployeeID: "EMP001", EmployeeName: "Ada", Priority: domain.PriorityCritical, Timestamp: ts},
		domain.AppUsage{AppName: "Chrome", DurationSeconds: 3600},
	)
	require.NoError(t, a.Ingest.Submit(ctx, &critical))

	queued := domain.NewSecurityEvent(
		domain.Header{EmployeeID: "EMP001", Priority: domain.PriorityHigh, Timestamp: ts},
		domain.Security{ThreatType: "PHISHING", URL: "http://bad.example"},
	)
	require.NoError(t, a.Ingest.Submit(ctx, &queued))

	stats, err := a.Admin.QueueStats(ctx)
	require.NoError(t, err)
	var depth int64
	for _, s := range stats {
		depth += s.Depth
	}
	assert.Equal(t, int64(1), depth)

	drained, err := a.Drainer.DrainTier(ctx, domain.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, 1, drained)

	report, err := a.Pipeline.RunLast(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Employees)
	assert.Equal(t, 1, report.Stored)

	// Without an API key the stored summary is the template one.
	matches, err := a.Index.SimilaritySearch(ctx, "Chrome application usage security phishing report for Ada", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "EMP001", matches[0].EmployeeID)

	result := a.Answer.ProcessQuery(ctx, "", 0)
	assert.False(t, result.Success)
}

func TestNew_RejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "cassandra"
	_, err := New(context.Background(), cfg, discardLogger())
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.EmbeddingProvider = "magic"
	_, err = New(context.Background(), cfg, discardLogger())
	assert.Error(t, err)
}

func TestScheduler(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), discardLogger())
	require.NoError(t, err)
	defer a.Close()

	runner, err := a.Scheduler()
	require.NoError(t, err)
	assert.Equal(t, 2, runner.Len())

	a.Config.SummaryCron = "not a cron spec"
	_, err = a.Scheduler()
	assert.Error(t, err)
}

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	opts, err = redisOptions("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "secret", opts.Password)

	_, err = redisOptions("redis://bad url")
	assert.Error(t, err)
}
