// Package app wires the adapters and use cases shared by the binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/worksync/internal/adapter/gateway"
	"github.com/V4T54L/worksync/internal/adapter/metrics"
	"github.com/V4T54L/worksync/internal/adapter/pii"
	"github.com/V4T54L/worksync/internal/adapter/prompt"
	"github.com/V4T54L/worksync/internal/adapter/repository/memory"
	"github.com/V4T54L/worksync/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/worksync/internal/adapter/repository/redis"
	"github.com/V4T54L/worksync/internal/adapter/repository/wal"
	"github.com/V4T54L/worksync/internal/adapter/schedule"
	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/pkg/config"
	"github.com/V4T54L/worksync/internal/pkg/retry"
	"github.com/V4T54L/worksync/internal/usecase"
)

const (
	backendPostgres = "postgres"
	backendRedis    = "redis"
	backendMemory   = "memory"
)

// deadLetters is a sink that can also report its size.
type deadLetters interface {
	domain.DeadLetterSink
	domain.DeadLetterCounter
}

// App holds every wired component. Close releases the connections.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	APIKeys   domain.APIKeyRepository
	QueueRepo *redisrepo.QueueRepository // nil unless the queue backend is redis
	Prompts   *prompt.Loader

	Ingest     *usecase.IngestEventUseCase
	Drainer    *usecase.TierDrainer
	Aggregator *usecase.AggregateEventsUseCase
	Index      *usecase.VectorIndexUseCase
	Answer     *usecase.AnswerQueryUseCase
	Pipeline   *usecase.SummaryPipelineUseCase
	Admin      *usecase.AdminQueuesUseCase

	closers []func() error
}

// New connects the configured backends and builds the use cases.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	policy := retry.Policy{
		Attempts:     cfg.RetryAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		Multiplier:   cfg.RetryMultiplier,
	}

	st, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	queues, dead, err := a.openQueues(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	gw, err := a.openGateway()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Prompts, err = prompt.NewLoader(cfg.PromptsFile, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	redactor := pii.NewRedactor(cfg.PIIFields(), logger)
	a.Ingest = usecase.NewIngestEventUseCase(st.events, queues, redactor, policy, a.Metrics, logger)
	a.Drainer = usecase.NewTierDrainer(a.Ingest, dead, usecase.DrainerConfig{
		HighInterval:    cfg.HighDrainInterval,
		NormalInterval:  cfg.NormalDrainInterval,
		MaxRedeliveries: cfg.MaxRedeliveries,
		DrainOnShutdown: cfg.DrainOnShutdown,
		ShutdownTimeout: cfg.ShutdownDrainTimeout,
	}, a.Metrics, logger)
	a.Admin = usecase.NewAdminQueuesUseCase(queues, dead, a.Metrics)

	a.Aggregator = usecase.NewAggregateEventsUseCase(st.events, st.aggregations, policy, a.Metrics, logger)
	summarizer := usecase.NewSummarizeBundleUseCase(gw, a.Prompts, policy, a.Metrics, logger)
	a.Index = usecase.NewVectorIndexUseCase(gw, st.vectors, policy, a.Metrics, logger)
	a.Pipeline = usecase.NewSummaryPipelineUseCase(a.Aggregator, summarizer, a.Index, cfg.SummaryEnabled, cfg.SummaryWindow, logger)

	analyzer := usecase.NewAnalyzeQueryUseCase(gw, a.Prompts, policy, logger)
	a.Answer = usecase.NewAnswerQueryUseCase(analyzer, a.Index, gw, a.Prompts, policy, usecase.AnswerConfig{
		DefaultTopK:         cfg.DefaultTopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
		NoDataMessage:       cfg.NoDataMessage,
	}, a.Metrics, logger)

	return a, nil
}

type stores struct {
	events       domain.EventStore
	aggregations domain.AggregationStore
	vectors      domain.VectorStore
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	cfg := a.Config
	switch cfg.StoreBackend {
	case backendMemory:
		a.Logger.Warn("using in-memory store, data is lost on exit")
		s := memory.NewStore()
		a.APIKeys = memory.NewStaticKeys(cfg.StaticAPIKeys)
		return stores{events: s, aggregations: s, vectors: s}, nil
	case backendPostgres:
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return stores{}, fmt.Errorf("failed to open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return stores{}, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if cfg.RunMigrations {
			if err := postgres.Migrate(db, a.Logger); err != nil {
				return stores{}, err
			}
		}
		a.APIKeys = postgres.NewAPIKeyRepository(db, a.Logger, cfg.APIKeyCacheTTL, a.Metrics)
		if len(cfg.StaticAPIKeys) > 0 {
			a.APIKeys = anyKey{memory.NewStaticKeys(cfg.StaticAPIKeys), a.APIKeys}
		}
		return stores{
			events:       postgres.NewEventRepository(db, a.Logger),
			aggregations: postgres.NewAggregationRepository(db, a.Logger),
			vectors:      postgres.NewVectorRepository(db, a.Logger),
		}, nil
	}
	return stores{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func (a *App) openQueues(ctx context.Context) (map[domain.QueueKey]domain.TierQueue, deadLetters, error) {
	cfg := a.Config
	switch cfg.QueueBackend {
	case backendMemory:
		return memory.NewQueueSet(), &memory.DeadLetters{}, nil
	case backendRedis:
		opts, err := redisOptions(cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client.Close)

		walLog, err := wal.Open(cfg.WALPath, cfg.WALSegmentSize, cfg.WALMaxDiskSize, a.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open WAL: %w", err)
		}
		a.closers = append(a.closers, walLog.Close)

		a.QueueRepo = redisrepo.NewQueueRepository(ctx, client, walLog, a.Metrics, a.Logger)
		if a.QueueRepo.Available() {
			if err := a.QueueRepo.ReplayWAL(ctx); err != nil {
				a.Logger.Error("failed to replay WAL on startup", "error", err)
			}
		} else {
			a.Logger.Warn("could not connect to redis, will proceed in WAL-only mode")
		}
		return a.QueueRepo.QueueSet(), a.QueueRepo, nil
	}
	return nil, nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
}

// openGateway picks the completer and embedder. Remote calls go through the
// rate limiter; the hash embedder runs locally.
func (a *App) openGateway() (domain.Gateway, error) {
	cfg := a.Config
	var remote domain.Gateway = gateway.Unconfigured{}
	if strings.TrimSpace(cfg.LLMAPIKey) != "" {
		g, err := gateway.NewOpenAIGateway(gateway.OpenAIConfig{
			BaseURL:        cfg.LLMBaseURL,
			APIKey:         cfg.LLMAPIKey,
			Model:          cfg.LLMModel,
			EmbeddingModel: cfg.EmbeddingModel,
			Dimensions:     cfg.EmbeddingDim,
			Temperature:    cfg.LLMTemperature,
			MaxTokens:      cfg.LLMMaxTokens,
			Timeout:        cfg.LLMTimeout,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		remote = g
	} else {
		a.Logger.Warn("LLM_API_KEY is not set, summaries and answers use templates")
	}
	limited := gateway.NewRateLimited(remote, cfg.LLMRateLimit, cfg.LLMRateBurst, a.Metrics)

	switch cfg.EmbeddingProvider {
	case "hash":
		return gateway.Combined{Completer: limited, Embedder: gateway.NewHashEmbedder(cfg.EmbeddingDim)}, nil
	case "api":
		return limited, nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
}

// StartBackground launches the Redis health check. It returns immediately.
func (a *App) StartBackground(ctx context.Context) {
	if a.QueueRepo != nil {
		go a.QueueRepo.StartHealthCheck(ctx, a.Config.RedisHealthPeriod)
	}
}

// Scheduler registers the aggregation and summary jobs.
func (a *App) Scheduler() (*schedule.CronRunner, error) {
	runner := schedule.NewCronRunner(time.Local, a.Logger)
	window := a.Config.SummaryWindow
	jobs := []schedule.Job{
		{
			Name: "aggregation",
			Spec: a.Config.AggregationCron,
			Run: func(ctx context.Context) error {
				return a.Aggregator.MaterializePrevious(ctx, window)
			},
		},
		{
			Name: "summary_pipeline",
			Spec: a.Config.SummaryCron,
			Run:  a.Pipeline.RunScheduled,
		},
	}
	for _, job := range jobs {
		if err := runner.Add(job); err != nil {
			return nil, err
		}
	}
	return runner, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// redisOptions accepts either a redis:// URL or a bare host:port.
func redisOptions(addr string) (*redis.Options, error) {
	if strings.Contains(addr, "://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: addr}, nil
}

// anyKey accepts a key valid in any of its repositories, checked in order.
type anyKey []domain.APIKeyRepository

func (k anyKey) IsValid(ctx context.Context, key string) (bool, error) {
	for _, repo := range k {
		ok, err := repo.IsValid(ctx, key)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
