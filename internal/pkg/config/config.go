package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPServerAddr string `env:"HTTP_SERVER_ADDR" envDefault:":8080"`
	MetricsAddr    string `env:"METRICS_ADDR" envDefault:":9091"`
	MaxEventSize   int64  `env:"MAX_EVENT_SIZE_BYTES" envDefault:"1048576"` // 1MB

	// Backends: "postgres" or "memory" for the store, "redis" or "memory" for the queues.
	StoreBackend  string `env:"STORE_BACKEND" envDefault:"postgres"`
	QueueBackend  string `env:"QUEUE_BACKEND" envDefault:"redis"`
	PostgresURL   string `env:"POSTGRES_URL"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	WALPath           string        `env:"WAL_PATH" envDefault:"./wal"`
	WALSegmentSize    int64         `env:"WAL_SEGMENT_SIZE_BYTES" envDefault:"104857600"`  // 100MB
	WALMaxDiskSize    int64         `env:"WAL_MAX_DISK_SIZE_BYTES" envDefault:"1073741824"` // 1GB
	RedisHealthPeriod time.Duration `env:"REDIS_HEALTH_INTERVAL" envDefault:"5s"`

	HighDrainInterval    time.Duration `env:"HIGH_DRAIN_INTERVAL" envDefault:"5m"`
	NormalDrainInterval  time.Duration `env:"NORMAL_DRAIN_INTERVAL" envDefault:"30m"`
	DrainOnShutdown      bool          `env:"DRAIN_ON_SHUTDOWN" envDefault:"true"`
	ShutdownDrainTimeout time.Duration `env:"SHUTDOWN_DRAIN_TIMEOUT" envDefault:"20s"`
	MaxRedeliveries      int           `env:"MAX_REDELIVERIES" envDefault:"3"`

	RetryAttempts     int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryInitialDelay time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"1s"`
	RetryMultiplier   float64       `env:"RETRY_MULTIPLIER" envDefault:"2"`

	AggregationCron string        `env:"AGGREGATION_CRON" envDefault:"0 * * * *"`
	SummaryCron     string        `env:"SUMMARY_CRON" envDefault:"5 * * * *"`
	SummaryEnabled  bool          `env:"SUMMARY_ENABLED" envDefault:"true"`
	SummaryWindow   time.Duration `env:"SUMMARY_WINDOW" envDefault:"1h"`

	LLMBaseURL        string        `env:"LLM_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	LLMAPIKey         string        `env:"LLM_API_KEY"`
	LLMModel          string        `env:"LLM_MODEL" envDefault:"openai/gpt-4o-mini"`
	LLMTemperature    float64       `env:"LLM_TEMPERATURE" envDefault:"0.3"`
	LLMMaxTokens      int           `env:"LLM_MAX_TOKENS" envDefault:"1024"`
	LLMTimeout        time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	LLMRateLimit      float64       `env:"LLM_RATE_LIMIT" envDefault:"5"` // requests per second
	LLMRateBurst      int           `env:"LLM_RATE_BURST" envDefault:"5"`
	EmbeddingProvider string        `env:"EMBEDDING_PROVIDER" envDefault:"hash"` // hash or api
	EmbeddingModel    string        `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDim      int           `env:"EMBEDDING_DIMENSION" envDefault:"1536"`

	SimilarityThreshold float64 `env:"SIMILARITY_THRESHOLD" envDefault:"0.2"`
	DefaultTopK         int     `env:"DEFAULT_TOP_K" envDefault:"10"`
	NoDataMessage       string  `env:"NO_DATA_MESSAGE" envDefault:"No relevant activity data was found for this query."`
	PromptsFile         string  `env:"PROMPTS_FILE"`

	APIKeyCacheTTL     time.Duration `env:"API_KEY_CACHE_TTL" envDefault:"5m"`
	StaticAPIKeys      []string      `env:"STATIC_API_KEYS" envSeparator:","`
	PIIRedactionFields string        `env:"PII_REDACTION_FIELDS" envDefault:"email,password,credit_card,ssn"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"worksync-consumer"`
	KafkaTopics  []string `env:"KAFKA_TOPICS" envSeparator:"," envDefault:"app-usage-events,security-events,alert-events"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PIIFields splits PIIRedactionFields into trimmed, non-empty names.
func (c *Config) PIIFields() []string {
	var out []string
	for _, f := range strings.Split(c.PIIRedactionFields, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
