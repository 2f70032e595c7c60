package api

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/worksync/internal/adapter/api/handler"
	"github.com/V4T54L/worksync/internal/adapter/api/middleware"
	"github.com/V4T54L/worksync/internal/adapter/metrics"
	"github.com/V4T54L/worksync/internal/domain"
)

// Services are the use cases the public API exposes.
type Services struct {
	Events   handler.EventSubmitter
	Queries  handler.QueryProcessor
	Summary  handler.SummaryRunner
	Activity *handler.ActivityBroker
}

// NewRouter creates and configures the public HTTP router. Every /api route
// requires an API key.
func NewRouter(
	logger *slog.Logger,
	apiKeyRepo domain.APIKeyRepository,
	svc Services,
	maxEventSize int64,
	m *metrics.Metrics,
) http.Handler {
	mux := http.NewServeMux()

	var activity handler.ActivityReporter
	if svc.Activity != nil {
		activity = svc.Activity
	}
	ingestHandler := handler.NewIngestHandler(svc.Events, logger, maxEventSize, m, activity)
	queryHandler := handler.NewQueryHandler(svc.Queries, logger, maxEventSize)
	summaryHandler := handler.NewSummaryHandler(svc.Summary, logger)

	authMiddleware := middleware.Auth(apiKeyRepo, logger)

	mux.Handle("POST /api/events/{type}", authMiddleware(ingestHandler))
	mux.Handle("POST /api/chatbot/query", authMiddleware(queryHandler))
	mux.Handle("POST /api/summary/generate", authMiddleware(summaryHandler))
	if svc.Activity != nil {
		mux.Handle("GET /api/events/stream", middleware.Auth(apiKeyRepo, logger, middleware.WithQueryKey())(svc.Activity))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return middleware.Logging(logger)(mux)
}
