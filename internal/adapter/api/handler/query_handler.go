package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/V4T54L/worksync/internal/domain"
)

// QueryProcessor answers a natural language question.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, query string, topK int) domain.QueryResult
}

// QueryRequest is the body of POST /api/chatbot/query.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topK,omitempty"`
}

// QueryHandler handles chatbot queries.
type QueryHandler struct {
	processor QueryProcessor
	logger    *slog.Logger
	maxBody   int64
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(processor QueryProcessor, logger *slog.Logger, maxBody int64) *QueryHandler {
	return &QueryHandler{processor: processor, logger: logger.With("component", "query_handler"), maxBody: maxBody}
}

// ServeHTTP always answers 200 with a QueryResult once the body decodes;
// failures are reported in the result.
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, maxBytesErr.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad Request: invalid request body", http.StatusBadRequest)
		return
	}
	if req.TopK < 0 {
		http.Error(w, "Bad Request: topK must not be negative", http.StatusBadRequest)
		return
	}

	result := h.processor.ProcessQuery(r.Context(), req.Query, req.TopK)
	if result.Matches == nil {
		result.Matches = []domain.SummaryMatch{}
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}
