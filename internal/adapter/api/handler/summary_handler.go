package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/V4T54L/worksync/internal/usecase"
)

// SummaryRunner runs the summary pipeline over the most recent window.
type SummaryRunner interface {
	RunLast(ctx context.Context) (usecase.PipelineReport, error)
}

// SummaryHandler handles POST /api/summary/generate.
type SummaryHandler struct {
	runner SummaryRunner
	logger *slog.Logger
}

func NewSummaryHandler(runner SummaryRunner, logger *slog.Logger) *SummaryHandler {
	return &SummaryHandler{runner: runner, logger: logger.With("component", "summary_handler")}
}

// ServeHTTP runs the pipeline synchronously. A partial failure still
// returns the report, with status 207.
func (h *SummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.RunLast(r.Context())
	if err != nil {
		h.logger.Error("summary pipeline failed", "error", err, "stored", report.Stored, "failed", report.Failed)
		if report.Employees == 0 {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, h.logger, http.StatusMultiStatus, report)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, report)
}
