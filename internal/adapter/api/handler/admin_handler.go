package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/V4T54L/worksync/internal/domain"
)

// QueueInspector reports tier queue and dead-letter depths.
type QueueInspector interface {
	QueueStats(ctx context.Context) ([]domain.QueueStats, error)
	DeadLetterStats(ctx context.Context) (domain.DeadLetterStats, error)
}

// QueuesResponse is the body of GET /admin/queues.
type QueuesResponse struct {
	Queues     []domain.QueueStats    `json:"queues"`
	DeadLetter domain.DeadLetterStats `json:"deadLetter"`
}

// AdminHandler handles HTTP requests for queue administration.
type AdminHandler struct {
	queues QueueInspector
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(queues QueueInspector, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{queues: queues, logger: logger.With("component", "admin_handler")}
}

// HealthCheck is a simple health check endpoint.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// GetQueues lists the depth of every tier queue and the dead-letter sink.
// GET /admin/queues
func (h *AdminHandler) GetQueues(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queues.QueueStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get queue stats", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	dead, err := h.queues.DeadLetterStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get dead-letter stats", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, QueuesResponse{Queues: stats, DeadLetter: dead})
}
