package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/V4T54L/worksync/internal/adapter/metrics"
	"github.com/V4T54L/worksync/internal/domain"
)

// EventSubmitter admits one event.
type EventSubmitter interface {
	Submit(ctx context.Context, event *domain.Event) error
}

// ActivityReporter receives admitted event counts for the live activity stream.
type ActivityReporter interface {
	ReportEvent(priority domain.Priority)
}

// IngestResult is the outcome for one submitted event.
type IngestResult struct {
	EventID string `json:"eventId,omitempty"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// IngestResponse is returned for every ingest request.
type IngestResponse struct {
	Accepted int            `json:"accepted"`
	Rejected int            `json:"rejected"`
	Failed   int            `json:"failed"`
	Results  []IngestResult `json:"results"`
}

// IngestHandler handles POST /api/events/{type}.
type IngestHandler struct {
	submitter    EventSubmitter
	logger       *slog.Logger
	maxEventSize int64
	metrics      *metrics.Metrics
	activity     ActivityReporter
}

// NewIngestHandler creates a new IngestHandler. activity may be nil.
func NewIngestHandler(submitter EventSubmitter, logger *slog.Logger, maxEventSize int64, m *metrics.Metrics, activity ActivityReporter) *IngestHandler {
	return &IngestHandler{
		submitter:    submitter,
		logger:       logger.With("component", "ingest_handler"),
		maxEventSize: maxEventSize,
		metrics:      m,
		activity:     activity,
	}
}

// ServeHTTP decodes one JSON event or an NDJSON stream of events of the type
// named in the path. CRITICAL events answer 201 once stored, others 202.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	eventType, ok := domain.ParseEventTypeSlug(r.PathValue("type"))
	if !ok {
		http.Error(w, "Not Found: unknown event type", http.StatusNotFound)
		return
	}

	// Enforce max body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxEventSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		events []domain.Event
		err    error
	)
	switch mediaType {
	case "application/json":
		events, err = h.decodeSingleJSON(r.Body)
	case "application/x-ndjson":
		events, err = h.decodeNDJSON(r.Body)
	default:
		http.Error(w, fmt.Sprintf("Unsupported Media Type: %s", mediaType), http.StatusUnsupportedMediaType)
		return
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, maxBytesErr.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Warn("failed to decode ingest request", "error", err)
		http.Error(w, fmt.Sprintf("Bad Request: %v", err), http.StatusBadRequest)
		return
	}

	resp := IngestResponse{Results: make([]IngestResult, 0, len(events))}
	allCritical := true
	for i := range events {
		event := &events[i]
		if !event.AssignType(eventType) {
			resp.Rejected++
			resp.Results = append(resp.Results, IngestResult{
				Status: "rejected",
				Error:  fmt.Sprintf("eventType %q does not match path %q", event.EventType, eventType.Slug()),
			})
			continue
		}
		if event.Priority != domain.PriorityCritical {
			allCritical = false
		}
		resp.Results = append(resp.Results, h.submit(r.Context(), event, &resp))
	}

	writeJSON(w, h.logger, statusFor(resp, allCritical), resp)
}

func (h *IngestHandler) submit(ctx context.Context, event *domain.Event, resp *IngestResponse) IngestResult {
	err := h.submitter.Submit(ctx, event)
	switch {
	case err == nil:
		resp.Accepted++
		if h.activity != nil {
			h.activity.ReportEvent(event.Priority)
		}
		status := "queued"
		if event.Priority == domain.PriorityCritical {
			status = "persisted"
		}
		return IngestResult{EventID: event.ID, Status: status}
	case errors.Is(err, domain.ErrValidation):
		resp.Rejected++
		return IngestResult{Status: "rejected", Error: err.Error()}
	default:
		h.logger.Error("failed to ingest event", "error", err, "event_id", event.ID, "priority", event.Priority)
		resp.Failed++
		return IngestResult{EventID: event.ID, Status: "failed", Error: "event could not be stored"}
	}
}

// statusFor picks the response code: any storage failure is 503, any
// rejection 400, all-CRITICAL 201 and otherwise 202.
func statusFor(resp IngestResponse, allCritical bool) int {
	switch {
	case resp.Failed > 0:
		return http.StatusServiceUnavailable
	case resp.Rejected > 0:
		return http.StatusBadRequest
	case allCritical:
		return http.StatusCreated
	}
	return http.StatusAccepted
}

func (h *IngestHandler) decodeSingleJSON(body io.Reader) ([]domain.Event, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	h.metrics.ObserveBytes(len(raw))

	var event domain.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return []domain.Event{event}, nil
}

func (h *IngestHandler) decodeNDJSON(body io.Reader) ([]domain.Event, error) {
	var events []domain.Event
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), int(h.maxEventSize))
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		h.metrics.ObserveBytes(len(raw))

		var event domain.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("failed to decode NDJSON line %d: %w", line, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, errors.New("no events in request body")
	}
	return events, nil
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
