package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/V4T54L/worksync/internal/domain"
)

// MockSubmitter is a mock implementation of the event submitter.
type MockSubmitter struct {
	mu         sync.Mutex
	SubmitFunc func(ctx context.Context, event *domain.Event) error
	Submitted  []domain.Event
}

func (m *MockSubmitter) Submit(ctx context.Context, event *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := event.Validate(); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = fmt.Sprintf("evt-%d", len(m.Submitted)+1)
	}
	if m.SubmitFunc != nil {
		if err := m.SubmitFunc(ctx, event); err != nil {
			return err
		}
	}
	m.Submitted = append(m.Submitted, *event)
	return nil
}

type countingReporter struct {
	mu     sync.Mutex
	counts map[domain.Priority]int
}

func (c *countingReporter) ReportEvent(p domain.Priority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[domain.Priority]int)
	}
	c.counts[p]++
}

func TestIngestHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	const (
		critical = `{"employeeId":"EMP001","priority":"CRITICAL","appName":"Chrome","durationSeconds":60}`
		high     = `{"employeeId":"EMP001","priority":"HIGH","appName":"Slack","durationSeconds":30}`
		normal   = `{"employeeId":"EMP002","priority":"NORMAL","appName":"Excel","durationSeconds":10}`
	)
	storeDown := errors.New("store down")

	tests := []struct {
		name           string
		method         string
		eventType      string
		contentType    string
		body           string
		submitErr      error
		maxSize        int64
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Critical single JSON is stored",
			method:         http.MethodPost,
			eventType:      "app-usage",
			contentType:    "application/json",
			body:           critical,
			expectedStatus: http.StatusCreated,
			expectedBody:   `"status":"persisted"`,
		},
		{
			name:           "High single JSON is queued",
			method:         http.MethodPost,
			eventType:      "app-usage",
			contentType:    "application/json; charset=utf-8",
			body:           high,
			expectedStatus: http.StatusAccepted,
			expectedBody:   `"status":"queued"`,
		},
		{
			name:           "Valid NDJSON",
			method:         http.MethodPost,
			eventType:      "app-usage",
			contentType:    "application/x-ndjson",
			body:           high + "\n\n" + normal + "\n",
			expectedStatus: http.StatusAccepted,
			expectedBody:   `"accepted":2`,
		},
		{
			name:           "All critical NDJSON",
			method:         http.MethodPost,
			eventType:      "app-usage",
			contentType:    "application/x-ndjson",
			body:           critical + "\n" + critical,
			expectedStatus: http.StatusCreated,
			expectedBody:   `"accepted":2`,
		},
		{
			name:           "Invalid Method",
			method:         http.MethodGet,
			eventType:      "app-usage",
			contentType:    "application/json",
			body:           `{}`,
			expectedStatus: http.StatusMethodNotAllowed,
			expectedBody:   "Method Not Allowed\n",
		},
		{
			name:           "Unknown event type",
			method:         http.MethodPost,
			eventType:      "keystrokes",
			contentType:    "application/json",
			body:           critical,
			expectedStatus: http.StatusNotFound,
			expectedBody:   "Not Found: unknown event type\n",
		},
		{
			name:           "Unsupported Content-Type",
			method:         http.MethodPost,
			eventType:      "app-usage",
			contentType:    "text/plain",
			body:           `hello`,
			expectedStatus: http.StatusUnsupportedMediaType,
			expectedBody:   "Unsupported Media Type: text/plain\n",
		},
		{
			name:           "Bad JSON",
			method:         http.MethodPost,
			eventType:      "app-usage",
			contentType:    "application/json",
			body:           `{"employeeId": "EMP001"`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Bad Request: failed to decode JSON",
		},
		{
			name:           "Bad NDJSON line",
			method:         http.MethodPost,
			eventType:      "app-usage",
			contentType:    "application/x-ndjson",
			body:           high + "\n" + `{"employeeId": "bad`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Bad Request: failed to decode NDJSON line 2",
		},
		{
			name:           "Empty NDJSON",
			method:         http.MethodPost,
			eventType:      "app-usage",
			contentType:    "application/x-ndjson",
			body:           "\n\n",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "no events in request body",
		},
		{
			name:           "Validation failure",
			method:         http.MethodPost,
			eventType:      "security",
			contentType:    "application/json",
			body:           `{"employeeId":"EMP001","priority":"HIGH"}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "invalid threatType",
		},
		{
			name:           "Type mismatch with path",
			method:         http.MethodPost,
			eventType:      "alert",
			contentType:    "application/json",
			body:           `{"employeeId":"EMP001","priority":"HIGH","eventType":"SECURITY","threatType":"PHISHING"}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `does not match path`,
		},
		{
			name:           "Storage failure",
			method:         http.MethodPost,
			eventType:      "app-usage",
			contentType:    "application/json",
			body:           critical,
			submitErr:      storeDown,
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `"status":"failed"`,
		},
		{
			name:           "Payload Too Large",
			method:         http.MethodPost,
			eventType:      "app-usage",
			contentType:    "application/json",
			body:           critical,
			maxSize:        50,
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedBody:   "http: request body too large\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submitter := &MockSubmitter{
				SubmitFunc: func(ctx context.Context, event *domain.Event) error {
					return tt.submitErr
				},
			}
			maxSize := int64(1024)
			if tt.maxSize > 0 {
				maxSize = tt.maxSize
			}

			handler := NewIngestHandler(submitter, logger, maxSize, nil, nil)

			req := httptest.NewRequest(tt.method, "/api/events/"+tt.eventType, bytes.NewBufferString(tt.body))
			req.SetPathValue("type", tt.eventType)
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v (body %q)", status, tt.expectedStatus, rr.Body.String())
			}

			if body := rr.Body.String(); !strings.Contains(body, tt.expectedBody) {
				t.Errorf("handler returned unexpected body: got %q want it to contain %q", body, tt.expectedBody)
			}
		})
	}
}

func TestIngestHandler_TagsUntaggedEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	submitter := &MockSubmitter{}
	reporter := &countingReporter{}
	handler := NewIngestHandler(submitter, logger, 1024, nil, reporter)

	body := `{"employeeId":"EMP003","priority":"NORMAL","url":"http://bad.example","threatType":"MALWARE"}`
	req := httptest.NewRequest(http.MethodPost, "/api/events/security", strings.NewReader(body))
	req.SetPathValue("type", "security")
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusAccepted)
	}
	if len(submitter.Submitted) != 1 {
		t.Fatalf("got %d submitted events, want 1", len(submitter.Submitted))
	}
	got := submitter.Submitted[0]
	if got.EventType != domain.EventTypeSecurity || got.Security == nil || got.ThreatType != "MALWARE" {
		t.Errorf("event was not tagged from the path: %+v", got)
	}
	if reporter.counts[domain.PriorityNormal] != 1 {
		t.Errorf("activity reporter saw %v, want one NORMAL event", reporter.counts)
	}
}

func TestIngestHandler_PartialBatchFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	submitter := &MockSubmitter{
		SubmitFunc: func(ctx context.Context, event *domain.Event) error {
			if event.EmployeeID == "EMP002" {
				return fmt.Errorf("save: %w", domain.ErrStore)
			}
			return nil
		},
	}
	handler := NewIngestHandler(submitter, logger, 4096, nil, nil)

	body := `{"employeeId":"EMP001","priority":"CRITICAL","alertType":"DISK_FULL"}` + "\n" +
		`{"employeeId":"EMP002","priority":"CRITICAL","alertType":"DISK_FULL"}` + "\n" +
		`{"priority":"CRITICAL","alertType":"DISK_FULL"}`
	req := httptest.NewRequest(http.MethodPost, "/api/events/alert", strings.NewReader(body))
	req.SetPathValue("type", "alert")
	req.Header.Set("Content-Type", "application/x-ndjson")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	for _, want := range []string{`"accepted":1`, `"rejected":1`, `"failed":1`} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("body %q does not contain %q", rr.Body.String(), want)
		}
	}
}
