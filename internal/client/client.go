// Package client talks to the WorkSync HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/V4T54L/worksync/internal/adapter/api/handler"
	"github.com/V4T54L/worksync/internal/adapter/api/middleware"
	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/usecase"
)

// StatusError is returned when the server answers with an unexpected status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// Client is a thin JSON client for the public and admin listeners.
type Client struct {
	baseURL  string
	adminURL string
	apiKey   string
	http     *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithAdminURL sets the admin listener base URL.
func WithAdminURL(u string) Option {
	return func(c *Client) { c.adminURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default client with its 2 minute timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitEvents posts events of one type as NDJSON, or as a single JSON
// object when there is exactly one. Per-event outcomes are in the response
// even when the status is an error status.
func (c *Client) SubmitEvents(ctx context.Context, eventType domain.EventType, events []domain.Event) (handler.IngestResponse, int, error) {
	var (
		body        bytes.Buffer
		contentType = "application/json"
	)
	enc := json.NewEncoder(&body)
	if len(events) != 1 {
		contentType = "application/x-ndjson"
	}
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return handler.IngestResponse{}, 0, fmt.Errorf("failed to encode event: %w", err)
		}
	}

	var out handler.IngestResponse
	code, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/events/"+eventType.Slug(), contentType, &body, &out,
		http.StatusCreated, http.StatusAccepted, http.StatusBadRequest, http.StatusServiceUnavailable)
	return out, code, err
}

// Query asks the chatbot endpoint. topK of zero uses the server default.
func (c *Client) Query(ctx context.Context, query string, topK int) (domain.QueryResult, error) {
	payload, err := json.Marshal(handler.QueryRequest{Query: query, TopK: topK})
	if err != nil {
		return domain.QueryResult{}, err
	}
	var out domain.QueryResult
	_, err = c.do(ctx, http.MethodPost, c.baseURL+"/api/chatbot/query", "application/json", bytes.NewReader(payload), &out, http.StatusOK)
	return out, err
}

// GenerateSummaries triggers the summary pipeline for the last window.
func (c *Client) GenerateSummaries(ctx context.Context) (usecase.PipelineReport, error) {
	var out usecase.PipelineReport
	code, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/summary/generate", "", nil, &out, http.StatusOK, http.StatusMultiStatus)
	if err == nil && code == http.StatusMultiStatus {
		err = fmt.Errorf("%d of %d summaries failed", out.Failed, out.Employees)
	}
	return out, err
}

// Queues reads the tier queue depths from the admin listener.
func (c *Client) Queues(ctx context.Context) (handler.QueuesResponse, error) {
	var out handler.QueuesResponse
	if c.adminURL == "" {
		return out, fmt.Errorf("admin URL is not configured")
	}
	_, err := c.do(ctx, http.MethodGet, c.adminURL+"/admin/queues", "", nil, &out, http.StatusOK)
	return out, err
}

func (c *Client) do(ctx context.Context, method, url, contentType string, body io.Reader, out any, accept ...int) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	for _, code := range accept {
		if resp.StatusCode != code {
			continue
		}
		// Plain-text errors from http.Error carry no JSON body.
		if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
			return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: string(raw)}
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
		return resp.StatusCode, nil
	}
	return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: string(raw)}
}
