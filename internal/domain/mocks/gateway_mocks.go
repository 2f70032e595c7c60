package mocks

import (
	"context"
	"sync"

	"github.com/V4T54L/worksync/internal/domain"
)

// MockGateway is a scripted domain.Gateway. CompleteFunc and EmbedFunc take
// precedence over the fixed replies.
type MockGateway struct {
	mu           sync.Mutex
	Reply        string
	CompleteErr  error
	Embedding    []float32
	EmbedErr     error
	CompleteFunc func(req domain.CompletionRequest) (string, error)
	EmbedFunc    func(text string) ([]float32, error)

	Requests   []domain.CompletionRequest
	EmbedCalls int
}

func (m *MockGateway) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(req)
	}
	if m.CompleteErr != nil {
		return "", m.CompleteErr
	}
	return m.Reply, nil
}

func (m *MockGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.EmbedCalls++
	m.mu.Unlock()
	if m.EmbedFunc != nil {
		return m.EmbedFunc(text)
	}
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	return m.Embedding, nil
}

// LastRequest returns the most recent completion request.
func (m *MockGateway) LastRequest() (domain.CompletionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return domain.CompletionRequest{}, false
	}
	return m.Requests[len(m.Requests)-1], true
}
