package gateway

import (
	"context"
	"fmt"

	"github.com/V4T54L/worksync/internal/domain"
)

// Unconfigured stands in when no API key is set. Every call fails with
// ErrGateway, so callers take their template fallbacks.
type Unconfigured struct{}

func (Unconfigured) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	return "", fmt.Errorf("%w: no API key configured", domain.ErrGateway)
}

func (Unconfigured) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("%w: no API key configured", domain.ErrGateway)
}
