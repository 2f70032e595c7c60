package gateway

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/V4T54L/worksync/internal/adapter/metrics"
	"github.com/V4T54L/worksync/internal/domain"
)

// RateLimited throttles calls to an upstream gateway and records call
// metrics. Waiting respects ctx.
type RateLimited struct {
	next    domain.Gateway
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// NewRateLimited allows perSecond calls with the given burst. A
// non-positive perSecond disables throttling.
func NewRateLimited(next domain.Gateway, perSecond float64, burst int, m *metrics.Metrics) *RateLimited {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst), metrics: m}
}

func (r *RateLimited) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limit wait: %v", domain.ErrGateway, err)
	}
	start := time.Now()
	out, err := r.next.Complete(ctx, req)
	r.metrics.ObserveGatewayCall("complete", time.Since(start).Seconds(), err)
	return out, err
}

func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", domain.ErrGateway, err)
	}
	start := time.Now()
	out, err := r.next.Embed(ctx, text)
	r.metrics.ObserveGatewayCall("embed", time.Since(start).Seconds(), err)
	return out, err
}
