package retry

import (
	"context"
	"time"
)

// Policy bounds a retry loop. The delay before attempt n+1 is
// InitialDelay * Multiplier^(n-1).
type Policy struct {
	Attempts     int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultPolicy is three attempts starting at one second, doubling.
var DefaultPolicy = Policy{Attempts: 3, InitialDelay: time.Second, Multiplier: 2}

// Once performs a single attempt with no delay.
var Once = Policy{Attempts: 1}

// Do calls fn until it succeeds, the attempts are exhausted or ctx is done.
// It returns the last error from fn, or ctx.Err() if cancelled while waiting.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := p.InitialDelay
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = time.Duration(float64(delay) * mult)
	}
	return lastErr
}

// DoValue is Do for functions that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
