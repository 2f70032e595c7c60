package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	fast := Policy{Attempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}
	errBoom := errors.New("boom")

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fast, func(ctx context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("succeeds on last attempt", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fast, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errBoom
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error when exhausted", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fast, func(ctx context.Context) error {
			calls++
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 3, calls)
	})

	t.Run("zero attempts still tries once", func(t *testing.T) {
		calls := 0
		_ = Do(context.Background(), Policy{}, func(ctx context.Context) error {
			calls++
			return errBoom
		})
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := Policy{Attempts: 3, InitialDelay: time.Hour, Multiplier: 2}
		calls := 0
		err := Do(ctx, slow, func(ctx context.Context) error {
			calls++
			cancel()
			return errBoom
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestDoValue(t *testing.T) {
	calls := 0
	v, err := DoValue(context.Background(), Policy{Attempts: 2, InitialDelay: time.Millisecond}, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
