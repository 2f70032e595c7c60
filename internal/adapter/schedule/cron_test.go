package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCronRunner_AddRejectsInvalidSpec(t *testing.T) {
	r := NewCronRunner(time.UTC, discardLogger())

	err := r.Add(Job{Name: "bad", Spec: "not a cron", Run: func(context.Context) error { return nil }})
	assert.Error(t, err)

	err = r.Add(Job{Name: "nil", Spec: "@every 1s"})
	assert.Error(t, err)

	require.NoError(t, r.Add(Job{Name: "hourly", Spec: "0 * * * *", Run: func(context.Context) error { return nil }}))
	assert.Equal(t, 1, r.Len())
}

func TestCronRunner_RunsAndStops(t *testing.T) {
	r := NewCronRunner(time.UTC, discardLogger())

	var runs atomic.Int32
	require.NoError(t, r.Add(Job{
		Name: "tick",
		Spec: "@every 1s",
		Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("failures are logged, not fatal")
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestCronRunner_JobContextCancelledOnStop(t *testing.T) {
	r := NewCronRunner(time.UTC, discardLogger())

	started := make(chan struct{}, 1)
	var sawCancel atomic.Bool
	require.NoError(t, r.Add(Job{
		Name: "long",
		Spec: "@every 1s",
		Run: func(ctx context.Context) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			sawCancel.Store(true)
			return ctx.Err()
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}
	cancel()
	<-done
	assert.True(t, sawCancel.Load())
}
