// Package schedule runs periodic jobs on cron expressions.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Job is a named unit of periodic work.
type Job struct {
	Name string
	// Spec is a standard five field cron expression, or a descriptor such as "@every 5m".
	Spec string
	Run  func(ctx context.Context) error
	// Timeout bounds one run. Zero means no bound beyond the runner's context.
	Timeout time.Duration
}

// CronRunner schedules jobs. A run of a job is skipped while its previous
// run is still in progress.
type CronRunner struct {
	cron   *rcron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCronRunner creates a runner in the given location. nil means time.Local.
func NewCronRunner(loc *time.Location, logger *slog.Logger) *CronRunner {
	if loc == nil {
		loc = time.Local
	}
	logger = logger.With("component", "cron_runner")
	clog := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &CronRunner{
		cron: rcron.New(
			rcron.WithLocation(loc),
			rcron.WithLogger(clog),
			rcron.WithChain(rcron.Recover(clog), rcron.SkipIfStillRunning(clog)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a job. It fails on an invalid spec.
func (r *CronRunner) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has no run function", job.Name)
	}
	_, err := r.cron.AddFunc(job.Spec, func() { r.runOnce(job) })
	if err != nil {
		return fmt.Errorf("schedule job %s (%q): %w", job.Name, job.Spec, err)
	}
	r.logger.Info("job scheduled", "job", job.Name, "spec", job.Spec)
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to return.
func (r *CronRunner) Run(ctx context.Context) {
	r.cron.Start()
	<-ctx.Done()
	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("cron runner stopped")
}

// Len returns the number of scheduled jobs.
func (r *CronRunner) Len() int {
	return len(r.cron.Entries())
}

func (r *CronRunner) runOnce(job Job) {
	ctx := r.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		r.logger.Error("job failed", "job", job.Name, "error", err, "duration", time.Since(start))
		return
	}
	r.logger.Debug("job finished", "job", job.Name, "duration", time.Since(start))
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
