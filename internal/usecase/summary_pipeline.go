package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/V4T54L/worksync/internal/domain"
)

// PipelineReport describes one run of the summary pipeline.
type PipelineReport struct {
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	Employees   int       `json:"employees"`
	Stored      int       `json:"stored"`
	Failed      int       `json:"failed"`
}

// SummaryPipelineUseCase aggregates a window, summarizes every employee's
// bundle and indexes the summaries.
type SummaryPipelineUseCase struct {
	aggregator *AggregateEventsUseCase
	summarizer *SummarizeBundleUseCase
	index      *VectorIndexUseCase
	enabled    bool
	window     time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewSummaryPipelineUseCase(
	aggregator *AggregateEventsUseCase,
	summarizer *SummarizeBundleUseCase,
	index *VectorIndexUseCase,
	enabled bool,
	window time.Duration,
	logger *slog.Logger,
) *SummaryPipelineUseCase {
	if window <= 0 {
		window = time.Hour
	}
	return &SummaryPipelineUseCase{
		aggregator: aggregator,
		summarizer: summarizer,
		index:      index,
		enabled:    enabled,
		window:     window,
		logger:     logger.With("component", "summary_pipeline"),
		now:        time.Now,
	}
}

// RunScheduled runs the pipeline over the window ending now, unless the
// pipeline is disabled.
func (uc *SummaryPipelineUseCase) RunScheduled(ctx context.Context) error {
	if !uc.enabled {
		uc.logger.Info("summary generation is disabled, skipping scheduled run")
		return nil
	}
	_, err := uc.RunLast(ctx)
	return err
}

// RunLast runs the pipeline over the configured window ending now.
func (uc *SummaryPipelineUseCase) RunLast(ctx context.Context) (PipelineReport, error) {
	return uc.RunWindow(ctx, domain.LastWindow(uc.now().UTC(), uc.window))
}

// RunWindow summarizes and indexes every employee active in window. A
// failure for one employee is logged and does not stop the others.
func (uc *SummaryPipelineUseCase) RunWindow(ctx context.Context, window domain.Window) (PipelineReport, error) {
	ctx, span := otel.Tracer("summary-pipeline").Start(ctx, "RunWindow")
	defer span.End()

	report := PipelineReport{WindowStart: window.Start, WindowEnd: window.End}
	uc.logger.Info("starting summary generation", "window_start", window.Start, "window_end", window.End)

	bundles, err := uc.aggregator.Stream(ctx, window)
	if err != nil {
		recordSpanError(span, err)
		uc.logger.Error("failed to aggregate events for summaries", "error", err)
		return report, err
	}

	ids := make([]string, 0, len(bundles))
	for id, b := range bundles {
		if !b.Empty() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	report.Employees = len(ids)
	span.SetAttributes(attribute.Int("summary.employees", len(ids)))

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		summary := uc.summarizer.Summarize(ctx, bundles[id])
		if _, err := uc.index.EmbedAndStore(ctx, id, summary, window.End); err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("employee %s: %w", id, err))
			uc.logger.Error("failed to store summary", "error", err, "employee_id", id)
			continue
		}
		report.Stored++
	}

	uc.logger.Info("summary generation finished",
		"employees", report.Employees,
		"stored", report.Stored,
		"failed", report.Failed,
	)
	if err := errors.Join(errs...); err != nil {
		recordSpanError(span, err)
		return report, err
	}
	return report, nil
}
