package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/V4T54L/worksync/internal/adapter/metrics"
	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/pkg/retry"
)

const (
	// retrievalContextSize caps the matches quoted in a retrieval prompt.
	retrievalContextSize = 5

	defaultNoDataMessage = "No relevant activity data was found for this query."
	failureMessage       = "Sorry, the query could not be processed right now. Please try again later."
)

// AnswerConfig tunes the response composer.
type AnswerConfig struct {
	DefaultTopK         int
	SimilarityThreshold float64
	NoDataMessage       string
}

// AnswerQueryUseCase answers natural language questions from the summary index.
type AnswerQueryUseCase struct {
	analyzer *AnalyzeQueryUseCase
	index    *VectorIndexUseCase
	gateway  domain.Completer
	prompts  PromptSource
	retry    retry.Policy
	cfg      AnswerConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewAnswerQueryUseCase(
	analyzer *AnalyzeQueryUseCase,
	index *VectorIndexUseCase,
	gateway domain.Completer,
	prompts PromptSource,
	policy retry.Policy,
	cfg AnswerConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AnswerQueryUseCase {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 10
	}
	if strings.TrimSpace(cfg.NoDataMessage) == "" {
		cfg.NoDataMessage = defaultNoDataMessage
	}
	return &AnswerQueryUseCase{
		analyzer: analyzer,
		index:    index,
		gateway:  gateway,
		prompts:  prompts,
		retry:    policy,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With("component", "answer_query"),
	}
}

// ProcessQuery answers query from at most topK summaries. A topK of zero or
// less uses the configured default. Failures are reported in the result.
func (uc *AnswerQueryUseCase) ProcessQuery(ctx context.Context, query string, topK int) domain.QueryResult {
	ctx, span := otel.Tracer("answer-query").Start(ctx, "ProcessQuery")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		uc.metrics.ObserveQuery("", "failed")
		return domain.QueryResult{Success: false, Message: "Query must not be empty.", Matches: []domain.SummaryMatch{}}
	}
	if topK <= 0 {
		topK = uc.cfg.DefaultTopK
	}

	analysis := uc.analyzer.Analyze(ctx, query)
	span.SetAttributes(
		attribute.String("query.type", string(analysis.QueryType)),
		attribute.Int("query.top_k", topK),
	)

	matches, err := uc.index.SimilaritySearch(ctx, query, topK)
	if err != nil {
		recordSpanError(span, err)
		return uc.failure(analysis, err)
	}
	matches = uc.filter(matches, analysis)

	if len(matches) == 0 {
		uc.metrics.ObserveQuery(string(analysis.QueryType), "no_data")
		return domain.QueryResult{Success: true, Message: uc.noData(ctx, query, analysis), Matches: []domain.SummaryMatch{}}
	}

	answer, err := uc.compose(ctx, query, analysis, matches)
	if err != nil {
		recordSpanError(span, err)
		return uc.failure(analysis, err)
	}
	if answer = strings.TrimSpace(answer); answer == "" {
		uc.logger.Warn("gateway returned an empty answer, using no-data response", "query_type", analysis.QueryType)
		uc.metrics.ObserveQuery(string(analysis.QueryType), "no_data")
		return domain.QueryResult{Success: true, Message: uc.noData(ctx, query, analysis), Matches: []domain.SummaryMatch{}}
	}

	uc.metrics.ObserveQuery(string(analysis.QueryType), "answered")
	return domain.QueryResult{Success: true, Message: answer, Matches: matches}
}

// filter applies the employee, keyword and threshold filters in that order.
// The employee id must match exactly.
func (uc *AnswerQueryUseCase) filter(matches []domain.SummaryMatch, a domain.QueryAnalysis) []domain.SummaryMatch {
	keywords := make([]string, 0, len(a.FilterKeywords))
	for _, k := range a.FilterKeywords {
		keywords = append(keywords, strings.ToLower(k))
	}

	out := make([]domain.SummaryMatch, 0, len(matches))
	for _, m := range matches {
		if a.EmployeeID != "" && m.EmployeeID != a.EmployeeID {
			continue
		}
		if len(keywords) > 0 && !containsAny(strings.ToLower(m.SummaryText), keywords) {
			continue
		}
		if m.Similarity < uc.cfg.SimilarityThreshold {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (uc *AnswerQueryUseCase) compose(ctx context.Context, query string, a domain.QueryAnalysis, matches []domain.SummaryMatch) (string, error) {
	c := uc.prompts.Catalogue()

	if a.QueryType == domain.QuerySimpleRetrieval {
		quoted := matches
		if len(quoted) > retrievalContextSize {
			quoted = quoted[:retrievalContextSize]
		}
		req, err := c.Retrieval.Request(map[string]any{"Query": query, "Matches": quoted})
		if err != nil {
			return "", err
		}
		return uc.complete(ctx, req)
	}

	req, err := c.Analysis.Request(map[string]any{
		"Query":       query,
		"QueryType":   string(a.QueryType),
		"Metrics":     strings.Join(a.RequiredFields, ", "),
		"Timeframe":   orDefault(a.Timeframe, "all time"),
		"Aggregation": aggregationLabel(a.RequiresAggregation),
		"Emphasis":    c.EmphasisFor(a.QueryType),
		"Data":        formatMatches(matches),
	})
	if err != nil {
		return "", err
	}
	return uc.complete(ctx, req)
}

func (uc *AnswerQueryUseCase) complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	return retry.DoValue(ctx, uc.retry, func(ctx context.Context) (string, error) {
		return uc.gateway.Complete(ctx, req)
	})
}

// noData asks the gateway to explain what was searched, falling back to the
// configured message.
func (uc *AnswerQueryUseCase) noData(ctx context.Context, query string, a domain.QueryAnalysis) string {
	employee := a.EmployeeID
	if a.EmployeeName != "" {
		employee = strings.TrimSpace(a.EmployeeName + " " + a.EmployeeID)
	}
	req, err := uc.prompts.Catalogue().NoData.Request(map[string]any{
		"Query":     query,
		"Employee":  orDefault(employee, "any"),
		"Timeframe": orDefault(a.Timeframe, "all time"),
		"Fields":    orDefault(strings.Join(a.RequiredFields, ", "), "any"),
	})
	if err != nil {
		uc.logger.Error("failed to render no-data prompt", "error", err)
		return uc.cfg.NoDataMessage
	}

	msg, err := uc.complete(ctx, req)
	if err != nil {
		uc.logger.Warn("no-data explanation failed, using canned message", "error", err)
		return uc.cfg.NoDataMessage
	}
	if msg = strings.TrimSpace(msg); msg == "" {
		return uc.cfg.NoDataMessage
	}
	return msg
}

// failure logs err and reports a generic message; internal error text is
// never returned to the caller.
func (uc *AnswerQueryUseCase) failure(a domain.QueryAnalysis, err error) domain.QueryResult {
	uc.logger.Error("failed to process query", "error", err, "query_type", a.QueryType)
	uc.metrics.ObserveQuery(string(a.QueryType), "failed")
	return domain.QueryResult{
		Success: false,
		Message: failureMessage,
		Matches: []domain.SummaryMatch{},
	}
}

func formatMatches(matches []domain.SummaryMatch) string {
	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "Employee: %s\n", m.EmployeeID)
		fmt.Fprintf(&sb, "Timestamp: %s\n", m.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"))
		fmt.Fprintf(&sb, "Data: %s\n", m.SummaryText)
	}
	return sb.String()
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func aggregationLabel(required bool) string {
	if required {
		return "required"
	}
	return "not required"
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
