package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/pkg/retry"
)

// AnalyzeQueryUseCase classifies a question with the language model.
type AnalyzeQueryUseCase struct {
	gateway domain.Completer
	prompts PromptSource
	retry   retry.Policy
	logger  *slog.Logger
}

func NewAnalyzeQueryUseCase(gateway domain.Completer, prompts PromptSource, policy retry.Policy, logger *slog.Logger) *AnalyzeQueryUseCase {
	return &AnalyzeQueryUseCase{
		gateway: gateway,
		prompts: prompts,
		retry:   policy,
		logger:  logger.With("component", "analyze_query"),
	}
}

// classification is the wire form of the model's reply.
type classification struct {
	QueryType           string         `json:"queryType"`
	FilterKeywords      []string       `json:"filterKeywords"`
	RequiredFields      []string       `json:"requiredFields"`
	Timeframe           *string        `json:"timeframe"`
	EmployeeID          *string        `json:"employeeId"`
	EmployeeName        *string        `json:"employeeName"`
	RequiresAggregation bool           `json:"requiresAggregation"`
	ExtractionCriteria  map[string]any `json:"extractionCriteria"`
}

// Analyze never fails: any gateway or parse problem yields DefaultAnalysis.
func (uc *AnalyzeQueryUseCase) Analyze(ctx context.Context, query string) domain.QueryAnalysis {
	req, err := uc.prompts.Catalogue().Classify.Request(map[string]any{"Query": query})
	if err != nil {
		uc.logger.Error("failed to render classification prompt", "error", err)
		return DefaultAnalysis(query)
	}

	reply, err := retry.DoValue(ctx, uc.retry, func(ctx context.Context) (string, error) {
		return uc.gateway.Complete(ctx, req)
	})
	if err != nil {
		uc.logger.Warn("query classification failed, using default analysis", "error", err)
		return DefaultAnalysis(query)
	}

	analysis, err := ParseAnalysis(reply)
	if err != nil {
		uc.logger.Warn("could not parse classification, using default analysis", "error", err)
		uc.logger.Debug("raw classification reply", "reply", reply)
		return DefaultAnalysis(query)
	}
	return analysis
}

// ParseAnalysis decodes the first JSON object embedded in reply.
func ParseAnalysis(reply string) (domain.QueryAnalysis, error) {
	raw, ok := ExtractJSONObject(reply)
	if !ok {
		return domain.QueryAnalysis{}, fmt.Errorf("%w: no JSON object in reply", domain.ErrParse)
	}

	var c classification
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return domain.QueryAnalysis{}, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	qt, ok := domain.ParseQueryType(c.QueryType)
	if !ok {
		return domain.QueryAnalysis{}, fmt.Errorf("%w: unknown queryType %q", domain.ErrParse, c.QueryType)
	}

	a := domain.QueryAnalysis{
		QueryType:           qt,
		FilterKeywords:      nonBlank(c.FilterKeywords),
		RequiredFields:      nonBlank(c.RequiredFields),
		RequiresAggregation: c.RequiresAggregation,
		ExtractionCriteria:  c.ExtractionCriteria,
	}
	if c.Timeframe != nil {
		a.Timeframe = strings.TrimSpace(*c.Timeframe)
	}
	if c.EmployeeID != nil {
		a.EmployeeID = strings.TrimSpace(*c.EmployeeID)
	}
	if c.EmployeeName != nil {
		a.EmployeeName = strings.TrimSpace(*c.EmployeeName)
	}
	return a, nil
}

// DefaultAnalysis treats the query as a simple retrieval filtered by its
// lower-cased words.
func DefaultAnalysis(query string) domain.QueryAnalysis {
	return domain.QueryAnalysis{
		QueryType:           domain.QuerySimpleRetrieval,
		FilterKeywords:      strings.Fields(strings.ToLower(query)),
		RequiresAggregation: false,
	}
}

// ExtractJSONObject returns the first balanced {...} in s. Braces inside
// string literals are ignored.
func ExtractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
