package domain

import "strings"

// QueryType classifies a natural language question.
type QueryType string

const (
	QuerySimpleRetrieval QueryType = "SIMPLE_RETRIEVAL"
	QueryAnalytical      QueryType = "ANALYTICAL"
	QueryTemporal        QueryType = "TEMPORAL"
	QueryComparative     QueryType = "COMPARATIVE"
	QueryAggregative     QueryType = "AGGREGATIVE"
	QueryStatistical     QueryType = "STATISTICAL"
)

var queryTypes = []QueryType{
	QuerySimpleRetrieval,
	QueryAnalytical,
	QueryTemporal,
	QueryComparative,
	QueryAggregative,
	QueryStatistical,
}

// ParseQueryType matches s case-insensitively against the known types.
func ParseQueryType(s string) (QueryType, bool) {
	s = strings.TrimSpace(s)
	for _, t := range queryTypes {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// QueryAnalysis is the structured reading of a user question.
type QueryAnalysis struct {
	QueryType           QueryType      `json:"queryType"`
	FilterKeywords      []string       `json:"filterKeywords"`
	RequiredFields      []string       `json:"requiredFields"`
	Timeframe           string         `json:"timeframe,omitempty"`
	EmployeeID          string         `json:"employeeId,omitempty"`
	EmployeeName        string         `json:"employeeName,omitempty"`
	RequiresAggregation bool           `json:"requiresAggregation"`
	ExtractionCriteria  map[string]any `json:"extractionCriteria,omitempty"`
}

// QueryResult is the answer returned to the caller. Failures are reported
// with Success false and never as an error.
type QueryResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Matches []SummaryMatch `json:"matches"`
}
