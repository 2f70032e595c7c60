package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/domain/mocks"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"Bare Object", `{"a":1}`, `{"a":1}`, true},
		{"Surrounded By Prose", "Sure! Here it is:\n{\"a\":1}\nHope that helps.", `{"a":1}`, true},
		{"Nested", `x {"a":{"b":2}} y`, `{"a":{"b":2}}`, true},
		{"Brace In String", `{"a":"}{"} trailing }`, `{"a":"}{"}`, true},
		{"Escaped Quote In String", `{"a":"say \"}\""}`, `{"a":"say \"}\""}`, true},
		{"First Of Two Objects", `{"a":1} {"b":2}`, `{"a":1}`, true},
		{"No Object", "no json here", "", false},
		{"Unbalanced", `{"a":1`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ExtractJSONObject(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAnalyzeQueryUseCase_Analyze(t *testing.T) {
	const query = "How long did EMP001 use Chrome yesterday"

	t.Run("Parses Model Classification", func(t *testing.T) {
		gw := &mocks.MockGateway{Reply: "```json\n" + `{
			"queryType": "statistical",
			"filterKeywords": ["chrome", " "],
			"requiredFields": ["usage_duration"],
			"timeframe": "yesterday",
			"employeeId": "EMP001",
			"requiresAggregation": true,
			"extractionCriteria": {"aggregation": "sum"}
		}` + "\n```"}
		uc := NewAnalyzeQueryUseCase(gw, defaultPrompts(), fastRetry, discardLogger())

		a := uc.Analyze(context.Background(), query)
		if a.QueryType != domain.QueryStatistical {
			t.Errorf("expected STATISTICAL, got %s", a.QueryType)
		}
		if !reflect.DeepEqual(a.FilterKeywords, []string{"chrome"}) {
			t.Errorf("expected blank keywords dropped, got %v", a.FilterKeywords)
		}
		if !reflect.DeepEqual(a.RequiredFields, []string{"usage_duration"}) {
			t.Errorf("unexpected required fields %v", a.RequiredFields)
		}
		if a.Timeframe != "yesterday" || a.EmployeeID != "EMP001" || !a.RequiresAggregation {
			t.Errorf("unexpected analysis %+v", a)
		}
		if a.ExtractionCriteria["aggregation"] != "sum" {
			t.Errorf("expected extraction criteria to be kept, got %v", a.ExtractionCriteria)
		}

		req, ok := gw.LastRequest()
		if !ok || !strings.Contains(req.UserPrompt, query) {
			t.Errorf("expected the query in the prompt, got %q", req.UserPrompt)
		}
	})

	t.Run("Transient Gateway Failure Is Retried", func(t *testing.T) {
		calls := 0
		gw := &mocks.MockGateway{CompleteFunc: func(domain.CompletionRequest) (string, error) {
			calls++
			if calls == 1 {
				return "", domain.ErrGateway
			}
			return `{"queryType":"TEMPORAL"}`, nil
		}}
		uc := NewAnalyzeQueryUseCase(gw, defaultPrompts(), fastRetry, discardLogger())

		if a := uc.Analyze(context.Background(), query); a.QueryType != domain.QueryTemporal {
			t.Errorf("expected TEMPORAL after a retry, got %s", a.QueryType)
		}
		if calls != 2 {
			t.Errorf("expected 2 gateway calls, got %d", calls)
		}
	})

	fallback := DefaultAnalysis(query)
	tests := []struct {
		name string
		gw   *mocks.MockGateway
	}{
		{"Gateway Error", &mocks.MockGateway{CompleteErr: errors.New("boom")}},
		{"No JSON", &mocks.MockGateway{Reply: "I cannot help with that"}},
		{"Malformed JSON", &mocks.MockGateway{Reply: `{"queryType": }`}},
		{"Missing Query Type", &mocks.MockGateway{Reply: `{"filterKeywords": ["chrome"]}`}},
		{"Unknown Query Type", &mocks.MockGateway{Reply: `{"queryType": "PREDICTIVE"}`}},
		{"Query Type Not A String", &mocks.MockGateway{Reply: `{"queryType": 5, "employeeId": null}`}},
	}
	for _, tt := range tests {
		t.Run("Falls Back On "+tt.name, func(t *testing.T) {
			uc := NewAnalyzeQueryUseCase(tt.gw, defaultPrompts(), fastRetry, discardLogger())
			if got := uc.Analyze(context.Background(), query); !reflect.DeepEqual(got, fallback) {
				t.Errorf("expected the default analysis, got %+v", got)
			}
		})
	}
}

func TestDefaultAnalysis(t *testing.T) {
	a := DefaultAnalysis("  Chrome   USAGE today ")
	if a.QueryType != domain.QuerySimpleRetrieval {
		t.Errorf("expected SIMPLE_RETRIEVAL, got %s", a.QueryType)
	}
	if want := []string{"chrome", "usage", "today"}; !reflect.DeepEqual(a.FilterKeywords, want) {
		t.Errorf("expected keywords %v, got %v", want, a.FilterKeywords)
	}
	if a.RequiresAggregation {
		t.Error("expected no aggregation")
	}
}

func TestParseAnalysis_NullOptionalFields(t *testing.T) {
	a, err := ParseAnalysis(`{"queryType":"TEMPORAL","timeframe":null,"employeeId":null,"filterKeywords":null}`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a.QueryType != domain.QueryTemporal {
		t.Errorf("expected TEMPORAL, got %s", a.QueryType)
	}
	if a.Timeframe != "" || a.EmployeeID != "" || len(a.FilterKeywords) != 0 {
		t.Errorf("expected empty optional fields, got %+v", a)
	}
}
