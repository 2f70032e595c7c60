package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/worksync/internal/adapter/gateway"
	"github.com/V4T54L/worksync/internal/adapter/repository/memory"
	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/domain/mocks"
)

// scriptedLLM answers each prompt kind with a fixed reply. With
// answerFailures set, only the first answerFailures answer calls fail.
type scriptedLLM struct {
	classification string
	answer         string
	answerErr      error
	answerFailures int
	noData         string
	noDataErr      error
}

func (s scriptedLLM) gateway() *mocks.MockGateway {
	answerCalls := 0
	return &mocks.MockGateway{CompleteFunc: func(req domain.CompletionRequest) (string, error) {
		switch {
		case strings.Contains(req.UserPrompt, "classify it"):
			return s.classification, nil
		case strings.Contains(req.UserPrompt, "Requested Fields"):
			return s.noData, s.noDataErr
		default:
			answerCalls++
			if s.answerErr != nil && (s.answerFailures == 0 || answerCalls <= s.answerFailures) {
				return "", s.answerErr
			}
			return s.answer, nil
		}
	}}
}

func newAnswererWithIndex(gw *mocks.MockGateway, index *VectorIndexUseCase, threshold float64) *AnswerQueryUseCase {
	analyzer := NewAnalyzeQueryUseCase(gw, defaultPrompts(), fastRetry, discardLogger())
	return NewAnswerQueryUseCase(analyzer, index, gw, defaultPrompts(), fastRetry, AnswerConfig{
		SimilarityThreshold: threshold,
		NoDataMessage:       "nothing found",
	}, nil, discardLogger())
}

func newAnswerer(t *testing.T, gw *mocks.MockGateway, summaries map[string]string) *AnswerQueryUseCase {
	t.Helper()
	index := NewVectorIndexUseCase(gateway.NewHashEmbedder(0), memory.NewStore(), fastRetry, nil, discardLogger())
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for employee, text := range summaries {
		if _, err := index.EmbedAndStore(context.Background(), employee, text, ts); err != nil {
			t.Fatalf("embed and store: %v", err)
		}
	}
	return newAnswererWithIndex(gw, index, 0.2)
}

var summaries = map[string]string{
	"EMP001": "Employee used Chrome for 1 hour and visited a phishing page",
	"EMP002": "Employee used Chrome to read documentation and Slack for chat",
	"EMP003": "Printer toner alert was raised on the office printer",
}

func TestAnswerQueryUseCase_SimpleRetrieval(t *testing.T) {
	llm := scriptedLLM{
		classification: `{"queryType":"SIMPLE_RETRIEVAL","filterKeywords":["chrome"],"requiresAggregation":false}`,
		answer:         "EMP001 and EMP002 used Chrome.",
	}
	gw := llm.gateway()
	uc := newAnswerer(t, gw, summaries)

	res := uc.ProcessQuery(context.Background(), "who used chrome", 0)
	if !res.Success || res.Message != "EMP001 and EMP002 used Chrome." {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Matches) == 0 {
		t.Fatal("expected matches")
	}
	for _, m := range res.Matches {
		if !strings.Contains(strings.ToLower(m.SummaryText), "chrome") {
			t.Errorf("match %s does not mention chrome", m.EmployeeID)
		}
		if m.Similarity < 0.2 {
			t.Errorf("match %s below threshold: %v", m.EmployeeID, m.Similarity)
		}
	}

	req, ok := gw.LastRequest()
	if !ok {
		t.Fatal("expected a completion request")
	}
	for _, want := range []string{"User Query: who used chrome", "Employee: "} {
		if !strings.Contains(req.UserPrompt, want) {
			t.Errorf("expected the prompt to contain %q", want)
		}
	}
}

func TestAnswerQueryUseCase_EmployeeFilter(t *testing.T) {
	t.Run("Exact ID Keeps Only That Employee", func(t *testing.T) {
		llm := scriptedLLM{
			classification: `{"queryType":"SIMPLE_RETRIEVAL","filterKeywords":["chrome"],"employeeId":"EMP002"}`,
			answer:         "EMP002 read documentation.",
		}
		uc := newAnswerer(t, llm.gateway(), summaries)

		res := uc.ProcessQuery(context.Background(), "chrome documentation", 10)
		if !res.Success {
			t.Fatalf("expected success, got %+v", res)
		}
		if len(res.Matches) != 1 || res.Matches[0].EmployeeID != "EMP002" {
			t.Errorf("expected only EMP002, got %+v", res.Matches)
		}
	})

	t.Run("ID Match Is Case Sensitive", func(t *testing.T) {
		llm := scriptedLLM{
			classification: `{"queryType":"SIMPLE_RETRIEVAL","filterKeywords":["chrome"],"employeeId":"emp002"}`,
			answer:         "should not be asked",
		}
		uc := newAnswerer(t, llm.gateway(), summaries)

		res := uc.ProcessQuery(context.Background(), "chrome documentation", 10)
		if !res.Success || res.Message != "nothing found" {
			t.Errorf("expected the no-data response, got %+v", res)
		}
		if len(res.Matches) != 0 {
			t.Errorf("expected no matches, got %+v", res.Matches)
		}
	})
}

func TestAnswerQueryUseCase_SimilarityThreshold(t *testing.T) {
	// Cosine with the query {1, 0} is the first component of a unit vector.
	weak := float32(0.15)
	weakVec := []float32{weak, float32(math.Sqrt(1 - float64(weak*weak)))}
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		vectors []domain.SummaryVector
		want    []string
	}{
		{
			name: "Match Between Noise Floor And Threshold Is Dropped",
			vectors: []domain.SummaryVector{
				{ID: "strong", EmployeeID: "EMP001", SummaryText: "Chrome all day", Embedding: []float32{1, 0}, Timestamp: ts},
				{ID: "weak", EmployeeID: "EMP002", SummaryText: "Chrome briefly", Embedding: weakVec, Timestamp: ts},
			},
			want: []string{"EMP001"},
		},
		{
			name: "Only Weak Matches Leads To No Data",
			vectors: []domain.SummaryVector{
				{ID: "weak", EmployeeID: "EMP002", SummaryText: "Chrome briefly", Embedding: weakVec, Timestamp: ts},
			},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := &mocks.MockGateway{Embedding: []float32{1, 0}}
			store := &mocks.MockVectorStore{Vectors: tt.vectors}
			index := NewVectorIndexUseCase(embedder, store, fastRetry, nil, discardLogger())

			// The weak match survives the search itself.
			found, err := index.SimilaritySearch(context.Background(), "chrome", 10)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(found) != len(tt.vectors) {
				t.Fatalf("expected every vector above the noise floor, got %d", len(found))
			}

			llm := scriptedLLM{classification: `{"queryType":"SIMPLE_RETRIEVAL"}`, answer: "Chrome was used."}
			uc := newAnswererWithIndex(llm.gateway(), index, 0.2)

			res := uc.ProcessQuery(context.Background(), "chrome", 10)
			if !res.Success {
				t.Fatalf("expected success, got %+v", res)
			}
			var got []string
			for _, m := range res.Matches {
				got = append(got, m.EmployeeID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("expected matches %v, got %v", tt.want, got)
			}
			if tt.want == nil && res.Message != "nothing found" {
				t.Errorf("expected the no-data message, got %q", res.Message)
			}
		})
	}
}

func TestAnswerQueryUseCase_NoData(t *testing.T) {
	t.Run("Gateway Explains What Was Searched", func(t *testing.T) {
		llm := scriptedLLM{
			classification: `{"queryType":"SIMPLE_RETRIEVAL","filterKeywords":["kubernetes"],"employeeId":"EMP001","timeframe":"last week"}`,
			noData:         "No Kubernetes activity for EMP001 last week.",
		}
		gw := llm.gateway()
		uc := newAnswerer(t, gw, summaries)

		res := uc.ProcessQuery(context.Background(), "chrome kubernetes", 5)
		if !res.Success || res.Message != "No Kubernetes activity for EMP001 last week." {
			t.Errorf("unexpected result %+v", res)
		}
		if len(res.Matches) != 0 {
			t.Errorf("expected no matches, got %d", len(res.Matches))
		}

		req, _ := gw.LastRequest()
		for _, want := range []string{"Employee: EMP001", "Time Frame: last week"} {
			if !strings.Contains(req.UserPrompt, want) {
				t.Errorf("expected the prompt to contain %q", want)
			}
		}
	})

	t.Run("Canned Message When Explanation Fails", func(t *testing.T) {
		llm := scriptedLLM{
			classification: `{"queryType":"SIMPLE_RETRIEVAL","filterKeywords":["kubernetes"]}`,
			noDataErr:      errors.New("down"),
		}
		uc := newAnswerer(t, llm.gateway(), summaries)

		res := uc.ProcessQuery(context.Background(), "chrome kubernetes", 5)
		if !res.Success || res.Message != "nothing found" {
			t.Errorf("expected the canned message, got %+v", res)
		}
	})

	t.Run("Empty Index", func(t *testing.T) {
		llm := scriptedLLM{classification: "not json", noData: "   "}
		uc := newAnswerer(t, llm.gateway(), nil)

		res := uc.ProcessQuery(context.Background(), "anything at all", 5)
		if !res.Success || res.Message != "nothing found" {
			t.Errorf("expected the canned message, got %+v", res)
		}
		if res.Matches == nil {
			t.Error("expected a non-nil empty match list")
		}
	})

	t.Run("Blank Answer Goes To No Data Path", func(t *testing.T) {
		llm := scriptedLLM{
			classification: `{"queryType":"SIMPLE_RETRIEVAL","filterKeywords":["chrome"]}`,
			answer:         "  ",
			noData:         "Nothing specific was found.",
		}
		uc := newAnswerer(t, llm.gateway(), summaries)

		res := uc.ProcessQuery(context.Background(), "chrome", 5)
		if !res.Success || res.Message != "Nothing specific was found." {
			t.Errorf("unexpected result %+v", res)
		}
	})
}

func TestAnswerQueryUseCase_Failures(t *testing.T) {
	t.Run("Transient Answer Failure Is Retried", func(t *testing.T) {
		llm := scriptedLLM{
			classification: `{"queryType":"SIMPLE_RETRIEVAL","filterKeywords":["chrome"]}`,
			answer:         "EMP001 used Chrome.",
			answerErr:      domain.ErrGateway,
			answerFailures: 1,
		}
		uc := newAnswerer(t, llm.gateway(), summaries)

		res := uc.ProcessQuery(context.Background(), "chrome", 5)
		if !res.Success || res.Message != "EMP001 used Chrome." {
			t.Errorf("expected the answer after a retry, got %+v", res)
		}
	})

	t.Run("Persistent Answer Failure Hides Internal Error", func(t *testing.T) {
		llm := scriptedLLM{
			classification: `{"queryType":"SIMPLE_RETRIEVAL","filterKeywords":["chrome"]}`,
			answerErr:      errors.New("rate limited by upstream"),
		}
		uc := newAnswerer(t, llm.gateway(), summaries)

		res := uc.ProcessQuery(context.Background(), "chrome", 5)
		if res.Success {
			t.Fatal("expected a failed result")
		}
		if res.Message != failureMessage || strings.Contains(res.Message, "rate limited") {
			t.Errorf("expected the generic failure message, got %q", res.Message)
		}
		if len(res.Matches) != 0 {
			t.Errorf("expected no matches, got %d", len(res.Matches))
		}
	})

	t.Run("Vector Store Error", func(t *testing.T) {
		gw := scriptedLLM{classification: "{}"}.gateway()
		index := NewVectorIndexUseCase(gateway.NewHashEmbedder(0), &mocks.MockVectorStore{FindErr: domain.ErrStore}, fastRetry, nil, discardLogger())
		uc := newAnswererWithIndex(gw, index, 0.2)

		res := uc.ProcessQuery(context.Background(), "chrome", 5)
		if res.Success || res.Message != failureMessage {
			t.Errorf("expected the generic failure message, got %+v", res)
		}
	})

	t.Run("Blank Query", func(t *testing.T) {
		uc := newAnswerer(t, scriptedLLM{}.gateway(), nil)
		if res := uc.ProcessQuery(context.Background(), "   ", 5); res.Success {
			t.Errorf("expected a blank query to fail, got %+v", res)
		}
	})
}
