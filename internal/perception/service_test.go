package perception

import (
	"context"
	"errors"
	"testing"
	"time"

	"rescuecore/internal/types"
)

// mockCaseSearcher implements CaseSearcher for testing.
type mockCaseSearcher struct {
	searchFunc func(ctx context.Context, queryText, hint string, topK int) ([]types.SimilarCase, error)
}

func (m *mockCaseSearcher) SearchSimilarCases(ctx context.Context, queryText, hint string, topK int) ([]types.SimilarCase, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, queryText, hint, topK)
	}
	return nil, nil
}

func testRequest() *types.Request {
	return &types.Request{
		EventID:             "EVT-001",
		DisasterDescription: "M6.5 earthquake, building collapse, ~200 trapped",
		StructuredInput: map[string]interface{}{
			"location": map[string]interface{}{"latitude": 31.68, "longitude": 103.85},
		},
	}
}

func TestUnderstand_Nominal(t *testing.T) {
	llm := &mockLLMClient{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return earthquakeJSON, nil
		},
	}
	searcher := &mockCaseSearcher{
		searchFunc: func(ctx context.Context, queryText, hint string, topK int) ([]types.SimilarCase, error) {
			if hint != "earthquake" {
				t.Errorf("hint = %q, want earthquake default", hint)
			}
			if topK != DefaultTopK {
				t.Errorf("topK = %d, want %d", topK, DefaultTopK)
			}
			return []types.SimilarCase{
				{CaseID: "CASE-2008-WC", SimilarityScore: 0.91},
				{CaseID: "CASE-2014-LD", SimilarityScore: 0.74},
			}, nil
		},
	}

	svc := NewService(llm, searcher, time.Second, time.Second)
	result, err := svc.Understand(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Understand failed: %v", err)
	}

	if result.ParsedDisaster == nil {
		t.Fatal("parsed disaster missing")
	}
	if result.ParsedDisaster.DisasterType != types.DisasterEarthquake {
		t.Errorf("disaster_type = %s", result.ParsedDisaster.DisasterType)
	}
	if len(result.SimilarCases) != 2 {
		t.Errorf("similar_cases = %d, want 2", len(result.SimilarCases))
	}
	if result.Summary == "" {
		t.Error("summary missing")
	}
	if !result.PhysicsCalibrated {
		t.Error("expected physics calibration for an earthquake with magnitude")
	}
	if result.LLMCalls != 1 || result.RAGCalls != 1 {
		t.Errorf("calls = %d llm / %d rag, want 1/1", result.LLMCalls, result.RAGCalls)
	}
	if result.RAGWarning != "" {
		t.Errorf("unexpected RAG warning: %s", result.RAGWarning)
	}
}

func TestUnderstand_RAGFailureIsNonFatal(t *testing.T) {
	llm := &mockLLMClient{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return earthquakeJSON, nil
		},
	}
	searcher := &mockCaseSearcher{
		searchFunc: func(ctx context.Context, queryText, hint string, topK int) ([]types.SimilarCase, error) {
			return nil, errors.New("vector store unreachable")
		},
	}

	svc := NewService(llm, searcher, time.Second, time.Second)
	result, err := svc.Understand(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("RAG failure must not fail the stage: %v", err)
	}

	if result.RAGWarning == "" {
		t.Error("expected a RAG warning")
	}
	if result.SimilarCases == nil || len(result.SimilarCases) != 0 {
		t.Errorf("similar_cases = %v, want empty non-nil", result.SimilarCases)
	}
	if result.Summary == "" {
		t.Error("summary must still be populated")
	}
	if result.RAGCalls != 1 {
		t.Errorf("rag_calls = %d, want 1", result.RAGCalls)
	}
}

func TestUnderstand_ParseFailureKeepsCases(t *testing.T) {
	llm := &mockLLMClient{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return "not json at all", nil
		},
	}
	searcher := &mockCaseSearcher{
		searchFunc: func(ctx context.Context, queryText, hint string, topK int) ([]types.SimilarCase, error) {
			return []types.SimilarCase{{CaseID: "CASE-1"}}, nil
		},
	}

	svc := NewService(llm, searcher, time.Second, time.Second)
	result, err := svc.Understand(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected parse error")
	}
	if result.ParsedDisaster != nil {
		t.Error("parsed disaster must be nil on parse failure")
	}
	if len(result.SimilarCases) != 1 {
		t.Errorf("similar_cases = %d, search result must survive a parse failure", len(result.SimilarCases))
	}
}

func TestUnderstand_NilSearcher(t *testing.T) {
	llm := &mockLLMClient{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return earthquakeJSON, nil
		},
	}

	svc := NewService(llm, nil, time.Second, time.Second)
	result, err := svc.Understand(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Understand failed: %v", err)
	}
	if result.RAGCalls != 0 {
		t.Errorf("rag_calls = %d, want 0 without a searcher", result.RAGCalls)
	}
	if len(result.SimilarCases) != 0 {
		t.Errorf("similar_cases = %d, want 0", len(result.SimilarCases))
	}
}

func TestUnderstand_DisasterTypeHintForwarded(t *testing.T) {
	var gotHint string
	llm := &mockLLMClient{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return `{"disaster_type": "flood", "severity": "high"}`, nil
		},
	}
	searcher := &mockCaseSearcher{
		searchFunc: func(ctx context.Context, queryText, hint string, topK int) ([]types.SimilarCase, error) {
			gotHint = hint
			return nil, nil
		},
	}

	req := testRequest()
	req.StructuredInput["disaster_type"] = "flood"

	svc := NewService(llm, searcher, time.Second, time.Second)
	if _, err := svc.Understand(context.Background(), req); err != nil {
		t.Fatalf("Understand failed: %v", err)
	}
	if gotHint != "flood" {
		t.Errorf("hint = %q, want flood", gotHint)
	}
}

func TestEnhanceWithCases(t *testing.T) {
	svc := NewService(&mockLLMClient{}, nil, time.Second, time.Second)
	parsed := &types.ParsedDisaster{DisasterType: types.DisasterEarthquake}
	cases := []types.SimilarCase{
		{CaseID: "C1", SimilarityScore: 0.9, Lessons: []string{"l1", "l2"}, BestPractices: []string{"p1"}},
		{CaseID: "C2", SimilarityScore: 0.7, Lessons: []string{"l3", "l4"}},
	}

	svc.EnhanceWithCases(parsed, cases)

	if parsed.AdditionalInfo["similar_case_count"] != 2 {
		t.Errorf("similar_case_count = %v", parsed.AdditionalInfo["similar_case_count"])
	}
	lessons := parsed.AdditionalInfo["historical_lessons"].([]string)
	if len(lessons) != maxCaseNotes {
		t.Errorf("lessons = %v, want capped at %d", lessons, maxCaseNotes)
	}
	if lessons[0] != "l1" {
		t.Errorf("lessons[0] = %s, most similar case must come first", lessons[0])
	}
	practices := parsed.AdditionalInfo["historical_best_practices"].([]string)
	if len(practices) != 1 {
		t.Errorf("practices = %v", practices)
	}
}

func TestEnhanceWithCases_NoopOnEmpty(t *testing.T) {
	svc := NewService(&mockLLMClient{}, nil, time.Second, time.Second)
	parsed := &types.ParsedDisaster{DisasterType: types.DisasterFlood}

	svc.EnhanceWithCases(parsed, nil)
	if parsed.AdditionalInfo != nil {
		t.Errorf("additional_info = %v, want untouched", parsed.AdditionalInfo)
	}

	svc.EnhanceWithCases(nil, []types.SimilarCase{{CaseID: "C1"}})
}
