package rag

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"rescuecore/internal/types"
)

// fakeEngine produces deterministic 4-dimensional embeddings keyed by the
// first word of the text.
type fakeEngine struct {
	vectors map[string][]float32
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	for key, vec := range f.vectors {
		if len(text) >= len(key) && text[:len(key)] == key {
			return vec, nil
		}
	}
	return []float32{0, 0, 0, 1}, nil
}

func (f *fakeEngine) Dimensions() int { return 4 }
func (f *fakeEngine) Name() string    { return "fake" }

func openTestStore(t *testing.T, engine EmbeddingEngine) *CaseStore {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "cases.db"), engine, 0)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func storeCases(t *testing.T, s *CaseStore, cases ...types.SimilarCase) {
	t.Helper()
	for _, c := range cases {
		if err := s.StoreCase(context.Background(), c); err != nil {
			t.Fatalf("StoreCase(%s) failed: %v", c.CaseID, err)
		}
	}
}

func TestSearchKeywordFallback(t *testing.T) {
	s := openTestStore(t, nil)
	storeCases(t, s,
		types.SimilarCase{CaseID: "EQ-1", DisasterType: "earthquake", Summary: "M7.9 earthquake with massive building collapse and trapped survivors"},
		types.SimilarCase{CaseID: "EQ-2", DisasterType: "earthquake", Summary: "moderate earthquake, minor damage"},
		types.SimilarCase{CaseID: "FL-1", DisasterType: "flood", Summary: "river flood submerged villages"},
	)

	results, err := s.SearchSimilarCases(context.Background(), "earthquake building collapse trapped", "earthquake", 5)
	if err != nil {
		t.Fatalf("SearchSimilarCases failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].CaseID != "EQ-1" {
		t.Errorf("top case = %s, want EQ-1", results[0].CaseID)
	}
	for _, r := range results {
		if r.DisasterType != "earthquake" {
			t.Errorf("hint should filter by type, got %s", r.DisasterType)
		}
		if r.SimilarityScore < 0 || r.SimilarityScore > 1 {
			t.Errorf("similarity %f out of [0,1]", r.SimilarityScore)
		}
	}
}

func TestSearchWithEmbeddings(t *testing.T) {
	engine := &fakeEngine{vectors: map[string][]float32{
		"big quake": {1, 0, 0, 0},
		"identical": {1, 0, 0, 0},
		"opposite":  {-1, 0, 0, 0},
	}}
	s := openTestStore(t, engine)
	storeCases(t, s,
		types.SimilarCase{CaseID: "SAME", DisasterType: "earthquake", Summary: "identical profile event"},
		types.SimilarCase{CaseID: "OPP", DisasterType: "earthquake", Summary: "opposite profile event"},
	)

	results, err := s.SearchSimilarCases(context.Background(), "big quake", "earthquake", 5)
	if err != nil {
		t.Fatalf("SearchSimilarCases failed: %v", err)
	}
	if len(results) == 0 || results[0].CaseID != "SAME" {
		t.Fatalf("expected SAME first, got %+v", results)
	}
	if math.Abs(results[0].SimilarityScore-1.0) > 1e-6 {
		t.Errorf("identical vectors should score 1.0, got %f", results[0].SimilarityScore)
	}
}

func TestSearchEmptyStoreIsNotError(t *testing.T) {
	s := openTestStore(t, nil)
	results, err := s.SearchSimilarCases(context.Background(), "anything", "earthquake", 5)
	if err != nil {
		t.Fatalf("empty store search errored: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty store", len(results))
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.75}
	out := decodeVector(encodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d != %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: %f != %f", i, in[i], out[i])
		}
	}
}

func TestLessonsSurviveStorage(t *testing.T) {
	s := openTestStore(t, nil)
	storeCases(t, s, types.SimilarCase{
		CaseID:        "EQ-LESSON",
		DisasterType:  "earthquake",
		Summary:       "earthquake with aftershock damage",
		Lessons:       []string{"stage triage early"},
		BestPractices: []string{"deploy life detection within 2h"},
	})

	results, err := s.SearchSimilarCases(context.Background(), "earthquake aftershock", "earthquake", 1)
	if err != nil {
		t.Fatalf("SearchSimilarCases failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if len(results[0].Lessons) != 1 || results[0].Lessons[0] != "stage triage early" {
		t.Errorf("lessons lost: %+v", results[0].Lessons)
	}
	if len(results[0].BestPractices) != 1 {
		t.Errorf("best practices lost: %+v", results[0].BestPractices)
	}
}
