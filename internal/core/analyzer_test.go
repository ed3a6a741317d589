package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rescuecore/internal/config"
	"rescuecore/internal/registry"
	"rescuecore/internal/types"
)

const (
	eventLat = 31.68
	eventLng = 103.85
)

var nominalStages = []string{
	StageUnderstand, StageEnhance, StageQueryRules, StageApplyRules,
	StageDecompose, StageMatch, StageOptimize, StageFilterHard,
	StageScoreSoft, StageExplain, StageAssemble,
}

// mockRuleSource implements reasoning.RuleSource with function fields.
type mockRuleSource struct {
	rulesFunc   func(ctx context.Context, dt types.DisasterType) ([]types.RawTRRRule, error)
	mappingFunc func(ctx context.Context, codes []string) ([]types.CapabilityMapping, error)
}

func (m *mockRuleSource) QueryTRRRules(ctx context.Context, dt types.DisasterType) ([]types.RawTRRRule, error) {
	if m.rulesFunc != nil {
		return m.rulesFunc(ctx, dt)
	}
	return nil, nil
}

func (m *mockRuleSource) QueryCapabilityMapping(ctx context.Context, codes []string) ([]types.CapabilityMapping, error) {
	if m.mappingFunc != nil {
		return m.mappingFunc(ctx, codes)
	}
	return nil, nil
}

func quakeRequest() *types.Request {
	return &types.Request{
		EventID:             "EVT-001",
		ScenarioID:          "SCN-001",
		DisasterDescription: "M6.5 earthquake, building collapse, ~200 trapped, 15000 affected",
		StructuredInput: map[string]interface{}{
			"location":      map[string]interface{}{"latitude": eventLat, "longitude": eventLng},
			"urgency_level": "critical",
		},
	}
}

func newFixtureAnalyzer(t *testing.T, mutate func(*config.Config, *Deps)) *Analyzer {
	t.Helper()
	deps, err := FixtureDeps(eventLat, eventLng)
	if err != nil {
		t.Fatalf("FixtureDeps failed: %v", err)
	}
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg, &deps)
	}
	a, err := NewAnalyzer(cfg, deps)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	return a
}

func checkOutputInvariants(t *testing.T, out *types.Output) {
	t.Helper()

	phases := out.Trace.PhasesExecuted
	if len(phases) == 0 || phases[len(phases)-1] != StageAssemble {
		t.Errorf("trace must end with %s: %v", StageAssemble, phases)
	}
	seen := make(map[string]bool)
	for _, p := range phases {
		if seen[p] {
			t.Errorf("stage %s executed more than once: %v", p, phases)
		}
		seen[p] = true
	}

	if out.RecommendedScheme != nil && !out.Success {
		catastrophe := false
		if out.Optimization != nil {
			for _, score := range out.Optimization.SchemeScores {
				if score.CatastropheMode {
					catastrophe = true
				}
			}
		}
		if !catastrophe {
			t.Error("recommendation without success requires a catastrophe marker")
		}
	}

	var solutions []types.AllocationSolution
	if out.Optimization != nil {
		solutions = out.Optimization.Solutions
	}
	for _, s := range solutions {
		var maxEta float64
		ids := make(map[string]bool)
		for _, a := range s.Allocations {
			if ids[a.ResourceID] {
				t.Errorf("solution %s repeats resource %s", s.SolutionID, a.ResourceID)
			}
			ids[a.ResourceID] = true
			if a.ETAMinutes > maxEta {
				maxEta = a.ETAMinutes
			}
		}
		if math.Abs(s.ResponseTimeMin-maxEta) > 1e-9 {
			t.Errorf("solution %s response_time %.2f != max eta %.2f", s.SolutionID, s.ResponseTimeMin, maxEta)
		}
		if math.Abs(s.RiskLevel-(1-s.CoverageRate)) > 1e-9 {
			t.Errorf("solution %s risk %.3f != 1-coverage", s.SolutionID, s.RiskLevel)
		}
	}

	if out.HTNDecomposition != nil {
		pos := make(map[string]int)
		for i, item := range out.HTNDecomposition.TaskSequence {
			pos[item.TaskID] = i
		}
		for _, item := range out.HTNDecomposition.TaskSequence {
			for _, dep := range item.DependsOn {
				if p, ok := pos[dep]; !ok || p >= pos[item.TaskID] {
					t.Errorf("task %s depends on %s out of order", item.TaskID, dep)
				}
			}
		}
	}
}

func TestAnalyzeNominalEarthquake(t *testing.T) {
	a := newFixtureAnalyzer(t, nil)
	out := a.Analyze(context.Background(), quakeRequest())
	checkOutputInvariants(t, out)

	if !out.Success {
		t.Fatalf("success=false, errors=%v", out.Errors)
	}
	if out.Status != types.StatusCompleted {
		t.Errorf("status = %s", out.Status)
	}
	if out.RecommendedScheme == nil {
		t.Fatal("no recommendation")
	}
	if out.RecommendedScheme.CoverageRate != 1.0 {
		t.Errorf("coverage = %.2f, want full", out.RecommendedScheme.CoverageRate)
	}
	if out.RecommendedScheme.ResponseTimeMin > 120 {
		t.Errorf("response_time = %.0f, want within the golden window", out.RecommendedScheme.ResponseTimeMin)
	}
	if diff := cmp.Diff(nominalStages, out.Trace.PhasesExecuted); diff != "" {
		t.Errorf("stage order mismatch (-want +got):\n%s", diff)
	}
	if out.Trace.LLMCalls < 2 {
		t.Errorf("llm_calls = %d, want parse plus explanation", out.Trace.LLMCalls)
	}
	if len(out.HTNDecomposition.TaskSequence) == 0 {
		t.Error("empty task sequence")
	}
	if !strings.Contains(out.SchemeExplanation, "# Recommended Response Plan") {
		t.Errorf("explanation:\n%s", out.SchemeExplanation)
	}
	if out.Understanding.Summary == "" {
		t.Error("understanding summary missing")
	}
	if out.CompletedAt == "" || out.Trace.RAGCalls < 1 {
		t.Errorf("completed_at=%q rag_calls=%d", out.CompletedAt, out.Trace.RAGCalls)
	}
}

func TestAnalyzeRAGFailureStillSucceeds(t *testing.T) {
	a := newFixtureAnalyzer(t, func(cfg *config.Config, deps *Deps) {
		deps.Cases = &FixtureCases{Err: errors.New("vector store offline")}
	})
	out := a.Analyze(context.Background(), quakeRequest())
	checkOutputInvariants(t, out)

	if !out.Success {
		t.Fatalf("RAG failure must not fail the run: %v", out.Errors)
	}
	if len(out.Understanding.SimilarCases) != 0 {
		t.Errorf("similar_cases = %v, want empty", out.Understanding.SimilarCases)
	}
	if out.Trace.RAGCalls < 1 {
		t.Error("rag call attempt must be counted")
	}
	if len(out.Trace.Warnings) == 0 {
		t.Error("degradation must appear in the trace warnings")
	}
	if out.Understanding.Summary == "" {
		t.Error("understanding summary missing")
	}
}

func TestAnalyzeKGDownFallsBackToDefaults(t *testing.T) {
	a := newFixtureAnalyzer(t, func(cfg *config.Config, deps *Deps) {
		deps.Rules = &mockRuleSource{
			rulesFunc: func(ctx context.Context, dt types.DisasterType) ([]types.RawTRRRule, error) {
				return nil, errors.New("graph unreachable")
			},
			mappingFunc: func(ctx context.Context, codes []string) ([]types.CapabilityMapping, error) {
				return nil, errors.New("graph unreachable")
			},
		}
	})
	out := a.Analyze(context.Background(), quakeRequest())
	checkOutputInvariants(t, out)

	if !out.Success {
		t.Fatalf("KG failure must degrade, not fail: %v", out.Errors)
	}
	if !out.Reasoning.UsedDefaultRules || !out.Trace.UsedDefaultRules {
		t.Error("default rules flag not set")
	}
	if !strings.HasPrefix(out.Reasoning.MatchedRules[0].RuleID, "DEFAULT-EQ-") {
		t.Errorf("rule id = %s", out.Reasoning.MatchedRules[0].RuleID)
	}
	caps := make(map[string]bool)
	for _, req := range out.Reasoning.CapabilityRequirements {
		caps[req.CapabilityCode] = true
	}
	for _, want := range []string{"LIFE_DETECTION", "STRUCTURAL_RESCUE", "MEDICAL_TRIAGE"} {
		if !caps[want] {
			t.Errorf("requirements missing %s", want)
		}
	}
}

func TestAnalyzeRadiusExpansion(t *testing.T) {
	a := newFixtureAnalyzer(t, func(cfg *config.Config, deps *Deps) {
		// All teams sit 150..170 km out: nothing inside the initial 80 km.
		var teams []types.Team
		caps := [][]string{
			{"LIFE_DETECTION", "STRUCTURAL_RESCUE"},
			{"MEDICAL_TRIAGE"},
			{"HEAVY_EQUIPMENT"},
			{"EMERGENCY_COMMS"},
			{"LIFE_DETECTION", "MEDICAL_TRIAGE"},
		}
		for i, c := range caps {
			teams = append(teams, types.Team{
				ID: fmt.Sprintf("FAR-%d", i+1), Name: fmt.Sprintf("far team %d", i+1),
				TeamType: "search_rescue", BaseLat: eventLat + 1.35 + 0.05*float64(i),
				BaseLng: eventLng, AvailablePersonnel: 40, CapabilityLevel: 4,
				Status: registry.StatusStandby, Capabilities: c,
			})
		}
		deps.Teams = &FixtureTeams{Teams: teams}
	})
	out := a.Analyze(context.Background(), quakeRequest())
	checkOutputInvariants(t, out)

	if !out.Trace.SearchExpanded {
		t.Fatal("search_expanded not set")
	}
	if out.Trace.InitialDistanceKM != 80 {
		t.Errorf("initial_distance_km = %.0f, want 80", out.Trace.InitialDistanceKM)
	}
	if out.Trace.FinalDistanceKM != 180 {
		t.Errorf("final_distance_km = %.0f, want 180", out.Trace.FinalDistanceKM)
	}
	if out.Trace.CandidatesCount < 5 {
		t.Errorf("candidates_count = %d, want >= 5", out.Trace.CandidatesCount)
	}
	if out.RecommendedScheme == nil {
		t.Error("recommendation missing after expansion")
	}
}

func TestAnalyzeCatastropheMode(t *testing.T) {
	a := newFixtureAnalyzer(t, func(cfg *config.Config, deps *Deps) {
		cfg.Evaluation.HardRules = []config.HardRuleConfig{
			{ID: "HR-010", Name: "mass mobilization", Kind: "min_teams", Threshold: 20,
				Message: "mass casualty events need at least 20 teams"},
		}
		llm := deps.LLM.(*FixtureLLM)
		llm.Disaster.EstimatedTrapped = 500
		llm.Disaster.AffectedPopulation = 50000

		// Six small teams in range: capacity 6 x 16 = 96 against 500 trapped.
		teams := FixtureTeamRing(eventLat, eventLng)[:6]
		for i := range teams {
			teams[i].AvailablePersonnel = 8
		}
		deps.Teams = &FixtureTeams{Teams: teams}
	})
	out := a.Analyze(context.Background(), quakeRequest())
	checkOutputInvariants(t, out)

	if out.RecommendedScheme == nil {
		t.Fatal("catastrophe mode must still recommend")
	}
	var combined *types.SchemeScore
	for i := range out.Optimization.SchemeScores {
		if out.Optimization.SchemeScores[i].CatastropheMode {
			combined = &out.Optimization.SchemeScores[i]
		}
	}
	if combined == nil {
		t.Fatal("no catastrophe scheme score")
	}
	if combined.Rank != 1 || !combined.RequiresReinforcement {
		t.Errorf("combined score: %+v", combined)
	}
	if combined.ReinforcementLevel != "national" {
		t.Errorf("reinforcement = %s, want national", combined.ReinforcementLevel)
	}
	if combined.CapacityGap < 400 {
		t.Errorf("capacity gap = %d, want >= 400", combined.CapacityGap)
	}
	if combined.CapacityWarning == "" || combined.ReinforcementMessage == "" {
		t.Error("catastrophe messages missing")
	}
}

func TestAnalyzeParseFailureShortCircuits(t *testing.T) {
	a := newFixtureAnalyzer(t, func(cfg *config.Config, deps *Deps) {
		deps.LLM = &FixtureLLM{Err: errors.New("model overloaded")}
	})
	out := a.Analyze(context.Background(), quakeRequest())
	checkOutputInvariants(t, out)

	if out.Success {
		t.Error("parse failure must fail the run")
	}
	if out.Status != types.StatusFailed {
		t.Errorf("status = %s", out.Status)
	}
	if len(out.Errors) == 0 {
		t.Error("errors must record the parse failure")
	}
	// Case enhancement still runs (a no-op on a nil parse) before the
	// short-circuit; rule reasoning and everything after it must not.
	want := []string{StageUnderstand, StageEnhance, StageAssemble}
	if diff := cmp.Diff(want, out.Trace.PhasesExecuted); diff != "" {
		t.Errorf("short-circuit path mismatch (-want +got):\n%s", diff)
	}
	if out.RecommendedScheme != nil {
		t.Error("no recommendation expected")
	}
}

func TestAnalyzeNoCandidatesShortCircuits(t *testing.T) {
	a := newFixtureAnalyzer(t, func(cfg *config.Config, deps *Deps) {
		deps.Teams = &FixtureTeams{} // empty registry
	})
	out := a.Analyze(context.Background(), quakeRequest())
	checkOutputInvariants(t, out)

	if out.Success {
		t.Error("no candidates must fail the run")
	}
	if len(out.Errors) == 0 || !strings.Contains(out.Errors[0], "no rescue team within") {
		t.Errorf("errors = %v", out.Errors)
	}
	for _, p := range out.Trace.PhasesExecuted {
		if p == StageOptimize {
			t.Error("optimization must not run without candidates")
		}
	}
	if out.Trace.FinalDistanceKM != 300 {
		t.Errorf("final_distance_km = %.0f, want exhausted 300", out.Trace.FinalDistanceKM)
	}
}

func TestAnalyzeEmptyRequirementsReachesAllocator(t *testing.T) {
	a := newFixtureAnalyzer(t, func(cfg *config.Config, deps *Deps) {
		// A matched rule that launches tasks but demands no capabilities:
		// the matcher has nothing to search for.
		deps.Rules = &mockRuleSource{
			rulesFunc: func(ctx context.Context, dt types.DisasterType) ([]types.RawTRRRule, error) {
				return []types.RawTRRRule{{
					RuleID: "TRR-EQ-200", RuleName: "notify only",
					DisasterType:      types.DisasterEarthquake,
					SceneCode:         "building-collapse-search",
					TriggerConditions: []string{"magnitude >= 6.0"},
				}}, nil
			},
		}
	})
	out := a.Analyze(context.Background(), quakeRequest())
	checkOutputInvariants(t, out)

	if len(out.Errors) != 0 {
		t.Fatalf("empty requirements must not error: %v", out.Errors)
	}
	if out.Optimization == nil || len(out.Optimization.Solutions) != 1 {
		t.Fatalf("optimization = %+v, want the single empty solution", out.Optimization)
	}
	empty := out.Optimization.Solutions[0]
	if empty.TeamsCount != 0 || len(empty.Allocations) != 0 {
		t.Errorf("solution assigns teams: %+v", empty)
	}
	if empty.CoverageRate != 1.0 {
		t.Errorf("coverage = %.2f, want vacuous full coverage", empty.CoverageRate)
	}
	ran := make(map[string]bool)
	for _, p := range out.Trace.PhasesExecuted {
		ran[p] = true
	}
	for _, stage := range []string{StageMatch, StageOptimize, StageFilterHard, StageScoreSoft} {
		if !ran[stage] {
			t.Errorf("stage %s skipped: %v", stage, out.Trace.PhasesExecuted)
		}
	}
	// The empty plan fails min_teams and cannot be combined, so nothing is
	// recommendable.
	if out.Success || out.RecommendedScheme != nil {
		t.Errorf("success=%v recommendation=%+v, want neither", out.Success, out.RecommendedScheme)
	}
}

func TestAnalyzeNoRuleMatchedShortCircuits(t *testing.T) {
	a := newFixtureAnalyzer(t, func(cfg *config.Config, deps *Deps) {
		llm := deps.LLM.(*FixtureLLM)
		// A quiet unknown event: no default rule condition holds.
		llm.Disaster = types.ParsedDisaster{
			DisasterType: types.DisasterEarthquake,
			Severity:     types.SeverityLow,
			Magnitude:    3.0,
		}
		deps.Rules = &mockRuleSource{
			rulesFunc: func(ctx context.Context, dt types.DisasterType) ([]types.RawTRRRule, error) {
				return []types.RawTRRRule{{
					RuleID: "TRR-EQ-100", DisasterType: types.DisasterEarthquake,
					TriggerConditions: []string{"magnitude >= 8.0"},
				}}, nil
			},
		}
	})
	out := a.Analyze(context.Background(), quakeRequest())
	checkOutputInvariants(t, out)

	if out.Success {
		t.Error("no matched rule leaves nothing to recommend")
	}
	if len(out.Reasoning.MatchedRules) != 0 {
		t.Errorf("matched rules = %v", out.Reasoning.MatchedRules)
	}
	want := []string{StageUnderstand, StageEnhance, StageQueryRules, StageApplyRules, StageAssemble}
	if diff := cmp.Diff(want, out.Trace.PhasesExecuted); diff != "" {
		t.Errorf("short-circuit path mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeMissingLocation(t *testing.T) {
	a := newFixtureAnalyzer(t, nil)
	req := quakeRequest()
	delete(req.StructuredInput, "location")
	out := a.Analyze(context.Background(), req)
	checkOutputInvariants(t, out)

	if out.Success {
		t.Error("missing location must fail matching")
	}
	if len(out.Errors) == 0 || !strings.Contains(out.Errors[0], "location") {
		t.Errorf("errors = %v", out.Errors)
	}
}

func TestAnalyzeWeightOverrideSumEnforced(t *testing.T) {
	a := newFixtureAnalyzer(t, nil)
	req := quakeRequest()
	// Invalid override: falls back to configured weights.
	req.OptimizationWeights = &types.Weights{SuccessRate: 0.9, ResponseTime: 0.9}
	out := a.Analyze(context.Background(), req)
	checkOutputInvariants(t, out)

	if !out.Success {
		t.Fatalf("run failed: %v", out.Errors)
	}
	// The earthquake override is configured and sums to 1.0.
	w := config.DefaultConfig().EvaluationWeights("earthquake")
	if math.Abs(w.Sum()-1.0) > 1e-6 {
		t.Errorf("effective weights sum %.6f", w.Sum())
	}
}
