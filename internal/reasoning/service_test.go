package reasoning

import (
	"context"
	"errors"
	"strings"
	"testing"

	"rescuecore/internal/types"
)

// mockRuleSource implements RuleSource with function fields.
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

func twoEarthquakeRules() []types.RawTRRRule {
	return []types.RawTRRRule{
		{
			RuleID: "TRR-EQ-001", RuleName: "collapse", DisasterType: types.DisasterEarthquake,
			Priority: types.PriorityCritical, Weight: 0.9, SceneCode: "building-collapse-search",
			TriggerConditions: []string{"has_building_collapse = true"},
			TriggeredTasks: []types.TriggeredTask{
				{TaskCode: "SEARCH_RESCUE", TaskName: "search", Priority: types.PriorityHigh, Sequence: 2},
				{TaskCode: "MEDICAL_EMERGENCY", TaskName: "medical", Priority: types.PriorityHigh, Sequence: 3},
			},
			RequiredCapabilities: []types.RawCapability{
				{CapabilityCode: "LIFE_DETECTION", CapabilityName: "life detection"},
				{CapabilityCode: "STRUCTURAL_RESCUE", CapabilityName: "structural rescue"},
			},
		},
		{
			RuleID: "TRR-EQ-002", RuleName: "major quake", DisasterType: types.DisasterEarthquake,
			Priority: types.PriorityHigh, Weight: 0.8, SceneCode: "earthquake-major",
			TriggerConditions: []string{"magnitude >= 6.0"},
			TriggeredTasks: []types.TriggeredTask{
				// Duplicate task code with better sequence and priority.
				{TaskCode: "SEARCH_RESCUE", TaskName: "search", Priority: types.PriorityCritical, Sequence: 1},
			},
			RequiredCapabilities: []types.RawCapability{
				{CapabilityCode: "LIFE_DETECTION", CapabilityName: "life detection"},
				{CapabilityCode: "MEDICAL_TRIAGE", CapabilityName: "medical triage"},
			},
		},
	}
}

func TestApplyMatchesAndDeduplicates(t *testing.T) {
	kg := &mockRuleSource{
		rulesFunc: func(ctx context.Context, dt types.DisasterType) ([]types.RawTRRRule, error) {
			return twoEarthquakeRules(), nil
		},
		mappingFunc: func(ctx context.Context, codes []string) ([]types.CapabilityMapping, error) {
			return []types.CapabilityMapping{
				{CapabilityCode: "LIFE_DETECTION", CapabilityName: "life detection", ResourceTypes: []string{"RESCUE_TEAM"}},
			}, nil
		},
	}

	result, err := NewReasoner(kg).Apply(context.Background(), collapsedQuake())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(result.MatchedRules) != 2 {
		t.Fatalf("matched %d rules, want 2", len(result.MatchedRules))
	}
	if result.UsedDefaultRules {
		t.Error("should not have used defaults")
	}
	if result.KGCalls != 2 {
		t.Errorf("KGCalls = %d, want 2 (rules + mapping)", result.KGCalls)
	}

	// SEARCH_RESCUE deduplicated: min sequence 1, highest priority critical.
	if len(result.TriggeredTasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(result.TriggeredTasks))
	}
	sr := result.TriggeredTasks[0]
	if sr.TaskCode != "SEARCH_RESCUE" || sr.Sequence != 1 || sr.Priority != types.PriorityCritical {
		t.Errorf("dedup wrong: %+v", sr)
	}
	if result.TriggeredTasks[1].TaskCode != "MEDICAL_EMERGENCY" {
		t.Errorf("order wrong: %+v", result.TriggeredTasks)
	}

	// Capabilities deduplicated with provider annotations.
	if len(result.CapabilityRequirements) != 3 {
		t.Fatalf("got %d requirements, want 3", len(result.CapabilityRequirements))
	}
	ld := result.CapabilityRequirements[0]
	if ld.CapabilityCode != "LIFE_DETECTION" || ld.Priority != types.PriorityCritical {
		t.Errorf("LIFE_DETECTION requirement: %+v", ld)
	}
	if len(ld.ProvidedBy) != 1 || ld.ProvidedBy[0] != "RESCUE_TEAM" {
		t.Errorf("ProvidedBy = %v", ld.ProvidedBy)
	}
	// STRUCTURAL_RESCUE not in the KG mapping answer: builtin fallback.
	for _, req := range result.CapabilityRequirements {
		if req.CapabilityCode == "STRUCTURAL_RESCUE" && len(req.ProvidedBy) == 0 {
			t.Error("STRUCTURAL_RESCUE should get builtin providers")
		}
	}
}

func TestApplyEmptyKGFallsBackToDefaults(t *testing.T) {
	kg := &mockRuleSource{}
	result, err := NewReasoner(kg).Apply(context.Background(), collapsedQuake())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !result.UsedDefaultRules {
		t.Fatal("should have used default rules")
	}
	if len(result.MatchedRules) == 0 {
		t.Fatal("defaults should match a collapsed earthquake")
	}
	if !strings.HasPrefix(result.MatchedRules[0].RuleID, "DEFAULT-EQ-") {
		t.Errorf("rule id = %s, want DEFAULT-EQ- prefix", result.MatchedRules[0].RuleID)
	}

	caps := make(map[string]bool)
	for _, req := range result.CapabilityRequirements {
		caps[req.CapabilityCode] = true
	}
	for _, want := range []string{"LIFE_DETECTION", "STRUCTURAL_RESCUE", "MEDICAL_TRIAGE"} {
		if !caps[want] {
			t.Errorf("default requirements missing %s", want)
		}
	}
	if len(result.Warnings) != 0 {
		t.Errorf("empty KG is not a warning, got %v", result.Warnings)
	}
}

func TestApplyKGErrorDegradesWithWarning(t *testing.T) {
	kg := &mockRuleSource{
		rulesFunc: func(ctx context.Context, dt types.DisasterType) ([]types.RawTRRRule, error) {
			return nil, errors.New("bolt transport down")
		},
		mappingFunc: func(ctx context.Context, codes []string) ([]types.CapabilityMapping, error) {
			return nil, errors.New("bolt transport down")
		},
	}
	result, err := NewReasoner(kg).Apply(context.Background(), collapsedQuake())
	if err != nil {
		t.Fatalf("KG failure must not fail the stage: %v", err)
	}
	if !result.UsedDefaultRules {
		t.Error("should have fallen back to defaults")
	}
	if len(result.Warnings) != 2 {
		t.Errorf("warnings = %v, want rule and mapping degradations", result.Warnings)
	}
	// Builtin providers still annotate requirements.
	for _, req := range result.CapabilityRequirements {
		if len(req.ProvidedBy) == 0 {
			t.Errorf("requirement %s has no providers", req.CapabilityCode)
		}
	}
}

func TestApplyNoMatchIsValid(t *testing.T) {
	quiet := &types.ParsedDisaster{DisasterType: types.DisasterEarthquake, Severity: types.SeverityLow}
	kg := &mockRuleSource{
		rulesFunc: func(ctx context.Context, dt types.DisasterType) ([]types.RawTRRRule, error) {
			return []types.RawTRRRule{{
				RuleID: "TRR-EQ-009", DisasterType: types.DisasterEarthquake,
				TriggerConditions: []string{"magnitude >= 8.0"},
			}}, nil
		},
	}
	result, err := NewReasoner(kg).Apply(context.Background(), quiet)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(result.MatchedRules) != 0 || len(result.TriggeredTasks) != 0 {
		t.Errorf("nothing should match: %+v", result)
	}
}
