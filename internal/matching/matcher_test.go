package matching

import (
	"context"
	"errors"
	"math"
	"testing"

	"rescuecore/internal/config"
	"rescuecore/internal/types"
)

// mockTeamSource implements TeamSource with a function field.
type mockTeamSource struct {
	queryFunc func(ctx context.Context, lat, lng, radiusKM float64, maxTeams int) ([]types.Team, error)
	calls     []float64 // radii in query order
}

func (m *mockTeamSource) QueryTeams(ctx context.Context, lat, lng, radiusKM float64, maxTeams int) ([]types.Team, error) {
	m.calls = append(m.calls, radiusKM)
	if m.queryFunc != nil {
		return m.queryFunc(ctx, lat, lng, radiusKM, maxTeams)
	}
	return nil, nil
}

func matcherConfig() config.MatcherConfig {
	return config.MatcherConfig{AverageSpeedKMH: 40, RadiusStepKM: 50, MaxRadiusKM: 300}
}

func requirements(codes ...string) []types.CapabilityRequirement {
	reqs := make([]types.CapabilityRequirement, 0, len(codes))
	for _, c := range codes {
		reqs = append(reqs, types.CapabilityRequirement{CapabilityCode: c})
	}
	return reqs
}

func team(id string, distKM float64, level int, caps ...string) types.Team {
	return types.Team{
		ID: id, Name: "team " + id, TeamType: "search_rescue",
		ResourceType: "RESCUE_TEAM", CapabilityLevel: level,
		AvailablePersonnel: 30, DistanceM: distKM * 1000, Capabilities: caps,
	}
}

func quake() *types.ParsedDisaster {
	return &types.ParsedDisaster{
		DisasterType: types.DisasterEarthquake,
		Severity:     types.SeverityHigh,
	}
}

func TestDeriveScale(t *testing.T) {
	tests := []struct {
		name   string
		parsed types.ParsedDisaster
		want   Scale
		cap    int
	}{
		{"quake mass trapped", types.ParsedDisaster{DisasterType: types.DisasterEarthquake, EstimatedTrapped: 150}, ScaleCatastrophic, 500},
		{"critical mass population", types.ParsedDisaster{DisasterType: types.DisasterFlood, Severity: types.SeverityCritical, AffectedPopulation: 20000}, ScaleCatastrophic, 500},
		{"quake moderate", types.ParsedDisaster{DisasterType: types.DisasterEarthquake, EstimatedTrapped: 20}, ScaleLarge, 200},
		{"many trapped", types.ParsedDisaster{DisasterType: types.DisasterFire, Severity: types.SeverityMedium, EstimatedTrapped: 60}, ScaleLarge, 200},
		{"some trapped", types.ParsedDisaster{DisasterType: types.DisasterFire, Severity: types.SeverityMedium, EstimatedTrapped: 15}, ScaleMedium, 100},
		{"high severity", types.ParsedDisaster{DisasterType: types.DisasterFire, Severity: types.SeverityHigh}, ScaleMedium, 100},
		{"low severity", types.ParsedDisaster{DisasterType: types.DisasterFire, Severity: types.SeverityLow}, ScaleSmall, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveScale(&tt.parsed)
			if got != tt.want {
				t.Errorf("scale = %s, want %s", got, tt.want)
			}
			if got.TeamCap() != tt.cap {
				t.Errorf("cap = %d, want %d", got.TeamCap(), tt.cap)
			}
		})
	}
}

func TestMatchScoresAndSorts(t *testing.T) {
	src := &mockTeamSource{
		queryFunc: func(ctx context.Context, lat, lng, radiusKM float64, maxTeams int) ([]types.Team, error) {
			return []types.Team{
				team("T-1", 40, 3, "LIFE_DETECTION"),
				team("T-2", 20, 5, "LIFE_DETECTION", "STRUCTURAL_RESCUE"),
				team("T-3", 10, 4, "LOGISTICS"), // no required capability
			}, nil
		},
	}
	m := NewMatcher(src, matcherConfig())
	result, err := m.Match(context.Background(), 31.68, 103.85, quake(),
		requirements("LIFE_DETECTION", "STRUCTURAL_RESCUE"), types.Constraints{MaxResponseTimeHours: 2})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if len(result.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2 (empty intersection discarded)", len(result.Candidates))
	}
	best := result.Candidates[0]
	if best.ResourceID != "T-2" {
		t.Fatalf("best candidate = %s, want T-2", best.ResourceID)
	}

	// T-2: capability 2/2, distance 1-20/80, level 5/5.
	wantScore := 0.50*1.0 + 0.30*(1-20.0/80) + 0.20*1.0
	if math.Abs(best.MatchScore-wantScore) > 1e-9 {
		t.Errorf("match_score = %.6f, want %.6f", best.MatchScore, wantScore)
	}
	if math.Abs(best.ETAMinutes-30) > 1e-9 {
		t.Errorf("eta = %.2f, want 30 (20 km at 40 km/h)", best.ETAMinutes)
	}
	if result.SearchExpanded {
		t.Error("full coverage on the first query must not expand")
	}
	if result.InitialRadiusKM != 80 || result.FinalRadiusKM != 80 {
		t.Errorf("radii = %.0f/%.0f, want 80/80", result.InitialRadiusKM, result.FinalRadiusKM)
	}
}

func TestMatchExpandsRadiusUntilCovered(t *testing.T) {
	src := &mockTeamSource{}
	src.queryFunc = func(ctx context.Context, lat, lng, radiusKM float64, maxTeams int) ([]types.Team, error) {
		if radiusKM < 180 {
			return nil, nil
		}
		return []types.Team{
			team("T-1", 150, 4, "LIFE_DETECTION"),
			team("T-2", 170, 3, "STRUCTURAL_RESCUE"),
		}, nil
	}

	m := NewMatcher(src, matcherConfig())
	result, err := m.Match(context.Background(), 31.68, 103.85, quake(),
		requirements("LIFE_DETECTION", "STRUCTURAL_RESCUE"), types.Constraints{MaxResponseTimeHours: 2})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if !result.SearchExpanded {
		t.Error("expansion must be recorded")
	}
	if result.InitialRadiusKM != 80 {
		t.Errorf("initial radius = %.0f, want 80", result.InitialRadiusKM)
	}
	if result.FinalRadiusKM != 180 {
		t.Errorf("final radius = %.0f, want 180", result.FinalRadiusKM)
	}
	// 80, 130, 180 in order.
	if len(src.calls) != 3 || src.calls[0] != 80 || src.calls[1] != 130 || src.calls[2] != 180 {
		t.Errorf("query radii = %v, want [80 130 180]", src.calls)
	}
	if len(result.Candidates) != 2 {
		t.Errorf("got %d candidates, want 2", len(result.Candidates))
	}
	if len(result.Warnings) != 0 {
		t.Errorf("covered search must not warn: %v", result.Warnings)
	}
}

func TestMatchIncompleteCoverageWarnsNotFails(t *testing.T) {
	src := &mockTeamSource{
		queryFunc: func(ctx context.Context, lat, lng, radiusKM float64, maxTeams int) ([]types.Team, error) {
			return []types.Team{team("T-1", 30, 3, "LIFE_DETECTION")}, nil
		},
	}
	m := NewMatcher(src, matcherConfig())
	result, err := m.Match(context.Background(), 31.68, 103.85, quake(),
		requirements("LIFE_DETECTION", "HEAVY_MACHINERY"), types.Constraints{MaxResponseTimeHours: 2})
	if err != nil {
		t.Fatalf("incomplete coverage must not fail: %v", err)
	}
	if result.FinalRadiusKM != 300 {
		t.Errorf("final radius = %.0f, want 300 (cap reached)", result.FinalRadiusKM)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one listing the missing capability", result.Warnings)
	}
	if len(result.Candidates) != 1 {
		t.Errorf("partial candidates must survive, got %d", len(result.Candidates))
	}
}

func TestMatchDeduplicatesTeams(t *testing.T) {
	src := &mockTeamSource{
		queryFunc: func(ctx context.Context, lat, lng, radiusKM float64, maxTeams int) ([]types.Team, error) {
			// Same team twice.
			return []types.Team{
				team("T-1", 30, 3, "LIFE_DETECTION"),
				team("T-1", 30, 3, "LIFE_DETECTION"),
			}, nil
		},
	}
	m := NewMatcher(src, matcherConfig())
	result, err := m.Match(context.Background(), 31.68, 103.85, quake(),
		requirements("LIFE_DETECTION"), types.Constraints{MaxResponseTimeHours: 2})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(result.Candidates) != 1 {
		t.Errorf("got %d candidates, want 1 after dedup", len(result.Candidates))
	}
}

func TestMatchEmptyRequirementsSkipsQuery(t *testing.T) {
	src := &mockTeamSource{}
	m := NewMatcher(src, matcherConfig())
	result, err := m.Match(context.Background(), 31.68, 103.85, quake(), nil, types.Constraints{})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(result.Candidates) != 0 || len(src.calls) != 0 {
		t.Errorf("empty requirements must not query: candidates=%d calls=%d",
			len(result.Candidates), len(src.calls))
	}
}

func TestMatchMaxTeamsOverridesScaleCap(t *testing.T) {
	var gotCap int
	src := &mockTeamSource{
		queryFunc: func(ctx context.Context, lat, lng, radiusKM float64, maxTeams int) ([]types.Team, error) {
			gotCap = maxTeams
			return []types.Team{team("T-1", 10, 3, "LIFE_DETECTION")}, nil
		},
	}
	m := NewMatcher(src, matcherConfig())
	_, err := m.Match(context.Background(), 31.68, 103.85, quake(),
		requirements("LIFE_DETECTION"), types.Constraints{MaxResponseTimeHours: 2, MaxTeams: 7})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if gotCap != 7 {
		t.Errorf("team cap = %d, want constraint override 7", gotCap)
	}
}

func TestMatchRegistryErrorAborts(t *testing.T) {
	src := &mockTeamSource{
		queryFunc: func(ctx context.Context, lat, lng, radiusKM float64, maxTeams int) ([]types.Team, error) {
			return nil, errors.New("database locked")
		},
	}
	m := NewMatcher(src, matcherConfig())
	if _, err := m.Match(context.Background(), 31.68, 103.85, quake(),
		requirements("LIFE_DETECTION"), types.Constraints{MaxResponseTimeHours: 2}); err == nil {
		t.Fatal("registry failure must abort the stage")
	}
}
