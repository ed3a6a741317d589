package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"rescuecore/internal/kg"
	"rescuecore/internal/registry"
	"rescuecore/internal/types"
)

// Fixture collaborators: deterministic in-memory stand-ins for the LLM, the
// case store, and the team registry. They back the --fixtures CLI mode and
// the end-to-end tests, where runs must be reproducible and offline.

// FixtureLLM answers parse calls with a canned disaster reading and explain
// calls with a canned structured explanation.
type FixtureLLM struct {
	Disaster types.ParsedDisaster
	// Err, when set, fails every call.
	Err error
}

func (f *FixtureLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *FixtureLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	if strings.Contains(systemPrompt, "Extract structured disaster facts") {
		data, err := json.Marshal(f.Disaster)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return `{
		"summary": "Deploy the selected teams immediately.",
		"situation_assessment": "Severe event with trapped persons likely.",
		"selection_reason": "Fastest plan with full capability coverage.",
		"key_advantages": ["shortest arrival time", "all required capabilities covered"],
		"resource_deployment": ["stage heavy equipment at the perimeter"],
		"timeline": ["first team on scene within the golden window"],
		"coordination_points": ["joint command with municipal fire service"],
		"potential_risks": ["aftershocks", "road damage on approach"],
		"mitigation_measures": ["route reconnaissance before convoy departure"],
		"execution_suggestions": ["rotate crews every 4 hours"],
		"commander_notes": "Escalate if coverage degrades."
	}`, nil
}

// FixtureTeams is an in-memory team source with registry query semantics:
// standby filter, radius filter, distance-then-level ordering, row cap.
type FixtureTeams struct {
	Teams []types.Team
	// Err, when set, fails every query.
	Err error
}

func (f *FixtureTeams) QueryTeams(ctx context.Context, eventLat, eventLng, maxDistanceKM float64, maxTeams int) ([]types.Team, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	var teams []types.Team
	for _, t := range f.Teams {
		if t.Status != registry.StatusStandby {
			continue
		}
		t.ResourceType = registry.ResourceTypeFor(t.TeamType)
		t.DistanceM = registry.HaversineM(eventLat, eventLng, t.BaseLat, t.BaseLng)
		if t.DistanceM <= maxDistanceKM*1000 {
			teams = append(teams, t)
		}
	}
	sort.SliceStable(teams, func(i, j int) bool {
		if teams[i].DistanceM != teams[j].DistanceM {
			return teams[i].DistanceM < teams[j].DistanceM
		}
		return teams[i].CapabilityLevel > teams[j].CapabilityLevel
	})
	if maxTeams > 0 && len(teams) > maxTeams {
		teams = teams[:maxTeams]
	}
	return teams, nil
}

// FixtureCases is a static case searcher.
type FixtureCases struct {
	Cases []types.SimilarCase
	Err   error
}

func (f *FixtureCases) SearchSimilarCases(ctx context.Context, queryText, disasterTypeHint string, topK int) ([]types.SimilarCase, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if topK > 0 && len(f.Cases) > topK {
		return f.Cases[:topK], nil
	}
	return f.Cases, nil
}

// FixtureKnowledgeGraph builds an in-memory knowledge graph loaded with the
// built-in rule set.
func FixtureKnowledgeGraph(timeout time.Duration) (*kg.KnowledgeGraph, error) {
	graph, err := kg.New(timeout)
	if err != nil {
		return nil, err
	}
	if err := graph.LoadDefaults(); err != nil {
		return nil, err
	}
	return graph, nil
}

// FixtureDeps bundles a complete offline collaborator set around an event
// location: a severe earthquake reading, two historical cases, and a ring of
// capable standby teams.
func FixtureDeps(eventLat, eventLng float64) (Deps, error) {
	graph, err := FixtureKnowledgeGraph(10 * time.Second)
	if err != nil {
		return Deps{}, err
	}
	return Deps{
		LLM: &FixtureLLM{
			Disaster: types.ParsedDisaster{
				DisasterType:        types.DisasterEarthquake,
				Severity:            types.SeverityCritical,
				Magnitude:           7.0,
				DepthKM:             14,
				HasBuildingCollapse: true,
				HasTrappedPersons:   true,
				EstimatedTrapped:    120,
				AffectedPopulation:  30000,
			},
		},
		Cases: &FixtureCases{
			Cases: []types.SimilarCase{
				{
					CaseID: "CASE-2008-WENCHUAN", DisasterType: "earthquake",
					Summary:         "M8.0 earthquake with mass building collapse",
					SimilarityScore: 0.82,
					Lessons:         []string{"road access fails in the first 24h"},
					BestPractices:   []string{"stage heavy equipment outside the damage zone"},
				},
				{
					CaseID: "CASE-2013-LUSHAN", DisasterType: "earthquake",
					Summary:         "M7.0 earthquake in mountainous terrain",
					SimilarityScore: 0.71,
				},
			},
		},
		Rules: graph,
		Teams: &FixtureTeams{Teams: FixtureTeamRing(eventLat, eventLng)},
	}, nil
}

// FixtureTeamRing places capable standby teams at increasing distances from
// the event so every default capability requirement is coverable.
func FixtureTeamRing(lat, lng float64) []types.Team {
	specs := []struct {
		teamType string
		dLat     float64
		dLng     float64
		level    int
		caps     []string
	}{
		{"search_rescue", 0.10, 0.05, 5, []string{"LIFE_DETECTION", "STRUCTURAL_RESCUE"}},
		{"medical", 0.15, -0.10, 4, []string{"MEDICAL_TRIAGE"}},
		{"fire_rescue", -0.20, 0.15, 4, []string{"FIRE_SUPPRESSION", "STRUCTURAL_RESCUE"}},
		{"engineering", 0.30, 0.20, 3, []string{"HEAVY_EQUIPMENT", "STRUCTURAL_RESCUE"}},
		{"search_rescue", -0.35, -0.25, 3, []string{"LIFE_DETECTION", "EMERGENCY_COMMS"}},
		{"hazmat", 0.45, -0.30, 4, []string{"CHEMICAL_DETECTION", "DECONTAMINATION"}},
		{"flood_rescue", -0.50, 0.40, 3, []string{"WATER_RESCUE", "BOAT_OPERATIONS"}},
		{"medical", 0.60, 0.45, 5, []string{"MEDICAL_TRIAGE", "EMERGENCY_COMMS"}},
		{"search_rescue", -0.65, -0.50, 2, []string{"STRUCTURAL_RESCUE"}},
		{"aviation", 0.75, 0.55, 4, []string{"EMERGENCY_COMMS", "LIFE_DETECTION"}},
		{"search_rescue", 0.85, -0.60, 3, []string{"LIFE_DETECTION", "MEDICAL_TRIAGE"}},
		{"engineering", -0.90, 0.65, 2, []string{"HEAVY_EQUIPMENT"}},
	}

	teams := make([]types.Team, 0, len(specs))
	for i, spec := range specs {
		teams = append(teams, types.Team{
			ID:                  fmt.Sprintf("FIX-%03d", i+1),
			Name:                fmt.Sprintf("fixture %s %d", spec.teamType, i+1),
			TeamType:            spec.teamType,
			BaseLat:             lat + spec.dLat,
			BaseLng:             lng + spec.dLng,
			TotalPersonnel:      40 + 10*spec.level,
			AvailablePersonnel:  30 + 10*spec.level,
			CapabilityLevel:     spec.level,
			ResponseTimeMinutes: 15 + 5*i,
			Status:              registry.StatusStandby,
			Capabilities:        spec.caps,
		})
	}
	return teams
}
