package registry

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"rescuecore/internal/types"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "teams.db"), 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func seedTeams(t *testing.T, r *Registry, teams ...types.Team) {
	t.Helper()
	for _, team := range teams {
		if team.Status == "" {
			team.Status = StatusStandby
		}
		if err := r.UpsertTeam(context.Background(), team); err != nil {
			t.Fatalf("UpsertTeam(%s) failed: %v", team.ID, err)
		}
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Chengdu to the Wenchuan epicenter is roughly 80 km.
	d := HaversineM(30.67, 104.06, 31.0, 103.4) / 1000
	if d < 70 || d > 95 {
		t.Errorf("distance = %.1f km, want ~80 km", d)
	}
	if HaversineM(31.68, 103.85, 31.68, 103.85) != 0 {
		t.Error("distance to self should be zero")
	}
}

func TestQueryTeamsFiltersAndOrders(t *testing.T) {
	r := openTestRegistry(t)
	// Event at (31.68, 103.85). 0.1 degree of latitude is ~11 km.
	seedTeams(t, r,
		types.Team{ID: "near-l3", Name: "Near L3", TeamType: "fire_rescue", BaseLat: 31.70, BaseLng: 103.85, CapabilityLevel: 3, Capabilities: []string{"FIRE_SUPPRESSION"}},
		types.Team{ID: "near-l5", Name: "Near L5", TeamType: "search_rescue", BaseLat: 31.70, BaseLng: 103.85, CapabilityLevel: 5, Capabilities: []string{"LIFE_DETECTION"}},
		types.Team{ID: "far", Name: "Far", TeamType: "medical", BaseLat: 32.60, BaseLng: 103.85, CapabilityLevel: 4, Capabilities: []string{"MEDICAL_TRIAGE"}},
		types.Team{ID: "busy", Name: "Busy", TeamType: "medical", BaseLat: 31.69, BaseLng: 103.85, CapabilityLevel: 5, Status: "deployed", Capabilities: []string{"MEDICAL_TRIAGE"}},
	)

	teams, err := r.QueryTeams(context.Background(), 31.68, 103.85, 50, 10)
	if err != nil {
		t.Fatalf("QueryTeams failed: %v", err)
	}
	if len(teams) != 2 {
		t.Fatalf("got %d teams, want 2 (far and deployed excluded)", len(teams))
	}
	// Equal distance: higher capability level first.
	if teams[0].ID != "near-l5" || teams[1].ID != "near-l3" {
		t.Errorf("order = [%s %s], want [near-l5 near-l3]", teams[0].ID, teams[1].ID)
	}
	if teams[0].ResourceType != "RESCUE_TEAM" {
		t.Errorf("resource type = %s, want RESCUE_TEAM", teams[0].ResourceType)
	}
	wantM := HaversineM(31.68, 103.85, 31.70, 103.85)
	if math.Abs(teams[0].DistanceM-wantM) > 1 {
		t.Errorf("distance = %.0f m, want %.0f m", teams[0].DistanceM, wantM)
	}
}

func TestQueryTeamsCapsRows(t *testing.T) {
	r := openTestRegistry(t)
	seedTeams(t, r,
		types.Team{ID: "a", Name: "A", TeamType: "medical", BaseLat: 31.69, BaseLng: 103.85, CapabilityLevel: 2},
		types.Team{ID: "b", Name: "B", TeamType: "medical", BaseLat: 31.70, BaseLng: 103.85, CapabilityLevel: 2},
		types.Team{ID: "c", Name: "C", TeamType: "medical", BaseLat: 31.71, BaseLng: 103.85, CapabilityLevel: 2},
	)

	teams, err := r.QueryTeams(context.Background(), 31.68, 103.85, 100, 2)
	if err != nil {
		t.Fatalf("QueryTeams failed: %v", err)
	}
	if len(teams) != 2 {
		t.Fatalf("got %d teams, want 2", len(teams))
	}
	if teams[0].ID != "a" || teams[1].ID != "b" {
		t.Errorf("cap should keep nearest rows, got [%s %s]", teams[0].ID, teams[1].ID)
	}
}

func TestUpsertTeamIdempotent(t *testing.T) {
	r := openTestRegistry(t)
	team := types.Team{ID: "dup", Name: "Dup", TeamType: "medical", BaseLat: 31.69, BaseLng: 103.85, CapabilityLevel: 3, Status: StatusStandby}
	seedTeams(t, r, team, team)

	n, err := r.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1 after duplicate upsert", n)
	}
}

func TestResourceTypeFor(t *testing.T) {
	cases := map[string]string{
		"fire_rescue":   "FIRE_TEAM",
		"medical":       "MEDICAL_TEAM",
		"search_rescue": "RESCUE_TEAM",
		"hazmat":        "HAZMAT_TEAM",
		"volunteer":     "RESCUE_TEAM",
	}
	for in, want := range cases {
		if got := ResourceTypeFor(in); got != want {
			t.Errorf("ResourceTypeFor(%s) = %s, want %s", in, got, want)
		}
	}
}
