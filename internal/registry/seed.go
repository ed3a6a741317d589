package registry

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

// seedFile is the YAML shape of a team seed document.
type seedFile struct {
	Teams []seedTeam `yaml:"teams"`
}

type seedTeam struct {
	ID                  string   `yaml:"id"`
	Name                string   `yaml:"name"`
	TeamType            string   `yaml:"team_type"`
	BaseLat             float64  `yaml:"base_lat"`
	BaseLng             float64  `yaml:"base_lng"`
	BaseAddress         string   `yaml:"base_address"`
	TotalPersonnel      int      `yaml:"total_personnel"`
	AvailablePersonnel  int      `yaml:"available_personnel"`
	CapabilityLevel     int      `yaml:"capability_level"`
	ResponseTimeMinutes int      `yaml:"response_time_minutes"`
	Status              string   `yaml:"status"`
	Capabilities        []string `yaml:"capabilities"`
}

// SeedFromFile loads a YAML team document into the registry. Existing rows
// with the same id are replaced. Returns the number of teams loaded.
func (r *Registry) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var doc seedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for _, st := range doc.Teams {
		team := types.Team{
			ID:                  st.ID,
			Name:                st.Name,
			TeamType:            st.TeamType,
			BaseLat:             st.BaseLat,
			BaseLng:             st.BaseLng,
			BaseAddress:         st.BaseAddress,
			TotalPersonnel:      st.TotalPersonnel,
			AvailablePersonnel:  st.AvailablePersonnel,
			CapabilityLevel:     st.CapabilityLevel,
			ResponseTimeMinutes: st.ResponseTimeMinutes,
			Status:              st.Status,
			Capabilities:        st.Capabilities,
		}
		if team.ID == "" {
			team.ID = "TEAM-" + uuid.New().String()[:8]
		}
		if team.Status == "" {
			team.Status = StatusStandby
		}
		if team.CapabilityLevel < 1 {
			team.CapabilityLevel = 1
		} else if team.CapabilityLevel > 5 {
			team.CapabilityLevel = 5
		}
		if err := r.UpsertTeam(ctx, team); err != nil {
			return 0, err
		}
	}

	logging.Registry("seeded %d teams from %s", len(doc.Teams), path)
	return len(doc.Teams), nil
}
