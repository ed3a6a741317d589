// Package matching finds real rescue teams for the capability requirements.
// It queries the team registry around the event location, expands the search
// radius until the requirements are covered or the cap is reached, and scores
// every eligible team into a ResourceCandidate.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"rescuecore/internal/config"
	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

// TeamSource answers the geospatial team query. The registry adapter is the
// production implementation.
type TeamSource interface {
	QueryTeams(ctx context.Context, eventLat, eventLng, maxDistanceKM float64, maxTeams int) ([]types.Team, error)
}

// Match-score component weights.
const (
	capabilityWeight = 0.50
	distanceWeight   = 0.30
	levelWeight      = 0.20
)

// Result is the matching stage output. Radius fields feed the trace.
type Result struct {
	Candidates           []types.ResourceCandidate
	RequiredCapabilities []string
	Scale                Scale

	InitialRadiusKM float64
	FinalRadiusKM   float64
	SearchExpanded  bool

	// Warnings list capabilities no candidate provides after the search
	// exhausted the maximum radius.
	Warnings []string
}

// Matcher scores teams against capability requirements. Stateless per call.
type Matcher struct {
	teams TeamSource
	cfg   config.MatcherConfig
}

// NewMatcher creates a matcher over a team source.
func NewMatcher(teams TeamSource, cfg config.MatcherConfig) *Matcher {
	if cfg.AverageSpeedKMH <= 0 {
		cfg.AverageSpeedKMH = 40
	}
	if cfg.RadiusStepKM <= 0 {
		cfg.RadiusStepKM = 50
	}
	if cfg.MaxRadiusKM <= 0 {
		cfg.MaxRadiusKM = 300
	}
	return &Matcher{teams: teams, cfg: cfg}
}

// Match queries the registry around the event, expanding the radius in fixed
// steps while required capabilities remain uncovered, and returns scored
// candidates sorted by match score. An empty requirement list short-circuits
// to an empty result. Registry errors abort the stage.
func (m *Matcher) Match(ctx context.Context, eventLat, eventLng float64, parsed *types.ParsedDisaster, requirements []types.CapabilityRequirement, constraints types.Constraints) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryMatching, "match")
	defer timer.Stop()

	result := &Result{Scale: DeriveScale(parsed)}
	for _, req := range requirements {
		result.RequiredCapabilities = append(result.RequiredCapabilities, req.CapabilityCode)
	}
	if len(result.RequiredCapabilities) == 0 {
		logging.MatchingWarn("no capability requirements, skipping team search")
		return result, nil
	}

	teamCap := result.Scale.TeamCap()
	if constraints.MaxTeams > 0 {
		teamCap = constraints.MaxTeams
	}

	required := make(map[string]bool, len(result.RequiredCapabilities))
	for _, code := range result.RequiredCapabilities {
		required[code] = true
	}

	radius := constraints.MaxResponseTimeHours * m.cfg.AverageSpeedKMH
	if radius <= 0 {
		radius = types.DefaultMaxResponseTimeHours * m.cfg.AverageSpeedKMH
	}
	if radius > m.cfg.MaxRadiusKM {
		radius = m.cfg.MaxRadiusKM
	}
	result.InitialRadiusKM = radius

	maxResponseHours := constraints.MaxResponseTimeHours
	if maxResponseHours <= 0 {
		maxResponseHours = types.DefaultMaxResponseTimeHours
	}

	var candidates []types.ResourceCandidate
	for {
		teams, err := m.teams.QueryTeams(ctx, eventLat, eventLng, radius, teamCap)
		if err != nil {
			return nil, fmt.Errorf("team query at %.0f km failed: %w", radius, err)
		}
		candidates = m.scoreTeams(teams, required, maxResponseHours)

		uncovered := uncoveredCapabilities(candidates, result.RequiredCapabilities)
		if len(uncovered) == 0 || radius >= m.cfg.MaxRadiusKM {
			if len(uncovered) > 0 {
				msg := fmt.Sprintf("no team provides %s within %.0f km",
					strings.Join(uncovered, ", "), radius)
				logging.MatchingWarn("%s", msg)
				result.Warnings = append(result.Warnings, msg)
			}
			break
		}

		radius += m.cfg.RadiusStepKM
		if radius > m.cfg.MaxRadiusKM {
			radius = m.cfg.MaxRadiusKM
		}
		result.SearchExpanded = true
		logging.Matching("coverage incomplete, expanding search to %.0f km", radius)
	}
	result.FinalRadiusKM = radius
	result.Candidates = candidates

	logging.Matching("matched %d candidates for %d requirements (scale %s, radius %.0f km)",
		len(candidates), len(result.RequiredCapabilities), result.Scale, radius)
	return result, nil
}

// scoreTeams converts registry rows into scored candidates. Teams providing
// none of the required capabilities are discarded; duplicate rows collapse to
// one candidate per team id.
func (m *Matcher) scoreTeams(teams []types.Team, required map[string]bool, maxResponseHours float64) []types.ResourceCandidate {
	maxDistanceKM := maxResponseHours * m.cfg.AverageSpeedKMH

	seen := make(map[string]bool, len(teams))
	var candidates []types.ResourceCandidate
	for _, team := range teams {
		if seen[team.ID] {
			continue
		}
		seen[team.ID] = true

		var matched []string
		for _, cap := range team.Capabilities {
			if required[cap] {
				matched = append(matched, cap)
			}
		}
		if len(matched) == 0 {
			continue
		}

		distanceKM := team.DistanceM / 1000
		capabilityScore := float64(len(matched)) / float64(len(required))
		distanceScore := 1 - distanceKM/maxDistanceKM
		if distanceScore < 0 {
			distanceScore = 0
		}
		levelScore := float64(team.CapabilityLevel) / 5

		candidates = append(candidates, types.ResourceCandidate{
			ResourceID:      team.ID,
			ResourceName:    team.Name,
			ResourceType:    team.ResourceType,
			Capabilities:    matched,
			DistanceKM:      distanceKM,
			ETAMinutes:      distanceKM / m.cfg.AverageSpeedKMH * 60,
			CapabilityLevel: team.CapabilityLevel,
			Personnel:       team.AvailablePersonnel,
			MatchScore: capabilityWeight*capabilityScore +
				distanceWeight*distanceScore +
				levelWeight*levelScore,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].MatchScore != candidates[j].MatchScore {
			return candidates[i].MatchScore > candidates[j].MatchScore
		}
		if candidates[i].DistanceKM != candidates[j].DistanceKM {
			return candidates[i].DistanceKM < candidates[j].DistanceKM
		}
		return candidates[i].ResourceID < candidates[j].ResourceID
	})
	return candidates
}

// uncoveredCapabilities returns the required codes no candidate provides, in
// requirement order.
func uncoveredCapabilities(candidates []types.ResourceCandidate, required []string) []string {
	covered := make(map[string]bool)
	for _, c := range candidates {
		for _, cap := range c.Capabilities {
			covered[cap] = true
		}
	}
	var missing []string
	for _, code := range required {
		if !covered[code] {
			missing = append(missing, code)
		}
	}
	return missing
}
