package evaluation

import (
	"fmt"

	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

// Catastrophe-mode constants.
const (
	combinedSchemeID = "SOL-COMBINED"

	// combineTopN bounds how many top-coverage solutions merge into the
	// emergency plan.
	combineTopN = 3

	// personsPerResponder is the assumed rescue capacity multiplier; every
	// team counts for at least capacityFloor persons.
	personsPerResponder = 2
	capacityFloor       = 5
)

// Reinforcement levels by combined coverage.
const (
	ReinforcementNational   = "national"
	ReinforcementProvincial = "provincial"
	ReinforcementMunicipal  = "municipal"
)

// engageCatastrophe builds the combined emergency solution when every
// solution was vetoed: the union of the top-coverage solutions' teams,
// rescored with the same 5-D formula and annotated with the capacity gap and
// a reinforcement level. The combined plan is always recommended so the
// operator has something actionable.
func (e *Evaluator) engageCatastrophe(in ScoreInput, weights types.Weights, caps map[string][]string, result *ScoreResult) {
	combined := combineSolutions(in.Solutions, in.Required, caps)
	if combined == nil {
		logging.EvaluationWarn("catastrophe mode found no teams to combine")
		return
	}

	result.CatastropheMode = true
	result.Warnings = append(result.Warnings,
		"no solution passed the hard rules, catastrophe mode engaged")
	logging.EvaluationWarn("catastrophe mode: combining %d teams at %.0f%% coverage",
		combined.TeamsCount, combined.CoverageRate*100)

	soft := e.scoreDimensions(*combined, in, caps)
	score := types.SchemeScore{
		SchemeID:        combined.SolutionID,
		HardRulePassed:  false,
		SoftRuleScores:  soft,
		WeightedScore:   weighted(soft, weights),
		Rank:            1,
		CatastropheMode: true,
	}

	trapped := 0
	if in.Parsed != nil {
		trapped = in.Parsed.EstimatedTrapped
	}
	capacity := rescueCapacity(combined.Allocations, in.Candidates)
	if gap := trapped - capacity; gap > 0 {
		score.CapacityGap = gap
		score.CapacityWarning = fmt.Sprintf(
			"estimated %d trapped exceeds combined rescue capacity %d by %d persons",
			trapped, capacity, gap)
	}

	// Escalation keys on how much of the estimated need the combined teams
	// can actually absorb; without a trapped estimate the capability
	// coverage stands in.
	covered := combined.CoverageRate
	if trapped > 0 {
		covered = float64(capacity) / float64(trapped)
	}
	level := reinforcementLevel(covered)
	score.RequiresReinforcement = true
	score.ReinforcementLevel = level
	score.ReinforcementMessage = fmt.Sprintf(
		"combined response covers %.0f%% of estimated need, %s reinforcement required",
		clamp01(covered)*100, level)

	result.SchemeScores = append(result.SchemeScores, score)
	result.Recommended = combined
}

// combineSolutions merges the top-coverage solutions into one, deduplicating
// teams by resource id and recomputing the headline metrics from the merged
// team set. Returns nil when there are no allocations to merge.
func combineSolutions(solutions []types.AllocationSolution, required []string, caps map[string][]string) *types.AllocationSolution {
	// Top coverage first without disturbing the caller's slice.
	ordered := append([]types.AllocationSolution(nil), solutions...)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].CoverageRate > ordered[i].CoverageRate {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	if len(ordered) > combineTopN {
		ordered = ordered[:combineTopN]
	}

	combined := &types.AllocationSolution{SolutionID: combinedSchemeID}
	seen := make(map[string]bool)
	var scoreSum float64
	for _, solution := range ordered {
		for _, a := range solution.Allocations {
			if seen[a.ResourceID] {
				continue
			}
			seen[a.ResourceID] = true
			combined.Allocations = append(combined.Allocations, a)
			scoreSum += a.MatchScore
			if a.ETAMinutes > combined.ResponseTimeMin {
				combined.ResponseTimeMin = a.ETAMinutes
			}
		}
	}
	if len(combined.Allocations) == 0 {
		return nil
	}

	covered := make(map[string]bool)
	requiredSet := make(map[string]bool, len(required))
	for _, code := range required {
		requiredSet[code] = true
	}
	for _, a := range combined.Allocations {
		for _, cap := range caps[a.ResourceID] {
			if requiredSet[cap] {
				covered[cap] = true
			}
		}
	}
	combined.CoverageRate = 1.0
	if len(required) > 0 {
		combined.CoverageRate = float64(len(covered)) / float64(len(required))
	}
	combined.RiskLevel = 1 - combined.CoverageRate
	combined.TeamsCount = len(combined.Allocations)
	combined.TotalScore = scoreSum / float64(combined.TeamsCount)
	for _, code := range required {
		if !covered[code] {
			combined.UncoveredCapabilities = append(combined.UncoveredCapabilities, code)
		}
	}
	return combined
}

// rescueCapacity sums per-team capacity: personnel times the responder
// multiplier, floored per team.
func rescueCapacity(allocations []types.Allocation, candidates []types.ResourceCandidate) int {
	personnel := make(map[string]int, len(candidates))
	for _, c := range candidates {
		personnel[c.ResourceID] = c.Personnel
	}
	total := 0
	for _, a := range allocations {
		capacity := personnel[a.ResourceID] * personsPerResponder
		if capacity < capacityFloor {
			capacity = capacityFloor
		}
		total += capacity
	}
	return total
}

// reinforcementLevel maps the covered fraction of the estimated need to the
// escalation tier.
func reinforcementLevel(covered float64) string {
	switch {
	case covered < 0.30:
		return ReinforcementNational
	case covered < 0.50:
		return ReinforcementProvincial
	default:
		return ReinforcementMunicipal
	}
}
