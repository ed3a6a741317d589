// Package allocation turns scored candidates into complete response plans.
// Small candidate pools go through a deterministic greedy builder; larger
// pools run a seeded NSGA-II over the selection space with the greedy builder
// as fallback.
package allocation

import (
	"fmt"

	"rescuecore/internal/types"
)

// buildSolution assembles a solution from the selected candidates in
// selection order. Each candidate is assigned the required capabilities it
// covers beyond the earlier selections; when greedyAssign is set an empty
// delta falls back to the candidate's full required intersection.
func buildSolution(selected []types.ResourceCandidate, required []string, greedyAssign bool) types.AllocationSolution {
	requiredSet := make(map[string]bool, len(required))
	for _, code := range required {
		requiredSet[code] = true
	}

	covered := make(map[string]bool)
	var solution types.AllocationSolution
	var scoreSum float64
	for _, c := range selected {
		var intersection, delta []string
		for _, cap := range c.Capabilities {
			if !requiredSet[cap] {
				continue
			}
			intersection = append(intersection, cap)
			if !covered[cap] {
				delta = append(delta, cap)
			}
		}

		assigned := delta
		if len(assigned) == 0 && greedyAssign {
			assigned = intersection
		}
		for _, cap := range delta {
			covered[cap] = true
		}

		if c.ETAMinutes > solution.ResponseTimeMin {
			solution.ResponseTimeMin = c.ETAMinutes
		}
		scoreSum += c.MatchScore
		solution.Allocations = append(solution.Allocations, types.Allocation{
			ResourceID:           c.ResourceID,
			ResourceName:         c.ResourceName,
			AssignedCapabilities: assigned,
			DistanceKM:           c.DistanceKM,
			ETAMinutes:           c.ETAMinutes,
			MatchScore:           c.MatchScore,
		})
	}

	if len(required) == 0 {
		solution.CoverageRate = 1.0
	} else {
		solution.CoverageRate = float64(len(covered)) / float64(len(required))
	}
	solution.RiskLevel = 1 - solution.CoverageRate
	solution.TeamsCount = len(solution.Allocations)
	if solution.TeamsCount > 0 {
		solution.TotalScore = scoreSum / float64(solution.TeamsCount)
	}
	for _, code := range required {
		if !covered[code] {
			solution.UncoveredCapabilities = append(solution.UncoveredCapabilities, code)
		}
	}
	return solution
}

// dedupSolutions removes solutions selecting the same team set, keeping the
// first occurrence, and assigns sequential solution ids.
func dedupSolutions(solutions []types.AllocationSolution) []types.AllocationSolution {
	seen := make(map[string]bool, len(solutions))
	out := make([]types.AllocationSolution, 0, len(solutions))
	for _, s := range solutions {
		key := s.ResourceIDKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		s.SolutionID = fmt.Sprintf("SOL-%d", len(out)+1)
		out = append(out, s)
	}
	return out
}
