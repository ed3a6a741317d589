package allocation

import (
	"sort"

	"rescuecore/internal/types"
)

// greedyAllocate emits up to three solutions built from different candidate
// orderings: best match score first, nearest first, and highest availability
// (uniform after the standby filter, so it keeps the incoming order). Each
// pass selects a candidate only when it covers at least one still-uncovered
// required capability.
func greedyAllocate(candidates []types.ResourceCandidate, required []string) []types.AllocationSolution {
	if len(candidates) == 0 {
		return nil
	}

	byScore := append([]types.ResourceCandidate(nil), candidates...)
	sort.SliceStable(byScore, func(i, j int) bool {
		return byScore[i].MatchScore > byScore[j].MatchScore
	})

	byDistance := append([]types.ResourceCandidate(nil), candidates...)
	sort.SliceStable(byDistance, func(i, j int) bool {
		return byDistance[i].DistanceKM < byDistance[j].DistanceKM
	})

	byAvailability := append([]types.ResourceCandidate(nil), candidates...)

	var solutions []types.AllocationSolution
	for _, ordering := range [][]types.ResourceCandidate{byScore, byDistance, byAvailability} {
		selected := selectCovering(ordering, required)
		if len(selected) == 0 {
			continue
		}
		solutions = append(solutions, buildSolution(selected, required, true))
	}
	return solutions
}

// selectCovering walks the ordering and picks every candidate that adds a new
// required capability, stopping once the requirements are fully covered.
func selectCovering(ordering []types.ResourceCandidate, required []string) []types.ResourceCandidate {
	requiredSet := make(map[string]bool, len(required))
	for _, code := range required {
		requiredSet[code] = true
	}

	covered := make(map[string]bool)
	var selected []types.ResourceCandidate
	for _, c := range ordering {
		contributes := false
		for _, cap := range c.Capabilities {
			if requiredSet[cap] && !covered[cap] {
				contributes = true
				break
			}
		}
		if !contributes {
			continue
		}
		for _, cap := range c.Capabilities {
			if requiredSet[cap] {
				covered[cap] = true
			}
		}
		selected = append(selected, c)
		if len(covered) == len(requiredSet) {
			break
		}
	}
	return selected
}
