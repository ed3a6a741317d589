package allocation

import (
	"sort"

	"rescuecore/internal/config"
	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

// Algorithm names recorded in the trace.
const (
	AlgorithmNSGA2  = "nsga2"
	AlgorithmGreedy = "greedy"
)

// Result is the allocation stage output.
type Result struct {
	Solutions []types.AllocationSolution
	Algorithm string

	// Warnings note an optimizer fallback. Not errors: the run continues.
	Warnings []string
}

// Allocator builds alternative response plans from scored candidates.
// Stateless per call; the seed makes runs reproducible.
type Allocator struct {
	cfg config.AllocatorConfig
}

// NewAllocator creates an allocator with the given tuning.
func NewAllocator(cfg config.AllocatorConfig) *Allocator {
	if cfg.Population <= 0 {
		cfg.Population = 50
	}
	if cfg.Generations <= 0 {
		cfg.Generations = 50
	}
	if cfg.NSGAThreshold <= 0 {
		cfg.NSGAThreshold = 10
	}
	if cfg.MinCoverage <= 0 {
		cfg.MinCoverage = 0.70
	}
	return &Allocator{cfg: cfg}
}

// Allocate produces up to nAlternatives deduplicated solutions. Pools larger
// than the threshold run NSGA-II; smaller pools, and any optimizer failure,
// use the greedy builder. Empty requirements yield one empty solution with
// full coverage so downstream scoring stays defined.
func (a *Allocator) Allocate(candidates []types.ResourceCandidate, required []string, nAlternatives int) *Result {
	timer := logging.StartTimer(logging.CategoryAllocation, "allocate")
	defer timer.Stop()

	if nAlternatives <= 0 {
		nAlternatives = types.DefaultNAlternatives
	}

	if len(required) == 0 {
		empty := buildSolution(nil, nil, true)
		return &Result{
			Solutions: dedupSolutions([]types.AllocationSolution{empty}),
			Algorithm: AlgorithmGreedy,
		}
	}
	if len(candidates) == 0 {
		return &Result{Algorithm: AlgorithmGreedy}
	}

	result := &Result{Algorithm: AlgorithmGreedy}
	var solutions []types.AllocationSolution
	if len(candidates) > a.cfg.NSGAThreshold {
		selections, err := nsga2(candidates, required,
			a.cfg.Population, a.cfg.Generations, a.cfg.MinCoverage, a.cfg.Seed)
		if err == nil {
			for _, selected := range selections {
				solutions = append(solutions, buildSolution(selected, required, false))
			}
			result.Algorithm = AlgorithmNSGA2
		} else {
			msg := "optimization produced no feasible solution, using greedy fallback"
			logging.AllocationWarn("%s: %v", msg, err)
			result.Warnings = append(result.Warnings, msg)
		}
	}
	if len(solutions) == 0 {
		solutions = greedyAllocate(candidates, required)
	}

	// Best coverage first; ties by speed then team economy.
	sort.SliceStable(solutions, func(i, j int) bool {
		if solutions[i].CoverageRate != solutions[j].CoverageRate {
			return solutions[i].CoverageRate > solutions[j].CoverageRate
		}
		if solutions[i].ResponseTimeMin != solutions[j].ResponseTimeMin {
			return solutions[i].ResponseTimeMin < solutions[j].ResponseTimeMin
		}
		return solutions[i].TeamsCount < solutions[j].TeamsCount
	})

	solutions = dedupSolutions(solutions)
	if len(solutions) > nAlternatives {
		solutions = solutions[:nAlternatives]
	}
	result.Solutions = solutions

	logging.Allocation("%s produced %d solutions from %d candidates",
		result.Algorithm, len(solutions), len(candidates))
	return result
}
