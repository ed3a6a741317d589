// Package evaluation filters allocation solutions through configured veto
// rules, scores survivors on five weighted dimensions, picks a
// recommendation, and renders an explanation. When every solution is vetoed
// it degrades to catastrophe mode instead of returning nothing.
package evaluation

import (
	"fmt"

	"rescuecore/internal/config"
	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

// HardFilterResult is the veto-stage output.
type HardFilterResult struct {
	Passing []types.AllocationSolution
	// Violations lists the failed-rule messages per solution id. Solutions
	// with no entry passed every rule.
	Violations map[string][]string
}

// FilterHard applies each configured hard rule to each solution. Rules veto;
// they never modify a solution.
func (e *Evaluator) FilterHard(solutions []types.AllocationSolution, parsed *types.ParsedDisaster) *HardFilterResult {
	result := &HardFilterResult{Violations: make(map[string][]string)}
	rules := e.cfg.HardRules()

	for _, solution := range solutions {
		var violations []string
		for _, rule := range rules {
			if msg := checkHardRule(rule, solution); msg != "" {
				violations = append(violations, msg)
			}
		}
		if len(violations) == 0 {
			result.Passing = append(result.Passing, solution)
		} else {
			result.Violations[solution.SolutionID] = violations
		}
	}

	logging.Evaluation("hard rules: %d of %d solutions passed", len(result.Passing), len(solutions))
	return result
}

// checkHardRule evaluates one veto predicate, returning the violation
// message or "" when the rule holds. Unknown kinds are rejected at config
// load; reaching one here means the config changed underneath us, so pass.
func checkHardRule(rule config.HardRuleConfig, s types.AllocationSolution) string {
	var holds bool
	switch rule.Kind {
	case "min_teams":
		holds = float64(s.TeamsCount) >= rule.Threshold
	case "max_response_time":
		holds = s.ResponseTimeMin <= rule.Threshold
	case "min_coverage":
		holds = s.CoverageRate >= rule.Threshold
	default:
		return ""
	}
	if holds {
		return ""
	}
	return fmt.Sprintf("%s: %s", rule.ID, rule.Message)
}
