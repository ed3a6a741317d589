// Package core wires the stage packages into the decision pipeline and
// exposes the one entry point callers use: Analyze a request into an Output.
package core

import (
	"rescuecore/internal/allocation"
	"rescuecore/internal/evaluation"
	"rescuecore/internal/htn"
	"rescuecore/internal/matching"
	"rescuecore/internal/perception"
	"rescuecore/internal/reasoning"
	"rescuecore/internal/types"
)

// Stage names, in nominal execution order. generate_output always runs last.
const (
	StageUnderstand = "understand_disaster"
	StageEnhance    = "enhance_with_cases"
	StageQueryRules = "query_rules"
	StageApplyRules = "apply_rules"
	StageDecompose  = "htn_decompose"
	StageMatch      = "match_resources"
	StageOptimize   = "optimize_allocation"
	StageFilterHard = "filter_hard_rules"
	StageScoreSoft  = "score_soft_rules"
	StageExplain    = "explain_scheme"
	StageAssemble   = "generate_output"
)

// state is the per-request pipeline record. It never escapes the run.
type state struct {
	req         *types.Request
	constraints types.Constraints
	weights     *types.Weights

	lat, lng    float64
	hasLocation bool

	understanding *perception.Result
	ruleQuery     *reasoning.RuleQuery
	reasoning     *reasoning.Result
	decomposition *htn.Result
	matching      *matching.Result
	allocation    *allocation.Result
	hardFilter    *evaluation.HardFilterResult
	scores        *evaluation.ScoreResult
	explanation   *evaluation.Explanation

	trace  *types.Trace
	errors []string
}

func (s *state) parsed() *types.ParsedDisaster {
	if s.understanding == nil {
		return nil
	}
	return s.understanding.ParsedDisaster
}

func (s *state) fail(msg string) {
	s.errors = append(s.errors, msg)
}

// Routing predicates: each guards a short-circuit edge to assembly.

func (s *state) parseFailed() bool {
	return s.parsed() == nil
}

func (s *state) noRuleMatched() bool {
	return s.reasoning == nil || len(s.reasoning.MatchedRules) == 0
}

func (s *state) emptyTaskSequence() bool {
	return s.decomposition == nil || len(s.decomposition.TaskSequence) == 0
}

func (s *state) noCandidates() bool {
	if s.matching == nil {
		return true
	}
	// No requirements means the search was skipped, not that it came up
	// empty; the allocator handles that case.
	return len(s.matching.Candidates) == 0 && len(s.matching.RequiredCapabilities) > 0
}

func (s *state) noSolutions() bool {
	return s.allocation == nil || len(s.allocation.Solutions) == 0
}

func (s *state) noRecommendation() bool {
	return s.scores == nil || s.scores.Recommended == nil
}
