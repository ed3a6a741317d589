package evaluation

import (
	"sort"

	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

// goldenWindowMinutes normalizes the response-time dimension: arriving at or
// past this mark scores zero.
const goldenWindowMinutes = 120

// ScoreInput carries everything the soft-scoring stage reads.
type ScoreInput struct {
	Solutions    []types.AllocationSolution
	Passing      []types.AllocationSolution
	Violations   map[string][]string
	Candidates   []types.ResourceCandidate
	Required     []string
	SimilarCases []types.SimilarCase
	Parsed       *types.ParsedDisaster
	// WeightsOverride replaces the configured weights when set and valid.
	WeightsOverride *types.Weights
}

// ScoreResult is the soft-scoring stage output.
type ScoreResult struct {
	SchemeScores []types.SchemeScore
	Recommended  *types.AllocationSolution

	CatastropheMode bool
	Warnings        []string
}

// ScoreSoft scores hard-rule survivors on the five dimensions, ranks them,
// and selects the recommendation. When nothing survived it engages
// catastrophe mode over the vetoed solutions.
func (e *Evaluator) ScoreSoft(in ScoreInput) *ScoreResult {
	timer := logging.StartTimer(logging.CategoryEvaluation, "score")
	defer timer.Stop()

	result := &ScoreResult{}
	if len(in.Solutions) == 0 {
		return result
	}

	weights := e.weightsFor(in)
	caps := capabilityIndex(in.Candidates)

	if len(in.Passing) == 0 {
		e.engageCatastrophe(in, weights, caps, result)
	} else {
		scores := make([]types.SchemeScore, 0, len(in.Passing))
		for _, solution := range in.Passing {
			soft := e.scoreDimensions(solution, in, caps)
			scores = append(scores, types.SchemeScore{
				SchemeID:       solution.SolutionID,
				HardRulePassed: true,
				SoftRuleScores: soft,
				WeightedScore:  weighted(soft, weights),
			})
		}

		rankSchemes(scores, in.Passing)
		result.SchemeScores = scores
		top := findSolution(in.Passing, scores[0].SchemeID)
		result.Recommended = &top
	}

	// Vetoed solutions stay visible with their violations, unranked.
	for _, solution := range in.Solutions {
		if violations, vetoed := in.Violations[solution.SolutionID]; vetoed {
			result.SchemeScores = append(result.SchemeScores, types.SchemeScore{
				SchemeID:           solution.SolutionID,
				HardRulePassed:     false,
				HardRuleViolations: violations,
			})
		}
	}

	logging.Evaluation("scored %d schemes, recommendation %s",
		len(result.SchemeScores), recommendedID(result))
	return result
}

// weightsFor resolves the 5-D weights: request override first, then the
// per-disaster-type configuration.
func (e *Evaluator) weightsFor(in ScoreInput) types.Weights {
	if in.WeightsOverride != nil && !in.WeightsOverride.IsZero() && in.WeightsOverride.Valid() {
		return *in.WeightsOverride
	}
	disasterType := ""
	if in.Parsed != nil {
		disasterType = string(in.Parsed.DisasterType)
	}
	return e.cfg.EvaluationWeights(disasterType)
}

// scoreDimensions computes the five normalized dimensions for one solution.
func (e *Evaluator) scoreDimensions(s types.AllocationSolution, in ScoreInput, caps map[string][]string) types.SoftScores {
	soft := types.SoftScores{
		ResponseTime: clamp01(1 - s.ResponseTimeMin/goldenWindowMinutes),
		CoverageRate: clamp01(s.CoverageRate),
		Risk:         clamp01(1 - s.RiskLevel),
		Redundancy:   redundancyScore(s, in.Required, caps),
	}

	// Mean match score, boosted by historical-case similarity.
	if len(s.Allocations) > 0 {
		var sum float64
		for _, a := range s.Allocations {
			sum += a.MatchScore
		}
		success := sum / float64(len(s.Allocations))
		if len(in.SimilarCases) > 0 {
			var simSum float64
			for _, c := range in.SimilarCases {
				simSum += c.SimilarityScore
			}
			success *= 1 + 0.1*simSum/float64(len(in.SimilarCases))
		}
		soft.SuccessRate = clamp01(success)
	}
	return soft
}

// redundancyScore averages, over the required capabilities, how many teams
// in the solution cover each one beyond the first, clamped to [0,1].
func redundancyScore(s types.AllocationSolution, required []string, caps map[string][]string) float64 {
	if len(required) == 0 {
		return 0
	}
	counts := make(map[string]int, len(required))
	for _, a := range s.Allocations {
		for _, cap := range caps[a.ResourceID] {
			counts[cap]++
		}
	}
	var extra float64
	for _, code := range required {
		if counts[code] > 1 {
			extra += float64(counts[code] - 1)
		}
	}
	return clamp01(extra / float64(len(required)))
}

func weighted(s types.SoftScores, w types.Weights) float64 {
	return s.SuccessRate*w.SuccessRate +
		s.ResponseTime*w.ResponseTime +
		s.CoverageRate*w.CoverageRate +
		s.Risk*w.Risk +
		s.Redundancy*w.Redundancy
}

// rankSchemes orders the scores by weighted score descending, ties broken by
// coverage then scheme id, and assigns 1-based ranks in place.
func rankSchemes(scores []types.SchemeScore, solutions []types.AllocationSolution) {
	coverage := make(map[string]float64, len(solutions))
	for _, s := range solutions {
		coverage[s.SolutionID] = s.CoverageRate
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].WeightedScore != scores[j].WeightedScore {
			return scores[i].WeightedScore > scores[j].WeightedScore
		}
		ci, cj := coverage[scores[i].SchemeID], coverage[scores[j].SchemeID]
		if ci != cj {
			return ci > cj
		}
		return scores[i].SchemeID < scores[j].SchemeID
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}
}

// capabilityIndex maps resource ids to their matched capability codes.
func capabilityIndex(candidates []types.ResourceCandidate) map[string][]string {
	caps := make(map[string][]string, len(candidates))
	for _, c := range candidates {
		caps[c.ResourceID] = c.Capabilities
	}
	return caps
}

func findSolution(solutions []types.AllocationSolution, id string) types.AllocationSolution {
	for _, s := range solutions {
		if s.SolutionID == id {
			return s
		}
	}
	return types.AllocationSolution{SolutionID: id}
}

func recommendedID(r *ScoreResult) string {
	if r.Recommended == nil {
		return "none"
	}
	return r.Recommended.SolutionID
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
