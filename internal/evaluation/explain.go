package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

const explainSystemPrompt = `You are an emergency response commander's aide. Explain a selected rescue plan clearly for field coordination. Respond with a single JSON object and no surrounding prose.`

// maxAlternativesInPrompt bounds how many rejected alternatives the LLM sees.
const maxAlternativesInPrompt = 3

// explanationPayload is the structured explanation the LLM returns.
type explanationPayload struct {
	Summary              string   `json:"summary"`
	SituationAssessment  string   `json:"situation_assessment"`
	SelectionReason      string   `json:"selection_reason"`
	KeyAdvantages        []string `json:"key_advantages"`
	ResourceDeployment   []string `json:"resource_deployment"`
	Timeline             []string `json:"timeline"`
	CoordinationPoints   []string `json:"coordination_points"`
	PotentialRisks       []string `json:"potential_risks"`
	MitigationMeasures   []string `json:"mitigation_measures"`
	ExecutionSuggestions []string `json:"execution_suggestions"`
	CommanderNotes       string   `json:"commander_notes"`
}

// Explanation is the explain-stage output. LLMUsed distinguishes the full
// narrative from the minimal fallback; the fallback is not an error.
type Explanation struct {
	Text    string
	LLMUsed bool
	Warning string
}

// Explain renders the recommendation as a Markdown briefing. The LLM writes
// the narrative sections; any LLM failure degrades to a deterministic
// minimal explanation built from the solution itself.
func (e *Evaluator) Explain(ctx context.Context, recommended *types.AllocationSolution, parsed *types.ParsedDisaster, alternatives []types.AllocationSolution, tasks []types.TaskSequenceItem) *Explanation {
	timer := logging.StartTimer(logging.CategoryEvaluation, "explain")
	defer timer.Stop()

	if recommended == nil {
		return &Explanation{}
	}
	if e.llm == nil {
		return &Explanation{Text: minimalExplanation(recommended)}
	}

	raw, err := e.llm.CompleteWithSystem(ctx, explainSystemPrompt,
		buildExplainPrompt(recommended, parsed, alternatives, tasks))
	if err != nil {
		logging.EvaluationWarn("explanation call failed, using minimal explanation: %v", err)
		return &Explanation{
			Text:    minimalExplanation(recommended),
			LLMUsed: true,
			Warning: "explanation generation degraded to minimal form",
		}
	}

	var payload explanationPayload
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &payload); err != nil {
		logging.EvaluationWarn("explanation JSON malformed, using minimal explanation: %v", err)
		return &Explanation{
			Text:    minimalExplanation(recommended),
			LLMUsed: true,
			Warning: "explanation generation degraded to minimal form",
		}
	}
	return &Explanation{Text: renderExplanation(payload), LLMUsed: true}
}

func buildExplainPrompt(recommended *types.AllocationSolution, parsed *types.ParsedDisaster, alternatives []types.AllocationSolution, tasks []types.TaskSequenceItem) string {
	if len(alternatives) > maxAlternativesInPrompt {
		alternatives = alternatives[:maxAlternativesInPrompt]
	}
	recommendedJSON, _ := json.Marshal(recommended)
	parsedJSON, _ := json.Marshal(parsed)
	alternativesJSON, _ := json.Marshal(alternatives)
	tasksJSON, _ := json.Marshal(tasks)

	return fmt.Sprintf(`Explain why this rescue plan was selected and how to execute it.

DISASTER:
%s

RECOMMENDED PLAN:
%s

REJECTED ALTERNATIVES:
%s

TASK SEQUENCE:
%s

Return JSON only: {"summary": "...", "situation_assessment": "...", "selection_reason": "...", "key_advantages": [], "resource_deployment": [], "timeline": [], "coordination_points": [], "potential_risks": [], "mitigation_measures": [], "execution_suggestions": [], "commander_notes": "..."}`,
		parsedJSON, recommendedJSON, alternativesJSON, tasksJSON)
}

// renderExplanation assembles the structured sections into a Markdown
// document with fixed headings. Empty sections are omitted.
func renderExplanation(p explanationPayload) string {
	var b strings.Builder
	b.WriteString("# Recommended Response Plan\n")

	prose := func(heading, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", heading, strings.TrimSpace(text))
	}
	bullets := func(heading string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n\n", heading)
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(item))
		}
	}

	prose("Summary", p.Summary)
	prose("Situation Assessment", p.SituationAssessment)
	prose("Selection Reason", p.SelectionReason)
	bullets("Key Advantages", p.KeyAdvantages)
	bullets("Resource Deployment", p.ResourceDeployment)
	bullets("Timeline", p.Timeline)
	bullets("Coordination Points", p.CoordinationPoints)
	bullets("Potential Risks", p.PotentialRisks)
	bullets("Mitigation Measures", p.MitigationMeasures)
	bullets("Execution Suggestions", p.ExecutionSuggestions)
	prose("Commander Notes", p.CommanderNotes)
	return b.String()
}

// minimalExplanation lists the allocations and headline metrics without any
// LLM involvement.
func minimalExplanation(s *types.AllocationSolution) string {
	var b strings.Builder
	b.WriteString("# Recommended Response Plan\n\n")
	fmt.Fprintf(&b, "Plan %s: %d teams, %.1f%% capability coverage, slowest arrival %.0f minutes.\n\n",
		s.SolutionID, s.TeamsCount, s.CoverageRate*100, s.ResponseTimeMin)
	b.WriteString("## Deployed Teams\n\n")
	for _, a := range s.Allocations {
		caps := "none"
		if len(a.AssignedCapabilities) > 0 {
			caps = strings.Join(a.AssignedCapabilities, ", ")
		}
		fmt.Fprintf(&b, "- %s (%.1f km, ETA %.0f min): %s\n",
			a.ResourceName, a.DistanceKM, a.ETAMinutes, caps)
	}
	if len(s.UncoveredCapabilities) > 0 {
		fmt.Fprintf(&b, "\nUncovered capabilities: %s\n",
			strings.Join(s.UncoveredCapabilities, ", "))
	}
	return b.String()
}

// stripCodeFence removes a Markdown code fence wrapping a JSON reply.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
