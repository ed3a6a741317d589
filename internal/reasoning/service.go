package reasoning

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

// RuleSource is the knowledge-graph contract the reasoner depends on.
type RuleSource interface {
	QueryTRRRules(ctx context.Context, disasterType types.DisasterType) ([]types.RawTRRRule, error)
	QueryCapabilityMapping(ctx context.Context, capabilityCodes []string) ([]types.CapabilityMapping, error)
}

// Result is the rule-reasoning stage output.
type Result struct {
	MatchedRules           []types.MatchedRule
	TriggeredTasks         []types.TriggeredTask
	CapabilityRequirements []types.CapabilityRequirement
	UsedDefaultRules       bool

	// Warnings note recovered degradations (KG unreachable). The run
	// proceeds on built-in defaults.
	Warnings []string

	KGCalls int
}

// Reasoner runs the rule-reasoning stage.
type Reasoner struct {
	kg RuleSource
}

// NewReasoner creates a reasoner over the given rule source.
func NewReasoner(kg RuleSource) *Reasoner {
	return &Reasoner{kg: kg}
}

// RuleQuery is the fetched rule set before trigger evaluation.
type RuleQuery struct {
	Rules            []types.RawTRRRule
	UsedDefaultRules bool
	Warnings         []string
	KGCalls          int
}

// QueryRules fetches the TRR rules for the parsed disaster type. A
// knowledge-graph failure or an empty rule set falls back to the built-in
// defaults; both outcomes are recorded on the returned query.
func (r *Reasoner) QueryRules(ctx context.Context, parsed *types.ParsedDisaster) (*RuleQuery, error) {
	if parsed == nil {
		return nil, fmt.Errorf("no parsed disaster to reason over")
	}

	q := &RuleQuery{}
	rules, err := r.kg.QueryTRRRules(ctx, parsed.DisasterType)
	q.KGCalls++
	if err != nil {
		msg := fmt.Sprintf("knowledge graph unavailable, using default rules: %v", err)
		logging.ReasoningWarn("%s", msg)
		q.Warnings = append(q.Warnings, msg)
		rules = nil
	}
	if len(rules) == 0 {
		rules = DefaultRules(parsed.DisasterType)
		q.UsedDefaultRules = true
		logging.Reasoning("no KG rules for %s, evaluating %d built-in defaults", parsed.DisasterType, len(rules))
	}
	q.Rules = rules
	return q, nil
}

// ApplyRules evaluates the queried rules' trigger conditions and derives the
// deduplicated task list and capability requirements. No rule matching at
// all is a valid (short-circuit) outcome, not an error.
func (r *Reasoner) ApplyRules(ctx context.Context, parsed *types.ParsedDisaster, q *RuleQuery) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryReasoning, "apply")
	defer timer.Stop()

	if parsed == nil || q == nil {
		return nil, fmt.Errorf("no rule query to apply")
	}

	result := &Result{
		UsedDefaultRules: q.UsedDefaultRules,
		Warnings:         append([]string(nil), q.Warnings...),
		KGCalls:          q.KGCalls,
	}

	var matchedRaw []types.RawTRRRule
	for _, rule := range q.Rules {
		matched, held, err := EvalConditions(parsed, rule.TriggerConditions, rule.TriggerLogic)
		if err != nil {
			logging.ReasoningWarn("rule %s has a malformed condition, skipping: %v", rule.RuleID, err)
			continue
		}
		if !matched {
			continue
		}
		matchedRaw = append(matchedRaw, rule)
		result.MatchedRules = append(result.MatchedRules, types.MatchedRule{
			RuleID:                  rule.RuleID,
			RuleName:                rule.RuleName,
			Priority:                rule.Priority,
			Weight:                  rule.Weight,
			SceneCode:               rule.SceneCode,
			TriggeredTaskCodes:      taskCodes(rule.TriggeredTasks),
			RequiredCapabilityCodes: capabilityCodes(rule.RequiredCapabilities),
			MatchReason:             matchReason(held),
		})
	}

	if len(matchedRaw) == 0 {
		logging.Reasoning("no rule matched for %s", parsed.DisasterType)
		return result, nil
	}

	result.TriggeredTasks = dedupTasks(matchedRaw)
	result.CapabilityRequirements = r.buildRequirements(ctx, matchedRaw, result)

	logging.Reasoning("matched %d rules -> %d tasks, %d capability requirements (defaults=%v)",
		len(result.MatchedRules), len(result.TriggeredTasks), len(result.CapabilityRequirements), result.UsedDefaultRules)
	return result, nil
}

// Apply runs QueryRules and ApplyRules in one step.
func (r *Reasoner) Apply(ctx context.Context, parsed *types.ParsedDisaster) (*Result, error) {
	q, err := r.QueryRules(ctx, parsed)
	if err != nil {
		return nil, err
	}
	return r.ApplyRules(ctx, parsed, q)
}

// dedupTasks merges triggered tasks across rules: duplicates keyed by
// task_code keep the minimum sequence and the highest priority. Final order
// is ascending sequence, then priority rank.
func dedupTasks(rules []types.RawTRRRule) []types.TriggeredTask {
	byCode := make(map[string]*types.TriggeredTask)
	var order []string
	for _, rule := range rules {
		for _, task := range rule.TriggeredTasks {
			existing, ok := byCode[task.TaskCode]
			if !ok {
				t := task
				byCode[task.TaskCode] = &t
				order = append(order, task.TaskCode)
				continue
			}
			if task.Sequence < existing.Sequence {
				existing.Sequence = task.Sequence
			}
			if task.Priority.Rank() < existing.Priority.Rank() {
				existing.Priority = task.Priority
			}
		}
	}

	tasks := make([]types.TriggeredTask, 0, len(order))
	for _, code := range order {
		tasks = append(tasks, *byCode[code])
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Sequence != tasks[j].Sequence {
			return tasks[i].Sequence < tasks[j].Sequence
		}
		return tasks[i].Priority.Rank() < tasks[j].Priority.Rank()
	})
	return tasks
}

// buildRequirements deduplicates capabilities by code (keeping the highest
// contributing rule priority) and annotates each with the resource types
// able to provide it.
func (r *Reasoner) buildRequirements(ctx context.Context, rules []types.RawTRRRule, result *Result) []types.CapabilityRequirement {
	byCode := make(map[string]*types.CapabilityRequirement)
	var order []string
	for _, rule := range rules {
		for _, cap := range rule.RequiredCapabilities {
			existing, ok := byCode[cap.CapabilityCode]
			if !ok {
				byCode[cap.CapabilityCode] = &types.CapabilityRequirement{
					CapabilityCode: cap.CapabilityCode,
					CapabilityName: cap.CapabilityName,
					Priority:       rule.Priority,
				}
				order = append(order, cap.CapabilityCode)
				continue
			}
			if rule.Priority.Rank() < existing.Priority.Rank() {
				existing.Priority = rule.Priority
			}
		}
	}

	providers := make(map[string][]string)
	mappings, err := r.kg.QueryCapabilityMapping(ctx, order)
	result.KGCalls++
	if err != nil {
		msg := fmt.Sprintf("capability mapping unavailable, using built-in providers: %v", err)
		logging.ReasoningWarn("%s", msg)
		result.Warnings = append(result.Warnings, msg)
	} else {
		for _, m := range mappings {
			providers[m.CapabilityCode] = m.ResourceTypes
		}
	}

	reqs := make([]types.CapabilityRequirement, 0, len(order))
	for _, code := range order {
		req := byCode[code]
		if p, ok := providers[code]; ok && len(p) > 0 {
			req.ProvidedBy = p
		} else if p, ok := builtinProviders[code]; ok {
			req.ProvidedBy = p
		}
		reqs = append(reqs, *req)
	}
	return reqs
}

func taskCodes(tasks []types.TriggeredTask) []string {
	codes := make([]string, 0, len(tasks))
	for _, t := range tasks {
		codes = append(codes, t.TaskCode)
	}
	return codes
}

func capabilityCodes(caps []types.RawCapability) []string {
	codes := make([]string, 0, len(caps))
	for _, c := range caps {
		codes = append(codes, c.CapabilityCode)
	}
	return codes
}

func matchReason(held []string) string {
	if len(held) == 0 {
		return "no trigger conditions (always matches)"
	}
	return "conditions held: " + strings.Join(held, "; ")
}
