package kg

import (
	"context"
	"fmt"
	"sort"
	"time"

	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

// Datalog schema for the TRR knowledge graph. Conditions and capabilities
// carry an index argument so their declared order survives the fact store.
const trrSchema = `
Decl trr_rule(RuleID, RuleName, DisasterType, Priority, Weight, SceneCode, TriggerLogic).
Decl trr_condition(RuleID, Idx, Condition).
Decl trr_task(RuleID, TaskCode, TaskName, Priority, Seq).
Decl trr_capability(RuleID, Idx, CapCode, CapName).
Decl capability_provider(CapCode, CapName, ResourceType).
`

// KnowledgeGraph answers the two queries the reasoning stage needs: TRR
// rules by disaster type and capability-to-resource mappings. Facts are
// loaded at startup; the graph is read-only per request and safe for
// concurrent use.
type KnowledgeGraph struct {
	engine  *engine
	timeout time.Duration
}

// New creates an empty knowledge graph.
func New(timeout time.Duration) (*KnowledgeGraph, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	e, err := newEngine(trrSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize knowledge graph: %w", err)
	}
	return &KnowledgeGraph{engine: e, timeout: timeout}, nil
}

// AddRule loads one TRR rule into the graph as facts.
func (g *KnowledgeGraph) AddRule(rule types.RawTRRRule) error {
	logic := rule.TriggerLogic
	if logic == "" {
		logic = "AND"
	}

	facts := []Fact{{
		Predicate: "trr_rule",
		Args: []interface{}{
			rule.RuleID, rule.RuleName, string(rule.DisasterType),
			string(rule.Priority), rule.Weight, rule.SceneCode, logic,
		},
	}}
	for i, cond := range rule.TriggerConditions {
		facts = append(facts, Fact{
			Predicate: "trr_condition",
			Args:      []interface{}{rule.RuleID, int64(i), cond},
		})
	}
	for _, task := range rule.TriggeredTasks {
		facts = append(facts, Fact{
			Predicate: "trr_task",
			Args:      []interface{}{rule.RuleID, task.TaskCode, task.TaskName, string(task.Priority), int64(task.Sequence)},
		})
	}
	for i, cap := range rule.RequiredCapabilities {
		facts = append(facts, Fact{
			Predicate: "trr_capability",
			Args:      []interface{}{rule.RuleID, int64(i), cap.CapabilityCode, cap.CapabilityName},
		})
	}
	return g.engine.addFacts(facts)
}

// AddCapabilityMapping records which resource types provide a capability.
func (g *KnowledgeGraph) AddCapabilityMapping(m types.CapabilityMapping) error {
	facts := make([]Fact, 0, len(m.ResourceTypes))
	for _, rt := range m.ResourceTypes {
		facts = append(facts, Fact{
			Predicate: "capability_provider",
			Args:      []interface{}{m.CapabilityCode, m.CapabilityName, rt},
		})
	}
	return g.engine.addFacts(facts)
}

// QueryTRRRules returns every TRR rule stored for a disaster type, ordered
// by rule id. An empty result is valid: the reasoning stage then falls back
// to its built-in defaults.
func (g *KnowledgeGraph) QueryTRRRules(ctx context.Context, disasterType types.DisasterType) ([]types.RawTRRRule, error) {
	timer := logging.StartTimer(logging.CategoryKG, "QueryTRRRules")
	defer timer.Stop()

	ctx, cancel := withQueryTimeout(ctx, g.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("knowledge graph query aborted: %w", err)
	}

	ruleFacts, err := g.engine.getFacts("trr_rule")
	if err != nil {
		return nil, fmt.Errorf("failed to query trr_rule: %w", err)
	}

	var rules []types.RawTRRRule
	for _, f := range ruleFacts {
		if argString(f.Args, 2) != string(disasterType) {
			continue
		}
		rules = append(rules, types.RawTRRRule{
			RuleID:       argString(f.Args, 0),
			RuleName:     argString(f.Args, 1),
			DisasterType: types.DisasterType(argString(f.Args, 2)),
			Priority:     types.ClampPriority(argString(f.Args, 3)),
			Weight:       argFloat(f.Args, 4),
			SceneCode:    argString(f.Args, 5),
			TriggerLogic: argString(f.Args, 6),
		})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].RuleID < rules[j].RuleID })

	for i := range rules {
		if err := g.fillRuleDetails(&rules[i]); err != nil {
			return nil, err
		}
	}

	logging.KGDebug("QueryTRRRules(%s) -> %d rules", disasterType, len(rules))
	return rules, nil
}

// fillRuleDetails attaches conditions, tasks, and capabilities to a rule
// shell, restoring declared order from the index arguments.
func (g *KnowledgeGraph) fillRuleDetails(rule *types.RawTRRRule) error {
	condFacts, err := g.engine.getFacts("trr_condition")
	if err != nil {
		return fmt.Errorf("failed to query trr_condition: %w", err)
	}
	type indexed struct {
		idx int
		s   string
	}
	var conds []indexed
	for _, f := range condFacts {
		if argString(f.Args, 0) == rule.RuleID {
			conds = append(conds, indexed{argInt(f.Args, 1), argString(f.Args, 2)})
		}
	}
	sort.Slice(conds, func(i, j int) bool { return conds[i].idx < conds[j].idx })
	for _, c := range conds {
		rule.TriggerConditions = append(rule.TriggerConditions, c.s)
	}

	taskFacts, err := g.engine.getFacts("trr_task")
	if err != nil {
		return fmt.Errorf("failed to query trr_task: %w", err)
	}
	for _, f := range taskFacts {
		if argString(f.Args, 0) != rule.RuleID {
			continue
		}
		rule.TriggeredTasks = append(rule.TriggeredTasks, types.TriggeredTask{
			TaskCode: argString(f.Args, 1),
			TaskName: argString(f.Args, 2),
			Priority: types.ClampPriority(argString(f.Args, 3)),
			Sequence: argInt(f.Args, 4),
		})
	}
	sort.Slice(rule.TriggeredTasks, func(i, j int) bool {
		a, b := rule.TriggeredTasks[i], rule.TriggeredTasks[j]
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.TaskCode < b.TaskCode
	})

	capFacts, err := g.engine.getFacts("trr_capability")
	if err != nil {
		return fmt.Errorf("failed to query trr_capability: %w", err)
	}
	var caps []struct {
		idx int
		c   types.RawCapability
	}
	for _, f := range capFacts {
		if argString(f.Args, 0) != rule.RuleID {
			continue
		}
		caps = append(caps, struct {
			idx int
			c   types.RawCapability
		}{argInt(f.Args, 1), types.RawCapability{
			CapabilityCode: argString(f.Args, 2),
			CapabilityName: argString(f.Args, 3),
		}})
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].idx < caps[j].idx })
	for _, c := range caps {
		rule.RequiredCapabilities = append(rule.RequiredCapabilities, c.c)
	}
	return nil
}

// QueryCapabilityMapping returns the resource types providing each of the
// given capability codes. Codes with no recorded provider are omitted.
func (g *KnowledgeGraph) QueryCapabilityMapping(ctx context.Context, capabilityCodes []string) ([]types.CapabilityMapping, error) {
	timer := logging.StartTimer(logging.CategoryKG, "QueryCapabilityMapping")
	defer timer.Stop()

	ctx, cancel := withQueryTimeout(ctx, g.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("knowledge graph query aborted: %w", err)
	}

	wanted := make(map[string]bool, len(capabilityCodes))
	for _, code := range capabilityCodes {
		wanted[code] = true
	}

	facts, err := g.engine.getFacts("capability_provider")
	if err != nil {
		return nil, fmt.Errorf("failed to query capability_provider: %w", err)
	}

	byCode := make(map[string]*types.CapabilityMapping)
	for _, f := range facts {
		code := argString(f.Args, 0)
		if !wanted[code] {
			continue
		}
		m, ok := byCode[code]
		if !ok {
			m = &types.CapabilityMapping{CapabilityCode: code, CapabilityName: argString(f.Args, 1)}
			byCode[code] = m
		}
		m.ResourceTypes = append(m.ResourceTypes, argString(f.Args, 2))
	}

	mappings := make([]types.CapabilityMapping, 0, len(byCode))
	// Preserve the caller's code order.
	seen := make(map[string]bool)
	for _, code := range capabilityCodes {
		if m, ok := byCode[code]; ok && !seen[code] {
			sort.Strings(m.ResourceTypes)
			mappings = append(mappings, *m)
			seen[code] = true
		}
	}

	logging.KGDebug("QueryCapabilityMapping(%d codes) -> %d mappings", len(capabilityCodes), len(mappings))
	return mappings, nil
}

// FactCount returns the number of stored facts.
func (g *KnowledgeGraph) FactCount() int {
	g.engine.mu.RLock()
	defer g.engine.mu.RUnlock()
	return g.engine.factCount
}
