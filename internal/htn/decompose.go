package htn

import (
	"fmt"
	"sort"

	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

// Result is the decomposition stage output.
type Result struct {
	SceneCodes     []string
	TaskSequence   []types.TaskSequenceItem
	ParallelGroups []types.ParallelGroup

	// Warnings note scenes with no chain mapping; they are skipped.
	Warnings []string
}

// Decomposer turns scene codes into an ordered task plan using the loaded
// library. Stateless per call; safe for concurrent use.
type Decomposer struct {
	lib *Library
}

// NewDecomposer creates a decomposer over a validated library.
func NewDecomposer(lib *Library) *Decomposer {
	return &Decomposer{lib: lib}
}

// mergedNode is one meta-task after chain merging. Dependency sets union
// across chains; scenes record which scenes contributed the node.
type mergedNode struct {
	id        string
	deps      map[string]bool
	scenes    []string
	insertion int
}

// Decompose collects the scenes declared by the matched rules, merges their
// chains, and produces a topologically ordered task sequence with parallel
// level groups. A dependency cycle after merging aborts the stage.
func (d *Decomposer) Decompose(matchedRules []types.MatchedRule) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryHTN, "decompose")
	defer timer.Stop()

	result := &Result{}

	// Scenes in rule order, deduplicated.
	seenScene := make(map[string]bool)
	for _, rule := range matchedRules {
		if rule.SceneCode == "" || seenScene[rule.SceneCode] {
			continue
		}
		seenScene[rule.SceneCode] = true
		result.SceneCodes = append(result.SceneCodes, rule.SceneCode)
	}

	// Merge chains by meta-task id.
	nodes := make(map[string]*mergedNode)
	var order []*mergedNode
	for _, scene := range result.SceneCodes {
		chainID, ok := d.lib.ChainForScene(scene)
		if !ok {
			msg := fmt.Sprintf("scene %s has no chain mapping, skipping", scene)
			logging.HTN("%s", msg)
			result.Warnings = append(result.Warnings, msg)
			continue
		}
		for _, step := range d.lib.Chains[chainID] {
			node, exists := nodes[step.MTID]
			if !exists {
				node = &mergedNode{
					id:        step.MTID,
					deps:      make(map[string]bool),
					insertion: len(order),
				}
				nodes[step.MTID] = node
				order = append(order, node)
			}
			for _, dep := range step.DependsOn {
				node.deps[dep] = true
			}
			node.scenes = append(node.scenes, scene)
		}
	}

	if len(order) == 0 {
		logging.HTN("no chains resolved from %d scenes", len(result.SceneCodes))
		return result, nil
	}

	sequence, groups, err := d.topoSort(nodes, order)
	if err != nil {
		return nil, err
	}
	result.TaskSequence = sequence
	result.ParallelGroups = groups

	logging.HTN("decomposed %d scenes -> %d tasks in %d parallel levels",
		len(result.SceneCodes), len(sequence), len(groups))
	return result, nil
}

// topoSort is Kahn's algorithm processed level by level: each iteration
// takes every currently-ready node as one parallel group, ordering members
// by meta-task priority (critical first) then insertion order. Dependencies
// on meta-tasks outside the merged set are treated as satisfied.
func (d *Decomposer) topoSort(nodes map[string]*mergedNode, order []*mergedNode) ([]types.TaskSequenceItem, []types.ParallelGroup, error) {
	placed := make(map[string]bool, len(nodes))
	var sequence []types.TaskSequenceItem
	var groups []types.ParallelGroup

	for len(placed) < len(nodes) {
		var ready []*mergedNode
		for _, node := range order {
			if placed[node.id] {
				continue
			}
			ok := true
			for dep := range node.deps {
				if _, present := nodes[dep]; present && !placed[dep] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, node)
			}
		}
		if len(ready) == 0 {
			return nil, nil, fmt.Errorf("meta-task dependency cycle detected after merging %d tasks", len(nodes))
		}

		sort.SliceStable(ready, func(i, j int) bool {
			pi := d.lib.MetaTasks[ready[i].id].Priority.Rank()
			pj := d.lib.MetaTasks[ready[j].id].Priority.Rank()
			if pi != pj {
				return pi < pj
			}
			return ready[i].insertion < ready[j].insertion
		})

		group := types.ParallelGroup{Level: len(groups)}
		for _, node := range ready {
			placed[node.id] = true
			group.TaskIDs = append(group.TaskIDs, node.id)

			deps := make([]string, 0, len(node.deps))
			for dep := range node.deps {
				if _, present := nodes[dep]; present {
					deps = append(deps, dep)
				}
			}
			sort.Strings(deps)

			sequence = append(sequence, types.TaskSequenceItem{
				SequenceIndex: len(sequence) + 1,
				TaskID:        node.id,
				TaskName:      d.lib.MetaTasks[node.id].Name,
				DependsOn:     deps,
				SceneCodes:    dedupStrings(node.scenes),
			})
		}
		groups = append(groups, group)
	}

	return sequence, groups, nil
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
