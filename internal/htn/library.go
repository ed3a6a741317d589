// Package htn converts matched-rule scene signals into a concrete task
// sequence. A JSON meta-task library defines reusable task chains; scenes
// select chains, chains merge by meta-task id, and a topological sort yields
// the execution order plus parallel groups.
package htn

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"rescuecore/internal/config"
	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

//go:embed meta_tasks.json
var embeddedLibrary []byte

// MetaTask is a reusable unit of work with a stable id.
type MetaTask struct {
	Name     string         `json:"name"`
	Priority types.Priority `json:"priority"`
}

// ChainStep is one step of a chain: a meta-task id plus its predecessors
// within the chain.
type ChainStep struct {
	MTID      string   `json:"mt_id"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// Library is the validated meta-task library. Immutable after load.
type Library struct {
	MetaTasks    map[string]MetaTask    `json:"meta_tasks"`
	Chains       map[string][]ChainStep `json:"chains"`
	SceneToChain map[string]string      `json:"scene_to_chain"`
}

// LoadLibrary reads the library from a JSON file, or the embedded default
// when path is empty. Validation failures are load-time ConfigErrors: the
// core must not accept requests over a broken library.
func LoadLibrary(path string) (*Library, error) {
	data := embeddedLibrary
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read meta-task library: %w", err)
		}
		data = fileData
	}

	var lib Library
	if err := json.Unmarshal(data, &lib); err != nil {
		return nil, &config.ConfigError{Section: "htn.library", Message: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if err := lib.validate(); err != nil {
		return nil, err
	}

	logging.HTN("meta-task library loaded: %d meta-tasks, %d chains, %d scene mappings",
		len(lib.MetaTasks), len(lib.Chains), len(lib.SceneToChain))
	return &lib, nil
}

// validate enforces the load-time invariants: chains reference only declared
// meta-tasks (including in depends_on), scene mappings target existing
// chains, and every chain is acyclic on its own.
func (l *Library) validate() error {
	if len(l.MetaTasks) == 0 {
		return &config.ConfigError{Section: "htn.library", Message: "no meta_tasks declared"}
	}
	for chainID, steps := range l.Chains {
		seen := make(map[string]bool, len(steps))
		for _, step := range steps {
			if _, ok := l.MetaTasks[step.MTID]; !ok {
				return &config.ConfigError{
					Section: "htn.library",
					Message: fmt.Sprintf("chain %s references undeclared meta-task %s", chainID, step.MTID),
				}
			}
			for _, dep := range step.DependsOn {
				if _, ok := l.MetaTasks[dep]; !ok {
					return &config.ConfigError{
						Section: "htn.library",
						Message: fmt.Sprintf("chain %s step %s depends on undeclared meta-task %s", chainID, step.MTID, dep),
					}
				}
			}
			if seen[step.MTID] {
				return &config.ConfigError{
					Section: "htn.library",
					Message: fmt.Sprintf("chain %s declares meta-task %s twice", chainID, step.MTID),
				}
			}
			seen[step.MTID] = true
		}
		if err := checkChainAcyclic(chainID, steps); err != nil {
			return err
		}
	}
	for scene, chainID := range l.SceneToChain {
		if _, ok := l.Chains[chainID]; !ok {
			return &config.ConfigError{
				Section: "htn.library",
				Message: fmt.Sprintf("scene %s maps to undefined chain %s", scene, chainID),
			}
		}
	}
	return nil
}

// checkChainAcyclic runs a dependency count pass over one chain. Steps may
// depend on meta-tasks outside the chain (satisfied after merging); only
// in-chain edges can form a cycle here.
func checkChainAcyclic(chainID string, steps []ChainStep) error {
	inChain := make(map[string]bool, len(steps))
	for _, s := range steps {
		inChain[s.MTID] = true
	}

	remaining := make(map[string][]string, len(steps))
	for _, s := range steps {
		var deps []string
		for _, d := range s.DependsOn {
			if inChain[d] {
				deps = append(deps, d)
			}
		}
		remaining[s.MTID] = deps
	}

	done := make(map[string]bool, len(steps))
	for len(done) < len(steps) {
		progressed := false
		for id, deps := range remaining {
			if done[id] {
				continue
			}
			ready := true
			for _, d := range deps {
				if !done[d] {
					ready = false
					break
				}
			}
			if ready {
				done[id] = true
				progressed = true
			}
		}
		if !progressed {
			return &config.ConfigError{
				Section: "htn.library",
				Message: fmt.Sprintf("chain %s contains a dependency cycle", chainID),
			}
		}
	}
	return nil
}

// ChainForScene returns the chain id mapped to a scene code.
func (l *Library) ChainForScene(scene string) (string, bool) {
	chainID, ok := l.SceneToChain[scene]
	return chainID, ok
}
