// Package pipeline implements a small directed-graph stage engine. Nodes are
// functions over a shared state value; edges carry optional predicates and
// are evaluated in registration order, first match wins. The engine executes
// at most one instance of each stage per run and always finishes on the
// configured terminal node, which makes it suitable for decision pipelines
// that must emit a result even when intermediate stages fail.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"rescuecore/internal/logging"
)

// Error codes surfaced by the engine itself (distinct from stage errors,
// which the domain collects through the OnStageError hook).
const (
	CodeNodeNotFound = "NODE_NOT_FOUND"
	CodeNoRoute      = "NO_ROUTE"
	CodeMaxSteps     = "MAX_STEPS_EXCEEDED"
	CodeNoEntry      = "NO_ENTRY"
)

// EngineError is a structural failure of the graph run, not a stage failure.
type EngineError struct {
	Code    string
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("pipeline %s: %s", e.Code, e.Message)
}

// NodeFunc executes one stage against the state. A non-nil error marks the
// stage as failed; the engine reports it through the OnStageError hook and
// continues routing, so predicates decide where a failed run goes next.
type NodeFunc[S any] func(ctx context.Context, state S) error

// Predicate guards an edge. A nil predicate always matches.
type Predicate[S any] func(state S) bool

// Edge connects two nodes. Edges from the same node are evaluated in the
// order they were added.
type Edge[S any] struct {
	From string
	To   string
	When Predicate[S]
}

// Hooks let the caller observe the run without the engine knowing the
// state's shape.
type Hooks[S any] struct {
	// OnStageError is called when a node returns a non-nil error.
	OnStageError func(state S, node string, err error)
	// OnStageComplete is called after every node finishes, in completion
	// order, including the terminal node.
	OnStageComplete func(state S, node string, elapsed time.Duration)
}

// Engine is a fixed stage graph. Build it once, run it per request; Run is
// safe for concurrent use as long as distinct state values are passed.
type Engine[S any] struct {
	nodes    map[string]NodeFunc[S]
	edges    map[string][]Edge[S]
	entry    string
	terminal string
	maxSteps int
	hooks    Hooks[S]
}

// New creates an engine with the given entry and terminal nodes.
func New[S any](entry, terminal string) *Engine[S] {
	return &Engine[S]{
		nodes:    make(map[string]NodeFunc[S]),
		edges:    make(map[string][]Edge[S]),
		entry:    entry,
		terminal: terminal,
		maxSteps: 64,
	}
}

// SetMaxSteps bounds the number of node executions per run.
func (e *Engine[S]) SetMaxSteps(n int) {
	if n > 0 {
		e.maxSteps = n
	}
}

// SetHooks installs the observation hooks.
func (e *Engine[S]) SetHooks(h Hooks[S]) {
	e.hooks = h
}

// AddNode registers a stage. Registering the same name twice is an error:
// the graph is fixed and a silent overwrite would hide a wiring bug.
func (e *Engine[S]) AddNode(name string, fn NodeFunc[S]) error {
	if name == "" {
		return &EngineError{Code: CodeNodeNotFound, Message: "empty node name"}
	}
	if _, exists := e.nodes[name]; exists {
		return &EngineError{Code: CodeNodeNotFound, Message: fmt.Sprintf("node %q already registered", name)}
	}
	e.nodes[name] = fn
	return nil
}

// AddEdge registers an unconditional edge.
func (e *Engine[S]) AddEdge(from, to string) {
	e.edges[from] = append(e.edges[from], Edge[S]{From: from, To: to})
}

// AddConditionalEdge registers a guarded edge. Guarded edges added before an
// unconditional one take precedence.
func (e *Engine[S]) AddConditionalEdge(from, to string, when Predicate[S]) {
	e.edges[from] = append(e.edges[from], Edge[S]{From: from, To: to, When: when})
}

// route picks the next node after from, first matching edge wins.
func (e *Engine[S]) route(from string, state S) (string, bool) {
	for _, edge := range e.edges[from] {
		if edge.When == nil || edge.When(state) {
			return edge.To, true
		}
	}
	return "", false
}

// Run executes the graph from the entry node until the terminal node has
// completed. It returns the visited node names in completion order. When the
// context expires mid-run the current position jumps to the terminal node so
// the run still produces a result; the expiry is reported through
// OnStageError.
func (e *Engine[S]) Run(ctx context.Context, state S) ([]string, error) {
	if _, ok := e.nodes[e.entry]; !ok {
		return nil, &EngineError{Code: CodeNoEntry, Message: fmt.Sprintf("entry node %q not registered", e.entry)}
	}

	visited := make([]string, 0, len(e.nodes))
	current := e.entry

	for steps := 0; ; steps++ {
		if steps >= e.maxSteps {
			return visited, &EngineError{
				Code:    CodeMaxSteps,
				Message: fmt.Sprintf("exceeded %d steps at node %q", e.maxSteps, current),
			}
		}

		node, ok := e.nodes[current]
		if !ok {
			return visited, &EngineError{Code: CodeNodeNotFound, Message: fmt.Sprintf("node %q not registered", current)}
		}

		// Deadline expiry aborts the remaining stages but still runs the
		// terminal node, which must not block.
		if err := ctx.Err(); err != nil && current != e.terminal {
			logging.PipelineWarn("deadline expired before %s, jumping to %s", current, e.terminal)
			if e.hooks.OnStageError != nil {
				e.hooks.OnStageError(state, current, fmt.Errorf("aborted before %s: %w", current, err))
			}
			current = e.terminal
			continue
		}

		start := time.Now()
		err := node(ctx, state)
		elapsed := time.Since(start)

		if err != nil {
			logging.PipelineWarn("stage %s failed: %v", current, err)
			if e.hooks.OnStageError != nil {
				e.hooks.OnStageError(state, current, err)
			}
		} else {
			logging.PipelineDebug("stage %s completed in %v", current, elapsed)
		}
		if e.hooks.OnStageComplete != nil {
			e.hooks.OnStageComplete(state, current, elapsed)
		}
		visited = append(visited, current)

		if current == e.terminal {
			return visited, nil
		}

		next, ok := e.route(current, state)
		if !ok {
			return visited, &EngineError{Code: CodeNoRoute, Message: fmt.Sprintf("no edge matched from %q", current)}
		}
		current = next
	}
}
