package core

import (
	"context"
	"fmt"
	"time"

	"rescuecore/internal/allocation"
	"rescuecore/internal/config"
	"rescuecore/internal/evaluation"
	"rescuecore/internal/htn"
	"rescuecore/internal/logging"
	"rescuecore/internal/matching"
	"rescuecore/internal/perception"
	"rescuecore/internal/pipeline"
	"rescuecore/internal/reasoning"
	"rescuecore/internal/types"
)

// Deps are the external collaborators the analyzer runs against. Library may
// be nil; the configured (or embedded) meta-task library is loaded instead.
type Deps struct {
	LLM     perception.LLMClient
	Cases   perception.CaseSearcher
	Rules   reasoning.RuleSource
	Teams   matching.TeamSource
	Library *htn.Library
}

// Analyzer is the decision core. Built once at startup; Analyze is safe for
// concurrent use because every run owns a private state record.
type Analyzer struct {
	cfg    *config.Config
	engine *pipeline.Engine[*state]

	understanding *perception.Service
	reasoner      *reasoning.Reasoner
	decomposer    *htn.Decomposer
	matcher       *matching.Matcher
	allocator     *allocation.Allocator
	evaluator     *evaluation.Evaluator
}

// NewAnalyzer wires the stage packages into the pipeline graph.
func NewAnalyzer(cfg *config.Config, deps Deps) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	library := deps.Library
	if library == nil {
		lib, err := htn.LoadLibrary(cfg.HTN.LibraryPath)
		if err != nil {
			return nil, err
		}
		library = lib
	}

	a := &Analyzer{
		cfg:           cfg,
		understanding: perception.NewService(deps.LLM, deps.Cases, cfg.GetLLMTimeout(), cfg.GetVectorTimeout()),
		reasoner:      reasoning.NewReasoner(deps.Rules),
		decomposer:    htn.NewDecomposer(library),
		matcher:       matching.NewMatcher(deps.Teams, cfg.Matcher),
		allocator:     allocation.NewAllocator(cfg.Allocator),
		evaluator:     evaluation.NewEvaluator(cfg, deps.LLM),
	}
	if err := a.buildEngine(); err != nil {
		return nil, err
	}
	return a, nil
}

// buildEngine registers the stage graph. Conditional edges short-circuit to
// assembly whenever a stage leaves nothing for the next one to work on.
func (a *Analyzer) buildEngine() error {
	engine := pipeline.New[*state](StageUnderstand, StageAssemble)
	engine.SetHooks(pipeline.Hooks[*state]{
		OnStageError: func(s *state, node string, err error) {
			s.fail(fmt.Sprintf("%s: %v", node, err))
		},
		OnStageComplete: func(s *state, node string, elapsed time.Duration) {
			s.trace.AppendPhase(node, elapsed.Milliseconds())
		},
	})

	stages := map[string]pipeline.NodeFunc[*state]{
		StageUnderstand: a.stageUnderstand,
		StageEnhance:    a.stageEnhance,
		StageQueryRules: a.stageQueryRules,
		StageApplyRules: a.stageApplyRules,
		StageDecompose:  a.stageDecompose,
		StageMatch:      a.stageMatch,
		StageOptimize:   a.stageOptimize,
		StageFilterHard: a.stageFilterHard,
		StageScoreSoft:  a.stageScoreSoft,
		StageExplain:    a.stageExplain,
		StageAssemble:   a.stageAssemble,
	}
	for name, fn := range stages {
		if err := engine.AddNode(name, fn); err != nil {
			return err
		}
	}

	engine.AddEdge(StageUnderstand, StageEnhance)
	engine.AddConditionalEdge(StageEnhance, StageAssemble, (*state).parseFailed)
	engine.AddEdge(StageEnhance, StageQueryRules)
	engine.AddEdge(StageQueryRules, StageApplyRules)
	engine.AddConditionalEdge(StageApplyRules, StageAssemble, (*state).noRuleMatched)
	engine.AddEdge(StageApplyRules, StageDecompose)
	engine.AddConditionalEdge(StageDecompose, StageAssemble, (*state).emptyTaskSequence)
	engine.AddEdge(StageDecompose, StageMatch)
	engine.AddConditionalEdge(StageMatch, StageAssemble, (*state).noCandidates)
	engine.AddEdge(StageMatch, StageOptimize)
	engine.AddConditionalEdge(StageOptimize, StageAssemble, (*state).noSolutions)
	engine.AddEdge(StageOptimize, StageFilterHard)
	engine.AddEdge(StageFilterHard, StageScoreSoft)
	engine.AddConditionalEdge(StageScoreSoft, StageAssemble, (*state).noRecommendation)
	engine.AddEdge(StageScoreSoft, StageExplain)
	engine.AddEdge(StageExplain, StageAssemble)

	a.engine = engine
	return nil
}

// Analyze runs one request through the pipeline and always returns an
// Output, even when stages failed.
func (a *Analyzer) Analyze(ctx context.Context, req *types.Request) *types.Output {
	start := time.Now()
	logging.Pipeline("analyze start: event=%s scenario=%s", req.EventID, req.ScenarioID)

	st := &state{
		req:         req,
		constraints: req.Constraints,
		weights:     req.OptimizationWeights,
		trace:       types.NewTrace(),
	}
	st.constraints.Normalize()
	st.lat, st.lng, st.hasLocation = req.Location()

	if _, err := a.engine.Run(ctx, st); err != nil {
		// Structural graph failures should not happen with a fixed graph;
		// surface them like any other run error.
		st.fail(err.Error())
	}

	out := a.assembleOutput(st, start)
	logging.Pipeline("analyze done: event=%s success=%v stages=%d errors=%d in %dms",
		req.EventID, out.Success, len(st.trace.PhasesExecuted), len(out.Errors), out.ExecutionTimeMS)
	return out
}

func (a *Analyzer) stageUnderstand(ctx context.Context, s *state) error {
	result, err := a.understanding.Understand(ctx, s.req)
	s.understanding = result
	if result != nil {
		s.trace.LLMCalls += result.LLMCalls
		s.trace.RAGCalls += result.RAGCalls
		s.trace.PhysicsCalibrated = result.PhysicsCalibrated
		if result.RAGWarning != "" {
			s.trace.Warn(result.RAGWarning)
		}
	}
	return err
}

func (a *Analyzer) stageEnhance(ctx context.Context, s *state) error {
	a.understanding.EnhanceWithCases(s.parsed(), s.understanding.SimilarCases)
	return nil
}

func (a *Analyzer) stageQueryRules(ctx context.Context, s *state) error {
	tctx, cancel := context.WithTimeout(ctx, a.cfg.GetKGTimeout())
	defer cancel()
	q, err := a.reasoner.QueryRules(tctx, s.parsed())
	s.ruleQuery = q
	return err
}

func (a *Analyzer) stageApplyRules(ctx context.Context, s *state) error {
	tctx, cancel := context.WithTimeout(ctx, a.cfg.GetKGTimeout())
	defer cancel()
	result, err := a.reasoner.ApplyRules(tctx, s.parsed(), s.ruleQuery)
	s.reasoning = result
	if result != nil {
		s.trace.KGCalls += result.KGCalls
		s.trace.UsedDefaultRules = result.UsedDefaultRules
		for _, w := range result.Warnings {
			s.trace.Warn(w)
		}
	}
	return err
}

func (a *Analyzer) stageDecompose(ctx context.Context, s *state) error {
	result, err := a.decomposer.Decompose(s.reasoning.MatchedRules)
	s.decomposition = result
	if result != nil {
		for _, w := range result.Warnings {
			s.trace.Warn(w)
		}
	}
	return err
}

func (a *Analyzer) stageMatch(ctx context.Context, s *state) error {
	if !s.hasLocation {
		return fmt.Errorf("event location missing from structured input")
	}
	tctx, cancel := context.WithTimeout(ctx, a.cfg.GetTeamTimeout())
	defer cancel()

	result, err := a.matcher.Match(tctx, s.lat, s.lng, s.parsed(),
		s.reasoning.CapabilityRequirements, s.constraints)
	s.matching = result
	if err != nil {
		return err
	}

	s.trace.InitialDistanceKM = result.InitialRadiusKM
	s.trace.FinalDistanceKM = result.FinalRadiusKM
	s.trace.SearchExpanded = result.SearchExpanded
	s.trace.CandidatesCount = len(result.Candidates)
	for _, w := range result.Warnings {
		s.trace.Warn(w)
	}

	// With no required capabilities the matcher skips the team search; the
	// allocator still produces its single empty solution downstream.
	if len(result.Candidates) == 0 && len(result.RequiredCapabilities) > 0 {
		return fmt.Errorf("no rescue team within %.0f km of the event", result.FinalRadiusKM)
	}
	return nil
}

func (a *Analyzer) stageOptimize(ctx context.Context, s *state) error {
	result := a.allocator.Allocate(s.matching.Candidates,
		s.matching.RequiredCapabilities, s.constraints.NAlternatives)
	s.allocation = result
	s.trace.Algorithm = result.Algorithm
	for _, w := range result.Warnings {
		s.trace.Warn(w)
	}
	if len(result.Solutions) == 0 {
		return fmt.Errorf("no feasible allocation solution for %d candidates", len(s.matching.Candidates))
	}
	return nil
}

func (a *Analyzer) stageFilterHard(ctx context.Context, s *state) error {
	s.hardFilter = a.evaluator.FilterHard(s.allocation.Solutions, s.parsed())
	return nil
}

func (a *Analyzer) stageScoreSoft(ctx context.Context, s *state) error {
	s.scores = a.evaluator.ScoreSoft(evaluation.ScoreInput{
		Solutions:       s.allocation.Solutions,
		Passing:         s.hardFilter.Passing,
		Violations:      s.hardFilter.Violations,
		Candidates:      s.matching.Candidates,
		Required:        s.matching.RequiredCapabilities,
		SimilarCases:    s.understanding.SimilarCases,
		Parsed:          s.parsed(),
		WeightsOverride: s.weights,
	})
	for _, w := range s.scores.Warnings {
		s.trace.Warn(w)
	}
	return nil
}

func (a *Analyzer) stageExplain(ctx context.Context, s *state) error {
	tctx, cancel := context.WithTimeout(ctx, a.cfg.GetLLMTimeout())
	defer cancel()

	var alternatives []types.AllocationSolution
	for _, solution := range s.allocation.Solutions {
		if solution.SolutionID != s.scores.Recommended.SolutionID {
			alternatives = append(alternatives, solution)
		}
	}
	var tasks []types.TaskSequenceItem
	if s.decomposition != nil {
		tasks = s.decomposition.TaskSequence
	}

	s.explanation = a.evaluator.Explain(tctx, s.scores.Recommended, s.parsed(), alternatives, tasks)
	if s.explanation.LLMUsed {
		s.trace.LLMCalls++
	}
	if s.explanation.Warning != "" {
		s.trace.Warn(s.explanation.Warning)
	}
	return nil
}

// stageAssemble is the terminal marker node. The Output record itself is
// built after the run so it can see the final trace and error list.
func (a *Analyzer) stageAssemble(ctx context.Context, s *state) error {
	return nil
}

func (a *Analyzer) assembleOutput(s *state, start time.Time) *types.Output {
	out := &types.Output{
		EventID:         s.req.EventID,
		ScenarioID:      s.req.ScenarioID,
		Trace:           s.trace,
		Errors:          append([]string{}, s.errors...),
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		CompletedAt:     time.Now().UTC().Format(time.RFC3339),
	}

	if s.understanding != nil {
		out.Understanding = &types.UnderstandingResult{
			ParsedDisaster: s.understanding.ParsedDisaster,
			SimilarCases:   s.understanding.SimilarCases,
			Summary:        s.understanding.Summary,
		}
	}
	if s.reasoning != nil {
		out.Reasoning = &types.ReasoningResult{
			MatchedRules:           s.reasoning.MatchedRules,
			TriggeredTasks:         s.reasoning.TriggeredTasks,
			CapabilityRequirements: s.reasoning.CapabilityRequirements,
			UsedDefaultRules:       s.reasoning.UsedDefaultRules,
		}
	}
	if s.decomposition != nil {
		out.HTNDecomposition = &types.HTNResult{
			SceneCodes:     s.decomposition.SceneCodes,
			TaskSequence:   s.decomposition.TaskSequence,
			ParallelGroups: s.decomposition.ParallelGroups,
		}
	}
	if s.matching != nil {
		out.Matching = &types.MatchingResult{
			Candidates:           s.matching.Candidates,
			RequiredCapabilities: s.matching.RequiredCapabilities,
			SearchRadiusKM:       s.matching.FinalRadiusKM,
		}
	}
	if s.allocation != nil {
		out.Optimization = &types.OptimizationResult{
			Solutions: s.allocation.Solutions,
			Algorithm: s.allocation.Algorithm,
		}
		if s.scores != nil {
			out.Optimization.SchemeScores = s.scores.SchemeScores
		}
	}
	if s.scores != nil {
		out.RecommendedScheme = s.scores.Recommended
	}
	if s.explanation != nil {
		out.SchemeExplanation = s.explanation.Text
	}

	out.Success = len(out.Errors) == 0 && out.RecommendedScheme != nil
	if out.Success {
		out.Status = types.StatusCompleted
	} else {
		out.Status = types.StatusFailed
	}
	return out
}
