package types

// =============================================================================
// TRACE
// =============================================================================

// Trace records the observable execution of one pipeline run. It is
// append-only while the run progresses.
type Trace struct {
	PhasesExecuted []string `json:"phases_executed"`

	LLMCalls int `json:"llm_calls"`
	RAGCalls int `json:"rag_calls"`
	KGCalls  int `json:"kg_calls"`

	// Matching notes.
	SearchExpanded    bool    `json:"search_expanded"`
	InitialDistanceKM float64 `json:"initial_distance_km,omitempty"`
	FinalDistanceKM   float64 `json:"final_distance_km,omitempty"`
	CandidatesCount   int     `json:"candidates_count"`

	// Allocation notes.
	Algorithm            string `json:"algorithm,omitempty"` // "nsga2" | "greedy"
	ParallelOptimization bool   `json:"parallel_optimization,omitempty"`

	// Reasoning / understanding notes.
	UsedDefaultRules  bool `json:"used_default_rules,omitempty"`
	PhysicsCalibrated bool `json:"physics_calibrated,omitempty"`

	// Recovered degradations (RAG down, optimizer fallback, partial
	// coverage). These are not errors: the run still counts as successful.
	Warnings []string `json:"warnings,omitempty"`

	StageDurationsMS map[string]int64 `json:"stage_durations_ms,omitempty"`
}

// NewTrace returns an empty trace ready for appending.
func NewTrace() *Trace {
	return &Trace{
		PhasesExecuted:   []string{},
		Warnings:         []string{},
		StageDurationsMS: make(map[string]int64),
	}
}

// AppendPhase records a completed stage.
func (t *Trace) AppendPhase(name string, durationMS int64) {
	t.PhasesExecuted = append(t.PhasesExecuted, name)
	t.StageDurationsMS[name] = durationMS
}

// Warn records a recovered degradation.
func (t *Trace) Warn(msg string) {
	t.Warnings = append(t.Warnings, msg)
}

// =============================================================================
// OUTPUT
// =============================================================================

// Run status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// UnderstandingResult groups the understanding stage outputs.
type UnderstandingResult struct {
	ParsedDisaster *ParsedDisaster `json:"parsed_disaster"`
	SimilarCases   []SimilarCase   `json:"similar_cases"`
	Summary        string          `json:"understanding_summary"`
}

// ReasoningResult groups the rule-reasoning outputs.
type ReasoningResult struct {
	MatchedRules           []MatchedRule           `json:"matched_rules"`
	TriggeredTasks         []TriggeredTask         `json:"triggered_tasks"`
	CapabilityRequirements []CapabilityRequirement `json:"capability_requirements"`
	UsedDefaultRules       bool                    `json:"used_default_rules"`
}

// HTNResult groups the decomposition outputs.
type HTNResult struct {
	SceneCodes     []string           `json:"scene_codes"`
	TaskSequence   []TaskSequenceItem `json:"task_sequence"`
	ParallelGroups []ParallelGroup    `json:"parallel_groups"`
}

// MatchingResult groups the matcher outputs.
type MatchingResult struct {
	Candidates           []ResourceCandidate `json:"candidates"`
	RequiredCapabilities []string            `json:"required_capabilities"`
	SearchRadiusKM       float64             `json:"search_radius_km"`
}

// OptimizationResult groups the allocator and evaluator outputs.
type OptimizationResult struct {
	Solutions    []AllocationSolution `json:"solutions"`
	SchemeScores []SchemeScore        `json:"scheme_scores"`
	Algorithm    string               `json:"algorithm"`
}

// Output is the single record returned to the caller. It is produced even on
// failure.
type Output struct {
	Success    bool   `json:"success"`
	EventID    string `json:"event_id"`
	ScenarioID string `json:"scenario_id"`
	Status     string `json:"status"` // completed | failed

	Understanding    *UnderstandingResult `json:"understanding"`
	Reasoning        *ReasoningResult     `json:"reasoning"`
	HTNDecomposition *HTNResult           `json:"htn_decomposition"`
	Matching         *MatchingResult      `json:"matching"`
	Optimization     *OptimizationResult  `json:"optimization"`

	RecommendedScheme *AllocationSolution `json:"recommended_scheme"`
	SchemeExplanation string              `json:"scheme_explanation"`

	Trace           *Trace   `json:"trace"`
	Errors          []string `json:"errors"`
	ExecutionTimeMS int64    `json:"execution_time_ms"`
	CompletedAt     string   `json:"completed_at"` // RFC 3339 UTC
}
