// Package types provides shared type definitions used across rescuecore packages.
// This package exists to break import cycles between the pipeline, the stage
// packages, and the adapters. Types in this package are foundational data
// structures with no complex dependencies.
package types

import "strings"

// =============================================================================
// ENUMERATIONS
// =============================================================================

// DisasterType identifies the hazard family a request concerns.
type DisasterType string

const (
	DisasterEarthquake DisasterType = "earthquake"
	DisasterFlood      DisasterType = "flood"
	DisasterHazmat     DisasterType = "hazmat"
	DisasterFire       DisasterType = "fire"
	DisasterLandslide  DisasterType = "landslide"
	DisasterUnknown    DisasterType = "unknown"
)

// ClampDisasterType maps arbitrary input to a known disaster type.
// Unrecognized values become DisasterUnknown.
func ClampDisasterType(s string) DisasterType {
	switch DisasterType(strings.ToLower(strings.TrimSpace(s))) {
	case DisasterEarthquake:
		return DisasterEarthquake
	case DisasterFlood:
		return DisasterFlood
	case DisasterHazmat:
		return DisasterHazmat
	case DisasterFire:
		return DisasterFire
	case DisasterLandslide:
		return DisasterLandslide
	default:
		return DisasterUnknown
	}
}

// Severity grades how serious a disaster is assessed to be.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ClampSeverity maps arbitrary input to a known severity.
// Unrecognized values become SeverityMedium.
func ClampSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// Priority orders rules and tasks. Lower rank means more urgent.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns the ordering position of a priority: critical=0 .. low=3.
// Unknown priorities rank after low.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// ClampPriority maps arbitrary input to a known priority, defaulting to medium.
func ClampPriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityCritical:
		return PriorityCritical
	case PriorityHigh:
		return PriorityHigh
	case PriorityMedium:
		return PriorityMedium
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// DisasterLevel is the national response classification, I (worst) to IV.
type DisasterLevel string

const (
	LevelI   DisasterLevel = "I"
	LevelII  DisasterLevel = "II"
	LevelIII DisasterLevel = "III"
	LevelIV  DisasterLevel = "IV"
)

// =============================================================================
// UNDERSTANDING RECORDS
// =============================================================================

// ParsedDisaster is the structured reading of the free-text disaster
// description, set by the understanding stage and read-only afterwards.
type ParsedDisaster struct {
	DisasterType DisasterType  `json:"disaster_type"`
	Severity     Severity      `json:"severity"`
	Magnitude    float64       `json:"magnitude,omitempty"`
	DepthKM      float64       `json:"depth_km,omitempty"`
	AffectedArea float64       `json:"affected_area_km2,omitempty"`
	Level        DisasterLevel `json:"disaster_level,omitempty"`

	HasBuildingCollapse bool `json:"has_building_collapse"`
	HasTrappedPersons   bool `json:"has_trapped_persons"`
	HasSecondaryFire    bool `json:"has_secondary_fire"`
	HasHazmatLeak       bool `json:"has_hazmat_leak"`
	HasRoadDamage       bool `json:"has_road_damage"`

	EstimatedTrapped   int `json:"estimated_trapped"`
	AffectedPopulation int `json:"affected_population"`

	AdditionalInfo map[string]interface{} `json:"additional_info,omitempty"`
}

// SetInfo records a key in the additional-info bag, allocating it on first use.
func (p *ParsedDisaster) SetInfo(key string, value interface{}) {
	if p.AdditionalInfo == nil {
		p.AdditionalInfo = make(map[string]interface{})
	}
	p.AdditionalInfo[key] = value
}

// SimilarCase is a historical incident retrieved for context.
type SimilarCase struct {
	CaseID          string   `json:"case_id"`
	DisasterType    string   `json:"disaster_type"`
	Summary         string   `json:"summary"`
	SimilarityScore float64  `json:"similarity_score"`
	Lessons         []string `json:"lessons,omitempty"`
	BestPractices   []string `json:"best_practices,omitempty"`
}

// =============================================================================
// RULE REASONING RECORDS
// =============================================================================

// TriggeredTask is a task launched by a matched rule, before deduplication.
type TriggeredTask struct {
	TaskCode string   `json:"task_code"`
	TaskName string   `json:"task_name"`
	Priority Priority `json:"priority"`
	Sequence int      `json:"sequence"`
}

// RawCapability is a capability reference inside a raw rule record.
type RawCapability struct {
	CapabilityCode string `json:"capability_code"`
	CapabilityName string `json:"capability_name"`
}

// RawTRRRule is a trigger-response-rule record as returned by the knowledge
// graph, before trigger-condition evaluation.
type RawTRRRule struct {
	RuleID               string          `json:"rule_id"`
	RuleName             string          `json:"rule_name"`
	DisasterType         DisasterType    `json:"disaster_type"`
	Priority             Priority        `json:"priority"`
	Weight               float64         `json:"weight"`
	SceneCode            string          `json:"scene_code"`
	TriggerConditions    []string        `json:"trigger_conditions"`
	TriggerLogic         string          `json:"trigger_logic"` // "AND" | "OR", default AND
	TriggeredTasks       []TriggeredTask `json:"triggered_tasks"`
	RequiredCapabilities []RawCapability `json:"required_capabilities"`
}

// MatchedRule is a rule whose trigger conditions held against the parsed
// disaster.
type MatchedRule struct {
	RuleID                  string   `json:"rule_id"`
	RuleName                string   `json:"rule_name"`
	Priority                Priority `json:"priority"`
	Weight                  float64  `json:"weight"`
	SceneCode               string   `json:"scene_code"`
	TriggeredTaskCodes      []string `json:"triggered_task_codes"`
	RequiredCapabilityCodes []string `json:"required_capability_codes"`
	MatchReason             string   `json:"match_reason"`
}

// CapabilityRequirement is a deduplicated capability the response must cover,
// annotated with the resource types able to provide it.
type CapabilityRequirement struct {
	CapabilityCode string   `json:"capability_code"`
	CapabilityName string   `json:"capability_name"`
	Priority       Priority `json:"priority"`
	ProvidedBy     []string `json:"provided_by"`
}

// CapabilityMapping links a capability code to the resource types providing it.
type CapabilityMapping struct {
	CapabilityCode string   `json:"capability_code"`
	CapabilityName string   `json:"capability_name"`
	ResourceTypes  []string `json:"resource_types"`
}

// =============================================================================
// HTN RECORDS
// =============================================================================

// TaskSequenceItem is one step of the decomposed task sequence. Every id in
// DependsOn appears earlier in the sequence.
type TaskSequenceItem struct {
	SequenceIndex int      `json:"sequence_index"` // 1-based
	TaskID        string   `json:"task_id"`
	TaskName      string   `json:"task_name"`
	DependsOn     []string `json:"depends_on"`
	SceneCodes    []string `json:"scene_codes"`
}

// ParallelGroup is the set of tasks sharing one topological level; members
// have no dependencies on each other and may run concurrently.
type ParallelGroup struct {
	Level   int      `json:"level"`
	TaskIDs []string `json:"task_ids"`
}

// =============================================================================
// MATCHING AND ALLOCATION RECORDS
// =============================================================================

// Team is a rescue team row as the registry adapter returns it. Status
// filtering (standby only) and distance ordering happen inside the adapter.
type Team struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	TeamType            string   `json:"team_type"`
	ResourceType        string   `json:"resource_type"`
	BaseLat             float64  `json:"base_lat"`
	BaseLng             float64  `json:"base_lng"`
	BaseAddress         string   `json:"base_address"`
	TotalPersonnel      int      `json:"total_personnel"`
	AvailablePersonnel  int      `json:"available_personnel"`
	CapabilityLevel     int      `json:"capability_level"` // 1..5
	ResponseTimeMinutes int      `json:"response_time_minutes"`
	Status              string   `json:"status"`
	Capabilities        []string `json:"capabilities"`
	DistanceM           float64  `json:"distance_m"`
}

// ResourceCandidate is a scored team eligible for allocation. Capabilities
// holds only the codes matched against the requirements.
type ResourceCandidate struct {
	ResourceID      string   `json:"resource_id"`
	ResourceName    string   `json:"resource_name"`
	ResourceType    string   `json:"resource_type"`
	Capabilities    []string `json:"capabilities"`
	DistanceKM      float64  `json:"distance_km"`
	ETAMinutes      float64  `json:"eta_minutes"`
	CapabilityLevel int      `json:"capability_level"`
	Personnel       int      `json:"personnel"`
	MatchScore      float64  `json:"match_score"`
}

// Allocation assigns one candidate a subset of the required capabilities.
type Allocation struct {
	ResourceID           string   `json:"resource_id"`
	ResourceName         string   `json:"resource_name"`
	AssignedCapabilities []string `json:"assigned_capabilities"`
	DistanceKM           float64  `json:"distance_km"`
	ETAMinutes           float64  `json:"eta_minutes"`
	MatchScore           float64  `json:"match_score"`
}

// AllocationSolution is one complete response plan: a set of teams with
// per-team capability assignments.
type AllocationSolution struct {
	SolutionID            string       `json:"solution_id"`
	Allocations           []Allocation `json:"allocations"`
	ResponseTimeMin       float64      `json:"response_time_min"`
	CoverageRate          float64      `json:"coverage_rate"`
	TotalScore            float64      `json:"total_score"`
	RiskLevel             float64      `json:"risk_level"`
	UncoveredCapabilities []string     `json:"uncovered_capabilities"`
	TeamsCount            int          `json:"teams_count"`
}

// ResourceIDKey returns a canonical key for the solution's team set, used to
// deduplicate solutions that select the same teams.
func (s *AllocationSolution) ResourceIDKey() string {
	ids := make([]string, 0, len(s.Allocations))
	for _, a := range s.Allocations {
		ids = append(ids, a.ResourceID)
	}
	// Insertion order is not canonical; sort for a stable key.
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	return strings.Join(ids, "|")
}

// =============================================================================
// EVALUATION RECORDS
// =============================================================================

// SoftScores holds the five normalized evaluation dimensions, each in [0,1].
type SoftScores struct {
	SuccessRate  float64 `json:"success_rate"`
	ResponseTime float64 `json:"response_time"`
	CoverageRate float64 `json:"coverage_rate"`
	Risk         float64 `json:"risk"`
	Redundancy   float64 `json:"redundancy"`
}

// SchemeScore is the evaluation verdict for one allocation solution.
type SchemeScore struct {
	SchemeID           string     `json:"scheme_id"`
	HardRulePassed     bool       `json:"hard_rule_passed"`
	HardRuleViolations []string   `json:"hard_rule_violations,omitempty"`
	SoftRuleScores     SoftScores `json:"soft_rule_scores"`
	WeightedScore      float64    `json:"weighted_score"`
	Rank               int        `json:"rank,omitempty"` // 1-based within passing set

	// Catastrophe-mode annotations. Set only on the combined emergency
	// solution produced when no solution passes the hard rules.
	CatastropheMode       bool   `json:"catastrophe_mode,omitempty"`
	RequiresReinforcement bool   `json:"requires_reinforcement,omitempty"`
	ReinforcementLevel    string `json:"reinforcement_level,omitempty"`
	ReinforcementMessage  string `json:"reinforcement_message,omitempty"`
	CapacityGap           int    `json:"capacity_gap,omitempty"`
	CapacityWarning       string `json:"capacity_warning,omitempty"`
}
