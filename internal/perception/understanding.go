package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"rescuecore/internal/types"
)

// ValidationError reports LLM output that failed structural validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid LLM output: %s: %s", e.Field, e.Message)
}

const parseSystemPrompt = `You are an emergency response analyst. Extract structured disaster facts from incident reports. Respond with a single JSON object and no surrounding prose.`

// disasterPayload mirrors ParsedDisaster with lenient numeric typing so that
// whole-number floats from the LLM unmarshal cleanly.
type disasterPayload struct {
	DisasterType string `json:"disaster_type"`
	Severity     string `json:"severity"`

	Magnitude     float64 `json:"magnitude"`
	DepthKM       float64 `json:"depth_km"`
	AffectedArea  float64 `json:"affected_area_km2"`
	DisasterLevel string  `json:"disaster_level"`

	HasBuildingCollapse bool `json:"has_building_collapse"`
	HasTrappedPersons   bool `json:"has_trapped_persons"`
	HasSecondaryFire    bool `json:"has_secondary_fire"`
	HasHazmatLeak       bool `json:"has_hazmat_leak"`
	HasRoadDamage       bool `json:"has_road_damage"`

	EstimatedTrapped   float64 `json:"estimated_trapped"`
	AffectedPopulation float64 `json:"affected_population"`

	AdditionalInfo map[string]interface{} `json:"additional_info"`
}

func buildParsePrompt(description string, structured map[string]interface{}) string {
	known := "none"
	if len(structured) > 0 {
		if data, err := json.Marshal(structured); err == nil {
			known = string(data)
		}
	}

	return fmt.Sprintf(`Extract structured facts from this disaster report.

REPORT:
%s

KNOWN DATA (already confirmed, do not contradict):
%s

DISASTER TYPES: earthquake, flood, hazmat, fire, landslide, unknown
SEVERITY: critical, high, medium, low
DISASTER LEVEL: I (worst) to IV, omit if unsure

Use 0 for unknown numbers and false for unreported conditions.

Return JSON only: {"disaster_type": "...", "severity": "...", "magnitude": 0.0, "depth_km": 0.0, "affected_area_km2": 0.0, "disaster_level": "", "has_building_collapse": false, "has_trapped_persons": false, "has_secondary_fire": false, "has_hazmat_leak": false, "has_road_damage": false, "estimated_trapped": 0, "affected_population": 0, "additional_info": {}}`,
		strings.TrimSpace(description), known)
}

// ParseDisaster asks the LLM for a structured reading of the report and
// validates the result. The disaster_type key is mandatory; enumerations are
// clamped to their known values.
func ParseDisaster(ctx context.Context, llm LLMClient, description string, structured map[string]interface{}) (*types.ParsedDisaster, error) {
	// Step 1: LLM call.
	raw, err := llm.CompleteWithSystem(ctx, parseSystemPrompt, buildParsePrompt(description, structured))
	if err != nil {
		return nil, fmt.Errorf("disaster parse call failed: %w", err)
	}

	// Step 2: Parse and type-check the JSON.
	var payload disasterPayload
	if err := json.Unmarshal([]byte(cleanJSONResponse(raw)), &payload); err != nil {
		return nil, &ValidationError{Field: "json", Message: err.Error()}
	}

	// Step 3: Mandatory key check.
	if strings.TrimSpace(payload.DisasterType) == "" {
		return nil, &ValidationError{Field: "disaster_type", Message: "mandatory key absent"}
	}

	// Step 4: Clamp enumerations and normalize counters.
	parsed := &types.ParsedDisaster{
		DisasterType:        types.ClampDisasterType(payload.DisasterType),
		Severity:            types.ClampSeverity(payload.Severity),
		Magnitude:           nonNegative(payload.Magnitude),
		DepthKM:             nonNegative(payload.DepthKM),
		AffectedArea:        nonNegative(payload.AffectedArea),
		Level:               clampLevel(payload.DisasterLevel),
		HasBuildingCollapse: payload.HasBuildingCollapse,
		HasTrappedPersons:   payload.HasTrappedPersons,
		HasSecondaryFire:    payload.HasSecondaryFire,
		HasHazmatLeak:       payload.HasHazmatLeak,
		HasRoadDamage:       payload.HasRoadDamage,
		EstimatedTrapped:    int(nonNegative(payload.EstimatedTrapped)),
		AffectedPopulation:  int(nonNegative(payload.AffectedPopulation)),
		AdditionalInfo:      payload.AdditionalInfo,
	}
	if parsed.EstimatedTrapped > 0 {
		parsed.HasTrappedPersons = true
	}
	return parsed, nil
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func clampLevel(s string) types.DisasterLevel {
	switch types.DisasterLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case types.LevelI:
		return types.LevelI
	case types.LevelII:
		return types.LevelII
	case types.LevelIII:
		return types.LevelIII
	case types.LevelIV:
		return types.LevelIV
	default:
		return ""
	}
}

// hint keys copied from structured input into the parsed record so the
// physics assessors see operator-confirmed numbers.
var numericHintKeys = []string{"rainfall_mm", "wind_speed", "population_density", "release_rate_kgs"}

// mergeStructuredHints backfills parsed fields from operator-supplied
// structured input. Confirmed data wins over LLM guesses only where the LLM
// left the field empty; hint keys land in additional_info for the assessors.
func mergeStructuredHints(parsed *types.ParsedDisaster, req *types.Request) {
	if parsed == nil || req == nil {
		return
	}
	if parsed.Magnitude == 0 {
		if m, ok := req.NumericHint("magnitude"); ok {
			parsed.Magnitude = m
		}
	}
	if parsed.DepthKM == 0 {
		if d, ok := req.NumericHint("depth_km"); ok {
			parsed.DepthKM = d
		}
	}
	if parsed.DisasterType == types.DisasterUnknown {
		if hint := req.DisasterTypeHint(); hint != "" {
			parsed.DisasterType = types.ClampDisasterType(hint)
		}
	}
	for _, key := range numericHintKeys {
		if v, ok := req.NumericHint(key); ok {
			if _, present := parsed.AdditionalInfo[key]; !present {
				parsed.SetInfo(key, v)
			}
		}
	}
	if req.StructuredInput != nil {
		if ct, ok := req.StructuredInput["chemical_type"].(string); ok && ct != "" {
			if _, present := parsed.AdditionalInfo["chemical_type"]; !present {
				parsed.SetInfo("chemical_type", ct)
			}
		}
	}
}

// buildSummary produces the one-sentence human reading of the situation.
func buildSummary(parsed *types.ParsedDisaster, cases []types.SimilarCase) string {
	if parsed == nil {
		return ""
	}
	var b strings.Builder
	if parsed.Magnitude > 0 {
		fmt.Fprintf(&b, "M%.1f ", parsed.Magnitude)
	}
	fmt.Fprintf(&b, "%s, severity %s", parsed.DisasterType, parsed.Severity)
	if parsed.Level != "" {
		fmt.Fprintf(&b, " (level %s)", parsed.Level)
	}
	if parsed.EstimatedTrapped > 0 {
		fmt.Fprintf(&b, ", ~%d trapped", parsed.EstimatedTrapped)
	}
	if parsed.AffectedPopulation > 0 {
		fmt.Fprintf(&b, ", %d affected", parsed.AffectedPopulation)
	}
	var conditions []string
	if parsed.HasBuildingCollapse {
		conditions = append(conditions, "building collapse")
	}
	if parsed.HasSecondaryFire {
		conditions = append(conditions, "secondary fire")
	}
	if parsed.HasHazmatLeak {
		conditions = append(conditions, "hazmat leak")
	}
	if parsed.HasRoadDamage {
		conditions = append(conditions, "road damage")
	}
	if len(conditions) > 0 {
		fmt.Fprintf(&b, "; reported: %s", strings.Join(conditions, ", "))
	}
	if len(cases) > 0 {
		fmt.Fprintf(&b, "; %d similar historical case(s)", len(cases))
	}
	b.WriteString(".")
	return b.String()
}
