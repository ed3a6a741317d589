package reasoning

import "rescuecore/internal/types"

// Built-in default rules, used when the knowledge graph returns nothing (or
// is unreachable). Keyed on disaster type; the condition evaluator then
// narrows by the parsed boolean flags, so the fallback stays deterministic.
var defaultRulesByType = map[types.DisasterType][]types.RawTRRRule{
	types.DisasterEarthquake: {
		{
			RuleID:            "DEFAULT-EQ-001",
			RuleName:          "default earthquake collapse response",
			DisasterType:      types.DisasterEarthquake,
			Priority:          types.PriorityCritical,
			Weight:            0.8,
			SceneCode:         "building-collapse-search",
			TriggerConditions: []string{"has_building_collapse = true"},
			TriggerLogic:      LogicAND,
			TriggeredTasks: []types.TriggeredTask{
				{TaskCode: "SEARCH_RESCUE", TaskName: "search and rescue", Priority: types.PriorityCritical, Sequence: 1},
				{TaskCode: "MEDICAL_EMERGENCY", TaskName: "emergency medical response", Priority: types.PriorityHigh, Sequence: 2},
			},
			RequiredCapabilities: []types.RawCapability{
				{CapabilityCode: "LIFE_DETECTION", CapabilityName: "life detection"},
				{CapabilityCode: "STRUCTURAL_RESCUE", CapabilityName: "structural rescue"},
				{CapabilityCode: "MEDICAL_TRIAGE", CapabilityName: "medical triage"},
			},
		},
		{
			RuleID:            "DEFAULT-EQ-002",
			RuleName:          "default earthquake secondary fire",
			DisasterType:      types.DisasterEarthquake,
			Priority:          types.PriorityHigh,
			Weight:            0.7,
			SceneCode:         "secondary-fire",
			TriggerConditions: []string{"has_secondary_fire = true"},
			TriggerLogic:      LogicAND,
			TriggeredTasks: []types.TriggeredTask{
				{TaskCode: "FIRE_SUPPRESSION", TaskName: "fire suppression", Priority: types.PriorityHigh, Sequence: 2},
			},
			RequiredCapabilities: []types.RawCapability{
				{CapabilityCode: "FIRE_SUPPRESSION", CapabilityName: "fire suppression"},
			},
		},
		{
			RuleID:       "DEFAULT-EQ-003",
			RuleName:     "default earthquake baseline",
			DisasterType: types.DisasterEarthquake,
			Priority:     types.PriorityHigh,
			Weight:       0.6,
			SceneCode:    "earthquake-major",
			TriggerLogic: LogicAND,
			TriggeredTasks: []types.TriggeredTask{
				{TaskCode: "SEARCH_RESCUE", TaskName: "search and rescue", Priority: types.PriorityCritical, Sequence: 1},
				{TaskCode: "MEDICAL_EMERGENCY", TaskName: "emergency medical response", Priority: types.PriorityHigh, Sequence: 2},
			},
			RequiredCapabilities: []types.RawCapability{
				{CapabilityCode: "LIFE_DETECTION", CapabilityName: "life detection"},
				{CapabilityCode: "MEDICAL_TRIAGE", CapabilityName: "medical triage"},
			},
		},
	},
	types.DisasterFlood: {
		{
			RuleID:       "DEFAULT-FL-001",
			RuleName:     "default flood response",
			DisasterType: types.DisasterFlood,
			Priority:     types.PriorityCritical,
			Weight:       0.8,
			SceneCode:    "flood-water-rescue",
			TriggerLogic: LogicAND,
			TriggeredTasks: []types.TriggeredTask{
				{TaskCode: "WATER_RESCUE", TaskName: "swift-water rescue", Priority: types.PriorityCritical, Sequence: 1},
				{TaskCode: "EVACUATION", TaskName: "population evacuation", Priority: types.PriorityHigh, Sequence: 2},
			},
			RequiredCapabilities: []types.RawCapability{
				{CapabilityCode: "WATER_RESCUE", CapabilityName: "water rescue"},
				{CapabilityCode: "MEDICAL_TRIAGE", CapabilityName: "medical triage"},
			},
		},
	},
	types.DisasterHazmat: {
		{
			RuleID:       "DEFAULT-HZ-001",
			RuleName:     "default hazmat response",
			DisasterType: types.DisasterHazmat,
			Priority:     types.PriorityCritical,
			Weight:       0.8,
			SceneCode:    "hazmat-containment",
			TriggerLogic: LogicAND,
			TriggeredTasks: []types.TriggeredTask{
				{TaskCode: "HAZMAT_CONTAINMENT", TaskName: "leak containment", Priority: types.PriorityCritical, Sequence: 1},
				{TaskCode: "EVACUATION", TaskName: "population evacuation", Priority: types.PriorityCritical, Sequence: 2},
			},
			RequiredCapabilities: []types.RawCapability{
				{CapabilityCode: "CHEMICAL_DETECTION", CapabilityName: "chemical detection"},
				{CapabilityCode: "DECONTAMINATION", CapabilityName: "decontamination"},
			},
		},
	},
	types.DisasterFire: {
		{
			RuleID:       "DEFAULT-FR-001",
			RuleName:     "default fire response",
			DisasterType: types.DisasterFire,
			Priority:     types.PriorityCritical,
			Weight:       0.8,
			SceneCode:    "fire-suppression",
			TriggerLogic: LogicAND,
			TriggeredTasks: []types.TriggeredTask{
				{TaskCode: "FIRE_SUPPRESSION", TaskName: "fire suppression", Priority: types.PriorityCritical, Sequence: 1},
				{TaskCode: "MEDICAL_EMERGENCY", TaskName: "emergency medical response", Priority: types.PriorityHigh, Sequence: 2},
			},
			RequiredCapabilities: []types.RawCapability{
				{CapabilityCode: "FIRE_SUPPRESSION", CapabilityName: "fire suppression"},
				{CapabilityCode: "MEDICAL_TRIAGE", CapabilityName: "medical triage"},
			},
		},
	},
	types.DisasterLandslide: {
		{
			RuleID:       "DEFAULT-LS-001",
			RuleName:     "default landslide response",
			DisasterType: types.DisasterLandslide,
			Priority:     types.PriorityCritical,
			Weight:       0.8,
			SceneCode:    "landslide-search",
			TriggerLogic: LogicAND,
			TriggeredTasks: []types.TriggeredTask{
				{TaskCode: "SEARCH_RESCUE", TaskName: "search and rescue", Priority: types.PriorityCritical, Sequence: 1},
				{TaskCode: "HEAVY_RESCUE", TaskName: "heavy equipment rescue", Priority: types.PriorityHigh, Sequence: 2},
			},
			RequiredCapabilities: []types.RawCapability{
				{CapabilityCode: "LIFE_DETECTION", CapabilityName: "life detection"},
				{CapabilityCode: "HEAVY_EQUIPMENT", CapabilityName: "heavy rescue equipment"},
			},
		},
	},
	types.DisasterUnknown: {
		{
			RuleID:       "DEFAULT-GEN-001",
			RuleName:     "default general response",
			DisasterType: types.DisasterUnknown,
			Priority:     types.PriorityHigh,
			Weight:       0.5,
			SceneCode:    "general-response",
			TriggerLogic: LogicAND,
			TriggeredTasks: []types.TriggeredTask{
				{TaskCode: "SEARCH_RESCUE", TaskName: "search and rescue", Priority: types.PriorityHigh, Sequence: 1},
				{TaskCode: "MEDICAL_EMERGENCY", TaskName: "emergency medical response", Priority: types.PriorityHigh, Sequence: 2},
			},
			RequiredCapabilities: []types.RawCapability{
				{CapabilityCode: "LIFE_DETECTION", CapabilityName: "life detection"},
				{CapabilityCode: "MEDICAL_TRIAGE", CapabilityName: "medical triage"},
			},
		},
	},
}

// DefaultRules returns the built-in rules for a disaster type.
func DefaultRules(disasterType types.DisasterType) []types.RawTRRRule {
	if rules, ok := defaultRulesByType[disasterType]; ok {
		return rules
	}
	return defaultRulesByType[types.DisasterUnknown]
}

// builtinProviders is the fallback capability-to-resource mapping used when
// the knowledge graph cannot answer the mapping query.
var builtinProviders = map[string][]string{
	"LIFE_DETECTION":     {"RESCUE_TEAM"},
	"STRUCTURAL_RESCUE":  {"RESCUE_TEAM", "ENGINEERING_TEAM"},
	"MEDICAL_TRIAGE":     {"MEDICAL_TEAM"},
	"FIRE_SUPPRESSION":   {"FIRE_TEAM"},
	"WATER_RESCUE":       {"FLOOD_TEAM", "RESCUE_TEAM"},
	"BOAT_OPERATIONS":    {"FLOOD_TEAM"},
	"CHEMICAL_DETECTION": {"HAZMAT_TEAM"},
	"DECONTAMINATION":    {"HAZMAT_TEAM"},
	"HEAVY_EQUIPMENT":    {"ENGINEERING_TEAM"},
	"EMERGENCY_COMMS":    {"RESCUE_TEAM"},
}
