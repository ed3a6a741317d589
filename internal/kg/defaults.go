package kg

import "rescuecore/internal/types"

// defaultRules is the built-in TRR fact set loaded when no external graph
// feeds the store. Scene codes line up with the meta-task library's
// scene_to_chain mapping.
var defaultRules = []types.RawTRRRule{
	{
		RuleID:       "TRR-EQ-001",
		RuleName:     "earthquake collapse search and rescue",
		DisasterType: types.DisasterEarthquake,
		Priority:     types.PriorityCritical,
		Weight:       0.95,
		SceneCode:    "building-collapse-search",
		TriggerConditions: []string{
			"has_building_collapse = true",
		},
		TriggerLogic: "AND",
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
		RuleID:       "TRR-EQ-002",
		RuleName:     "major earthquake heavy response",
		DisasterType: types.DisasterEarthquake,
		Priority:     types.PriorityHigh,
		Weight:       0.85,
		SceneCode:    "earthquake-major",
		TriggerConditions: []string{
			"magnitude >= 6.0",
		},
		TriggerLogic: "AND",
		TriggeredTasks: []types.TriggeredTask{
			{TaskCode: "EMERGENCY_COMMAND", TaskName: "establish field command", Priority: types.PriorityCritical, Sequence: 1},
			{TaskCode: "HEAVY_RESCUE", TaskName: "heavy equipment rescue", Priority: types.PriorityHigh, Sequence: 3},
		},
		RequiredCapabilities: []types.RawCapability{
			{CapabilityCode: "HEAVY_EQUIPMENT", CapabilityName: "heavy rescue equipment"},
			{CapabilityCode: "EMERGENCY_COMMS", CapabilityName: "emergency communications"},
		},
	},
	{
		RuleID:       "TRR-EQ-003",
		RuleName:     "post-earthquake secondary fire",
		DisasterType: types.DisasterEarthquake,
		Priority:     types.PriorityHigh,
		Weight:       0.80,
		SceneCode:    "secondary-fire",
		TriggerConditions: []string{
			"has_secondary_fire = true",
		},
		TriggerLogic: "AND",
		TriggeredTasks: []types.TriggeredTask{
			{TaskCode: "FIRE_SUPPRESSION", TaskName: "fire suppression", Priority: types.PriorityHigh, Sequence: 2},
		},
		RequiredCapabilities: []types.RawCapability{
			{CapabilityCode: "FIRE_SUPPRESSION", CapabilityName: "fire suppression"},
		},
	},
	{
		RuleID:       "TRR-FL-001",
		RuleName:     "flood water rescue and evacuation",
		DisasterType: types.DisasterFlood,
		Priority:     types.PriorityCritical,
		Weight:       0.90,
		SceneCode:    "flood-water-rescue",
		// No conditions: any confirmed flood triggers water rescue.
		TriggerLogic: "AND",
		TriggeredTasks: []types.TriggeredTask{
			{TaskCode: "WATER_RESCUE", TaskName: "swift-water rescue", Priority: types.PriorityCritical, Sequence: 1},
			{TaskCode: "EVACUATION", TaskName: "population evacuation", Priority: types.PriorityHigh, Sequence: 2},
		},
		RequiredCapabilities: []types.RawCapability{
			{CapabilityCode: "WATER_RESCUE", CapabilityName: "water rescue"},
			{CapabilityCode: "BOAT_OPERATIONS", CapabilityName: "boat operations"},
			{CapabilityCode: "MEDICAL_TRIAGE", CapabilityName: "medical triage"},
		},
	},
	{
		RuleID:       "TRR-HZ-001",
		RuleName:     "hazardous material containment",
		DisasterType: types.DisasterHazmat,
		Priority:     types.PriorityCritical,
		Weight:       0.92,
		SceneCode:    "hazmat-containment",
		TriggerConditions: []string{
			"has_hazmat_leak = true",
		},
		TriggerLogic: "AND",
		TriggeredTasks: []types.TriggeredTask{
			{TaskCode: "HAZMAT_CONTAINMENT", TaskName: "leak containment", Priority: types.PriorityCritical, Sequence: 1},
			{TaskCode: "EVACUATION", TaskName: "population evacuation", Priority: types.PriorityCritical, Sequence: 2},
		},
		RequiredCapabilities: []types.RawCapability{
			{CapabilityCode: "CHEMICAL_DETECTION", CapabilityName: "chemical detection"},
			{CapabilityCode: "DECONTAMINATION", CapabilityName: "decontamination"},
			{CapabilityCode: "MEDICAL_TRIAGE", CapabilityName: "medical triage"},
		},
	},
	{
		RuleID:       "TRR-FR-001",
		RuleName:     "urban fire response",
		DisasterType: types.DisasterFire,
		Priority:     types.PriorityCritical,
		Weight:       0.90,
		SceneCode:    "fire-suppression",
		TriggerLogic: "AND",
		TriggeredTasks: []types.TriggeredTask{
			{TaskCode: "FIRE_SUPPRESSION", TaskName: "fire suppression", Priority: types.PriorityCritical, Sequence: 1},
			{TaskCode: "MEDICAL_EMERGENCY", TaskName: "emergency medical response", Priority: types.PriorityHigh, Sequence: 2},
		},
		RequiredCapabilities: []types.RawCapability{
			{CapabilityCode: "FIRE_SUPPRESSION", CapabilityName: "fire suppression"},
			{CapabilityCode: "MEDICAL_TRIAGE", CapabilityName: "medical triage"},
		},
	},
	{
		RuleID:       "TRR-LS-001",
		RuleName:     "landslide burial search",
		DisasterType: types.DisasterLandslide,
		Priority:     types.PriorityCritical,
		Weight:       0.88,
		SceneCode:    "landslide-search",
		TriggerLogic: "AND",
		TriggeredTasks: []types.TriggeredTask{
			{TaskCode: "SEARCH_RESCUE", TaskName: "search and rescue", Priority: types.PriorityCritical, Sequence: 1},
			{TaskCode: "HEAVY_RESCUE", TaskName: "heavy equipment rescue", Priority: types.PriorityHigh, Sequence: 2},
		},
		RequiredCapabilities: []types.RawCapability{
			{CapabilityCode: "LIFE_DETECTION", CapabilityName: "life detection"},
			{CapabilityCode: "HEAVY_EQUIPMENT", CapabilityName: "heavy rescue equipment"},
		},
	},
}

// defaultMappings records which canonical resource types provide each
// capability.
var defaultMappings = []types.CapabilityMapping{
	{CapabilityCode: "LIFE_DETECTION", CapabilityName: "life detection", ResourceTypes: []string{"RESCUE_TEAM"}},
	{CapabilityCode: "STRUCTURAL_RESCUE", CapabilityName: "structural rescue", ResourceTypes: []string{"RESCUE_TEAM", "ENGINEERING_TEAM"}},
	{CapabilityCode: "MEDICAL_TRIAGE", CapabilityName: "medical triage", ResourceTypes: []string{"MEDICAL_TEAM"}},
	{CapabilityCode: "FIRE_SUPPRESSION", CapabilityName: "fire suppression", ResourceTypes: []string{"FIRE_TEAM"}},
	{CapabilityCode: "WATER_RESCUE", CapabilityName: "water rescue", ResourceTypes: []string{"FLOOD_TEAM", "RESCUE_TEAM"}},
	{CapabilityCode: "BOAT_OPERATIONS", CapabilityName: "boat operations", ResourceTypes: []string{"FLOOD_TEAM"}},
	{CapabilityCode: "CHEMICAL_DETECTION", CapabilityName: "chemical detection", ResourceTypes: []string{"HAZMAT_TEAM"}},
	{CapabilityCode: "DECONTAMINATION", CapabilityName: "decontamination", ResourceTypes: []string{"HAZMAT_TEAM"}},
	{CapabilityCode: "HEAVY_EQUIPMENT", CapabilityName: "heavy rescue equipment", ResourceTypes: []string{"ENGINEERING_TEAM"}},
	{CapabilityCode: "EMERGENCY_COMMS", CapabilityName: "emergency communications", ResourceTypes: []string{"RESCUE_TEAM"}},
}

// LoadDefaults populates the graph with the built-in rule and mapping facts.
func (g *KnowledgeGraph) LoadDefaults() error {
	for _, rule := range defaultRules {
		if err := g.AddRule(rule); err != nil {
			return err
		}
	}
	for _, m := range defaultMappings {
		if err := g.AddCapabilityMapping(m); err != nil {
			return err
		}
	}
	logFactLoad("default TRR", g.FactCount())
	return nil
}
