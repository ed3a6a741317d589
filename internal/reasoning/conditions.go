// Package reasoning matches knowledge-graph TRR rules against the parsed
// disaster and derives the deduplicated task and capability requirements the
// downstream stages plan around.
package reasoning

import (
	"fmt"
	"strconv"
	"strings"

	"rescuecore/internal/types"
)

// Trigger-condition combinators.
const (
	LogicAND = "AND"
	LogicOR  = "OR"
)

// condition operators, longest first so ">=" wins over ">".
var conditionOps = []string{">=", ">", "="}

// EvalCondition evaluates one atomic condition of the form
// "field <op> literal" against the parsed disaster. Missing fields compare
// as falsy zero values; numerics are coerced; booleans compare as the
// literals true/false.
func EvalCondition(parsed *types.ParsedDisaster, condition string) (bool, error) {
	field, op, literal, err := splitCondition(condition)
	if err != nil {
		return false, err
	}

	value, found := fieldValue(parsed, field)

	// Boolean literal.
	if b, ok := parseBoolLiteral(literal); ok {
		if op != "=" {
			return false, fmt.Errorf("operator %q not defined for booleans in %q", op, condition)
		}
		fv := false
		if found {
			fv = coerceBool(value)
		}
		return fv == b, nil
	}

	// Numeric literal.
	if n, err := strconv.ParseFloat(literal, 64); err == nil {
		fv := 0.0
		if found {
			var ok bool
			fv, ok = coerceFloat(value)
			if !ok {
				return false, nil
			}
		}
		switch op {
		case "=":
			return fv == n, nil
		case ">=":
			return fv >= n, nil
		case ">":
			return fv > n, nil
		}
	}

	// String literal.
	if op != "=" {
		return false, fmt.Errorf("operator %q not defined for strings in %q", op, condition)
	}
	fv := ""
	if found {
		fv = fmt.Sprintf("%v", value)
	}
	return strings.EqualFold(fv, literal), nil
}

// EvalConditions applies the rule's combinator over its condition list. An
// empty list trivially matches.
func EvalConditions(parsed *types.ParsedDisaster, conditions []string, logic string) (bool, []string, error) {
	if len(conditions) == 0 {
		return true, nil, nil
	}

	logic = strings.ToUpper(strings.TrimSpace(logic))
	if logic != LogicOR {
		logic = LogicAND
	}

	var held []string
	for _, cond := range conditions {
		ok, err := EvalCondition(parsed, cond)
		if err != nil {
			return false, nil, err
		}
		if ok {
			held = append(held, cond)
			if logic == LogicOR {
				return true, held, nil
			}
		} else if logic == LogicAND {
			return false, nil, nil
		}
	}
	if logic == LogicAND {
		return true, held, nil
	}
	return false, nil, nil
}

func splitCondition(condition string) (field, op, literal string, err error) {
	for _, candidate := range conditionOps {
		if idx := strings.Index(condition, candidate); idx > 0 {
			field = strings.TrimSpace(condition[:idx])
			literal = strings.TrimSpace(condition[idx+len(candidate):])
			if field == "" || literal == "" {
				return "", "", "", fmt.Errorf("malformed condition %q", condition)
			}
			return field, candidate, literal, nil
		}
	}
	return "", "", "", fmt.Errorf("no operator in condition %q", condition)
}

func parseBoolLiteral(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// fieldValue resolves a condition field against the parsed record. Unknown
// names fall through to the additional-info bag.
func fieldValue(p *types.ParsedDisaster, field string) (interface{}, bool) {
	if p == nil {
		return nil, false
	}
	switch field {
	case "disaster_type":
		return string(p.DisasterType), true
	case "severity":
		return string(p.Severity), true
	case "disaster_level":
		return string(p.Level), p.Level != ""
	case "magnitude":
		return p.Magnitude, true
	case "depth_km":
		return p.DepthKM, true
	case "affected_area_km2":
		return p.AffectedArea, true
	case "has_building_collapse":
		return p.HasBuildingCollapse, true
	case "has_trapped_persons":
		return p.HasTrappedPersons, true
	case "has_secondary_fire":
		return p.HasSecondaryFire, true
	case "has_hazmat_leak":
		return p.HasHazmatLeak, true
	case "has_road_damage":
		return p.HasRoadDamage, true
	case "estimated_trapped":
		return p.EstimatedTrapped, true
	case "affected_population":
		return p.AffectedPopulation, true
	}
	if p.AdditionalInfo != nil {
		if v, ok := p.AdditionalInfo[field]; ok {
			return v, true
		}
	}
	return nil, false
}

func coerceBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	case float64:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}

func coerceFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
