package types

import "math"

// Default request constraints applied by Normalize.
const (
	DefaultMaxResponseTimeHours = 2.0
	DefaultNAlternatives        = 5
)

// Constraints bounds the search and the number of alternatives. Zero values
// mean "not set"; Normalize substitutes the defaults.
type Constraints struct {
	MaxResponseTimeHours float64 `json:"max_response_time_hours,omitempty" yaml:"max_response_time_hours,omitempty"`
	MaxTeams             int     `json:"max_teams,omitempty" yaml:"max_teams,omitempty"`
	NAlternatives        int     `json:"n_alternatives,omitempty" yaml:"n_alternatives,omitempty"`
}

// Normalize fills unset constraint fields with their defaults. MaxTeams stays
// zero when absent: the disaster-scale cap applies instead.
func (c *Constraints) Normalize() {
	if c.MaxResponseTimeHours <= 0 {
		c.MaxResponseTimeHours = DefaultMaxResponseTimeHours
	}
	if c.NAlternatives <= 0 {
		c.NAlternatives = DefaultNAlternatives
	}
}

// Weights are the five soft-scoring dimension weights. They must sum to 1.0.
type Weights struct {
	SuccessRate  float64 `json:"success_rate" yaml:"success_rate"`
	ResponseTime float64 `json:"response_time" yaml:"response_time"`
	CoverageRate float64 `json:"coverage_rate" yaml:"coverage_rate"`
	Risk         float64 `json:"risk" yaml:"risk"`
	Redundancy   float64 `json:"redundancy" yaml:"redundancy"`
}

// DefaultWeights returns the standard 5-D weighting.
func DefaultWeights() Weights {
	return Weights{
		SuccessRate:  0.35,
		ResponseTime: 0.30,
		CoverageRate: 0.20,
		Risk:         0.05,
		Redundancy:   0.10,
	}
}

// Sum returns the total of all five weights.
func (w Weights) Sum() float64 {
	return w.SuccessRate + w.ResponseTime + w.CoverageRate + w.Risk + w.Redundancy
}

// Valid reports whether the weights sum to 1.0 within 1e-6.
func (w Weights) Valid() bool {
	return math.Abs(w.Sum()-1.0) <= 1e-6
}

// IsZero reports whether no weight is set at all (absent override).
func (w Weights) IsZero() bool {
	return w.Sum() == 0
}

// Request is the immutable input to one pipeline run.
type Request struct {
	EventID             string                 `json:"event_id"`
	ScenarioID          string                 `json:"scenario_id"`
	DisasterDescription string                 `json:"disaster_description"`
	StructuredInput     map[string]interface{} `json:"structured_input,omitempty"`
	Constraints         Constraints            `json:"constraints,omitempty"`
	OptimizationWeights *Weights               `json:"optimization_weights,omitempty"`
}

// Location returns the event coordinates from the structured input. Both the
// {latitude, longitude} and the {lat, lng} key conventions are accepted.
func (r *Request) Location() (lat, lng float64, ok bool) {
	if r.StructuredInput == nil {
		return 0, 0, false
	}
	loc, found := r.StructuredInput["location"].(map[string]interface{})
	if !found {
		return 0, 0, false
	}
	lat, latOK := numeric(loc["latitude"])
	lng, lngOK := numeric(loc["longitude"])
	if !latOK || !lngOK {
		lat, latOK = numeric(loc["lat"])
		lng, lngOK = numeric(loc["lng"])
	}
	if !latOK || !lngOK {
		return 0, 0, false
	}
	return lat, lng, true
}

// DisasterTypeHint returns the structured disaster_type hint, if present.
func (r *Request) DisasterTypeHint() string {
	if r.StructuredInput == nil {
		return ""
	}
	if s, ok := r.StructuredInput["disaster_type"].(string); ok {
		return s
	}
	return ""
}

// NumericHint returns a numeric structured-input field such as magnitude,
// depth_km, rainfall_mm, wind_speed.
func (r *Request) NumericHint(key string) (float64, bool) {
	if r.StructuredInput == nil {
		return 0, false
	}
	return numeric(r.StructuredInput[key])
}

// numeric coerces JSON and YAML scalar representations to float64.
func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
