package perception

import (
	"math"

	"rescuecore/internal/types"
)

// Assessor constants. Densities are persons per km2 and deliberately
// conservative; operator-supplied population_density overrides them.
const (
	defaultFocalDepthKM    = 10.0
	responseZoneIntensity  = 10.0 // intensity floor bounding the response zone
	maxAssessmentRadiusKM  = 300.0
	quakePopulationDensity = 120.0

	runoffCoefficient      = 0.6
	catchmentConcentration = 8.0
	floodSpreadKM2PerMeter = 50.0
	floodPopulationDensity = 1000.0

	defaultReleaseRateKGS   = 1.0
	defaultWindSpeedMS      = 3.0
	defaultDangerousConcKG  = 1e-4 // kg/m3 at which the plume is dangerous
	hazmatPopulationDensity = 1500.0
)

// Calibrate runs the closed-form assessor for the parsed disaster type and
// overrides the LLM's estimates of affected area, affected population,
// disaster level and casualties. Returns true when a model applied.
func Calibrate(p *types.ParsedDisaster) bool {
	if p == nil {
		return false
	}
	var applied bool
	switch p.DisasterType {
	case types.DisasterEarthquake:
		applied = assessEarthquake(p)
	case types.DisasterFlood:
		applied = assessFlood(p)
	case types.DisasterHazmat:
		applied = assessHazmat(p)
	}
	if applied {
		p.SetInfo("physics_model_calibrated", true)
	}
	return applied
}

// assessEarthquake applies the intensity attenuation law
//
//	I(R) = 1.5*M - 1.5*log10(h) - 0.003*h + 3.0,  h = sqrt(R^2 + D^2)
//
// and bounds the response zone by the radius where I drops below the floor.
func assessEarthquake(p *types.ParsedDisaster) bool {
	m := p.Magnitude
	if m <= 0 {
		return false
	}
	depth := p.DepthKM
	if depth <= 0 {
		depth = defaultFocalDepthKM
	}

	intensityAt := func(radiusKM float64) float64 {
		h := math.Sqrt(radiusKM*radiusKM + depth*depth)
		if h < 1 {
			h = 1
		}
		i := 1.5*m - 1.5*math.Log10(h) - 0.003*h + 3.0
		return clampFloat(i, 1, 12)
	}

	epicentral := intensityAt(0)

	// Intensity decreases monotonically with distance; scan outward until it
	// drops below the floor.
	var radius float64
	for r := 1.0; r <= maxAssessmentRadiusKM; r++ {
		if intensityAt(r) < responseZoneIntensity {
			break
		}
		radius = r
	}

	density := infoFloat(p, "population_density", quakePopulationDensity)
	area := math.Pi * radius * radius
	population := int(math.Round(area * density))

	// Casualty rate grows an order of magnitude per intensity degree.
	rate := clampFloat(math.Pow(10, epicentral-13.5), 0, 0.1)
	casualties := int(math.Round(float64(population) * rate))

	p.AffectedArea = roundTo(area, 1)
	p.AffectedPopulation = population
	p.Level = quakeLevel(m)
	p.SetInfo("estimated_casualties", casualties)
	p.SetInfo("epicentral_intensity", roundTo(epicentral, 2))
	p.SetInfo("damage_radius_km", radius)
	return true
}

func quakeLevel(m float64) types.DisasterLevel {
	switch {
	case m >= 7.0:
		return types.LevelI
	case m >= 6.0:
		return types.LevelII
	case m >= 4.5:
		return types.LevelIII
	default:
		return types.LevelIV
	}
}

// assessFlood estimates standing water depth from net rainfall concentrated
// over the catchment, then sizes the inundation zone from the depth.
func assessFlood(p *types.ParsedDisaster) bool {
	rainfall := infoFloat(p, "rainfall_mm", 0)
	if rainfall <= 0 {
		return false
	}
	slope := infoFloat(p, "slope_factor", 1.0)
	if slope <= 0 {
		slope = 1.0
	}

	depthM := rainfall / 1000 * runoffCoefficient * catchmentConcentration * slope
	area := depthM * floodSpreadKM2PerMeter
	density := infoFloat(p, "population_density", floodPopulationDensity)
	population := int(math.Round(area * density))
	casualties := int(math.Round(float64(population) * 0.0005 * depthM))

	p.AffectedArea = roundTo(area, 1)
	p.AffectedPopulation = population
	p.Level = floodLevel(depthM)
	p.SetInfo("estimated_casualties", casualties)
	p.SetInfo("water_depth_m", roundTo(depthM, 2))
	return true
}

func floodLevel(depthM float64) types.DisasterLevel {
	switch {
	case depthM >= 1.5:
		return types.LevelI
	case depthM >= 1.0:
		return types.LevelII
	case depthM >= 0.4:
		return types.LevelIII
	default:
		return types.LevelIV
	}
}

// assessHazmat solves a simplified Gaussian plume for the downwind distance
// at which the centerline concentration falls to the dangerous threshold:
//
//	C(x) = Q / (pi * u * sigma_y(x) * sigma_z(x))
//
// with rural dispersion sigma_y = 0.08*x^0.9, sigma_z = 0.06*x^0.9 (x in m).
func assessHazmat(p *types.ParsedDisaster) bool {
	q := infoFloat(p, "release_rate_kgs", defaultReleaseRateKGS)
	if q <= 0 {
		q = defaultReleaseRateKGS
	}
	wind := infoFloat(p, "wind_speed", defaultWindSpeedMS)
	if wind <= 0 {
		wind = defaultWindSpeedMS
	}
	threshold := infoFloat(p, "threshold_concentration", defaultDangerousConcKG)
	if threshold <= 0 {
		threshold = defaultDangerousConcKG
	}

	// C(x) = Q / (pi*u*0.0048*x^1.8); solve for C(x) = threshold.
	xMeters := math.Pow(q/(math.Pi*wind*0.0048*threshold), 1/1.8)
	radiusKM := math.Min(xMeters/1000, maxAssessmentRadiusKM)

	area := math.Pi * radiusKM * radiusKM
	density := infoFloat(p, "population_density", hazmatPopulationDensity)
	population := int(math.Round(area * density))
	casualties := int(math.Round(float64(population) * 0.01))

	p.AffectedArea = roundTo(area, 1)
	p.AffectedPopulation = population
	p.Level = hazmatLevel(radiusKM)
	p.SetInfo("estimated_casualties", casualties)
	p.SetInfo("danger_radius_km", roundTo(radiusKM, 2))
	return true
}

func hazmatLevel(radiusKM float64) types.DisasterLevel {
	switch {
	case radiusKM >= 5.0:
		return types.LevelI
	case radiusKM >= 2.0:
		return types.LevelII
	case radiusKM >= 0.5:
		return types.LevelIII
	default:
		return types.LevelIV
	}
}

func infoFloat(p *types.ParsedDisaster, key string, fallback float64) float64 {
	if p.AdditionalInfo == nil {
		return fallback
	}
	switch v := p.AdditionalInfo[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
