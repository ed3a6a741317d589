package matching

import "rescuecore/internal/types"

// Scale grades how wide the response mobilization should be. It bounds the
// number of teams the registry query may return.
type Scale string

const (
	ScaleCatastrophic Scale = "catastrophic"
	ScaleLarge        Scale = "large"
	ScaleMedium       Scale = "medium"
	ScaleSmall        Scale = "small"
)

// TeamCap returns the registry row cap for the scale.
func (s Scale) TeamCap() int {
	switch s {
	case ScaleCatastrophic:
		return 500
	case ScaleLarge:
		return 200
	case ScaleMedium:
		return 100
	default:
		return 50
	}
}

// DeriveScale classifies the disaster from the parsed reading. Earthquakes
// and critical-severity events with mass impact escalate to catastrophic;
// trapped-person counts escalate independently of severity.
func DeriveScale(p *types.ParsedDisaster) Scale {
	major := p.DisasterType == types.DisasterEarthquake || p.Severity == types.SeverityCritical
	if major {
		if p.AffectedPopulation > 10000 || p.EstimatedTrapped > 100 {
			return ScaleCatastrophic
		}
		return ScaleLarge
	}
	if p.EstimatedTrapped > 50 {
		return ScaleLarge
	}
	if p.EstimatedTrapped > 10 {
		return ScaleMedium
	}
	switch p.Severity {
	case types.SeverityHigh:
		return ScaleMedium
	case types.SeverityLow:
		return ScaleSmall
	default:
		return ScaleSmall
	}
}
