package scoring

import "math"

// EcoInputs are normalized sustainability indicators in [0,1].
type EcoInputs struct {
	CarbonFootprint     float64 `json:"carbon_footprint"`
	EnergyEfficiency    float64 `json:"energy_efficiency"`
	RenewablePercentage float64 `json:"renewable_percentage"`
}

// DefaultEcoInputs are used until an external feed supplies real figures.
var DefaultEcoInputs = EcoInputs{CarbonFootprint: 0.6, EnergyEfficiency: 0.7, RenewablePercentage: 0.6}

type EcoImpact struct {
	Score  float64   `json:"score"`
	Inputs EcoInputs `json:"inputs"`
}

// EcoImpactTuner folds the indicators into one score. Priority 0 pins the
// score to a neutral 0.5; priority 1 uses the raw blend.
type EcoImpactTuner struct {
	priority float64
}

func NewEcoImpactTuner(priority float64) *EcoImpactTuner {
	return &EcoImpactTuner{priority: clamp(priority, 0, 1)}
}

func (t *EcoImpactTuner) Tune(in EcoInputs) EcoImpact {
	in = EcoInputs{
		CarbonFootprint:     clamp(in.CarbonFootprint, 0, 1),
		EnergyEfficiency:    clamp(in.EnergyEfficiency, 0, 1),
		RenewablePercentage: clamp(in.RenewablePercentage, 0, 1),
	}
	raw := 0.3*(1-in.CarbonFootprint) + 0.35*in.EnergyEfficiency + 0.35*in.RenewablePercentage
	score := 0.5*(1-t.priority) + raw*t.priority
	return EcoImpact{Score: clamp(score, 0, 1), Inputs: in}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
