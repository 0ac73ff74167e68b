package scoring

import (
	"testing"

	"xrpl-lp-bot/internal/market"

	"github.com/stretchr/testify/assert"
)

func TestEcoTunerPriority(t *testing.T) {
	in := EcoInputs{CarbonFootprint: 0.2, EnergyEfficiency: 0.8, RenewablePercentage: 1.0}
	raw := 0.3*0.8 + 0.35*0.8 + 0.35*1.0

	assert.InDelta(t, 0.5, NewEcoImpactTuner(0).Tune(in).Score, 1e-12)
	assert.InDelta(t, raw, NewEcoImpactTuner(1).Tune(in).Score, 1e-12)
	assert.InDelta(t, 0.25+raw*0.5, NewEcoImpactTuner(0.5).Tune(in).Score, 1e-12)
}

func TestEcoTunerClampsInputs(t *testing.T) {
	out := NewEcoImpactTuner(1).Tune(EcoInputs{CarbonFootprint: -3, EnergyEfficiency: 4, RenewablePercentage: 2})
	assert.Equal(t, EcoInputs{CarbonFootprint: 0, EnergyEfficiency: 1, RenewablePercentage: 1}, out.Inputs)
	assert.InDelta(t, 1.0, out.Score, 1e-12)
}

func TestYieldOptimizerFormulas(t *testing.T) {
	y := NewYieldOptimizer(0.05, 0.7)
	out := y.Optimize(YieldParams{
		Market:     market.Data{Price: 2.5, Volatility: 0.1, Volume: 5_000_000},
		RiskFactor: 0.5,
		EcoImpact:  0.5,
	})
	base := 0.05 + 0.5*0.05 + 0.5*0.1 + 0.5*0.05
	assert.InDelta(t, base, out.BaseYield, 1e-12)
	assert.InDelta(t, base*1.15, out.RiskAdjustedYield, 1e-12)
	assert.InDelta(t, base*1.15+0.05, out.EcoAdjustedYield, 1e-12)

	assert.InDelta(t, 1.0, out.Allocation.XRP+out.Allocation.Stablecoin+out.Allocation.Other, 1e-12)
	assert.InDelta(t, 0.5, out.Allocation.XRP, 1e-12)
	assert.InDelta(t, 0.4, out.Allocation.Stablecoin, 1e-12)
	assert.InDelta(t, out.EcoAdjustedYield*(0.5*1.2+0.4*0.8+0.1), out.ExpectedYield, 1e-12)
}

func TestYieldOptimizerClampsToBounds(t *testing.T) {
	y := NewYieldOptimizer(0.05, 0.2)
	out := y.Optimize(YieldParams{
		Market:     market.Data{Price: 50, Volatility: 1, Volume: 1e9},
		RiskFactor: 1,
		EcoImpact:  1,
	})
	assert.Equal(t, 0.2, out.RiskAdjustedYield)
	assert.Equal(t, 0.2, out.EcoAdjustedYield)
}

func TestYieldOptimizerHighEcoShiftsAllocation(t *testing.T) {
	y := NewYieldOptimizer(0, 0)
	low := y.Optimize(YieldParams{Market: market.FallbackData(), RiskFactor: 0.5, EcoImpact: 0.5})
	high := y.Optimize(YieldParams{Market: market.FallbackData(), RiskFactor: 0.5, EcoImpact: 0.9})
	assert.Greater(t, high.Allocation.XRP, low.Allocation.XRP)
	assert.Less(t, high.Allocation.Stablecoin, low.Allocation.Stablecoin)
}
