package scoring

import (
	"xrpl-lp-bot/internal/market"
)

type Allocation struct {
	XRP        float64 `json:"xrp"`
	Stablecoin float64 `json:"stablecoin"`
	Other      float64 `json:"other"`
}

type YieldParams struct {
	Market     market.Data
	RiskFactor float64
	EcoImpact  float64
}

type Yield struct {
	ExpectedYield     float64    `json:"expected_yield"`
	Allocation        Allocation `json:"allocation"`
	BaseYield         float64    `json:"base_yield"`
	RiskAdjustedYield float64    `json:"risk_adjusted_yield"`
	EcoAdjustedYield  float64    `json:"eco_adjusted_yield"`
}

// YieldOptimizer is a closed-form yield estimate over market conditions,
// risk appetite and eco score. Yields are fractions, clamped to
// [minYield, maxYield] after each adjustment.
type YieldOptimizer struct {
	minYield float64
	maxYield float64
}

func NewYieldOptimizer(minYield, maxYield float64) *YieldOptimizer {
	if minYield <= 0 {
		minYield = 0.05
	}
	if maxYield <= minYield {
		maxYield = 0.7
	}
	return &YieldOptimizer{minYield: minYield, maxYield: maxYield}
}

func (y *YieldOptimizer) Optimize(p YieldParams) Yield {
	data := p.Market
	if data.Price <= 0 {
		data.Price = market.FallbackPrice
	}
	if data.Volatility <= 0 {
		data.Volatility = market.FallbackVolatility
	}
	if data.Volume <= 0 {
		data.Volume = 1_000_000
	}
	risk := clamp(p.RiskFactor, 0, 1)
	eco := clamp(p.EcoImpact, 0, 1)

	base := baseYield(data)
	riskAdjusted := clamp(base*(0.8+risk*0.7), y.minYield, y.maxYield)
	ecoAdjusted := clamp(riskAdjusted+eco*0.1, y.minYield, y.maxYield)
	alloc := allocation(risk, eco)
	expected := ecoAdjusted * (alloc.XRP*1.2 + alloc.Stablecoin*0.8 + alloc.Other*1.0)
	return Yield{
		ExpectedYield:     expected,
		Allocation:        alloc,
		BaseYield:         base,
		RiskAdjustedYield: riskAdjusted,
		EcoAdjustedYield:  ecoAdjusted,
	}
}

// baseYield ranges 5-25%: a price of 5, volatility of 20% and 10M volume
// each saturate their term.
func baseYield(d market.Data) float64 {
	price := clamp(d.Price/5, 0, 1)
	vol := clamp(d.Volatility/0.2, 0, 1)
	volume := clamp(d.Volume/10_000_000, 0, 1)
	return 0.05 + price*0.05 + vol*0.1 + volume*0.05
}

func allocation(risk, eco float64) Allocation {
	xrp := 0.3 + risk*0.4
	stable := 0.6 - risk*0.4
	other := 0.1
	if eco > 0.7 {
		bonus := (eco - 0.7) * 0.2
		xrp += bonus
		stable -= bonus
	}
	xrp = clamp(xrp, 0.1, 0.8)
	stable = clamp(stable, 0.1, 0.8)
	sum := xrp + stable + other
	return Allocation{XRP: xrp / sum, Stablecoin: stable / sum, Other: other / sum}
}
