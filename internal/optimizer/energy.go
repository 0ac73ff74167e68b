package optimizer

import (
	"math"

	"xrpl-lp-bot/internal/market"
	"xrpl-lp-bot/internal/xrpl"
)

// energy scores a solution; lower is better. Risk tolerance shifts weight
// from the return terms onto the risk terms.
func energy(s Solution, book market.OrderBook, p Params) float64 {
	rt := p.RiskTolerance
	risk := riskMetrics(s, book)
	return -expectedReturn(s, book)*(1-rt) +
		risk.VolatilityExposure*rt +
		risk.LiquidityRisk*rt -
		spreadEfficiency(s, book, p.TargetSpread)*(1-rt) -
		capitalUtilization(s)*(1-rt)
}

// expectedReturn sums each order's profit to the opposing best price weighted
// by a fill probability that rises as the order approaches that price.
func expectedReturn(s Solution, book market.OrderBook) float64 {
	var total float64
	for _, o := range s.Orders {
		if o.Price <= 0 {
			continue
		}
		switch o.Side {
		case xrpl.SideBuy:
			ask, ok := book.BestAsk()
			if !ok {
				ask = o.Price * 1.01
			}
			profit := (ask - o.Price) / o.Price
			fill := o.Price / ask
			total += profit * fill * o.Amount
		case xrpl.SideSell:
			bid, ok := book.BestBid()
			if !ok {
				bid = o.Price * 0.99
			}
			profit := (o.Price - bid) / o.Price
			fill := bid / o.Price
			total += profit * fill * o.Amount
		}
	}
	return total
}

func riskMetrics(s Solution, book market.OrderBook) RiskMetrics {
	if len(s.Orders) == 0 {
		return RiskMetrics{}
	}
	mid := book.Mid()
	var exposure, amount, liquidity float64
	for _, o := range s.Orders {
		distance := math.Abs(o.Price-mid) / mid
		exposure += (1 - distance) * o.Amount
		amount += o.Amount

		depth := book.DepthAtPrice(o.Side, o.Price)
		if depth+o.Amount > 0 {
			liquidity += o.Amount / (depth + o.Amount)
		}
	}
	return RiskMetrics{
		VolatilityExposure: exposure / (amount + 1),
		LiquidityRisk:      liquidity / float64(len(s.Orders)),
	}
}

// spreadEfficiency is 1 when the average sell/buy spread matches the target
// and falls off linearly with the relative miss. 0 when a side is missing.
func spreadEfficiency(s Solution, book market.OrderBook, target float64) float64 {
	var buySum, sellSum float64
	var buys, sells int
	for _, o := range s.Orders {
		switch o.Side {
		case xrpl.SideBuy:
			buySum += o.Price
			buys++
		case xrpl.SideSell:
			sellSum += o.Price
			sells++
		}
	}
	if buys == 0 || sells == 0 {
		return 0
	}
	spread := (sellSum/float64(sells) - buySum/float64(buys)) / book.Mid()
	return 1 - math.Abs(spread-target)/target
}

func capitalUtilization(s Solution) float64 {
	return math.Min(1, float64(len(s.Orders))/10)
}
