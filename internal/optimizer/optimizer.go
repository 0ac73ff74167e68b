package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"xrpl-lp-bot/internal/market"
	"xrpl-lp-bot/internal/xrpl"

	"go.uber.org/zap"
)

var ErrOptimizationFailed = errors.New("optimization failed")

// minFill keeps generated orders away from dust sizes.
const minFill = 0.1

// MinOrderAmount is one drop in XRP.
const MinOrderAmount = 1.0 / xrpl.DropsPerXRP

type Config struct {
	Iterations         int
	InitialTemperature float64
	CoolingRate        float64
	MinTemperature     float64
	Seed               int64
}

func (c Config) Validate() error {
	if c.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0")
	}
	if c.InitialTemperature <= 0 {
		return fmt.Errorf("initial temperature must be > 0")
	}
	if c.CoolingRate <= 0 || c.CoolingRate >= 1 {
		return fmt.Errorf("cooling rate must be between 0 and 1")
	}
	if c.MinTemperature <= 0 || c.MinTemperature >= c.InitialTemperature {
		return fmt.Errorf("min temperature must be > 0 and below the initial temperature")
	}
	return nil
}

// Params bound one search. Capital is in quote units.
type Params struct {
	Capital       float64
	MaxOrders     int
	TargetSpread  float64
	RiskTolerance float64
}

func (p Params) validate() error {
	if p.Capital <= 0 || math.IsNaN(p.Capital) || math.IsInf(p.Capital, 0) {
		return fmt.Errorf("capital must be > 0, got %v", p.Capital)
	}
	if p.MaxOrders < 1 {
		return fmt.Errorf("max orders must be >= 1, got %d", p.MaxOrders)
	}
	if p.TargetSpread <= 0 {
		return fmt.Errorf("target spread must be > 0, got %v", p.TargetSpread)
	}
	if p.RiskTolerance < 0 || p.RiskTolerance > 1 {
		return fmt.Errorf("risk tolerance must be between 0 and 1, got %v", p.RiskTolerance)
	}
	return nil
}

type Order struct {
	Side   xrpl.Side `json:"side"`
	Price  float64   `json:"price"`
	Amount float64   `json:"amount"`
}

type Solution struct {
	Orders []Order `json:"orders"`
}

func (s Solution) clone() Solution {
	orders := make([]Order, len(s.Orders))
	copy(orders, s.Orders)
	return Solution{Orders: orders}
}

// Notional is the quote value committed by the solution.
func (s Solution) Notional() float64 {
	var total float64
	for _, o := range s.Orders {
		total += o.Price * o.Amount
	}
	return total
}

type RiskMetrics struct {
	VolatilityExposure float64 `json:"volatility_exposure"`
	LiquidityRisk      float64 `json:"liquidity_risk"`
}

type Result struct {
	Orders         []Order     `json:"orders"`
	ExpectedReturn float64     `json:"expected_return"`
	RiskMetrics    RiskMetrics `json:"risk_metrics"`
	Energy         float64     `json:"energy"`
	InitialEnergy  float64     `json:"initial_energy"`
	Iterations     int         `json:"iterations"`
	Fallback       bool        `json:"fallback,omitempty"`
}

// DefaultResult is the symmetric two-order placement used when the search
// cannot run.
func DefaultResult(capital float64) Result {
	amount := 0.0
	if capital > 0 {
		amount = capital / (market.DefaultBid + market.DefaultAsk)
	}
	return Result{
		Orders: []Order{
			{Side: xrpl.SideBuy, Price: market.DefaultBid, Amount: amount},
			{Side: xrpl.SideSell, Price: market.DefaultAsk, Amount: amount},
		},
		ExpectedReturn: 0.5,
		RiskMetrics:    RiskMetrics{VolatilityExposure: 0.5, LiquidityRisk: 0.5},
		Energy:         0.5,
		InitialEnergy:  0.5,
		Fallback:       true,
	}
}

// Optimizer searches order placements by simulated annealing. It is safe for
// concurrent use; searches are serialized on the shared random source.
type Optimizer struct {
	cfg Config
	log *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func New(cfg Config, log *zap.Logger) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	return NewWithRand(cfg, rand.New(rand.NewSource(seed)), log), nil
}

// NewWithRand uses rng for every random draw so runs can be replayed.
func NewWithRand(cfg Config, rng *rand.Rand, log *zap.Logger) *Optimizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Optimizer{cfg: cfg, log: log, rng: rng}
}

// Optimize returns the lowest-energy solution found. When the search cannot
// produce a usable answer it returns DefaultResult together with an error
// wrapping ErrOptimizationFailed. A cancelled context stops the search early
// and returns the best solution so far with the context error.
func (o *Optimizer) Optimize(ctx context.Context, book market.OrderBook, p Params) (Result, error) {
	if err := p.validate(); err != nil {
		return o.fail(p, err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	current := o.randomSolution(book, p)
	currentEnergy := energy(current, book, p)
	if !finite(currentEnergy) {
		return o.fail(p, fmt.Errorf("initial energy is %v", currentEnergy))
	}
	best := current.clone()
	bestEnergy := currentEnergy
	initialEnergy := currentEnergy

	temperature := o.cfg.InitialTemperature
	iterations := 0
	var ctxErr error
	for i := 0; i < o.cfg.Iterations && temperature > o.cfg.MinTemperature; i++ {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}
		neighbor := o.neighbor(current, book, p)
		neighborEnergy := energy(neighbor, book, p)
		if !finite(neighborEnergy) {
			return o.fail(p, fmt.Errorf("neighbor energy is %v at iteration %d", neighborEnergy, i))
		}
		if AcceptanceProbability(currentEnergy, neighborEnergy, temperature) > o.rng.Float64() {
			current = neighbor
			currentEnergy = neighborEnergy
			if currentEnergy < bestEnergy {
				best = current.clone()
				bestEnergy = currentEnergy
			}
		}
		temperature *= o.cfg.CoolingRate
		iterations++
	}

	best.Orders = placeable(best.Orders)
	o.log.Debug("optimization completed",
		zap.Float64("energy", bestEnergy),
		zap.Int("iterations", iterations),
		zap.Int("orders", len(best.Orders)),
	)
	return Result{
		Orders:         best.clone().Orders,
		ExpectedReturn: expectedReturn(best, book),
		RiskMetrics:    riskMetrics(best, book),
		Energy:         bestEnergy,
		InitialEnergy:  initialEnergy,
		Iterations:     iterations,
	}, ctxErr
}

func (o *Optimizer) fail(p Params, err error) (Result, error) {
	o.log.Warn("optimization failed, using default placement", zap.Error(err))
	return DefaultResult(p.Capital), fmt.Errorf("%w: %v", ErrOptimizationFailed, err)
}

// AcceptanceProbability is the Metropolis criterion: 1 for an improving move,
// exp((current-neighbor)/temperature) otherwise.
func AcceptanceProbability(currentEnergy, neighborEnergy, temperature float64) float64 {
	if neighborEnergy < currentEnergy {
		return 1.0
	}
	return math.Exp((currentEnergy - neighborEnergy) / temperature)
}

func (o *Optimizer) randomSolution(book market.OrderBook, p Params) Solution {
	count := o.rng.Intn(p.MaxOrders) + 1
	orders := make([]Order, 0, count)
	remaining := p.Capital
	for i := 0; i < count && remaining > 0; i++ {
		order := o.randomOrder(book, remaining)
		if order.Amount < MinOrderAmount {
			break
		}
		orders = append(orders, order)
		remaining -= order.Price * order.Amount
	}
	return Solution{Orders: orders}
}

// randomOrder quotes a buy up to 10% under the best ask or a sell up to 10%
// over the best bid, sized from the remaining budget.
func (o *Optimizer) randomOrder(book market.OrderBook, remaining float64) Order {
	var order Order
	if o.rng.Float64() > 0.5 {
		ask, ok := book.BestAsk()
		if !ok {
			ask = market.DefaultAsk
		}
		order = Order{Side: xrpl.SideBuy, Price: ask * (0.9 + o.rng.Float64()*0.1)}
	} else {
		bid, ok := book.BestBid()
		if !ok {
			bid = market.DefaultBid
		}
		order = Order{Side: xrpl.SideSell, Price: bid * (1.0 + o.rng.Float64()*0.1)}
	}
	maxAmount := remaining / order.Price
	order.Amount = maxAmount * (minFill + (1-minFill)*o.rng.Float64())
	return order
}

// neighbor applies one mutation to a copy of s: add an order, remove one, or
// perturb one order's price by up to 5% and amount by up to 20%. The result
// stays within the capital budget.
func (o *Optimizer) neighbor(s Solution, book market.OrderBook, p Params) Solution {
	next := s.clone()
	switch o.rng.Intn(3) {
	case 0:
		if len(next.Orders) < p.MaxOrders {
			remaining := p.Capital - next.Notional()
			if remaining > 0 {
				if order := o.randomOrder(book, remaining); order.Amount >= MinOrderAmount {
					next.Orders = append(next.Orders, order)
				}
			}
		}
	case 1:
		if len(next.Orders) > 0 {
			idx := o.rng.Intn(len(next.Orders))
			next.Orders = append(next.Orders[:idx], next.Orders[idx+1:]...)
		}
	case 2:
		if len(next.Orders) > 0 {
			idx := o.rng.Intn(len(next.Orders))
			order := next.Orders[idx]
			order.Price *= 0.95 + o.rng.Float64()*0.1
			order.Amount *= 0.8 + o.rng.Float64()*0.4
			others := next.Notional() - next.Orders[idx].Price*next.Orders[idx].Amount
			if limit := (p.Capital - others) / order.Price; order.Amount > limit {
				order.Amount = math.Max(limit, 0)
			}
			if order.Amount < MinOrderAmount {
				next.Orders = append(next.Orders[:idx], next.Orders[idx+1:]...)
			} else {
				next.Orders[idx] = order
			}
		}
	}
	return next
}

// placeable drops orders the ledger cannot express.
func placeable(orders []Order) []Order {
	out := orders[:0]
	for _, order := range orders {
		if order.Amount >= MinOrderAmount && order.Price > 0 {
			out = append(out, order)
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
