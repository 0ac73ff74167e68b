package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"xrpl-lp-bot/internal/exec"
	"xrpl-lp-bot/internal/ledger"
	"xrpl-lp-bot/internal/market"
	"xrpl-lp-bot/internal/optimizer"
	"xrpl-lp-bot/internal/risk"
	"xrpl-lp-bot/internal/scoring"
	"xrpl-lp-bot/internal/state"
	"xrpl-lp-bot/internal/xrpl"

	"go.uber.org/zap"
)

// CycleResult is what one orchestration cycle saw and did.
type CycleResult struct {
	ID             string              `json:"id"`
	Timestamp      time.Time           `json:"timestamp"`
	Ledger         ledger.LedgerClosed `json:"ledger"`
	BalanceDrops   int64               `json:"balance_drops"`
	Paused         bool                `json:"paused,omitempty"`
	Market         market.Data         `json:"market"`
	MarketFallback bool                `json:"market_fallback,omitempty"`
	EcoImpact      scoring.EcoImpact   `json:"eco_impact"`
	Yield          scoring.Yield       `json:"yield"`
	Optimization   optimizer.Result    `json:"optimization"`
	Submitted      int                 `json:"submitted"`
	Simulated      int                 `json:"simulated"`
	Rejected       int                 `json:"rejected"`
	Failed         int                 `json:"failed"`
	Transactions   []risk.Transaction  `json:"transactions,omitempty"`
}

// RunCycle performs one pass: connection, balance, market, scoring,
// optimization, per-order limit checks and placement. Connection failures
// and an emergency shutdown end the cycle with an error; market and
// optimizer failures degrade to fallback values.
func (a *App) RunCycle(ctx context.Context) (CycleResult, error) {
	result := CycleResult{ID: a.newID(), Timestamp: a.now()}
	if _, err := a.ledger.EnsureConnected(ctx); err != nil {
		a.metrics.CyclesFailed.Inc()
		return result, fmt.Errorf("ensure connected: %w", err)
	}
	balance, err := a.risk.CheckBalance(ctx)
	if err != nil {
		a.metrics.CyclesFailed.Inc()
		return result, err
	}
	result.BalanceDrops = balance
	result.Ledger = a.currentLedger(ctx)

	if a.paused.Load() {
		result.Paused = true
		a.log.Info("cycle paused, no orders placed", zap.String("cycle_id", result.ID))
		a.publish(ctx, result)
		return result, nil
	}

	snap, err := a.market.Refresh(ctx)
	if err != nil {
		a.log.Warn("market data unavailable, using fallback", zap.Error(err))
	}
	result.Market = snap.Data
	result.MarketFallback = snap.Fallback

	result.EcoImpact = a.eco.Tune(scoring.DefaultEcoInputs)
	result.Yield = a.yield.Optimize(scoring.YieldParams{
		Market:     snap.Data,
		RiskFactor: a.cfg.Scoring.RiskProfile,
		EcoImpact:  result.EcoImpact.Score,
	})

	plan, err := a.optimizer.Optimize(ctx, snap.Book, optimizer.Params{
		Capital:       a.cfg.Strategy.Capital,
		MaxOrders:     a.cfg.Strategy.MaxOrders,
		TargetSpread:  a.cfg.Strategy.TargetSpread,
		RiskTolerance: a.cfg.Strategy.RiskTolerance,
	})
	if err != nil {
		if !errors.Is(err, optimizer.ErrOptimizationFailed) {
			a.metrics.CyclesFailed.Inc()
			return result, fmt.Errorf("optimize: %w", err)
		}
		a.log.Warn("optimizer failed, using default placement", zap.Error(err))
	}
	result.Optimization = plan

	a.placeOrders(ctx, &result, plan.Orders)
	a.publish(ctx, result)
	a.completed.Add(1)
	a.metrics.CyclesCompleted.Inc()
	a.log.Info("cycle complete",
		zap.String("cycle_id", result.ID),
		zap.Uint64("ledger", result.Ledger.Index),
		zap.Int("proposed", len(plan.Orders)),
		zap.Int("submitted", result.Submitted),
		zap.Int("simulated", result.Simulated),
		zap.Int("rejected", result.Rejected),
		zap.Int("failed", result.Failed),
		zap.Float64("energy", plan.Energy),
	)
	return result, nil
}

func (a *App) placeOrders(ctx context.Context, result *CycleResult, orders []optimizer.Order) {
	live := a.risk.LiveTrading()
	for i, order := range orders {
		if err := a.risk.Gate(order.Amount); err != nil {
			result.Rejected++
			a.metrics.OrdersRejected.Inc()
			a.log.Info("order dropped", zap.String("side", string(order.Side)), zap.Float64("amount", order.Amount), zap.Error(err))
			continue
		}
		tx := risk.Transaction{Side: order.Side, Price: order.Price, Amount: order.Amount}
		if !live {
			tx.Outcome = risk.OutcomeSimulated
			result.Simulated++
			a.metrics.OrdersSimulated.Inc()
		} else {
			hash, err := a.executor.Submit(ctx, exec.Intent{
				CycleID: result.ID,
				Index:   i,
				Side:    order.Side,
				Price:   order.Price,
				Amount:  order.Amount,
			}, xrpl.OfferRequest{
				Account: a.cfg.Wallet.Address,
				Secret:  a.cfg.Wallet.Seed,
				Pair:    a.pair,
				Side:    order.Side,
				Price:   order.Price,
				Amount:  order.Amount,
			})
			if err != nil {
				tx.Outcome = risk.OutcomeFailed
				result.Failed++
				a.metrics.OrdersFailed.Inc()
				a.log.Warn("offer submission failed", zap.String("side", string(order.Side)), zap.Error(err))
			} else {
				tx.Outcome = risk.OutcomeSubmitted
				tx.TxHash = hash
				result.Submitted++
				a.metrics.OrdersSubmitted.Inc()
			}
		}
		recorded := a.risk.RecordTransaction(tx)
		result.Transactions = append(result.Transactions, recorded)
		a.recordTransaction(result.ID, recorded)
	}
}

// currentLedger prefers the last ledgerClosed event and falls back to asking
// for the validated header.
func (a *App) currentLedger(ctx context.Context) ledger.LedgerClosed {
	if event, ok := a.ledger.LastLedger(); ok {
		return event
	}
	event, err := xrpl.ValidatedLedger(ctx, a.ledger)
	if err != nil {
		a.log.Warn("validated ledger lookup failed", zap.Error(err))
		return ledger.LedgerClosed{}
	}
	return event
}

// publish stores, broadcasts and records the cycle. Failures are logged only.
func (a *App) publish(ctx context.Context, result CycleResult) {
	a.mu.Lock()
	a.last = &result
	a.lastErr = ""
	a.mu.Unlock()
	if err := state.Save(ctx, a.store, state.CycleResultKey, result); err != nil {
		a.log.Warn("cycle result save failed", zap.Error(err))
	}
	if err := state.Save(ctx, a.store, state.RiskSnapshotKey, a.risk.Snapshot()); err != nil {
		a.log.Warn("risk snapshot save failed", zap.Error(err))
	}
	if err := a.feed.BroadcastJSON(result); err != nil {
		a.log.Warn("cycle broadcast failed", zap.Error(err))
	}
	a.recordCycle(result)
}
