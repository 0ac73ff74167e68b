package app

import (
	"xrpl-lp-bot/internal/risk"
	"xrpl-lp-bot/internal/timescale"
)

func (a *App) recordCycle(result CycleResult) {
	if a.timescale == nil {
		return
	}
	a.timescale.EnqueueCycle(timescale.CycleRow{
		Time:           result.Timestamp,
		CycleID:        result.ID,
		LedgerIndex:    result.Ledger.Index,
		Price:          result.Market.Price,
		Volume:         result.Market.Volume,
		Volatility:     result.Market.Volatility,
		EcoScore:       result.EcoImpact.Score,
		ExpectedYield:  result.Yield.ExpectedYield,
		Energy:         result.Optimization.Energy,
		ExpectedReturn: result.Optimization.ExpectedReturn,
		Proposed:       len(result.Optimization.Orders),
		Submitted:      result.Submitted,
		Simulated:      result.Simulated,
		Rejected:       result.Rejected,
		Failed:         result.Failed,
		Fallback:       result.Optimization.Fallback || result.MarketFallback,
	})
}

func (a *App) recordTransaction(cycleID string, tx risk.Transaction) {
	if a.timescale == nil {
		return
	}
	a.timescale.EnqueueTransaction(timescale.TransactionRow{
		Time:    tx.Timestamp,
		ID:      tx.ID,
		CycleID: cycleID,
		Side:    string(tx.Side),
		Price:   tx.Price,
		Amount:  tx.Amount,
		Outcome: tx.Outcome,
		TxHash:  tx.TxHash,
	})
}

func (a *App) recordAlert(alert risk.Alert) {
	if a.timescale == nil {
		return
	}
	a.timescale.EnqueueAlert(timescale.AlertRow{
		Time:     alert.CreatedAt,
		ID:       alert.ID,
		Kind:     string(alert.Kind),
		Severity: string(alert.Severity),
		Message:  alert.Message,
	})
}
