package app

import (
	"context"

	"xrpl-lp-bot/internal/risk"
	"xrpl-lp-bot/internal/xrpl"
)

// ledgerAdapter exposes the ledger client as the balance source for the risk
// manager and the submitter for the executor.
type ledgerAdapter struct {
	requester xrpl.Requester
}

func (l ledgerAdapter) AccountBalance(ctx context.Context, address string) (int64, error) {
	return xrpl.AccountBalance(ctx, l.requester, address)
}

func (l ledgerAdapter) SubmitOffer(ctx context.Context, req xrpl.OfferRequest) (xrpl.SubmitResult, error) {
	return xrpl.SubmitOffer(ctx, l.requester, req)
}

func (l ledgerAdapter) FindOffer(ctx context.Context, account, memo string) (xrpl.AppliedTx, bool, error) {
	return xrpl.FindTxByMemo(ctx, l.requester, account, memo, 0)
}

// alertSink fans risk alerts out to the time-series store, the websocket
// feed and Telegram.
type alertSink struct {
	app *App
}

type alertEvent struct {
	Type  string     `json:"type"`
	Alert risk.Alert `json:"alert"`
}

func (s alertSink) NotifyAlert(ctx context.Context, alert risk.Alert) error {
	s.app.recordAlert(alert)
	_ = s.app.feed.BroadcastJSON(alertEvent{Type: "alert", Alert: alert})
	if !s.app.alerts.Enabled() {
		return nil
	}
	return s.app.alerts.NotifyAlert(ctx, alert)
}
