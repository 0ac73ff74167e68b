package xrpl

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrSubmitRejected = errors.New("transaction rejected by ledger")

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OfferRequest places Amount XRP at Price quote units per XRP.
type OfferRequest struct {
	Account string
	Secret  string
	Pair    Pair
	Side    Side
	Price   float64
	Amount  float64
	// Memo, when set, is attached as an intent memo so the transaction can
	// be found again with FindTxByMemo.
	Memo string
}

type SubmitResult struct {
	EngineResult string
	TxHash       string
	Sequence     uint64
}

// OfferCreateTx builds the unsigned OfferCreate transaction JSON. Buying XRP
// means the creator receives drops (TakerPays) and gives quote (TakerGets).
func OfferCreateTx(req OfferRequest) (map[string]any, error) {
	if strings.TrimSpace(req.Account) == "" {
		return nil, errors.New("offer account is required")
	}
	if req.Price <= 0 {
		return nil, fmt.Errorf("offer price must be > 0, got %v", req.Price)
	}
	drops, err := XRPToDrops(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("offer amount: %w", err)
	}
	quoteValue, err := FormatIssuedValue(req.Price * req.Amount)
	if err != nil {
		return nil, fmt.Errorf("offer quote amount: %w", err)
	}
	xrpAmount := fmt.Sprintf("%d", drops)
	quoteAmount := IssuedAmount{Currency: req.Pair.QuoteCurrency, Issuer: req.Pair.QuoteIssuer, Value: quoteValue}
	tx := map[string]any{
		"TransactionType": "OfferCreate",
		"Account":         req.Account,
	}
	switch req.Side {
	case SideBuy:
		tx["TakerPays"] = xrpAmount
		tx["TakerGets"] = quoteAmount
	case SideSell:
		tx["TakerGets"] = xrpAmount
		tx["TakerPays"] = quoteAmount
	default:
		return nil, fmt.Errorf("unknown offer side %q", req.Side)
	}
	if req.Memo != "" {
		tx["Memos"] = []any{map[string]any{"Memo": map[string]any{
			"MemoType": memoHex(IntentMemoType),
			"MemoData": memoHex(req.Memo),
		}}}
	}
	return tx, nil
}

// SubmitOffer signs and submits an OfferCreate through the node. The node must
// permit signing; tec/tef/tem results are returned as ErrSubmitRejected.
func SubmitOffer(ctx context.Context, r Requester, req OfferRequest) (SubmitResult, error) {
	if strings.TrimSpace(req.Secret) == "" {
		return SubmitResult{}, errors.New("wallet secret is required to submit")
	}
	tx, err := OfferCreateTx(req)
	if err != nil {
		return SubmitResult{}, err
	}
	result, err := r.Request(ctx, "submit", map[string]any{
		"tx_json": tx,
		"secret":  req.Secret,
	})
	if err != nil {
		return SubmitResult{}, err
	}
	out := SubmitResult{EngineResult: stringFromMap(result, "engine_result")}
	if txJSON, ok := result["tx_json"].(map[string]any); ok {
		out.TxHash = stringFromMap(txJSON, "hash")
		out.Sequence = uintFromAny(txJSON["Sequence"])
	}
	if !engineAccepted(out.EngineResult) {
		msg := stringFromMap(result, "engine_result_message")
		return out, fmt.Errorf("%s %s: %w", out.EngineResult, msg, ErrSubmitRejected)
	}
	return out, nil
}

func engineAccepted(code string) bool {
	return strings.HasPrefix(code, "tes") || strings.HasPrefix(code, "ter")
}
