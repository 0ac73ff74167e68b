package xrpl

import (
	"context"
	"fmt"
	"strings"
)

// Pair is XRP against one issued currency. Prices are quote units per XRP.
type Pair struct {
	QuoteCurrency string
	QuoteIssuer   string
}

func (p Pair) String() string {
	return "XRP/" + p.QuoteCurrency
}

func (p Pair) quoteSpec() map[string]any {
	return map[string]any{"currency": p.QuoteCurrency, "issuer": p.QuoteIssuer}
}

var xrpSpec = map[string]any{"currency": "XRP"}

// Offer is one resting offer with Amount in XRP.
type Offer struct {
	Price  float64
	Amount float64
}

// BookOffers fetches both sides of the XRP/quote book. Bids are offers paying
// quote for XRP; asks are offers selling XRP for quote. Order is as returned
// by the node (best quality first).
func BookOffers(ctx context.Context, r Requester, pair Pair, limit int) (bids, asks []Offer, err error) {
	if strings.TrimSpace(pair.QuoteCurrency) == "" || strings.TrimSpace(pair.QuoteIssuer) == "" {
		return nil, nil, fmt.Errorf("book_offers: quote currency and issuer are required")
	}
	bidRaw, err := requestBook(ctx, r, pair.quoteSpec(), xrpSpec, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("book_offers bids: %w", err)
	}
	askRaw, err := requestBook(ctx, r, xrpSpec, pair.quoteSpec(), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("book_offers asks: %w", err)
	}
	return parseOffers(bidRaw, true), parseOffers(askRaw, false), nil
}

func requestBook(ctx context.Context, r Requester, takerGets, takerPays map[string]any, limit int) ([]any, error) {
	params := map[string]any{
		"taker_gets":   takerGets,
		"taker_pays":   takerPays,
		"ledger_index": "validated",
	}
	if limit > 0 {
		params["limit"] = limit
	}
	result, err := r.Request(ctx, "book_offers", params)
	if err != nil {
		return nil, err
	}
	offers, _ := result["offers"].([]any)
	return offers, nil
}

// parseOffers converts raw offers, skipping entries it cannot price. For bids
// the creator gives quote (TakerGets) for XRP (TakerPays); asks are the
// reverse. Funded amounts win over nominal ones when present.
func parseOffers(raw []any, bids bool) []Offer {
	out := make([]Offer, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		gets := pick(m, "taker_gets_funded", "TakerGets")
		pays := pick(m, "taker_pays_funded", "TakerPays")
		getsVal, getsXRP, err := amountValue(gets)
		if err != nil {
			continue
		}
		paysVal, paysXRP, err := amountValue(pays)
		if err != nil {
			continue
		}
		var xrp, quote float64
		switch {
		case bids && paysXRP && !getsXRP:
			xrp, quote = paysVal, getsVal
		case !bids && getsXRP && !paysXRP:
			xrp, quote = getsVal, paysVal
		default:
			continue
		}
		if xrp <= 0 || quote <= 0 {
			continue
		}
		out = append(out, Offer{Price: quote / xrp, Amount: xrp})
	}
	return out
}

func pick(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}
