package market

import (
	"sort"

	"xrpl-lp-bot/internal/xrpl"
)

// Reference prices used when one side of the book is empty.
const (
	DefaultBid = 1.0
	DefaultAsk = 1.01
)

// Level is one price level with Amount in XRP.
type Level struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// OrderBook is a snapshot of the XRP/quote book. Bids are sorted by price
// descending and asks ascending.
type OrderBook struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

func NewOrderBook(bids, asks []Level) OrderBook {
	book := OrderBook{
		Bids: cleanLevels(bids),
		Asks: cleanLevels(asks),
	}
	sort.SliceStable(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.SliceStable(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	return book
}

// FromOffers builds a book from ledger offers.
func FromOffers(bids, asks []xrpl.Offer) OrderBook {
	return NewOrderBook(levelsFromOffers(bids), levelsFromOffers(asks))
}

func levelsFromOffers(offers []xrpl.Offer) []Level {
	out := make([]Level, 0, len(offers))
	for _, o := range offers {
		out = append(out, Level{Price: o.Price, Amount: o.Amount})
	}
	return out
}

func cleanLevels(in []Level) []Level {
	out := make([]Level, 0, len(in))
	for _, l := range in {
		if l.Price > 0 && l.Amount > 0 {
			out = append(out, l)
		}
	}
	return out
}

func (b OrderBook) Empty() bool {
	return len(b.Bids) == 0 && len(b.Asks) == 0
}

func (b OrderBook) BestBid() (float64, bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

func (b OrderBook) BestAsk() (float64, bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}

// Mid averages the best bid and ask, substituting the reference prices for a
// missing side.
func (b OrderBook) Mid() float64 {
	bid, ok := b.BestBid()
	if !ok {
		bid = DefaultBid
	}
	ask, ok := b.BestAsk()
	if !ok {
		ask = DefaultAsk
	}
	return (bid + ask) / 2
}

// DepthAtPrice sums resting XRP on the same side at or better than price:
// bids priced >= price for buys, asks priced <= price for sells.
func (b OrderBook) DepthAtPrice(side xrpl.Side, price float64) float64 {
	var depth float64
	switch side {
	case xrpl.SideBuy:
		for _, l := range b.Bids {
			if l.Price >= price {
				depth += l.Amount
			}
		}
	case xrpl.SideSell:
		for _, l := range b.Asks {
			if l.Price <= price {
				depth += l.Amount
			}
		}
	}
	return depth
}

// TotalDepth is the resting XRP across both sides.
func (b OrderBook) TotalDepth() float64 {
	var total float64
	for _, l := range b.Bids {
		total += l.Amount
	}
	for _, l := range b.Asks {
		total += l.Amount
	}
	return total
}
