package market

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"xrpl-lp-bot/internal/xrpl"

	"go.uber.org/zap"
)

// Values reported when the live book cannot be read.
const (
	FallbackPrice      = 1.0
	FallbackVolume     = 2_000_000
	FallbackVolatility = 0.1
)

type Data struct {
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	Volatility float64 `json:"volatility"`
}

func FallbackData() Data {
	return Data{Price: FallbackPrice, Volume: FallbackVolume, Volatility: FallbackVolatility}
}

type Snapshot struct {
	Data      Data      `json:"data"`
	Book      OrderBook `json:"book"`
	FetchedAt time.Time `json:"fetched_at"`
	Fallback  bool      `json:"fallback"`
}

type Options struct {
	Pair           xrpl.Pair
	BookLimit      int
	Window         int
	SampleInterval time.Duration
}

// MarketData derives price, depth and volatility from the ledger order book.
// Mid prices are sampled at most once per SampleInterval into a rolling
// window used for volatility.
type MarketData struct {
	requester xrpl.Requester
	log       *zap.Logger
	opts      Options
	now       func() time.Time

	mu         sync.RWMutex
	mids       []float64
	lastSample time.Time
	last       Snapshot
}

func New(r xrpl.Requester, opts Options, log *zap.Logger) *MarketData {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BookLimit <= 0 {
		opts.BookLimit = 20
	}
	if opts.Window < 2 {
		opts.Window = 30
	}
	return &MarketData{
		requester: r,
		log:       log,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Refresh reads the book once. On failure it returns a fallback snapshot with
// an empty book alongside the error so callers can continue degraded.
func (m *MarketData) Refresh(ctx context.Context) (Snapshot, error) {
	if m.requester == nil {
		return m.fallback(), errors.New("market data: no ledger requester")
	}
	bids, asks, err := xrpl.BookOffers(ctx, m.requester, m.opts.Pair, m.opts.BookLimit)
	if err != nil {
		return m.fallback(), err
	}
	book := FromOffers(bids, asks)
	if book.Empty() {
		return m.fallback(), errors.New("market data: order book is empty")
	}
	mid := book.Mid()
	snap := Snapshot{
		Data: Data{
			Price:      mid,
			Volume:     book.TotalDepth(),
			Volatility: m.sample(mid),
		},
		Book:      book,
		FetchedAt: m.now(),
	}
	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()
	return snap, nil
}

// MarketData returns the current price, volume and volatility, falling back to
// fixed values when the book is unavailable.
func (m *MarketData) MarketData(ctx context.Context) Data {
	snap, err := m.Refresh(ctx)
	if err != nil {
		m.log.Warn("market data unavailable, using fallback", zap.Error(err))
	}
	return snap.Data
}

func (m *MarketData) Last() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, !m.last.FetchedAt.IsZero()
}

func (m *MarketData) fallback() Snapshot {
	return Snapshot{Data: FallbackData(), FetchedAt: m.now(), Fallback: true}
}

func (m *MarketData) sample(mid float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.lastSample.IsZero() || now.Sub(m.lastSample) >= m.opts.SampleInterval {
		m.mids = append(m.mids, mid)
		if len(m.mids) > m.opts.Window {
			m.mids = m.mids[len(m.mids)-m.opts.Window:]
		}
		m.lastSample = now
	}
	if len(m.mids) < 2 {
		return FallbackVolatility
	}
	return computeVolatility(m.mids)
}

// computeVolatility is the population standard deviation of log returns.
func computeVolatility(prices []float64) float64 {
	returns := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		prev, curr := prices[i-1], prices[i]
		if prev <= 0 || curr <= 0 {
			continue
		}
		returns = append(returns, math.Log(curr/prev))
	}
	if len(returns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(returns)))
}
