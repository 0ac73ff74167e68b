package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"xrpl-lp-bot/internal/alerts"
	"xrpl-lp-bot/internal/config"
	"xrpl-lp-bot/internal/exec"
	"xrpl-lp-bot/internal/feed"
	"xrpl-lp-bot/internal/ledger"
	"xrpl-lp-bot/internal/market"
	"xrpl-lp-bot/internal/metrics"
	"xrpl-lp-bot/internal/optimizer"
	"xrpl-lp-bot/internal/risk"
	"xrpl-lp-bot/internal/scoring"
	"xrpl-lp-bot/internal/state"
	"xrpl-lp-bot/internal/state/sqlite"
	"xrpl-lp-bot/internal/timescale"
	"xrpl-lp-bot/internal/xrpl"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerClient is the part of the connection manager the orchestrator uses.
type LedgerClient interface {
	xrpl.Requester
	EnsureConnected(ctx context.Context) (ledger.Conn, error)
	LastLedger() (ledger.LedgerClosed, bool)
	Disconnect(ctx context.Context) error
	State() ledger.ConnectionState
	Active() (ledger.Endpoint, bool)
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     state.Store
	ledger    LedgerClient
	pair      xrpl.Pair
	market    *market.MarketData
	optimizer *optimizer.Optimizer
	eco       *scoring.EcoImpactTuner
	yield     *scoring.YieldOptimizer
	risk      *risk.Manager
	executor  *exec.Executor
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	alerts    *alerts.Telegram
	timescale *timescale.Writer
	feed      *feed.Hub
	server    *http.Server

	now   func() time.Time
	newID func() string

	inFlight  atomic.Bool
	paused    atomic.Bool
	cycles    sync.WaitGroup
	completed atomic.Uint64
	skipped   atomic.Uint64

	stopOnce     sync.Once
	stop         chan struct{}
	shutdownOnce sync.Once

	mu      sync.RWMutex
	last    *CycleResult
	lastErr string
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Risk.LiveTrading && (strings.TrimSpace(cfg.Wallet.Address) == "" || strings.TrimSpace(cfg.Wallet.Seed) == "") {
		return nil, errors.New("live trading requires XRPL_WALLET_ADDRESS and XRPL_WALLET_SEED")
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	manager := ledger.NewManager(ledger.ManagerConfig{
		Endpoints:         ledger.BuildEndpoints(cfg.Ledger.PrimaryURL, cfg.Ledger.FallbackURLs),
		ConnectionTimeout: cfg.Ledger.ConnectionTimeout,
		RequestTimeout:    cfg.Ledger.RequestTimeout,
		NetworkID:         NetworkID(cfg.Ledger),
		RequestsPerSecond: cfg.Ledger.RequestsPerSecond,
		RequestBurst:      cfg.Ledger.RequestBurst,
	}, dialerFor(cfg.Ledger, log), log)

	a, err := newApp(cfg, log, store, manager)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if cfg.Metrics.EnabledValue() {
		a.prom = metrics.NewPrometheus()
		a.metrics = a.prom.Metrics
		a.risk.SetMetrics(a.metrics)
		manager.SetMetrics(a.metrics)
	}
	a.alerts = alerts.NewTelegram(cfg.Telegram, log)
	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		log.Warn("timescale disabled", zap.Error(err))
	} else {
		a.timescale = writer
	}
	return a, nil
}

func dialerFor(cfg config.LedgerConfig, log *zap.Logger) ledger.Dialer {
	if cfg.Transport == config.TransportRPC {
		return ledger.RPCDialer{Timeout: cfg.RequestTimeout}
	}
	return ledger.WSDialer{PingInterval: cfg.PingInterval, Log: log}
}

// newApp assembles the cycle components around an existing store and
// ledger client.
func newApp(cfg *config.Config, log *zap.Logger, store state.Store, client LedgerClient) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pair := xrpl.Pair{QuoteCurrency: cfg.Market.QuoteCurrency, QuoteIssuer: cfg.Market.QuoteIssuer}
	opt, err := optimizer.New(optimizer.Config{
		Iterations:         cfg.Optimizer.Iterations,
		InitialTemperature: cfg.Optimizer.InitialTemperature,
		CoolingRate:        cfg.Optimizer.CoolingRate,
		MinTemperature:     cfg.Optimizer.MinTemperature,
		Seed:               cfg.Optimizer.Seed,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("optimizer: %w", err)
	}
	adapter := ledgerAdapter{requester: client}
	riskManager, err := risk.NewManager(cfg.Risk, cfg.Wallet.Address, adapter, log)
	if err != nil {
		return nil, fmt.Errorf("risk: %w", err)
	}
	a := &App{
		cfg:    cfg,
		log:    log,
		store:  store,
		ledger: client,
		pair:   pair,
		market: market.New(client, market.Options{
			Pair:           pair,
			BookLimit:      cfg.Market.BookLimit,
			Window:         cfg.Market.VolatilityWindow,
			SampleInterval: cfg.Market.RefreshInterval,
		}, log),
		optimizer: opt,
		eco:       scoring.NewEcoImpactTuner(cfg.Scoring.EcoPriority),
		yield:     scoring.NewYieldOptimizer(cfg.Scoring.MinYield, cfg.Scoring.MaxYield),
		risk:      riskManager,
		executor:  exec.New(adapter, store, log),
		metrics:   metrics.NewNoop(),
		feed:      feed.NewHub(log),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		stop:      make(chan struct{}),
	}
	riskManager.SetNotifier(alertSink{app: a})
	riskManager.OnEmergencyShutdown(func(reason string) {
		a.log.Error("emergency shutdown triggered", zap.String("reason", reason))
		a.requestStop()
	})
	return a, nil
}

// Run drives cycles until ctx is cancelled, Shutdown is called, or an
// emergency shutdown halts trading. It returns risk.ErrEmergencyShutdown in
// the last case.
func (a *App) Run(ctx context.Context) error {
	a.restore(ctx)
	a.timescale.Start(ctx)
	a.startHTTP()
	a.logStartup()

	if _, err := a.ledger.EnsureConnected(ctx); err != nil {
		a.log.Warn("initial ledger connection failed", zap.Error(err))
	} else if balance, err := a.risk.CheckBalance(ctx); err != nil {
		return err
	} else if balance > 0 {
		a.log.Info("initial balance", zap.String("xrp", xrpl.DropsToXRP(balance).String()))
	}
	if a.risk.LiveTrading() && a.ledger.State() == ledger.StateConnected {
		if settled, err := a.executor.ResolvePending(ctx, a.cfg.Wallet.Address); err != nil {
			a.log.Warn("pending offer resolution failed", zap.Error(err))
		} else if settled > 0 {
			a.log.Info("pending offers settled", zap.Int("count", settled))
		}
	}

	ticker := time.NewTicker(a.cfg.Strategy.UpdateInterval)
	defer ticker.Stop()
	a.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.stop:
			if a.risk.Halted() {
				return risk.ErrEmergencyShutdown
			}
			return nil
		case <-ticker.C:
			a.dispatch(ctx)
		}
	}
}

// dispatch starts a cycle unless one is still running.
func (a *App) dispatch(ctx context.Context) {
	select {
	case <-a.stop:
		return
	default:
	}
	if !a.inFlight.CompareAndSwap(false, true) {
		a.skipped.Add(1)
		a.metrics.CyclesSkipped.Inc()
		a.log.Warn("previous cycle still running, skipping tick")
		return
	}
	a.cycles.Add(1)
	go func() {
		defer a.cycles.Done()
		defer a.inFlight.Store(false)
		// An in-flight cycle finishes its network calls even after shutdown
		// begins; request timeouts bound it.
		cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Strategy.UpdateInterval)
		defer cancel()
		if _, err := a.RunCycle(cycleCtx); err != nil {
			a.setLastErr(err)
			if errors.Is(err, risk.ErrEmergencyShutdown) {
				a.requestStop()
				return
			}
			a.log.Warn("cycle failed", zap.Error(err))
		}
	}()
}

func (a *App) requestStop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// Shutdown stops scheduling, waits for an in-flight cycle until ctx expires,
// then disconnects within the configured grace period. It is safe to call
// more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.requestStop()
	var err error
	a.shutdownOnce.Do(func() {
		waited := make(chan struct{})
		go func() {
			a.cycles.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-ctx.Done():
			a.log.Warn("in-flight cycle still running at shutdown")
		}

		grace, cancel := context.WithTimeout(context.Background(), a.cfg.Strategy.ShutdownGrace)
		defer cancel()
		if a.server != nil {
			if serr := a.server.Shutdown(grace); serr != nil {
				a.log.Warn("operator http shutdown failed", zap.Error(serr))
			}
		}
		a.feed.Close()
		if serr := state.Save(grace, a.store, state.RiskSnapshotKey, a.risk.Snapshot()); serr != nil {
			a.log.Warn("risk snapshot save failed", zap.Error(serr))
		}
		err = a.ledger.Disconnect(grace)
		if cerr := a.timescale.Close(); cerr != nil {
			a.log.Warn("timescale close failed", zap.Error(cerr))
		}
		if cerr := a.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
		a.log.Info("shutdown complete", zap.Uint64("cycles", a.completed.Load()), zap.Uint64("skipped", a.skipped.Load()))
	})
	return err
}

func (a *App) restore(ctx context.Context) {
	snap, ok, err := state.Load[risk.Snapshot](ctx, a.store, state.RiskSnapshotKey)
	if err != nil {
		a.log.Warn("risk snapshot load failed", zap.Error(err))
	} else if ok {
		a.risk.Restore(snap)
		a.log.Info("risk state restored", zap.Int("alerts", len(snap.Alerts)), zap.Int("transactions", len(snap.Transactions)))
	}
	last, ok, err := state.Load[CycleResult](ctx, a.store, state.CycleResultKey)
	if err != nil {
		a.log.Warn("last cycle load failed", zap.Error(err))
		return
	}
	if ok {
		a.mu.Lock()
		a.last = &last
		a.mu.Unlock()
	}
}

func (a *App) logStartup() {
	limits := a.risk.Limits()
	if !limits.LiveTrading {
		a.log.Info("starting in simulation mode",
			zap.String("pair", a.pair.String()),
			zap.Duration("interval", a.cfg.Strategy.UpdateInterval),
		)
		return
	}
	a.log.Warn("live trading enabled",
		zap.String("pair", a.pair.String()),
		zap.String("wallet", a.cfg.Wallet.Address),
		zap.Float64("max_transaction_amount", limits.MaxTransactionAmount),
		zap.Float64("max_daily_volume", limits.MaxDailyVolume),
		zap.Float64("stop_loss_percentage", limits.StopLossPercentage),
		zap.Float64("emergency_shutdown_threshold", limits.EmergencyShutdownThreshold),
		zap.Float64("alert_threshold", limits.AlertThreshold),
	)
}

func (a *App) setLastErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastErr = err.Error()
}

func (a *App) lastCycle() (*CycleResult, string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last, a.lastErr
}

// NetworkID is the network every configured endpoint must report.
func NetworkID(cfg config.LedgerConfig) *uint32 {
	id, ok := cfg.NetworkID()
	if !ok {
		return nil
	}
	return &id
}
