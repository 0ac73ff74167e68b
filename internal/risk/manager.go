package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"xrpl-lp-bot/internal/config"
	"xrpl-lp-bot/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const volumeWindowLength = 24 * time.Hour

// BalanceFetcher returns the validated XRP balance of address in drops.
type BalanceFetcher interface {
	AccountBalance(ctx context.Context, address string) (int64, error)
}

// Notifier forwards alerts to operators.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert Alert) error
}

// Manager owns balances, the daily volume window and the alert and
// transaction logs, and gates every order against the configured limits.
type Manager struct {
	cfg      config.RiskConfig
	address  string
	balances BalanceFetcher
	log      *zap.Logger
	metrics  *metrics.Metrics
	notifier Notifier
	onHalt   func(reason string)
	now      func() time.Time
	newID    func() string

	mu             sync.Mutex
	account        Account
	initialBalance int64
	window         VolumeWindow
	alerts         []Alert
	transactions   []Transaction
	halted         bool
}

func NewManager(cfg config.RiskConfig, address string, balances BalanceFetcher, log *zap.Logger) (*Manager, error) {
	if err := config.ValidateRisk(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.BalanceCheckInterval <= 0 {
		cfg.BalanceCheckInterval = time.Minute
	}
	m := &Manager{
		cfg:      cfg,
		address:  strings.TrimSpace(address),
		balances: balances,
		log:      log,
		metrics:  metrics.NewNoop(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
	}
	m.account.Address = m.address
	m.window.ResetAt = m.now().Add(volumeWindowLength)
	return m, nil
}

func (m *Manager) SetMetrics(metrics *metrics.Metrics) {
	if metrics != nil {
		m.metrics = metrics
	}
}

func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

// OnEmergencyShutdown registers the hook invoked when losses cross the
// emergency threshold.
func (m *Manager) OnEmergencyShutdown(fn func(reason string)) {
	m.onHalt = fn
}

func (m *Manager) LiveTrading() bool {
	return m.cfg.LiveTrading
}

func (m *Manager) Limits() config.RiskConfig {
	return m.cfg
}

// CheckBalance refreshes the account balance at most once per check
// interval and evaluates the loss thresholds, most severe first. A fetch
// failure keeps the last known balance. Crossing the emergency threshold
// records a critical alert, invokes the shutdown hook and returns
// ErrEmergencyShutdown; once halted, every later call returns it.
func (m *Manager) CheckBalance(ctx context.Context) (int64, error) {
	m.mu.Lock()
	if m.halted {
		m.mu.Unlock()
		return m.Account().BalanceDrops, ErrEmergencyShutdown
	}
	cached := m.account.BalanceDrops
	lastChecked := m.account.LastCheckedAt
	m.mu.Unlock()

	if m.address == "" || m.balances == nil {
		m.log.Warn("balance check skipped: no wallet configured")
		return cached, nil
	}
	now := m.now()
	if cached > 0 && !lastChecked.IsZero() && now.Sub(lastChecked) < m.cfg.BalanceCheckInterval {
		return cached, nil
	}

	balance, err := m.balances.AccountBalance(ctx, m.address)
	if err != nil {
		m.log.Warn("balance check failed, using last known balance",
			zap.Int64("balance_drops", cached),
			zap.Error(fmt.Errorf("%w: %v", ErrBalanceCheckFailed, err)),
		)
		return cached, nil
	}

	m.mu.Lock()
	previous := m.account.BalanceDrops
	m.account.BalanceDrops = balance
	m.account.LastCheckedAt = now
	if m.initialBalance == 0 {
		m.initialBalance = balance
	}
	m.mu.Unlock()

	if !m.cfg.LiveTrading || previous <= 0 {
		return balance, nil
	}
	change := float64(balance-previous) / float64(previous)
	pct := change * 100
	switch {
	case change <= -m.cfg.EmergencyShutdownThreshold:
		m.log.Error("emergency shutdown: loss exceeds threshold",
			zap.Float64("change_pct", pct),
			zap.Float64("threshold", m.cfg.EmergencyShutdownThreshold),
		)
		m.mu.Lock()
		m.halted = true
		m.mu.Unlock()
		reason := fmt.Sprintf("Emergency shutdown triggered: %.2f%% loss", pct)
		m.AddAlert(ctx, KindEmergencyShutdown, reason, SeverityCritical)
		m.metrics.EmergencyShutdowns.Inc()
		if m.onHalt != nil {
			m.onHalt(reason)
		}
		return balance, fmt.Errorf("%.2f%% balance change: %w", pct, ErrEmergencyShutdown)
	case change <= -m.cfg.StopLossPercentage:
		m.log.Error("stop loss triggered", zap.Float64("change_pct", pct))
		m.AddAlert(ctx, KindStopLoss, fmt.Sprintf("Stop loss triggered: %.2f%% loss", pct), SeverityHigh)
	case change <= -m.cfg.AlertThreshold:
		m.log.Warn("loss alert", zap.Float64("change_pct", pct))
		m.AddAlert(ctx, KindAlert, fmt.Sprintf("Loss alert: %.2f%% loss", pct), SeverityMedium)
	}
	return balance, nil
}

// CheckTransactionLimits reports whether an order of amount XRP fits the
// per-transaction and daily limits. Simulation mode always passes. The
// volume counter is only reset here, never incremented.
func (m *Manager) CheckTransactionLimits(amount float64) bool {
	return m.Gate(amount) == nil
}

// Gate is CheckTransactionLimits with the rejection reason attached.
func (m *Manager) Gate(amount float64) error {
	if !m.cfg.LiveTrading {
		return nil
	}
	if amount > m.cfg.MaxTransactionAmount {
		m.log.Warn("transaction rejected: exceeds max transaction amount",
			zap.Float64("amount", amount),
			zap.Float64("max", m.cfg.MaxTransactionAmount),
		)
		return fmt.Errorf("amount %.6f exceeds max %.6f: %w", amount, m.cfg.MaxTransactionAmount, ErrTransactionRejected)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetWindowLocked()
	if m.window.Accumulated+amount > m.cfg.MaxDailyVolume {
		m.log.Warn("transaction rejected: daily volume limit",
			zap.Float64("amount", amount),
			zap.Float64("accumulated", m.window.Accumulated),
			zap.Float64("max", m.cfg.MaxDailyVolume),
		)
		return fmt.Errorf("daily volume %.6f + %.6f exceeds %.6f: %w", m.window.Accumulated, amount, m.cfg.MaxDailyVolume, ErrTransactionRejected)
	}
	return nil
}

func (m *Manager) resetWindowLocked() {
	now := m.now()
	if now.After(m.window.ResetAt) {
		m.window.Accumulated = 0
		m.window.ResetAt = now.Add(volumeWindowLength)
	}
}

// RecordTransaction stamps tx with an id and time and appends it. Live
// submissions count toward the daily volume.
func (m *Manager) RecordTransaction(tx Transaction) Transaction {
	tx.ID = m.newID()
	tx.Timestamp = m.now()
	m.mu.Lock()
	m.transactions = append(m.transactions, tx)
	if m.cfg.LiveTrading && tx.Outcome == OutcomeSubmitted && tx.Amount > 0 {
		m.window.Accumulated += tx.Amount
	}
	m.mu.Unlock()
	return tx
}

// AddAlert appends an alert and forwards it to the notifier if one is set.
func (m *Manager) AddAlert(ctx context.Context, kind AlertKind, message string, severity Severity) Alert {
	alert := Alert{
		ID:        m.newID(),
		Kind:      kind,
		Message:   message,
		Severity:  severity,
		CreatedAt: m.now(),
	}
	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	m.mu.Unlock()
	m.metrics.AlertsRaised.Inc()
	m.log.Warn("alert added",
		zap.String("id", alert.ID),
		zap.String("kind", string(kind)),
		zap.String("severity", string(severity)),
		zap.String("message", message),
	)
	if m.notifier != nil {
		if err := m.notifier.NotifyAlert(ctx, alert); err != nil {
			m.log.Warn("alert notification failed", zap.String("id", alert.ID), zap.Error(err))
		}
	}
	return alert
}

func (m *Manager) AcknowledgeAlert(id string) (Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID != id {
			continue
		}
		if !m.alerts[i].Acknowledged {
			at := m.now()
			m.alerts[i].Acknowledged = true
			m.alerts[i].AcknowledgedAt = &at
		}
		return m.alerts[i], nil
	}
	return Alert{}, fmt.Errorf("%s: %w", id, ErrAlertNotFound)
}

func (m *Manager) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.alerts...)
}

func (m *Manager) Transactions() []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transaction(nil), m.transactions...)
}

func (m *Manager) Account() Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account
}

func (m *Manager) Window() VolumeWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window
}

func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Account:        m.account,
		InitialBalance: m.initialBalance,
		Window:         m.window,
		Alerts:         append([]Alert(nil), m.alerts...),
		Transactions:   append([]Transaction(nil), m.transactions...),
		Halted:         m.halted,
	}
}

// Restore loads persisted logs and the volume window. The balance is not
// restored so the next check starts a fresh comparison, and a halt is not
// carried over: restarting after an emergency shutdown is an operator action.
func (m *Manager) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append([]Alert(nil), snap.Alerts...)
	m.transactions = append([]Transaction(nil), snap.Transactions...)
	if !snap.Window.ResetAt.IsZero() && snap.Window.Accumulated >= 0 {
		m.window = snap.Window
	}
	m.initialBalance = snap.InitialBalance
}
