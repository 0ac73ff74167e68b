package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"xrpl-lp-bot/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ManagerConfig struct {
	Endpoints         []Endpoint
	ConnectionTimeout time.Duration
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	RequestBurst      int
	// NetworkID, when set, is required of every endpoint before it is used.
	NetworkID *uint32
}

// Manager owns the single live ledger session and fails over across the
// configured endpoints in order.
type Manager struct {
	endpoints      []Endpoint
	dialer         Dialer
	connectTimeout time.Duration
	requestTimeout time.Duration
	networkID      *uint32
	limiter        *rate.Limiter
	log            *zap.Logger
	metrics        *metrics.Metrics

	connectMu sync.Mutex

	mu         sync.RWMutex
	state      ConnectionState
	conn       Conn
	active     Endpoint
	lastLedger LedgerClosed
	handlers   []func(LedgerClosed)
}

func NewManager(cfg ManagerConfig, dialer Dialer, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.RequestBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Manager{
		endpoints:      append([]Endpoint(nil), cfg.Endpoints...),
		dialer:         dialer,
		connectTimeout: cfg.ConnectionTimeout,
		requestTimeout: cfg.RequestTimeout,
		networkID:      cfg.NetworkID,
		limiter:        limiter,
		log:            log,
		metrics:        metrics.NewNoop(),
		state:          StateDisconnected,
	}
}

func (m *Manager) SetMetrics(metrics *metrics.Metrics) {
	if metrics != nil {
		m.metrics = metrics
	}
}

func (m *Manager) Endpoints() []Endpoint {
	return append([]Endpoint(nil), m.endpoints...)
}

// Connect replaces any existing session by dialing endpoints strictly in
// order and returns the first one that connects and subscribes. Exhausting
// the list returns an *UnavailableError; nothing is retried here.
func (m *Manager) Connect(ctx context.Context) (Conn, error) {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()
	return m.connectLocked(ctx)
}

func (m *Manager) connectLocked(ctx context.Context) (Conn, error) {
	m.detach("reconnect")
	m.setState(StateConnecting)

	attempts := make([]AttemptError, 0, len(m.endpoints))
	for _, endpoint := range m.endpoints {
		if err := ctx.Err(); err != nil {
			m.setState(StateDisconnected)
			return nil, err
		}
		conn, err := m.dial(ctx, endpoint)
		if err != nil {
			m.log.Warn("ledger endpoint failed", zap.String("endpoint", endpoint.Address), zap.Int("priority", endpoint.Priority), zap.Error(err))
			attempts = append(attempts, AttemptError{Endpoint: endpoint, Err: err})
			m.metrics.LedgerConnectFailed.Inc()
			continue
		}
		m.mu.Lock()
		m.conn = conn
		m.active = endpoint
		m.state = StateConnected
		m.mu.Unlock()
		m.metrics.LedgerConnected.Inc()
		m.log.Info("ledger connected", zap.String("endpoint", endpoint.Address), zap.Int("priority", endpoint.Priority))
		go m.watch(conn)
		return conn, nil
	}
	m.setState(StateFailed)
	return nil, &UnavailableError{Attempts: attempts}
}

func (m *Manager) dial(ctx context.Context, endpoint Endpoint) (Conn, error) {
	attemptCtx := ctx
	if m.connectTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, m.connectTimeout)
		defer cancel()
	}
	conn, err := m.dialer.Dial(attemptCtx, endpoint.Address, m.handleStream)
	if err != nil {
		return nil, err
	}
	if err := m.checkNetwork(attemptCtx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	result, err := conn.Request(attemptCtx, "subscribe", map[string]any{"streams": []string{"ledger"}})
	switch {
	case err == nil:
		if event, ok := LedgerFromResult(result); ok {
			m.recordLedger(event)
		}
	case errors.Is(err, ErrStreamsUnsupported):
		m.log.Info("ledger stream subscription unavailable", zap.String("endpoint", endpoint.Address))
	default:
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (m *Manager) checkNetwork(ctx context.Context, conn Conn) error {
	if m.networkID == nil {
		return nil
	}
	result, err := conn.Request(ctx, "server_info", nil)
	if err != nil {
		return fmt.Errorf("server_info: %w", err)
	}
	info, _ := result["info"].(map[string]any)
	var got uint32
	if raw, ok := info["network_id"].(float64); ok {
		got = uint32(raw)
	}
	if got != *m.networkID {
		return fmt.Errorf("%w: endpoint serves network %d, want %d", ErrNetworkMismatch, got, *m.networkID)
	}
	return nil
}

// EnsureConnected returns the live session, connecting first if needed.
func (m *Manager) EnsureConnected(ctx context.Context) (Conn, error) {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()
	m.mu.RLock()
	conn, state := m.conn, m.state
	m.mu.RUnlock()
	if conn != nil && state == StateConnected {
		select {
		case <-conn.Done():
		default:
			return conn, nil
		}
	}
	return m.connectLocked(ctx)
}

func (m *Manager) Request(ctx context.Context, command string, params map[string]any) (map[string]any, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if m.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.requestTimeout)
		defer cancel()
	}
	return conn.Request(ctx, command, params)
}

// Disconnect closes the live session. The close is abandoned, not awaited,
// once ctx expires.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.active = Endpoint{}
	m.state = StateDisconnected
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	closed := make(chan error, 1)
	go func() { closed <- conn.Close() }()
	select {
	case err := <-closed:
		m.log.Info("ledger disconnected")
		return err
	case <-ctx.Done():
		m.log.Warn("ledger disconnect timed out", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (m *Manager) State() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Active() (Endpoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active, m.state == StateConnected
}

func (m *Manager) OnLedgerClosed(handler func(LedgerClosed)) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	m.handlers = append(m.handlers, handler)
	m.mu.Unlock()
}

func (m *Manager) LastLedger() (LedgerClosed, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastLedger, m.lastLedger.Index > 0
}

func (m *Manager) handleStream(data []byte) {
	event, ok := parseLedgerClosed(data)
	if !ok {
		return
	}
	m.recordLedger(event)
}

func (m *Manager) recordLedger(event LedgerClosed) {
	m.mu.Lock()
	if event.Index < m.lastLedger.Index {
		m.mu.Unlock()
		return
	}
	m.lastLedger = event
	handlers := append([]func(LedgerClosed){}, m.handlers...)
	m.mu.Unlock()
	for _, handler := range handlers {
		handler(event)
	}
}

func (m *Manager) watch(conn Conn) {
	<-conn.Done()
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	endpoint := m.active
	m.conn = nil
	m.active = Endpoint{}
	m.state = StateDisconnected
	m.mu.Unlock()
	m.log.Warn("ledger connection lost", zap.String("endpoint", endpoint.Address))
}

func (m *Manager) detach(reason string) {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.active = Endpoint{}
	m.mu.Unlock()
	if conn != nil {
		m.log.Debug("closing ledger session", zap.String("reason", reason))
		_ = conn.Close()
	}
}

func (m *Manager) setState(state ConnectionState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}
