package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"xrpl-lp-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// CycleRow is one orchestration cycle as stored in lp_cycles.
type CycleRow struct {
	Time           time.Time
	CycleID        string
	LedgerIndex    uint64
	Price          float64
	Volume         float64
	Volatility     float64
	EcoScore       float64
	ExpectedYield  float64
	Energy         float64
	ExpectedReturn float64
	Proposed       int
	Submitted      int
	Simulated      int
	Rejected       int
	Failed         int
	Fallback       bool
}

type TransactionRow struct {
	Time    time.Time
	ID      string
	CycleID string
	Side    string
	Price   float64
	Amount  float64
	Outcome string
	TxHash  string
}

type AlertRow struct {
	Time     time.Time
	ID       string
	Kind     string
	Severity string
	Message  string
}

// Writer persists cycle history to Postgres/TimescaleDB off the cycle path.
// Enqueue calls never block; rows are dropped when the queue is full.
type Writer struct {
	db           *sql.DB
	log          *zap.Logger
	schema       string
	cycles       chan CycleRow
	transactions chan TransactionRow
	alerts       chan AlertRow
	started      atomic.Bool
	dropped      atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := NewWithDB(db, cfg.Schema, cfg.QueueSize, log)
	if err := writer.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

// NewWithDB wraps an open database without touching the schema.
func NewWithDB(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Writer{
		db:           db,
		log:          log,
		schema:       schema,
		cycles:       make(chan CycleRow, queueSize),
		transactions: make(chan TransactionRow, queueSize),
		alerts:       make(chan AlertRow, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return w.dropped.Load()
}

func (w *Writer) EnqueueCycle(row CycleRow) {
	if w == nil {
		return
	}
	select {
	case w.cycles <- row:
	default:
		w.drop("cycle")
	}
}

func (w *Writer) EnqueueTransaction(row TransactionRow) {
	if w == nil {
		return
	}
	select {
	case w.transactions <- row:
	default:
		w.drop("transaction")
	}
}

func (w *Writer) EnqueueAlert(row AlertRow) {
	if w == nil {
		return
	}
	select {
	case w.alerts <- row:
	default:
		w.drop("alert")
	}
}

func (w *Writer) drop(kind string) {
	if w.dropped.Add(1) == 1 {
		w.log.Warn("timescale queue full, dropping rows", zap.String("kind", kind))
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.cycles:
			w.logWrite("cycle", w.WriteCycle(ctx, row))
		case row := <-w.transactions:
			w.logWrite("transaction", w.WriteTransaction(ctx, row))
		case row := <-w.alerts:
			w.logWrite("alert", w.WriteAlert(ctx, row))
		}
	}
}

func (w *Writer) logWrite(kind string, err error) {
	if err != nil {
		w.log.Warn("timescale insert failed", zap.String("kind", kind), zap.Error(err))
	}
}

func (w *Writer) EnsureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	tables := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		cycle_id TEXT NOT NULL,
		ledger_index BIGINT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL,
		volatility DOUBLE PRECISION NOT NULL,
		eco_score DOUBLE PRECISION NOT NULL,
		expected_yield DOUBLE PRECISION NOT NULL,
		energy DOUBLE PRECISION NOT NULL,
		expected_return DOUBLE PRECISION NOT NULL,
		proposed INTEGER NOT NULL,
		submitted INTEGER NOT NULL,
		simulated INTEGER NOT NULL,
		rejected INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		fallback BOOLEAN NOT NULL,
		PRIMARY KEY (ts, cycle_id)
	)`, w.table("lp_cycles")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		tx_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL,
		side TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		outcome TEXT NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT ''
	)`, w.table("lp_transactions")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		alert_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL
	)`, w.table("risk_alerts")),
	}
	for _, stmt := range tables {
		if err := w.exec(ctx, stmt); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"lp_cycles", "lp_transactions", "risk_alerts"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) WriteCycle(ctx context.Context, row CycleRow) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, cycle_id, ledger_index, price, volume, volatility, eco_score, expected_yield,
		energy, expected_return, proposed, submitted, simulated, rejected, failed, fallback
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
	) ON CONFLICT (ts, cycle_id) DO NOTHING`, w.table("lp_cycles"))
	_, err := w.db.ExecContext(ctx, query,
		row.Time,
		row.CycleID,
		int64(row.LedgerIndex),
		row.Price,
		row.Volume,
		row.Volatility,
		row.EcoScore,
		row.ExpectedYield,
		row.Energy,
		row.ExpectedReturn,
		row.Proposed,
		row.Submitted,
		row.Simulated,
		row.Rejected,
		row.Failed,
		row.Fallback,
	)
	return err
}

func (w *Writer) WriteTransaction(ctx context.Context, row TransactionRow) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, tx_id, cycle_id, side, price, amount, outcome, tx_hash
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, w.table("lp_transactions"))
	_, err := w.db.ExecContext(ctx, query,
		row.Time, row.ID, row.CycleID, row.Side, row.Price, row.Amount, row.Outcome, row.TxHash,
	)
	return err
}

func (w *Writer) WriteAlert(ctx context.Context, row AlertRow) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, alert_id, kind, severity, message) VALUES ($1,$2,$3,$4,$5)`, w.table("risk_alerts"))
	_, err := w.db.ExecContext(ctx, query, row.Time, row.ID, row.Kind, row.Severity, row.Message)
	return err
}

// RecentCycles returns up to limit cycles, newest first.
func (w *Writer) RecentCycles(ctx context.Context, limit int) ([]CycleRow, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT ts, cycle_id, ledger_index, price, volume, volatility, eco_score,
		expected_yield, energy, expected_return, proposed, submitted, simulated, rejected, failed, fallback
	FROM %s ORDER BY ts DESC LIMIT $1`, w.table("lp_cycles"))
	rows, err := w.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CycleRow
	for rows.Next() {
		var row CycleRow
		var ledgerIndex int64
		if err := rows.Scan(
			&row.Time, &row.CycleID, &ledgerIndex, &row.Price, &row.Volume, &row.Volatility,
			&row.EcoScore, &row.ExpectedYield, &row.Energy, &row.ExpectedReturn,
			&row.Proposed, &row.Submitted, &row.Simulated, &row.Rejected, &row.Failed, &row.Fallback,
		); err != nil {
			return nil, err
		}
		if ledgerIndex > 0 {
			row.LedgerIndex = uint64(ledgerIndex)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
