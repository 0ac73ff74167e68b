package risk

import (
	"errors"
	"time"

	"xrpl-lp-bot/internal/xrpl"
)

var (
	ErrEmergencyShutdown   = errors.New("emergency shutdown")
	ErrTransactionRejected = errors.New("transaction rejected by risk limits")
	ErrBalanceCheckFailed  = errors.New("balance check failed")
	ErrAlertNotFound       = errors.New("alert not found")
)

type AlertKind string

const (
	KindAlert             AlertKind = "alert"
	KindStopLoss          AlertKind = "stop_loss"
	KindEmergencyShutdown AlertKind = "emergency_shutdown"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type Alert struct {
	ID             string     `json:"id"`
	Kind           AlertKind  `json:"kind"`
	Message        string     `json:"message"`
	Severity       Severity   `json:"severity"`
	CreatedAt      time.Time  `json:"created_at"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

type Account struct {
	Address       string    `json:"address"`
	BalanceDrops  int64     `json:"balance_drops"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// VolumeWindow accumulates live XRP volume until ResetAt passes.
type VolumeWindow struct {
	Accumulated float64   `json:"accumulated"`
	ResetAt     time.Time `json:"reset_at"`
}

// Transaction outcomes.
const (
	OutcomeSubmitted = "submitted"
	OutcomeSimulated = "simulated"
	OutcomeFailed    = "failed"
)

// Transaction is one order handed to the ledger (or simulated). Amount is XRP.
type Transaction struct {
	ID        string    `json:"id"`
	Side      xrpl.Side `json:"side"`
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   string    `json:"outcome"`
	TxHash    string    `json:"tx_hash,omitempty"`
}

// Snapshot is the persisted view of the manager state.
type Snapshot struct {
	Account        Account       `json:"account"`
	InitialBalance int64         `json:"initial_balance"`
	Window         VolumeWindow  `json:"window"`
	Alerts         []Alert       `json:"alerts"`
	Transactions   []Transaction `json:"transactions"`
	Halted         bool          `json:"halted"`
}
