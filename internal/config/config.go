package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPrimaryURL = "wss://s.altnet.rippletest.net:51233"

	TransportWS  = "ws"
	TransportRPC = "rpc"

	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
	NetworkDevnet  = "devnet"
)

// DefaultFallbackURLs are the testnet fallbacks used with the default
// primary.
var DefaultFallbackURLs = []string{
	"wss://testnet.xrpl-labs.com",
	"wss://clio.altnet.rippletest.net:51233",
}

type network struct {
	id        uint32
	primary   string
	fallbacks []string
}

var networks = map[string]network{
	NetworkMainnet: {
		id:        0,
		primary:   "wss://xrplcluster.com",
		fallbacks: []string{"wss://s1.ripple.com", "wss://s2.ripple.com", "wss://xrpl.ws"},
	},
	NetworkTestnet: {id: 1, primary: DefaultPrimaryURL, fallbacks: DefaultFallbackURLs},
	NetworkDevnet:  {id: 2, primary: "wss://s.devnet.rippletest.net:51233", fallbacks: []string{}},
}

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Market    MarketConfig    `yaml:"market"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Risk      RiskConfig      `yaml:"risk"`
	State     StateConfig     `yaml:"state"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	HTTP      HTTPConfig      `yaml:"http"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type LedgerConfig struct {
	// Network names the chain every endpoint must serve: mainnet, testnet
	// or devnet. Endpoints reporting another network id are skipped.
	Network           string        `yaml:"network"`
	PrimaryURL        string        `yaml:"primary_url"`
	FallbackURLs      []string      `yaml:"fallback_urls"`
	Transport         string        `yaml:"transport"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	RequestBurst      int           `yaml:"request_burst"`
}

// WalletConfig is normally filled from XRPL_WALLET_ADDRESS and XRPL_WALLET_SEED.
type WalletConfig struct {
	Address string `yaml:"address"`
	Seed    string `yaml:"-"`
}

type MarketConfig struct {
	QuoteCurrency    string        `yaml:"quote_currency"`
	QuoteIssuer      string        `yaml:"quote_issuer"`
	BookLimit        int           `yaml:"book_limit"`
	VolatilityWindow int           `yaml:"volatility_window"`
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
}

type StrategyConfig struct {
	Capital        float64       `yaml:"capital"`
	MaxOrders      int           `yaml:"max_orders"`
	TargetSpread   float64       `yaml:"target_spread"`
	RiskTolerance  float64       `yaml:"risk_tolerance"`
	UpdateInterval time.Duration `yaml:"update_interval"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

type OptimizerConfig struct {
	Iterations         int     `yaml:"iterations"`
	InitialTemperature float64 `yaml:"initial_temperature"`
	CoolingRate        float64 `yaml:"cooling_rate"`
	MinTemperature     float64 `yaml:"min_temperature"`
	Seed               int64   `yaml:"seed"`
}

type ScoringConfig struct {
	RiskProfile float64 `yaml:"risk_profile"`
	EcoPriority float64 `yaml:"eco_priority"`
	MinYield    float64 `yaml:"min_yield"`
	MaxYield    float64 `yaml:"max_yield"`
}

// RiskConfig amounts are denominated in XRP.
type RiskConfig struct {
	MaxTransactionAmount       float64       `yaml:"max_transaction_amount" json:"max_transaction_amount"`
	MaxDailyVolume             float64       `yaml:"max_daily_volume" json:"max_daily_volume"`
	StopLossPercentage         float64       `yaml:"stop_loss_percentage" json:"stop_loss_percentage"`
	EmergencyShutdownThreshold float64       `yaml:"emergency_shutdown_threshold" json:"emergency_shutdown_threshold"`
	AlertThreshold             float64       `yaml:"alert_threshold" json:"alert_threshold"`
	LiveTrading                bool          `yaml:"live_trading" json:"live_trading"`
	BalanceCheckInterval       time.Duration `yaml:"balance_check_interval" json:"balance_check_interval"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled == nil || *m.Enabled
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("XRPL_WALLET_ADDRESS")); v != "" {
		cfg.Wallet.Address = v
	}
	if v := strings.TrimSpace(os.Getenv("XRPL_WALLET_SEED")); v != "" {
		cfg.Wallet.Seed = v
	}
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")); v != "" && cfg.Telegram.Token == "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("TIMESCALE_DSN")); v != "" && cfg.Timescale.DSN == "" {
		cfg.Timescale.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Ledger.Network == "" {
		cfg.Ledger.Network = NetworkTestnet
	}
	if net, ok := networks[cfg.Ledger.Network]; ok {
		if cfg.Ledger.PrimaryURL == "" {
			cfg.Ledger.PrimaryURL = net.primary
		}
		if cfg.Ledger.FallbackURLs == nil {
			cfg.Ledger.FallbackURLs = append([]string{}, net.fallbacks...)
		}
	}
	if cfg.Ledger.Transport == "" {
		cfg.Ledger.Transport = TransportWS
	}
	if cfg.Ledger.ConnectionTimeout == 0 {
		cfg.Ledger.ConnectionTimeout = 15 * time.Second
	}
	if cfg.Ledger.RequestTimeout == 0 {
		cfg.Ledger.RequestTimeout = 10 * time.Second
	}
	if cfg.Ledger.PingInterval == 0 {
		cfg.Ledger.PingInterval = 30 * time.Second
	}
	if cfg.Ledger.RequestsPerSecond == 0 {
		cfg.Ledger.RequestsPerSecond = 10
	}
	if cfg.Ledger.RequestBurst == 0 {
		cfg.Ledger.RequestBurst = 20
	}
	if cfg.Market.QuoteCurrency == "" {
		cfg.Market.QuoteCurrency = "USD"
	}
	if cfg.Market.BookLimit == 0 {
		cfg.Market.BookLimit = 20
	}
	if cfg.Market.VolatilityWindow == 0 {
		cfg.Market.VolatilityWindow = 30
	}
	if cfg.Market.RefreshInterval == 0 {
		cfg.Market.RefreshInterval = 5 * time.Minute
	}
	if cfg.Strategy.Capital == 0 {
		cfg.Strategy.Capital = 10000
	}
	if cfg.Strategy.MaxOrders == 0 {
		cfg.Strategy.MaxOrders = 10
	}
	if cfg.Strategy.TargetSpread == 0 {
		cfg.Strategy.TargetSpread = 0.002
	}
	if cfg.Strategy.RiskTolerance == 0 {
		cfg.Strategy.RiskTolerance = 0.5
	}
	if cfg.Strategy.UpdateInterval == 0 {
		cfg.Strategy.UpdateInterval = 60 * time.Second
	}
	if cfg.Strategy.ShutdownGrace == 0 {
		cfg.Strategy.ShutdownGrace = 5 * time.Second
	}
	if cfg.Optimizer.Iterations == 0 {
		cfg.Optimizer.Iterations = 1000
	}
	if cfg.Optimizer.InitialTemperature == 0 {
		cfg.Optimizer.InitialTemperature = 100
	}
	if cfg.Optimizer.CoolingRate == 0 {
		cfg.Optimizer.CoolingRate = 0.95
	}
	if cfg.Optimizer.MinTemperature == 0 {
		cfg.Optimizer.MinTemperature = 0.01
	}
	if cfg.Scoring.RiskProfile == 0 {
		cfg.Scoring.RiskProfile = 0.5
	}
	if cfg.Scoring.EcoPriority == 0 {
		cfg.Scoring.EcoPriority = 0.5
	}
	if cfg.Scoring.MinYield == 0 {
		cfg.Scoring.MinYield = 0.05
	}
	if cfg.Scoring.MaxYield == 0 {
		cfg.Scoring.MaxYield = 0.7
	}
	if cfg.Risk.MaxTransactionAmount == 0 {
		cfg.Risk.MaxTransactionAmount = 5000
	}
	if cfg.Risk.MaxDailyVolume == 0 {
		cfg.Risk.MaxDailyVolume = 25000
	}
	if cfg.Risk.StopLossPercentage == 0 {
		cfg.Risk.StopLossPercentage = 0.05
	}
	if cfg.Risk.EmergencyShutdownThreshold == 0 {
		cfg.Risk.EmergencyShutdownThreshold = 0.15
	}
	if cfg.Risk.AlertThreshold == 0 {
		cfg.Risk.AlertThreshold = 0.03
	}
	if cfg.Risk.BalanceCheckInterval == 0 {
		cfg.Risk.BalanceCheckInterval = 60 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/xrpl-lp-bot.db"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = "127.0.0.1:9001"
	}
}

// NetworkID is the id nodes of the configured network report in
// server_info. Mainnet nodes report none, which reads as 0.
func (l LedgerConfig) NetworkID() (uint32, bool) {
	net, ok := networks[l.Network]
	return net.id, ok
}

func validate(cfg *Config) error {
	if _, ok := cfg.Ledger.NetworkID(); !ok {
		return fmt.Errorf("ledger.network must be %q, %q or %q", NetworkMainnet, NetworkTestnet, NetworkDevnet)
	}
	switch cfg.Ledger.Transport {
	case TransportWS, TransportRPC:
	default:
		return fmt.Errorf("ledger.transport must be %q or %q", TransportWS, TransportRPC)
	}
	if cfg.Ledger.ConnectionTimeout < 0 {
		return errors.New("ledger.connection_timeout must be >= 0")
	}
	if strings.EqualFold(cfg.Market.QuoteCurrency, "XRP") {
		return errors.New("market.quote_currency must be an issued currency")
	}
	if cfg.Market.QuoteIssuer == "" {
		return errors.New("market.quote_issuer is required")
	}
	if cfg.Strategy.Capital <= 0 {
		return errors.New("strategy.capital must be > 0")
	}
	if cfg.Strategy.MaxOrders < 1 {
		return errors.New("strategy.max_orders must be >= 1")
	}
	if cfg.Strategy.TargetSpread <= 0 {
		return errors.New("strategy.target_spread must be > 0")
	}
	if cfg.Strategy.RiskTolerance < 0 || cfg.Strategy.RiskTolerance > 1 {
		return errors.New("strategy.risk_tolerance must be within [0,1]")
	}
	if cfg.Optimizer.CoolingRate <= 0 || cfg.Optimizer.CoolingRate >= 1 {
		return errors.New("optimizer.cooling_rate must be within (0,1)")
	}
	if cfg.Optimizer.MinTemperature <= 0 || cfg.Optimizer.InitialTemperature <= cfg.Optimizer.MinTemperature {
		return errors.New("optimizer.initial_temperature must exceed optimizer.min_temperature > 0")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	return ValidateRisk(cfg.Risk)
}

// ValidateRisk enforces alert <= stop loss <= emergency, each within (0,1).
func ValidateRisk(risk RiskConfig) error {
	thresholds := []struct {
		name  string
		value float64
	}{
		{"risk.alert_threshold", risk.AlertThreshold},
		{"risk.stop_loss_percentage", risk.StopLossPercentage},
		{"risk.emergency_shutdown_threshold", risk.EmergencyShutdownThreshold},
	}
	for _, th := range thresholds {
		if th.value <= 0 || th.value >= 1 {
			return fmt.Errorf("%s must be within (0,1), got %v", th.name, th.value)
		}
	}
	if risk.AlertThreshold > risk.StopLossPercentage {
		return errors.New("risk.alert_threshold exceeds risk.stop_loss_percentage")
	}
	if risk.StopLossPercentage > risk.EmergencyShutdownThreshold {
		return errors.New("risk.stop_loss_percentage exceeds risk.emergency_shutdown_threshold")
	}
	if risk.MaxTransactionAmount <= 0 {
		return errors.New("risk.max_transaction_amount must be > 0")
	}
	if risk.MaxDailyVolume < risk.MaxTransactionAmount {
		return errors.New("risk.max_daily_volume must be >= risk.max_transaction_amount")
	}
	return nil
}
