package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLedgerDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Ledger.PrimaryURL != DefaultPrimaryURL {
		t.Fatalf("expected primary default, got %q", cfg.Ledger.PrimaryURL)
	}
	if len(cfg.Ledger.FallbackURLs) != len(DefaultFallbackURLs) {
		t.Fatalf("expected %d fallbacks, got %d", len(DefaultFallbackURLs), len(cfg.Ledger.FallbackURLs))
	}
	if cfg.Ledger.ConnectionTimeout != 15*time.Second {
		t.Fatalf("expected 15s connection timeout, got %v", cfg.Ledger.ConnectionTimeout)
	}
	if cfg.Ledger.Transport != TransportWS {
		t.Fatalf("expected ws transport, got %q", cfg.Ledger.Transport)
	}
}

func TestFallbackDefaultsAreCopied(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Ledger.FallbackURLs[0] = "wss://mutated"
	if DefaultFallbackURLs[0] == "wss://mutated" {
		t.Fatalf("defaults must not alias config")
	}
}

func TestExplicitEmptyFallbackListKept(t *testing.T) {
	cfg := &Config{Ledger: LedgerConfig{FallbackURLs: []string{}}}
	applyDefaults(cfg)
	if len(cfg.Ledger.FallbackURLs) != 0 {
		t.Fatalf("expected explicit empty fallback list, got %v", cfg.Ledger.FallbackURLs)
	}
}

func TestNetworkSelectsEndpointsAndID(t *testing.T) {
	cfg := &Config{Ledger: LedgerConfig{Network: NetworkMainnet}}
	applyDefaults(cfg)
	if cfg.Ledger.PrimaryURL != "wss://xrplcluster.com" {
		t.Fatalf("expected mainnet primary, got %q", cfg.Ledger.PrimaryURL)
	}
	for _, url := range cfg.Ledger.FallbackURLs {
		if strings.Contains(url, "rippletest") {
			t.Fatalf("mainnet fallbacks must not include testnet nodes: %v", cfg.Ledger.FallbackURLs)
		}
	}
	if id, ok := cfg.Ledger.NetworkID(); !ok || id != 0 {
		t.Fatalf("expected mainnet id 0, got %d ok=%v", id, ok)
	}

	cfg = &Config{}
	applyDefaults(cfg)
	if id, ok := cfg.Ledger.NetworkID(); cfg.Ledger.Network != NetworkTestnet || !ok || id != 1 {
		t.Fatalf("expected testnet by default, got %q id %d", cfg.Ledger.Network, id)
	}
}

func TestUnknownNetworkRejected(t *testing.T) {
	cfg := &Config{Ledger: LedgerConfig{Network: "sidechain"}, Market: MarketConfig{QuoteIssuer: "rIssuer"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil || !strings.Contains(err.Error(), "ledger.network") {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestRiskDefaults(t *testing.T) {
	cfg := &Config{Market: MarketConfig{QuoteIssuer: "rIssuer"}}
	applyDefaults(cfg)
	if cfg.Risk.MaxTransactionAmount != 5000 || cfg.Risk.MaxDailyVolume != 25000 {
		t.Fatalf("unexpected amount limits: %+v", cfg.Risk)
	}
	if cfg.Risk.AlertThreshold != 0.03 || cfg.Risk.StopLossPercentage != 0.05 || cfg.Risk.EmergencyShutdownThreshold != 0.15 {
		t.Fatalf("unexpected thresholds: %+v", cfg.Risk)
	}
	if cfg.Risk.LiveTrading {
		t.Fatalf("expected simulation mode by default")
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestOptimizerDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Optimizer.Iterations != 1000 || cfg.Optimizer.InitialTemperature != 100 {
		t.Fatalf("unexpected optimizer defaults: %+v", cfg.Optimizer)
	}
	if cfg.Optimizer.CoolingRate != 0.95 || cfg.Optimizer.MinTemperature != 0.01 {
		t.Fatalf("unexpected optimizer defaults: %+v", cfg.Optimizer)
	}
}

func TestMetricsDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if !cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics enabled default")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("expected metrics path default, got %q", cfg.Metrics.Path)
	}
	if cfg.HTTP.Address != "127.0.0.1:9001" {
		t.Fatalf("expected http address default, got %q", cfg.HTTP.Address)
	}
}

func TestValidateRiskOrdering(t *testing.T) {
	base := RiskConfig{
		MaxTransactionAmount:       100,
		MaxDailyVolume:             1000,
		AlertThreshold:             0.03,
		StopLossPercentage:         0.05,
		EmergencyShutdownThreshold: 0.15,
	}
	if err := ValidateRisk(base); err != nil {
		t.Fatalf("expected valid risk config, got %v", err)
	}

	swapped := base
	swapped.AlertThreshold = 0.1
	if err := ValidateRisk(swapped); err == nil {
		t.Fatalf("expected alert > stop loss to fail")
	}

	swapped = base
	swapped.StopLossPercentage = 0.2
	if err := ValidateRisk(swapped); err == nil {
		t.Fatalf("expected stop loss > emergency to fail")
	}

	outOfRange := base
	outOfRange.EmergencyShutdownThreshold = 1
	if err := ValidateRisk(outOfRange); err == nil {
		t.Fatalf("expected emergency threshold of 1 to fail")
	}

	outOfRange = base
	outOfRange.AlertThreshold = -0.01
	if err := ValidateRisk(outOfRange); err == nil {
		t.Fatalf("expected negative alert threshold to fail")
	}
}

func TestValidateRejectsUnknownTransport(t *testing.T) {
	cfg := &Config{Ledger: LedgerConfig{Transport: "grpc"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected transport validation error")
	}
}

func TestValidateRequiresQuoteIssuer(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Market.QuoteIssuer = ""
	if err := validate(cfg); err == nil || !strings.Contains(err.Error(), "quote_issuer") {
		t.Fatalf("expected quote issuer error, got %v", err)
	}
}

func TestValidateRejectsMetricsPathWithoutSlash(t *testing.T) {
	cfg := &Config{Market: MarketConfig{QuoteIssuer: "rIssuer"}, Metrics: MetricsConfig{Path: "metrics"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected metrics path error")
	}
}

func TestValidateRejectsTelegramEnabledWithoutConfig(t *testing.T) {
	cfg := &Config{Market: MarketConfig{QuoteIssuer: "rIssuer"}, Telegram: TelegramConfig{Enabled: true}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected telegram config error")
	}
}

func TestLoadReadsWalletFromEnv(t *testing.T) {
	t.Setenv("XRPL_WALLET_ADDRESS", "rTestAddress")
	t.Setenv("XRPL_WALLET_SEED", "sTestSeed")
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("TIMESCALE_DSN", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "" +
		"market:\n" +
		"  quote_issuer: rhub8VRN55s94qWKDv6jmDy1pUykJzF3wq\n" +
		"risk:\n" +
		"  live_trading: true\n" +
		"strategy:\n" +
		"  update_interval: 30s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Wallet.Address != "rTestAddress" || cfg.Wallet.Seed != "sTestSeed" {
		t.Fatalf("unexpected wallet: %+v", cfg.Wallet)
	}
	if !cfg.Risk.LiveTrading {
		t.Fatalf("expected live trading from yaml")
	}
	if cfg.Strategy.UpdateInterval != 30*time.Second {
		t.Fatalf("expected 30s interval, got %v", cfg.Strategy.UpdateInterval)
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSampleConfigLoads(t *testing.T) {
	t.Setenv("XRPL_WALLET_ADDRESS", "")
	t.Setenv("XRPL_WALLET_SEED", "")
	cfg, err := Load("config.yaml")
	if err != nil {
		t.Fatalf("sample config: %v", err)
	}
	if cfg.Risk.LiveTrading {
		t.Fatalf("sample config must start in simulation mode")
	}
	if cfg.Strategy.UpdateInterval != time.Minute || cfg.Optimizer.Iterations != 1000 {
		t.Fatalf("unexpected sample values: %+v %+v", cfg.Strategy, cfg.Optimizer)
	}
}
