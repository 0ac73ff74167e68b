package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"xrpl-lp-bot/internal/app"
	"xrpl-lp-bot/internal/config"
	"xrpl-lp-bot/internal/exec"
	"xrpl-lp-bot/internal/ledger"
	"xrpl-lp-bot/internal/logging"
	"xrpl-lp-bot/internal/market"
	"xrpl-lp-bot/internal/risk"
	"xrpl-lp-bot/internal/state"
	"xrpl-lp-bot/internal/state/sqlite"
	"xrpl-lp-bot/internal/timescale"
	"xrpl-lp-bot/internal/xrpl"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
)

const defaultInspectEnvFile = ".env"

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	offline := flag.Bool("offline", false, "skip ledger queries and only read local state")
	history := flag.Int("history", 10, "recent cycles to read from timescale when enabled")
	flag.Parse()

	if err := config.LoadEnv(defaultInspectEnvFile); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(config.LoggingConfig{Level: "warn"})
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Ledger.ConnectionTimeout+30*time.Second)
	defer cancel()

	out := os.Stdout
	if !*offline {
		if err := inspectLedger(ctx, out, cfg, log); err != nil {
			fmt.Fprintf(os.Stderr, "ledger: %v\n", err)
		}
	}
	if err := inspectState(ctx, out, cfg); err != nil {
		fatal(err)
	}
	if cfg.Timescale.Enabled {
		if err := inspectHistory(ctx, out, cfg, log, *history); err != nil {
			fmt.Fprintf(os.Stderr, "timescale: %v\n", err)
		}
	}
}

// inspectLedger reports the wallet and the book without placing anything.
func inspectLedger(ctx context.Context, out io.Writer, cfg *config.Config, log *zap.Logger) error {
	var dialer ledger.Dialer = ledger.WSDialer{PingInterval: cfg.Ledger.PingInterval, Log: log}
	if cfg.Ledger.Transport == config.TransportRPC {
		dialer = ledger.RPCDialer{Timeout: cfg.Ledger.RequestTimeout}
	}
	manager := ledger.NewManager(ledger.ManagerConfig{
		Endpoints:         ledger.BuildEndpoints(cfg.Ledger.PrimaryURL, cfg.Ledger.FallbackURLs),
		ConnectionTimeout: cfg.Ledger.ConnectionTimeout,
		RequestTimeout:    cfg.Ledger.RequestTimeout,
		NetworkID:         app.NetworkID(cfg.Ledger),
	}, dialer, log)
	if _, err := manager.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = manager.Disconnect(context.Background()) }()

	endpoint, _ := manager.Active()
	fmt.Fprintf(out, "connected to %s\n", endpoint.Address)
	if event, err := xrpl.ValidatedLedger(ctx, manager); err == nil {
		fmt.Fprintf(out, "validated ledger %d (%s)\n", event.Index, event.Hash)
	}

	pair := xrpl.Pair{QuoteCurrency: cfg.Market.QuoteCurrency, QuoteIssuer: cfg.Market.QuoteIssuer}
	data := market.New(manager, market.Options{Pair: pair, BookLimit: cfg.Market.BookLimit}, log).MarketData(ctx)
	fmt.Fprintf(out, "\n%s market\n", pair)
	table := tablewriter.NewWriter(out)
	table.Header("Price", "Depth (XRP)", "Volatility")
	table.Append(
		fmt.Sprintf("%.6f", data.Price),
		fmt.Sprintf("%.2f", data.Volume),
		fmt.Sprintf("%.4f", data.Volatility),
	)
	table.Render()

	address := strings.TrimSpace(cfg.Wallet.Address)
	if address == "" {
		fmt.Fprintln(out, "\nno wallet configured (XRPL_WALLET_ADDRESS)")
		return nil
	}
	info, err := xrpl.GetAccountInfo(ctx, manager, address)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nwallet %s\n", info.Address)
	table = tablewriter.NewWriter(out)
	table.Header("Balance (XRP)", "Sequence", "Owner count", "Ledger")
	table.Append(
		xrpl.DropsToXRP(info.BalanceDrops).String(),
		fmt.Sprintf("%d", info.Sequence),
		fmt.Sprintf("%d", info.OwnerCount),
		fmt.Sprintf("%d", info.LedgerIndex),
	)
	table.Render()

	lines, err := xrpl.AccountLines(ctx, manager, address)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		fmt.Fprintln(out, "no trust lines")
		return nil
	}
	table = tablewriter.NewWriter(out)
	table.Header("Currency", "Issuer", "Balance", "Limit")
	for _, line := range lines {
		table.Append(line.Currency, line.Issuer, line.Balance, line.Limit)
	}
	table.Render()
	return nil
}

func inspectState(ctx context.Context, out io.Writer, cfg *config.Config) error {
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()

	last, ok, err := state.Load[app.CycleResult](ctx, store, state.CycleResultKey)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nlast cycle")
	if !ok {
		fmt.Fprintln(out, "none recorded")
	} else {
		fmt.Fprintf(out, "%s at %s, ledger %d, energy %.4f, expected yield %.4f\n",
			last.ID, last.Timestamp.Format(time.RFC3339), last.Ledger.Index,
			last.Optimization.Energy, last.Yield.ExpectedYield)
		table := tablewriter.NewWriter(out)
		table.Header("Side", "Price", "Amount (XRP)", "Outcome", "Tx")
		for _, tx := range last.Transactions {
			table.Append(string(tx.Side), fmt.Sprintf("%.6f", tx.Price), fmt.Sprintf("%.6f", tx.Amount), tx.Outcome, tx.TxHash)
		}
		table.Render()
	}

	snap, ok, err := state.Load[risk.Snapshot](ctx, store, state.RiskSnapshotKey)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nalerts")
	if !ok || len(snap.Alerts) == 0 {
		fmt.Fprintln(out, "none recorded")
	} else {
		table := tablewriter.NewWriter(out)
		table.Header("Created", "Severity", "Kind", "Message", "Ack")
		for _, alert := range snap.Alerts {
			table.Append(
				alert.CreatedAt.Format(time.RFC3339),
				string(alert.Severity),
				string(alert.Kind),
				alert.Message,
				fmt.Sprintf("%t", alert.Acknowledged),
			)
		}
		table.Render()
		fmt.Fprintf(out, "daily volume %.6f XRP, resets %s\n", snap.Window.Accumulated, snap.Window.ResetAt.Format(time.RFC3339))
	}

	offers, err := store.List(ctx, state.OfferKeyPrefix)
	if err != nil {
		return err
	}
	if len(offers) > 0 {
		fmt.Fprintln(out, "\noffer records")
		table := tablewriter.NewWriter(out)
		table.Header("Intent", "Status", "Side", "Amount (XRP)", "Tx", "At")
		for _, entry := range offers {
			record, ok, err := state.Load[exec.Record](ctx, store, entry.Key)
			if err != nil || !ok {
				continue
			}
			table.Append(
				strings.TrimPrefix(entry.Key, state.OfferKeyPrefix),
				record.Status,
				string(record.Intent.Side),
				fmt.Sprintf("%.6f", record.Intent.Amount),
				record.TxHash,
				record.At.Format(time.RFC3339),
			)
		}
		table.Render()
	}

	audits, err := store.List(ctx, "ops:audit:")
	if err != nil {
		return err
	}
	if len(audits) > 0 {
		fmt.Fprintln(out, "\noperator actions")
		table := tablewriter.NewWriter(out)
		table.Header("Key", "Event")
		for _, entry := range audits {
			table.Append(entry.Key, entry.Value)
		}
		table.Render()
	}
	return nil
}

func inspectHistory(ctx context.Context, out io.Writer, cfg *config.Config, log *zap.Logger, limit int) error {
	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		return err
	}
	defer writer.Close()
	rows, err := writer.RecentCycles(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nrecent cycles")
	table := tablewriter.NewWriter(out)
	table.Header("Time", "Ledger", "Price", "Energy", "Proposed", "Submitted", "Simulated", "Rejected", "Failed")
	for _, row := range rows {
		table.Append(
			row.Time.Format(time.RFC3339),
			fmt.Sprintf("%d", row.LedgerIndex),
			fmt.Sprintf("%.6f", row.Price),
			fmt.Sprintf("%.4f", row.Energy),
			fmt.Sprintf("%d", row.Proposed),
			fmt.Sprintf("%d", row.Submitted),
			fmt.Sprintf("%d", row.Simulated),
			fmt.Sprintf("%d", row.Rejected),
			fmt.Sprintf("%d", row.Failed),
		)
	}
	table.Render()
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
