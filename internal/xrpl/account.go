package xrpl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"xrpl-lp-bot/internal/ledger"
)

var ErrAccountNotFound = errors.New("account not found")

// Requester is the subset of the ledger connection the helpers need.
type Requester interface {
	Request(ctx context.Context, command string, params map[string]any) (map[string]any, error)
}

type AccountInfo struct {
	Address      string
	BalanceDrops int64
	Sequence     uint64
	OwnerCount   int
	LedgerIndex  uint64
}

type TrustLine struct {
	Currency string
	Issuer   string
	Balance  string
	Limit    string
}

func GetAccountInfo(ctx context.Context, r Requester, address string) (AccountInfo, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return AccountInfo{}, errors.New("account address is required")
	}
	result, err := r.Request(ctx, "account_info", map[string]any{
		"account":      address,
		"ledger_index": "validated",
	})
	if err != nil {
		if ledger.IsRPCCode(err, "actNotFound") {
			return AccountInfo{}, fmt.Errorf("%s: %w", address, ErrAccountNotFound)
		}
		return AccountInfo{}, err
	}
	data, ok := result["account_data"].(map[string]any)
	if !ok {
		return AccountInfo{}, errors.New("account_info: missing account_data")
	}
	balance, _ := data["Balance"].(string)
	drops, err := ParseDrops(balance)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("account_info balance: %w", err)
	}
	return AccountInfo{
		Address:      address,
		BalanceDrops: drops,
		Sequence:     uintFromAny(data["Sequence"]),
		OwnerCount:   int(uintFromAny(data["OwnerCount"])),
		LedgerIndex:  uintFromAny(result["ledger_index"]),
	}, nil
}

// AccountBalance returns the validated XRP balance in drops.
func AccountBalance(ctx context.Context, r Requester, address string) (int64, error) {
	info, err := GetAccountInfo(ctx, r, address)
	if err != nil {
		return 0, err
	}
	return info.BalanceDrops, nil
}

func AccountLines(ctx context.Context, r Requester, address string) ([]TrustLine, error) {
	result, err := r.Request(ctx, "account_lines", map[string]any{
		"account":      address,
		"ledger_index": "validated",
	})
	if err != nil {
		if ledger.IsRPCCode(err, "actNotFound") {
			return nil, fmt.Errorf("%s: %w", address, ErrAccountNotFound)
		}
		return nil, err
	}
	raw, _ := result["lines"].([]any)
	lines := make([]TrustLine, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		lines = append(lines, TrustLine{
			Currency: stringFromMap(m, "currency"),
			Issuer:   stringFromMap(m, "account"),
			Balance:  stringFromMap(m, "balance"),
			Limit:    stringFromMap(m, "limit"),
		})
	}
	return lines, nil
}

func stringFromMap(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func uintFromAny(v any) uint64 {
	switch val := v.(type) {
	case float64:
		if val < 0 {
			return 0
		}
		return uint64(val)
	case int:
		if val < 0 {
			return 0
		}
		return uint64(val)
	case int64:
		if val < 0 {
			return 0
		}
		return uint64(val)
	case uint64:
		return val
	default:
		return 0
	}
}

// ValidatedLedger returns the header of the latest validated ledger.
func ValidatedLedger(ctx context.Context, r Requester) (ledger.LedgerClosed, error) {
	result, err := r.Request(ctx, "ledger", map[string]any{"ledger_index": "validated"})
	if err != nil {
		return ledger.LedgerClosed{}, err
	}
	event, ok := ledger.LedgerFromResult(result)
	if !ok {
		return ledger.LedgerClosed{}, errors.New("ledger: missing ledger header")
	}
	return event, nil
}
