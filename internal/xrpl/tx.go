package xrpl

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	IntentMemoType = "intent"

	defaultTxLookback = 50
)

// AppliedTx is a validated transaction found in the account history.
type AppliedTx struct {
	Hash     string
	Result   string
	Sequence uint64
}

// Succeeded reports whether the transaction took effect. tec results are
// applied (the fee is claimed) but the offer was not placed.
func (t AppliedTx) Succeeded() bool {
	return strings.HasPrefix(t.Result, "tes")
}

func memoHex(s string) string {
	return strings.ToUpper(strings.TrimPrefix(hexutil.Encode([]byte(s)), "0x"))
}

// FindTxByMemo scans the most recent validated transactions of account for
// one carrying an intent memo equal to memo.
func FindTxByMemo(ctx context.Context, r Requester, account, memo string, limit int) (AppliedTx, bool, error) {
	account = strings.TrimSpace(account)
	if account == "" || memo == "" {
		return AppliedTx{}, false, errors.New("account and memo are required")
	}
	if limit <= 0 {
		limit = defaultTxLookback
	}
	result, err := r.Request(ctx, "account_tx", map[string]any{
		"account":          account,
		"ledger_index_min": -1,
		"ledger_index_max": -1,
		"limit":            limit,
		"forward":          false,
	})
	if err != nil {
		return AppliedTx{}, false, err
	}
	wantType := memoHex(IntentMemoType)
	wantData := memoHex(memo)
	entries, _ := result["transactions"].([]any)
	for _, item := range entries {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		// API v1 nests the transaction under "tx", v2 under "tx_json" with
		// the hash alongside.
		tx, ok := entry["tx"].(map[string]any)
		if !ok {
			tx, ok = entry["tx_json"].(map[string]any)
			if !ok {
				continue
			}
		}
		if !hasMemo(tx, wantType, wantData) {
			continue
		}
		found := AppliedTx{
			Hash:     stringFromMap(tx, "hash"),
			Sequence: uintFromAny(tx["Sequence"]),
		}
		if found.Hash == "" {
			found.Hash = stringFromMap(entry, "hash")
		}
		if meta, ok := entry["meta"].(map[string]any); ok {
			found.Result = stringFromMap(meta, "TransactionResult")
		}
		return found, true, nil
	}
	return AppliedTx{}, false, nil
}

func hasMemo(tx map[string]any, memoType, memoData string) bool {
	memos, _ := tx["Memos"].([]any)
	for _, item := range memos {
		wrapper, ok := item.(map[string]any)
		if !ok {
			continue
		}
		memo, ok := wrapper["Memo"].(map[string]any)
		if !ok {
			continue
		}
		if strings.EqualFold(stringFromMap(memo, "MemoType"), memoType) &&
			strings.EqualFold(stringFromMap(memo, "MemoData"), memoData) {
			return true
		}
	}
	return false
}
