package ledger

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type envelope struct {
	ID           *uint64             `json:"id,omitempty"`
	Type         string              `json:"type"`
	Status       string              `json:"status"`
	Result       jsoniter.RawMessage `json:"result"`
	Error        string              `json:"error"`
	ErrorMessage string              `json:"error_message"`
}

// LedgerClosed is a ledgerClosed stream event, or the ledger header returned
// when subscribing.
type LedgerClosed struct {
	Index     uint64 `json:"ledger_index"`
	Hash      string `json:"ledger_hash"`
	CloseTime uint64 `json:"ledger_time"`
	TxnCount  int    `json:"txn_count"`
}

func encodeCommand(id uint64, command string, params map[string]any) ([]byte, error) {
	msg := make(map[string]any, len(params)+2)
	for k, v := range params {
		msg[k] = v
	}
	msg["id"] = id
	msg["command"] = command
	return json.Marshal(msg)
}

func decodeResult(command string, env envelope) (map[string]any, error) {
	if env.Status == "error" || env.Error != "" {
		return nil, &RPCError{Command: command, Code: env.Error, Message: env.ErrorMessage}
	}
	var result map[string]any
	if len(env.Result) == 0 {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, err
	}
	if status, _ := result["status"].(string); status == "error" {
		code, _ := result["error"].(string)
		message, _ := result["error_message"].(string)
		return nil, &RPCError{Command: command, Code: code, Message: message}
	}
	return result, nil
}

func parseLedgerClosed(data []byte) (LedgerClosed, bool) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.Type != "ledgerClosed" {
		return LedgerClosed{}, false
	}
	var event LedgerClosed
	if err := json.Unmarshal(data, &event); err != nil {
		return LedgerClosed{}, false
	}
	return event, event.Index > 0
}

// LedgerFromResult reads the ledger header fields from a subscribe or ledger
// command result.
func LedgerFromResult(result map[string]any) (LedgerClosed, bool) {
	if result == nil {
		return LedgerClosed{}, false
	}
	if nested, ok := result["ledger"].(map[string]any); ok {
		event := LedgerClosed{
			Index:     uint64FromAny(nested["ledger_index"]),
			Hash:      stringFromAny(nested["ledger_hash"]),
			CloseTime: uint64FromAny(nested["close_time"]),
		}
		if event.Index == 0 {
			event.Index = uint64FromAny(result["ledger_index"])
		}
		if event.Hash == "" {
			event.Hash = stringFromAny(result["ledger_hash"])
		}
		return event, event.Index > 0
	}
	event := LedgerClosed{
		Index:     uint64FromAny(result["ledger_index"]),
		Hash:      stringFromAny(result["ledger_hash"]),
		CloseTime: uint64FromAny(result["ledger_time"]),
	}
	return event, event.Index > 0
}

func uint64FromAny(v any) uint64 {
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
	case string:
		var out uint64
		for _, r := range strings.TrimSpace(val) {
			if r < '0' || r > '9' {
				return 0
			}
			out = out*10 + uint64(r-'0')
		}
		return out
	default:
		return 0
	}
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
