package state

import (
	"context"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const (
	CycleResultKey  = "cycle:last"
	RiskSnapshotKey = "risk:snapshot"
	OfferKeyPrefix  = "offer:"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Load decodes the JSON value stored under key. A nil store or a missing or
// blank value reports ok=false.
func Load[T any](ctx context.Context, store Store, key string) (T, bool, error) {
	var out T
	if store == nil {
		return out, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return out, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return out, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

func Save(ctx context.Context, store Store, key string, value any) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(payload))
}
