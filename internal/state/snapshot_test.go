package state

import (
	"context"
	"errors"
	"testing"
)

type memoryStore struct {
	data map[string]string
	err  error
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *memoryStore) Close() error { return nil }

type cycleSummary struct {
	Ledger    uint64  `json:"ledger"`
	Submitted int     `json:"submitted"`
	Energy    float64 `json:"energy"`
}

func TestSaveAndLoad(t *testing.T) {
	store := &memoryStore{}
	want := cycleSummary{Ledger: 42, Submitted: 3, Energy: -1.5}
	if err := Save(context.Background(), store, CycleResultKey, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, ok, err := Load[cycleSummary](context.Background(), store, CycleResultKey)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !ok || got != want {
		t.Fatalf("unexpected value %+v (ok=%v)", got, ok)
	}
}

func TestLoadMissingOrBlank(t *testing.T) {
	store := &memoryStore{data: map[string]string{RiskSnapshotKey: "  "}}
	if _, ok, err := Load[cycleSummary](context.Background(), store, RiskSnapshotKey); err != nil || ok {
		t.Fatalf("expected blank value to be absent, ok=%v err=%v", ok, err)
	}
	if _, ok, err := Load[cycleSummary](context.Background(), store, "nope"); err != nil || ok {
		t.Fatalf("expected missing key to be absent, ok=%v err=%v", ok, err)
	}
	if _, ok, err := Load[cycleSummary](context.Background(), nil, CycleResultKey); err != nil || ok {
		t.Fatalf("expected nil store to be absent, ok=%v err=%v", ok, err)
	}
}

func TestLoadErrors(t *testing.T) {
	boom := errors.New("disk gone")
	if _, _, err := Load[cycleSummary](context.Background(), &memoryStore{err: boom}, CycleResultKey); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	store := &memoryStore{data: map[string]string{CycleResultKey: "{not json"}}
	if _, _, err := Load[cycleSummary](context.Background(), store, CycleResultKey); err == nil {
		t.Fatalf("expected decode error")
	}
}
