package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/eventledger/libs/codec"
	"github.com/md-rashed-zaman/eventledger/libs/eventlog"
	"github.com/md-rashed-zaman/eventledger/libs/snapshot"
)

type deposited struct {
	Amount int64 `json:"amount"`
}

func (deposited) EventName() string { return "account.deposited.v1" }

type account struct {
	Balance int64 `json:"balance"`
	Applied int   `json:"applied"`
}

func (a *account) Apply(e codec.Event) error {
	d, ok := e.(deposited)
	if !ok {
		return errors.New("unexpected event type")
	}
	a.Balance += d.Amount
	a.Applied++
	return nil
}

func (a *account) StateName() string { return "account.v1" }

func (a *account) Snapshot() ([]byte, error) { return json.Marshal(a) }

func (a *account) RestoreSnapshot(payload []byte) error { return json.Unmarshal(payload, a) }

func testRegistry(t *testing.T) *codec.Registry {
	t.Helper()
	r := codec.NewRegistry()
	r.MustRegister("account.deposited.v1", func(b []byte) (codec.Event, error) {
		var e deposited
		return e, json.Unmarshal(b, &e)
	})
	return r
}

func appendDeposits(t *testing.T, log eventlog.Store, streamID string, from int64, amounts ...int64) int64 {
	t.Helper()
	registry := testRegistry(t)
	records := make([]eventlog.Record, len(amounts))
	for i, amount := range amounts {
		name, payload, err := registry.Encode(deposited{Amount: amount})
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		records[i] = eventlog.Record{EventID: uuid.New(), StreamName: "account", EventName: name, Payload: payload}
	}
	version, err := log.Append(context.Background(), streamID, from, records)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	return version
}

func TestRehydrateFromZero(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryStore()
	appendDeposits(t, log, "acct-1", eventlog.ExpectedNoStream, 10, 20, 30)

	r := NewRehydrator(log, nil, testRegistry(t))
	var a account
	version, err := r.Rehydrate(ctx, "acct-1", &a)
	if err != nil {
		t.Fatalf("rehydrate failed: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}
	if a.Balance != 60 || a.Applied != 3 {
		t.Fatalf("unexpected state: %+v", a)
	}
}

func TestRehydrateEmptyStream(t *testing.T) {
	r := NewRehydrator(eventlog.NewMemoryStore(), nil, testRegistry(t))
	var a account
	version, err := r.Rehydrate(context.Background(), "missing", &a)
	if err != nil {
		t.Fatalf("rehydrate failed: %v", err)
	}
	if version != eventlog.ExpectedNoStream {
		t.Fatalf("expected sentinel version for empty stream, got %d", version)
	}
	if a.Applied != 0 {
		t.Fatalf("no events should have been applied, got %d", a.Applied)
	}
}

func TestSnapshotAndFullReplayAgree(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryStore()
	snaps := snapshot.NewMemoryStore()
	appendDeposits(t, log, "acct-1", eventlog.ExpectedNoStream, 10, 20, 30, 40, 50)

	// Snapshot the state as of version 2.
	var base account
	full := NewRehydrator(log, nil, testRegistry(t))
	if _, err := full.Rehydrate(ctx, "acct-1", &base); err != nil {
		t.Fatalf("full rehydrate failed: %v", err)
	}
	partial := account{Balance: 60, Applied: 3}
	payload, err := partial.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if err := snaps.Save(ctx, snapshot.Record{OwnerID: "acct-1", StreamVersion: 2, StateName: "account.v1", Payload: payload}); err != nil {
		t.Fatalf("save snapshot failed: %v", err)
	}

	var fromSnap account
	snapped := NewRehydrator(log, snaps, testRegistry(t))
	version, err := snapped.Rehydrate(ctx, "acct-1", &fromSnap)
	if err != nil {
		t.Fatalf("snapshot rehydrate failed: %v", err)
	}
	if version != 4 {
		t.Fatalf("expected version 4, got %d", version)
	}
	if fromSnap.Balance != base.Balance {
		t.Fatalf("snapshot path balance %d != full replay balance %d", fromSnap.Balance, base.Balance)
	}
	// Only the suffix after the snapshot was replayed.
	if fromSnap.Applied != 5 {
		t.Fatalf("expected applied count 5 (3 snapshotted + 2 replayed), got %d", fromSnap.Applied)
	}
}

func TestRehydratePagesThroughLongStreams(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryStore()
	amounts := make([]int64, 450)
	for i := range amounts {
		amounts[i] = 1
	}
	appendDeposits(t, log, "acct-1", eventlog.ExpectedNoStream, amounts...)

	r := NewRehydrator(log, nil, testRegistry(t))
	var a account
	version, err := r.Rehydrate(ctx, "acct-1", &a)
	if err != nil {
		t.Fatalf("rehydrate failed: %v", err)
	}
	if version != 449 || a.Applied != 450 {
		t.Fatalf("expected 450 events at version 449, got %d at %d", a.Applied, version)
	}
}

func TestUnknownEventIsFatal(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryStore()
	records := []eventlog.Record{{EventID: uuid.New(), StreamName: "account", EventName: "account.renamed.v9", Payload: []byte(`{}`)}}
	if _, err := log.Append(ctx, "acct-1", eventlog.ExpectedNoStream, records); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	r := NewRehydrator(log, nil, testRegistry(t))
	var a account
	_, err := r.Rehydrate(ctx, "acct-1", &a)
	if !errors.Is(err, codec.ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestRehydrateNilRoot(t *testing.T) {
	r := NewRehydrator(eventlog.NewMemoryStore(), nil, testRegistry(t))
	if _, err := r.Rehydrate(context.Background(), "acct-1", nil); !errors.Is(err, ErrNilRoot) {
		t.Fatalf("expected ErrNilRoot, got %v", err)
	}
}
