package uow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/eventledger/libs/clockx"
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
}

func (a *account) StateName() string { return "account.v1" }

func (a *account) Snapshot() ([]byte, error) { return json.Marshal(a) }

func testRegistry(t *testing.T) *codec.Registry {
	t.Helper()
	r := codec.NewRegistry()
	r.MustRegister("account.deposited.v1", func(b []byte) (codec.Event, error) {
		var e deposited
		return e, json.Unmarshal(b, &e)
	})
	return r
}

func TestCommitAppendsAndFiresHooks(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryStore()
	clock := clockx.NewManual(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	var committed []eventlog.Record
	u := New(log, testRegistry(t), "acct-1", "account", eventlog.ExpectedNoStream, Config{Clock: clock})
	u.OnCommitted(func(ctx context.Context, records []eventlog.Record) error {
		committed = records
		return nil
	})
	u.Stage(deposited{Amount: 10}, deposited{Amount: 20})

	version, err := u.Commit(ctx, nil)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
	if u.Version() != 1 {
		t.Fatalf("unit version not updated: %d", u.Version())
	}

	if len(committed) != 2 {
		t.Fatalf("hook expected 2 records, got %d", len(committed))
	}
	if committed[0].StreamVersion != 0 || committed[1].StreamVersion != 1 {
		t.Fatalf("hook must see persisted versions, got %d,%d", committed[0].StreamVersion, committed[1].StreamVersion)
	}
	if committed[0].EventID == committed[1].EventID {
		t.Fatal("event ids must be unique")
	}
	if !committed[0].CreatedAt.Equal(clock.Now()) {
		t.Fatalf("records must use the injected clock, got %s", committed[0].CreatedAt)
	}
}

func TestCommitConflictPropagates(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryStore()
	registry := testRegistry(t)

	first := New(log, registry, "acct-1", "account", eventlog.ExpectedNoStream, Config{})
	first.Stage(deposited{Amount: 10})
	if _, err := first.Commit(ctx, nil); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	hookFired := false
	stale := New(log, registry, "acct-1", "account", eventlog.ExpectedNoStream, Config{})
	stale.OnCommitted(func(ctx context.Context, records []eventlog.Record) error {
		hookFired = true
		return nil
	})
	stale.Stage(deposited{Amount: 5})
	if _, err := stale.Commit(ctx, nil); !errors.Is(err, eventlog.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
	if hookFired {
		t.Fatal("hook must not fire for a failed commit")
	}
}

func TestCommitEmptyBufferIsNoop(t *testing.T) {
	log := eventlog.NewMemoryStore()
	u := New(log, testRegistry(t), "acct-1", "account", eventlog.ExpectedNoStream, Config{})
	version, err := u.Commit(context.Background(), nil)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if version != eventlog.ExpectedNoStream {
		t.Fatalf("expected unchanged version, got %d", version)
	}
}

func TestCommitTwiceRejected(t *testing.T) {
	log := eventlog.NewMemoryStore()
	u := New(log, testRegistry(t), "acct-1", "account", eventlog.ExpectedNoStream, Config{})
	u.Stage(deposited{Amount: 10})
	if _, err := u.Commit(context.Background(), nil); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, err := u.Commit(context.Background(), nil); !errors.Is(err, ErrCommitted) {
		t.Fatalf("expected ErrCommitted, got %v", err)
	}
}

func TestSnapshotPolicyTriggersSave(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryStore()
	snaps := snapshot.NewMemoryStore()
	cfg := Config{Snapshots: snaps, Policy: snapshot.Policy{EveryN: 2}}

	u := New(log, testRegistry(t), "acct-1", "account", eventlog.ExpectedNoStream, cfg)
	u.Stage(deposited{Amount: 10}, deposited{Amount: 20})
	if _, err := u.Commit(ctx, &account{Balance: 30}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	rec, ok, err := snaps.LoadLatest(ctx, "acct-1")
	if err != nil {
		t.Fatalf("load snapshot failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a snapshot after crossing the policy boundary")
	}
	if rec.StreamVersion != 1 || rec.StateName != "account.v1" {
		t.Fatalf("unexpected snapshot record: %+v", rec)
	}
}

func TestSnapshotBelowPolicySkipped(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryStore()
	snaps := snapshot.NewMemoryStore()
	cfg := Config{Snapshots: snaps, Policy: snapshot.Policy{EveryN: 10}}

	u := New(log, testRegistry(t), "acct-1", "account", eventlog.ExpectedNoStream, cfg)
	u.Stage(deposited{Amount: 10})
	if _, err := u.Commit(ctx, &account{Balance: 10}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, ok, _ := snaps.LoadLatest(ctx, "acct-1"); ok {
		t.Fatal("no snapshot expected below the policy boundary")
	}
}

func TestHookErrorDoesNotUnwindCommit(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryStore()
	hookErr := errors.New("outbox down")

	u := New(log, testRegistry(t), "acct-1", "account", eventlog.ExpectedNoStream, Config{})
	u.OnCommitted(func(ctx context.Context, records []eventlog.Record) error {
		return hookErr
	})
	u.Stage(deposited{Amount: 10})

	version, err := u.Commit(ctx, nil)
	if !errors.Is(err, hookErr) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if version != 0 {
		t.Fatalf("commit version must still be reported, got %d", version)
	}

	events, readErr := log.ReadStream(ctx, "acct-1", eventlog.ExpectedNoStream, 10)
	if readErr != nil {
		t.Fatalf("read failed: %v", readErr)
	}
	if len(events) != 1 {
		t.Fatalf("domain write must remain durable, got %d events", len(events))
	}
}
