package pending

import (
	"context"
	"errors"
	"testing"

	"github.com/md-rashed-zaman/eventledger/libs/eventlog"
)

type stubEvent struct{ name string }

func (e stubEvent) EventName() string { return e.name }

func TestStageAccumulatesWithoutSideEffects(t *testing.T) {
	b := NewBuffer()
	fired := false
	b.OnCommitted(func(ctx context.Context, records []eventlog.Record) error {
		fired = true
		return nil
	})

	b.Stage(stubEvent{"a"}, stubEvent{"b"})
	b.Stage(stubEvent{"c"})
	if b.Len() != 3 {
		t.Fatalf("expected 3 staged events, got %d", b.Len())
	}
	if fired {
		t.Fatal("hook must not fire before commit")
	}
}

func TestDrainOnce(t *testing.T) {
	b := NewBuffer()
	b.Stage(stubEvent{"a"})

	batch, err := b.Drain()
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(batch.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(batch.Events))
	}

	if _, err := b.Drain(); !errors.Is(err, ErrAlreadyDrained) {
		t.Fatalf("expected ErrAlreadyDrained, got %v", err)
	}
}

func TestCommittedFiresHooksInOrder(t *testing.T) {
	b := NewBuffer()
	var order []string
	b.OnCommitted(func(ctx context.Context, records []eventlog.Record) error {
		order = append(order, "first")
		return nil
	})
	b.OnCommitted(func(ctx context.Context, records []eventlog.Record) error {
		order = append(order, "second")
		return nil
	})
	b.Stage(stubEvent{"a"})

	batch, err := b.Drain()
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	records := []eventlog.Record{{EventName: "a", StreamVersion: 0}}
	if err := batch.Committed(context.Background(), records); err != nil {
		t.Fatalf("committed failed: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("hooks ran out of order: %v", order)
	}
}

func TestCommittedStopsOnHookError(t *testing.T) {
	b := NewBuffer()
	hookErr := errors.New("enqueue failed")
	secondRan := false
	b.OnCommitted(func(ctx context.Context, records []eventlog.Record) error {
		return hookErr
	})
	b.OnCommitted(func(ctx context.Context, records []eventlog.Record) error {
		secondRan = true
		return nil
	})
	b.Stage(stubEvent{"a"})

	batch, _ := b.Drain()
	if err := batch.Committed(context.Background(), nil); !errors.Is(err, hookErr) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if secondRan {
		t.Fatal("second hook must not run after a failure")
	}
}

func TestDiscardedBufferFiresNothing(t *testing.T) {
	b := NewBuffer()
	fired := false
	b.OnCommitted(func(ctx context.Context, records []eventlog.Record) error {
		fired = true
		return nil
	})
	b.Stage(stubEvent{"a"})
	// Transaction failed: the buffer is dropped without Drain or Committed
	// ever being called.
	if fired {
		t.Fatal("no hook may fire for a rolled back transaction")
	}
}
