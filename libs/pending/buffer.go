// Package pending stages uncommitted events for one unit of work. A Buffer
// is exclusively owned by that unit of work and is not safe for concurrent
// use; the backing store is the only shared mutable state in the system.
package pending

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/eventledger/libs/codec"
	"github.com/md-rashed-zaman/eventledger/libs/eventlog"
)

var ErrAlreadyDrained = errors.New("pending: buffer already drained")

// CommitHook runs after the event log write has durably committed, with the
// persisted records (versions assigned). This is the seam that enqueues
// outbox rows without ever enqueuing for a transaction that rolled back.
type CommitHook func(ctx context.Context, records []eventlog.Record) error

type Buffer struct {
	staged  []codec.Event
	hooks   []CommitHook
	drained bool
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Stage accumulates events without side effects.
func (b *Buffer) Stage(events ...codec.Event) {
	b.staged = append(b.staged, events...)
}

// OnCommitted registers a hook fired once the drained batch commits.
func (b *Buffer) OnCommitted(hook CommitHook) {
	if hook != nil {
		b.hooks = append(b.hooks, hook)
	}
}

func (b *Buffer) Len() int { return len(b.staged) }

// Batch is the drained output. Committed must be called exactly once, and
// only after the event log write has durably committed. If the write fails,
// the batch is discarded and no hook fires.
type Batch struct {
	Events []codec.Event
	hooks  []CommitHook
}

// Drain hands over the staged events and hooks. It may be called once per
// buffer; the unit of work calls it at flush time.
func (b *Buffer) Drain() (Batch, error) {
	if b.drained {
		return Batch{}, ErrAlreadyDrained
	}
	b.drained = true
	batch := Batch{Events: b.staged, hooks: b.hooks}
	b.staged = nil
	b.hooks = nil
	return batch, nil
}

// Committed fires the registered hooks in registration order with the
// persisted records. The first hook error aborts the remainder.
func (b Batch) Committed(ctx context.Context, records []eventlog.Record) error {
	for _, hook := range b.hooks {
		if err := hook(ctx, records); err != nil {
			return err
		}
	}
	return nil
}
