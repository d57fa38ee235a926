// Package uow sequences the commit path of one aggregate command: drain the
// pending buffer, append to the event log under the optimistic-concurrency
// check, then fire the committed hooks.
package uow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/eventledger/libs/clockx"
	"github.com/md-rashed-zaman/eventledger/libs/codec"
	"github.com/md-rashed-zaman/eventledger/libs/eventlog"
	"github.com/md-rashed-zaman/eventledger/libs/pending"
	"github.com/md-rashed-zaman/eventledger/libs/snapshot"
)

var ErrCommitted = errors.New("uow: already committed")

// Config carries the optional collaborators of a unit of work.
type Config struct {
	// Snapshots enables policy-driven snapshot writes. May be nil.
	Snapshots snapshot.Store
	Policy    snapshot.Policy

	// CorrelationID and CausationID are stamped on every appended record.
	CorrelationID string
	CausationID   string

	Clock  clockx.Clock
	Logger *slog.Logger
}

// UnitOfWork owns one pending buffer and one commit. It is not safe for
// concurrent use.
type UnitOfWork struct {
	log        eventlog.Store
	registry   *codec.Registry
	streamID   string
	streamName string
	version    int64
	buffer     *pending.Buffer
	cfg        Config
	committed  bool
}

// New starts a unit of work against streamID at baseVersion, the version the
// caller observed when rehydrating (eventlog.ExpectedNoStream for a new
// stream).
func New(log eventlog.Store, registry *codec.Registry, streamID, streamName string, baseVersion int64, cfg Config) *UnitOfWork {
	if cfg.Clock == nil {
		cfg.Clock = clockx.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &UnitOfWork{
		log:        log,
		registry:   registry,
		streamID:   streamID,
		streamName: streamName,
		version:    baseVersion,
		buffer:     pending.NewBuffer(),
		cfg:        cfg,
	}
}

// Stage accumulates events without side effects.
func (u *UnitOfWork) Stage(events ...codec.Event) {
	u.buffer.Stage(events...)
}

// OnCommitted registers a post-commit hook (e.g. the outbox enqueue).
func (u *UnitOfWork) OnCommitted(hook pending.CommitHook) {
	u.buffer.OnCommitted(hook)
}

// Version returns the stream head version as of the last successful commit,
// or the base version before one.
func (u *UnitOfWork) Version() int64 { return u.version }

// Commit drains the buffer, appends under the expected-version check, fires
// the committed hooks, then applies the snapshot policy against root (may be
// nil to skip snapshotting). On eventlog.ErrConcurrencyConflict the caller
// must reload the aggregate and retry the command.
func (u *UnitOfWork) Commit(ctx context.Context, root Snapshotter) (int64, error) {
	if u.committed {
		return 0, ErrCommitted
	}
	u.committed = true

	batch, err := u.buffer.Drain()
	if err != nil {
		return 0, err
	}
	if len(batch.Events) == 0 {
		return u.version, nil
	}

	records := make([]eventlog.Record, len(batch.Events))
	for i, event := range batch.Events {
		name, payload, err := u.registry.Encode(event)
		if err != nil {
			return 0, err
		}
		records[i] = eventlog.Record{
			EventID:       uuid.New(),
			StreamName:    u.streamName,
			EventName:     name,
			Payload:       payload,
			CausationID:   u.cfg.CausationID,
			CorrelationID: u.cfg.CorrelationID,
			CreatedAt:     u.cfg.Clock.Now(),
		}
	}

	oldVersion := u.version
	newVersion, err := u.log.Append(ctx, u.streamID, oldVersion, records)
	if err != nil {
		return 0, err
	}
	u.version = newVersion

	if err := batch.Committed(ctx, records); err != nil {
		// The domain write is durable; hook failures must not unwind it.
		return newVersion, err
	}

	u.maybeSnapshot(ctx, root, oldVersion, newVersion)
	return newVersion, nil
}

// Snapshotter is the subset of aggregate state needed to write a snapshot.
type Snapshotter interface {
	StateName() string
	Snapshot() ([]byte, error)
}

func (u *UnitOfWork) maybeSnapshot(ctx context.Context, root Snapshotter, oldVersion, newVersion int64) {
	if u.cfg.Snapshots == nil || root == nil {
		return
	}
	if !u.cfg.Policy.ShouldSnapshot(oldVersion, newVersion) {
		return
	}
	payload, err := root.Snapshot()
	if err != nil {
		u.cfg.Logger.Warn("snapshot serialize failed", "stream_id", u.streamID, "err", err)
		return
	}
	err = u.cfg.Snapshots.Save(ctx, snapshot.Record{
		OwnerID:       u.streamID,
		StreamVersion: newVersion,
		StateName:     root.StateName(),
		Payload:       payload,
		CreatedAt:     u.cfg.Clock.Now(),
	})
	if err != nil {
		// Snapshots are a replay-cost optimization; losing one is not an
		// error for the command path.
		u.cfg.Logger.Warn("snapshot save failed", "stream_id", u.streamID, "err", err)
	}
}
