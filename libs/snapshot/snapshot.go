// Package snapshot stores periodic materialized aggregate state so replays
// start from the latest snapshot instead of version zero. Snapshots are a
// performance aid only; rehydration is correct without them.
package snapshot

import (
	"context"
	"errors"
	"time"
)

var ErrEmptyOwnerID = errors.New("snapshot: empty owner id")

// Record is one point-in-time aggregate state. At most one record per owner
// is active; superseded records are retained for audit but never loaded.
type Record struct {
	OwnerID       string
	StreamVersion int64
	StateName     string
	Payload       []byte
	CreatedAt     time.Time
}

type Store interface {
	// Save installs rec as the owner's active snapshot, superseding any
	// previous one.
	Save(ctx context.Context, rec Record) error

	// LoadLatest returns the active snapshot for ownerID, if any.
	LoadLatest(ctx context.Context, ownerID string) (Record, bool, error)
}

// Policy decides when a commit should also write a snapshot.
type Policy struct {
	// EveryN triggers a snapshot whenever a commit crosses a multiple-of-N
	// version boundary. Zero disables snapshotting.
	EveryN int64
}

func (p Policy) ShouldSnapshot(oldVersion, newVersion int64) bool {
	if p.EveryN <= 0 {
		return false
	}
	// Versions are 0-based: event count = version + 1.
	return (newVersion+1)/p.EveryN > (oldVersion+1)/p.EveryN
}
