// Package eventlog is the append-only per-stream event log with optimistic
// concurrency. The unique (stream_id, stream_version) constraint is the sole
// mechanism preventing lost updates; no advisory locks are used.
package eventlog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ExpectedNoStream is the expected-version sentinel for "stream must not
// exist yet". Stream versions are 0-based, so the version before the first
// event is -1.
const ExpectedNoStream int64 = -1

var (
	// ErrConcurrencyConflict indicates the stream head moved past the
	// expected version. The caller must reload and retry the command.
	ErrConcurrencyConflict = errors.New("eventlog: concurrency conflict")

	// ErrNoEvents indicates an attempt to append an empty batch.
	ErrNoEvents = errors.New("eventlog: no events to append")

	// ErrEmptyStreamID indicates a missing stream id.
	ErrEmptyStreamID = errors.New("eventlog: empty stream id")
)

// Record is one persisted domain event. Immutable once written; streams are
// never physically deleted, only marked via stream status.
type Record struct {
	EventID       uuid.UUID
	StreamID      string
	StreamVersion int64
	StreamName    string
	EventName     string
	Payload       []byte
	CausationID   string
	CorrelationID string
	CreatedAt     time.Time
}

// Store is the event log contract. Implementations must make Append atomic:
// all records in one call land with contiguous versions or none do.
type Store interface {
	// Append writes records to streamID iff its current head version equals
	// expectedVersion (ExpectedNoStream for a new stream). On success the
	// records' StreamID and StreamVersion fields are filled in and the new
	// head version is returned. Returns ErrConcurrencyConflict on a version
	// race; the log is left untouched.
	Append(ctx context.Context, streamID string, expectedVersion int64, records []Record) (int64, error)

	// ReadStream returns up to maxCount records with StreamVersion strictly
	// greater than fromVersion, ordered by version. Pass ExpectedNoStream to
	// read from the start; pass the last seen version to resume.
	ReadStream(ctx context.Context, streamID string, fromVersion int64, maxCount int) ([]Record, error)

	// ArchiveStream marks a stream archived. Purely a status flip for
	// operators: records stay readable and nothing is physically deleted.
	ArchiveStream(ctx context.Context, streamID string) error
}
