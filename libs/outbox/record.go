// Package outbox is the durable queue of integration events derived from
// committed domain events, polled and published with retry and backoff.
// Workers coordinate purely through conditional row updates; a claim is a
// time-bounded lease preventing two workers from publishing the same row.
package outbox

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

type Record struct {
	ID          int64
	EventID     string
	StreamID    string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
	Status      Status
	ClaimID     string
	Attempts    int
	NextAttempt time.Time
	LastError   string
	CreatedAt   time.Time
}

// Store is the outbox ledger. A row is eligible for Claim when it is pending
// and due, or claimed with an expired lease (an abandoned claim from a
// crashed worker).
type Store interface {
	// Enqueue inserts records as pending, preserving their relative order.
	Enqueue(ctx context.Context, records []Record) error

	// Claim atomically reserves up to limit eligible rows for claimID with
	// the given lease. No row can be claimed by two workers at once.
	Claim(ctx context.Context, claimID string, limit int, lease time.Duration) ([]Record, error)

	// MarkPublished resolves claimed rows. Only the claim holder may call it.
	MarkPublished(ctx context.Context, claimID string, ids []int64) error

	// MarkFailed records a publish failure for a claimed row: terminal rows
	// go to failed and stay there for operator attention; others return to
	// pending with the next attempt time.
	MarkFailed(ctx context.Context, claimID string, id int64, attempts int, nextAttempt time.Time, terminal bool, lastError string) error

	// ListTerminal returns failed rows for operational inspection.
	ListTerminal(ctx context.Context, limit int) ([]Record, error)
}
