// Package inbox is the consumer-side dedup ledger keyed by (event id,
// consumer). It converts at-least-once delivery into effectively-once
// handling: only a Reserved outcome permits the handler to run.
package inbox

import (
	"context"
	"time"
)

type Status string

const (
	StatusInFlight  Status = "inflight"
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

type Outcome int

const (
	// Reserved means this worker holds the claim and must run the handler.
	Reserved Outcome = iota
	// AlreadyProcessed means the event was handled before (or is terminally
	// failed and excluded from automatic retry).
	AlreadyProcessed
	// AlreadyInFlight means another worker holds a live claim, or a retry is
	// scheduled but not yet due.
	AlreadyInFlight
)

func (o Outcome) String() string {
	switch o {
	case Reserved:
		return "reserved"
	case AlreadyProcessed:
		return "already_processed"
	case AlreadyInFlight:
		return "already_in_flight"
	default:
		return "unknown"
	}
}

type Record struct {
	EventID     string
	Consumer    string
	EventType   string
	Status      Status
	ClaimID     string
	Attempts    int
	NextAttempt time.Time
	LastError   string
	CreatedAt   time.Time
}

type Store interface {
	// TryReserve attempts to claim (eventID, consumer) for handling. The
	// returned int is the prior attempt count, valid when Reserved. A lapsed
	// in-flight lease or a due retry can be re-reserved; a live one cannot.
	TryReserve(ctx context.Context, eventID, consumer, eventType, claimID string, lease time.Duration) (Outcome, int, error)

	// MarkProcessed resolves a reservation held by claimID.
	MarkProcessed(ctx context.Context, eventID, consumer, claimID string) error

	// MarkFailed records a handler failure for a reservation held by
	// claimID, scheduling a retry or parking the row as terminal.
	MarkFailed(ctx context.Context, eventID, consumer, claimID string, attempts int, nextAttempt time.Time, terminal bool, lastError string) error
}
