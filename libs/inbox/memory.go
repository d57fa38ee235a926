package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/md-rashed-zaman/eventledger/libs/clockx"
)

// MemoryStore is a mutex-guarded Store for tests and local development.
type MemoryStore struct {
	mu    sync.Mutex
	clock clockx.Clock
	rows  map[string]*memoryRow
}

type memoryRow struct {
	rec          Record
	leaseExpires time.Time
}

func NewMemoryStore(clock clockx.Clock) *MemoryStore {
	if clock == nil {
		clock = clockx.System()
	}
	return &MemoryStore{clock: clock, rows: make(map[string]*memoryRow)}
}

func key(eventID, consumer string) string {
	return eventID + "\x00" + consumer
}

func (s *MemoryStore) TryReserve(ctx context.Context, eventID, consumer, eventType, claimID string, lease time.Duration) (Outcome, int, error) {
	if err := ctx.Err(); err != nil {
		return AlreadyInFlight, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	row, ok := s.rows[key(eventID, consumer)]
	if !ok {
		s.rows[key(eventID, consumer)] = &memoryRow{
			rec: Record{
				EventID:   eventID,
				Consumer:  consumer,
				EventType: eventType,
				Status:    StatusInFlight,
				ClaimID:   claimID,
				CreatedAt: now,
			},
			leaseExpires: now.Add(lease),
		}
		return Reserved, 0, nil
	}

	switch row.rec.Status {
	case StatusProcessed, StatusFailed:
		return AlreadyProcessed, row.rec.Attempts, nil
	case StatusInFlight:
		if row.leaseExpires.After(now) {
			return AlreadyInFlight, row.rec.Attempts, nil
		}
	case StatusPending:
		if row.rec.NextAttempt.After(now) {
			return AlreadyInFlight, row.rec.Attempts, nil
		}
	}

	row.rec.Status = StatusInFlight
	row.rec.ClaimID = claimID
	row.leaseExpires = now.Add(lease)
	return Reserved, row.rec.Attempts, nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, eventID, consumer, claimID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key(eventID, consumer)]
	if !ok || row.rec.Status != StatusInFlight || row.rec.ClaimID != claimID {
		return nil
	}
	row.rec.Status = StatusProcessed
	row.rec.ClaimID = ""
	row.leaseExpires = time.Time{}
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, eventID, consumer, claimID string, attempts int, nextAttempt time.Time, terminal bool, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key(eventID, consumer)]
	if !ok || row.rec.Status != StatusInFlight || row.rec.ClaimID != claimID {
		return nil
	}
	row.rec.Status = StatusPending
	if terminal {
		row.rec.Status = StatusFailed
	}
	row.rec.ClaimID = ""
	row.leaseExpires = time.Time{}
	row.rec.Attempts = attempts
	row.rec.NextAttempt = nextAttempt
	row.rec.LastError = lastError
	return nil
}

// Get returns a copy of the ledger row, for tests.
func (s *MemoryStore) Get(eventID, consumer string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key(eventID, consumer)]
	if !ok {
		return Record{}, false
	}
	return row.rec, true
}
