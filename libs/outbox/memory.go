package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/md-rashed-zaman/eventledger/libs/clockx"
)

// MemoryStore is a mutex-guarded Store for tests and local development. The
// clock is injectable so lease expiry and backoff schedules can be tested
// deterministically.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clockx.Clock
	nextID  int64
	records []*memoryRow
}

type memoryRow struct {
	rec          Record
	leaseExpires time.Time
}

func NewMemoryStore(clock clockx.Clock) *MemoryStore {
	if clock == nil {
		clock = clockx.System()
	}
	return &MemoryStore{clock: clock, nextID: 1}
}

func (s *MemoryStore) Enqueue(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if s.findByEventID(rec.EventID) != nil {
			continue
		}
		rec.ID = s.nextID
		s.nextID++
		rec.Status = StatusPending
		rec.NextAttempt = s.clock.Now()
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = s.clock.Now()
		}
		s.records = append(s.records, &memoryRow{rec: rec})
	}
	return nil
}

func (s *MemoryStore) Claim(ctx context.Context, claimID string, limit int, lease time.Duration) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var claimed []Record
	for _, row := range s.records {
		if len(claimed) >= limit {
			break
		}
		eligible := (row.rec.Status == StatusPending && !row.rec.NextAttempt.After(now)) ||
			(row.rec.Status == StatusClaimed && !row.leaseExpires.After(now))
		if !eligible {
			continue
		}
		row.rec.Status = StatusClaimed
		row.rec.ClaimID = claimID
		row.leaseExpires = now.Add(lease)
		claimed = append(claimed, row.rec)
	}
	return claimed, nil
}

func (s *MemoryStore) MarkPublished(ctx context.Context, claimID string, ids []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		row := s.findByID(id)
		if row == nil || row.rec.Status != StatusClaimed || row.rec.ClaimID != claimID {
			continue
		}
		row.rec.Status = StatusPublished
		row.rec.ClaimID = ""
		row.leaseExpires = time.Time{}
	}
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, claimID string, id int64, attempts int, nextAttempt time.Time, terminal bool, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.findByID(id)
	if row == nil || row.rec.Status != StatusClaimed || row.rec.ClaimID != claimID {
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

func (s *MemoryStore) ListTerminal(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, row := range s.records {
		if len(out) >= limit {
			break
		}
		if row.rec.Status == StatusFailed {
			out = append(out, row.rec)
		}
	}
	return out, nil
}

// Get returns a copy of the row with the given event id, for tests.
func (s *MemoryStore) Get(eventID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row := s.findByEventID(eventID); row != nil {
		return row.rec, true
	}
	return Record{}, false
}

func (s *MemoryStore) findByID(id int64) *memoryRow {
	for _, row := range s.records {
		if row.rec.ID == id {
			return row
		}
	}
	return nil
}

func (s *MemoryStore) findByEventID(eventID string) *memoryRow {
	for _, row := range s.records {
		if row.rec.EventID == eventID {
			return row
		}
	}
	return nil
}
