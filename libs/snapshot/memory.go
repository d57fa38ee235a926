package snapshot

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps snapshots per owner, retaining superseded ones like the
// Postgres store does. For tests and local development.
type MemoryStore struct {
	mu     sync.Mutex
	owners map[string][]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{owners: make(map[string][]Record)}
}

func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.OwnerID == "" {
		return ErrEmptyOwnerID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[rec.OwnerID] = append(s.owners[rec.OwnerID], rec)
	return nil
}

func (s *MemoryStore) LoadLatest(ctx context.Context, ownerID string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	if ownerID == "" {
		return Record{}, false, ErrEmptyOwnerID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.owners[ownerID]
	if len(history) == 0 {
		return Record{}, false, nil
	}
	return history[len(history)-1], true, nil
}

// History returns every snapshot ever saved for an owner, oldest first.
func (s *MemoryStore) History(ownerID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.owners[ownerID]))
	copy(out, s.owners[ownerID])
	return out
}
