package eventlog

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a map-backed Store for tests and local development. Each
// instance is independent; nothing is shared process-wide.
type MemoryStore struct {
	mu       sync.Mutex
	streams  map[string][]Record
	archived map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams:  make(map[string][]Record),
		archived: make(map[string]bool),
	}
}

func (s *MemoryStore) Append(ctx context.Context, streamID string, expectedVersion int64, records []Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if streamID == "" {
		return 0, ErrEmptyStreamID
	}
	if len(records) == 0 {
		return 0, ErrNoEvents
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[streamID]
	current := int64(len(stream)) - 1
	if current != expectedVersion {
		return 0, ErrConcurrencyConflict
	}

	for i := range records {
		rec := &records[i]
		rec.StreamID = streamID
		rec.StreamVersion = expectedVersion + 1 + int64(i)
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
	}
	// Install all records under one lock hold so the batch is atomic.
	s.streams[streamID] = append(stream, records...)
	return records[len(records)-1].StreamVersion, nil
}

func (s *MemoryStore) ReadStream(ctx context.Context, streamID string, fromVersion int64, maxCount int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}
	if maxCount <= 0 {
		maxCount = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[streamID]
	start := fromVersion + 1
	if start < 0 {
		start = 0
	}
	if start >= int64(len(stream)) {
		return nil, nil
	}
	end := start + int64(maxCount)
	if end > int64(len(stream)) {
		end = int64(len(stream))
	}
	out := make([]Record, end-start)
	copy(out, stream[start:end])
	return out, nil
}

func (s *MemoryStore) ArchiveStream(ctx context.Context, streamID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if streamID == "" {
		return ErrEmptyStreamID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived[streamID] = true
	return nil
}

// Archived reports whether a stream has been archived. Test helper.
func (s *MemoryStore) Archived(streamID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archived[streamID]
}
