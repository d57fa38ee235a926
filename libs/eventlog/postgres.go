package eventlog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/eventledger/libs/db"
)

// PostgresStore persists events in the domain_events table. The unique
// constraint on (stream_id, stream_version) enforces optimistic concurrency
// even when two writers pass the version pre-check concurrently.
type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, streamID string, expectedVersion int64, records []Record) (int64, error) {
	if streamID == "" {
		return 0, ErrEmptyStreamID
	}
	if len(records) == 0 {
		return 0, ErrNoEvents
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(stream_version), -1)
		FROM domain_events
		WHERE stream_id = $1
	`, streamID).Scan(&current)
	if err != nil {
		return 0, err
	}
	if current != expectedVersion {
		return 0, ErrConcurrencyConflict
	}

	batch := &pgx.Batch{}
	for i := range records {
		rec := &records[i]
		rec.StreamID = streamID
		rec.StreamVersion = expectedVersion + 1 + int64(i)
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		batch.Queue(`
			INSERT INTO domain_events (event_id, stream_id, stream_version, stream_name, event_name, payload, causation_id, correlation_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, rec.EventID, rec.StreamID, rec.StreamVersion, rec.StreamName, rec.EventName, rec.Payload, rec.CausationID, rec.CorrelationID, rec.CreatedAt)
	}
	br := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if isUniqueViolation(err) {
				return 0, ErrConcurrencyConflict
			}
			return 0, err
		}
	}
	if err := br.Close(); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return records[len(records)-1].StreamVersion, nil
}

func (s *PostgresStore) ReadStream(ctx context.Context, streamID string, fromVersion int64, maxCount int) ([]Record, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}
	if maxCount <= 0 {
		maxCount = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, stream_id, stream_version, stream_name, event_name, payload, causation_id, correlation_id, created_at
		FROM domain_events
		WHERE stream_id = $1 AND stream_version > $2
		ORDER BY stream_version
		LIMIT $3
	`, streamID, fromVersion, maxCount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.EventID, &rec.StreamID, &rec.StreamVersion, &rec.StreamName, &rec.EventName, &rec.Payload, &rec.CausationID, &rec.CorrelationID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ArchiveStream marks every record in a stream as archived. Events are never
// physically deleted; this is the only mutation the log permits.
func (s *PostgresStore) ArchiveStream(ctx context.Context, streamID string) error {
	if streamID == "" {
		return ErrEmptyStreamID
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE domain_events
		SET status = 'archived'
		WHERE stream_id = $1
	`, streamID)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
