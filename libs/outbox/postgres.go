package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/eventledger/libs/db"
)

type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Enqueue(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO outbox_events (event_id, stream_id, event_type, payload, traceparent, tracestate)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (event_id) DO NOTHING
		`, rec.EventID, rec.StreamID, rec.EventType, rec.Payload, rec.Traceparent, rec.Tracestate)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Claim(ctx context.Context, claimID string, limit int, lease time.Duration) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE outbox_events
		SET status = 'claimed', claim_id = $1, lease_expires_at = now() + make_interval(secs => $2), updated_at = now()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE (status = 'pending' AND next_attempt_at <= now())
			   OR (status = 'claimed' AND lease_expires_at <= now())
			ORDER BY id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_id, stream_id, event_type, payload, traceparent, tracestate, attempts, created_at
	`, claimID, lease.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec := Record{Status: StatusClaimed, ClaimID: claimID}
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.StreamID, &rec.EventType, &rec.Payload, &rec.Traceparent, &rec.Tracestate, &rec.Attempts, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, claimID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'published', claim_id = NULL, lease_expires_at = NULL, updated_at = now()
		WHERE id = ANY($1) AND claim_id = $2 AND status = 'claimed'
	`, ids, claimID)
	return err
}

func (s *PostgresStore) MarkFailed(ctx context.Context, claimID string, id int64, attempts int, nextAttempt time.Time, terminal bool, lastError string) error {
	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = $3, claim_id = NULL, lease_expires_at = NULL,
		    attempts = $4, next_attempt_at = $5, last_error = $6, updated_at = now()
		WHERE id = $1 AND claim_id = $2 AND status = 'claimed'
	`, id, claimID, status, attempts, nextAttempt, lastError)
	return err
}

func (s *PostgresStore) ListTerminal(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, stream_id, event_type, payload, attempts, last_error, created_at
		FROM outbox_events
		WHERE status = 'failed'
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec := Record{Status: StatusFailed}
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.StreamID, &rec.EventType, &rec.Payload, &rec.Attempts, &rec.LastError, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}
