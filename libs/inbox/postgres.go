package inbox

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/eventledger/libs/db"
)

type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) TryReserve(ctx context.Context, eventID, consumer, eventType, claimID string, lease time.Duration) (Outcome, int, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, consumer, event_type, status, claim_id, lease_expires_at)
		VALUES ($1, $2, $3, 'inflight', $4, now() + make_interval(secs => $5))
		ON CONFLICT (event_id, consumer) DO NOTHING
	`, eventID, consumer, eventType, claimID, lease.Seconds())
	if err != nil {
		return AlreadyInFlight, 0, err
	}
	if tag.RowsAffected() == 1 {
		return Reserved, 0, nil
	}

	var status Status
	var attempts int
	err = s.pool.QueryRow(ctx, `
		SELECT status, attempts
		FROM inbox_events
		WHERE event_id = $1 AND consumer = $2
	`, eventID, consumer).Scan(&status, &attempts)
	if err != nil {
		return AlreadyInFlight, 0, err
	}

	switch status {
	case StatusProcessed, StatusFailed:
		// Terminal rows are excluded from automatic retry; operators decide.
		return AlreadyProcessed, attempts, nil
	case StatusInFlight:
		// Take over only if the holder's lease lapsed.
		return s.reserveConditional(ctx, eventID, consumer, claimID, lease, attempts, `
			UPDATE inbox_events
			SET claim_id = $3, lease_expires_at = now() + make_interval(secs => $4), updated_at = now()
			WHERE event_id = $1 AND consumer = $2 AND status = 'inflight' AND lease_expires_at <= now()
		`)
	case StatusPending:
		// A scheduled retry may run once it is due.
		return s.reserveConditional(ctx, eventID, consumer, claimID, lease, attempts, `
			UPDATE inbox_events
			SET status = 'inflight', claim_id = $3, lease_expires_at = now() + make_interval(secs => $4), updated_at = now()
			WHERE event_id = $1 AND consumer = $2 AND status = 'pending' AND next_attempt_at <= now()
		`)
	default:
		return AlreadyInFlight, attempts, nil
	}
}

func (s *PostgresStore) reserveConditional(ctx context.Context, eventID, consumer, claimID string, lease time.Duration, attempts int, query string) (Outcome, int, error) {
	tag, err := s.pool.Exec(ctx, query, eventID, consumer, claimID, lease.Seconds())
	if err != nil {
		return AlreadyInFlight, attempts, err
	}
	if tag.RowsAffected() == 1 {
		return Reserved, attempts, nil
	}
	return AlreadyInFlight, attempts, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, eventID, consumer, claimID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE inbox_events
		SET status = 'processed', claim_id = NULL, lease_expires_at = NULL, updated_at = now()
		WHERE event_id = $1 AND consumer = $2 AND claim_id = $3 AND status = 'inflight'
	`, eventID, consumer, claimID)
	return err
}

func (s *PostgresStore) MarkFailed(ctx context.Context, eventID, consumer, claimID string, attempts int, nextAttempt time.Time, terminal bool, lastError string) error {
	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE inbox_events
		SET status = $4, claim_id = NULL, lease_expires_at = NULL,
		    attempts = $5, next_attempt_at = $6, last_error = $7, updated_at = now()
		WHERE event_id = $1 AND consumer = $2 AND claim_id = $3 AND status = 'inflight'
	`, eventID, consumer, claimID, status, attempts, nextAttempt, lastError)
	return err
}
