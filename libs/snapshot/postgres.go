package snapshot

import (
	"context"
	"errors"
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

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	if rec.OwnerID == "" {
		return ErrEmptyOwnerID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Supersede-then-insert keeps the partial unique index on active rows
	// satisfied. Prior snapshots stay on disk for audit.
	_, err = tx.Exec(ctx, `
		UPDATE snapshots
		SET status = 'superseded'
		WHERE owner_id = $1 AND status = 'active'
	`, rec.OwnerID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO snapshots (owner_id, stream_version, state_name, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.OwnerID, rec.StreamVersion, rec.StateName, rec.Payload, rec.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) LoadLatest(ctx context.Context, ownerID string) (Record, bool, error) {
	if ownerID == "" {
		return Record{}, false, ErrEmptyOwnerID
	}
	var rec Record
	err := s.pool.QueryRow(ctx, `
		SELECT owner_id, stream_version, state_name, payload, created_at
		FROM snapshots
		WHERE owner_id = $1 AND status = 'active'
	`, ownerID).Scan(&rec.OwnerID, &rec.StreamVersion, &rec.StateName, &rec.Payload, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}
