package db

import "context"

// Schema statements are idempotent so services can apply them on startup.
// Each statement runs separately because pgx's extended protocol rejects
// multi-statement strings.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS domain_events (
		global_position BIGSERIAL PRIMARY KEY,
		event_id UUID NOT NULL UNIQUE,
		stream_id TEXT NOT NULL,
		stream_version BIGINT NOT NULL,
		stream_name TEXT NOT NULL,
		event_name TEXT NOT NULL,
		payload BYTEA NOT NULL,
		causation_id TEXT NOT NULL DEFAULT '',
		correlation_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (stream_id, stream_version)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id BIGSERIAL PRIMARY KEY,
		owner_id TEXT NOT NULL,
		stream_version BIGINT NOT NULL,
		state_name TEXT NOT NULL,
		payload BYTEA NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS snapshots_active_owner
		ON snapshots (owner_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id BIGSERIAL PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		stream_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload BYTEA NOT NULL,
		traceparent TEXT NOT NULL DEFAULT '',
		tracestate TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		claim_id TEXT,
		lease_expires_at TIMESTAMPTZ,
		attempts INT NOT NULL DEFAULT 0,
		next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_events_poll
		ON outbox_events (status, next_attempt_at)`,
	`CREATE TABLE IF NOT EXISTS inbox_events (
		event_id TEXT NOT NULL,
		consumer TEXT NOT NULL,
		event_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'inflight',
		claim_id TEXT,
		lease_expires_at TIMESTAMPTZ,
		attempts INT NOT NULL DEFAULT 0,
		next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (event_id, consumer)
	)`,
	`CREATE INDEX IF NOT EXISTS inbox_events_poll
		ON inbox_events (status, next_attempt_at)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the ledger schema. Safe to call on every startup.
func Migrate(ctx context.Context, pool *Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
