package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/eventledger/libs/clockx"
	"github.com/md-rashed-zaman/eventledger/libs/retry"
)

// Publisher is the downstream sink. Failures wrapped with retry.Terminal are
// not retried; everything else is treated as transient.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

type Dispatcher struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	clock     clockx.Clock
	claimID   string
	interval  time.Duration
	batchSize int
	lease     time.Duration
	backoff   retry.Backoff
}

type DispatcherConfig struct {
	Interval  time.Duration
	BatchSize int
	Lease     time.Duration
	Backoff   retry.Backoff
	Clock     clockx.Clock
}

func NewDispatcher(store Store, publisher Publisher, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = retry.DefaultBackoff()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockx.System()
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		logger:    logger,
		clock:     cfg.Clock,
		claimID:   uuid.NewString(),
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		lease:     cfg.Lease,
		backoff:   cfg.Backoff,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.DispatchBatch(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("outbox dispatch failed", "err", err)
			}
		}
	}
}

// DispatchBatch claims one batch and publishes it. On cancellation mid-batch
// the remaining rows stay claimed; lease expiry returns them to circulation.
// A row is never marked published unless the publish call confirmed.
func (d *Dispatcher) DispatchBatch(ctx context.Context) error {
	records, err := d.store.Claim(ctx, d.claimID, d.batchSize, d.lease)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	var published []int64
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if err := d.publisher.Publish(ctx, rec); err != nil {
			if ctx.Err() != nil {
				// Ambiguous: the publish may or may not have landed. Leave
				// the row claimed and let the lease recover it.
				break
			}
			d.recordFailure(ctx, rec, err)
			continue
		}
		published = append(published, rec.ID)
	}

	if err := d.store.MarkPublished(ctx, d.claimID, published); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Dispatcher) recordFailure(ctx context.Context, rec Record, pubErr error) {
	attempts := rec.Attempts + 1
	terminal := retry.IsTerminal(pubErr) || d.backoff.Exhausted(attempts)
	next := d.clock.Now().Add(d.backoff.Next(attempts))
	if err := d.store.MarkFailed(ctx, d.claimID, rec.ID, attempts, next, terminal, pubErr.Error()); err != nil {
		d.logger.Error("outbox mark failed", "event_id", rec.EventID, "err", err)
		return
	}
	if terminal {
		d.logger.Error("outbox delivery terminal",
			"event_id", rec.EventID,
			"event_type", rec.EventType,
			"attempts", attempts,
			"err", pubErr,
		)
		return
	}
	d.logger.Warn("outbox delivery retry scheduled",
		"event_id", rec.EventID,
		"attempts", attempts,
		"next_attempt_at", next.Format(time.RFC3339),
		"err", pubErr,
	)
}
