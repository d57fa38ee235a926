package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/eventledger/libs/clockx"
	"github.com/md-rashed-zaman/eventledger/libs/kafkax"
	"github.com/md-rashed-zaman/eventledger/libs/retry"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Consumer reads a Kafka topic, reserves each event in the inbox ledger and
// runs the handler only on a Reserved outcome. Handler failures follow the
// same retry policy as the outbox dispatcher; retry.Terminal errors park the
// row for operator attention.
type Consumer struct {
	reader   *kafka.Reader
	store    Store
	cache    *Cache
	logger   *slog.Logger
	clock    clockx.Clock
	handler  Handler
	consumer string
	claimID  string
	lease    time.Duration
	backoff  retry.Backoff
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	Lease   time.Duration
	Backoff retry.Backoff
	Clock   clockx.Clock
	Cache   *Cache
}

func NewConsumer(logger *slog.Logger, store Store, cfg Config, handler Handler) *Consumer {
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = retry.DefaultBackoff()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockx.System()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:   reader,
		store:    store,
		cache:    cfg.Cache,
		logger:   logger,
		clock:    cfg.Clock,
		handler:  handler,
		consumer: cfg.GroupID,
		claimID:  uuid.NewString(),
		lease:    cfg.Lease,
		backoff:  cfg.Backoff,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("inbox").Start(ctxMsg, "inbox.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)
		if err := c.Process(ctxSpan, msg); err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

// Process runs the dedup-then-handle sequence for one message.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		// A message with neither an event_id header nor a key still needs a
		// distinct dedup identity, or every such message would collide on
		// the same ledger row. Topic/partition/offset is stable across
		// redeliveries of the same message.
		meta.EventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
		c.logger.Warn("message missing event id, using offset identity",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	}

	if c.cache != nil {
		seen, err := c.cache.Seen(ctx, c.consumer, meta.EventID)
		if err != nil {
			c.logger.Warn("inbox cache error", "err", err)
		} else if seen {
			c.logger.Info("duplicate event ignored (cache)", "event_id", meta.EventID)
			return nil
		}
	}

	outcome, attempts, err := c.store.TryReserve(ctx, meta.EventID, c.consumer, meta.EventType, c.claimID, c.lease)
	if err != nil {
		c.logger.Error("inbox reserve failed", "event_id", meta.EventID, "err", err)
		return err
	}
	switch outcome {
	case AlreadyProcessed:
		c.markCache(ctx, meta.EventID)
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	case AlreadyInFlight:
		c.logger.Info("event already in flight", "event_id", meta.EventID)
		return nil
	}

	if err := c.handler(ctx, msg); err != nil {
		c.recordFailure(ctx, meta.EventID, attempts, err)
		return err
	}

	if err := c.store.MarkProcessed(ctx, meta.EventID, c.consumer, c.claimID); err != nil {
		c.logger.Error("inbox mark processed failed", "event_id", meta.EventID, "err", err)
		return err
	}
	c.markCache(ctx, meta.EventID)
	return nil
}

func (c *Consumer) markCache(ctx context.Context, eventID string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.MarkProcessed(ctx, c.consumer, eventID); err != nil {
		c.logger.Warn("inbox cache write failed", "event_id", eventID, "err", err)
	}
}

func (c *Consumer) recordFailure(ctx context.Context, eventID string, priorAttempts int, handlerErr error) {
	attempts := priorAttempts + 1
	terminal := retry.IsTerminal(handlerErr) || c.backoff.Exhausted(attempts)
	next := c.clock.Now().Add(c.backoff.Next(attempts))
	if err := c.store.MarkFailed(ctx, eventID, c.consumer, c.claimID, attempts, next, terminal, handlerErr.Error()); err != nil {
		c.logger.Error("inbox mark failed", "event_id", eventID, "err", err)
		return
	}
	if terminal {
		c.logger.Error("inbox handling terminal", "event_id", eventID, "attempts", attempts, "err", handlerErr)
		return
	}
	c.logger.Warn("inbox handling retry scheduled", "event_id", eventID, "attempts", attempts, "err", handlerErr)
}
