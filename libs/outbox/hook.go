package outbox

import (
	"context"

	"github.com/md-rashed-zaman/eventledger/libs/eventlog"
	otelx "github.com/md-rashed-zaman/eventledger/libs/otel"
	"github.com/md-rashed-zaman/eventledger/libs/pending"
)

// NewCommitHook converts committed domain events into pending outbox rows.
// Register it on the unit of work; it runs only after the event log write is
// durable. The current trace context is captured onto each row so the
// dispatcher can resume the trace at publish time.
func NewCommitHook(store Store) pending.CommitHook {
	return func(ctx context.Context, records []eventlog.Record) error {
		traceparent, tracestate := otelx.TraceContextStrings(ctx)
		out := make([]Record, len(records))
		for i, rec := range records {
			out[i] = Record{
				EventID:     rec.EventID.String(),
				StreamID:    rec.StreamID,
				EventType:   rec.EventName,
				Payload:     rec.Payload,
				Traceparent: traceparent,
				Tracestate:  tracestate,
				CreatedAt:   rec.CreatedAt,
			}
		}
		return store.Enqueue(ctx, out)
	}
}
