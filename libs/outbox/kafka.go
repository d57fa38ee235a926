package outbox

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/eventledger/libs/kafkax"
	otelx "github.com/md-rashed-zaman/eventledger/libs/otel"
)

// KafkaPublisher writes outbox records to Kafka, one topic per event type,
// keyed by stream id so per-stream order is preserved within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Balancer: &kafka.Hash{},
		}),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, rec Record) error {
	msgCtx := otelx.ContextWithTraceContext(ctx, rec.Traceparent, rec.Tracestate)
	msg := kafka.Message{
		Topic: rec.EventType,
		Key:   []byte(rec.StreamID),
		Value: rec.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(rec.EventID)},
			{Key: "event_type", Value: []byte(rec.EventType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
	// Broker errors are transient from the dispatcher's point of view; the
	// retry budget decides when to give up.
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
