package kafkax

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Envelope is the metadata every published domain event carries as headers.
type Envelope struct {
	EventID     string
	EventType   string
	AggregateID string
	OccurredAt  time.Time
}

// NewMessage builds a message keyed by aggregate id so events for the same
// aggregate keep their order within a partition. The topic equals the
// event type.
func NewMessage(ctx context.Context, env Envelope, payload []byte) kafka.Message {
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(env.EventID)},
		{Key: "event_type", Value: []byte(env.EventType)},
	}
	if !env.OccurredAt.IsZero() {
		headers = append(headers, kafka.Header{Key: "occurred_at", Value: []byte(env.OccurredAt.UTC().Format(time.RFC3339Nano))})
	}
	return kafka.Message{
		Topic:   env.EventType,
		Key:     []byte(env.AggregateID),
		Value:   payload,
		Headers: InjectTraceHeaders(ctx, headers),
	}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewWriter returns a writer that routes by message topic.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
	}
}
