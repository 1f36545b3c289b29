package kafka

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

type enqueuer interface {
	Enqueue(ctx context.Context, m kafka.Message) error
}

// EnvelopePublisher puts order and checkout events on Kafka, keyed by
// correlation id so one order's events stay in one partition.
type EnvelopePublisher struct {
	out enqueuer
}

var _ orders.Publisher = (*EnvelopePublisher)(nil)

func NewEnvelopePublisher(p *Producer) *EnvelopePublisher { return &EnvelopePublisher{out: p} }

func (p *EnvelopePublisher) Publish(ctx context.Context, topic string, ev orders.Envelope) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	key := ev.CorrelationID
	if key == "" {
		key = ev.EventID
	}
	return p.out.Enqueue(ctx, kafka.Message{
		Topic: topic,
		Key:   orders.PartitionKey(key),
		Value: b,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(ev.EventType)},
			{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(ev.EventVersion))},
		},
	})
}
