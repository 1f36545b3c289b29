package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (c *captured) Enqueue(_ context.Context, m kafka.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return nil
}

func TestEnvelopePublisher(t *testing.T) {
	out := &captured{}
	pub := &EnvelopePublisher{out: out}

	ev, err := orders.NewEnvelope(orders.EventCheckoutPartial, "order-api", "chk-1", orders.CheckoutPayload{CheckoutID: "chk-1", BuyerID: "b"})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), orders.TopicCheckoutEvents, ev))

	require.Len(t, out.msgs, 1)
	m := out.msgs[0]
	assert.Equal(t, orders.TopicCheckoutEvents, m.Topic)
	assert.Equal(t, []byte("chk-1"), m.Key)
	assert.Equal(t, orders.EventCheckoutPartial, EventType(m))

	back, err := DecodeEnvelope(m)
	require.NoError(t, err)
	assert.Equal(t, ev.EventID, back.EventID)
	p, err := UnwrapPayload[orders.CheckoutPayload](back.Payload)
	require.NoError(t, err)
	assert.Equal(t, "chk-1", p.CheckoutID)
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodeEnvelope(kafka.Message{Value: []byte("{")})
	assert.Error(t, err)

	_, err = UnwrapPayload[orders.CheckoutPayload]([]byte(`"nope"`))
	assert.ErrorContains(t, err, "decode payload")

	assert.Empty(t, EventType(kafka.Message{}))
}

func TestProducerRejectsAfterClose(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, 1)
	p.Close()
	p.Close()
	assert.ErrorIs(t, p.Enqueue(context.Background(), kafka.Message{Topic: "t"}), ErrProducerClosed)
}

func TestEnqueueNeverBlocks(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, 1)
	require.NoError(t, p.Enqueue(context.Background(), kafka.Message{Topic: "t"}))

	start := time.Now()
	assert.ErrorIs(t, p.Enqueue(context.Background(), kafka.Message{Topic: "t"}), ErrProducerFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Enqueue(ctx, kafka.Message{Topic: "t"}), context.Canceled)
}

func TestProducerWriterIsAsync(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, 1)
	assert.True(t, p.w.Async)
	assert.NotNil(t, p.w.Completion)
	assert.LessOrEqual(t, p.w.BatchTimeout, 10*time.Millisecond)
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumerRetriesFailedMessageBeforeCommitting(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{
		{Topic: "t", Partition: 0, Offset: 10},
		{Topic: "t", Partition: 0, Offset: 11},
	}}
	c := newConsumer(r, 4)
	c.Backoff, c.MaxBackoff = time.Millisecond, 5*time.Millisecond

	var mu sync.Mutex
	attempts := map[int64]int{}
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[m.Offset]++
		if m.Offset == 10 && attempts[10] < 3 {
			return errors.New("db blip")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	assert.Eventually(t, func() bool { return len(r.commits()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{10, 11}, r.commits(), "offsets commit in order")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts[10])
	assert.Equal(t, 1, attempts[11])
}

func TestConsumerStopsRetryingWhenCancelled(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{{Topic: "t", Offset: 1}}}
	c := newConsumer(r, 1)
	c.Backoff, c.MaxBackoff = time.Millisecond, time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 100)
	h := func(context.Context, kafka.Message) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return errors.New("down")
	}
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	<-calls
	<-calls
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, r.commits())
}
