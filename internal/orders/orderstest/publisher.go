// Package orderstest holds test doubles for the orders ports.
package orderstest

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
)

type Published struct {
	Topic    string
	Envelope orders.Envelope
}

// RecordingPublisher keeps every envelope it is given.
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []Published
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, topic string, ev orders.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, Published{Topic: topic, Envelope: ev})
	return nil
}

// Types lists the event types recorded so far, in publish order.
func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		out = append(out, e.Envelope.EventType)
	}
	return out
}
