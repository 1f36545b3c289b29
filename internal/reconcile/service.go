// Package reconcile audits partially successful checkouts. For every
// CheckoutPartial event it checks that the orders the event reports exist as
// reported and records a CheckoutFlag for follow-up.
package reconcile

import (
	"context"
	"errors"
	"time"

	kafkax "github.com/ariefcatur/go-book-marketplace/internal/kafka"
	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Dedup remembers which events were already reconciled.
type Dedup interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

type Service struct {
	Store orders.Store
	Dedup Dedup // optional
	Now   func() time.Time
}

func New(store orders.Store, dedup Dedup) *Service {
	return &Service{Store: store, Dedup: dedup}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

// HandleMessage is the kafka.Handler for the checkout topic. Returning nil
// lets the consumer commit the offset.
func (s *Service) HandleMessage(ctx context.Context, m kafka.Message) error {
	if t := kafkax.EventType(m); t != "" && t != orders.EventCheckoutPartial {
		return nil
	}
	ev, err := kafkax.DecodeEnvelope(m)
	if err != nil {
		// poison message: log and move on
		log.Error().Err(err).Int64("offset", m.Offset).Msg("reconcile: bad envelope")
		return nil
	}
	if ev.EventType != orders.EventCheckoutPartial {
		return nil
	}
	_, _, err = s.Handle(ctx, ev)
	return err
}

// Handle reconciles one CheckoutPartial envelope. done is false when the event
// had been handled before.
func (s *Service) Handle(ctx context.Context, ev orders.Envelope) (flag orders.CheckoutFlag, done bool, err error) {
	if s.Dedup != nil {
		seen, err := s.Dedup.Seen(ctx, ev.EventID)
		if err != nil {
			return flag, false, err
		}
		if seen {
			log.Debug().Str("event_id", ev.EventID).Msg("reconcile: duplicate event")
			return flag, false, nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.CheckoutPayload](ev.Payload)
	if err != nil {
		log.Error().Err(err).Str("event_id", ev.EventID).Msg("reconcile: bad payload")
		return flag, false, nil
	}

	flag, err = s.Reconcile(ctx, p)
	if err != nil {
		return flag, false, err
	}
	if s.Dedup != nil {
		if err := s.Dedup.Mark(ctx, ev.EventID); err != nil {
			log.Warn().Err(err).Str("event_id", ev.EventID).Msg("reconcile: mark processed")
		}
	}
	return flag, true, nil
}

// Reconcile verifies the orders a checkout reported and stores the verdict.
// Saving the same checkout twice keeps the first flag.
func (s *Service) Reconcile(ctx context.Context, p orders.CheckoutPayload) (orders.CheckoutFlag, error) {
	if p.CheckoutID == "" {
		return orders.CheckoutFlag{}, orders.Validationf("checkout id is required")
	}
	lg := log.With().Str("checkout_id", p.CheckoutID).Str("buyer_id", p.BuyerID).Logger()

	flag := orders.CheckoutFlag{
		CheckoutID:      p.CheckoutID,
		BuyerID:         p.BuyerID,
		CreatedOrderIDs: []string{},
		FailedBookIDs:   []string{},
		Verdict:         orders.VerdictPartial,
		CreatedAt:       s.now(),
	}
	for _, line := range p.Succeeded {
		flag.CreatedOrderIDs = append(flag.CreatedOrderIDs, line.OrderID)
		o, err := s.Store.GetOrder(ctx, line.OrderID)
		switch {
		case errors.Is(err, orders.ErrNotFound):
			lg.Warn().Str("order_id", line.OrderID).Msg("reconcile: reported order is missing")
			flag.Verdict = orders.VerdictMissingOrder
		case err != nil:
			return orders.CheckoutFlag{}, err
		case o.CheckoutID != p.CheckoutID || o.BookID != line.BookID || o.Quantity != line.Quantity:
			lg.Warn().Str("order_id", line.OrderID).Msg("reconcile: reported order does not match")
			flag.Verdict = orders.VerdictMissingOrder
		}
	}
	for _, line := range p.Failed {
		flag.FailedBookIDs = append(flag.FailedBookIDs, line.BookID)
	}

	if err := s.Store.SaveCheckoutFlag(ctx, flag); err != nil {
		lg.Error().Err(err).Msg("reconcile: save flag")
		return orders.CheckoutFlag{}, err
	}
	lg.Info().Str("verdict", flag.Verdict).Int("orders", len(flag.CreatedOrderIDs)).Int("failed", len(flag.FailedBookIDs)).Msg("reconcile: checkout flagged")
	return flag, nil
}
