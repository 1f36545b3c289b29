// Package lifecycle is the order state machine. Every transition runs as one
// transaction: lock the order row, check the edge and the actor, apply the
// edge's stock effect, persist the new status and notify the counterparty.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-book-marketplace/internal/inventory"
	"github.com/ariefcatur/go-book-marketplace/internal/metrics"
	"github.com/ariefcatur/go-book-marketplace/internal/notify"
	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/rs/zerolog/log"
)

type Machine struct {
	Store     orders.Store
	Publisher orders.Publisher
	Metrics   *metrics.Metrics
	Service   string
	Now       func() time.Time
}

func New(store orders.Store, pub orders.Publisher) *Machine {
	if pub == nil {
		pub = orders.NopPublisher{}
	}
	return &Machine{Store: store, Publisher: pub, Service: "order-api"}
}

type Request struct {
	OrderID string
	ActorID string
	To      orders.Status
	// From, when set, is the status the caller believes the order is in.
	From orders.Status
}

type Result struct {
	Order        orders.Order        `json:"order"`
	From         orders.Status       `json:"from"`
	Actor        orders.Actor        `json:"actor"`
	Notification orders.Notification `json:"notification"`
	Released     int                 `json:"released,omitempty"`
}

// ActorOf resolves the role userID plays on o.
func ActorOf(o orders.Order, userID string) (orders.Actor, bool) {
	switch userID {
	case "":
		return "", false
	case o.SellerID:
		return orders.ActorSeller, true
	case o.BuyerID:
		return orders.ActorBuyer, true
	}
	return "", false
}

func (m *Machine) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now()
}

func (m *Machine) Transition(ctx context.Context, req Request) (Result, error) {
	if !req.To.Valid() {
		return Result{}, orders.Validationf("unknown status %q", req.To)
	}
	if req.From != "" && !req.From.Valid() {
		return Result{}, orders.Validationf("unknown status %q", req.From)
	}

	var res Result
	err := m.Store.WithTx(ctx, func(tx orders.Tx) error {
		o, err := tx.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		actor, ok := ActorOf(o, req.ActorID)
		if !ok {
			return fmt.Errorf("%w: user %s is not a party to order %s", orders.ErrAuthorization, req.ActorID, o.ID)
		}
		if req.From != "" && req.From != o.Status {
			return &orders.InvalidTransitionError{OrderID: o.ID, Current: o.Status, Target: req.To}
		}
		edge, ok := orders.Lookup(o.Status, req.To)
		if !ok {
			return &orders.InvalidTransitionError{OrderID: o.ID, Current: o.Status, Target: req.To}
		}
		if !edge.Allows(actor) {
			return fmt.Errorf("%w: %s may not move order to %s", orders.ErrAuthorization, actor, req.To)
		}

		if edge.ReleasesStock {
			err := inventory.ReleaseTx(ctx, tx, o.BookID, o.Quantity)
			switch {
			case err == nil:
				res.Released = o.Quantity
			case errors.Is(err, orders.ErrNotFound):
				log.Warn().Str("order_id", o.ID).Str("book_id", o.BookID).Msg("lifecycle: book gone, stock not released")
			default:
				return err
			}
		}

		at := m.now()
		if err := tx.UpdateOrderStatus(ctx, o.ID, req.To, at); err != nil {
			return err
		}

		recipient := o.BuyerID
		if actor == orders.ActorBuyer {
			recipient = o.SellerID
		}
		related := o.ID
		n, err := notify.EmitTx(ctx, tx, at, recipient, notify.StatusMessage(o, req.To, actor), &related)
		if err != nil {
			return err
		}

		res.From = o.Status
		res.Actor = actor
		res.Notification = n
		o.Status = req.To
		o.UpdatedAt = at
		res.Order = o
		return nil
	})
	if err != nil {
		logRejection(req, err)
		return Result{}, err
	}

	m.Metrics.ObserveTransition(string(res.From), string(res.Order.Status))
	log.Info().Str("order_id", res.Order.ID).Stringer("from", res.From).Stringer("to", res.Order.Status).
		Str("actor", string(res.Actor)).Msg("lifecycle: order transitioned")
	m.publish(ctx, req.ActorID, res)
	return res, nil
}

// Cancel moves a pending order to cancelled. Deleting a pending order is this
// same operation: the row stays for history and analytics.
func (m *Machine) Cancel(ctx context.Context, orderID, actorID string) (Result, error) {
	return m.Transition(ctx, Request{OrderID: orderID, ActorID: actorID, To: orders.StatusCancelled})
}

func (m *Machine) publish(ctx context.Context, actorID string, res Result) {
	ev, err := orders.NewEnvelope(orders.EventOrderStatusChanged, m.Service, res.Order.ID, orders.OrderStatusChangedPayload{
		OrderID:  res.Order.ID,
		From:     res.From,
		To:       res.Order.Status,
		Actor:    res.Actor,
		ActorID:  actorID,
		Released: res.Released,
	})
	if err == nil {
		err = m.Publisher.Publish(ctx, orders.TopicOrderEvents, ev)
	}
	if err != nil {
		log.Error().Err(err).Str("order_id", res.Order.ID).Msg("lifecycle: publish status event")
	}
}

func logRejection(req Request, err error) {
	ev := log.Error()
	switch {
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, orders.ErrAuthorization),
		errors.Is(err, orders.ErrNotFound), errors.Is(err, orders.ErrValidation):
		ev = log.Warn()
	}
	ev.Err(err).Str("order_id", req.OrderID).Str("actor_id", req.ActorID).Stringer("to", req.To).
		Msg("lifecycle: transition rejected")
}
