package checkout

import (
	"context"
	"strings"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/rs/zerolog/log"
)

// PlaceRequest is the single-line contract: one call creates one order.
type PlaceRequest struct {
	BuyerID       string
	BookID        string
	Quantity      int
	AddressID     string
	PaymentMethod string
	// ExpectedTotal is the amount the client displayed. When set it must match
	// the locked price times quantity.
	ExpectedTotal *int64
}

// PlaceOrder reserves stock and creates one order. It leaves the cart alone.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req PlaceRequest) (orders.Order, error) {
	if strings.TrimSpace(req.BuyerID) == "" || strings.TrimSpace(req.BookID) == "" {
		return orders.Order{}, orders.Validationf("buyer and book are required")
	}
	if req.Quantity < orders.MinCartQty || req.Quantity > orders.MaxCartQty {
		return orders.Order{}, orders.Validationf("quantity must be between %d and %d, got %d", orders.MinCartQty, orders.MaxCartQty, req.Quantity)
	}
	addr, err := o.Store.GetAddress(ctx, req.BuyerID, req.AddressID)
	if err != nil {
		return orders.Order{}, err
	}

	line := lineSpec{buyerID: req.BuyerID, address: addr.Format(), payment: req.PaymentMethod}
	var ord orders.Order
	err = o.Store.WithTx(ctx, func(tx orders.Tx) error {
		var err error
		ord, err = o.placeLineTx(ctx, tx, line, req.BookID, req.Quantity)
		if err != nil {
			return err
		}
		if req.ExpectedTotal != nil && *req.ExpectedTotal != ord.TotalAmount {
			return orders.Validationf("price changed: expected total %d, current total %d", *req.ExpectedTotal, ord.TotalAmount)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("buyer_id", req.BuyerID).Str("book_id", req.BookID).Msg("checkout: place order rejected")
		o.Metrics.ObserveCheckoutLine(orders.Kind(err))
		return orders.Order{}, err
	}

	o.Metrics.ObserveCheckoutLine("ordered")
	log.Info().Str("order_id", ord.ID).Str("buyer_id", ord.BuyerID).Int64("total", ord.TotalAmount).Msg("checkout: order placed")
	o.publish(ctx, orders.TopicOrderEvents, orders.EventOrderPlaced, ord.ID, placedPayload(ord))
	return ord, nil
}
