// Package checkout turns a buyer's cart into orders, one per cart line.
//
// In the default per-line mode each line reserves stock and creates its order
// in its own transaction, so a checkout can partially succeed. The result
// always says which lines became orders and which failed; committed lines are
// removed from the cart in the same transaction, leaving exactly the failed
// lines for a retry. Atomic mode runs every line in one transaction instead
// and either creates all orders or none.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ariefcatur/go-book-marketplace/internal/inventory"
	"github.com/ariefcatur/go-book-marketplace/internal/metrics"
	"github.com/ariefcatur/go-book-marketplace/internal/notify"
	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Mode string

const (
	ModePerLine Mode = "per_line"
	ModeAtomic  Mode = "atomic"
)

const (
	ResultCompleted = "completed"
	ResultPartial   = "partial"
	ResultFailed    = "failed"
)

// Idempotency dedupes retried checkouts carrying the same key.
type Idempotency interface {
	// Begin claims key. It returns the stored result of a finished checkout,
	// nil for a fresh claim, or orders.ErrConflict while another is in flight.
	Begin(ctx context.Context, key string) ([]byte, error)
	Complete(ctx context.Context, key string, result []byte) error
	Abort(ctx context.Context, key string) error
}

type Orchestrator struct {
	Store       orders.Store
	Guard       *inventory.Guard
	Publisher   orders.Publisher
	Idempotency Idempotency // optional
	Metrics     *metrics.Metrics
	Service     string
	Now         func() time.Time
}

func New(store orders.Store, pub orders.Publisher) *Orchestrator {
	if pub == nil {
		pub = orders.NopPublisher{}
	}
	return &Orchestrator{Store: store, Guard: inventory.New(store), Publisher: pub, Service: "order-api"}
}

type Request struct {
	BuyerID        string
	AddressID      string
	PaymentMethod  string
	Mode           Mode
	IdempotencyKey string
}

type LineFailure struct {
	BookID    string `json:"bookId"`
	Quantity  int    `json:"quantity"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Available *int   `json:"available,omitempty"`
}

type Result struct {
	CheckoutID  string         `json:"checkoutId"`
	Status      string         `json:"status"`
	Orders      []orders.Order `json:"orders"`
	Failed      []LineFailure  `json:"failed"`
	CartCleared bool           `json:"cartCleared"`
	Replayed    bool           `json:"replayed,omitempty"`
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now()
}

func failureOf(it orders.CartItem, err error) LineFailure {
	f := LineFailure{BookID: it.BookID, Quantity: it.Quantity, Kind: orders.Kind(err), Message: err.Error()}
	var ise *orders.InsufficientStockError
	if errors.As(err, &ise) {
		avail := ise.Available
		f.Available = &avail
	}
	if f.Kind == "internal" {
		f.Message = "could not place order for this line"
	}
	return f
}

// Checkout converts the buyer's cart. A returned error means nothing was
// attempted (bad address, empty cart, duplicate in flight); line-level
// problems are reported inside Result.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.BuyerID) == "" {
		return Result{}, orders.Validationf("buyer is required")
	}
	switch req.Mode {
	case "":
		req.Mode = ModePerLine
	case ModePerLine, ModeAtomic:
	default:
		return Result{}, orders.Validationf("unknown checkout mode %q", req.Mode)
	}

	idemKey := ""
	if req.IdempotencyKey != "" && o.Idempotency != nil {
		idemKey = req.BuyerID + ":" + req.IdempotencyKey
		replay, err := o.Idempotency.Begin(ctx, idemKey)
		if err != nil {
			return Result{}, err
		}
		if replay != nil {
			var res Result
			if err := json.Unmarshal(replay, &res); err != nil {
				return Result{}, err
			}
			res.Replayed = true
			return res, nil
		}
	}

	res, err := o.checkout(ctx, req)

	if idemKey != "" {
		if err != nil {
			if aerr := o.Idempotency.Abort(ctx, idemKey); aerr != nil {
				log.Error().Err(aerr).Str("buyer_id", req.BuyerID).Msg("checkout: release idempotency key")
			}
		} else if b, merr := json.Marshal(res); merr == nil {
			if cerr := o.Idempotency.Complete(ctx, idemKey, b); cerr != nil {
				log.Error().Err(cerr).Str("checkout_id", res.CheckoutID).Msg("checkout: store idempotent result")
			}
		}
	}
	return res, err
}

func (o *Orchestrator) checkout(ctx context.Context, req Request) (Result, error) {
	addr, err := o.Store.GetAddress(ctx, req.BuyerID, req.AddressID)
	if err != nil {
		return Result{}, err
	}
	items, err := o.Store.GetCart(ctx, req.BuyerID)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{}, orders.Validationf("cart is empty")
	}

	res := Result{CheckoutID: uuid.NewString(), Orders: []orders.Order{}, Failed: []LineFailure{}}
	lg := log.With().Str("checkout_id", res.CheckoutID).Str("buyer_id", req.BuyerID).Str("mode", string(req.Mode)).Logger()

	// pre-flight: nothing is created until every line has been checked
	ready := make([]orders.CartItem, 0, len(items))
	for _, it := range items {
		if err := o.preflight(ctx, req.BuyerID, it); err != nil {
			res.Failed = append(res.Failed, failureOf(it, err))
			continue
		}
		ready = append(ready, it)
	}

	line := lineSpec{buyerID: req.BuyerID, address: addr.Format(), payment: req.PaymentMethod, checkoutID: res.CheckoutID}
	switch req.Mode {
	case ModeAtomic:
		if len(res.Failed) == 0 {
			res.Orders, res.Failed = o.placeAtomic(ctx, line, ready)
		}
	default:
		for _, it := range ready {
			ord, err := o.placeCartLine(ctx, line, it)
			if err != nil {
				lg.Warn().Err(err).Str("book_id", it.BookID).Msg("checkout: line failed")
				res.Failed = append(res.Failed, failureOf(it, err))
				continue
			}
			res.Orders = append(res.Orders, ord)
		}
	}

	switch {
	case len(res.Failed) == 0:
		// every ordered line left the cart in the transaction that created its order
		res.Status = ResultCompleted
		res.CartCleared = true
	case len(res.Orders) > 0:
		res.Status = ResultPartial
	default:
		res.Status = ResultFailed
	}

	for range res.Orders {
		o.Metrics.ObserveCheckoutLine("ordered")
	}
	for _, f := range res.Failed {
		o.Metrics.ObserveCheckoutLine(f.Kind)
	}
	o.Metrics.ObserveCheckout(res.Status)
	lg.Info().Int("ordered", len(res.Orders)).Int("failed", len(res.Failed)).Str("result", res.Status).Msg("checkout: finished")

	o.publishCheckout(ctx, req.BuyerID, items, res)
	return res, nil
}

func (o *Orchestrator) preflight(ctx context.Context, buyerID string, it orders.CartItem) error {
	if it.Quantity < orders.MinCartQty || it.Quantity > orders.MaxCartQty {
		return orders.Validationf("quantity must be between %d and %d, got %d", orders.MinCartQty, orders.MaxCartQty, it.Quantity)
	}
	b, err := o.Guard.Check(ctx, it.BookID, it.Quantity)
	if err != nil {
		return err
	}
	if b.SellerID == buyerID {
		return orders.Validationf("cannot buy your own book %s", it.BookID)
	}
	return nil
}

type lineSpec struct {
	buyerID    string
	address    string
	payment    string
	checkoutID string
}

// placeLineTx reserves stock and creates the order at the locked price, then
// tells the seller. Cart rows are the caller's business.
func (o *Orchestrator) placeLineTx(ctx context.Context, tx orders.Tx, line lineSpec, bookID string, qty int) (orders.Order, error) {
	b, err := inventory.ReserveTx(ctx, tx, bookID, qty)
	if err != nil {
		return orders.Order{}, err
	}
	if b.SellerID == line.buyerID {
		return orders.Order{}, orders.Validationf("cannot buy your own book %s", bookID)
	}
	now := o.now()
	ord := orders.Order{
		ID:              uuid.NewString(),
		CheckoutID:      line.checkoutID,
		BuyerID:         line.buyerID,
		SellerID:        b.SellerID,
		BookID:          b.ID,
		BookTitle:       b.Title,
		Quantity:        qty,
		TotalAmount:     b.Price * int64(qty),
		ShippingAddress: line.address,
		PaymentMethod:   line.payment,
		Status:          orders.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertOrder(ctx, ord); err != nil {
		return orders.Order{}, err
	}
	related := ord.ID
	if _, err := notify.EmitTx(ctx, tx, now, ord.SellerID, notify.PlacedMessage(ord), &related); err != nil {
		return orders.Order{}, err
	}
	return ord, nil
}

func (o *Orchestrator) placeCartLine(ctx context.Context, line lineSpec, it orders.CartItem) (orders.Order, error) {
	var ord orders.Order
	err := o.Store.WithTx(ctx, func(tx orders.Tx) error {
		var err error
		if ord, err = o.placeLineTx(ctx, tx, line, it.BookID, it.Quantity); err != nil {
			return err
		}
		_, err = tx.DeleteCartItem(ctx, line.buyerID, it.BookID)
		return err
	})
	return ord, err
}

func (o *Orchestrator) placeAtomic(ctx context.Context, line lineSpec, items []orders.CartItem) ([]orders.Order, []LineFailure) {
	var placed []orders.Order
	var failed *LineFailure
	err := o.Store.WithTx(ctx, func(tx orders.Tx) error {
		placed = placed[:0]
		for _, it := range items {
			ord, err := o.placeLineTx(ctx, tx, line, it.BookID, it.Quantity)
			if err != nil {
				f := failureOf(it, err)
				failed = &f
				return err
			}
			if _, err := tx.DeleteCartItem(ctx, line.buyerID, it.BookID); err != nil {
				return err
			}
			placed = append(placed, ord)
		}
		return nil
	})
	if err != nil {
		if failed == nil {
			f := LineFailure{Kind: orders.Kind(err), Message: "checkout could not be committed"}
			failed = &f
		}
		return []orders.Order{}, []LineFailure{*failed}
	}
	return placed, []LineFailure{}
}

func (o *Orchestrator) publishCheckout(ctx context.Context, buyerID string, items []orders.CartItem, res Result) {
	for _, ord := range res.Orders {
		o.publish(ctx, orders.TopicOrderEvents, orders.EventOrderPlaced, ord.ID, placedPayload(ord))
	}
	if len(res.Orders) == 0 {
		return
	}
	p := orders.CheckoutPayload{CheckoutID: res.CheckoutID, BuyerID: buyerID}
	for _, ord := range res.Orders {
		p.Succeeded = append(p.Succeeded, orders.CheckoutLine{BookID: ord.BookID, Quantity: ord.Quantity, OrderID: ord.ID})
	}
	for _, f := range res.Failed {
		p.Failed = append(p.Failed, orders.CheckoutLine{BookID: f.BookID, Quantity: f.Quantity, Reason: f.Kind})
	}
	eventType := orders.EventCheckoutCompleted
	if res.Status == ResultPartial {
		eventType = orders.EventCheckoutPartial
	}
	o.publish(ctx, orders.TopicCheckoutEvents, eventType, res.CheckoutID, p)
}

func placedPayload(ord orders.Order) orders.OrderPlacedPayload {
	return orders.OrderPlacedPayload{
		OrderID:     ord.ID,
		CheckoutID:  ord.CheckoutID,
		BuyerID:     ord.BuyerID,
		SellerID:    ord.SellerID,
		BookID:      ord.BookID,
		Quantity:    ord.Quantity,
		TotalAmount: ord.TotalAmount,
	}
}

func (o *Orchestrator) publish(ctx context.Context, topic, eventType, correlationID string, payload any) {
	ev, err := orders.NewEnvelope(eventType, o.Service, correlationID, payload)
	if err == nil {
		err = o.Publisher.Publish(ctx, topic, ev)
	}
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Str("correlation_id", correlationID).Msg("checkout: publish event")
	}
}
