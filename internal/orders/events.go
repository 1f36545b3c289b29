package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventCheckoutCompleted  = "CheckoutCompleted"
	EventCheckoutPartial    = "CheckoutPartial"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id or checkout_id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload as a version 1 event.
func NewEnvelope(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// Publisher ships envelopes to the event bus. Implementations must not block
// on the network; delivery is best effort and never part of a transaction.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev Envelope) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Envelope) error { return nil }

// ---- payloads ----

type OrderPlacedPayload struct {
	OrderID     string `json:"order_id"`
	CheckoutID  string `json:"checkout_id,omitempty"`
	BuyerID     string `json:"buyer_id"`
	SellerID    string `json:"seller_id"`
	BookID      string `json:"book_id"`
	Quantity    int    `json:"quantity"`
	TotalAmount int64  `json:"total_amount"`
}

type OrderStatusChangedPayload struct {
	OrderID  string `json:"order_id"`
	From     Status `json:"from"`
	To       Status `json:"to"`
	Actor    Actor  `json:"actor"`
	ActorID  string `json:"actor_id"`
	Released int    `json:"released,omitempty"` // stock returned to the book
}

type CheckoutLine struct {
	BookID   string `json:"book_id"`
	Quantity int    `json:"quantity"`
	OrderID  string `json:"order_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type CheckoutPayload struct {
	CheckoutID string         `json:"checkout_id"`
	BuyerID    string         `json:"buyer_id"`
	Succeeded  []CheckoutLine `json:"succeeded"`
	Failed     []CheckoutLine `json:"failed,omitempty"`
}
