package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/google/uuid"
)

// Emitter appends notifications and flips their read flag. Rows are never deleted.
type Emitter struct {
	Store orders.Store
	Now   func() time.Time
}

func New(store orders.Store) *Emitter {
	return &Emitter{Store: store, Now: func() time.Time { return time.Now().UTC() }}
}

func (e *Emitter) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now()
}

func (e *Emitter) Emit(ctx context.Context, recipientID, message string, relatedID *string) (orders.Notification, error) {
	var n orders.Notification
	err := e.Store.WithTx(ctx, func(tx orders.Tx) error {
		var err error
		n, err = EmitTx(ctx, tx, e.now(), recipientID, message, relatedID)
		return err
	})
	return n, err
}

// EmitTx writes the notification inside the caller's transaction, so it
// commits or rolls back together with the change it describes.
func EmitTx(ctx context.Context, tx orders.Tx, at time.Time, recipientID, message string, relatedID *string) (orders.Notification, error) {
	if strings.TrimSpace(recipientID) == "" {
		return orders.Notification{}, orders.Validationf("notification recipient is required")
	}
	if strings.TrimSpace(message) == "" {
		return orders.Notification{}, orders.Validationf("notification message is required")
	}
	n := orders.Notification{
		ID:              uuid.NewString(),
		RecipientUserID: recipientID,
		Message:         message,
		RelatedID:       relatedID,
		CreatedAt:       at,
	}
	if err := tx.InsertNotification(ctx, n); err != nil {
		return orders.Notification{}, err
	}
	return n, nil
}

// MarkRead is idempotent: an already-read notification stays read.
func (e *Emitter) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	return e.Store.MarkNotificationRead(ctx, recipientID, notificationID)
}

func (e *Emitter) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	return e.Store.MarkAllNotificationsRead(ctx, recipientID)
}

// List returns the recipient's notifications, most recent first.
func (e *Emitter) List(ctx context.Context, recipientID string) ([]orders.Notification, error) {
	return e.Store.ListNotifications(ctx, recipientID)
}

func (e *Emitter) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return e.Store.CountUnread(ctx, recipientID)
}

// StatusMessage is the text sent to the counterparty when o moves to status to.
func StatusMessage(o orders.Order, to orders.Status, by orders.Actor) string {
	title := o.BookTitle
	if title == "" {
		title = "book " + o.BookID
	}
	switch to {
	case orders.StatusAccepted:
		return fmt.Sprintf("Your order for %q has been accepted by the seller.", title)
	case orders.StatusShipped:
		return fmt.Sprintf("Your order for %q has been shipped.", title)
	case orders.StatusDelivered:
		return fmt.Sprintf("Your order for %q has been delivered.", title)
	case orders.StatusCancelled:
		if by == orders.ActorBuyer {
			return fmt.Sprintf("The buyer cancelled their order for %q (qty %d).", title, o.Quantity)
		}
		return fmt.Sprintf("Your order for %q was cancelled by the seller.", title)
	}
	return fmt.Sprintf("Your order for %q is now %s.", title, to)
}

// PlacedMessage is the seller-facing text for a new order.
func PlacedMessage(o orders.Order) string {
	return fmt.Sprintf("New order: %d x %q.", o.Quantity, o.BookTitle)
}
