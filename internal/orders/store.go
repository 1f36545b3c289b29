package orders

import (
	"context"
	"time"
)

// Store is the persistence port. Reads outside WithTx see committed data and
// take no locks; everything that must be atomic runs inside WithTx.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetBook(ctx context.Context, id string) (Book, error)
	GetBooks(ctx context.Context, ids []string) (map[string]Book, error)
	GetAddress(ctx context.Context, userID, addressID string) (Address, error)

	GetCart(ctx context.Context, buyerID string) ([]CartItem, error)

	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	ListOrdersBySeller(ctx context.Context, sellerID string, status Status) ([]Order, error)
	ListSellerSales(ctx context.Context, sellerID string, since time.Time) ([]Sale, error)

	ListNotifications(ctx context.Context, recipientID string) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkNotificationRead(ctx context.Context, recipientID, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error)

	SaveCheckoutFlag(ctx context.Context, f CheckoutFlag) error
	ListCheckoutFlags(ctx context.Context, buyerID string) ([]CheckoutFlag, error)
}

// Tx is one serializable unit of work. Lock* methods hold the row until the
// transaction ends; a failed fn rolls back every write made through tx.
type Tx interface {
	LockBook(ctx context.Context, id string) (Book, error)
	AdjustStock(ctx context.Context, bookID string, delta int) error

	InsertOrder(ctx context.Context, o Order) error
	LockOrder(ctx context.Context, id string) (Order, error)
	UpdateOrderStatus(ctx context.Context, id string, to Status, at time.Time) error

	InsertNotification(ctx context.Context, n Notification) error

	LockCartItem(ctx context.Context, buyerID, bookID string) (CartItem, bool, error)
	PutCartItem(ctx context.Context, it CartItem) error
	DeleteCartItem(ctx context.Context, buyerID, bookID string) (bool, error)
	ClearCart(ctx context.Context, buyerID string) error
}
