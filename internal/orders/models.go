package orders

import (
	"fmt"
	"strings"
	"time"
)

const (
	MinCartQty = 1
	MaxCartQty = 10
)

type Book struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	Category      string    `json:"category"`
	Price         int64     `json:"price"`                   // smallest currency unit
	OriginalPrice *int64    `json:"originalPrice,omitempty"` // >= Price when set
	Stock         int       `json:"stock"`
	SellerID      string    `json:"sellerId"`
	Condition     string    `json:"condition"`
	CreatedAt     time.Time `json:"createdAt"`
}

type CartItem struct {
	BuyerID   string    `json:"-"`
	BookID    string    `json:"bookId"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Address struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Format flattens the address into the snapshot string stored on an Order.
func (a Address) Format() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.FullName, a.Street, a.City} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	if region := strings.TrimSpace(strings.TrimSpace(a.State) + " " + strings.TrimSpace(a.PostalCode)); region != "" {
		parts = append(parts, region)
	}
	if s := strings.TrimSpace(a.Country); s != "" {
		parts = append(parts, s)
	}
	out := strings.Join(parts, ", ")
	if p := strings.TrimSpace(a.Phone); p != "" {
		out = fmt.Sprintf("%s (%s)", out, p)
	}
	return out
}

type Order struct {
	ID              string    `json:"id"`
	CheckoutID      string    `json:"checkoutId,omitempty"`
	BuyerID         string    `json:"buyerId"`
	SellerID        string    `json:"sellerId"`
	BookID          string    `json:"bookId"`
	BookTitle       string    `json:"bookTitle"`
	Quantity        int       `json:"quantity"`
	TotalAmount     int64     `json:"totalAmount"`
	ShippingAddress string    `json:"shippingAddress"`
	PaymentMethod   string    `json:"paymentMethod,omitempty"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type Notification struct {
	ID              string    `json:"id"`
	RecipientUserID string    `json:"recipientUserId"`
	Message         string    `json:"message"`
	RelatedID       *string   `json:"relatedId,omitempty"`
	IsRead          bool      `json:"isRead"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Sale is an Order joined with the live category of its book, the row shape
// the analytics projection reads.
type Sale struct {
	Order
	Category string `json:"category"`
}

// CheckoutFlag records the reconciler's verdict on a partially successful checkout.
type CheckoutFlag struct {
	CheckoutID      string    `json:"checkoutId"`
	BuyerID         string    `json:"buyerId"`
	CreatedOrderIDs []string  `json:"createdOrderIds"`
	FailedBookIDs   []string  `json:"failedBookIds"`
	Verdict         string    `json:"verdict"` // partial | missing_order
	CreatedAt       time.Time `json:"createdAt"`
}

const (
	VerdictPartial      = "partial"
	VerdictMissingOrder = "missing_order"
)
