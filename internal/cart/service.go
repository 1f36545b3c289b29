package cart

import (
	"context"
	"time"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/rs/zerolog/log"
)

type Service struct {
	Store                 orders.Store
	DeliveryFee           int64
	FreeDeliveryThreshold int64 // 0 disables the waiver
	Now                   func() time.Time
}

func New(store orders.Store, deliveryFee, freeThreshold int64) *Service {
	return &Service{Store: store, DeliveryFee: deliveryFee, FreeDeliveryThreshold: freeThreshold}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

// Line is one cart entry joined with a live read of its book.
type Line struct {
	BookID    string `json:"bookId"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	SellerID  string `json:"sellerId"`
	Price     int64  `json:"price"`
	Stock     int    `json:"stock"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"lineTotal"`
	Available bool   `json:"available"`
	// Missing marks a line whose book left the catalog; it is excluded from totals.
	Missing bool `json:"missing,omitempty"`
}

type View struct {
	BuyerID     string `json:"buyerId"`
	Lines       []Line `json:"items"`
	ItemCount   int    `json:"itemCount"`
	Subtotal    int64  `json:"subtotal"`
	DeliveryFee int64  `json:"deliveryFee"`
	Total       int64  `json:"total"`
}

func validQty(qty int) error {
	if qty < orders.MinCartQty || qty > orders.MaxCartQty {
		return orders.Validationf("quantity must be between %d and %d, got %d", orders.MinCartQty, orders.MaxCartQty, qty)
	}
	return nil
}

func (s *Service) requireBook(ctx context.Context, buyerID, bookID string) error {
	b, err := s.Store.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	if b.SellerID == buyerID {
		return orders.Validationf("cannot buy your own book %s", bookID)
	}
	return nil
}

// AddItem merges qty into an existing line or inserts a new one. A merge that
// would exceed the per-line maximum is rejected, never clamped.
func (s *Service) AddItem(ctx context.Context, buyerID, bookID string, qty int) (orders.CartItem, error) {
	if err := validQty(qty); err != nil {
		return orders.CartItem{}, err
	}
	if err := s.requireBook(ctx, buyerID, bookID); err != nil {
		return orders.CartItem{}, err
	}

	var out orders.CartItem
	err := s.Store.WithTx(ctx, func(tx orders.Tx) error {
		cur, found, err := tx.LockCartItem(ctx, buyerID, bookID)
		if err != nil {
			return err
		}
		next := qty
		if found {
			next += cur.Quantity
		}
		if next > orders.MaxCartQty {
			return orders.Validationf("cart already holds %d of book %s, max is %d", cur.Quantity, bookID, orders.MaxCartQty)
		}
		out = orders.CartItem{BuyerID: buyerID, BookID: bookID, Quantity: next, UpdatedAt: s.now()}
		return tx.PutCartItem(ctx, out)
	})
	if err != nil {
		return orders.CartItem{}, err
	}
	log.Debug().Str("buyer_id", buyerID).Str("book_id", bookID).Int("quantity", out.Quantity).Msg("cart: item added")
	return out, nil
}

// UpdateQuantity sets an existing line. Zero or negative is rejected: removal
// goes through RemoveItem.
func (s *Service) UpdateQuantity(ctx context.Context, buyerID, bookID string, qty int) (orders.CartItem, error) {
	if err := validQty(qty); err != nil {
		return orders.CartItem{}, err
	}
	if err := s.requireBook(ctx, buyerID, bookID); err != nil {
		return orders.CartItem{}, err
	}

	var out orders.CartItem
	err := s.Store.WithTx(ctx, func(tx orders.Tx) error {
		_, found, err := tx.LockCartItem(ctx, buyerID, bookID)
		if err != nil {
			return err
		}
		if !found {
			return orders.NotFoundf("book %s is not in the cart", bookID)
		}
		out = orders.CartItem{BuyerID: buyerID, BookID: bookID, Quantity: qty, UpdatedAt: s.now()}
		return tx.PutCartItem(ctx, out)
	})
	return out, err
}

// RemoveItem works even when the book has left the catalog.
func (s *Service) RemoveItem(ctx context.Context, buyerID, bookID string) error {
	return s.Store.WithTx(ctx, func(tx orders.Tx) error {
		removed, err := tx.DeleteCartItem(ctx, buyerID, bookID)
		if err != nil {
			return err
		}
		if !removed {
			return orders.NotFoundf("book %s is not in the cart", bookID)
		}
		return nil
	})
}

func (s *Service) Clear(ctx context.Context, buyerID string) error {
	return s.Store.WithTx(ctx, func(tx orders.Tx) error {
		return tx.ClearCart(ctx, buyerID)
	})
}

// Items returns the raw cart lines.
func (s *Service) Items(ctx context.Context, buyerID string) ([]orders.CartItem, error) {
	return s.Store.GetCart(ctx, buyerID)
}

// GetCart joins the cart with live book data. It only reads.
func (s *Service) GetCart(ctx context.Context, buyerID string) (View, error) {
	items, err := s.Store.GetCart(ctx, buyerID)
	if err != nil {
		return View{}, err
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.BookID)
	}
	books, err := s.Store.GetBooks(ctx, ids)
	if err != nil {
		return View{}, err
	}

	v := View{BuyerID: buyerID, Lines: make([]Line, 0, len(items))}
	for _, it := range items {
		b, ok := books[it.BookID]
		if !ok {
			v.Lines = append(v.Lines, Line{BookID: it.BookID, Quantity: it.Quantity, Missing: true})
			continue
		}
		l := Line{
			BookID:    b.ID,
			Title:     b.Title,
			Author:    b.Author,
			SellerID:  b.SellerID,
			Price:     b.Price,
			Stock:     b.Stock,
			Quantity:  it.Quantity,
			LineTotal: b.Price * int64(it.Quantity),
			Available: b.Stock >= it.Quantity,
		}
		v.Lines = append(v.Lines, l)
		v.ItemCount += it.Quantity
		v.Subtotal += l.LineTotal
	}
	v.DeliveryFee = s.deliveryFee(v.Subtotal)
	v.Total = v.Subtotal + v.DeliveryFee
	return v, nil
}

func (s *Service) deliveryFee(subtotal int64) int64 {
	if subtotal == 0 {
		return 0
	}
	if s.FreeDeliveryThreshold > 0 && subtotal >= s.FreeDeliveryThreshold {
		return 0
	}
	return s.DeliveryFee
}
