// Package inventory guards book stock. A reservation is a compare-and-decrement
// under the book's row lock: there is no separate hold state, so stock taken
// here belongs to the order created in the same transaction.
package inventory

import (
	"context"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/rs/zerolog/log"
)

type Guard struct {
	Store orders.Store
}

func New(store orders.Store) *Guard { return &Guard{Store: store} }

// Check compares qty against current stock without locking. It is the
// checkout pre-flight; a passing Check does not guarantee a later Reserve.
func (g *Guard) Check(ctx context.Context, bookID string, qty int) (orders.Book, error) {
	if err := validQty(qty); err != nil {
		return orders.Book{}, err
	}
	b, err := g.Store.GetBook(ctx, bookID)
	if err != nil {
		return orders.Book{}, err
	}
	if b.Stock < qty {
		return b, &orders.InsufficientStockError{BookID: bookID, Requested: qty, Available: b.Stock}
	}
	return b, nil
}

// Reserve decrements stock in its own transaction.
func (g *Guard) Reserve(ctx context.Context, bookID string, qty int) error {
	return g.Store.WithTx(ctx, func(tx orders.Tx) error {
		_, err := ReserveTx(ctx, tx, bookID, qty)
		return err
	})
}

// Release returns qty to the book in its own transaction.
func (g *Guard) Release(ctx context.Context, bookID string, qty int) error {
	return g.Store.WithTx(ctx, func(tx orders.Tx) error {
		return ReleaseTx(ctx, tx, bookID, qty)
	})
}

// ReserveTx locks the book row, checks stock and decrements it. The returned
// book is the locked snapshot before the decrement, so its price is the one
// the caller must charge.
func ReserveTx(ctx context.Context, tx orders.Tx, bookID string, qty int) (orders.Book, error) {
	if err := validQty(qty); err != nil {
		return orders.Book{}, err
	}
	b, err := tx.LockBook(ctx, bookID)
	if err != nil {
		return orders.Book{}, err
	}
	if b.Stock < qty {
		log.Warn().Str("book_id", bookID).Int("requested", qty).Int("available", b.Stock).Msg("inventory: reservation rejected")
		return b, &orders.InsufficientStockError{BookID: bookID, Requested: qty, Available: b.Stock}
	}
	if err := tx.AdjustStock(ctx, bookID, -qty); err != nil {
		return b, err
	}
	return b, nil
}

func ReleaseTx(ctx context.Context, tx orders.Tx, bookID string, qty int) error {
	if err := validQty(qty); err != nil {
		return err
	}
	if _, err := tx.LockBook(ctx, bookID); err != nil {
		return err
	}
	return tx.AdjustStock(ctx, bookID, qty)
}

func validQty(qty int) error {
	if qty < 1 {
		return orders.Validationf("quantity must be at least 1, got %d", qty)
	}
	return nil
}
