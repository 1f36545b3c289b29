package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct{ DB *pgxpool.Pool }

var _ orders.Store = (*Store)(nil)

func (s *Store) WithTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const bookCols = `id, title, author, category, price, original_price, stock, seller_id, condition, created_at`

func scanBook(row pgx.Row) (orders.Book, error) {
	var b orders.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Category, &b.Price, &b.OriginalPrice,
		&b.Stock, &b.SellerID, &b.Condition, &b.CreatedAt)
	return b, err
}

func getBook(ctx context.Context, q querier, id string, lock bool) (orders.Book, error) {
	sql := `SELECT ` + bookCols + ` FROM books WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	b, err := scanBook(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Book{}, orders.NotFoundf("book %s", id)
	}
	return b, err
}

func (s *Store) GetBook(ctx context.Context, id string) (orders.Book, error) {
	return getBook(ctx, s.DB, id, false)
}

func (s *Store) GetBooks(ctx context.Context, ids []string) (map[string]orders.Book, error) {
	out := make(map[string]orders.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(ctx, `SELECT `+bookCols+` FROM books WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out[b.ID] = b
	}
	return out, rows.Err()
}

func (s *Store) GetAddress(ctx context.Context, userID, addressID string) (orders.Address, error) {
	var a orders.Address
	err := s.DB.QueryRow(ctx, `
		SELECT id, user_id, full_name, phone, street, city, state, postal_code, country
		FROM addresses WHERE id=$1 AND user_id=$2`, addressID, userID).
		Scan(&a.ID, &a.UserID, &a.FullName, &a.Phone, &a.Street, &a.City, &a.State, &a.PostalCode, &a.Country)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Address{}, orders.NotFoundf("address %s", addressID)
	}
	return a, err
}

func (s *Store) GetCart(ctx context.Context, buyerID string) ([]orders.CartItem, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT buyer_id, book_id, quantity, updated_at
		FROM cart_items WHERE buyer_id=$1 ORDER BY book_id`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]orders.CartItem, 0)
	for rows.Next() {
		var it orders.CartItem
		if err := rows.Scan(&it.BuyerID, &it.BookID, &it.Quantity, &it.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

const orderCols = `id, checkout_id, buyer_id, seller_id, book_id, book_title, quantity, total_amount,
	shipping_address, payment_method, status, created_at, updated_at`

func scanOrder(row pgx.Row, extra ...any) (orders.Order, error) {
	var o orders.Order
	var status string
	dest := []any{&o.ID, &o.CheckoutID, &o.BuyerID, &o.SellerID, &o.BookID, &o.BookTitle, &o.Quantity,
		&o.TotalAmount, &o.ShippingAddress, &o.PaymentMethod, &status, &o.CreatedAt, &o.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)
	return o, nil
}

func getOrder(ctx context.Context, q querier, id string, lock bool) (orders.Order, error) {
	sql := `SELECT ` + orderCols + ` FROM orders WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, orders.NotFoundf("order %s", id)
	}
	return o, err
}

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return getOrder(ctx, s.DB, id, false)
}

func (s *Store) listOrders(ctx context.Context, where string, args ...any) ([]orders.Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderCols+` FROM orders WHERE `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]orders.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]orders.Order, error) {
	return s.listOrders(ctx, `buyer_id=$1`, buyerID)
}

func (s *Store) ListOrdersBySeller(ctx context.Context, sellerID string, status orders.Status) ([]orders.Order, error) {
	if status == "" {
		return s.listOrders(ctx, `seller_id=$1`, sellerID)
	}
	return s.listOrders(ctx, `seller_id=$1 AND status=$2`, sellerID, string(status))
}

func (s *Store) ListSellerSales(ctx context.Context, sellerID string, since time.Time) ([]orders.Sale, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT o.id, o.checkout_id, o.buyer_id, o.seller_id, o.book_id, o.book_title, o.quantity, o.total_amount,
		       o.shipping_address, o.payment_method, o.status, o.created_at, o.updated_at,
		       COALESCE(b.category, '')
		FROM orders o LEFT JOIN books b ON b.id = o.book_id
		WHERE o.seller_id=$1 AND o.created_at >= $2
		ORDER BY o.created_at DESC, o.id DESC`, sellerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]orders.Sale, 0)
	for rows.Next() {
		var sale orders.Sale
		o, err := scanOrder(rows, &sale.Category)
		if err != nil {
			return nil, err
		}
		sale.Order = o
		out = append(out, sale)
	}
	return out, rows.Err()
}

func (s *Store) ListNotifications(ctx context.Context, recipientID string) ([]orders.Notification, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, recipient_id, message, related_id, is_read, created_at
		FROM notifications WHERE recipient_id=$1
		ORDER BY created_at DESC, seq DESC`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]orders.Notification, 0)
	for rows.Next() {
		var n orders.Notification
		if err := rows.Scan(&n.ID, &n.RecipientUserID, &n.Message, &n.RelatedID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND NOT is_read`, recipientID).Scan(&n)
	return n, err
}

func (s *Store) MarkNotificationRead(ctx context.Context, recipientID, notificationID string) error {
	ct, err := s.DB.Exec(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1 AND recipient_id=$2`, notificationID, recipientID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.NotFoundf("notification %s", notificationID)
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error) {
	ct, err := s.DB.Exec(ctx, `UPDATE notifications SET is_read=TRUE WHERE recipient_id=$1 AND NOT is_read`, recipientID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (s *Store) SaveCheckoutFlag(ctx context.Context, f orders.CheckoutFlag) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO checkout_flags(checkout_id, buyer_id, created_order_ids, failed_book_ids, verdict, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (checkout_id) DO NOTHING`,
		f.CheckoutID, f.BuyerID, f.CreatedOrderIDs, f.FailedBookIDs, f.Verdict, f.CreatedAt)
	return err
}

func (s *Store) ListCheckoutFlags(ctx context.Context, buyerID string) ([]orders.CheckoutFlag, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT checkout_id, buyer_id, created_order_ids, failed_book_ids, verdict, created_at
		FROM checkout_flags WHERE ($1 = '' OR buyer_id=$1)
		ORDER BY created_at DESC`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]orders.CheckoutFlag, 0)
	for rows.Next() {
		var f orders.CheckoutFlag
		if err := rows.Scan(&f.CheckoutID, &f.BuyerID, &f.CreatedOrderIDs, &f.FailedBookIDs, &f.Verdict, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ---- tx ----

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) LockBook(ctx context.Context, id string) (orders.Book, error) {
	return getBook(ctx, t.tx, id, true)
}

// AdjustStock applies delta guarded by stock >= 0, so a decrement never goes
// negative even if the caller skipped LockBook.
func (t *pgTx) AdjustStock(ctx context.Context, bookID string, delta int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE books SET stock = stock + $2 WHERE id=$1 AND stock + $2 >= 0`, bookID, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	b, err := getBook(ctx, t.tx, bookID, false)
	if err != nil {
		return err
	}
	return &orders.InsufficientStockError{BookID: bookID, Requested: -delta, Available: b.Stock}
}

func (t *pgTx) InsertOrder(ctx context.Context, o orders.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, checkout_id, buyer_id, seller_id, book_id, book_title, quantity, total_amount,
		                   shipping_address, payment_method, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		o.ID, o.CheckoutID, o.BuyerID, o.SellerID, o.BookID, o.BookTitle, o.Quantity, o.TotalAmount,
		o.ShippingAddress, o.PaymentMethod, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, translate(err, "order "+o.ID))
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id string, to orders.Status, at time.Time) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, id, string(to), at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return orders.NotFoundf("order %s", id)
	}
	return nil
}

func (t *pgTx) InsertNotification(ctx context.Context, n orders.Notification) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO notifications(id, recipient_id, message, related_id, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		n.ID, n.RecipientUserID, n.Message, n.RelatedID, n.IsRead, n.CreatedAt)
	return translate(err, "notification "+n.ID)
}

// LockCartItem also holds a transaction-scoped advisory lock on the line, so
// a line that does not exist yet is still serialized between writers.
func (t *pgTx) LockCartItem(ctx context.Context, buyerID, bookID string) (orders.CartItem, bool, error) {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, buyerID, bookID); err != nil {
		return orders.CartItem{}, false, fmt.Errorf("lock cart line: %w", err)
	}
	var it orders.CartItem
	err := t.tx.QueryRow(ctx, `
		SELECT buyer_id, book_id, quantity, updated_at FROM cart_items
		WHERE buyer_id=$1 AND book_id=$2 FOR UPDATE`, buyerID, bookID).
		Scan(&it.BuyerID, &it.BookID, &it.Quantity, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.CartItem{}, false, nil
	}
	if err != nil {
		return orders.CartItem{}, false, err
	}
	return it, true, nil
}

func (t *pgTx) PutCartItem(ctx context.Context, it orders.CartItem) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cart_items(buyer_id, book_id, quantity, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (buyer_id, book_id) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=EXCLUDED.updated_at`,
		it.BuyerID, it.BookID, it.Quantity, it.UpdatedAt)
	return translate(err, "cart item "+it.BookID)
}

func (t *pgTx) DeleteCartItem(ctx context.Context, buyerID, bookID string) (bool, error) {
	ct, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE buyer_id=$1 AND book_id=$2`, buyerID, bookID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (t *pgTx) ClearCart(ctx context.Context, buyerID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE buyer_id=$1`, buyerID)
	return err
}
