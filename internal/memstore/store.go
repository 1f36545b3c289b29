// Package memstore is an in-memory orders.Store. Transactions are serialized
// behind a single mutex and roll back by restoring a snapshot, which gives the
// same isolation the Postgres store gets from row locks.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
)

type state struct {
	books         map[string]orders.Book
	addresses     map[string]orders.Address
	carts         map[string]map[string]orders.CartItem // buyer -> book -> item
	orders        map[string]orders.Order
	notifications map[string]orders.Notification
	flags         map[string]orders.CheckoutFlag
	seq           int64 // insertion counter, tie-break for equal timestamps
	notifSeq      map[string]int64
}

func newState() *state {
	return &state{
		books:         map[string]orders.Book{},
		addresses:     map[string]orders.Address{},
		carts:         map[string]map[string]orders.CartItem{},
		orders:        map[string]orders.Order{},
		notifications: map[string]orders.Notification{},
		flags:         map[string]orders.CheckoutFlag{},
		notifSeq:      map[string]int64{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	for buyer, items := range s.carts {
		m := make(map[string]orders.CartItem, len(items))
		for k, v := range items {
			m[k] = v
		}
		c.carts[buyer] = m
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.notifications {
		c.notifications[k] = v
	}
	for k, v := range s.flags {
		c.flags[k] = v
	}
	for k, v := range s.notifSeq {
		c.notifSeq[k] = v
	}
	c.seq = s.seq
	return c
}

type Store struct {
	mu sync.RWMutex
	st *state
}

var _ orders.Store = (*Store)(nil)

func New() *Store { return &Store{st: newState()} }

// PutBook seeds or replaces a catalog record.
func (s *Store) PutBook(b orders.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	s.st.books[b.ID] = b
}

// SetPrice changes a book's price the way seller CRUD would.
func (s *Store) SetPrice(bookID string, price int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.st.books[bookID]; ok {
		b.Price = price
		s.st.books[bookID] = b
	}
}

// DeleteBook removes a catalog record, leaving its orders untouched.
func (s *Store) DeleteBook(bookID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.books, bookID)
}

func (s *Store) PutAddress(a orders.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.addresses[a.ID] = a
}

// PutOrder inserts an order as-is, bypassing stock accounting. Used to seed history.
func (s *Store) PutOrder(o orders.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.seq++
	s.st.orders[o.ID] = o
}

func (s *Store) WithTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&tx{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) GetBook(_ context.Context, id string) (orders.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.st.books[id]
	if !ok {
		return orders.Book{}, orders.NotFoundf("book %s", id)
	}
	return b, nil
}

func (s *Store) GetBooks(_ context.Context, ids []string) (map[string]orders.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]orders.Book, len(ids))
	for _, id := range ids {
		if b, ok := s.st.books[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func (s *Store) GetAddress(_ context.Context, userID, addressID string) (orders.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.st.addresses[addressID]
	if !ok || a.UserID != userID {
		return orders.Address{}, orders.NotFoundf("address %s", addressID)
	}
	return a, nil
}

func (s *Store) GetCart(_ context.Context, buyerID string) ([]orders.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.st.carts[buyerID]
	out := make([]orders.CartItem, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.st.orders[id]
	if !ok {
		return orders.Order{}, orders.NotFoundf("order %s", id)
	}
	return o, nil
}

func (s *Store) ListOrdersByBuyer(_ context.Context, buyerID string) ([]orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterOrders(func(o orders.Order) bool { return o.BuyerID == buyerID }), nil
}

func (s *Store) ListOrdersBySeller(_ context.Context, sellerID string, status orders.Status) ([]orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterOrders(func(o orders.Order) bool {
		return o.SellerID == sellerID && (status == "" || o.Status == status)
	}), nil
}

func (s *Store) ListSellerSales(_ context.Context, sellerID string, since time.Time) ([]orders.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.filterOrders(func(o orders.Order) bool {
		return o.SellerID == sellerID && !o.CreatedAt.Before(since)
	})
	out := make([]orders.Sale, 0, len(list))
	for _, o := range list {
		out = append(out, orders.Sale{Order: o, Category: s.st.books[o.BookID].Category})
	}
	return out, nil
}

// filterOrders returns matches newest first. Caller holds the lock.
func (s *Store) filterOrders(keep func(orders.Order) bool) []orders.Order {
	out := make([]orders.Order, 0)
	for _, o := range s.st.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Store) ListNotifications(_ context.Context, recipientID string) ([]orders.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]orders.Notification, 0)
	for _, n := range s.st.notifications {
		if n.RecipientUserID == recipientID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.st.notifSeq[out[i].ID] > s.st.notifSeq[out[j].ID]
	})
	return out, nil
}

func (s *Store) CountUnread(_ context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, x := range s.st.notifications {
		if x.RecipientUserID == recipientID && !x.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, recipientID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.st.notifications[notificationID]
	if !ok || n.RecipientUserID != recipientID {
		return orders.NotFoundf("notification %s", notificationID)
	}
	n.IsRead = true
	s.st.notifications[notificationID] = n
	return nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for id, n := range s.st.notifications {
		if n.RecipientUserID == recipientID && !n.IsRead {
			n.IsRead = true
			s.st.notifications[id] = n
			changed++
		}
	}
	return changed, nil
}

func (s *Store) SaveCheckoutFlag(_ context.Context, f orders.CheckoutFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.flags[f.CheckoutID]; ok {
		return nil
	}
	s.st.flags[f.CheckoutID] = f
	return nil
}

func (s *Store) ListCheckoutFlags(_ context.Context, buyerID string) ([]orders.CheckoutFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]orders.CheckoutFlag, 0)
	for _, f := range s.st.flags {
		if buyerID == "" || f.BuyerID == buyerID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---- tx ----

type tx struct{ st *state }

func (t *tx) LockBook(_ context.Context, id string) (orders.Book, error) {
	b, ok := t.st.books[id]
	if !ok {
		return orders.Book{}, orders.NotFoundf("book %s", id)
	}
	return b, nil
}

func (t *tx) AdjustStock(_ context.Context, bookID string, delta int) error {
	b, ok := t.st.books[bookID]
	if !ok {
		return orders.NotFoundf("book %s", bookID)
	}
	if b.Stock+delta < 0 {
		return &orders.InsufficientStockError{BookID: bookID, Requested: -delta, Available: b.Stock}
	}
	b.Stock += delta
	t.st.books[bookID] = b
	return nil
}

func (t *tx) InsertOrder(_ context.Context, o orders.Order) error {
	if _, ok := t.st.orders[o.ID]; ok {
		return orders.ErrConflict
	}
	t.st.seq++
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) LockOrder(_ context.Context, id string) (orders.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return orders.Order{}, orders.NotFoundf("order %s", id)
	}
	return o, nil
}

func (t *tx) UpdateOrderStatus(_ context.Context, id string, to orders.Status, at time.Time) error {
	o, ok := t.st.orders[id]
	if !ok {
		return orders.NotFoundf("order %s", id)
	}
	o.Status = to
	o.UpdatedAt = at
	t.st.orders[id] = o
	return nil
}

func (t *tx) InsertNotification(_ context.Context, n orders.Notification) error {
	t.st.seq++
	t.st.notifSeq[n.ID] = t.st.seq
	t.st.notifications[n.ID] = n
	return nil
}

func (t *tx) LockCartItem(_ context.Context, buyerID, bookID string) (orders.CartItem, bool, error) {
	it, ok := t.st.carts[buyerID][bookID]
	return it, ok, nil
}

func (t *tx) PutCartItem(_ context.Context, it orders.CartItem) error {
	items := t.st.carts[it.BuyerID]
	if items == nil {
		items = map[string]orders.CartItem{}
		t.st.carts[it.BuyerID] = items
	}
	items[it.BookID] = it
	return nil
}

func (t *tx) DeleteCartItem(_ context.Context, buyerID, bookID string) (bool, error) {
	items := t.st.carts[buyerID]
	if _, ok := items[bookID]; !ok {
		return false, nil
	}
	delete(items, bookID)
	return true, nil
}

func (t *tx) ClearCart(_ context.Context, buyerID string) error {
	delete(t.st.carts, buyerID)
	return nil
}
