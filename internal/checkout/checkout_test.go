package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ariefcatur/go-book-marketplace/internal/cart"
	"github.com/ariefcatur/go-book-marketplace/internal/memstore"
	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/ariefcatur/go-book-marketplace/internal/orders/orderstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buyer = "buyer-1"

type fixture struct {
	st   *memstore.Store
	cart *cart.Service
	o    *Orchestrator
	pub  *orderstest.RecordingPublisher
}

func setup(t *testing.T, stockX, stockY int) *fixture {
	t.Helper()
	st := memstore.New()
	st.PutBook(orders.Book{ID: "x", Title: "Dune", Category: "scifi", Price: 299, Stock: stockX, SellerID: "seller-x"})
	st.PutBook(orders.Book{ID: "y", Title: "Emma", Category: "classic", Price: 150, Stock: stockY, SellerID: "seller-y"})
	st.PutAddress(orders.Address{ID: "addr-1", UserID: buyer, FullName: "Ana Lima", Street: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "US", Phone: "555-0100"})
	st.PutAddress(orders.Address{ID: "addr-other", UserID: "someone-else", Street: "2 Side St"})
	pub := &orderstest.RecordingPublisher{}
	return &fixture{st: st, cart: cart.New(st, 50, 0), o: New(st, pub), pub: pub}
}

func (f *fixture) add(t *testing.T, buyerID, bookID string, qty int) {
	t.Helper()
	_, err := f.cart.AddItem(context.Background(), buyerID, bookID, qty)
	require.NoError(t, err)
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	b, err := f.st.GetBook(context.Background(), id)
	require.NoError(t, err)
	return b.Stock
}

func (f *fixture) cartItems(t *testing.T, buyerID string) []orders.CartItem {
	t.Helper()
	items, err := f.st.GetCart(context.Background(), buyerID)
	require.NoError(t, err)
	return items
}

func TestSingleLineCheckout(t *testing.T) {
	f := setup(t, 5, 5)
	f.add(t, buyer, "x", 2)

	res, err := f.o.Checkout(context.Background(), Request{BuyerID: buyer, AddressID: "addr-1", PaymentMethod: "cod"})
	require.NoError(t, err)

	assert.Equal(t, ResultCompleted, res.Status)
	require.Len(t, res.Orders, 1)
	ord := res.Orders[0]
	assert.Equal(t, int64(598), ord.TotalAmount)
	assert.Equal(t, 2, ord.Quantity)
	assert.Equal(t, "seller-x", ord.SellerID)
	assert.Equal(t, orders.StatusPending, ord.Status)
	assert.Equal(t, "Ana Lima, 1 Main St, Springfield, IL 62701, US (555-0100)", ord.ShippingAddress)
	assert.Equal(t, res.CheckoutID, ord.CheckoutID)
	assert.Empty(t, res.Failed)
	assert.True(t, res.CartCleared)

	assert.Equal(t, 3, f.stock(t, "x"))
	assert.Empty(t, f.cartItems(t, buyer))

	ns, err := f.st.ListNotifications(context.Background(), "seller-x")
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Contains(t, ns[0].Message, "New order")

	assert.Equal(t, []string{orders.EventOrderPlaced, orders.EventCheckoutCompleted}, f.pub.Types())
}

func TestPartialCheckoutKeepsFailedLines(t *testing.T) {
	f := setup(t, 1, 5)
	f.add(t, buyer, "x", 2)
	f.add(t, buyer, "y", 1)

	res, err := f.o.Checkout(context.Background(), Request{BuyerID: buyer, AddressID: "addr-1"})
	require.NoError(t, err)

	assert.Equal(t, ResultPartial, res.Status)
	require.Len(t, res.Orders, 1)
	assert.Equal(t, "y", res.Orders[0].BookID)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "x", res.Failed[0].BookID)
	assert.Equal(t, "insufficient_stock", res.Failed[0].Kind)
	require.NotNil(t, res.Failed[0].Available)
	assert.Equal(t, 1, *res.Failed[0].Available)
	assert.False(t, res.CartCleared)

	items := f.cartItems(t, buyer)
	require.Len(t, items, 1, "cart keeps only the failed line")
	assert.Equal(t, "x", items[0].BookID)
	assert.Equal(t, 2, items[0].Quantity)

	assert.Equal(t, 1, f.stock(t, "x"))
	assert.Equal(t, 4, f.stock(t, "y"))

	require.Len(t, f.pub.Events, 2)
	last := f.pub.Events[1]
	assert.Equal(t, orders.EventCheckoutPartial, last.Envelope.EventType)
	var p orders.CheckoutPayload
	require.NoError(t, json.Unmarshal(last.Envelope.Payload, &p))
	assert.Equal(t, res.CheckoutID, p.CheckoutID)
	require.Len(t, p.Failed, 1)
	assert.Equal(t, "x", p.Failed[0].BookID)
}

func TestAtomicCheckoutIsAllOrNothing(t *testing.T) {
	f := setup(t, 1, 5)
	f.add(t, buyer, "x", 2)
	f.add(t, buyer, "y", 1)

	res, err := f.o.Checkout(context.Background(), Request{BuyerID: buyer, AddressID: "addr-1", Mode: ModeAtomic})
	require.NoError(t, err)
	assert.Equal(t, ResultFailed, res.Status)
	assert.Empty(t, res.Orders)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "x", res.Failed[0].BookID)

	assert.Equal(t, 5, f.stock(t, "y"), "no line commits when one fails")
	assert.Len(t, f.cartItems(t, buyer), 2)
	assert.Empty(t, f.pub.Events)
}

func TestAtomicCheckoutSuccess(t *testing.T) {
	f := setup(t, 5, 5)
	f.add(t, buyer, "x", 2)
	f.add(t, buyer, "y", 3)

	res, err := f.o.Checkout(context.Background(), Request{BuyerID: buyer, AddressID: "addr-1", Mode: ModeAtomic})
	require.NoError(t, err)
	assert.Equal(t, ResultCompleted, res.Status)
	require.Len(t, res.Orders, 2, "one order per book and seller")
	assert.NotEqual(t, res.Orders[0].SellerID, res.Orders[1].SellerID)
	assert.Equal(t, 3, f.stock(t, "x"))
	assert.Equal(t, 2, f.stock(t, "y"))
	assert.Empty(t, f.cartItems(t, buyer))
}

// lateAddStore puts another book in the cart right after checkout reads it.
type lateAddStore struct {
	*memstore.Store
	late func()
}

func (s *lateAddStore) GetCart(ctx context.Context, buyerID string) ([]orders.CartItem, error) {
	items, err := s.Store.GetCart(ctx, buyerID)
	if s.late != nil {
		s.late()
		s.late = nil
	}
	return items, err
}

func TestCheckoutKeepsLinesAddedMeanwhile(t *testing.T) {
	f := setup(t, 5, 5)
	st := &lateAddStore{Store: f.st}

	for _, mode := range []Mode{ModePerLine, ModeAtomic} {
		t.Run(string(mode), func(t *testing.T) {
			f.add(t, buyer, "x", 1)
			st.late = func() { f.add(t, buyer, "y", 1) }
			res, err := New(st, nil).Checkout(context.Background(), Request{BuyerID: buyer, AddressID: "addr-1", Mode: mode})
			require.NoError(t, err)
			assert.Equal(t, ResultCompleted, res.Status)
			require.Len(t, res.Orders, 1)
			assert.Equal(t, "x", res.Orders[0].BookID)

			items := f.cartItems(t, buyer)
			require.Len(t, items, 1, "a line that was never ordered stays in the cart")
			assert.Equal(t, "y", items[0].BookID)
			require.NoError(t, f.cart.Clear(context.Background(), buyer))
		})
	}
}

// noClearStore fails any whole-cart clear.
type noClearStore struct{ *memstore.Store }

type noClearTx struct{ orders.Tx }

func (noClearTx) ClearCart(context.Context, string) error { return errors.New("db blip") }

func (s noClearStore) WithTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx orders.Tx) error { return fn(noClearTx{tx}) })
}

func TestAtomicCheckoutRemovesOrderedLinesInSameTx(t *testing.T) {
	f := setup(t, 5, 5)
	f.add(t, buyer, "x", 1)
	f.add(t, buyer, "y", 2)

	res, err := New(noClearStore{f.st}, nil).Checkout(context.Background(), Request{BuyerID: buyer, AddressID: "addr-1", Mode: ModeAtomic})
	require.NoError(t, err)
	assert.Equal(t, ResultCompleted, res.Status)
	assert.Len(t, res.Orders, 2)
	assert.True(t, res.CartCleared)
	assert.Empty(t, f.cartItems(t, buyer))
}

func TestCheckoutRejectsBeforeAttempting(t *testing.T) {
	f := setup(t, 5, 5)

	_, err := f.o.Checkout(context.Background(), Request{BuyerID: buyer, AddressID: "addr-1"})
	assert.ErrorIs(t, err, orders.ErrValidation, "empty cart")

	f.add(t, buyer, "x", 1)
	_, err = f.o.Checkout(context.Background(), Request{BuyerID: buyer, AddressID: "addr-other"})
	assert.ErrorIs(t, err, orders.ErrNotFound, "address must belong to the buyer")

	_, err = f.o.Checkout(context.Background(), Request{BuyerID: buyer, AddressID: "addr-1", Mode: "yolo"})
	assert.ErrorIs(t, err, orders.ErrValidation)

	assert.Equal(t, 5, f.stock(t, "x"))
	assert.Len(t, f.cartItems(t, buyer), 1)
}

func TestCheckoutMissingBookIsLineFailure(t *testing.T) {
	f := setup(t, 5, 5)
	f.add(t, buyer, "x", 1)
	f.add(t, buyer, "y", 1)
	f.st.DeleteBook("x")

	res, err := f.o.Checkout(context.Background(), Request{BuyerID: buyer, AddressID: "addr-1"})
	require.NoError(t, err)
	assert.Equal(t, ResultPartial, res.Status)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "not_found", res.Failed[0].Kind)
}

func TestTotalAmountSurvivesPriceChange(t *testing.T) {
	f := setup(t, 5, 5)
	f.add(t, buyer, "x", 2)
	res, err := f.o.Checkout(context.Background(), Request{BuyerID: buyer, AddressID: "addr-1"})
	require.NoError(t, err)
	id := res.Orders[0].ID

	f.st.SetPrice("x", 999)
	o, err := f.st.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(598), o.TotalAmount)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	const stock = 5
	f := setup(t, stock, 5)
	const buyers = 12
	for i := 0; i < buyers; i++ {
		id := buyerName(i)
		f.st.PutAddress(orders.Address{ID: "addr-" + id, UserID: id, Street: "x"})
		f.add(t, id, "x", 1)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := f.o.Checkout(context.Background(), Request{BuyerID: id, AddressID: "addr-" + id})
			if err != nil {
				return
			}
			mu.Lock()
			for _, o := range res.Orders {
				committed += o.Quantity
			}
			mu.Unlock()
		}(buyerName(i))
	}
	wg.Wait()

	assert.Equal(t, stock, committed)
	assert.Equal(t, 0, f.stock(t, "x"))
}

func buyerName(i int) string { return "buyer-" + string(rune('a'+i)) }

type memIdem struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memIdem) Begin(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	switch {
	case !ok:
		m.data[key] = nil
		return nil, nil
	case v == nil:
		return nil, orders.ErrConflict
	}
	return v, nil
}

func (m *memIdem) Complete(_ context.Context, key string, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = result
	return nil
}

func (m *memIdem) Abort(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestIdempotentReplay(t *testing.T) {
	f := setup(t, 5, 5)
	idem := &memIdem{data: map[string][]byte{}}
	f.o.Idempotency = idem
	f.add(t, buyer, "x", 2)

	req := Request{BuyerID: buyer, AddressID: "addr-1", IdempotencyKey: "k1"}
	first, err := f.o.Checkout(context.Background(), req)
	require.NoError(t, err)

	f.add(t, buyer, "x", 1)
	second, err := f.o.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.CheckoutID, second.CheckoutID)
	assert.Equal(t, 3, f.stock(t, "x"), "replay must not reserve again")

	idem.data[buyer+":k2"] = nil
	_, err = f.o.Checkout(context.Background(), Request{BuyerID: buyer, AddressID: "addr-1", IdempotencyKey: "k2"})
	assert.ErrorIs(t, err, orders.ErrConflict)
}

func TestIdempotencyKeyReleasedOnError(t *testing.T) {
	f := setup(t, 5, 5)
	idem := &memIdem{data: map[string][]byte{}}
	f.o.Idempotency = idem

	_, err := f.o.Checkout(context.Background(), Request{BuyerID: buyer, AddressID: "addr-1", IdempotencyKey: "k"})
	require.ErrorIs(t, err, orders.ErrValidation)
	_, held := idem.data[buyer+":k"]
	assert.False(t, held)
}

func TestPlaceOrder(t *testing.T) {
	f := setup(t, 5, 5)
	ctx := context.Background()

	want := int64(299 * 3)
	ord, err := f.o.PlaceOrder(ctx, PlaceRequest{BuyerID: buyer, BookID: "x", Quantity: 3, AddressID: "addr-1", ExpectedTotal: &want})
	require.NoError(t, err)
	assert.Equal(t, want, ord.TotalAmount)
	assert.Equal(t, 2, f.stock(t, "x"))

	stale := int64(100)
	_, err = f.o.PlaceOrder(ctx, PlaceRequest{BuyerID: buyer, BookID: "x", Quantity: 1, AddressID: "addr-1", ExpectedTotal: &stale})
	assert.ErrorIs(t, err, orders.ErrValidation)
	assert.Equal(t, 2, f.stock(t, "x"), "rejected placement rolls back the reservation")

	_, err = f.o.PlaceOrder(ctx, PlaceRequest{BuyerID: buyer, BookID: "x", Quantity: 3, AddressID: "addr-1"})
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)

	_, err = f.o.PlaceOrder(ctx, PlaceRequest{BuyerID: "seller-x", BookID: "x", Quantity: 1, AddressID: "addr-1"})
	assert.ErrorIs(t, err, orders.ErrNotFound, "address belongs to someone else")

	_, err = f.o.PlaceOrder(ctx, PlaceRequest{BuyerID: buyer, BookID: "x", Quantity: 0, AddressID: "addr-1"})
	assert.ErrorIs(t, err, orders.ErrValidation)
}
