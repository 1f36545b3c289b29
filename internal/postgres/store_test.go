package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-book-marketplace/internal/cart"
	"github.com/ariefcatur/go-book-marketplace/internal/inventory"
	"github.com/ariefcatur/go-book-marketplace/internal/lifecycle"
	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/ariefcatur/go-book-marketplace/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a disposable database in POSTGRES_DSN_TEST.
func testStore(t *testing.T) (*postgres.Store, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN_TEST")
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	require.NoError(t, postgres.Migrate(dsn))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := postgres.Connect(ctx, dsn, postgres.PoolOptions{MaxConns: 16})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return &postgres.Store{DB: pool}, pool
}

func seedBook(t *testing.T, pool *pgxpool.Pool, stock int) string {
	t.Helper()
	id := "book-" + uuid.NewString()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO books(id, title, category, price, stock, seller_id) VALUES ($1, 'Dune', 'scifi', 299, $2, 'seller-1')`,
		id, stock)
	require.NoError(t, err)
	return id
}

func TestReserveNeverOversells(t *testing.T) {
	st, pool := testStore(t)
	const stock = 7
	bookID := seedBook(t, pool, stock)

	var wg sync.WaitGroup
	var mu sync.Mutex
	reserved := 0
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := inventory.New(st).Reserve(context.Background(), bookID, 1)
			if err == nil {
				mu.Lock()
				reserved++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, orders.ErrInsufficientStock)
		}()
	}
	wg.Wait()

	b, err := st.GetBook(context.Background(), bookID)
	require.NoError(t, err)
	assert.Equal(t, stock, reserved)
	assert.Equal(t, 0, b.Stock)
}

func TestOrderRoundTripAndCancel(t *testing.T) {
	st, pool := testStore(t)
	ctx := context.Background()
	bookID := seedBook(t, pool, 5)
	buyer := "buyer-" + uuid.NewString()

	now := time.Now().UTC().Truncate(time.Microsecond)
	o := orders.Order{
		ID: uuid.NewString(), BuyerID: buyer, SellerID: "seller-1", BookID: bookID, BookTitle: "Dune",
		Quantity: 2, TotalAmount: 598, ShippingAddress: "somewhere", Status: orders.StatusPending,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.WithTx(ctx, func(tx orders.Tx) error {
		if _, err := inventory.ReserveTx(ctx, tx, bookID, o.Quantity); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, o)
	}))

	err := st.WithTx(ctx, func(tx orders.Tx) error { return tx.InsertOrder(ctx, o) })
	assert.ErrorIs(t, err, orders.ErrConflict)

	got, err := st.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.TotalAmount, got.TotalAmount)
	assert.True(t, o.CreatedAt.Equal(got.CreatedAt))

	res, err := lifecycle.New(st, nil).Cancel(ctx, o.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Released)

	b, err := st.GetBook(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 5, b.Stock)

	ns, err := st.ListNotifications(ctx, "seller-1")
	require.NoError(t, err)
	require.NotEmpty(t, ns)
	assert.Equal(t, o.ID, *ns[0].RelatedID)
}

func TestRollbackLeavesNoTrace(t *testing.T) {
	st, pool := testStore(t)
	ctx := context.Background()
	bookID := seedBook(t, pool, 3)

	err := st.WithTx(ctx, func(tx orders.Tx) error {
		if _, err := inventory.ReserveTx(ctx, tx, bookID, 2); err != nil {
			return err
		}
		_, err := inventory.ReserveTx(ctx, tx, bookID, 2)
		return err
	})
	require.ErrorIs(t, err, orders.ErrInsufficientStock)

	b, err := st.GetBook(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Stock)
}

func TestConcurrentFirstAddsMerge(t *testing.T) {
	st, pool := testStore(t)
	bookID := seedBook(t, pool, 50)
	buyerID := "buyer-" + uuid.NewString()
	svc := cart.New(st, 0, 0)

	const adds = 8
	var wg sync.WaitGroup
	for i := 0; i < adds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(context.Background(), buyerID, bookID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	items, err := st.GetCart(context.Background(), buyerID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, adds, items[0].Quantity)
}
