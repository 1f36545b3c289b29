package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/go-book-marketplace/internal/memstore"
	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, stock int) (*Guard, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	st.PutBook(orders.Book{ID: "b1", Title: "Dune", Price: 299, Stock: stock, SellerID: "s1"})
	return New(st), st
}

func stockOf(t *testing.T, st *memstore.Store, id string) int {
	t.Helper()
	b, err := st.GetBook(context.Background(), id)
	require.NoError(t, err)
	return b.Stock
}

func TestReserveDecrements(t *testing.T) {
	g, st := setup(t, 5)
	require.NoError(t, g.Reserve(context.Background(), "b1", 2))
	assert.Equal(t, 3, stockOf(t, st, "b1"))
}

func TestReserveInsufficient(t *testing.T) {
	g, st := setup(t, 1)
	err := g.Reserve(context.Background(), "b1", 2)

	var ise *orders.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, 2, ise.Requested)
	assert.Equal(t, 1, ise.Available)
	assert.True(t, errors.Is(err, orders.ErrInsufficientStock))
	assert.Equal(t, 1, stockOf(t, st, "b1"))
}

func TestReserveValidation(t *testing.T) {
	g, _ := setup(t, 5)
	for _, q := range []int{0, -3} {
		err := g.Reserve(context.Background(), "b1", q)
		assert.ErrorIs(t, err, orders.ErrValidation)
	}
	assert.ErrorIs(t, g.Reserve(context.Background(), "missing", 1), orders.ErrNotFound)
}

func TestReleaseRestores(t *testing.T) {
	g, st := setup(t, 5)
	ctx := context.Background()
	require.NoError(t, g.Reserve(ctx, "b1", 4))
	require.NoError(t, g.Release(ctx, "b1", 4))
	assert.Equal(t, 5, stockOf(t, st, "b1"))
}

func TestCheckDoesNotMutate(t *testing.T) {
	g, st := setup(t, 2)
	_, err := g.Check(context.Background(), "b1", 2)
	require.NoError(t, err)
	_, err = g.Check(context.Background(), "b1", 3)
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)
	assert.Equal(t, 2, stockOf(t, st, "b1"))
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	const stock = 7
	g, st := setup(t, stock)

	var ok atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Reserve(context.Background(), "b1", 1); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(stock), ok.Load())
	assert.Equal(t, 0, stockOf(t, st, "b1"))
}
