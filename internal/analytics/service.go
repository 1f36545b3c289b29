package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	Store orders.Store
	Now   func() time.Time
}

func New(store orders.Store) *Service { return &Service{Store: store} }

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

func requireSeller(sellerID string) error {
	if strings.TrimSpace(sellerID) == "" {
		return orders.Validationf("seller is required")
	}
	return nil
}

// Dashboard loads the window and the revenue months side by side, then
// projects them.
func (s *Service) Dashboard(ctx context.Context, sellerID string, rng Range, limit int) (Dashboard, error) {
	if err := requireSeller(sellerID); err != nil {
		return Dashboard{}, err
	}
	now := s.now()

	var inRange, recent []orders.Sale
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inRange, err = s.Store.ListSellerSales(gctx, sellerID, rng.Since(now))
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.Store.ListSellerSales(gctx, sellerID, revenueWindowStart(now))
		return err
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("seller_id", sellerID).Msg("analytics: load sales")
		return Dashboard{}, err
	}
	return Compute(rng, inRange, recent, now, limit), nil
}

func (s *Service) TopBooks(ctx context.Context, sellerID string, rng Range, limit int) ([]TopBook, error) {
	if err := requireSeller(sellerID); err != nil {
		return nil, err
	}
	sales, err := s.Store.ListSellerSales(ctx, sellerID, rng.Since(s.now()))
	if err != nil {
		return nil, err
	}
	return TopBooks(sales, limit), nil
}

// CategoryStats covers the seller's whole history.
func (s *Service) CategoryStats(ctx context.Context, sellerID string) ([]CategorySale, error) {
	if err := requireSeller(sellerID); err != nil {
		return nil, err
	}
	sales, err := s.Store.ListSellerSales(ctx, sellerID, time.Time{})
	if err != nil {
		return nil, err
	}
	return CategorySales(sales), nil
}
