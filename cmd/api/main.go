package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-book-marketplace/internal/analytics"
	"github.com/ariefcatur/go-book-marketplace/internal/cart"
	"github.com/ariefcatur/go-book-marketplace/internal/checkout"
	"github.com/ariefcatur/go-book-marketplace/internal/config"
	"github.com/ariefcatur/go-book-marketplace/internal/httpx"
	kafkax "github.com/ariefcatur/go-book-marketplace/internal/kafka"
	"github.com/ariefcatur/go-book-marketplace/internal/lifecycle"
	"github.com/ariefcatur/go-book-marketplace/internal/logx"
	"github.com/ariefcatur/go-book-marketplace/internal/memstore"
	"github.com/ariefcatur/go-book-marketplace/internal/metrics"
	"github.com/ariefcatur/go-book-marketplace/internal/notify"
	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/ariefcatur/go-book-marketplace/internal/postgres"
	"github.com/ariefcatur/go-book-marketplace/internal/redisx"
	"github.com/ariefcatur/go-book-marketplace/internal/session"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logx.Setup(cfg.ServiceName, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	var store orders.Store
	switch cfg.StoreDriver {
	case "memory":
		mem := memstore.New()
		mem.SeedDemo()
		store = mem
		log.Warn().Msg("using in-memory store; data is lost on exit")
	default:
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
				log.Fatal().Err(err).Msg("migrate")
			}
		}
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{})
		if err != nil {
			log.Fatal().Err(err).Msg("db connect")
		}
		defer db.Close()
		store = &postgres.Store{DB: db}
	}

	// Events
	var pub orders.Publisher = orders.NopPublisher{}
	var prod *kafkax.Producer
	if cfg.EventsEnabled {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024)
		prod.Start()
		pub = kafkax.NewEnvelopePublisher(prod)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(cfg.ServiceName, reg)

	co := checkout.New(store, pub)
	co.Metrics, co.Service = m, cfg.ServiceName
	if cfg.RedisAddr != "" && cfg.StoreDriver != "memory" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			log.Warn().Err(err).Msg("redis unavailable; checkout idempotency keys are ignored")
		} else {
			co.Idempotency = redisx.NewCheckoutIdempotency(rdb, cfg.CheckoutIdempotencyTTL)
		}
	}

	lc := lifecycle.New(store, pub)
	lc.Metrics, lc.Service = m, cfg.ServiceName

	router := httpx.NewRouter(m, session.NewVerifier(cfg.JWTSecret),
		&httpx.CartHandler{Cart: cart.New(store, cfg.DeliveryFee, cfg.FreeDeliveryThreshold)},
		&httpx.OrdersHandler{Store: store, Checkout: co, Lifecycle: lc},
		&httpx.NotificationsHandler{Notify: notify.New(store)},
		&httpx.AnalyticsHandler{Analytics: analytics.New(store)},
	)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exit")
	}

	if prod != nil {
		prod.Close() // flush buffered events
		prod.WaitClosed()
	}
}
