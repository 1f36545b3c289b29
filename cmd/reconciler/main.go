package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-book-marketplace/internal/config"
	kafkax "github.com/ariefcatur/go-book-marketplace/internal/kafka"
	"github.com/ariefcatur/go-book-marketplace/internal/logx"
	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/ariefcatur/go-book-marketplace/internal/postgres"
	"github.com/ariefcatur/go-book-marketplace/internal/reconcile"
	"github.com/ariefcatur/go-book-marketplace/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-reconciler"
	logx.Setup(service, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: int32(cfg.ReconcilerWorkers) + 1})
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Fatal().Err(err).Msg("redis connect")
	}

	svc := reconcile.New(&postgres.Store{DB: db}, redisx.NewDedup(rdb, "reconciler"))
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, orders.TopicCheckoutEvents, cfg.ReconcilerWorkers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("group", cfg.ReconcilerGroup).Str("topic", orders.TopicCheckoutEvents).Int("workers", cfg.ReconcilerWorkers).Msg("reconciler consumer started")
		return cons.Start(gctx, svc.HandleMessage)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("consumer exit")
		os.Exit(1)
	}
	log.Info().Msg("reconciler stopped")
}
