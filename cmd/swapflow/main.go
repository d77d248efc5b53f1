package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solrouter/swapflow/internal/api"
	"github.com/solrouter/swapflow/internal/config"
	"github.com/solrouter/swapflow/internal/dispatch"
	"github.com/solrouter/swapflow/internal/order"
	"github.com/solrouter/swapflow/internal/pipeline"
	"github.com/solrouter/swapflow/internal/router"
	"github.com/solrouter/swapflow/internal/settlement"
	"github.com/solrouter/swapflow/internal/store"
	"github.com/solrouter/swapflow/internal/venue"
	"github.com/solrouter/swapflow/internal/ws"
	"github.com/solrouter/swapflow/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (yaml)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer zlog.Sync()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("swapflow exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}

	seed := time.Now().UnixNano()
	venueA := venue.NewSimVenue(order.VenueRaydium, simVenueConfig(cfg.Venues.Raydium), seed, zlog)
	venueB := venue.NewSimVenue(order.VenueMeteora, simVenueConfig(cfg.Venues.Meteora), seed+1, zlog)
	rtr := router.New(venueA, venueB, zlog)

	executor := settlement.NewSimExecutor(settlement.SimConfig{
		MinDelay:   cfg.Execution.MinDelay,
		MaxDelay:   cfg.Execution.MaxDelay,
		RevertRate: cfg.Execution.RevertRate,
	}, seed+2, zlog)

	hub := ws.NewHub(zlog)
	pipe := pipeline.New(pipeline.Config{BuildDelay: cfg.Execution.BuildDelay}, rtr, executor, st, hub, zlog)

	var journal *dispatch.Journal
	if cfg.Dispatcher.JournalDir != "" {
		if err := os.MkdirAll(cfg.Dispatcher.JournalDir, 0o755); err != nil {
			return err
		}
		journal, err = dispatch.OpenJournal(cfg.Dispatcher.JournalDir)
		if err != nil {
			return err
		}
	}

	dispatcher := dispatch.New(dispatch.Config{
		Workers:     cfg.Dispatcher.Workers,
		QueueSize:   cfg.Dispatcher.QueueSize,
		MaxAttempts: cfg.Dispatcher.MaxAttempts,
		BackoffBase: cfg.Dispatcher.BackoffBase,
		BackoffMax:  cfg.Dispatcher.BackoffMax,
	}, pipe, journal, zlog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatcher.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewServer(zlog, dispatcher, st, hub).Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		zlog.Info("swapflow listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("http shutdown", zap.Error(err))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("dispatcher shutdown", zap.Error(err))
	}
	return nil
}

func simVenueConfig(vc config.VenueConfig) venue.SimConfig {
	return venue.SimConfig{
		BasePrice:       decimal.NewFromFloat(vc.BasePrice),
		Bias:            vc.Bias,
		Spread:          vc.Spread,
		Fee:             decimal.NewFromFloat(vc.Fee),
		Latency:         vc.Latency,
		UnavailableRate: vc.UnavailableRate,
	}
}
