package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/academy-payments/internal/app"
	"github.com/dvloznov/academy-payments/internal/config"
	"github.com/dvloznov/academy-payments/internal/logger"
)

func main() {
	cfg := config.Load()

	var (
		interval = flag.Duration("interval", cfg.SweepInterval, "Time between overdue sweeps (or set SWEEP_INTERVAL env)")
		workers  = flag.Int("workers", 1, "Number of sweep worker goroutines")
	)
	flag.Parse()

	log := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	sweeps, err := application.StartSweeps(ctx, app.SweepOptions{Workers: *workers, Interval: *interval}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start sweep workers")
	}
	log.Info().Dur("interval", *interval).Int("workers", *workers).Str("db_driver", cfg.DBDriver).Msg("Worker service started")

	<-ctx.Done()
	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sweeps.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Sweeps did not stop cleanly")
	}
	log.Info().Msg("Worker service exited")
}
