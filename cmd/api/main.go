package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/academy-payments/internal/api"
	"github.com/dvloznov/academy-payments/internal/api/handlers"
	"github.com/dvloznov/academy-payments/internal/app"
	"github.com/dvloznov/academy-payments/internal/config"
	"github.com/dvloznov/academy-payments/internal/logger"
)

func main() {
	cfg := config.Load()

	var (
		port     = flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
		schedule = flag.Bool("schedule", true, "Run the periodic overdue sweep in this process")
	)
	flag.Parse()
	cfg.Port = *port

	log := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	opts := app.SweepOptions{Workers: 1}
	if *schedule {
		opts.Interval = cfg.SweepInterval
	}
	sweeps, err := application.StartSweeps(ctx, opts, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start sweep workers")
	}

	paymentsHandler := handlers.NewPaymentsHandler(application.Service, sweeps.Queue, cfg.VoucherMaxFileSize, log)
	jobsHandler := handlers.NewJobsHandler(sweeps.Jobs, log)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(paymentsHandler, jobsHandler, log),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("db_driver", cfg.DBDriver).Bool("schedule", *schedule).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := sweeps.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Sweeps did not stop cleanly")
	}
	log.Info().Msg("Server exited")
}
