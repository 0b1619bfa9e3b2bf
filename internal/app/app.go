// Package app wires the payment service from configuration for the
// binaries under cmd/.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/academy-payments/internal/audit"
	"github.com/dvloznov/academy-payments/internal/catalog"
	"github.com/dvloznov/academy-payments/internal/config"
	"github.com/dvloznov/academy-payments/internal/gcsuploader"
	infraBQ "github.com/dvloznov/academy-payments/internal/infra/bigquery"
	"github.com/dvloznov/academy-payments/internal/payments"
	"github.com/dvloznov/academy-payments/internal/store"
	"github.com/dvloznov/academy-payments/internal/store/gormstore"
	"github.com/dvloznov/academy-payments/internal/store/inmemory"
	"github.com/dvloznov/academy-payments/internal/voucher"
	"github.com/rs/zerolog"
)

// App holds the wired service and the resources it owns.
type App struct {
	Config  config.Config
	Service *payments.Service
	Store   store.PaymentStore
	// Archive is nil when no bucket is configured.
	Archive *gcsuploader.Archive
	// AuditSink is nil when BigQuery is not configured.
	AuditSink *infraBQ.AuditSink

	closers []func() error
}

// New builds the store, voucher processor, catalog, audit sinks and
// archive described by cfg. SQLite databases are migrated on open so a
// fresh local checkout works without running cmd/migrate.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg}

	st, err := a.openStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = st

	cat, err := catalog.Parse(cfg.CatalogDefaults)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: CATALOG_DEFAULTS: %w", err)
	}

	sinks := audit.Multi{audit.NewLogSink(log)}
	if cfg.BQProject != "" {
		sink, err := infraBQ.NewAuditSink(ctx, cfg.BQProject, cfg.BQDataset, cfg.BQAuditTable)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		a.AuditSink = sink
		a.closers = append(a.closers, sink.Close)
		sinks = append(sinks, sink)
	}

	deps := payments.Deps{
		Store:     st,
		Processor: voucher.NewProcessor(cfg.VoucherOptions()),
		Catalog:   cat,
		Audit:     sinks,
		Log:       log,
	}
	if cfg.GCSBucket != "" {
		objects, err := gcsuploader.NewGCSStorageService(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, objects.Close)
		a.Archive = gcsuploader.NewArchive(objects, cfg.GCSBucket)
		deps.Archive = a.Archive
	} else {
		log.Warn().Msg("No GCS bucket configured - approved vouchers will not be archived")
	}

	a.Service = payments.NewService(deps)
	return a, nil
}

func (a *App) openStore(cfg config.Config) (store.PaymentStore, error) {
	if cfg.DBDriver == "memory" {
		return inmemory.NewStore(), nil
	}
	db, err := gormstore.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.closers = append(a.closers, sqlDB.Close)

	if cfg.DBDriver == "sqlite" {
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("app: migrating sqlite: %w", err)
		}
	}
	return gormstore.New(db), nil
}

// Close releases every resource New opened.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
