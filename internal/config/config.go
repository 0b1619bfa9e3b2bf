package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dvloznov/academy-payments/internal/voucher"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// DBDriver is one of memory, sqlite, postgres, mysql.
	DBDriver string
	DBDSN    string

	GCSBucket    string
	BQProject    string
	BQDataset    string
	BQAuditTable string

	VoucherMaxFileSize   int64
	VoucherSizeBudget    int64
	VoucherMaxDimension  int
	VoucherThumbnailSize int
	VoucherTimeout       time.Duration
	VoucherWorkers       int

	// CatalogDefaults is parsed by catalog.Parse.
	CatalogDefaults string
	SweepInterval   time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment with defaults. A .env file
// in the working directory, when present, fills variables that are unset.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{}
	cfg.Port = getEnv("PORT", "8080")
	cfg.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	// uploads plus processing must fit in the write window
	cfg.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second)
	cfg.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	cfg.DBDriver = getEnv("DB_DRIVER", "sqlite")
	cfg.DBDSN = getEnv("DB_DSN", "file:academy_payments.db?cache=shared")

	cfg.GCSBucket = getEnv("GCS_BUCKET", "")
	cfg.BQProject = getEnv("BQ_PROJECT", "")
	cfg.BQDataset = getEnv("BQ_DATASET", "academy")
	cfg.BQAuditTable = getEnv("BQ_AUDIT_TABLE", "payment_audit_events")

	cfg.VoucherMaxFileSize = getEnvInt64("VOUCHER_MAX_FILE_SIZE", voucher.DefaultMaxFileSize)
	cfg.VoucherSizeBudget = getEnvInt64("VOUCHER_SIZE_BUDGET", voucher.DefaultSizeBudget)
	cfg.VoucherMaxDimension = getEnvInt("VOUCHER_MAX_DIMENSION", voucher.DefaultMaxDimension)
	cfg.VoucherThumbnailSize = getEnvInt("VOUCHER_THUMBNAIL_SIZE", voucher.DefaultThumbnailSize)
	cfg.VoucherTimeout = getEnvDuration("VOUCHER_TIMEOUT", voucher.DefaultTimeout)
	cfg.VoucherWorkers = getEnvInt("VOUCHER_WORKERS", 0)

	cfg.CatalogDefaults = getEnv("CATALOG_DEFAULTS", "")
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", time.Hour)

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "console")
	return cfg
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "memory", "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDriver != "memory" && c.DBDSN == "" {
		return fmt.Errorf("config: DB_DSN is required for %s", c.DBDriver)
	}
	if c.BQProject != "" && c.BQDataset == "" {
		return fmt.Errorf("config: BQ_DATASET is required when BQ_PROJECT is set")
	}
	return nil
}

// VoucherOptions maps the voucher settings onto processor options.
func (c Config) VoucherOptions() voucher.Options {
	return voucher.Options{
		MaxFileSize:   c.VoucherMaxFileSize,
		SizeBudget:    c.VoucherSizeBudget,
		MaxDimension:  c.VoucherMaxDimension,
		ThumbnailSize: c.VoucherThumbnailSize,
		Timeout:       c.VoucherTimeout,
		Workers:       c.VoucherWorkers,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			log.Printf("invalid integer for %s: %s", key, v)
			return def
		}
		return n
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		n, err := cast.ToInt64E(v)
		if err != nil {
			log.Printf("invalid integer for %s: %s", key, v)
			return def
		}
		return n
	}
	return def
}

// getEnvDuration accepts Go duration strings such as "30s" or "1h30m".
func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil || d <= 0 {
			log.Printf("invalid duration for %s: %s", key, v)
			return def
		}
		return d
	}
	return def
}
