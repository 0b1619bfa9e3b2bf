package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

// LoggerKey holds the request or job logger in a context.
const LoggerKey ContextKey = "logger"

// New returns the console logger used by the binaries by default.
func New() zerolog.Logger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
}

// NewWithWriter returns a JSON logger writing to w.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// NewFromConfig builds the process logger from LOG_LEVEL and LOG_FORMAT.
// format "json" writes one object per line; anything else is console output.
// An unknown level falls back to info.
func NewFromConfig(level, format string) zerolog.Logger {
	log := New()
	if strings.EqualFold(format, "json") {
		log = NewWithWriter(os.Stdout)
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return log.Level(lvl)
}

// Nop discards everything.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// WithContext stores log in ctx.
func WithContext(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, log)
}

// FromContext returns the logger stored in ctx, or New() if there is none.
func FromContext(ctx context.Context) zerolog.Logger {
	if log, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return log
	}
	return New()
}

// ForRequest tags log with an HTTP request ID. An empty ID leaves it as is.
func ForRequest(log zerolog.Logger, requestID string) zerolog.Logger {
	if requestID == "" {
		return log
	}
	return log.With().Str("request_id", requestID).Logger()
}

// ForPayment tags log with the payment and, when set, the transition being
// applied to it.
func ForPayment(log zerolog.Logger, paymentID, transition string) zerolog.Logger {
	c := log.With().Str("payment_id", paymentID)
	if transition != "" {
		c = c.Str("transition", transition)
	}
	return c.Logger()
}
