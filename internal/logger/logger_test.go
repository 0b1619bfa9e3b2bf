package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected one JSON log line, got %q: %v", buf.String(), err)
	}
	return entry
}

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected logger to be enabled")
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)
	log.Info().Msg("voucher stored")

	entry := decodeLine(t, buf)
	if entry["message"] != "voucher stored" || entry["level"] != "info" {
		t.Errorf("Unexpected entry: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("Expected timestamp field")
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("from context")
	if buf.Len() == 0 {
		t.Error("Expected log output from the context logger")
	}

	if FromContext(context.Background()).GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestForRequest(t *testing.T) {
	buf := &bytes.Buffer{}
	log := ForRequest(NewWithWriter(buf), "req-1")
	log.Info().Msg("tagged")
	if entry := decodeLine(t, buf); entry["request_id"] != "req-1" {
		t.Errorf("Expected request_id, got %v", entry)
	}

	buf.Reset()
	log = ForRequest(NewWithWriter(buf), "")
	log.Info().Msg("untagged")
	if _, ok := decodeLine(t, buf)["request_id"]; ok {
		t.Error("Expected no request_id for an empty ID")
	}
}

func TestForPayment(t *testing.T) {
	buf := &bytes.Buffer{}
	log := ForPayment(NewWithWriter(buf), "p-1", "approve")
	log.Info().Msg("committed")
	entry := decodeLine(t, buf)
	if entry["payment_id"] != "p-1" || entry["transition"] != "approve" {
		t.Errorf("Unexpected entry: %v", entry)
	}

	buf.Reset()
	log = ForPayment(NewWithWriter(buf), "p-1", "")
	log.Info().Msg("read")
	if _, ok := decodeLine(t, buf)["transition"]; ok {
		t.Error("Expected no transition field")
	}
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		level, format string
		want          zerolog.Level
	}{
		{"debug", "json", zerolog.DebugLevel},
		{"WARN", "console", zerolog.WarnLevel},
		{"", "", zerolog.InfoLevel},
		{"loud", "json", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		log := NewFromConfig(tt.level, tt.format)
		if log.GetLevel() != tt.want {
			t.Errorf("NewFromConfig(%q, %q) level = %v, want %v", tt.level, tt.format, log.GetLevel(), tt.want)
		}
	}
}

func TestNop(t *testing.T) {
	if Nop().GetLevel() != zerolog.Disabled {
		t.Error("Expected Nop logger to be disabled")
	}
}
