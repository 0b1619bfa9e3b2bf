package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/logger"
	"github.com/shopspring/decimal"
)

type failingSink struct{ err error }

func (f failingSink) Record(ctx context.Context, ev Event) error { return f.err }

func testEvent(t *testing.T) Event {
	t.Helper()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec, err := domain.NewPaymentRecord("pay-1", "student-1", decimal.NewFromInt(50), "", at, at)
	if err != nil {
		t.Fatal(err)
	}
	from := rec.Status
	if err := rec.Submit(domain.MethodCash, nil, at); err != nil {
		t.Fatal(err)
	}
	return NewEvent(rec, domain.TransitionSubmit, from, "student-1", "", at)
}

func TestNewEvent(t *testing.T) {
	ev := testEvent(t)
	if ev.ID == "" {
		t.Error("Expected event ID")
	}
	if ev.From != "(pending, unset)" || ev.To != "(paid, pending_approval)" {
		t.Errorf("Unexpected states %s -> %s", ev.From, ev.To)
	}
	if ev.PaymentID != "pay-1" || ev.PayerSubjectID != "student-1" {
		t.Errorf("Unexpected subject fields: %+v", ev)
	}
}

func TestLogSink(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := NewLogSink(logger.NewWithWriter(buf))
	if err := sink.Record(context.Background(), testEvent(t)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`"payment_id":"pay-1"`, `"transition":"submit"`, "Payment transition"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in output, got: %s", want, out)
		}
	}
}

func TestMulti(t *testing.T) {
	mem := &MemorySink{}
	boom := errors.New("boom")
	m := Multi{failingSink{boom}, mem}

	err := m.Record(context.Background(), testEvent(t))
	if !errors.Is(err, boom) {
		t.Errorf("Expected joined error, got %v", err)
	}
	if len(mem.Events()) != 1 {
		t.Error("A failing sink must not stop the others")
	}
	if err := (Multi{mem}).Record(context.Background(), testEvent(t)); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}
