// Package audit records committed payment transitions.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event describes one committed transition.
type Event struct {
	ID             string
	PaymentID      string
	PayerSubjectID string
	Transition     string
	From           string
	To             string
	Actor          string
	Reason         string
	At             time.Time
}

// NewEvent builds an Event with a fresh ID.
func NewEvent(rec *domain.PaymentRecord, transition string, from domain.Status, actor, reason string, at time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		PaymentID:      rec.ID,
		PayerSubjectID: rec.PayerSubjectID,
		Transition:     transition,
		From:           from.String(),
		To:             rec.Status.String(),
		Actor:          actor,
		Reason:         reason,
		At:             at,
	}
}

// Sink receives audit events. Record is called after the transition has been
// stored; an error never undoes it.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// LogSink writes events to a zerolog logger.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Record(ctx context.Context, ev Event) error {
	s.log.Info().
		Str("event_id", ev.ID).
		Str("payment_id", ev.PaymentID).
		Str("payer_subject_id", ev.PayerSubjectID).
		Str("transition", ev.Transition).
		Str("from", ev.From).
		Str("to", ev.To).
		Str("actor", ev.Actor).
		Str("reason", ev.Reason).
		Time("at", ev.At).
		Msg("Payment transition")
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps events in memory, in arrival order.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Record(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
