package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/academy-payments/internal/audit"
)

// DefaultAuditTable is used when no table name is configured.
const DefaultAuditTable = "payment_audit_events"

type AuditEventRow struct {
	EventID        string    `bigquery:"event_id"`         // REQUIRED
	PaymentID      string    `bigquery:"payment_id"`       // REQUIRED
	PayerSubjectID string    `bigquery:"payer_subject_id"` // REQUIRED
	Transition     string    `bigquery:"transition"`       // REQUIRED
	FromStatus     string    `bigquery:"from_status"`      // REQUIRED
	ToStatus       string    `bigquery:"to_status"`        // REQUIRED
	OccurredTS     time.Time `bigquery:"occurred_ts"`      // REQUIRED

	Actor  bigquery.NullString `bigquery:"actor"`  // NULLABLE
	Reason bigquery.NullString `bigquery:"reason"` // NULLABLE
}

func toAuditEventRow(ev audit.Event) *AuditEventRow {
	return &AuditEventRow{
		EventID:        ev.ID,
		PaymentID:      ev.PaymentID,
		PayerSubjectID: ev.PayerSubjectID,
		Transition:     ev.Transition,
		FromStatus:     ev.From,
		ToStatus:       ev.To,
		OccurredTS:     ev.At,
		Actor:          nullString(ev.Actor),
		Reason:         nullString(ev.Reason),
	}
}

func (r *AuditEventRow) toEvent() audit.Event {
	return audit.Event{
		ID:             r.EventID,
		PaymentID:      r.PaymentID,
		PayerSubjectID: r.PayerSubjectID,
		Transition:     r.Transition,
		From:           r.FromStatus,
		To:             r.ToStatus,
		Actor:          r.Actor.StringVal,
		Reason:         r.Reason.StringVal,
		At:             r.OccurredTS,
	}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
