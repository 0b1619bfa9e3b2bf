package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/academy-payments/internal/audit"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// RowInserter is the streaming-insert subset of *bigquery.Inserter.
type RowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// AuditSink streams audit events into a BigQuery table.
type AuditSink struct {
	client   *bigquery.Client
	inserter RowInserter
	dataset  string
	table    string
}

// NewAuditSink creates a sink with its own client. Close releases it.
func NewAuditSink(ctx context.Context, projectID, datasetID, tableID string) (*AuditSink, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewAuditSink: creating client: %w", err)
	}
	if tableID == "" {
		tableID = DefaultAuditTable
	}
	return &AuditSink{
		client:   client,
		inserter: client.Dataset(datasetID).Table(tableID).Inserter(),
		dataset:  datasetID,
		table:    tableID,
	}, nil
}

// NewAuditSinkWithInserter builds a sink over an existing inserter. The
// returned sink cannot run queries.
func NewAuditSinkWithInserter(inserter RowInserter) *AuditSink {
	return &AuditSink{inserter: inserter}
}

// Close closes the BigQuery client connection.
func (s *AuditSink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Record implements audit.Sink.
func (s *AuditSink) Record(ctx context.Context, ev audit.Event) error {
	if err := s.inserter.Put(ctx, toAuditEventRow(ev)); err != nil {
		return fmt.Errorf("Record: inserting audit event %s: %w", ev.ID, err)
	}
	return nil
}

// ListPaymentEvents returns the audit history of one payment, oldest first.
func (s *AuditSink) ListPaymentEvents(ctx context.Context, paymentID string) ([]audit.Event, error) {
	if s.client == nil {
		return nil, errors.New("ListPaymentEvents: sink has no query client")
	}
	query := fmt.Sprintf(`
		SELECT
			event_id,
			payment_id,
			payer_subject_id,
			transition,
			from_status,
			to_status,
			occurred_ts,
			actor,
			reason
		FROM `+"`%s.%s.%s`"+`
		WHERE payment_id = @payment_id
		ORDER BY occurred_ts ASC
	`, s.client.Project(), s.dataset, s.table)

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "payment_id", Value: paymentID},
	}
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListPaymentEvents: reading query: %w", err)
	}

	var events []audit.Event
	for {
		var row AuditEventRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListPaymentEvents: iterating: %w", err)
		}
		events = append(events, row.toEvent())
	}
	return events, nil
}

// EnsureAuditTable creates the audit table from AuditEventRow's schema,
// partitioned by day on occurred_ts. An existing table is left alone.
func EnsureAuditTable(ctx context.Context, client *bigquery.Client, datasetID, tableID string) error {
	if tableID == "" {
		tableID = DefaultAuditTable
	}
	schema, err := bigquery.InferSchema(AuditEventRow{})
	if err != nil {
		return fmt.Errorf("EnsureAuditTable: inferring schema: %w", err)
	}
	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "occurred_ts",
		},
	}
	err = client.Dataset(datasetID).Table(tableID).Create(ctx, meta)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("EnsureAuditTable: creating %s.%s: %w", datasetID, tableID, err)
	}
	return nil
}

// Ensure AuditSink implements audit.Sink.
var _ audit.Sink = (*AuditSink)(nil)
