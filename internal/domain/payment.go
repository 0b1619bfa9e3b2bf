package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/academy-payments/internal/voucher"
	"github.com/shopspring/decimal"
)

// Method is the channel a payer used.
type Method string

const (
	MethodCash     Method = "cash"
	MethodCard     Method = "card"
	MethodTransfer Method = "transfer"
)

// Valid reports whether m is one of the known channels.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodTransfer:
		return true
	}
	return false
}

// ParseMethod normalizes and validates a payment channel name.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
	}
	return m, nil
}

// Submission is the payer's live claim of payment.
type Submission struct {
	Method      Method
	PaidDate    *time.Time // cleared when the submission is rejected
	SubmittedAt time.Time
}

// Rejection is one entry of the rejection audit trail. Entries are never
// removed; a resubmission only clears the live rejection fields.
type Rejection struct {
	Reason     string
	RejectedBy string
	RejectedAt time.Time
	Method     Method
	FileName   string
}

// PaymentRecord holds the financial and lifecycle state of one obligation.
// Status, Submission, Attachment and the approval fields change only through
// the lifecycle methods in lifecycle.go.
type PaymentRecord struct {
	ID             string
	PayerSubjectID string
	Amount         decimal.Decimal
	CategoryRef    string
	DueDate        time.Time // calendar date, midnight UTC

	Status     Status
	Submission *Submission
	Attachment *voucher.Attachment

	ApprovedBy   string
	ApprovedDate *time.Time

	RejectionReason  string
	RejectedBy       string
	RejectedDate     *time.Time
	RejectionHistory []Rejection

	// Version increments on every stored mutation; stores use it for
	// optimistic concurrency checks.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPaymentRecord schedules a new obligation in the (pending, unset) state.
func NewPaymentRecord(id, payerSubjectID string, amount decimal.Decimal, categoryRef string, dueDate, now time.Time) (*PaymentRecord, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if strings.TrimSpace(payerSubjectID) == "" {
		return nil, fmt.Errorf("%w: payer subject is required", ErrInvalidRecord)
	}
	if dueDate.IsZero() {
		return nil, fmt.Errorf("%w: due date is required", ErrInvalidRecord)
	}
	return &PaymentRecord{
		ID:             id,
		PayerSubjectID: payerSubjectID,
		Amount:         amount,
		CategoryRef:    categoryRef,
		DueDate:        DateOf(dueDate),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// PaidDate returns the live submission's paid date, if any.
func (r *PaymentRecord) PaidDate() *time.Time {
	if r.Submission == nil {
		return nil
	}
	return r.Submission.PaidDate
}

// Clone returns a deep copy safe to mutate independently.
func (r *PaymentRecord) Clone() *PaymentRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Submission != nil {
		s := *r.Submission
		s.PaidDate = cloneTime(r.Submission.PaidDate)
		c.Submission = &s
	}
	if r.Attachment != nil {
		a := *r.Attachment
		c.Attachment = &a
	}
	c.ApprovedDate = cloneTime(r.ApprovedDate)
	c.RejectedDate = cloneTime(r.RejectedDate)
	if r.RejectionHistory != nil {
		c.RejectionHistory = append([]Rejection(nil), r.RejectionHistory...)
	}
	return &c
}

// Validate checks the cross-field invariants a stored record must satisfy.
func (r *PaymentRecord) Validate() error {
	if !validStatuses[r.Status] {
		return fmt.Errorf("%w: status %s", ErrInvalidRecord, r.Status)
	}
	approval := r.Status.Approval()
	if approval != ApprovalUnset && r.Submission == nil {
		return fmt.Errorf("%w: %s without submission", ErrInvalidRecord, approval)
	}
	if approval == ApprovalApproved && (r.Status.Timeliness() != TimelinessPaid || r.PaidDate() == nil) {
		return fmt.Errorf("%w: approved record is not paid", ErrInvalidRecord)
	}
	if approval == ApprovalRejected && r.PaidDate() != nil {
		return fmt.Errorf("%w: rejected record keeps a paid date", ErrInvalidRecord)
	}
	if r.Status.Timeliness() == TimelinessOverdue && r.PaidDate() != nil {
		return fmt.Errorf("%w: overdue record has a live payment", ErrInvalidRecord)
	}
	if a := r.Attachment; a != nil {
		if a.FinalByteSize > a.OriginalByteSize {
			return fmt.Errorf("%w: attachment grew from %d to %d bytes", ErrInvalidRecord, a.OriginalByteSize, a.FinalByteSize)
		}
		if !a.WasCompressed && a.FinalByteSize != a.OriginalByteSize {
			return fmt.Errorf("%w: uncompressed attachment changed size", ErrInvalidRecord)
		}
	}
	return nil
}

// DateOf truncates t to its calendar date, expressed as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
