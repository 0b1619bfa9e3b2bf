// Package store defines persistence for payment records.
package store

import (
	"context"
	"errors"

	"github.com/dvloznov/academy-payments/internal/domain"
)

var (
	ErrNotFound = errors.New("payment not found")
	// ErrVersionConflict means the record changed since it was loaded.
	ErrVersionConflict = errors.New("payment was modified concurrently")
	ErrAlreadyExists   = errors.New("payment already exists")
)

// PaymentStore persists payment records. Implementations return copies so
// callers can mutate what they receive without affecting stored state.
type PaymentStore interface {
	// Create stores a new record at version 1.
	Create(ctx context.Context, rec *domain.PaymentRecord) error

	// Get loads a record by ID.
	Get(ctx context.Context, id string) (*domain.PaymentRecord, error)

	// Update replaces a record if its stored version still equals
	// rec.Version, then increments rec.Version. A mismatch returns
	// ErrVersionConflict and leaves the stored record unchanged.
	Update(ctx context.Context, rec *domain.PaymentRecord) error

	// List returns records matching filter, ordered by due date then ID.
	List(ctx context.Context, filter Filter) ([]*domain.PaymentRecord, error)
}

// Filter narrows List. Zero fields do not filter.
type Filter struct {
	PayerSubjectID  string
	// Approvals keeps records whose approval is any of the listed values.
	Approvals       []domain.Approval
	// OmitVoucherData leaves Attachment.EncodedImage and Thumbnail empty.
	// Attachment metadata is still returned.
	OmitVoucherData bool
	Limit           int
	Offset          int
}

// SweepableApprovals selects the records the due-date evaluator may touch.
var SweepableApprovals = []domain.Approval{domain.ApprovalUnset, domain.ApprovalRejected}

// Matches reports whether rec passes the non-paging filter fields.
func (f Filter) Matches(rec *domain.PaymentRecord) bool {
	if f.PayerSubjectID != "" && rec.PayerSubjectID != f.PayerSubjectID {
		return false
	}
	if len(f.Approvals) == 0 {
		return true
	}
	for _, a := range f.Approvals {
		if rec.Status.Approval() == a {
			return true
		}
	}
	return false
}
