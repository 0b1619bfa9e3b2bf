package payments

import (
	"strings"
	"time"

	"github.com/dvloznov/academy-payments/internal/domain"
)

// ApprovalWorkflow resolves pending submissions on behalf of an
// administrator, stamping who acted and when.
type ApprovalWorkflow struct {
	now func() time.Time
}

// NewApprovalWorkflow returns a workflow reading the time from now.
func NewApprovalWorkflow(now func() time.Time) *ApprovalWorkflow {
	return &ApprovalWorkflow{now: now}
}

// Approve marks rec approved by approverID.
func (w *ApprovalWorkflow) Approve(rec *domain.PaymentRecord, approverID string) error {
	return rec.Approve(strings.TrimSpace(approverID), w.now())
}

// Reject marks rec rejected. A blank reason fails with ErrMissingReason
// before the transition guard is consulted.
func (w *ApprovalWorkflow) Reject(rec *domain.PaymentRecord, reason, adminID string) error {
	if strings.TrimSpace(reason) == "" {
		return domain.ErrMissingReason
	}
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return domain.ErrMissingActor
	}
	return rec.Reject(reason, adminID, w.now())
}
