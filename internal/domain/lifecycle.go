package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/academy-payments/internal/voucher"
)

// Transition names, used in errors and audit events.
const (
	TransitionCreate    = "create"
	TransitionSubmit    = "submit"
	TransitionApprove   = "approve"
	TransitionReject    = "reject"
	TransitionRecompute = "recompute_timeliness"
)

// Every transition checks its guard and validates its arguments before
// touching the record, so a failed call leaves the record unchanged.

// Submit records a payer submission. Legal from unset or rejected. A
// resubmission replaces the previous submission and attachment and clears
// the live rejection fields; RejectionHistory is kept.
func (r *PaymentRecord) Submit(method Method, attachment *voucher.Attachment, at time.Time) error {
	if a := r.Status.approval; a != ApprovalUnset && a != ApprovalRejected {
		return &TransitionError{Transition: TransitionSubmit, From: r.Status}
	}
	if !method.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	paid := at
	r.Submission = &Submission{Method: method, PaidDate: &paid, SubmittedAt: at}
	r.Attachment = attachment
	r.Status = Status{timeliness: TimelinessPaid, approval: ApprovalPending}
	r.RejectionReason = ""
	r.RejectedBy = ""
	r.RejectedDate = nil
	r.UpdatedAt = at
	return nil
}

// Approve resolves a pending submission as approved.
func (r *PaymentRecord) Approve(approverID string, at time.Time) error {
	if r.Status.approval != ApprovalPending {
		return &TransitionError{Transition: TransitionApprove, From: r.Status}
	}
	if strings.TrimSpace(approverID) == "" {
		return ErrMissingActor
	}

	approved := at
	r.Status = Status{timeliness: TimelinessPaid, approval: ApprovalApproved}
	r.ApprovedBy = approverID
	r.ApprovedDate = &approved
	r.UpdatedAt = at
	return nil
}

// Reject resolves a pending submission as rejected. The record returns to
// awaiting payment and the submission's paid date is cleared.
func (r *PaymentRecord) Reject(reason, rejectedBy string, at time.Time) error {
	if r.Status.approval != ApprovalPending {
		return &TransitionError{Transition: TransitionReject, From: r.Status}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrMissingReason
	}
	if r.Submission == nil {
		return fmt.Errorf("%w: pending approval without submission", ErrInvalidRecord)
	}

	rejected := at
	entry := Rejection{
		Reason:     reason,
		RejectedBy: rejectedBy,
		RejectedAt: at,
		Method:     r.Submission.Method,
	}
	if r.Attachment != nil {
		entry.FileName = r.Attachment.FileName
	}

	r.Status = Status{timeliness: TimelinessPending, approval: ApprovalRejected}
	r.Submission.PaidDate = nil
	r.RejectionReason = reason
	r.RejectedBy = rejectedBy
	r.RejectedDate = &rejected
	r.RejectionHistory = append(r.RejectionHistory, entry)
	r.UpdatedAt = at
	return nil
}

// RecomputeTimeliness flips an unpaid record between pending and overdue
// depending on whether today is a later calendar day than the due date.
// It never touches a record with a live or approved submission. The
// returned bool reports whether the status changed.
func (r *PaymentRecord) RecomputeTimeliness(today time.Time) (bool, error) {
	if !r.Status.Sweepable() {
		return false, &TransitionError{Transition: TransitionRecompute, From: r.Status}
	}

	next := TimelinessPending
	if DateOf(today).After(DateOf(r.DueDate)) {
		next = TimelinessOverdue
	}
	if next == r.Status.timeliness {
		return false, nil
	}
	r.Status = Status{timeliness: next, approval: r.Status.approval}
	return true, nil
}
