package domain

import "fmt"

// Timeliness describes where an obligation stands against its due date.
type Timeliness int

const (
	// TimelinessPending means not yet paid and not past due.
	TimelinessPending Timeliness = iota
	// TimelinessPaid means the payer has a live submission.
	TimelinessPaid
	// TimelinessOverdue means unpaid and past the due date.
	TimelinessOverdue
)

func (t Timeliness) String() string {
	switch t {
	case TimelinessPending:
		return "pending"
	case TimelinessPaid:
		return "paid"
	case TimelinessOverdue:
		return "overdue"
	default:
		return fmt.Sprintf("timeliness(%d)", int(t))
	}
}

// Approval is the administrator's disposition of a submission.
type Approval int

const (
	// ApprovalUnset means nothing has been submitted yet.
	ApprovalUnset Approval = iota
	// ApprovalPending means a submission waits for an administrator.
	ApprovalPending
	// ApprovalApproved is the terminal success state.
	ApprovalApproved
	// ApprovalRejected returns the record to awaiting payment.
	ApprovalRejected
)

func (a Approval) String() string {
	switch a {
	case ApprovalUnset:
		return "unset"
	case ApprovalPending:
		return "pending_approval"
	case ApprovalApproved:
		return "approved"
	case ApprovalRejected:
		return "rejected"
	default:
		return fmt.Sprintf("approval(%d)", int(a))
	}
}

// ParseApproval parses the String form of an Approval.
func ParseApproval(s string) (Approval, error) {
	switch s {
	case "unset", "":
		return ApprovalUnset, nil
	case "pending_approval":
		return ApprovalPending, nil
	case "approved":
		return ApprovalApproved, nil
	case "rejected":
		return ApprovalRejected, nil
	}
	return 0, fmt.Errorf("ParseApproval: unknown approval %q", s)
}

// ParseTimeliness parses the String form of a Timeliness.
func ParseTimeliness(s string) (Timeliness, error) {
	switch s {
	case "pending", "":
		return TimelinessPending, nil
	case "paid":
		return TimelinessPaid, nil
	case "overdue":
		return TimelinessOverdue, nil
	}
	return 0, fmt.Errorf("ParseTimeliness: unknown timeliness %q", s)
}

// Status is the combined (timeliness, approval) state of a payment.
// The zero value is the initial (pending, unset) state. Other values are
// produced only by lifecycle transitions or by ParseStatus, so an invalid
// combination cannot be built directly.
type Status struct {
	timeliness Timeliness
	approval   Approval
}

// Timeliness returns the due-date standing.
func (s Status) Timeliness() Timeliness { return s.timeliness }

// Approval returns the approval disposition.
func (s Status) Approval() Approval { return s.approval }

func (s Status) String() string {
	return "(" + s.timeliness.String() + ", " + s.approval.String() + ")"
}

// Sweepable reports whether the due-date evaluator may touch a record in this state.
func (s Status) Sweepable() bool {
	return s.approval == ApprovalUnset || s.approval == ApprovalRejected
}

var validStatuses = map[Status]bool{
	{TimelinessPending, ApprovalUnset}:    true,
	{TimelinessOverdue, ApprovalUnset}:    true,
	{TimelinessPaid, ApprovalPending}:     true,
	{TimelinessPaid, ApprovalApproved}:    true,
	{TimelinessPending, ApprovalRejected}: true,
	// A rejected submission counts as no payment, so the sweep may mark it overdue.
	{TimelinessOverdue, ApprovalRejected}: true,
}

// ParseStatus rebuilds a Status from its persisted parts, refusing
// combinations the lifecycle can never reach.
func ParseStatus(timeliness, approval string) (Status, error) {
	t, err := ParseTimeliness(timeliness)
	if err != nil {
		return Status{}, err
	}
	a, err := ParseApproval(approval)
	if err != nil {
		return Status{}, err
	}
	s := Status{timeliness: t, approval: a}
	if !validStatuses[s] {
		return Status{}, fmt.Errorf("ParseStatus: invalid combination %s", s)
	}
	return s, nil
}
