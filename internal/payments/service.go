// Package payments exposes the payment operations used by the HTTP API,
// the CLI and the sweep worker. Every mutation of a record goes through
// Service.mutate, which holds the record's lock from load to save.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/academy-payments/internal/audit"
	"github.com/dvloznov/academy-payments/internal/catalog"
	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/identity"
	"github.com/dvloznov/academy-payments/internal/logger"
	"github.com/dvloznov/academy-payments/internal/store"
	"github.com/dvloznov/academy-payments/internal/voucher"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrNoVoucher is returned when a record has no stored voucher image or
// thumbnail.
var ErrNoVoucher = errors.New("payment has no voucher")

// SystemActor is the audit actor for sweeps.
const SystemActor = "system"

// errNoChange aborts a mutation that would not modify the record.
var errNoChange = errors.New("no change")

// VoucherProcessor turns an uploaded file into a stored attachment.
type VoucherProcessor interface {
	Validate(f voucher.File) error
	Process(ctx context.Context, f voucher.File) (*voucher.Attachment, error)
}

// Archiver keeps a copy of approved vouchers.
type Archiver interface {
	Store(ctx context.Context, rec *domain.PaymentRecord) (string, error)
}

// Deps wires a Service. Store and Processor are required.
type Deps struct {
	Store     store.PaymentStore
	Processor VoucherProcessor
	Catalog   catalog.Catalog
	Audit     audit.Sink
	Archive   Archiver
	Now       func() time.Time
	Log       zerolog.Logger
}

// Service implements the payment operations.
type Service struct {
	store     store.PaymentStore
	processor VoucherProcessor
	catalog   catalog.Catalog
	audit     audit.Sink
	archive   Archiver
	now       func() time.Time
	log       zerolog.Logger

	locks     *lockTable
	workflow  *ApprovalWorkflow
	evaluator DueDateEvaluator
}

// NewService builds a Service. Optional dependencies default to an empty
// catalog, no audit, no archive and time.Now.
func NewService(deps Deps) *Service {
	s := &Service{
		store:     deps.Store,
		processor: deps.Processor,
		catalog:   deps.Catalog,
		audit:     deps.Audit,
		archive:   deps.Archive,
		now:       deps.Now,
		log:       deps.Log,
		locks:     newLockTable(),
	}
	if s.catalog == nil {
		s.catalog = catalog.Static{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.workflow = NewApprovalWorkflow(s.now)
	return s
}

// NewPayment is the input of CreatePayment. A zero Amount takes the
// category's default amount.
type NewPayment struct {
	PayerSubjectID string
	Amount         decimal.Decimal
	CategoryRef    string
	DueDate        time.Time
}

// CreatePayment schedules a new obligation in the (pending, unset) state.
func (s *Service) CreatePayment(ctx context.Context, in NewPayment) (*domain.PaymentRecord, error) {
	amount := in.Amount
	if amount.IsZero() {
		if def, ok := s.catalog.DefaultAmount(in.CategoryRef); ok {
			amount = def
		}
	}

	rec, err := domain.NewPaymentRecord(uuid.NewString(), strings.TrimSpace(in.PayerSubjectID), amount, in.CategoryRef, in.DueDate, s.now())
	if err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("CreatePayment: storing %s: %w", rec.ID, err)
	}

	actor, _ := identity.UserID(ctx)
	s.record(ctx, audit.NewEvent(rec, domain.TransitionCreate, domain.Status{}, actor, "", rec.CreatedAt))
	s.log.Info().
		Str("payment_id", rec.ID).
		Str("payer_subject_id", rec.PayerSubjectID).
		Str("amount", rec.Amount.StringFixed(2)).
		Time("due_date", rec.DueDate).
		Msg("Payment created")
	return rec, nil
}

// SubmitPayment records the payer's submission. The voucher, if any, is
// validated and processed before the record is locked; a validation or
// processing failure leaves the record untouched.
func (s *Service) SubmitPayment(ctx context.Context, id string, method domain.Method, file *voucher.File) (*domain.PaymentRecord, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("SubmitPayment: %w: %q", domain.ErrInvalidMethod, method)
	}

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("SubmitPayment: loading %s: %w", id, err)
	}
	if a := current.Status.Approval(); a != domain.ApprovalUnset && a != domain.ApprovalRejected {
		err := &domain.TransitionError{Transition: domain.TransitionSubmit, From: current.Status}
		s.logTransitionFailure(id, domain.TransitionSubmit, err)
		return nil, fmt.Errorf("SubmitPayment: %w", err)
	}

	var attachment *voucher.Attachment
	if file != nil {
		attachment, err = s.processor.Process(logger.WithContext(ctx, s.log), *file)
		if err != nil {
			if voucher.IsValidation(err) {
				s.log.Info().Err(err).Str("payment_id", id).Msg("Voucher rejected")
			} else {
				s.log.Error().Err(err).Str("payment_id", id).Str("file_name", file.Name).Msg("Voucher processing failed")
			}
			return nil, fmt.Errorf("SubmitPayment: %w", err)
		}
	}

	actor, ok := identity.UserID(ctx)
	if !ok {
		actor = current.PayerSubjectID
	}
	rec, err := s.mutate(ctx, id, domain.TransitionSubmit, actor, "", func(rec *domain.PaymentRecord) error {
		return rec.Submit(method, attachment, s.now())
	})
	if err != nil {
		return nil, fmt.Errorf("SubmitPayment: %w", err)
	}
	return rec, nil
}

// ApprovePayment approves a pending submission. An empty approverID falls
// back to the identity carried by ctx. When an archive is configured the
// voucher is copied there; archive failures are logged and the approval
// stands.
func (s *Service) ApprovePayment(ctx context.Context, id, approverID string) (*domain.PaymentRecord, error) {
	if strings.TrimSpace(approverID) == "" {
		approverID, _ = identity.UserID(ctx)
	}
	rec, err := s.mutate(ctx, id, domain.TransitionApprove, approverID, "", func(rec *domain.PaymentRecord) error {
		return s.workflow.Approve(rec, approverID)
	})
	if err != nil {
		return nil, fmt.Errorf("ApprovePayment: %w", err)
	}

	if s.archive != nil && rec.Attachment != nil {
		uri, err := s.archive.Store(ctx, rec)
		if err != nil {
			s.log.Error().Err(err).Str("payment_id", id).Msg("Failed to archive voucher")
		} else {
			s.log.Info().Str("payment_id", id).Str("gcs_uri", uri).Msg("Voucher archived")
		}
	}
	return rec, nil
}

// RejectPayment rejects a pending submission on behalf of the administrator
// carried by ctx.
func (s *Service) RejectPayment(ctx context.Context, id, reason string) (*domain.PaymentRecord, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("RejectPayment: %w", domain.ErrMissingReason)
	}
	adminID, _ := identity.UserID(ctx)
	reason = strings.TrimSpace(reason)
	rec, err := s.mutate(ctx, id, domain.TransitionReject, adminID, reason, func(rec *domain.PaymentRecord) error {
		return s.workflow.Reject(rec, reason, adminID)
	})
	if err != nil {
		return nil, fmt.Errorf("RejectPayment: %w", err)
	}
	return rec, nil
}

// RecomputeOverdue sweeps every record without a live or resolved
// submission and returns how many changed. A second run with the same
// today changes nothing. Per-record failures are logged and joined into
// the returned error; the sweep continues past them.
func (s *Service) RecomputeOverdue(ctx context.Context, today time.Time) (int, error) {
	candidates, err := s.store.List(ctx, store.Filter{Approvals: store.SweepableApprovals, OmitVoucherData: true})
	if err != nil {
		return 0, fmt.Errorf("RecomputeOverdue: listing records: %w", err)
	}

	updated := 0
	var errs []error
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, changed := s.evaluator.Evaluate(candidate, today); !changed {
			continue
		}
		_, changed, err := s.reconcile(ctx, candidate.ID, today)
		if err != nil {
			s.log.Warn().Err(err).Str("payment_id", candidate.ID).Msg("Failed to recompute timeliness")
			errs = append(errs, err)
			continue
		}
		if changed {
			updated++
		}
	}

	s.log.Info().
		Int("candidates", len(candidates)).
		Int("updated", updated).
		Str("today", domain.DateOf(today).Format(time.DateOnly)).
		Msg("Overdue sweep completed")
	if len(errs) > 0 {
		return updated, fmt.Errorf("RecomputeOverdue: %w", errors.Join(errs...))
	}
	return updated, nil
}

// GetPayment loads a record, reconciling its timeliness with today first.
func (s *Service) GetPayment(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetPayment: %w", err)
	}
	return s.reconciled(ctx, rec), nil
}

// ListPayments lists records matching filter, reconciling each. Voucher
// data is not loaded; use GetVoucherImage and GetVoucherThumbnail for it.
func (s *Service) ListPayments(ctx context.Context, filter store.Filter) ([]*domain.PaymentRecord, error) {
	filter.OmitVoucherData = true
	records, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("ListPayments: %w", err)
	}
	for i, rec := range records {
		rec = s.reconciled(ctx, rec)
		if rec.Attachment != nil {
			rec.Attachment.EncodedImage, rec.Attachment.Thumbnail = "", ""
		}
		records[i] = rec
	}
	return records, nil
}

// GetVoucherImage returns the stored voucher of a record.
func (s *Service) GetVoucherImage(ctx context.Context, id string) (voucher.EncodedImage, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("GetVoucherImage: %w", err)
	}
	if rec.Attachment == nil || rec.Attachment.EncodedImage == "" {
		return "", fmt.Errorf("GetVoucherImage: %s: %w", id, ErrNoVoucher)
	}
	return rec.Attachment.EncodedImage, nil
}

// GetVoucherThumbnail returns the stored thumbnail of a record. Document
// vouchers have none.
func (s *Service) GetVoucherThumbnail(ctx context.Context, id string) (voucher.EncodedImage, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("GetVoucherThumbnail: %w", err)
	}
	if rec.Attachment == nil || rec.Attachment.Thumbnail == "" {
		return "", fmt.Errorf("GetVoucherThumbnail: %s: %w", id, ErrNoVoucher)
	}
	return rec.Attachment.Thumbnail, nil
}

// reconciled returns rec after a read-time sweep. Failures are logged and
// the loaded record is returned as is.
func (s *Service) reconciled(ctx context.Context, rec *domain.PaymentRecord) *domain.PaymentRecord {
	if _, changed := s.evaluator.Evaluate(rec, s.now()); !changed {
		return rec
	}
	updated, changed, err := s.reconcile(ctx, rec.ID, s.now())
	if err != nil {
		s.log.Warn().Err(err).Str("payment_id", rec.ID).Msg("Read-time reconciliation failed")
		return rec
	}
	if !changed {
		return rec
	}
	return updated
}

// reconcile applies the due-date evaluator to one stored record under its
// lock. A record that left the sweepable states after it was listed is
// skipped without error.
func (s *Service) reconcile(ctx context.Context, id string, today time.Time) (*domain.PaymentRecord, bool, error) {
	rec, err := s.mutate(ctx, id, domain.TransitionRecompute, SystemActor, "", func(rec *domain.PaymentRecord) error {
		if !rec.Status.Sweepable() {
			return errNoChange
		}
		if s.evaluator.Sweep([]*domain.PaymentRecord{rec}, today) == 0 {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// mutate loads id under its lock, applies fn and saves the result. The
// audit event is recorded only after the store accepted the update.
func (s *Service) mutate(ctx context.Context, id, transition, actor, reason string, fn func(*domain.PaymentRecord) error) (*domain.PaymentRecord, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", id, err)
	}
	from := rec.Status
	if err := fn(rec); err != nil {
		if !errors.Is(err, errNoChange) {
			s.logTransitionFailure(id, transition, err)
		}
		return nil, err
	}
	if err := s.store.Update(ctx, rec); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			payLog := logger.ForPayment(s.log, id, transition)
			payLog.Error().Err(err).Msg("Concurrent modification detected")
		}
		return nil, fmt.Errorf("saving %s: %w", id, err)
	}

	at := rec.UpdatedAt
	if transition == domain.TransitionRecompute {
		at = s.now()
	}
	s.record(ctx, audit.NewEvent(rec, transition, from, actor, reason, at))
	payLog := logger.ForPayment(s.log, id, transition)
	payLog.Info().
		Stringer("from", from).
		Stringer("to", rec.Status).
		Msg("Payment transition committed")
	return rec, nil
}

func (s *Service) logTransitionFailure(id, transition string, err error) {
	log := logger.ForPayment(s.log, id, transition)
	ev := log.Info()
	if errors.Is(err, domain.ErrInvalidTransition) {
		ev = log.Error()
	}
	ev.Err(err).Msg("Payment transition refused")
}

func (s *Service) record(ctx context.Context, ev audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("payment_id", ev.PaymentID).Str("event_id", ev.ID).Msg("Failed to record audit event")
	}
}
