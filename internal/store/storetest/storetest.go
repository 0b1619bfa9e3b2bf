// Package storetest holds behaviour checks shared by every PaymentStore.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/store"
	"github.com/dvloznov/academy-payments/internal/voucher"
	"github.com/shopspring/decimal"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// Record builds a valid (pending, unset) record due days after 2024-03-01.
func Record(t *testing.T, id, payer string, days int) *domain.PaymentRecord {
	t.Helper()
	rec, err := domain.NewPaymentRecord(id, payer, decimal.RequireFromString("75.25"), "monthly", base.AddDate(0, 0, days), base)
	if err != nil {
		t.Fatalf("NewPaymentRecord: %v", err)
	}
	return rec
}

// Run exercises newStore against the PaymentStore contract. Each subtest
// gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) store.PaymentStore) {
	ctx := context.Background()

	t.Run("CreateGet", func(t *testing.T) {
		s := newStore(t)
		rec := Record(t, "p1", "s1", 9)
		if err := s.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if rec.Version != 1 {
			t.Errorf("Expected version 1, got %d", rec.Version)
		}
		got, err := s.Get(ctx, "p1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.PayerSubjectID != "s1" || !got.Amount.Equal(rec.Amount) || !got.DueDate.Equal(rec.DueDate) {
			t.Errorf("Round trip mismatch: %+v", got)
		}
		if got.Status != rec.Status || got.Version != 1 {
			t.Errorf("Expected %s v1, got %s v%d", rec.Status, got.Status, got.Version)
		}
		if err := s.Create(ctx, Record(t, "p1", "s1", 9)); !errors.Is(err, store.ErrAlreadyExists) {
			t.Errorf("Expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateFullLifecycle", func(t *testing.T) {
		s := newStore(t)
		rec := Record(t, "p1", "s1", 9)
		if err := s.Create(ctx, rec); err != nil {
			t.Fatal(err)
		}

		img := voucher.Encode(voucher.MediaTypeJPEG, []byte("voucher bytes"))
		thumb := voucher.Encode(voucher.MediaTypeJPEG, []byte("thumb"))
		att := &voucher.Attachment{
			EncodedImage:     img,
			Thumbnail:        thumb,
			FileName:         "first.jpg",
			MediaType:        voucher.MediaTypeJPEG,
			OriginalByteSize: img.ByteSize(),
			FinalByteSize:    img.ByteSize(),
			UploadDate:       base.Add(time.Hour),
		}
		at := base.Add(2 * time.Hour)
		if err := rec.Submit(domain.MethodTransfer, att, at); err != nil {
			t.Fatal(err)
		}
		if err := rec.Reject("blurry", "admin-1", at.Add(time.Hour)); err != nil {
			t.Fatal(err)
		}
		if err := s.Update(ctx, rec); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if rec.Version != 2 {
			t.Errorf("Expected version 2, got %d", rec.Version)
		}

		got, err := s.Get(ctx, "p1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status.Approval() != domain.ApprovalRejected || got.RejectionReason != "blurry" {
			t.Errorf("Expected rejected record, got %s %q", got.Status, got.RejectionReason)
		}
		if got.Submission == nil || got.Submission.Method != domain.MethodTransfer || got.PaidDate() != nil {
			t.Errorf("Unexpected submission: %+v", got.Submission)
		}
		if got.Attachment == nil || got.Attachment.EncodedImage != img || got.Attachment.Thumbnail != thumb {
			t.Fatal("Attachment not persisted")
		}
		if len(got.RejectionHistory) != 1 || got.RejectionHistory[0].FileName != "first.jpg" {
			t.Errorf("Unexpected history: %+v", got.RejectionHistory)
		}

		if err := got.Submit(domain.MethodCash, att, at.Add(2*time.Hour)); err != nil {
			t.Fatal(err)
		}
		if err := got.Approve("admin-2", at.Add(3*time.Hour)); err != nil {
			t.Fatal(err)
		}
		if err := s.Update(ctx, got); err != nil {
			t.Fatalf("second Update: %v", err)
		}
		final, _ := s.Get(ctx, "p1")
		if final.Status.Approval() != domain.ApprovalApproved || final.ApprovedBy != "admin-2" || final.ApprovedDate == nil {
			t.Errorf("Expected approved record, got %s by %q", final.Status, final.ApprovedBy)
		}
		if len(final.RejectionHistory) != 1 {
			t.Errorf("Expected history kept, got %d entries", len(final.RejectionHistory))
		}
		if final.RejectionReason != "" {
			t.Errorf("Expected live rejection cleared, got %q", final.RejectionReason)
		}
	})

	t.Run("VersionConflict", func(t *testing.T) {
		s := newStore(t)
		if err := s.Create(ctx, Record(t, "p1", "s1", 9)); err != nil {
			t.Fatal(err)
		}
		a, _ := s.Get(ctx, "p1")
		b, _ := s.Get(ctx, "p1")

		if err := a.Submit(domain.MethodCash, nil, base); err != nil {
			t.Fatal(err)
		}
		if err := s.Update(ctx, a); err != nil {
			t.Fatal(err)
		}
		if _, err := b.RecomputeTimeliness(base.AddDate(0, 1, 0)); err != nil {
			t.Fatal(err)
		}
		if err := s.Update(ctx, b); !errors.Is(err, store.ErrVersionConflict) {
			t.Errorf("Expected ErrVersionConflict, got %v", err)
		}
		got, _ := s.Get(ctx, "p1")
		if got.Status.Approval() != domain.ApprovalPending {
			t.Errorf("Conflicting update must not be applied, got %s", got.Status)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		rec := Record(t, "ghost", "s1", 1)
		rec.Version = 1
		if err := s.Update(ctx, rec); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		s := newStore(t)
		rec := Record(t, "p1", "s1", 9)
		if err := s.Create(ctx, rec); err != nil {
			t.Fatal(err)
		}
		rec.PayerSubjectID = "mutated"
		got, _ := s.Get(ctx, "p1")
		got.CategoryRef = "mutated"
		again, _ := s.Get(ctx, "p1")
		if again.PayerSubjectID != "s1" || again.CategoryRef != "monthly" {
			t.Error("Store shares memory with callers")
		}
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 5; i++ {
			payer := "s1"
			if i%2 == 1 {
				payer = "s2"
			}
			rec := Record(t, fmt.Sprintf("p%d", i), payer, 10-i)
			if i == 4 {
				_ = rec.Submit(domain.MethodCard, nil, base)
			}
			if err := s.Create(ctx, rec); err != nil {
				t.Fatal(err)
			}
		}

		all, err := s.List(ctx, store.Filter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 5 || all[0].ID != "p4" || all[4].ID != "p0" {
			t.Errorf("Expected due date ordering p4..p0, got %d records starting %s", len(all), all[0].ID)
		}

		s2, _ := s.List(ctx, store.Filter{PayerSubjectID: "s2"})
		if len(s2) != 2 {
			t.Errorf("Expected 2 records for s2, got %d", len(s2))
		}

		sweepable, _ := s.List(ctx, store.Filter{Approvals: store.SweepableApprovals})
		if len(sweepable) != 4 {
			t.Errorf("Expected 4 sweepable records, got %d", len(sweepable))
		}

		page, _ := s.List(ctx, store.Filter{Limit: 2, Offset: 1})
		if len(page) != 2 || page[0].ID != "p3" || page[1].ID != "p2" {
			t.Errorf("Unexpected page: %v", ids(page))
		}
		empty, _ := s.List(ctx, store.Filter{Offset: 10})
		if len(empty) != 0 {
			t.Errorf("Expected empty page, got %d", len(empty))
		}
	})

	t.Run("ListOmitsVoucherData", func(t *testing.T) {
		s := newStore(t)
		rec := Record(t, "p1", "s1", 3)
		if err := s.Create(ctx, rec); err != nil {
			t.Fatal(err)
		}
		img := voucher.Encode(voucher.MediaTypeJPEG, []byte("voucher bytes"))
		att := &voucher.Attachment{
			EncodedImage:  img,
			Thumbnail:     voucher.Encode(voucher.MediaTypeJPEG, []byte("thumb")),
			FileName:      "receipt.jpg",
			MediaType:     voucher.MediaTypeJPEG,
			FinalByteSize: img.ByteSize(),
			UploadDate:    base,
		}
		if err := rec.Submit(domain.MethodTransfer, att, base.Add(time.Hour)); err != nil {
			t.Fatal(err)
		}
		if err := rec.Reject("unreadable", "admin-1", base.Add(2*time.Hour)); err != nil {
			t.Fatal(err)
		}
		if err := s.Update(ctx, rec); err != nil {
			t.Fatal(err)
		}

		listed, err := s.List(ctx, store.Filter{Approvals: store.SweepableApprovals, OmitVoucherData: true})
		if err != nil {
			t.Fatal(err)
		}
		if len(listed) != 1 || listed[0].Attachment == nil {
			t.Fatalf("Expected one record with attachment metadata, got %v", ids(listed))
		}
		a := listed[0].Attachment
		if a.EncodedImage != "" || a.Thumbnail != "" {
			t.Error("Expected voucher data omitted from listing")
		}
		if a.FileName != "receipt.jpg" || a.FinalByteSize != img.ByteSize() || !a.HasThumbnail() {
			t.Errorf("Expected metadata kept, got %+v", a)
		}
		if !listed[0].DueDate.Equal(rec.DueDate) || listed[0].Status != rec.Status {
			t.Errorf("Expected due date and status kept, got %s %s", listed[0].DueDate, listed[0].Status)
		}

		full, err := s.Get(ctx, "p1")
		if err != nil {
			t.Fatal(err)
		}
		if full.Attachment == nil || full.Attachment.EncodedImage != img {
			t.Error("Expected Get to return voucher data")
		}
	})
}

func ids(recs []*domain.PaymentRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
