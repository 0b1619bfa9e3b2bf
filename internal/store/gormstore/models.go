package gormstore

import (
	"fmt"
	"time"

	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/voucher"
	"github.com/shopspring/decimal"
)

// paymentRow is the flattened persisted form of a PaymentRecord. The
// attachment lives in the same row; unsized strings map to text/longtext.
type paymentRow struct {
	ID             string          `gorm:"primaryKey;size:64"`
	PayerSubjectID string          `gorm:"size:64;not null;index"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CategoryRef    string          `gorm:"size:64"`
	// DueDate is midnight UTC. Drivers may hand it back in another zone.
	DueDate        time.Time       `gorm:"not null;index"`

	Timeliness string `gorm:"size:16;not null"`
	Approval   string `gorm:"size:24;not null;index"`

	SubmissionMethod string `gorm:"size:16"`
	PaidDate         *time.Time
	SubmittedAt      *time.Time

	HasAttachment           bool
	AttachmentImage         string
	AttachmentThumbnail     string
	AttachmentFileName      string `gorm:"size:255"`
	AttachmentMediaType     string `gorm:"size:64"`
	AttachmentOriginalBytes int64
	AttachmentFinalBytes    int64
	AttachmentCompressed    bool
	AttachmentUploadedAt    *time.Time

	ApprovedBy   string `gorm:"size:64"`
	ApprovedDate *time.Time

	RejectionReason string `gorm:"size:1024"`
	RejectedBy      string `gorm:"size:64"`
	RejectedDate    *time.Time

	Version   int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (paymentRow) TableName() string { return "payments" }

// rejectionRow is one append-only entry of a payment's rejection history.
type rejectionRow struct {
	ID         uint      `gorm:"primaryKey"`
	PaymentID  string    `gorm:"size:64;not null;index"`
	Seq        int       `gorm:"not null"`
	Reason     string    `gorm:"size:1024;not null"`
	RejectedBy string    `gorm:"size:64"`
	RejectedAt time.Time `gorm:"not null"`
	Method     string    `gorm:"size:16"`
	FileName   string    `gorm:"size:255"`
}

func (rejectionRow) TableName() string { return "payment_rejections" }

func toRow(rec *domain.PaymentRecord) paymentRow {
	row := paymentRow{
		ID:              rec.ID,
		PayerSubjectID:  rec.PayerSubjectID,
		Amount:          rec.Amount,
		CategoryRef:     rec.CategoryRef,
		DueDate:         domain.DateOf(rec.DueDate),
		Timeliness:      rec.Status.Timeliness().String(),
		Approval:        rec.Status.Approval().String(),
		ApprovedBy:      rec.ApprovedBy,
		ApprovedDate:    rec.ApprovedDate,
		RejectionReason: rec.RejectionReason,
		RejectedBy:      rec.RejectedBy,
		RejectedDate:    rec.RejectedDate,
		Version:         rec.Version,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	if s := rec.Submission; s != nil {
		submitted := s.SubmittedAt
		row.SubmissionMethod = string(s.Method)
		row.PaidDate = s.PaidDate
		row.SubmittedAt = &submitted
	}
	if a := rec.Attachment; a != nil {
		uploaded := a.UploadDate
		row.HasAttachment = true
		row.AttachmentImage = string(a.EncodedImage)
		row.AttachmentThumbnail = string(a.Thumbnail)
		row.AttachmentFileName = a.FileName
		row.AttachmentMediaType = a.MediaType
		row.AttachmentOriginalBytes = a.OriginalByteSize
		row.AttachmentFinalBytes = a.FinalByteSize
		row.AttachmentCompressed = a.WasCompressed
		row.AttachmentUploadedAt = &uploaded
	}
	return row
}

func toRejectionRow(paymentID string, seq int, r domain.Rejection) rejectionRow {
	return rejectionRow{
		PaymentID:  paymentID,
		Seq:        seq,
		Reason:     r.Reason,
		RejectedBy: r.RejectedBy,
		RejectedAt: r.RejectedAt,
		Method:     string(r.Method),
		FileName:   r.FileName,
	}
}

func fromRow(row paymentRow, rejections []rejectionRow) (*domain.PaymentRecord, error) {
	status, err := domain.ParseStatus(row.Timeliness, row.Approval)
	if err != nil {
		return nil, fmt.Errorf("fromRow: payment %s: %w", row.ID, err)
	}
	rec := &domain.PaymentRecord{
		ID:              row.ID,
		PayerSubjectID:  row.PayerSubjectID,
		Amount:          row.Amount,
		CategoryRef:     row.CategoryRef,
		DueDate:         domain.DateOf(row.DueDate.UTC()),
		Status:          status,
		ApprovedBy:      row.ApprovedBy,
		ApprovedDate:    utcPtr(row.ApprovedDate),
		RejectionReason: row.RejectionReason,
		RejectedBy:      row.RejectedBy,
		RejectedDate:    utcPtr(row.RejectedDate),
		Version:         row.Version,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if row.SubmissionMethod != "" {
		sub := &domain.Submission{
			Method:   domain.Method(row.SubmissionMethod),
			PaidDate: utcPtr(row.PaidDate),
		}
		if row.SubmittedAt != nil {
			sub.SubmittedAt = row.SubmittedAt.UTC()
		}
		rec.Submission = sub
	}
	if row.HasAttachment {
		att := &voucher.Attachment{
			EncodedImage:     voucher.EncodedImage(row.AttachmentImage),
			Thumbnail:        voucher.EncodedImage(row.AttachmentThumbnail),
			FileName:         row.AttachmentFileName,
			MediaType:        row.AttachmentMediaType,
			OriginalByteSize: row.AttachmentOriginalBytes,
			FinalByteSize:    row.AttachmentFinalBytes,
			WasCompressed:    row.AttachmentCompressed,
		}
		if row.AttachmentUploadedAt != nil {
			att.UploadDate = row.AttachmentUploadedAt.UTC()
		}
		rec.Attachment = att
	}
	for _, r := range rejections {
		rec.RejectionHistory = append(rec.RejectionHistory, domain.Rejection{
			Reason:     r.Reason,
			RejectedBy: r.RejectedBy,
			RejectedAt: r.RejectedAt.UTC(),
			Method:     domain.Method(r.Method),
			FileName:   r.FileName,
		})
	}
	return rec, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
