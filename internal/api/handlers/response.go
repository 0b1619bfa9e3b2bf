package handlers

import (
	"time"

	"github.com/dvloznov/academy-payments/internal/domain"
)

// paymentResponse is the JSON view of a record. Image data is served by the
// voucher endpoints only.
type paymentResponse struct {
	ID             string     `json:"id"`
	PayerSubjectID string     `json:"payer_subject_id"`
	Amount         string     `json:"amount"`
	CategoryRef    string     `json:"category_ref,omitempty"`
	DueDate        string     `json:"due_date"`
	Timeliness     string     `json:"timeliness_status"`
	Approval       string     `json:"approval"`
	Method         string     `json:"method,omitempty"`
	PaidDate       *time.Time `json:"paid_date,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`

	Attachment *attachmentResponse `json:"attachment,omitempty"`

	ApprovedBy       string              `json:"approved_by,omitempty"`
	ApprovedDate     *time.Time          `json:"approved_date,omitempty"`
	RejectionReason  string              `json:"rejection_reason,omitempty"`
	RejectedBy       string              `json:"rejected_by,omitempty"`
	RejectedDate     *time.Time          `json:"rejected_date,omitempty"`
	RejectionHistory []rejectionResponse `json:"rejection_history,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type attachmentResponse struct {
	FileName         string    `json:"file_name"`
	MediaType        string    `json:"media_type"`
	OriginalByteSize int64     `json:"original_byte_size"`
	FinalByteSize    int64     `json:"final_byte_size"`
	WasCompressed    bool      `json:"was_compressed"`
	HasThumbnail     bool      `json:"has_thumbnail"`
	UploadDate       time.Time `json:"upload_date"`
}

type rejectionResponse struct {
	Reason     string    `json:"reason"`
	RejectedBy string    `json:"rejected_by,omitempty"`
	RejectedAt time.Time `json:"rejected_at"`
	Method     string    `json:"method"`
	FileName   string    `json:"file_name,omitempty"`
}

func newPaymentResponse(rec *domain.PaymentRecord) paymentResponse {
	out := paymentResponse{
		ID:               rec.ID,
		PayerSubjectID:   rec.PayerSubjectID,
		Amount:           rec.Amount.StringFixed(2),
		CategoryRef:      rec.CategoryRef,
		DueDate:          rec.DueDate.Format(dateLayout),
		Timeliness:       rec.Status.Timeliness().String(),
		Approval:         rec.Status.Approval().String(),
		PaidDate:         rec.PaidDate(),
		ApprovedBy:       rec.ApprovedBy,
		ApprovedDate:     rec.ApprovedDate,
		RejectionReason:  rec.RejectionReason,
		RejectedBy:       rec.RejectedBy,
		RejectedDate:     rec.RejectedDate,
		Version:          rec.Version,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
	if sub := rec.Submission; sub != nil {
		out.Method = string(sub.Method)
		submitted := sub.SubmittedAt
		out.SubmittedAt = &submitted
	}
	if a := rec.Attachment; a != nil {
		out.Attachment = &attachmentResponse{
			FileName:         a.FileName,
			MediaType:        a.MediaType,
			OriginalByteSize: a.OriginalByteSize,
			FinalByteSize:    a.FinalByteSize,
			WasCompressed:    a.WasCompressed,
			HasThumbnail:     a.HasThumbnail(),
			UploadDate:       a.UploadDate,
		}
	}
	for _, rj := range rec.RejectionHistory {
		out.RejectionHistory = append(out.RejectionHistory, rejectionResponse{
			Reason:     rj.Reason,
			RejectedBy: rj.RejectedBy,
			RejectedAt: rj.RejectedAt,
			Method:     string(rj.Method),
			FileName:   rj.FileName,
		})
	}
	return out
}
