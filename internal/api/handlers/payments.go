package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/academy-payments/internal/api/middleware"
	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/jobs"
	"github.com/dvloznov/academy-payments/internal/logger"
	"github.com/dvloznov/academy-payments/internal/payments"
	"github.com/dvloznov/academy-payments/internal/store"
	"github.com/dvloznov/academy-payments/internal/voucher"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PaymentService is the subset of payments.Service used over HTTP.
type PaymentService interface {
	CreatePayment(ctx context.Context, in payments.NewPayment) (*domain.PaymentRecord, error)
	SubmitPayment(ctx context.Context, id string, method domain.Method, file *voucher.File) (*domain.PaymentRecord, error)
	ApprovePayment(ctx context.Context, id, approverID string) (*domain.PaymentRecord, error)
	RejectPayment(ctx context.Context, id, reason string) (*domain.PaymentRecord, error)
	RecomputeOverdue(ctx context.Context, today time.Time) (int, error)
	GetPayment(ctx context.Context, id string) (*domain.PaymentRecord, error)
	ListPayments(ctx context.Context, filter store.Filter) ([]*domain.PaymentRecord, error)
	GetVoucherImage(ctx context.Context, id string) (voucher.EncodedImage, error)
	GetVoucherThumbnail(ctx context.Context, id string) (voucher.EncodedImage, error)
}

// PaymentsHandler handles payment endpoints.
type PaymentsHandler struct {
	svc       PaymentService
	publisher jobs.Publisher
	// maxUpload caps the multipart body; the voucher validator enforces the
	// per-file limit below it.
	maxUpload int64
	log       zerolog.Logger
}

// NewPaymentsHandler creates a payments handler. publisher may be nil, in
// which case asynchronous sweeps are unavailable.
func NewPaymentsHandler(svc PaymentService, publisher jobs.Publisher, maxFileSize int64, log zerolog.Logger) *PaymentsHandler {
	if maxFileSize <= 0 {
		maxFileSize = voucher.DefaultMaxFileSize
	}
	return &PaymentsHandler{
		svc:       svc,
		publisher: publisher,
		maxUpload: 2*maxFileSize + 1<<20,
		log:       log,
	}
}

// CreatePayment handles POST /api/payments
func (h *PaymentsHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PayerSubjectID string          `json:"payer_subject_id"`
		Amount         decimal.Decimal `json:"amount"`
		CategoryRef    string          `json:"category_ref"`
		DueDate        string          `json:"due_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PayerSubjectID == "" || req.DueDate == "" {
		middleware.WriteError(w, http.StatusBadRequest, "payer_subject_id and due_date are required")
		return
	}
	due, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid due_date format")
		return
	}

	rec, err := h.svc.CreatePayment(r.Context(), payments.NewPayment{
		PayerSubjectID: req.PayerSubjectID,
		Amount:         req.Amount,
		CategoryRef:    req.CategoryRef,
		DueDate:        due,
	})
	if err != nil {
		writeServiceError(w, h.logFor(r), err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, newPaymentResponse(rec))
}

// ListPayments handles GET /api/payments
func (h *PaymentsHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.Filter{
		PayerSubjectID: query.Get("payer"),
		Limit:          queryInt(r, "limit"),
		Offset:         queryInt(r, "offset"),
	}
	if s := query.Get("approval"); s != "" {
		for _, part := range strings.Split(s, ",") {
			a, err := domain.ParseApproval(strings.TrimSpace(part))
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, "Invalid approval filter")
				return
			}
			filter.Approvals = append(filter.Approvals, a)
		}
	}

	records, err := h.svc.ListPayments(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logFor(r), err)
		return
	}
	out := make([]paymentResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, newPaymentResponse(rec))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payments": out,
		"count":    len(out),
	})
}

// GetPayment handles GET /api/payments/{id}
func (h *PaymentsHandler) GetPayment(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.svc.GetPayment(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logFor(r), err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newPaymentResponse(rec))
}

// SubmitPayment handles POST /api/payments/{id}/submit
// The body is multipart/form-data with a "method" field and an optional
// "voucher" file.
func (h *PaymentsHandler) SubmitPayment(w http.ResponseWriter, r *http.Request, id string) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Upload is too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	method, err := domain.ParseMethod(r.FormValue("method"))
	if err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var file *voucher.File
	part, header, err := r.FormFile("voucher")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		middleware.WriteError(w, http.StatusBadRequest, "Invalid voucher file")
		return
	default:
		defer part.Close()
		data, err := io.ReadAll(part)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Failed to read voucher file")
			return
		}
		file = &voucher.File{
			Name:      header.Filename,
			MediaType: header.Header.Get("Content-Type"),
			Size:      header.Size,
			Data:      data,
		}
	}

	rec, err := h.svc.SubmitPayment(r.Context(), id, method, file)
	if err != nil {
		writeServiceError(w, h.logFor(r), err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newPaymentResponse(rec))
}

// ApprovePayment handles POST /api/payments/{id}/approve
// An optional {"approver_id": ...} body overrides the X-User-ID identity.
func (h *PaymentsHandler) ApprovePayment(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		ApproverID string `json:"approver_id"`
	}
	if err := decodeOptional(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.svc.ApprovePayment(r.Context(), id, req.ApproverID)
	if err != nil {
		writeServiceError(w, h.logFor(r), err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newPaymentResponse(rec))
}

// RejectPayment handles POST /api/payments/{id}/reject
func (h *PaymentsHandler) RejectPayment(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeOptional(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.svc.RejectPayment(r.Context(), id, req.Reason)
	if err != nil {
		writeServiceError(w, h.logFor(r), err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newPaymentResponse(rec))
}

// RecomputeOverdue handles POST /api/payments/recompute-overdue
// With ?async=1 the sweep is queued as a job and 202 is returned.
func (h *PaymentsHandler) RecomputeOverdue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Today string `json:"today"`
	}
	if err := decodeOptional(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	today := time.Now()
	if req.Today != "" {
		parsed, err := time.Parse(dateLayout, req.Today)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid today format")
			return
		}
		today = parsed
	}

	if r.URL.Query().Get("async") == "1" {
		if h.publisher == nil {
			middleware.WriteError(w, http.StatusServiceUnavailable, "Job queue is not configured")
			return
		}
		job := &jobs.SweepOverdueJob{Today: req.Today, Trigger: jobs.TriggerManual}
		if err := h.publisher.PublishSweepOverdue(r.Context(), job); err != nil {
			reqLog := h.logFor(r)
			reqLog.Error().Err(err).Msg("Failed to enqueue sweep job")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue sweep job")
			return
		}
		reqLog := h.logFor(r)
		reqLog.Info().Str("job_id", job.JobID).Msg("Sweep job enqueued")
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
			"job_id": job.JobID,
			"status": string(job.Status),
		})
		return
	}

	updated, err := h.svc.RecomputeOverdue(r.Context(), today)
	if err != nil {
		reqLog := h.logFor(r)
		reqLog.Error().Err(err).Int("updated", updated).Msg("Sweep finished with errors")
		middleware.WriteError(w, http.StatusInternalServerError, "Sweep failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"updated": updated,
		"today":   domain.DateOf(today).Format(dateLayout),
	})
}

// GetVoucher handles GET /api/payments/{id}/voucher
func (h *PaymentsHandler) GetVoucher(w http.ResponseWriter, r *http.Request, id string) {
	img, err := h.svc.GetVoucherImage(r.Context(), id)
	h.writeImage(w, r, img, err)
}

// GetThumbnail handles GET /api/payments/{id}/thumbnail
func (h *PaymentsHandler) GetThumbnail(w http.ResponseWriter, r *http.Request, id string) {
	img, err := h.svc.GetVoucherThumbnail(r.Context(), id)
	h.writeImage(w, r, img, err)
}

// writeImage answers with the encoded image as JSON, or with the decoded
// bytes when ?raw=1 is set.
func (h *PaymentsHandler) writeImage(w http.ResponseWriter, r *http.Request, img voucher.EncodedImage, err error) {
	if err != nil {
		writeServiceError(w, h.logFor(r), err)
		return
	}
	if r.URL.Query().Get("raw") != "1" {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"encoded_image": img,
			"media_type":    img.MediaType(),
			"byte_size":     img.ByteSize(),
		})
		return
	}

	data, err := img.Decode()
	if err != nil {
		reqLog := h.logFor(r)
		reqLog.Error().Err(err).Msg("Stored voucher does not decode")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.Header().Set("Content-Type", img.MediaType())
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *PaymentsHandler) logFor(r *http.Request) zerolog.Logger {
	if l, ok := r.Context().Value(logger.LoggerKey).(zerolog.Logger); ok {
		return l
	}
	return h.log
}

// decodeOptional decodes a JSON body that may be empty.
func decodeOptional(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
