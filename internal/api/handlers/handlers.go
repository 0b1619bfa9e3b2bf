package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/academy-payments/internal/api/middleware"
	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/jobs"
	"github.com/dvloznov/academy-payments/internal/jobs/inmemory"
	"github.com/dvloznov/academy-payments/internal/payments"
	"github.com/dvloznov/academy-payments/internal/store"
	"github.com/dvloznov/academy-payments/internal/voucher"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// writeServiceError maps service errors onto HTTP responses. Transition and
// processing failures get a generic message; the detail goes to the log.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var verr *voucher.ValidationError
	switch {
	case errors.As(err, &verr) && errors.Is(err, voucher.ErrFileTooLarge):
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, verr.Error())
	case errors.As(err, &verr):
		middleware.WriteError(w, http.StatusUnsupportedMediaType, verr.Error())
	case voucher.IsProcessing(err):
		log.Error().Err(err).Msg("Voucher processing failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Could not process attachment")
	case errors.Is(err, domain.ErrMissingReason):
		middleware.WriteError(w, http.StatusUnprocessableEntity, "A rejection reason is required")
	case errors.Is(err, domain.ErrMissingActor):
		middleware.WriteError(w, http.StatusUnauthorized, "An acting administrator is required")
	case errors.Is(err, domain.ErrInvalidMethod),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidRecord):
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Payment not found")
	case errors.Is(err, payments.ErrNoVoucher):
		middleware.WriteError(w, http.StatusNotFound, "Payment has no voucher")
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, store.ErrVersionConflict):
		log.Error().Err(err).Msg("Payment transition refused")
		middleware.WriteError(w, http.StatusConflict, "Payment is not in a state that allows this action")
	default:
		log.Error().Err(err).Msg("Request failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// queryInt parses an integer query parameter, ignoring bad values.
func queryInt(r *http.Request, key string) int {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.Store
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.Store, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if !errors.Is(err, inmemory.ErrJobNotFound) {
			h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		}
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.Filter{
		Status:  jobs.Status(query.Get("status")),
		Trigger: jobs.Trigger(query.Get("trigger")),
		Limit:   queryInt(r, "limit"),
		Offset:  queryInt(r, "offset"),
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.SweepOverdueJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
