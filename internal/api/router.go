// Package api assembles the HTTP surface of the payment service.
package api

import (
	"net/http"

	"github.com/dvloznov/academy-payments/internal/api/handlers"
	"github.com/dvloznov/academy-payments/internal/api/middleware"
	"github.com/rs/zerolog"
)

// NewRouter registers every endpoint and wraps the mux in the middleware
// chain. jobsHandler may be nil when no job store is configured.
func NewRouter(paymentsHandler *handlers.PaymentsHandler, jobsHandler *handlers.JobsHandler, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Payments endpoints
	mux.HandleFunc("POST /api/payments", paymentsHandler.CreatePayment)
	mux.HandleFunc("GET /api/payments", paymentsHandler.ListPayments)
	mux.HandleFunc("POST /api/payments/recompute-overdue", paymentsHandler.RecomputeOverdue)
	mux.HandleFunc("GET /api/payments/{id}", func(w http.ResponseWriter, r *http.Request) {
		paymentsHandler.GetPayment(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /api/payments/{id}/submit", func(w http.ResponseWriter, r *http.Request) {
		paymentsHandler.SubmitPayment(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /api/payments/{id}/approve", func(w http.ResponseWriter, r *http.Request) {
		paymentsHandler.ApprovePayment(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /api/payments/{id}/reject", func(w http.ResponseWriter, r *http.Request) {
		paymentsHandler.RejectPayment(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /api/payments/{id}/voucher", func(w http.ResponseWriter, r *http.Request) {
		paymentsHandler.GetVoucher(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /api/payments/{id}/thumbnail", func(w http.ResponseWriter, r *http.Request) {
		paymentsHandler.GetThumbnail(w, r, r.PathValue("id"))
	})

	// Jobs endpoints
	if jobsHandler != nil {
		mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
		mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
			jobsHandler.GetJob(w, r, r.PathValue("id"))
		})
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", handlers.Health)

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.CORS,
		middleware.Identity,
	)
}
