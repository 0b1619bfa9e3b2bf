package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/jobs"
	"github.com/dvloznov/academy-payments/internal/logger"
	"github.com/dvloznov/academy-payments/internal/payments"
	"github.com/dvloznov/academy-payments/internal/store"
	"github.com/dvloznov/academy-payments/internal/voucher"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"too large", &voucher.ValidationError{Kind: voucher.ErrFileTooLarge, Size: 10, Limit: 5}, http.StatusRequestEntityTooLarge},
		{"unsupported", &voucher.ValidationError{Kind: voucher.ErrUnsupportedType, MediaType: "text/plain"}, http.StatusUnsupportedMediaType},
		{"decode failure", fmt.Errorf("SubmitPayment: %w", voucher.ErrDecodeFailure), http.StatusInternalServerError},
		{"timeout", voucher.ErrProcessingTimeout, http.StatusInternalServerError},
		{"missing reason", domain.ErrMissingReason, http.StatusUnprocessableEntity},
		{"missing actor", domain.ErrMissingActor, http.StatusUnauthorized},
		{"invalid amount", domain.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{"not found", fmt.Errorf("GetPayment: %w", store.ErrNotFound), http.StatusNotFound},
		{"no voucher", payments.ErrNoVoucher, http.StatusNotFound},
		{"transition", &domain.TransitionError{Transition: domain.TransitionApprove}, http.StatusConflict},
		{"version conflict", store.ErrVersionConflict, http.StatusConflict},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, logger.Nop(), tt.err)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d (%s)", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

type mockJobStore struct {
	jobs.Store
	ListJobsFunc func(ctx context.Context, filter jobs.Filter) ([]*jobs.SweepOverdueJob, error)
}

func (m *mockJobStore) ListJobs(ctx context.Context, filter jobs.Filter) ([]*jobs.SweepOverdueJob, error) {
	return m.ListJobsFunc(ctx, filter)
}

func TestListJobs_Filter(t *testing.T) {
	var got jobs.Filter
	js := &mockJobStore{ListJobsFunc: func(ctx context.Context, filter jobs.Filter) ([]*jobs.SweepOverdueJob, error) {
		got = filter
		return nil, nil
	}}
	h := NewJobsHandler(js, logger.Nop())

	rec := httptest.NewRecorder()
	h.ListJobs(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?status=failed&trigger=schedule&limit=5&offset=x", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "{\"count\":0,\"jobs\":[]}\n" {
		t.Errorf("Unexpected response %d %q", rec.Code, rec.Body.String())
	}
	want := jobs.Filter{Status: jobs.StatusFailed, Trigger: jobs.TriggerSchedule, Limit: 5}
	if got != want {
		t.Errorf("Expected filter %+v, got %+v", want, got)
	}
}
