package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/academy-payments/internal/identity"
	"github.com/dvloznov/academy-payments/internal/logger"
)

func TestIdentity(t *testing.T) {
	var got string
	var ok bool
	h := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = identity.UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserIDHeader, "admin-9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !ok || got != "admin-9" {
		t.Errorf("Expected admin-9, got %q %v", got, ok)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if ok {
		t.Error("Expected anonymous request without header")
	}
}

func TestRequestIDAndLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf)

	var seen string
	h := RequestID(Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
		ctxLog := logger.FromContext(r.Context())
		ctxLog.Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if seen == "" || rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("Expected generated request ID in context and header, got %q / %q", seen, rec.Header().Get("X-Request-ID"))
	}
	out := buf.String()
	if strings.Count(out, seen) != 2 || !strings.Contains(out, `"status":418`) {
		t.Errorf("Expected both log lines tagged with the request ID, got %s", out)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "fixed-id" {
		t.Errorf("Expected caller request ID to be kept, got %q", seen)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "Internal server error") {
		t.Errorf("Unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/payments", nil))
	if called || rec.Code != http.StatusNoContent {
		t.Errorf("Expected preflight short-circuit, got %d called=%v", rec.Code, called)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), UserIDHeader) {
		t.Error("Expected identity header to be allowed")
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mark("outer"), mark("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "outer,inner,handler" {
		t.Errorf("Unexpected order %v", order)
	}
}

func TestLogger_AccessLine(t *testing.T) {
	var buf bytes.Buffer
	h := Logger(logger.NewWithWriter(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusBadGateway, "upstream")
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/payments/p1/approve", nil)
	req.Header.Set(UserIDHeader, "admin-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"status":502`, `"user_id":"admin-1"`, `"bytes":21`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in %s", want, out)
		}
	}
}
