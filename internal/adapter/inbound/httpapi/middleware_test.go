package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeadersSetOnEveryResponse(t *testing.T) {
	handler := securityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options = %q, want DENY", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatal("expected Content-Security-Policy to be set")
	}
}

func TestTracingMiddlewareStampsTraceID(t *testing.T) {
	handler := tracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if traceIDFromContext(r.Context()) == "" {
			t.Error("expected a trace id to be attached to the request context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected X-Trace-ID response header to be set")
	}
}

func TestTimingMiddlewareRecordsRequestMetrics(t *testing.T) {
	metrics := NewMetrics(newTestRegistry())
	handler := timing(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	count := testutilCounterValue(t, metrics.RequestsTotal.WithLabelValues(http.MethodGet, statusToLabel(http.StatusTeapot)))
	if count != 1 {
		t.Fatalf("requests_total = %v, want 1", count)
	}
}

func TestExtractRealIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	req.RemoteAddr = "10.0.0.1:5000"

	if got := extractRealIP(req); got != "203.0.113.5" {
		t.Fatalf("extractRealIP = %q, want 203.0.113.5", got)
	}
}

func TestExtractRealIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.RemoteAddr = "192.0.2.1:54321"

	if got := extractRealIP(req); got != "192.0.2.1" {
		t.Fatalf("extractRealIP = %q, want 192.0.2.1", got)
	}
}
