package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcpguard/mcp-guard/internal/ctxkey"
	"github.com/mcpguard/mcp-guard/internal/tracing"
)

// LoggerKey is the context key for the request-scoped logger. Shares its
// type with ctxkey.LoggerKey so any package holding a context built by
// this middleware can retrieve the same logger without importing httpapi.
var LoggerKey = ctxkey.LoggerKey{}

type traceIDContextKey struct{}

// securityHeaders sets the fixed set of headers every response carries,
// regardless of route or outcome.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// tracingMiddleware extracts an inbound W3C trace context from
// traceparent/tracestate, opens a span for the request, and stamps the
// response with X-Trace-ID so a caller can correlate without parsing
// traceparent itself.
func tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := tracing.Propagator().Extract(r.Context(), propagationCarrier(r.Header))

		ctx, span := tracing.Tracer().Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		traceID := span.SpanContext().TraceID()
		var traceIDStr string
		if traceID.IsValid() {
			traceIDStr = traceID.String()
		} else {
			traceIDStr = uuid.New().String()
		}
		w.Header().Set("X-Trace-ID", traceIDStr)

		ctx = context.WithValue(ctx, traceIDContextKey{}, traceIDStr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// propagationCarrier adapts http.Header to propagation.TextMapCarrier.
type propagationCarrier http.Header

func (c propagationCarrier) Get(key string) string   { return http.Header(c).Get(key) }
func (c propagationCarrier) Set(key, value string)    { http.Header(c).Set(key, value) }
func (c propagationCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func traceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDContextKey{}).(string)
	return id
}

// requestLogger enriches the context with a logger carrying request_id
// and trace_id fields, retrievable via LoggerFromContext.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			enriched := logger.With("request_id", requestID, "trace_id", traceIDFromContext(r.Context()))
			ctx := context.WithValue(r.Context(), LoggerKey, enriched)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the request-scoped logger, falling back to
// slog.Default() if none was attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// statusRecorder wraps http.ResponseWriter to capture the status code a
// handler ultimately wrote, for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// timing records request duration and status to metrics, and tracks the
// in-flight request gauge across the handler's lifetime.
func timing(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.InFlightRequests.Inc()
			defer metrics.InFlightRequests.Dec()

			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			metrics.RequestDuration.WithLabelValues(r.Method).Observe(duration)
			metrics.RequestsTotal.WithLabelValues(r.Method, statusToLabel(wrapped.status)).Inc()
		})
	}
}

// extractRealIP returns the client's address for audit/logging purposes,
// preferring X-Forwarded-For's first hop, then X-Real-IP, then
// RemoteAddr. Not used for client-cert trust — that check is always
// against RemoteAddr directly, since forwarded headers are
// attacker-controlled unless the immediate peer is itself trusted.
func extractRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func syntheticID() string {
	return uuid.New().String()
}
