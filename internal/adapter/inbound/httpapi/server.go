// Package httpapi implements the gateway's HTTP front end: the
// middleware stack and routes of spec §4.6, composed over an
// already-built app.State.
package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpguard/mcp-guard/internal/app"
)

// NewServer builds the complete HTTP handler for state: the protected
// MCP routes (POST /mcp, POST /mcp/*) behind the full middleware stack,
// and the public operational routes behind security headers and timing
// only.
func NewServer(state *app.State) http.Handler {
	metrics := NewMetrics(state.Registry)
	correlators := newCorrelatorSet(state.Logger)

	mux := http.NewServeMux()

	protected := chain(
		mcpHandlerFunc(state, correlators),
		securityHeaders,
		tracingMiddleware,
		timing(metrics),
		requestLogger(state.Logger),
		authMiddleware(state),
	)
	mux.Handle("POST /mcp", protected)
	mux.Handle("POST /mcp/{rest...}", protected)

	public := func(h http.Handler) http.Handler {
		return chain(h, securityHeaders, timing(metrics))
	}
	mux.Handle("GET /health", public(healthHandler(state)))
	mux.Handle("GET /live", public(http.HandlerFunc(liveHandler)))
	mux.Handle("GET /ready", public(readyHandler(state)))
	mux.Handle("GET /metrics", public(promhttp.HandlerFor(state.Registry, promhttp.HandlerOpts{})))

	if state.RouterMode() {
		mux.Handle("GET /routes", public(routesHandler(state)))
	}

	mux.Handle("/", public(http.HandlerFunc(notFoundHandler)))

	return mux
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, traceIDFromContext(r.Context()), http.StatusNotFound, "not found")
}
