package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/mcpguard/mcp-guard/internal/app"
)

type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	UptimeSecs int64  `json:"uptime_secs"`
}

// healthHandler always returns 200 while the process can respond at all —
// it never depends on readiness.
func healthHandler(state *app.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:     "healthy",
			Version:    state.Version,
			UptimeSecs: int64(state.Uptime().Seconds()),
		})
	}
}

// liveHandler is true as soon as the process is serving HTTP at all.
func liveHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// readyHandler returns 503 until every startup constructor has
// succeeded, 200 after.
func readyHandler(state *app.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !state.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
