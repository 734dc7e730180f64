package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/mcpguard/mcp-guard/internal/app"
)

type routeStatusResponse struct {
	Prefix    string `json:"prefix"`
	IsHealthy bool   `json:"is_healthy"`
}

// routesHandler enumerates the configured upstream prefixes and each
// one's transport health. NewServer mounts it only in router mode, so a
// single-upstream gateway has no /routes endpoint.
func routesHandler(state *app.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var out []routeStatusResponse
		if state.Router != nil {
			for _, rt := range state.Router.Routes() {
				out = append(out, routeStatusResponse{Prefix: rt.Prefix, IsHealthy: rt.IsHealthy})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(out)
	}
}
