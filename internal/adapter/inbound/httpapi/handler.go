package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mcpguard/mcp-guard/internal/app"
	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/internal/domain/audit"
	"github.com/mcpguard/mcp-guard/internal/domain/ratelimit"
	"github.com/mcpguard/mcp-guard/pkg/mcp"
)

// errorEnvelope is the unified client-facing error shape (spec §7): a
// sanitized message plus a correlation id callers can hand back to
// operators, who can then grep logs for the same id.
type errorEnvelope struct {
	Error   string `json:"error"`
	ErrorID string `json:"error_id"`
}

func writeError(w http.ResponseWriter, errorID string, status int, message string) {
	if errorID == "" {
		errorID = syntheticID()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: message, ErrorID: errorID})
}

// writeProtocolError rejects a message the gateway cannot safely correlate
// or forward with a JSON-RPC error body (rather than the generic
// errorEnvelope), since the failure is at the JSON-RPC protocol level, not
// an application-level denial. status is always in the 400 class (spec
// §9): an absent/null/duplicate id is a client protocol error, never
// something the gateway fabricates or guesses its way around.
func writeProtocolError(w http.ResponseWriter, status int, code int64, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(mcp.NewError(nil, code, message))
}

func setRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatFloat(result.Limit, 'f', -1, 64))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(result.RetryAfter)))
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second) // round up, never 0 for a positive duration
	if secs < 1 {
		secs = 1
	}
	return secs
}

// mcpHandlerFunc dispatches to state's single transport (for any path it
// is mounted on) or, in router mode, to whichever transport matches
// r.URL.Path's prefix.
// It is wrapped by the protected middleware chain, so an Identity is
// already attached to the request context by the time this runs.
func mcpHandlerFunc(state *app.State, correlators *correlatorSet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := LoggerFromContext(ctx)
		traceID := traceIDFromContext(ctx)
		id := identityFromContext(ctx)

		result, rlErr := state.RateLimiter.Check(ctx, id.ID, id.RequestsPerSecond)
		if rlErr != nil {
			writeError(w, traceID, http.StatusInternalServerError, "internal error")
			return
		}
		if !result.Allowed {
			setRateLimitHeaders(w, result)
			state.Audit.Enqueue(audit.Event{
				Type:       audit.EventRateLimited,
				IdentityID: id.ID,
				RequestID:  traceID,
			})
			writeError(w, traceID, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		var msg mcp.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			writeError(w, traceID, http.StatusBadRequest, "invalid request")
			return
		}

		if msg.IsRequest() && !msg.HasUsableID() {
			state.Audit.Enqueue(audit.Event{
				Type:       audit.EventProtocolError,
				IdentityID: id.ID,
				RequestID:  traceID,
				Payload:    map[string]any{"reason": "missing or null id"},
			})
			writeProtocolError(w, http.StatusBadRequest, mcp.ErrCodeInvalidRequest, "request id must be present and non-null")
			return
		}

		transport, ok := state.GetTransport(r.URL.Path)
		if !ok {
			writeError(w, traceID, http.StatusNotFound, "not found")
			return
		}

		if msg.IsToolCall() {
			if denyErr := state.Filter.CheckToolCall(id, &msg); denyErr != nil {
				state.Audit.Enqueue(audit.Event{
					Type:       audit.EventToolCallDenied,
					IdentityID: id.ID,
					RequestID:  traceID,
					Payload:    map[string]any{"tool": msg.ToolName()},
				})
				setRateLimitHeaders(w, result)
				writeError(w, traceID, apperr.StatusCode(denyErr), apperr.SafeMessage(denyErr))
				return
			}
		}

		resp, err := correlators.forTransport(transport).await(ctx, &msg)
		if err != nil {
			var appErr *apperr.AppError
			if errors.As(err, &appErr) && appErr.Kind == apperr.AppInvalidRequest {
				state.Audit.Enqueue(audit.Event{
					Type:       audit.EventProtocolError,
					IdentityID: id.ID,
					RequestID:  traceID,
					Payload:    map[string]any{"reason": "duplicate request id"},
				})
				setRateLimitHeaders(w, result)
				writeProtocolError(w, http.StatusBadRequest, mcp.ErrCodeInvalidRequest, "request id already in flight")
				return
			}
			logger.Error("upstream transport failure", "error", err)
			state.Audit.Enqueue(audit.Event{
				Type:       audit.EventTransportError,
				IdentityID: id.ID,
				RequestID:  traceID,
				Payload:    map[string]any{"error": err.Error()},
			})
			setRateLimitHeaders(w, result)
			writeError(w, traceID, apperr.StatusCode(err), apperr.SafeMessage(err))
			return
		}

		if msg.IsToolsList() {
			resp = state.Filter.FilterToolsList(id, resp)
		}

		state.Audit.Enqueue(audit.Event{
			Type:       audit.EventToolCall,
			IdentityID: id.ID,
			RequestID:  traceID,
			Payload:    audit.RedactPayload(map[string]any{"method": msg.Method}),
		})

		setRateLimitHeaders(w, result)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
