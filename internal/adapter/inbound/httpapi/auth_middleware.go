package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcpguard/mcp-guard/internal/app"
	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/internal/domain/audit"
	"github.com/mcpguard/mcp-guard/internal/domain/auth"
	"github.com/mcpguard/mcp-guard/internal/domain/identity"
)

type identityContextKey struct{}

// identityFromContext retrieves the Identity authMiddleware attached, or
// the zero Identity if none was (never called on an unauthenticated
// route).
func identityFromContext(ctx context.Context) identity.Identity {
	id, _ := ctx.Value(identityContextKey{}).(identity.Identity)
	return id
}

// authMiddleware enforces §4.6 step 4: client-certificate trust if
// configured, else a bearer token dispatched to the composite
// authenticator. Only wraps protected routes.
func authMiddleware(state *app.State) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := LoggerFromContext(ctx)

			id, authErr := authenticate(state, r)
			if authErr != nil {
				logger.Warn("authentication failed", "kind", authErr.Kind, "detail", authErr.Detail)
				state.Audit.Enqueue(audit.Event{
					Type:      audit.EventAuthFailure,
					RequestID: traceIDFromContext(ctx),
					Payload: audit.RedactPayload(map[string]any{
						"reason":    authErr.Error(),
						"client_ip": extractRealIP(r),
						"path":      r.URL.Path,
					}),
				})
				writeError(w, traceIDFromContext(ctx), apperr.StatusCode(authErr), apperr.SafeMessage(authErr))
				return
			}

			state.Audit.Enqueue(audit.Event{
				Type:       audit.EventAuthSuccess,
				IdentityID: id.ID,
				RequestID:  traceIDFromContext(ctx),
				Payload:    map[string]any{"provider": id.Provider},
			})

			ctx = context.WithValue(ctx, identityContextKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(state *app.State, r *http.Request) (identity.Identity, *apperr.AuthError) {
	if state.ClientCert != nil {
		mtls := state.Config.Auth.MTLS
		req := auth.ClientCertRequest{
			PeerAddr:       r.RemoteAddr,
			VerifiedHeader: r.Header.Get(mtls.VerifiedHeader),
			SubjectHeader:  r.Header.Get(mtls.CertHeader),
		}
		if id, err := state.ClientCert.AuthenticateRequest(r.Context(), req); err == nil {
			return id, nil
		}
	}

	token, ok := bearerToken(r)
	if !ok {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthMissingCredentials, "missing Authorization header")
	}
	return state.Auth.Authenticate(r.Context(), token)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(h, prefix)
	if token == "" {
		return "", false
	}
	return token, true
}
