// Package auth implements the authentication chain: a Provider turns a
// bearer token (or, for the client-certificate provider, request metadata)
// into an identity.Identity, or reports a typed apperr.AuthError. A
// Composite strings several providers together and returns the first
// success or the most informative failure.
package auth

import (
	"context"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/internal/domain/identity"
)

// Provider authenticates a bearer token into an Identity. Name is stable
// and used for metrics and audit — it must never change across releases
// for a given provider kind.
type Provider interface {
	Authenticate(ctx context.Context, token string) (identity.Identity, *apperr.AuthError)
	Name() string
}
