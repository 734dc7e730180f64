package auth

import (
	"context"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/internal/domain/identity"
)

// Composite tries each of an ordered list of providers in turn and returns
// the first success. If every provider fails, it returns the most
// informative error per apperr.MostInformative's priority ordering, not
// the order providers were tried in.
type Composite struct {
	providers []Provider
}

func NewComposite(providers ...Provider) *Composite {
	return &Composite{providers: providers}
}

func (c *Composite) Name() string { return "composite" }

func (c *Composite) Authenticate(ctx context.Context, token string) (identity.Identity, *apperr.AuthError) {
	var worst *apperr.AuthError
	for _, p := range c.providers {
		id, authErr := p.Authenticate(ctx, token)
		if authErr == nil {
			return id, nil
		}
		worst = apperr.MostInformative(worst, authErr)
	}
	if worst == nil {
		worst = apperr.NewAuthError(apperr.AuthMissingCredentials, "")
	}
	return identity.Identity{}, worst
}
