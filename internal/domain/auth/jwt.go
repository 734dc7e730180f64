package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/internal/domain/identity"
)

// allowedAlgorithms is the signature algorithm allowlist. "none" and any
// algorithm not on this list are rejected before verification, closing off
// algorithm-confusion attacks.
var allowedAlgorithms = map[string]bool{
	"RS256": true, "RS384": true, "RS512": true,
	"ES256": true, "ES384": true, "ES512": true,
	"HS256": true, "HS384": true, "HS512": true,
}

// JWTMode selects how a JWTProvider verifies signatures.
type JWTMode int

const (
	// JWTModeSimple verifies with a single shared secret (HMAC).
	JWTModeSimple JWTMode = iota
	// JWTModeJWKS verifies against a remote, cached key set (RSA/EC).
	JWTModeJWKS
)

// JWTConfig configures a JWTProvider.
type JWTConfig struct {
	Mode             JWTMode
	Secret           string
	JWKS             *JWKSCache
	Issuer           string
	Audience         string
	ScopeToolMapping ScopeToolMapping
}

// JWTProvider authenticates signed tokens: HMAC with a shared secret, or
// RSA/EC verified against a JWKS endpoint.
type JWTProvider struct {
	cfg JWTConfig
}

func NewJWTProvider(cfg JWTConfig) *JWTProvider {
	return &JWTProvider{cfg: cfg}
}

func (p *JWTProvider) Name() string { return "jwt" }

// tokenClaims is the subset of standard and scope claims mcp-guard reads
// out of a validated token.
type tokenClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

func (p *JWTProvider) Authenticate(_ context.Context, token string) (identity.Identity, *apperr.AuthError) {
	if token == "" {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthMissingCredentials, "")
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, p.keyFunc, jwt.WithValidMethods(allowedAlgorithmNames()))
	if err != nil {
		return identity.Identity{}, classifyJWTError(err)
	}
	if !parsed.Valid {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthInvalidJWT, "token failed validation")
	}

	if p.cfg.Issuer != "" && claims.Issuer != p.cfg.Issuer {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthInvalidJWT, "unexpected issuer")
	}
	if p.cfg.Audience != "" && !audienceContains(claims.Audience, p.cfg.Audience) {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthInvalidJWT, "unexpected audience")
	}

	scopes := parseScopes(claims.Scope)
	allowed := p.cfg.ScopeToolMapping.ResolveTools(scopes)

	subject := claims.Subject
	if subject == "" {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthInvalidJWT, "missing subject")
	}

	claimsMap := map[string]any{
		"sub":   claims.Subject,
		"iss":   claims.Issuer,
		"scope": claims.Scope,
	}

	return identity.Identity{
		ID:       subject,
		Allow:    identity.AllowSetFromConfig(allowed),
		Claims:   claimsMap,
		Provider: p.Name(),
	}, nil
}

func (p *JWTProvider) keyFunc(token *jwt.Token) (any, error) {
	switch p.cfg.Mode {
	case JWTModeSimple:
		return []byte(p.cfg.Secret), nil
	case JWTModeJWKS:
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("jwt: token missing kid for jwks verification")
		}
		return p.cfg.JWKS.Key(context.Background(), kid)
	default:
		return nil, fmt.Errorf("jwt: unknown mode")
	}
}

func classifyJWTError(err error) *apperr.AuthError {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return apperr.WrapAuthError(apperr.AuthTokenExpired, "token expired", err)
	}
	return apperr.WrapAuthError(apperr.AuthInvalidJWT, "token invalid", err)
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

func parseScopes(raw string) []string {
	if raw == "" {
		return nil
	}
	var scopes []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ' ' {
			if i > start {
				scopes = append(scopes, raw[start:i])
			}
			start = i + 1
		}
	}
	return scopes
}

func allowedAlgorithmNames() []string {
	names := make([]string, 0, len(allowedAlgorithms))
	for name := range allowedAlgorithms {
		names = append(names, name)
	}
	return names
}
