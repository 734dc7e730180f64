package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
)

func signHS256(t *testing.T, secret string, claims tokenClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestJWTProviderSimpleModeValid(t *testing.T) {
	p := NewJWTProvider(JWTConfig{Mode: JWTModeSimple, Secret: "shared-secret"})
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scope: "read write",
	}
	token := signHS256(t, "shared-secret", claims)

	id, authErr := p.Authenticate(context.Background(), token)
	if authErr != nil {
		t.Fatalf("unexpected error: %v", authErr)
	}
	if id.ID != "user-1" {
		t.Fatalf("expected subject user-1, got %q", id.ID)
	}
	if !id.CanCall("anything") {
		t.Fatal("expected unrestricted identity with no scope mapping configured")
	}
}

func TestJWTProviderRejectsWrongSecret(t *testing.T) {
	p := NewJWTProvider(JWTConfig{Mode: JWTModeSimple, Secret: "correct-secret"})
	claims := tokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	token := signHS256(t, "wrong-secret", claims)

	_, authErr := p.Authenticate(context.Background(), token)
	if authErr == nil {
		t.Fatal("expected signature verification failure")
	}
}

func TestJWTProviderExpiredTokenClassifiedDistinctly(t *testing.T) {
	p := NewJWTProvider(JWTConfig{Mode: JWTModeSimple, Secret: "shared-secret"})
	claims := tokenClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}}
	token := signHS256(t, "shared-secret", claims)

	_, authErr := p.Authenticate(context.Background(), token)
	if authErr == nil {
		t.Fatal("expected expiry failure")
	}
	if authErr.Kind != apperr.AuthTokenExpired {
		t.Fatalf("expected AuthTokenExpired, got %v", authErr.Kind)
	}
}

func TestJWTProviderScopeMapping(t *testing.T) {
	p := NewJWTProvider(JWTConfig{
		Mode:             JWTModeSimple,
		Secret:           "shared-secret",
		ScopeToolMapping: ScopeToolMapping{"read": {"read_file"}},
	})
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Scope:            "read",
	}
	token := signHS256(t, "shared-secret", claims)

	id, authErr := p.Authenticate(context.Background(), token)
	if authErr != nil {
		t.Fatalf("unexpected error: %v", authErr)
	}
	if !id.CanCall("read_file") || id.CanCall("write_file") {
		t.Fatalf("unexpected allow-set for identity: %+v", id)
	}
}

func TestJWTProviderRejectsNoneAlgorithm(t *testing.T) {
	p := NewJWTProvider(JWTConfig{Mode: JWTModeSimple, Secret: "shared-secret"})
	claims := tokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("build unsigned token: %v", err)
	}

	_, authErr := p.Authenticate(context.Background(), unsigned)
	if authErr == nil {
		t.Fatal("expected rejection of alg=none token")
	}
}

func TestJWTProviderMissingCredentials(t *testing.T) {
	p := NewJWTProvider(JWTConfig{Mode: JWTModeSimple, Secret: "shared-secret"})
	_, authErr := p.Authenticate(context.Background(), "")
	if authErr == nil {
		t.Fatal("expected missing-credentials error")
	}
}
