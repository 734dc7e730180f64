package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOAuthProviderIntrospectionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(introspectionResponse{
			Active: true,
			Sub:    "user-42",
			Scope:  "read",
		})
	}))
	defer srv.Close()

	p := NewOAuthProvider(OAuthConfig{
		IntrospectionURL: srv.URL,
		ScopeToolMapping: ScopeToolMapping{"read": {"read_file"}},
	})

	id, authErr := p.Authenticate(context.Background(), "opaque-token")
	if authErr != nil {
		t.Fatalf("unexpected error: %v", authErr)
	}
	if id.ID != "user-42" || !id.CanCall("read_file") || id.CanCall("write_file") {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestOAuthProviderInactiveTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(introspectionResponse{Active: false})
	}))
	defer srv.Close()

	p := NewOAuthProvider(OAuthConfig{IntrospectionURL: srv.URL})
	_, authErr := p.Authenticate(context.Background(), "opaque-token")
	if authErr == nil {
		t.Fatal("expected rejection for an inactive token")
	}
}

func TestOAuthProviderFallsBackToUserinfo(t *testing.T) {
	introspectionSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer introspectionSrv.Close()

	userinfoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(userinfoResponse{Sub: "from-userinfo"})
	}))
	defer userinfoSrv.Close()

	p := NewOAuthProvider(OAuthConfig{
		IntrospectionURL: introspectionSrv.URL,
		UserinfoURL:      userinfoSrv.URL,
	})

	id, authErr := p.Authenticate(context.Background(), "opaque-token")
	if authErr != nil {
		t.Fatalf("unexpected error: %v", authErr)
	}
	if id.ID != "from-userinfo" {
		t.Fatalf("expected fallback identity, got %q", id.ID)
	}
}

func TestOAuthProviderCachesResult(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(introspectionResponse{Active: true, Sub: "user-1"})
	}))
	defer srv.Close()

	p := NewOAuthProvider(OAuthConfig{IntrospectionURL: srv.URL, CacheTTL: time.Minute})

	for i := 0; i < 3; i++ {
		if _, authErr := p.Authenticate(context.Background(), "same-token"); authErr != nil {
			t.Fatalf("unexpected error on call %d: %v", i, authErr)
		}
	}
	if calls != 1 {
		t.Fatalf("expected exactly one introspection call due to caching, got %d", calls)
	}
}
