package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func rsaJWK(t *testing.T, kid string, pub *rsa.PublicKey) jwksKey {
	t.Helper()
	eBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(eBytes, uint64(pub.E))
	for len(eBytes) > 1 && eBytes[0] == 0 {
		eBytes = eBytes[1:]
	}
	return jwksKey{
		Kty: "RSA",
		Kid: kid,
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(eBytes),
	}
}

func TestJWKSCacheFetchesAndCachesKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_ = json.NewEncoder(w).Encode(jwksDocument{Keys: []jwksKey{rsaJWK(t, "kid-1", &priv.PublicKey)}})
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Hour, 0, nil)
	defer cache.Close()

	key, err := cache.Key(t.Context(), "kid-1")
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", key)
	}
	if pub.N.Cmp(priv.PublicKey.N) != 0 {
		t.Fatal("decoded modulus does not match original key")
	}

	if _, err := cache.Key(t.Context(), "kid-1"); err != nil {
		t.Fatalf("second lookup should hit cache: %v", err)
	}
	if requests != 1 {
		t.Fatalf("expected one fetch, got %d", requests)
	}
}

func TestJWKSCacheUnknownKeyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwksDocument{Keys: nil})
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Hour, 0, nil)
	defer cache.Close()

	if _, err := cache.Key(t.Context(), "missing"); err == nil {
		t.Fatal("expected an error for an unknown key id")
	}
}

func TestJWKSCacheCloseIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwksDocument{})
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Hour, 10*time.Millisecond, nil)
	cache.Close()
	cache.Close()
}
