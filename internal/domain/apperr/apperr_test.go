package apperr

import (
	"errors"
	"testing"
)

func TestMostInformativePriorityOrdering(t *testing.T) {
	apiKey := NewAuthError(AuthInvalidAPIKey, "")
	jwt := NewAuthError(AuthInvalidJWT, "")
	expired := NewAuthError(AuthTokenExpired, "")

	// Every order of combination must settle on TokenExpired, per the
	// ordering TokenExpired > InvalidJwt > OAuth > InvalidClientCert >
	// InvalidApiKey > MissingCredentials.
	orders := [][]*AuthError{
		{apiKey, jwt, expired},
		{expired, jwt, apiKey},
		{jwt, expired, apiKey},
	}
	for _, order := range orders {
		var winner *AuthError
		for _, e := range order {
			winner = MostInformative(winner, e)
		}
		if winner.Kind != AuthTokenExpired {
			t.Fatalf("expected TokenExpired to win, got %v", winner.Kind)
		}
	}
}

func TestMostInformativeHandlesNil(t *testing.T) {
	if MostInformative(nil, nil) != nil {
		t.Fatal("expected nil, nil -> nil")
	}
	e := NewAuthError(AuthMissingCredentials, "")
	if MostInformative(nil, e) != e {
		t.Fatal("expected nil, e -> e")
	}
	if MostInformative(e, nil) != e {
		t.Fatal("expected e, nil -> e")
	}
}

func TestSafeMessageNeverLeaksDetail(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:6379: connection refused, credentials=supersecret")
	err := WrapTransportError(TransportIo, "upstream dial failed", cause)

	msg := SafeMessage(err)
	if msg == cause.Error() || msg == err.Error() {
		t.Fatalf("SafeMessage leaked internal detail: %q", msg)
	}
	if msg != "upstream unavailable" {
		t.Fatalf("unexpected safe message: %q", msg)
	}
}

func TestSafeMessageAuthAlwaysGeneric(t *testing.T) {
	kinds := []AuthKind{AuthMissingCredentials, AuthInvalidAPIKey, AuthInvalidJWT, AuthTokenExpired, AuthOAuth, AuthInvalidClientCert, AuthInternal}
	for _, k := range kinds {
		err := NewAuthError(k, "specific internal reason")
		if got := SafeMessage(err); got != "authentication required" {
			t.Fatalf("kind %v: expected generic auth message, got %q", k, got)
		}
		if got := StatusCode(err); got != 401 {
			t.Fatalf("kind %v: expected 401, got %d", k, got)
		}
	}
}

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewTransportError(TransportSsrf, ""), 500},
		{NewTransportError(TransportCommandInjection, ""), 500},
		{NewTransportError(TransportSerialization, ""), 500},
		{NewTransportError(TransportIo, ""), 502},
		{NewTransportError(TransportTimeout, ""), 502},
		{NewTransportError(TransportConnectionClosed, ""), 502},
		{NewAppError(AppRateLimited, ""), 429},
		{NewAppError(AppToolDenied, ""), 403},
		{NewAppError(AppNotFound, ""), 404},
		{NewAppError(AppInvalidRequest, ""), 400},
		{NewAppError(AppInternal, ""), 500},
		{NewAuthError(AuthInvalidAPIKey, ""), 401},
		{errors.New("unclassified"), 500},
	}
	for _, tc := range cases {
		if got := StatusCode(tc.err); got != tc.want {
			t.Fatalf("StatusCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := WrapAppError(AppInternal, "context", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}
