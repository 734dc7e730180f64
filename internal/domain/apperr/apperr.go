// Package apperr defines the tagged error taxonomy shared across every
// boundary mcp-guard crosses: provider → pipeline, transport → pipeline,
// and pipeline → client. Each kind maps to exactly one HTTP status and one
// client-safe message; the specific kind and full cause are reserved for
// logs and audit.
package apperr

import (
	"errors"
	"fmt"
)

// AuthKind tags why authentication failed. Ordering matters: Composite
// providers (internal/domain/auth) rank failures by this taxonomy's
// priority, not by provider order, so the error returned when every
// provider fails is deterministic and observable.
type AuthKind int

const (
	AuthMissingCredentials AuthKind = iota
	AuthInvalidAPIKey
	AuthInvalidClientCert
	AuthOAuth
	AuthInvalidJWT
	AuthTokenExpired
	AuthInternal
)

// authPriority ranks AuthKind from least to most informative. A composite
// provider failing on every branch returns the error with the highest
// priority value, per the ordering
// TokenExpired > InvalidJwt > OAuth > InvalidClientCert > InvalidApiKey > MissingCredentials.
var authPriority = map[AuthKind]int{
	AuthMissingCredentials: 0,
	AuthInvalidAPIKey:      1,
	AuthInvalidClientCert:  2,
	AuthOAuth:              3,
	AuthInvalidJWT:         4,
	AuthTokenExpired:       5,
	AuthInternal:           6,
}

// AuthError is returned by an AuthProvider's Authenticate. Detail is never
// shown to the client — see SafeMessage — but is always logged.
type AuthError struct {
	Kind   AuthKind
	Detail string
	cause  error
}

func NewAuthError(kind AuthKind, detail string) *AuthError {
	return &AuthError{Kind: kind, Detail: detail}
}

func WrapAuthError(kind AuthKind, detail string, cause error) *AuthError {
	return &AuthError{Kind: kind, Detail: detail, cause: cause}
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return authKindName(e.Kind)
	}
	return fmt.Sprintf("%s: %s", authKindName(e.Kind), e.Detail)
}

func (e *AuthError) Unwrap() error { return e.cause }

func authKindName(k AuthKind) string {
	switch k {
	case AuthMissingCredentials:
		return "missing_credentials"
	case AuthInvalidAPIKey:
		return "invalid_api_key"
	case AuthInvalidClientCert:
		return "invalid_client_cert"
	case AuthOAuth:
		return "oauth"
	case AuthInvalidJWT:
		return "invalid_jwt"
	case AuthTokenExpired:
		return "token_expired"
	default:
		return "internal"
	}
}

// MostInformative returns whichever of a, b ranks higher in the composite
// priority ordering. Either may be nil; MostInformative(nil, nil) is nil.
func MostInformative(a, b *AuthError) *AuthError {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case authPriority[b.Kind] > authPriority[a.Kind]:
		return b
	default:
		return a
	}
}

// TransportKind tags why a Transport operation failed.
type TransportKind int

const (
	TransportIo TransportKind = iota
	TransportTimeout
	TransportConnectionClosed
	TransportSerialization
	TransportInvalidMessage
	TransportSsrf
	TransportCommandInjection
)

// TransportError is returned by Transport.Send/Receive/dial. Ssrf,
// CommandInjection, and Serialization are fatal config/programmer errors
// (surfaced as 500); the rest surface as 502.
type TransportError struct {
	Kind   TransportKind
	Detail string
	cause  error
}

func NewTransportError(kind TransportKind, detail string) *TransportError {
	return &TransportError{Kind: kind, Detail: detail}
}

func WrapTransportError(kind TransportKind, detail string, cause error) *TransportError {
	return &TransportError{Kind: kind, Detail: detail, cause: cause}
}

func (e *TransportError) Error() string {
	if e.Detail == "" {
		return transportKindName(e.Kind)
	}
	return fmt.Sprintf("%s: %s", transportKindName(e.Kind), e.Detail)
}

func (e *TransportError) Unwrap() error { return e.cause }

// Fatal reports whether this kind should surface as a 500 (config/programmer
// error) rather than a 502 (transient upstream failure).
func (e *TransportError) Fatal() bool {
	switch e.Kind {
	case TransportSsrf, TransportCommandInjection, TransportSerialization:
		return true
	default:
		return false
	}
}

func transportKindName(k TransportKind) string {
	switch k {
	case TransportIo:
		return "io"
	case TransportTimeout:
		return "timeout"
	case TransportConnectionClosed:
		return "connection_closed"
	case TransportSerialization:
		return "serialization"
	case TransportInvalidMessage:
		return "invalid_message"
	case TransportSsrf:
		return "ssrf"
	case TransportCommandInjection:
		return "command_injection"
	default:
		return "unknown"
	}
}

// AppErrorKind tags a pipeline-level error that isn't an auth or transport
// failure: rate limiting, tool denial, routing, or an uncategorized
// internal fault.
type AppErrorKind int

const (
	AppRateLimited AppErrorKind = iota
	AppToolDenied
	AppNotFound
	AppInvalidRequest
	AppInternal
)

// AppError is the pipeline's own error type, carrying enough to pick an
// HTTP status without re-deriving it from a message string.
type AppError struct {
	Kind   AppErrorKind
	Detail string
	cause  error
}

func NewAppError(kind AppErrorKind, detail string) *AppError {
	return &AppError{Kind: kind, Detail: detail}
}

func WrapAppError(kind AppErrorKind, detail string, cause error) *AppError {
	return &AppError{Kind: kind, Detail: detail, cause: cause}
}

func (e *AppError) Error() string {
	if e.Detail == "" {
		return appKindName(e.Kind)
	}
	return fmt.Sprintf("%s: %s", appKindName(e.Kind), e.Detail)
}

func (e *AppError) Unwrap() error { return e.cause }

func appKindName(k AppErrorKind) string {
	switch k {
	case AppRateLimited:
		return "rate_limited"
	case AppToolDenied:
		return "tool_denied"
	case AppNotFound:
		return "not_found"
	case AppInvalidRequest:
		return "invalid_request"
	default:
		return "internal"
	}
}

// SafeMessage returns the client-facing message for err, never leaking
// transport internals, credentials, or upstream response bodies. The
// specific kind and full cause belong in logs and audit only — callers
// must log err themselves alongside the error_id returned by this message's
// envelope.
func SafeMessage(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return "authentication required"
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Fatal() {
			return "internal error"
		}
		return "upstream unavailable"
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case AppRateLimited:
			return "rate limit exceeded"
		case AppToolDenied:
			return "tool call denied"
		case AppNotFound:
			return "not found"
		case AppInvalidRequest:
			return "invalid request"
		default:
			return "internal error"
		}
	}

	return "internal error"
}

// StatusCode maps err to the HTTP status the pipeline must return for it.
// Auth failures always map to 401 regardless of kind, so the status never
// leaks which provider or reason caused the failure (§7).
func StatusCode(err error) int {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return 401
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Fatal() {
			return 500
		}
		return 502
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case AppRateLimited:
			return 429
		case AppToolDenied:
			return 403
		case AppNotFound:
			return 404
		case AppInvalidRequest:
			return 400
		default:
			return 500
		}
	}

	return 500
}
