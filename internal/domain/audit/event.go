// Package audit implements the lossy, non-blocking event pipeline: every
// producer (auth middleware, the handler, the rate limiter) enqueues a
// tagged record onto a bounded channel; a single background task drains it
// and fans out to whichever sinks are configured.
package audit

import (
	"strings"
	"time"
)

// EventType tags why an AuditEvent was produced.
type EventType string

const (
	EventAuthSuccess     EventType = "auth_success"
	EventAuthFailure     EventType = "auth_failure"
	EventRateLimited     EventType = "rate_limited"
	EventToolCall        EventType = "tool_call"
	EventToolCallDenied  EventType = "tool_call_denied"
	EventTransportError  EventType = "transport_error"
	EventProtocolError   EventType = "protocol_error"
)

// Event is a single auditable occurrence. IdentityID and RequestID are
// optional — some events (a malformed request that never resolved an
// identity) have neither. Payload carries event-specific detail and must
// already be redacted by the producer before Enqueue is called; the
// pipeline does not re-inspect it.
type Event struct {
	Type       EventType
	Timestamp  time.Time
	IdentityID string
	RequestID  string
	Payload    map[string]any
}

// sensitiveKeywords lists substrings that mark a payload key as sensitive.
// Matching is case-insensitive.
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "auth", "private_key", "privatekey",
}

const redactedPlaceholder = "***REDACTED***"

// RedactPayload returns a copy of payload with sensitive values masked. A
// key is sensitive if it contains any of sensitiveKeywords. Producers call
// this before Enqueue so credentials and tool arguments carrying secrets
// never reach a sink.
func RedactPayload(payload map[string]any) map[string]any {
	if len(payload) == 0 {
		return payload
	}
	redacted := make(map[string]any, len(payload))
	for k, v := range payload {
		if isSensitiveKey(k) {
			redacted[k] = redactedPlaceholder
		} else {
			redacted[k] = v
		}
	}
	return redacted
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
