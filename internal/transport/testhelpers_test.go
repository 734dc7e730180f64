package transport

import (
	"context"
	"net"
	"time"
)

// unsafeDialContextForTests dials addr directly, bypassing the SSRF
// guard's blocked-range check, so tests can point an HTTPTransport or
// SSETransport at an httptest.Server bound to 127.0.0.1. It must never be
// referenced outside _test.go files.
func unsafeDialContextForTests() func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return dialer.DialContext
}
