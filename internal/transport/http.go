package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/pkg/mcp"
)

// DefaultHTTPTimeout bounds a single request/response round trip to an
// upstream HTTP MCP server.
const DefaultHTTPTimeout = 30 * time.Second

// maxResponseBytes bounds a single upstream HTTP response body.
const maxResponseBytes = 16 << 20

// HTTPTransport sends each outbound message as its own POST to an
// upstream MCP server's URL and treats the response body as the inbound
// message. Requests are issued by Send and their decoded responses handed
// back through Receive via a buffered channel, so a caller's Send/Receive
// loop stays symmetric with the stdio and SSE transports even though HTTP
// has no persistent connection to read from.
type HTTPTransport struct {
	url    string
	client *http.Client

	inbound chan *mcp.Message
	errs    chan error

	healthy atomic.Bool
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// NewHTTPTransport validates targetURL against the SSRF guard and returns a
// transport that dials through SafeDialContext, which re-resolves and pins
// the connection at request time.
func NewHTTPTransport(targetURL string, timeout time.Duration) (*HTTPTransport, error) {
	if err := ValidateUpstreamURL(targetURL); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           SafeDialContext(),
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: timeout,
		},
	}

	t := &HTTPTransport{
		url:     targetURL,
		client:  client,
		inbound: make(chan *mcp.Message, 16),
		errs:    make(chan error, 16),
	}
	t.healthy.Store(true)
	return t, nil
}

// newHTTPTransportUnchecked builds an HTTPTransport against targetURL
// without the SSRF config-time check, for tests that must point at an
// httptest.Server bound to 127.0.0.1. Never called from production code.
func newHTTPTransportUnchecked(targetURL string, client *http.Client) *HTTPTransport {
	t := &HTTPTransport{
		url:     targetURL,
		client:  client,
		inbound: make(chan *mcp.Message, 16),
		errs:    make(chan error, 16),
	}
	t.healthy.Store(true)
	return t
}

// Send POSTs msg to the upstream URL and, once the response arrives,
// decodes it and delivers it asynchronously through Receive. Notifications
// (no id, no response expected) are sent fire-and-forget.
func (t *HTTPTransport) Send(ctx context.Context, msg *mcp.Message) error {
	if t.closed.Load() {
		return apperr.NewTransportError(apperr.TransportConnectionClosed, "http transport is closed")
	}
	body, err := mcp.Encode(msg)
	if err != nil {
		return apperr.WrapTransportError(apperr.TransportSerialization, "encode outbound message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return apperr.WrapTransportError(apperr.TransportIo, "build upstream request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	t.wg.Add(1)
	go t.doRequest(ctx, req, msg.IsNotification())
	return nil
}

func (t *HTTPTransport) doRequest(ctx context.Context, req *http.Request, isNotification bool) {
	defer t.wg.Done()

	resp, err := t.client.Do(req)
	if err != nil {
		t.healthy.Store(false)
		t.deliverErr(apperr.WrapTransportError(apperr.TransportIo, "upstream request failed", err))
		return
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		t.healthy.Store(false)
		t.deliverErr(apperr.WrapTransportError(apperr.TransportIo, "read upstream response", err))
		return
	}
	if len(data) > maxResponseBytes {
		t.deliverErr(apperr.NewTransportError(apperr.TransportInvalidMessage, "upstream response exceeds size limit"))
		return
	}

	if isNotification {
		t.healthy.Store(resp.StatusCode < 500)
		return
	}

	if resp.StatusCode >= 500 {
		t.healthy.Store(false)
	} else {
		t.healthy.Store(true)
	}

	if len(data) == 0 {
		return
	}

	decoded, err := mcp.Decode(data)
	if err != nil {
		t.deliverErr(fmt.Errorf("decode upstream response: %w", err))
		return
	}
	t.deliver(decoded)
	_ = ctx
}

func (t *HTTPTransport) deliver(msg *mcp.Message) {
	select {
	case t.inbound <- msg:
	default:
		select {
		case t.inbound <- msg:
		case <-time.After(5 * time.Second):
		}
	}
}

func (t *HTTPTransport) deliverErr(err error) {
	select {
	case t.errs <- err:
	default:
	}
}

// Receive returns the next decoded response delivered by a prior Send.
func (t *HTTPTransport) Receive(ctx context.Context) (*mcp.Message, error) {
	select {
	case msg := <-t.inbound:
		return msg, nil
	case err := <-t.errs:
		return nil, err
	case <-ctx.Done():
		return nil, apperr.WrapTransportError(apperr.TransportTimeout, "receive canceled", ctx.Err())
	}
}

// Close marks the transport closed and waits for in-flight requests to
// finish delivering or erroring.
func (t *HTTPTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.wg.Wait()
	t.client.CloseIdleConnections()
	return nil
}

// IsHealthy reports whether the most recent request succeeded.
func (t *HTTPTransport) IsHealthy() bool { return t.healthy.Load() && !t.closed.Load() }

var _ Transport = (*HTTPTransport)(nil)
