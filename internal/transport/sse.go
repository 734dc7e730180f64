package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/pkg/mcp"
)

// DefaultSSEReconnectDelay is how long the event-stream reader waits before
// re-dialing after the upstream closes the stream or a read fails.
const DefaultSSEReconnectDelay = 2 * time.Second

// SSETransport sends outbound messages as individual HTTP POSTs to a
// message endpoint and reads inbound messages off a persistent
// server-sent-events connection, reconnecting with a fixed backoff when
// the stream drops. Grounded on the same request/response split as
// HTTPTransport, but with a background reader task instead of a
// per-request response body.
type SSETransport struct {
	eventsURL  string
	messageURL string
	client     *http.Client
	reconnect  time.Duration

	inbound chan *mcp.Message
	errs    chan error

	healthy  atomic.Bool
	closed   atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	doneOnce sync.Once
}

// NewSSETransport validates both URLs against the SSRF guard and starts
// the background event-stream reader.
func NewSSETransport(ctx context.Context, eventsURL, messageURL string, timeout time.Duration) (*SSETransport, error) {
	if err := ValidateUpstreamURL(eventsURL); err != nil {
		return nil, err
	}
	if err := ValidateUpstreamURL(messageURL); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext:           SafeDialContext(),
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: timeout,
		},
	}

	t := newSSETransport(eventsURL, messageURL, client, DefaultSSEReconnectDelay)
	t.start(ctx)
	return t, nil
}

func newSSETransport(eventsURL, messageURL string, client *http.Client, reconnect time.Duration) *SSETransport {
	return &SSETransport{
		eventsURL:  eventsURL,
		messageURL: messageURL,
		client:     client,
		reconnect:  reconnect,
		inbound:    make(chan *mcp.Message, 64),
		errs:       make(chan error, 4),
	}
}

func (t *SSETransport) start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.healthy.Store(true)
	t.wg.Add(1)
	go t.readLoop(runCtx)
}

func (t *SSETransport) readLoop(ctx context.Context) {
	defer t.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		err := t.streamOnce(ctx)
		t.healthy.Store(false)
		if err != nil {
			select {
			case t.errs <- err:
			default:
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.reconnect):
		}
	}
}

func (t *SSETransport) streamOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.eventsURL, nil)
	if err != nil {
		return apperr.WrapTransportError(apperr.TransportIo, "build event stream request", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return apperr.WrapTransportError(apperr.TransportIo, "open event stream", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.NewTransportError(apperr.TransportIo, fmt.Sprintf("event stream returned status %d", resp.StatusCode))
	}
	t.healthy.Store(true)

	reader := bufio.NewReaderSize(resp.Body, 64*1024)
	var dataLines []string
	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")

		if trimmed == "" {
			if len(dataLines) > 0 {
				t.handleEvent(strings.Join(dataLines, "\n"))
				dataLines = nil
			}
		} else if data, ok := strings.CutPrefix(trimmed, "data:"); ok {
			dataLines = append(dataLines, strings.TrimPrefix(data, " "))
		}
		// other SSE fields (event:, id:, retry:, comments) are ignored —
		// inbound JSON-RPC frames are carried entirely in data: lines.

		if err != nil {
			if err == io.EOF {
				return nil
			}
			return apperr.WrapTransportError(apperr.TransportIo, "event stream read failed", err)
		}
	}
}

func (t *SSETransport) handleEvent(payload string) {
	if strings.TrimSpace(payload) == "" {
		return
	}
	msg, err := mcp.Decode([]byte(payload))
	if err != nil {
		select {
		case t.errs <- fmt.Errorf("decode event stream payload: %w", err):
		default:
		}
		return
	}
	select {
	case t.inbound <- msg:
	case <-time.After(5 * time.Second):
	}
}

// Send POSTs msg to the message endpoint. The response, if any, arrives
// later over the event stream rather than in the POST's own body.
func (t *SSETransport) Send(ctx context.Context, msg *mcp.Message) error {
	if t.closed.Load() {
		return apperr.NewTransportError(apperr.TransportConnectionClosed, "sse transport is closed")
	}
	body, err := mcp.Encode(msg)
	if err != nil {
		return apperr.WrapTransportError(apperr.TransportSerialization, "encode outbound message", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.messageURL, bytes.NewReader(body))
	if err != nil {
		return apperr.WrapTransportError(apperr.TransportIo, "build message request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return apperr.WrapTransportError(apperr.TransportIo, "post message", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return apperr.NewTransportError(apperr.TransportIo, fmt.Sprintf("message endpoint returned status %d", resp.StatusCode))
	}
	return nil
}

// Receive returns the next message delivered over the event stream.
func (t *SSETransport) Receive(ctx context.Context) (*mcp.Message, error) {
	select {
	case msg := <-t.inbound:
		return msg, nil
	case err := <-t.errs:
		return nil, err
	case <-ctx.Done():
		return nil, apperr.WrapTransportError(apperr.TransportTimeout, "receive canceled", ctx.Err())
	}
}

// Close stops the background reader and waits for it to exit.
func (t *SSETransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.doneOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
	})
	t.wg.Wait()
	t.client.CloseIdleConnections()
	return nil
}

// IsHealthy reports whether the event stream is currently connected.
func (t *SSETransport) IsHealthy() bool { return t.healthy.Load() && !t.closed.Load() }

var _ Transport = (*SSETransport)(nil)
