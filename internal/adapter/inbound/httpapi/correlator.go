package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/internal/transport"
	"github.com/mcpguard/mcp-guard/pkg/mcp"
)

// correlator bridges a Transport's asynchronous duplex Send/Receive pair
// to the request handler's synchronous "send one, await its matching
// response" model: one background task drains Receive in a loop and
// routes each inbound response to whichever in-flight request is waiting
// on its JSON-RPC id, via a pending-response map (spec §5).
type correlator struct {
	transport transport.Transport
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]chan *mcp.Message
}

func newCorrelator(t transport.Transport, logger *slog.Logger) *correlator {
	c := &correlator{
		transport: t,
		logger:    logger,
		pending:   make(map[string]chan *mcp.Message),
	}
	go c.run()
	return c
}

func (c *correlator) run() {
	ctx := context.Background()
	for {
		msg, err := c.transport.Receive(ctx)
		if err != nil {
			var te *apperr.TransportError
			if errors.As(err, &te) && te.Kind == apperr.TransportConnectionClosed {
				c.failAll(err)
				return
			}
			// Transient (decode hiccup, reconnect-in-progress): the
			// transport itself keeps retrying, so pending waiters stay
			// registered and are bound only by their own ctx deadline. A
			// short backoff keeps a transport stuck returning the same
			// error (e.g. a stdio reader that has exited but reports
			// TransportIo rather than TransportConnectionClosed) from
			// spinning this loop at full CPU.
			c.logger.Warn("correlator: transient receive error", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if !msg.IsResponse() {
			// Server-initiated notification: nothing in the protected
			// surface currently forwards these to a waiting caller.
			continue
		}
		c.deliver(msg)
	}
}

func (c *correlator) deliver(msg *mcp.Message) {
	key := string(msg.ID)
	c.mu.Lock()
	ch, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
}

// failAll closes every pending channel so its waiter unblocks with a
// "connection closed" error. Called when the receive loop's Receive
// returns a TransportConnectionClosed error, since in that state no
// further response for any currently-pending request will ever arrive;
// other receive errors leave pending waiters registered.
func (c *correlator) failAll(_ error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan *mcp.Message)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

// await registers id as awaited, sends msg, and blocks until the matching
// response arrives, ctx is cancelled, or the transport's receive loop
// terminates (channel closed with no value). Callers must have already
// checked msg.HasUsableID(); await itself only guards against a second,
// concurrent request reusing an id that is already in flight, which it
// rejects rather than let the second request silently steal the first
// request's response slot (spec §9).
func (c *correlator) await(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	key := string(msg.ID)
	ch := make(chan *mcp.Message, 1)

	c.mu.Lock()
	if _, inFlight := c.pending[key]; inFlight {
		c.mu.Unlock()
		return nil, apperr.NewAppError(apperr.AppInvalidRequest, "duplicate request id already in flight")
	}
	c.pending[key] = ch
	c.mu.Unlock()

	if err := c.transport.Send(ctx, msg); err != nil {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, apperr.NewTransportError(apperr.TransportConnectionClosed, "upstream connection closed while awaiting response")
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// correlatorSet lazily builds and caches one correlator per Transport, so
// router mode's several upstreams each get their own pending-response map
// while a single-upstream gateway has exactly one.
type correlatorSet struct {
	logger *slog.Logger

	mu    sync.Mutex
	byTr  map[transport.Transport]*correlator
}

func newCorrelatorSet(logger *slog.Logger) *correlatorSet {
	return &correlatorSet{logger: logger, byTr: make(map[transport.Transport]*correlator)}
}

func (s *correlatorSet) forTransport(t transport.Transport) *correlator {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byTr[t]
	if !ok {
		c = newCorrelator(t, s.logger)
		s.byTr[t] = c
	}
	return c
}
