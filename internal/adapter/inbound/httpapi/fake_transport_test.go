package httpapi

import (
	"context"
	"sync/atomic"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/pkg/mcp"
)

// fakeTransport is an in-memory transport.Transport double. Tests push
// canned responses onto recv and read what the handler sent off sent.
type fakeTransport struct {
	sent   chan *mcp.Message
	recv   chan *mcp.Message
	closed atomic.Bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent: make(chan *mcp.Message, 8),
		recv: make(chan *mcp.Message, 8),
	}
}

func (f *fakeTransport) Send(_ context.Context, msg *mcp.Message) error {
	f.sent <- msg
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) (*mcp.Message, error) {
	select {
	case msg, ok := <-f.recv:
		if !ok {
			return nil, apperr.NewTransportError(apperr.TransportConnectionClosed, "closed")
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Close() error {
	if f.closed.CompareAndSwap(false, true) {
		close(f.recv)
	}
	return nil
}

func (f *fakeTransport) IsHealthy() bool { return !f.closed.Load() }

// echo reads whatever was sent and pushes back a result response carrying
// the same id, simulating a well-behaved upstream.
func (f *fakeTransport) echo(result []byte) {
	msg := <-f.sent
	f.recv <- mcp.NewResult(msg.ID, result)
}
