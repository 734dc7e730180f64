// Package transport implements the bidirectional JSON-RPC channel to one
// upstream MCP server: stdio (subprocess), HTTP, and SSE variants, plus
// the SSRF and command-injection guards every network/subprocess path
// must pass through before it ever touches the wire.
package transport

import (
	"context"

	"github.com/mcpguard/mcp-guard/pkg/mcp"
)

// Transport is a bidirectional channel to one upstream MCP server.
type Transport interface {
	// Send serializes and dispatches msg.
	Send(ctx context.Context, msg *mcp.Message) error

	// Receive returns the next inbound Message. ConnectionClosed is
	// terminal: once returned, every subsequent Receive on this Transport
	// returns it again.
	Receive(ctx context.Context) (*mcp.Message, error)

	// Close releases every resource this Transport owns. Idempotent.
	Close() error

	// IsHealthy reports liveness from cached state; it never blocks and
	// never performs I/O.
	IsHealthy() bool
}
