package mcp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// ErrInvalidMessage is returned when inbound bytes don't decode into a
// well-formed JSON-RPC envelope. It never poisons later messages on the
// same stream (spec §4.1 failure model).
var ErrInvalidMessage = errors.New("mcp: invalid message")

// Encode serializes msg to its newline-terminated wire form, the framing
// used by the stdio transport (one JSON object per line) and the body sent
// on an HTTP/SSE POST. The wire shape is validated and re-serialized through
// the MCP SDK's jsonrpc package rather than handed to encoding/json
// directly, so mcp-guard never emits an envelope the SDK itself would
// reject as malformed JSON-RPC.
func Encode(msg *Message) ([]byte, error) {
	if msg.JSONRPC == "" {
		msg.JSONRPC = ProtocolVersion
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("mcp: encode: %w", err)
	}
	wire, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("mcp: encode: %w", err)
	}
	b, err := jsonrpc.EncodeMessage(wire)
	if err != nil {
		return nil, fmt.Errorf("mcp: encode: %w", err)
	}
	return append(b, '\n'), nil
}

// Decode parses a single JSON-RPC envelope from data, delegating the wire
// validation (request vs. response vs. notification, well-formed id) to the
// MCP SDK's jsonrpc package. It rejects an envelope whose "jsonrpc" field
// isn't exactly "2.0".
//
// jsonrpc.DecodeMessage's result is discarded beyond its validation: it
// splits requests and responses into distinct types keyed on a jsonrpc.ID
// that doesn't round-trip through interface{} cleanly, so mcp-guard's own
// Message keeps decoding the full envelope itself (same workaround the
// upstream SDK's own callers use) rather than carrying the SDK's ID type
// through the router, authz, and audit packages.
func Decode(data []byte) (*Message, error) {
	if _, err := jsonrpc.DecodeMessage(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.JSONRPC != ProtocolVersion {
		return nil, fmt.Errorf("%w: jsonrpc field must be %q, got %q", ErrInvalidMessage, ProtocolVersion, m.JSONRPC)
	}
	return &m, nil
}

// FrameReader reads newline-delimited JSON-RPC messages from a stream, the
// framing the stdio transport's reader task uses to decode a child
// process's stdout.
type FrameReader struct {
	scanner *bufio.Scanner
}

// NewFrameReader wraps r with a line-oriented JSON-RPC frame reader. The
// scan buffer is grown to accommodate messages up to maxLine bytes.
func NewFrameReader(r io.Reader, maxLine int) *FrameReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxLine)
	return &FrameReader{scanner: s}
}

// Next returns the next decoded Message, or io.EOF when the stream is
// exhausted. A line that fails to decode surfaces ErrInvalidMessage but
// does not terminate the reader — the caller may call Next again.
func (r *FrameReader) Next() (*Message, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	line := r.scanner.Bytes()
	if len(line) == 0 {
		return r.Next()
	}
	return Decode(line)
}
