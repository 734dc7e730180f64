// Package authz implements the tool authorization filter: the call-site
// check on tools/call and the response rewrite on tools/list, per the
// Identity's allow-set.
package authz

import (
	"encoding/json"
	"log/slog"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/internal/domain/identity"
	"github.com/mcpguard/mcp-guard/pkg/mcp"
)

// Filter applies an Identity's allow-set to outbound tool calls and
// inbound tools/list responses.
type Filter struct {
	logger *slog.Logger
}

func NewFilter(logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{logger: logger}
}

// CheckToolCall rejects a tools/call request before it reaches the
// transport when id's allow-set doesn't permit the named tool. msg must
// satisfy msg.IsToolCall().
func (f *Filter) CheckToolCall(id identity.Identity, msg *mcp.Message) *apperr.AppError {
	tool := msg.ToolName()
	if id.CanCall(tool) {
		return nil
	}
	return apperr.NewAppError(apperr.AppToolDenied, "tool "+tool+" not permitted")
}

// toolsListResult is the subset of a tools/list response mcp-guard
// inspects: a list of tool descriptors, each carrying at least a name.
type toolsListResult struct {
	Tools []json.RawMessage `json:"tools"`
}

type toolDescriptor struct {
	Name string `json:"name"`
}

// FilterToolsList rewrites a tools/list response so it contains only
// tools id is permitted to call, preserving the relative order of the
// tools that remain. If id is unrestricted, or the response doesn't parse
// as the expected shape, the response is returned unchanged — the filter
// never blocks on a malformed or unexpected upstream response, it only
// logs once and passes it through.
func (f *Filter) FilterToolsList(id identity.Identity, msg *mcp.Message) *mcp.Message {
	if id.Allow.Unrestricted() || msg == nil || msg.Result == nil {
		return msg
	}

	var result toolsListResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		f.logger.Warn("tools/list response did not match expected shape, passing through unfiltered", "error", err)
		return msg
	}

	kept := make([]json.RawMessage, 0, len(result.Tools))
	for _, raw := range result.Tools {
		var d toolDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			f.logger.Warn("tools/list entry did not match expected shape, passing through unfiltered", "error", err)
			return msg
		}
		if id.CanCall(d.Name) {
			kept = append(kept, raw)
		}
	}

	filteredResult, err := json.Marshal(toolsListResult{Tools: kept})
	if err != nil {
		f.logger.Warn("failed to re-encode filtered tools/list response, passing through unfiltered", "error", err)
		return msg
	}

	return &mcp.Message{
		JSONRPC: msg.JSONRPC,
		ID:      msg.ID,
		Result:  filteredResult,
	}
}
