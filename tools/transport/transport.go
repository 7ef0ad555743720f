// Package transport implements the remote tool transports a ScopedDispatcher
// calls into for KindRemoteProtocol and KindBuiltInProtocol tools: an
// HTTP+SSE transport and a stdio child-process transport, both speaking a
// minimal JSON-RPC envelope. Adapted from the teacher's runtime/mcp SSE
// caller, generalized past the MCP-specific handshake to the plain
// call/response shape this module needs.
package transport

import (
	"context"
	"encoding/json"
)

// Call is a single tool invocation request sent to a remote transport.
type Call struct {
	Tool    string
	Payload json.RawMessage
}

// Result is the raw, not-yet-normalized response from a remote transport.
type Result struct {
	// Payload is the tool's raw JSON (or JSON-encoded string) result.
	Payload json.RawMessage
	// IsError indicates the remote tool reported a tool-level error rather
	// than a transport failure; the dispatcher surfaces it as an
	// Upstream-kind error instead of retrying.
	IsError bool
}

// Transport abstracts how a remote tool call crosses process boundaries.
type Transport interface {
	Call(ctx context.Context, call Call) (Result, error)
	Close() error
}
