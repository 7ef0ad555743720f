// Package tools defines tool metadata, the process-global registry, and the
// permission-scoped dispatcher used to invoke local and remote tools
// uniformly (spec.md §4.1). Grounded on the teacher's runtime/agent/tools
// package shape, trimmed to the fields the controller actually needs.
package tools

import (
	"context"
	"encoding/json"
)

// Kind classifies how a tool is implemented and reached.
type Kind string

const (
	// KindLocal tools run in-process via an in-memory Go callable.
	KindLocal Kind = "local"
	// KindRemoteProtocol tools are dispatched over a remote transport
	// (HTTP+SSE or stdio child process).
	KindRemoteProtocol Kind = "remote-protocol"
	// KindBuiltInProtocol tools are implemented by the runtime itself
	// (e.g. workspace read/write) but addressed like remote tools.
	KindBuiltInProtocol Kind = "built-in-protocol"
	// KindAgentTool tools are implemented by invoking another agent/session
	// as a composite capability.
	KindAgentTool Kind = "agent-tool"
)

// priority orders Kind values for name-conflict resolution: on a name clash,
// the incoming spec must have strictly higher priority than the incumbent or
// registration fails with a toolerrors.BadRequest error whose detail names
// the NameConflict (spec.md §4.1).
//
//	remote-protocol > agent-tool > built-in-protocol > local
var priority = map[Kind]int{
	KindRemoteProtocol:  4,
	KindAgentTool:       3,
	KindBuiltInProtocol: 2,
	KindLocal:           1,
}

// Callable is the in-process function backing a KindLocal tool. It receives
// the raw JSON arguments already schema-validated by the dispatcher and
// returns a JSON-serializable result or an error.
//
// Callable must respect ctx cancellation/deadline; the dispatcher attaches
// the per-call deadline passed to ScopedDispatcher.Invoke.
type Callable func(ctx context.Context, argsJSON json.RawMessage, ws WorkspaceHandle) (any, error)

// WorkspaceHandle is the dependency bundle a tool executor sees: a borrowed
// workspace path and nothing else from SessionContext (spec.md §3
// "Ownership" — tool executors see only the arguments and a borrowed
// workspace path).
type WorkspaceHandle struct {
	// Path is the session's file workspace directory on disk.
	Path string
	// SessionID is provided for log correlation only; tools must not use it
	// to reach back into session state.
	SessionID string
}

// ToolSpec enumerates the metadata needed to register, filter, and invoke a
// tool uniformly regardless of its Kind.
type ToolSpec struct {
	// Name is the globally unique tool identifier.
	Name string
	// Description is shown to the LLM planner.
	Description string
	// ParameterSchema is the JSON Schema (as raw bytes) the dispatcher
	// validates incoming arguments against whenever it is non-empty,
	// whatever the Kind.
	ParameterSchema json.RawMessage
	// Kind determines the execution path and conflict priority.
	Kind Kind
	// Priority overrides the default Kind-based priority when non-zero,
	// letting callers express finer-grained precedence within a Kind.
	Priority int
	// Local is the in-process callable; required when Kind is KindLocal.
	Local Callable
	// Address is the remote transport address; required when Kind is
	// KindRemoteProtocol or KindBuiltInProtocol.
	Address string
	// StructuredResult indicates the tool promised structured JSON output.
	// When true and the tool returns a bare string, the dispatcher wraps it
	// as {"text": ...} (spec.md §4.1 "Result normalization").
	StructuredResult bool
}

func (s ToolSpec) effectivePriority() int {
	if s.Priority != 0 {
		return s.Priority
	}
	return priority[s.Kind]
}
