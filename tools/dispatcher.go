package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentrt/core/toolerrors"
	"github.com/agentrt/core/tools/transport"
	"github.com/agentrt/core/tools/transport/retry"
)

// TransportResolver looks up the transport.Transport that serves remote
// calls to the given address. A single HTTP+SSE or stdio transport is
// typically shared across every tool registered from the same remote
// server, so the dispatcher resolves by address rather than owning one
// transport per tool.
type TransportResolver interface {
	Resolve(address string) (transport.Transport, bool)
}

// ScopedDispatcher invokes tools visible to one session's allow-list. It is
// produced by Registry.View and is cheap to create per phase round; it
// holds only the subset of specs the caller is permitted to see (spec.md
// §4.1 "Ownership": a ScopedDispatcher never exposes tools outside its
// allow-list, even if the registry gains new entries later).
type ScopedDispatcher struct {
	specs     map[string]ToolSpec
	resolver  TransportResolver
	workspace WorkspaceHandle
	retry     retry.Config
}

// WithTransportResolver attaches the transport resolver used for remote
// tool kinds. Required before Invoke is called on a dispatcher that has any
// non-local tool in scope.
func (d *ScopedDispatcher) WithTransportResolver(r TransportResolver) *ScopedDispatcher {
	d.resolver = r
	return d
}

// WithWorkspace sets the workspace handle passed to local tool callables.
func (d *ScopedDispatcher) WithWorkspace(ws WorkspaceHandle) *ScopedDispatcher {
	d.workspace = ws
	return d
}

// WithRetry overrides the retry policy used for remote tool calls.
func (d *ScopedDispatcher) WithRetry(cfg retry.Config) *ScopedDispatcher {
	d.retry = cfg
	return d
}

// Has reports whether name is visible to this dispatcher.
func (d *ScopedDispatcher) Has(name string) bool {
	_, ok := d.specs[name]
	return ok
}

// Invoke validates argsJSON against the tool's schema (when it has one),
// dispatches to the local callable or the resolved remote transport, and
// normalizes the result per spec.md §4.1: a bare string result is wrapped
// as {"text": ...} only when the tool promised structured output
// (StructuredResult); otherwise it is passed through. Remote
// transport-level failures map to toolerrors.TransportError while
// tool-level errors map to toolerrors.Upstream.
func (d *ScopedDispatcher) Invoke(ctx context.Context, name string, argsJSON json.RawMessage, deadline time.Time) (json.RawMessage, error) {
	spec, ok := d.specs[name]
	if !ok {
		return nil, toolerrors.New(toolerrors.NotPermitted, fmt.Sprintf("tool %q not in session allow-list", name))
	}

	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	if len(spec.ParameterSchema) > 0 {
		if err := validateArgs(argsJSON, spec.ParameterSchema); err != nil {
			return nil, toolerrors.Wrap(toolerrors.InvalidArgs, fmt.Sprintf("tool %q: arguments failed schema validation", name), err)
		}
	}

	switch spec.Kind {
	case KindLocal:
		return d.invokeLocal(ctx, spec, argsJSON)
	case KindRemoteProtocol, KindBuiltInProtocol, KindAgentTool:
		return d.invokeRemote(ctx, spec, argsJSON)
	default:
		return nil, toolerrors.New(toolerrors.Unknown, fmt.Sprintf("tool %q: unrecognized kind %q", name, spec.Kind))
	}
}

func validateArgs(argsJSON json.RawMessage, schemaBytes json.RawMessage) error {
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}
	var argsDoc any
	if len(argsJSON) == 0 {
		argsJSON = json.RawMessage("{}")
	}
	if err := json.Unmarshal(argsJSON, &argsDoc); err != nil {
		return fmt.Errorf("unmarshal arguments: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return schema.Validate(argsDoc)
}

func (d *ScopedDispatcher) invokeLocal(ctx context.Context, spec ToolSpec, argsJSON json.RawMessage) (json.RawMessage, error) {
	result, err := spec.Local(ctx, argsJSON, d.workspace)
	if err != nil {
		if ctx.Err() != nil {
			return nil, toolerrors.Wrap(toolerrors.Timeout, fmt.Sprintf("tool %q: deadline exceeded", spec.Name), ctx.Err())
		}
		return nil, toolerrors.Wrap(toolerrors.Upstream, fmt.Sprintf("tool %q: execution failed", spec.Name), err)
	}
	if blob, ok := result.([]byte); ok {
		return depositBlob(d.workspace, blob)
	}
	return normalizeResult(result, spec.StructuredResult)
}

// depositBlob writes raw bytes returned by a local tool into the session
// workspace and returns the {"blob_ref": id} wire shape (spec.md §4.1
// "Result normalization").
func depositBlob(ws WorkspaceHandle, blob []byte) (json.RawMessage, error) {
	id := uuid.NewString()
	if ws.Path != "" {
		if err := os.MkdirAll(ws.Path, 0o755); err != nil {
			return nil, toolerrors.Wrap(toolerrors.Upstream, "failed to prepare workspace directory", err)
		}
		if err := os.WriteFile(filepath.Join(ws.Path, id), blob, 0o644); err != nil {
			return nil, toolerrors.Wrap(toolerrors.Upstream, "failed to deposit blob in workspace", err)
		}
	}
	b, _ := json.Marshal(map[string]string{"blob_ref": id})
	return b, nil
}

func (d *ScopedDispatcher) invokeRemote(ctx context.Context, spec ToolSpec, argsJSON json.RawMessage) (json.RawMessage, error) {
	if d.resolver == nil {
		return nil, toolerrors.New(toolerrors.TransportError, fmt.Sprintf("tool %q: no transport resolver configured", spec.Name))
	}
	tr, ok := d.resolver.Resolve(spec.Address)
	if !ok {
		return nil, toolerrors.New(toolerrors.TransportError, fmt.Sprintf("tool %q: no transport for address %q", spec.Name, spec.Address))
	}

	cfg := d.retry
	if cfg == (retry.Config{}) {
		cfg = retry.DefaultConfig()
	}

	var res transport.Result
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		r, err := tr.Call(ctx, transport.Call{Tool: spec.Name, Payload: argsJSON})
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, toolerrors.Wrap(toolerrors.Timeout, fmt.Sprintf("tool %q: deadline exceeded", spec.Name), ctx.Err())
		}
		return nil, toolerrors.Wrap(toolerrors.TransportError, fmt.Sprintf("tool %q: transport call failed", spec.Name), err)
	}
	if res.IsError {
		return nil, toolerrors.New(toolerrors.Upstream, fmt.Sprintf("tool %q: %s", spec.Name, string(res.Payload)))
	}
	return normalizeResult(json.RawMessage(res.Payload), spec.StructuredResult)
}

// normalizeResult converts an arbitrary tool return value into JSON text
// (spec.md §4.1): a bare string is wrapped as {"text": ...} only when the
// tool promised structured output and returned one anyway; otherwise the
// value is passed through unchanged (serialized as a plain JSON string).
func normalizeResult(v any, structured bool) (json.RawMessage, error) {
	switch raw := v.(type) {
	case json.RawMessage:
		return wrapIfBareString(raw, structured)
	case string:
		if structured {
			return wrapString(raw), nil
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, toolerrors.Wrap(toolerrors.Upstream, "tool result could not be marshaled", err)
		}
		return b, nil
	case nil:
		return json.RawMessage(`{}`), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, toolerrors.Wrap(toolerrors.Upstream, "tool result could not be marshaled", err)
		}
		return b, nil
	}
}

func wrapIfBareString(raw json.RawMessage, structured bool) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage(`{}`), nil
	}
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, toolerrors.Wrap(toolerrors.Upstream, "tool result was not valid JSON", err)
	}
	if s, ok := probe.(string); ok && structured {
		return wrapString(s), nil
	}
	return raw, nil
}

func wrapString(s string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"text": s})
	return b
}
