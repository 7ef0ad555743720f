package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/agentrt/core/toolerrors"
)

// Ident is an opaque registration handle returned by Registry.Register, used
// to unregister a tool (e.g. when an MCP server disconnects).
type Ident struct {
	name string
	kind Kind
}

// Registry is the process-global, mutex-guarded tool table. It is read-mostly
// in steady state (registration happens at startup or on remote-transport
// connect/disconnect; lookups happen on every phase round), so an RWMutex
// guards it per spec.md §5's concurrency model.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]ToolSpec
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]ToolSpec)}
}

// Register adds spec to the registry. On a name clash, registration
// succeeds only if spec's effective priority strictly exceeds the
// incumbent's; otherwise it fails with a toolerrors.BadRequest error
// wrapping NameConflict semantics (spec.md §4.1).
func (r *Registry) Register(spec ToolSpec) (Ident, error) {
	if spec.Name == "" {
		return Ident{}, toolerrors.New(toolerrors.BadRequest, "tool name must not be empty")
	}
	if spec.Kind == KindLocal && spec.Local == nil {
		return Ident{}, toolerrors.New(toolerrors.BadRequest, fmt.Sprintf("tool %q: local kind requires a Callable", spec.Name))
	}
	if (spec.Kind == KindRemoteProtocol || spec.Kind == KindBuiltInProtocol) && spec.Address == "" {
		return Ident{}, toolerrors.New(toolerrors.BadRequest, fmt.Sprintf("tool %q: remote kind requires an Address", spec.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if incumbent, ok := r.specs[spec.Name]; ok {
		if spec.effectivePriority() <= incumbent.effectivePriority() {
			return Ident{}, toolerrors.New(toolerrors.BadRequest,
				fmt.Sprintf("tool %q: NameConflict, incumbent kind %q (priority %d) outranks incoming kind %q (priority %d)",
					spec.Name, incumbent.Kind, incumbent.effectivePriority(), spec.Kind, spec.effectivePriority()))
		}
	}
	r.specs[spec.Name] = spec
	return Ident{name: spec.Name, kind: spec.Kind}, nil
}

// Unregister removes the tool identified by id, but only if the currently
// registered spec still has the same Kind — guards against a late
// unregister racing a newer registration that already won the name.
func (r *Registry) Unregister(id Ident) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.specs[id.name]; ok && cur.Kind == id.kind {
		delete(r.specs, id.name)
	}
}

// Lookup returns the spec registered under name, if any.
func (r *Registry) Lookup(name string) (ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// All returns every registered spec, sorted by name for deterministic
// iteration (tool listings, schema dumps, tests).
func (r *Registry) All() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSpec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// View returns a ScopedDispatcher restricted to the tools named in allowed.
// Names not present in the registry are silently dropped — a session's
// allow-list may reference tools that have not connected yet.
func (r *Registry) View(allowed []string) *ScopedDispatcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	scoped := make(map[string]ToolSpec, len(allowed))
	for _, name := range allowed {
		if s, ok := r.specs[name]; ok {
			scoped[name] = s
		}
	}
	return &ScopedDispatcher{specs: scoped}
}

// Definitions returns the ToolSpec values visible to d, sorted by name, for
// building the model.ToolDefinition list sent to the LLM.
func (d *ScopedDispatcher) Definitions() []ToolSpec {
	out := make([]ToolSpec, 0, len(d.specs))
	for _, s := range d.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
