// Package interrupt implements InterruptRegistry: the process-global
// session_id -> cancellation-handle map that serves cooperative interrupt
// requests (spec.md §4.6). Generalized from the teacher's Temporal signal
// channel approach (runtime/agent/runtime/workflow_await_queue.go) to a
// plain Go context.CancelFunc, since this module's Controller is not a
// durable Temporal workflow.
package interrupt

import (
	"context"
	"sync"

	"github.com/agentrt/core/toolerrors"
)

// handle pairs a cancellation func with an edge-triggered "already fired"
// flag so repeated interrupt(session_id) calls on a live session fire the
// cancellation only once (calls after stream_end are covered by
// Registry.ended).
type handle struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	fired  bool
}

// Registry maps session_id to its cancellation handle (spec.md §4.6).
// Concurrent-safe: Register/Remove/Interrupt may be called from any
// goroutine.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*handle
	ended   map[string]struct{}
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		handles: make(map[string]*handle),
		ended:   make(map[string]struct{}),
	}
}

// Register installs cancel under sessionID, created when a run starts.
// Registering an already-registered session id replaces the prior handle
// and clears any stale ended marker (a session id reused by the caller).
func (r *Registry) Register(sessionID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[sessionID] = &handle{cancel: cancel}
	delete(r.ended, sessionID)
}

// Remove deletes sessionID's handle at stream_end, recording that the
// session existed and has ended so a subsequent Interrupt still succeeds
// idempotently instead of reporting NoSuchSession (spec.md §6, §8).
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, sessionID)
	r.ended[sessionID] = struct{}{}
}

// Interrupt fires the cancellation handle for sessionID. Idempotent: a
// second call, whether before or after the session has ended and been
// Removed, is a safe no-op that returns success (spec.md §6 "succeeds
// idempotently whether or not the session is active"; §8 testable
// property). Returns NoSuchSession only for an id that was never
// registered.
func (r *Registry) Interrupt(sessionID string) error {
	r.mu.Lock()
	h, ok := r.handles[sessionID]
	_, alreadyEnded := r.ended[sessionID]
	r.mu.Unlock()
	if !ok {
		if alreadyEnded {
			return nil
		}
		return toolerrors.New(toolerrors.NoSuchSession, sessionID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fired {
		return nil
	}
	h.fired = true
	h.cancel()
	return nil
}

// Has reports whether sessionID currently has a registered handle.
func (r *Registry) Has(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[sessionID]
	return ok
}
