// Package toolerrors defines the stable, wire-level error kinds shared by the
// tool dispatcher, phase runner, and controller. Kind values are sent to
// callers verbatim (spec.md §7) so they must never be renamed casually.
package toolerrors

import (
	"errors"
	"fmt"
)

// Kind is a stable error classification sent over the wire in tool results
// and phase/session failures. String values are part of the external
// contract; do not rename without a migration plan.
type Kind string

const (
	// NotPermitted indicates a tool call was rejected by the scoped dispatcher
	// because the tool name was not in the caller's allow-list.
	NotPermitted Kind = "NotPermitted"
	// Unknown indicates a tool name has no registered spec.
	Unknown Kind = "Unknown"
	// InvalidArgs indicates the arguments failed schema validation or the tool
	// rejected them as an application-level error.
	InvalidArgs Kind = "InvalidArgs"
	// Timeout indicates a deadline expired before the operation completed.
	Timeout Kind = "Timeout"
	// TransportError indicates a transient failure in the remote transport
	// (connection reset, DNS failure, 5xx) eligible for retry.
	TransportError Kind = "TransportError"
	// Upstream indicates the tool's own backend returned an application-level
	// error. Not retried.
	Upstream Kind = "Upstream"
	// ToolLoopExceeded indicates a phase exceeded its bounded tool-call round
	// count.
	ToolLoopExceeded Kind = "ToolLoopExceeded"
	// PhaseFailed indicates a phase could not produce a result after its
	// internal retries were exhausted.
	PhaseFailed Kind = "PhaseFailed"
	// SessionInterrupted indicates the session was cooperatively cancelled.
	SessionInterrupted Kind = "SessionInterrupted"
	// BadRequest indicates a malformed ingress request.
	BadRequest Kind = "BadRequest"
	// NoSuchSession indicates an operation referenced an unknown session id.
	NoSuchSession Kind = "NoSuchSession"
)

// Error is the canonical error type carrying a stable Kind plus a
// human-readable detail string. Callers compare kinds with KindOf or Is;
// Unwrap exposes the wrapped cause to errors.Is/errors.As.
type Error struct {
	Kind   Kind
	Detail string
	// Err optionally wraps the underlying cause for introspection with
	// errors.As; it is never sent over the wire.
	Err error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap returns the wrapped cause, or, when there is none, an unexported
// sentinel error for e.Kind. Kind does not implement error, so a kind is
// not a valid errors.Is target; use Is(err, kind).
func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return sentinel(e.Kind)
}

// New builds an *Error with the given kind and detail message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an *Error that also carries the underlying cause for
// errors.As-based introspection.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the Kind from err, defaulting to Upstream when err is not
// an *Error. This is used at phase/dispatch boundaries that must always
// surface a Kind to the caller.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return Upstream
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// sentinels holds one unexported error per Kind, created on first use, that
// Unwrap returns for an Error that wraps no cause.
var sentinels = map[Kind]error{}

func sentinel(k Kind) error {
	if e, ok := sentinels[k]; ok {
		return e
	}
	e := errors.New(string(k))
	sentinels[k] = e
	return e
}

// Retryable reports whether the given Kind names a retry-eligible failure:
// only Timeout and TransportError do. The dispatcher's and the phase
// runner's retry.Do loops do not consult it; they classify the underlying
// Go error with retry.IsRetryable.
func Retryable(k Kind) bool {
	return k == Timeout || k == TransportError
}
