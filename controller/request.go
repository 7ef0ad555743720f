// Package controller implements the Controller: the orchestrator that
// drives one Run request through the phase graph (spec.md §4.5), gating
// phases on the session's resolved flags, sequencing the multi-agent and
// simple subgraphs, consulting InterruptRegistry at every checkpoint, and
// scheduling MemoryExtractor at stream_end.
package controller

import (
	"github.com/agentrt/core/model"
	"github.com/agentrt/core/session"
)

// IncomingMessage is one entry of the ingress request's message history
// (spec.md §6); the last entry is the new user turn.
type IncomingMessage struct {
	Role    session.Role
	Content string
}

// ModelConfig overrides the model selection and sampling parameters for a
// run, taken from the ingress request's llm_model_config (spec.md §6).
type ModelConfig struct {
	Model       string
	ModelClass  model.ModelClass
	MaxTokens   int
	Temperature float32
}

// Request is the parsed form of the ingress streaming request (spec.md §6).
type Request struct {
	Messages     []IncomingMessage
	SessionID    string
	AgentID      string
	DeepThinking *bool
	MultiAgent   *bool
	MoreSuggest  bool
	MaxLoopCount int

	AvailableTools []string
	// AvailableWorkflows preserves ingress order: when WorkflowSelect is
	// skipped (<=5 candidates), the first entry wins (spec.md §4.5).
	AvailableWorkflows []*session.Workflow

	SystemContext map[string]any
	ModelConfig   ModelConfig
	SystemPrefix  string

	UserID string
}

// Result is the terminal summary of one Run, mirroring the stream_end
// frame's content for callers that don't consume the raw EventStream.
type Result struct {
	SessionID  string
	Status     session.Status
	FinalText  string
	TokenUsage session.TokenUsage
}

// resolvedFlags holds the Router-resolved (or caller-supplied) mode flags
// plus the bookkeeping the gating table consults (spec.md §4.5).
type resolvedFlags struct {
	deepThinking bool
	multiAgent   bool
	forceSummary bool
	partialNote  string
}
