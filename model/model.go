// Package model defines the provider-agnostic message and streaming types
// used by the PhaseRunner to talk to an LLM oracle (spec.md §4.4, §9 "Design
// Notes" — the LLM client is an out-of-scope collaborator specified only by
// this interface). Concrete provider adapters live in sibling packages
// (model/anthropicmodel, model/stubmodel).
package model

import (
	"context"
	"encoding/json"
	"errors"
)

// ConversationRole is the role for a message in a conversation sent to the
// oracle. It is distinct from session.Role: a single session.Message may be
// translated into zero or more model.Message values (e.g. a tool message
// becomes a ToolResultPart on a user-role model.Message).
type ConversationRole string

const (
	ConversationRoleSystem    ConversationRole = "system"
	ConversationRoleUser      ConversationRole = "user"
	ConversationRoleAssistant ConversationRole = "assistant"
)

type (
	// Part is a marker interface implemented by every message content block.
	Part interface{ isPart() }

	// TextPart is a plain text content block.
	TextPart struct {
		Text string
	}

	// ThinkingPart carries provider-issued reasoning content. Callers treat
	// Signature/Redacted as opaque and surface Text according to UI policy.
	ThinkingPart struct {
		Text      string
		Signature string
		Redacted  []byte
	}

	// ToolUsePart declares a tool invocation requested by the assistant.
	ToolUsePart struct {
		ID    string
		Name  string
		Input any
	}

	// ToolResultPart carries a tool result supplied back to the model.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}

	// Message is a single chat message exchanged with the oracle.
	Message struct {
		Role  ConversationRole
		Parts []Part
		Meta  map[string]any
	}

	// ToolDefinition describes a tool exposed to the model for the duration of
	// one request. Derived from tools.ToolSpec by the PhaseRunner.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any
	}

	// ToolChoiceMode controls how the model is allowed to use tools.
	ToolChoiceMode string

	// ToolChoice optionally constrains tool use for a Request.
	ToolChoice struct {
		Mode ToolChoiceMode
		Name string
	}

	// ToolCall is a tool invocation requested by the model in a non-streaming
	// Response.
	ToolCall struct {
		Name    string
		Payload json.RawMessage
		ID      string
	}

	// ToolCallDelta is a best-effort incremental fragment of a tool call's
	// input JSON, streamed while the provider is still constructing it.
	// Consumers must treat Delta as an opaque fragment; the canonical payload
	// arrives in the terminal ChunkTypeToolCall chunk.
	ToolCallDelta struct {
		Name  string
		ID    string
		Delta string
	}

	// TokenUsage tracks token counts for one model call.
	TokenUsage struct {
		PromptTokens     int
		CompletionTokens int
		TotalTokens      int
	}

	// ThinkingOptions configures provider reasoning behavior.
	ThinkingOptions struct {
		Enable       bool
		BudgetTokens int64
	}

	// ModelClass selects a model family when Request.Model is unset.
	ModelClass string

	// Request captures the inputs for one model invocation.
	Request struct {
		RunID       string
		Model       string
		ModelClass  ModelClass
		Messages    []*Message
		Temperature float32
		Tools       []*ToolDefinition
		ToolChoice  *ToolChoice
		MaxTokens   int
		Stream      bool
		Thinking    *ThinkingOptions
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Content    []Message
		ToolCalls  []ToolCall
		Usage      TokenUsage
		StopReason string
	}

	// Chunk is one streaming event from the model.
	Chunk struct {
		Type          string
		Message       *Message
		Thinking      string
		ToolCall      *ToolCall
		ToolCallDelta *ToolCallDelta
		UsageDelta    *TokenUsage
		StopReason    string
	}

	// Client is the provider-agnostic model client used by PhaseRunner.
	Client interface {
		Complete(ctx context.Context, req *Request) (*Response, error)
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Callers drain Recv until it
	// returns io.EOF (or another terminal error), then call Close exactly
	// once.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
	}
)

const (
	ToolChoiceModeAuto ToolChoiceMode = "auto"
	ToolChoiceModeNone ToolChoiceMode = "none"
	ToolChoiceModeAny  ToolChoiceMode = "any"
	ToolChoiceModeTool ToolChoiceMode = "tool"
)

const (
	ChunkTypeText          = "text"
	ChunkTypeToolCall      = "tool_call"
	ChunkTypeToolCallDelta = "tool_call_delta"
	ChunkTypeThinking      = "thinking"
	ChunkTypeUsage         = "usage"
	ChunkTypeStop          = "stop"
)

const (
	ModelClassHighReasoning ModelClass = "high-reasoning"
	ModelClassDefault       ModelClass = "default"
	ModelClassSmall         ModelClass = "small"
)

// ErrStreamingUnsupported indicates the provider adapter does not support
// streaming invocations.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting. Callers must not retry in a tight loop; the rate-limit
// middleware watches for it to shrink its budget. Nothing in this module
// converts it to a toolerrors.TransportError.
var ErrRateLimited = errors.New("model: rate limited")

func (TextPart) isPart()       {}
func (ThinkingPart) isPart()   {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}
