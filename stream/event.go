// Package stream implements EventStream, the bounded per-session channel
// that carries phase output to the transport adapter, plus the chunked
// wire framing applied to oversized payloads (spec.md §4.3). The producer
// API is generalized from the teacher's runtime/agent/hooks fan-out Bus,
// narrowed from multi-subscriber fan-out to the single-producer /
// single-consumer ordered channel this module's contract requires.
package stream

// Type identifies the kind of frame carried by an Event (spec.md §3).
type Type string

const (
	TypeMessage    Type = "message"
	TypeChunkStart Type = "chunk_start"
	TypeJSONChunk  Type = "json_chunk"
	TypeChunkEnd   Type = "chunk_end"
	TypeStreamEnd  Type = "stream_end"
	TypeError      Type = "error"
)

// EndReason classifies why a stream terminated (spec.md §4.3).
type EndReason string

const (
	EndCompleted   EndReason = "completed"
	EndInterrupted EndReason = "interrupted"
	EndFailed      EndReason = "failed"
)

// Event is the envelope pushed onto an EventStream (spec.md §3). Payload
// carries the type-specific body; its concrete shape depends on Type.
type Event struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload"`
	Seq       int64  `json:"seq"`
}

// MessagePayload is the body of a TypeMessage event.
type MessagePayload struct {
	Role        string         `json:"role"`
	MessageType string         `json:"message_type,omitempty"`
	Content     string         `json:"content"`
	ShowContent string         `json:"show_content,omitempty"`
	ToolCalls   []ToolCallView `json:"tool_calls,omitempty"`
}

// ToolCallView is the wire projection of a session.ToolCall.
type ToolCallView struct {
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	Status   string `json:"status"`
	Result   string `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ChunkStartPayload begins a chunked frame sequence for one oversized event.
type ChunkStartPayload struct {
	OriginalType Type `json:"original_type"`
	TotalChunks  int  `json:"total_chunks"`
	TotalBytes   int  `json:"total_bytes"`
}

// JSONChunkPayload carries one slice of a chunked payload.
type JSONChunkPayload struct {
	ChunkIndex int    `json:"chunk_index"`
	ChunkData  string `json:"chunk_data"`
}

// ChunkEndPayload closes a chunked frame sequence.
type ChunkEndPayload struct{}

// StreamEndPayload is the terminal frame of every EventStream (spec.md
// §4.3).
type StreamEndPayload struct {
	Reason     EndReason      `json:"reason"`
	TokenUsage TokenUsageView `json:"token_usage"`
}

// TokenUsageView is the wire projection of session.TokenUsage.
type TokenUsageView struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorPayload reports a session-terminating or phase-level error.
type ErrorPayload struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}
