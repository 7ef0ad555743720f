// Package session implements SessionContext, the single source of truth for
// one controller run: the append-only message log, the task tree, the
// workflow cursor, the fixed system context, and cumulative token
// accounting (spec.md §3, §4.2). Grounded on the teacher's
// runtime/agent/session package for lifecycle shape, generalized from a
// durable store-backed session to the in-memory container this module's
// Non-goals call for.
package session

import "time"

// Role is the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// MessageType tags a message with the phase or tool that produced it, for
// client-side rendering and for MessageManager's history-trimming policy to
// identify "non-essential intermediate phase messages".
type MessageType string

const (
	MessageTypeRouter        MessageType = "router"
	MessageTypeAnalysis      MessageType = "analysis"
	MessageTypeDecompose     MessageType = "decompose"
	MessageTypePlan          MessageType = "plan"
	MessageTypeExecute       MessageType = "execute"
	MessageTypeObserve       MessageType = "observe"
	MessageTypeJudge         MessageType = "judge"
	MessageTypeStageSummary  MessageType = "stage_summary"
	MessageTypeSummary       MessageType = "summary"
	MessageTypeSuggest       MessageType = "suggest"
	MessageTypeSkillExecute  MessageType = "skill_execute"
	MessageTypeSimpleReply   MessageType = "simple_reply"
	MessageTypeToolCall      MessageType = "tool_call"
	MessageTypeToolResult    MessageType = "tool_result"
)

// ToolCallStatus tracks one tool invocation attached to an assistant message.
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallRunning   ToolCallStatus = "running"
	ToolCallSucceeded ToolCallStatus = "succeeded"
	ToolCallFailed    ToolCallStatus = "failed"
)

// ToolCall is one tool invocation recorded against an assistant message.
type ToolCall struct {
	CallID       string
	ToolName     string
	ArgumentsRaw string
	Status       ToolCallStatus
	Result       string
	Error        string
}

// Message is one entry in a session's append-only log (spec.md §3).
type Message struct {
	MessageID string
	SessionID string
	Role      Role
	Type      MessageType

	// Content is the canonical text used for LLM history. ShowContent, when
	// set, is the user-visible rendering and may differ from Content.
	Content     string
	ShowContent string

	ToolCalls []ToolCall

	// ReplaceOnUpdate marks a message whose later same-id writes replace
	// rather than extend Content/ShowContent (tool-result messages).
	ReplaceOnUpdate bool

	Timestamp int64
	Metadata  map[string]any
}

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// ExecutionSummary is attached to a Task once it finishes.
type ExecutionSummary struct {
	ResultSummary   string
	ResultDocuments []string
}

// Task is one node in the session's decomposition tree (spec.md §3).
type Task struct {
	TaskID      string
	Name        string
	Description string
	Status      TaskStatus
	StartTime   time.Time
	EndTime     time.Time
	Summary     *ExecutionSummary

	ParentID string
	Children []string
}

// WorkflowStep is one (possibly nested) step of a Workflow.
type WorkflowStep struct {
	Name     string
	SubSteps []WorkflowStep
}

// Workflow is a named ordered list of steps guiding the Plan phase
// (spec.md §3). Immutable once selected for a run.
type Workflow struct {
	WorkflowID string
	Name       string
	Steps      []WorkflowStep
	Category   string
	Tags       []string
	Enabled    bool
}

// Status is the overall lifecycle state of a session run.
type Status string

const (
	StatusActive      Status = "active"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// TokenUsage is one phase's (or the session cumulative) token tally.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
