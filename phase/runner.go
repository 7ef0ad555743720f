package phase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/agentrt/core/model"
	"github.com/agentrt/core/session"
	"github.com/agentrt/core/stream"
	"github.com/agentrt/core/telemetry"
	"github.com/agentrt/core/toolerrors"
	"github.com/agentrt/core/tools"
	"github.com/agentrt/core/tools/transport/retry"
)

// ToolCaller is the subset of tools.ScopedDispatcher a Runner needs;
// phases that permit no tool use pass a nil ToolCaller.
type ToolCaller interface {
	Has(name string) bool
	Invoke(ctx context.Context, name string, argsJSON json.RawMessage, deadline time.Time) (json.RawMessage, error)
	Definitions() []tools.ToolSpec
}

// Input configures one PhaseRunner.Run invocation (spec.md §4.4).
type Input struct {
	Phase Kind

	// SystemPrefix is prepended to every LLM call for this phase.
	SystemPrefix string
	// Instruction is the phase-specific directive appended after history.
	Instruction string

	Model        string
	ModelClass   model.ModelClass
	Temperature  float32
	MaxTokens    int
	TopKRelevant int

	Tools         ToolCaller
	ToolDeadline  time.Duration
	MaxToolRounds int

	Logger telemetry.Logger
}

// Output is the result of running one phase (spec.md §4.4).
type Output struct {
	MessageID  string
	FinalText  string
	ToolRounds int
	Usage      session.TokenUsage
	// RawJSON holds FinalText's contents, unvalidated, on every successful
	// run; callers of structured phases (router decisions, decomposition
	// lists, etc) parse it with their own schema.
	RawJSON json.RawMessage
}

// Runner executes exactly one phase against a model.Client (spec.md §4.4).
type Runner struct {
	client model.Client
	retry  retry.Config
}

// New constructs a Runner backed by client, using the spec's default retry
// policy (3 attempts, 100ms x2^n, +/-20% jitter) for transport failures.
func New(client model.Client) *Runner {
	return &Runner{client: client, retry: retry.DefaultConfig()}
}

// WithRetry overrides the retry policy.
func (r *Runner) WithRetry(cfg retry.Config) *Runner {
	r.retry = cfg
	return r
}

// Run drives one phase to completion: gathers history, streams the model,
// surfaces deltas as events, resolves tool-call intents in a bounded loop,
// and returns the final assistant output (spec.md §4.4).
func (r *Runner) Run(ctx context.Context, sc *session.Context, es *stream.EventStream, in Input) (Output, error) {
	if sc.Interrupted() {
		return Output{}, toolerrors.New(toolerrors.SessionInterrupted, "session interrupted before phase start")
	}

	maxRounds := in.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}
	toolDeadline := in.ToolDeadline
	if toolDeadline <= 0 {
		toolDeadline = 30 * time.Second
	}

	msgType := in.Phase.messageType()
	messageID := uuid.NewString()
	if err := sc.Messages.Append(&session.Message{
		MessageID: messageID,
		Role:      session.RoleAssistant,
		Type:      msgType,
	}); err != nil {
		return Output{}, toolerrors.Wrap(toolerrors.PhaseFailed, "failed to open phase message", err)
	}

	budget := sc.Tokens.BudgetTokens()
	history := sc.Messages.HistoryFor(msgType, budget, in.TopKRelevant)

	reqMessages := buildRequestMessages(in.SystemPrefix, history, in.Instruction, messageID)

	var toolDefs []*model.ToolDefinition
	if in.Tools != nil {
		for _, spec := range in.Tools.Definitions() {
			toolDefs = append(toolDefs, &model.ToolDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				InputSchema: rawSchemaOrEmptyObject(spec.ParameterSchema),
			})
		}
	}

	var (
		finalText     string
		toolRounds    int
		usage         session.TokenUsage
		repairAttempt bool
	)

	for {
		req := &model.Request{
			Model:       in.Model,
			ModelClass:  in.ModelClass,
			Messages:    reqMessages,
			Temperature: in.Temperature,
			MaxTokens:   in.MaxTokens,
			Tools:       toolDefs,
			Stream:      true,
		}

		roundText, pendingCalls, roundUsage, err := r.streamOneRound(ctx, sc, es, messageID, req)
		usage.PromptTokens += roundUsage.PromptTokens
		usage.CompletionTokens += roundUsage.CompletionTokens
		usage.TotalTokens += roundUsage.TotalTokens
		if err != nil {
			if errors.Is(err, errInterrupted) {
				sc.Tokens.Record(msgType, usage)
				return Output{MessageID: messageID, FinalText: finalText, ToolRounds: toolRounds, Usage: usage},
					toolerrors.New(toolerrors.SessionInterrupted, "interrupted mid-phase")
			}
			return Output{}, toolerrors.Wrap(toolerrors.PhaseFailed, fmt.Sprintf("phase %q streaming failed", in.Phase), err)
		}
		finalText += roundText
		assistantParts := []model.Part{model.TextPart{Text: roundText}}
		for _, call := range pendingCalls {
			var input any
			if err := json.Unmarshal(call.Payload, &input); err != nil {
				input = json.RawMessage(call.Payload)
			}
			assistantParts = append(assistantParts, model.ToolUsePart{ID: call.ID, Name: call.Name, Input: input})
		}
		reqMessages = append(reqMessages, &model.Message{Role: model.ConversationRoleAssistant, Parts: assistantParts})

		if len(pendingCalls) == 0 {
			break
		}

		if sc.Interrupted() {
			sc.Tokens.Record(msgType, usage)
			return Output{MessageID: messageID, FinalText: finalText, ToolRounds: toolRounds, Usage: usage},
				toolerrors.New(toolerrors.SessionInterrupted, "interrupted before tool call")
		}

		for _, call := range pendingCalls {
			if !json.Valid(call.Payload) {
				if repairAttempt {
					return Output{}, toolerrors.New(toolerrors.PhaseFailed, fmt.Sprintf("tool %q: malformed arguments after schema reminder repair", call.Name))
				}
				repairAttempt = true
				reqMessages = append(reqMessages, &model.Message{
					Role: model.ConversationRoleUser,
					Parts: []model.Part{model.TextPart{Text: fmt.Sprintf(
						"Your previous tool call to %q had malformed JSON arguments. Reissue the call with valid, schema-conformant JSON arguments only.", call.Name)}},
				})
				goto nextRound
			}
		}

		toolRounds++
		if toolRounds > maxRounds {
			sc.Tokens.Record(msgType, usage)
			return Output{MessageID: messageID, FinalText: finalText, ToolRounds: toolRounds, Usage: usage},
				toolerrors.New(toolerrors.ToolLoopExceeded, fmt.Sprintf("phase %q exceeded %d tool-call rounds", in.Phase, maxRounds))
		}

		for _, call := range pendingCalls {
			resultMsg, resultPart, err := r.invokeTool(ctx, sc, in, call, toolDeadline)
			if err != nil && toolerrors.Is(err, toolerrors.SessionInterrupted) {
				sc.Tokens.Record(msgType, usage)
				return Output{MessageID: messageID, FinalText: finalText, ToolRounds: toolRounds, Usage: usage}, err
			}
			if appendErr := sc.Messages.Append(resultMsg); appendErr != nil && in.Logger != nil {
				in.Logger.Error(ctx, "append tool result message failed", "error", appendErr)
			}
			reqMessages = append(reqMessages, &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{resultPart}})
		}

	nextRound:
	}

	sc.Tokens.Record(msgType, usage)
	return Output{MessageID: messageID, FinalText: finalText, ToolRounds: toolRounds, Usage: usage, RawJSON: json.RawMessage(finalText)}, nil
}

var errInterrupted = errors.New("phase: interrupted mid-stream")

// streamOneRound drives a single model.Client.Stream call to completion,
// coalescing text deltas into the session message and emitting stream
// events, checking the interruption checkpoint after every delta.
func (r *Runner) streamOneRound(ctx context.Context, sc *session.Context, es *stream.EventStream, messageID string, req *model.Request) (string, []model.ToolCall, session.TokenUsage, error) {
	var strm model.Streamer
	err := retry.Do(ctx, r.retry, func(ctx context.Context) error {
		s, err := r.client.Stream(ctx, req)
		if err != nil {
			return err
		}
		strm = s
		return nil
	})
	if err != nil {
		return "", nil, session.TokenUsage{}, err
	}
	defer strm.Close()

	var (
		text    string
		calls   []model.ToolCall
		usage   session.TokenUsage
		pending = map[string]*model.ToolCall{}
		order   []string
	)

	for {
		if sc.Interrupted() {
			return text, nil, usage, errInterrupted
		}
		chunk, err := strm.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return text, nil, usage, err
		}
		switch chunk.Type {
		case model.ChunkTypeText:
			if chunk.Message != nil {
				for _, p := range chunk.Message.Parts {
					if tp, ok := p.(model.TextPart); ok {
						text += tp.Text
						_ = sc.Messages.Coalesce(messageID, tp.Text, tp.Text)
						_ = es.Emit(ctx, stream.Event{
							MessageID: messageID,
							Type:      stream.TypeMessage,
							Payload:   stream.MessagePayload{Role: string(session.RoleAssistant), Content: tp.Text},
						})
					}
				}
			}
		case model.ChunkTypeToolCall:
			if chunk.ToolCall != nil {
				c := *chunk.ToolCall
				pending[c.ID] = &c
				order = append(order, c.ID)
			}
		case model.ChunkTypeToolCallDelta:
			// Incremental argument JSON is assembled by the model client
			// before emitting ChunkTypeToolCall; nothing to do here.
		case model.ChunkTypeUsage:
			if chunk.UsageDelta != nil {
				usage.PromptTokens += chunk.UsageDelta.PromptTokens
				usage.CompletionTokens += chunk.UsageDelta.CompletionTokens
				usage.TotalTokens += chunk.UsageDelta.TotalTokens
			}
		case model.ChunkTypeStop:
			// fall through to EOF or next Recv
		}
	}

	for _, id := range order {
		calls = append(calls, *pending[id])
	}
	return text, calls, usage, nil
}

// invokeTool checks the pre-tool-call interruption checkpoint, invokes the
// dispatcher, and returns the session.Message to append plus the
// model.Part representing the tool result for the next LLM round.
func (r *Runner) invokeTool(ctx context.Context, sc *session.Context, in Input, call model.ToolCall, deadline time.Duration) (*session.Message, model.Part, error) {
	if sc.Interrupted() {
		return nil, nil, toolerrors.New(toolerrors.SessionInterrupted, "interrupted before tool call")
	}
	if in.Tools == nil || !in.Tools.Has(call.Name) {
		return toolResultMessage(call, "", toolerrors.New(toolerrors.NotPermitted, fmt.Sprintf("tool %q not permitted", call.Name)))
	}
	result, err := in.Tools.Invoke(ctx, call.Name, call.Payload, time.Now().Add(deadline))
	return toolResultMessage(call, string(result), err)
}

func toolResultMessage(call model.ToolCall, result string, err error) (*session.Message, model.Part, error) {
	status := session.ToolCallSucceeded
	errText := ""
	if err != nil {
		status = session.ToolCallFailed
		errText = err.Error()
		result = fmt.Sprintf(`{"error":%q,"kind":%q}`, errText, toolerrors.KindOf(err))
	}
	msg := &session.Message{
		MessageID:       uuid.NewString(),
		Role:            session.RoleTool,
		Type:            session.MessageTypeToolResult,
		Content:         result,
		ReplaceOnUpdate: true,
		ToolCalls: []session.ToolCall{{
			CallID:   call.ID,
			ToolName: call.Name,
			Status:   status,
			Result:   result,
			Error:    errText,
		}},
	}
	part := model.ToolResultPart{ToolUseID: call.ID, Content: result, IsError: err != nil}
	return msg, part, nil
}

func buildRequestMessages(systemPrefix string, history []*session.Message, instruction, _ string) []*model.Message {
	var out []*model.Message
	if systemPrefix != "" {
		out = append(out, &model.Message{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: systemPrefix}}})
	}
	for _, h := range history {
		role := model.ConversationRoleUser
		switch h.Role {
		case session.RoleAssistant:
			role = model.ConversationRoleAssistant
		case session.RoleSystem:
			role = model.ConversationRoleSystem
		}
		out = append(out, &model.Message{Role: role, Parts: []model.Part{model.TextPart{Text: h.Content}}})
	}
	if instruction != "" {
		out = append(out, &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: instruction}}})
	}
	return out
}

func rawSchemaOrEmptyObject(schema json.RawMessage) any {
	if len(schema) == 0 {
		return map[string]any{"type": "object"}
	}
	var v any
	if err := json.Unmarshal(schema, &v); err != nil {
		return map[string]any{"type": "object"}
	}
	return v
}
