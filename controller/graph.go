package controller

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentrt/core/model"
	"github.com/agentrt/core/phase"
	"github.com/agentrt/core/session"
	"github.com/agentrt/core/stream"
	"github.com/agentrt/core/toolerrors"
)

// runGraph drives the full phase graph for one request and returns the
// final user-visible text (spec.md §4.5):
//
//	Initial -> HistoryPrep -> WorkflowSelect? -> Router? -> Analysis? ->
//	ModeBranch -> {multi-agent | simple} -> Summary? -> Suggest? ->
//	ExtractAsync -> Terminal.
func (c *Controller) runGraph(ctx context.Context, sc *session.Context, es *stream.EventStream, req Request) (string, error) {
	for i, m := range req.Messages {
		if err := sc.Messages.Append(&session.Message{
			MessageID: uuid.NewString(),
			Role:      m.Role,
			Type:      session.MessageTypeSimpleReply,
			Content:   m.Content,
		}); err != nil {
			// A caller-supplied duplicate message id is a malformed request;
			// drop it rather than fail the whole run.
			_ = i
		}
	}

	if sc.Interrupted() {
		return "", toolerrors.New(toolerrors.SessionInterrupted, "interrupted before run start")
	}

	if needsWorkflowSelect(req.AvailableWorkflows) {
		wf, err := c.runWorkflowSelect(ctx, req)
		if err != nil {
			return "", toolerrors.Wrap(toolerrors.PhaseFailed, "workflow selection failed", err)
		}
		if wf != nil {
			sc.Workflow.Select(wf)
		}
	} else if wf, ok := selectWorkflow(req.AvailableWorkflows); ok {
		sc.Workflow.Select(wf)
	}

	flags := resolvedFlags{}
	if needsRouter(req) {
		routed, err := c.runRouter(ctx, sc, es, req)
		if err != nil {
			return "", err
		}
		flags = routed
	}
	flags = resolveModeBranch(req, flags)

	if needsAnalysis(flags) {
		if _, err := c.runner.Run(ctx, sc, es, c.phaseInput(phase.KindAnalysis, req, analysisInstruction(req), false)); err != nil {
			if toolerrors.Is(err, toolerrors.SessionInterrupted) {
				return "", err
			}
			return "", toolerrors.Wrap(toolerrors.PhaseFailed, "analysis phase failed", err)
		}
	}

	maxLoop := req.MaxLoopCount
	if maxLoop <= 0 {
		maxLoop = DefaultMaxLoopCount
	}

	var subgraphText string
	var err error
	if flags.multiAgent {
		subgraphText, flags, err = c.runMultiAgent(ctx, sc, es, req, flags, maxLoop)
	} else {
		subgraphText, err = c.runSimple(ctx, sc, es, req)
	}
	if err != nil {
		return "", err
	}

	finalText := subgraphText
	if needsSummary(flags) {
		instruction := summaryInstruction(req, flags)
		out, err := c.runner.Run(ctx, sc, es, c.phaseInput(phase.KindSummary, req, instruction, false))
		if err != nil {
			if toolerrors.Is(err, toolerrors.SessionInterrupted) {
				return "", err
			}
			return "", toolerrors.Wrap(toolerrors.PhaseFailed, "summary phase failed", err)
		}
		finalText = out.FinalText
	}

	if needsSuggest(req) {
		if _, err := c.runner.Run(ctx, sc, es, c.phaseInput(phase.KindSuggest, req, suggestInstruction(), false)); err != nil {
			if toolerrors.Is(err, toolerrors.SessionInterrupted) {
				return "", err
			}
			return "", toolerrors.Wrap(toolerrors.PhaseFailed, "suggest phase failed", err)
		}
	}

	return finalText, nil
}

// runWorkflowSelect makes a direct (non-Phase) LLM call to choose among
// more than five candidate workflows. WorkflowSelect is a Controller gate,
// not one of the named phases in spec.md's GLOSSARY, so it bypasses
// PhaseRunner and never emits a user-visible message event.
func (c *Controller) runWorkflowSelect(ctx context.Context, req Request) (*session.Workflow, error) {
	var names []string
	for _, wf := range req.AvailableWorkflows {
		names = append(names, fmt.Sprintf("%s: %s", wf.WorkflowID, wf.Name))
	}
	prompt := "Choose the single best-matching workflow id for this conversation. " +
		"Respond with JSON only: {\"workflow_id\": \"...\"}.\nCandidates:\n"
	for _, n := range names {
		prompt += "- " + n + "\n"
	}
	if len(req.Messages) > 0 {
		prompt += "\nUser request: " + req.Messages[len(req.Messages)-1].Content
	}

	resp, err := c.client.Complete(ctx, &model.Request{
		Model:      req.ModelConfig.Model,
		ModelClass: req.ModelConfig.ModelClass,
		Messages: []*model.Message{
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: prompt}}},
		},
	})
	if err != nil {
		return nil, err
	}
	var decision struct {
		WorkflowID string `json:"workflow_id"`
	}
	if err := json.Unmarshal([]byte(textOf(resp)), &decision); err != nil {
		if wf, ok := selectWorkflow(req.AvailableWorkflows); ok {
			return wf, nil
		}
		return nil, err
	}
	for _, wf := range req.AvailableWorkflows {
		if wf.WorkflowID == decision.WorkflowID {
			return wf, nil
		}
	}
	wf, _ := selectWorkflow(req.AvailableWorkflows)
	return wf, nil
}

type routerDecision struct {
	DeepThinking bool `json:"deep_thinking"`
	MultiAgent   bool `json:"multi_agent"`
}

// runRouter runs the Router phase and parses its JSON decision, defaulting
// to {false,false} (simple chat, no deep thinking) if the model's output
// does not parse (spec.md §8 scenario 1 "Auto-route simple chat").
func (c *Controller) runRouter(ctx context.Context, sc *session.Context, es *stream.EventStream, req Request) (resolvedFlags, error) {
	instruction := "Decide how to handle this conversation turn. Respond with JSON only: " +
		"{\"deep_thinking\": bool, \"multi_agent\": bool}."
	out, err := c.runner.Run(ctx, sc, es, c.phaseInput(phase.KindRouter, req, instruction, false))
	if err != nil {
		if toolerrors.Is(err, toolerrors.SessionInterrupted) {
			return resolvedFlags{}, err
		}
		return resolvedFlags{}, toolerrors.Wrap(toolerrors.PhaseFailed, "router phase failed", err)
	}
	var decision routerDecision
	if err := json.Unmarshal([]byte(out.FinalText), &decision); err != nil {
		return resolvedFlags{}, nil
	}
	return resolvedFlags{deepThinking: decision.DeepThinking, multiAgent: decision.MultiAgent}, nil
}

func textOf(resp *model.Response) string {
	var out string
	for _, m := range resp.Content {
		for _, p := range m.Parts {
			if tp, ok := p.(model.TextPart); ok {
				out += tp.Text
			}
		}
	}
	return out
}

func analysisInstruction(req Request) string {
	if len(req.Messages) == 0 {
		return "Analyze the conversation so far before deciding how to proceed."
	}
	return "Analyze in depth before proceeding: " + req.Messages[len(req.Messages)-1].Content
}

func summaryInstruction(req Request, flags resolvedFlags) string {
	instr := "Summarize the work performed and answer the user's request."
	if flags.forceSummary && flags.partialNote != "" {
		instr += " " + flags.partialNote
	}
	return instr
}

func suggestInstruction() string {
	return "Suggest up to three relevant follow-up actions the user might want next."
}
