package controller

import (
	"context"

	"github.com/agentrt/core/phase"
	"github.com/agentrt/core/session"
	"github.com/agentrt/core/stream"
	"github.com/agentrt/core/toolerrors"
)

// runSimple drives the simple-chat subgraph: SkillExecute (when the
// session has any tool in scope) runs before SimpleReply, per spec.md §9's
// resolved open question on phase ordering. SimpleReply's own tool-call
// round trip is already bounded inside PhaseRunner, so the subgraph needs
// no additional outer loop.
func (c *Controller) runSimple(ctx context.Context, sc *session.Context, es *stream.EventStream, req Request) (string, error) {
	if len(req.AvailableTools) > 0 {
		if _, err := c.runner.Run(ctx, sc, es, c.phaseInput(phase.KindSkillExecute, req, skillExecuteInstruction(req), true)); err != nil {
			if toolerrors.Is(err, toolerrors.SessionInterrupted) {
				return "", err
			}
			return "", toolerrors.Wrap(toolerrors.PhaseFailed, "skill_execute phase failed", err)
		}
	}

	out, err := c.runner.Run(ctx, sc, es, c.phaseInput(phase.KindSimpleReply, req, simpleReplyInstruction(req), true))
	if err != nil {
		if toolerrors.Is(err, toolerrors.SessionInterrupted) {
			return "", err
		}
		return "", toolerrors.Wrap(toolerrors.PhaseFailed, "simple_reply phase failed", err)
	}
	return out.FinalText, nil
}

func skillExecuteInstruction(req Request) string {
	return "If a registered skill tool directly satisfies the user's request, invoke it now."
}

func simpleReplyInstruction(req Request) string {
	if len(req.Messages) == 0 {
		return "Reply to the user."
	}
	return "Reply to the user's message, calling tools as needed: " + req.Messages[len(req.Messages)-1].Content
}
