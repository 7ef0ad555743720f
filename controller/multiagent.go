package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/agentrt/core/phase"
	"github.com/agentrt/core/session"
	"github.com/agentrt/core/stream"
	"github.com/agentrt/core/toolerrors"
)

type decomposedTask struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type decomposeResult struct {
	Tasks []decomposedTask `json:"tasks"`
}

type judgedTask struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type judgeResult struct {
	Tasks []judgedTask `json:"tasks"`
}

// runMultiAgent drives the Decompose -> loop{Plan, Execute, Observe, Judge,
// StageSummary} subgraph (spec.md §4.5). It returns the last user-visible
// text produced (Observe's, absent a later Summary phase) and the flags
// updated with forceSummary/partialNote when the loop bound is exceeded
// with incomplete tasks still outstanding.
func (c *Controller) runMultiAgent(ctx context.Context, sc *session.Context, es *stream.EventStream, req Request, flags resolvedFlags, maxLoop int) (string, resolvedFlags, error) {
	decomposeOut, err := c.runner.Run(ctx, sc, es, c.phaseInput(phase.KindDecompose, req, decomposeInstruction(req), false))
	if err != nil {
		if toolerrors.Is(err, toolerrors.SessionInterrupted) {
			return "", flags, err
		}
		return "", flags, toolerrors.Wrap(toolerrors.PhaseFailed, "decompose phase failed", err)
	}
	var decomposed decomposeResult
	if err := json.Unmarshal([]byte(decomposeOut.FinalText), &decomposed); err != nil || len(decomposed.Tasks) == 0 {
		// Nothing to decompose into; treat the whole turn as one task so the
		// loop still has something to plan/execute/observe/judge.
		decomposed = decomposeResult{Tasks: []decomposedTask{{ID: uuid.NewString(), Name: "respond", Description: fallbackTaskDescription(req)}}}
	}
	for _, t := range decomposed.Tasks {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		_ = sc.Tasks.Create(&session.Task{TaskID: t.ID, Name: t.Name, Description: t.Description})
	}

	var lastText string
	for loopIdx := 0; loopIdx < maxLoop; loopIdx++ {
		if !sc.Tasks.AnyIncomplete() {
			break
		}
		if sc.Interrupted() {
			return lastText, flags, toolerrors.New(toolerrors.SessionInterrupted, "interrupted in multi-agent loop")
		}

		incomplete := incompleteTasks(sc)
		for _, t := range incomplete {
			_ = sc.Tasks.UpdateStatus(t.TaskID, session.TaskRunning)
		}

		failed := false

		if _, err := c.runner.Run(ctx, sc, es, c.phaseInput(phase.KindPlan, req, planInstruction(incomplete), false)); err != nil {
			if toolerrors.Is(err, toolerrors.SessionInterrupted) {
				return lastText, flags, err
			}
			c.failTasks(sc, incomplete, err)
			failed = true
		}

		if !failed {
			execOut, err := c.runner.Run(ctx, sc, es, c.phaseInput(phase.KindExecute, req, executeInstruction(incomplete), true))
			if err != nil {
				if toolerrors.Is(err, toolerrors.SessionInterrupted) {
					return lastText, flags, err
				}
				c.failTasks(sc, incomplete, err)
				failed = true
			} else {
				lastText = execOut.FinalText
			}
		}

		if !failed {
			obsOut, err := c.runner.Run(ctx, sc, es, c.phaseInput(phase.KindObserve, req, observeInstruction(), false))
			if err != nil {
				if toolerrors.Is(err, toolerrors.SessionInterrupted) {
					return lastText, flags, err
				}
				c.failTasks(sc, incomplete, err)
				failed = true
			} else if obsOut.FinalText != "" {
				lastText = obsOut.FinalText
			}
		}

		if !failed {
			judgeOut, err := c.runner.Run(ctx, sc, es, c.phaseInput(phase.KindJudge, req, judgeInstruction(incomplete), false))
			if err != nil {
				if toolerrors.Is(err, toolerrors.SessionInterrupted) {
					return lastText, flags, err
				}
				c.failTasks(sc, incomplete, err)
				failed = true
			} else {
				c.applyJudgeResult(sc, incomplete, judgeOut.FinalText)
			}
		}

		// StageSummary never emits a user-visible message (spec.md §9
		// resolved open question); it only updates TaskManager bookkeeping,
		// so it runs against a discarded sink stream.
		sink := sinkStream(sc.SessionID)
		stageOut, err := c.runner.Run(ctx, sc, sink, c.phaseInput(phase.KindStageSummary, req, stageSummaryInstruction(), false))
		_ = sink.End(ctx, stream.EndCompleted, stream.TokenUsageView{})
		if err == nil {
			for _, t := range incomplete {
				if cur, ok := sc.Tasks.Get(t.TaskID); ok && cur.Status != session.TaskCompleted && cur.Status != session.TaskFailed {
					_ = sc.Tasks.SetSummary(t.TaskID, session.ExecutionSummary{ResultSummary: stageOut.FinalText})
				}
			}
		}
	}

	flags2 := flags
	if sc.Tasks.AnyIncomplete() {
		flags2.forceSummary = true
		flags2.partialNote = "Note: the loop budget was exhausted with some tasks still incomplete; summarize partial progress."
	}
	return lastText, flags2, nil
}

// failTasks marks every task in tasks as failed and records the cause as its
// summary; this is how the multi-agent loop handles a PhaseFailed raised
// inside it, without failing the whole session. The round's remaining
// phases, Judge included, are skipped. Since the round's tasks are all the
// tasks still incomplete and failed is terminal, the loop ends after the
// round's StageSummary; Judge does not revisit the failed tasks.
func (c *Controller) failTasks(sc *session.Context, tasks []*session.Task, cause error) {
	for _, t := range tasks {
		_ = sc.Tasks.UpdateStatus(t.TaskID, session.TaskFailed)
		_ = sc.Tasks.SetSummary(t.TaskID, session.ExecutionSummary{ResultSummary: fmt.Sprintf("phase failed: %s", cause.Error())})
	}
}

func (c *Controller) applyJudgeResult(sc *session.Context, incomplete []*session.Task, judgeText string) {
	var result judgeResult
	if err := json.Unmarshal([]byte(judgeText), &result); err != nil {
		return
	}
	for _, jt := range result.Tasks {
		status := session.TaskStatus(jt.Status)
		switch status {
		case session.TaskCompleted, session.TaskFailed, session.TaskSkipped, session.TaskRunning, session.TaskPending:
			_ = sc.Tasks.UpdateStatus(jt.ID, status)
		}
	}
}

func incompleteTasks(sc *session.Context) []*session.Task {
	var out []*session.Task
	for _, t := range sc.Tasks.All() {
		if t.Status != session.TaskCompleted && t.Status != session.TaskFailed && t.Status != session.TaskSkipped {
			out = append(out, t)
		}
	}
	return out
}

func taskNames(tasks []*session.Task) string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = fmt.Sprintf("%s (%s): %s", t.TaskID, t.Name, t.Description)
	}
	return strings.Join(names, "\n")
}

func fallbackTaskDescription(req Request) string {
	if len(req.Messages) == 0 {
		return "respond to the user"
	}
	return req.Messages[len(req.Messages)-1].Content
}

func decomposeInstruction(req Request) string {
	return "Break this request into a small set of concrete tasks. Respond with JSON only: " +
		"{\"tasks\":[{\"id\":\"...\",\"name\":\"...\",\"description\":\"...\"}]}.\n\nRequest: " + fallbackTaskDescription(req)
}

func planInstruction(tasks []*session.Task) string {
	return "Plan how to accomplish the following incomplete tasks:\n" + taskNames(tasks)
}

func executeInstruction(tasks []*session.Task) string {
	return "Execute the plan for these tasks, calling tools as needed:\n" + taskNames(tasks)
}

func observeInstruction() string {
	return "Observe the results of the latest tool calls and summarize what was learned."
}

func judgeInstruction(tasks []*session.Task) string {
	return "Judge whether each task below is now complete, failed, or should be skipped. Respond with JSON only: " +
		"{\"tasks\":[{\"id\":\"...\",\"status\":\"completed|failed|skipped|running|pending\"}]}.\n" + taskNames(tasks)
}

func stageSummaryInstruction() string {
	return "Write a brief internal progress note for the current stage."
}
