// Package phase implements PhaseRunner: executing exactly one named LLM
// phase, parsing its stream, surfacing deltas as stream events, and
// resolving any tool-call intents the model emits mid-stream (spec.md
// §4.4). Grounded on the teacher's streaming parse loop in
// runtime/agent/model and the reminder-injection pattern in
// runtime/agent/reminder, generalized from per-run reminder policy to a
// single-shot malformed-JSON schema reminder.
package phase

import "github.com/agentrt/core/session"

// Kind names one phase of the controller's graph (spec.md GLOSSARY).
type Kind string

const (
	KindRouter       Kind = "router"
	KindAnalysis     Kind = "analysis"
	KindDecompose    Kind = "decompose"
	KindPlan         Kind = "plan"
	KindExecute      Kind = "execute"
	KindObserve      Kind = "observe"
	KindJudge        Kind = "judge"
	KindStageSummary Kind = "stage_summary"
	KindSummary      Kind = "summary"
	KindSuggest      Kind = "suggest"
	KindSkillExecute Kind = "skill_execute"
	KindSimpleReply  Kind = "simple_reply"
)

// messageType maps a phase Kind to the session.MessageType tag attached to
// the messages it produces.
func (k Kind) messageType() session.MessageType {
	switch k {
	case KindRouter:
		return session.MessageTypeRouter
	case KindAnalysis:
		return session.MessageTypeAnalysis
	case KindDecompose:
		return session.MessageTypeDecompose
	case KindPlan:
		return session.MessageTypePlan
	case KindExecute:
		return session.MessageTypeExecute
	case KindObserve:
		return session.MessageTypeObserve
	case KindJudge:
		return session.MessageTypeJudge
	case KindStageSummary:
		return session.MessageTypeStageSummary
	case KindSummary:
		return session.MessageTypeSummary
	case KindSuggest:
		return session.MessageTypeSuggest
	case KindSkillExecute:
		return session.MessageTypeSkillExecute
	case KindSimpleReply:
		return session.MessageTypeSimpleReply
	default:
		return session.MessageTypeSimpleReply
	}
}

// DefaultMaxToolRounds is the bounded number of tool-call round-trips
// allowed within a single phase before it fails with ToolLoopExceeded
// (spec.md §4.4).
const DefaultMaxToolRounds = 8
