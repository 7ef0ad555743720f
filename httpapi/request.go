package httpapi

import (
	"sort"

	"github.com/agentrt/core/controller"
	"github.com/agentrt/core/model"
	"github.com/agentrt/core/session"
)

// ingressMessage is the wire shape of one entry of the request's `messages`
// array (spec.md §6).
type ingressMessage struct {
	Role    session.Role `json:"role"`
	Content string       `json:"content"`
}

// ingressModelConfig is the wire shape of `llm_model_config` (spec.md §6).
type ingressModelConfig struct {
	Model       string  `json:"model"`
	ModelClass  string  `json:"model_class"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// ingressRequest is the wire shape of the streaming ingress body (spec.md
// §6).
type ingressRequest struct {
	Messages           []ingressMessage          `json:"messages"`
	SessionID          string                    `json:"session_id"`
	AgentID            string                    `json:"agent_id"`
	DeepThinking       *bool                     `json:"deep_thinking"`
	MultiAgent         *bool                     `json:"multi_agent"`
	MoreSuggest        bool                      `json:"more_suggest"`
	MaxLoopCount       int                       `json:"max_loop_count"`
	AvailableTools     []string                  `json:"available_tools"`
	AvailableWorkflows map[string]ingressWorkflow `json:"available_workflows"`
	SystemContext      map[string]any            `json:"system_context"`
	LLMModelConfig     ingressModelConfig        `json:"llm_model_config"`
	SystemPrefix       string                    `json:"system_prefix"`
	UserID             string                    `json:"user_id"`
}

type ingressWorkflowStep struct {
	Name     string                `json:"name"`
	SubSteps []ingressWorkflowStep `json:"sub_steps"`
}

type ingressWorkflow struct {
	Name     string                `json:"name"`
	Steps    []ingressWorkflowStep `json:"steps"`
	Category string                `json:"category"`
	Tags     []string              `json:"tags"`
	Enabled  bool                  `json:"enabled"`
}

func toWorkflowSteps(in []ingressWorkflowStep) []session.WorkflowStep {
	out := make([]session.WorkflowStep, len(in))
	for i, s := range in {
		out[i] = session.WorkflowStep{Name: s.Name, SubSteps: toWorkflowSteps(s.SubSteps)}
	}
	return out
}

// toControllerRequest translates the wire request into controller.Request.
// available_workflows is a map keyed by id on the wire (spec.md §6); it is
// sorted by id here to give "first-listed workflow wins" a deterministic
// meaning independent of JSON object key order.
func (r ingressRequest) toControllerRequest() controller.Request {
	msgs := make([]controller.IncomingMessage, len(r.Messages))
	for i, m := range r.Messages {
		msgs[i] = controller.IncomingMessage{Role: m.Role, Content: m.Content}
	}

	ids := make([]string, 0, len(r.AvailableWorkflows))
	for id := range r.AvailableWorkflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	workflows := make([]*session.Workflow, 0, len(ids))
	for _, id := range ids {
		w := r.AvailableWorkflows[id]
		workflows = append(workflows, &session.Workflow{
			WorkflowID: id,
			Name:       w.Name,
			Steps:      toWorkflowSteps(w.Steps),
			Category:   w.Category,
			Tags:       w.Tags,
			Enabled:    w.Enabled,
		})
	}

	return controller.Request{
		Messages:           msgs,
		SessionID:          r.SessionID,
		AgentID:            r.AgentID,
		DeepThinking:       r.DeepThinking,
		MultiAgent:         r.MultiAgent,
		MoreSuggest:        r.MoreSuggest,
		MaxLoopCount:       r.MaxLoopCount,
		AvailableTools:     r.AvailableTools,
		AvailableWorkflows: workflows,
		SystemContext:      r.SystemContext,
		SystemPrefix:       r.SystemPrefix,
		UserID:             r.UserID,
		ModelConfig: controller.ModelConfig{
			Model:       r.LLMModelConfig.Model,
			ModelClass:  model.ModelClass(r.LLMModelConfig.ModelClass),
			MaxTokens:   r.LLMModelConfig.MaxTokens,
			Temperature: r.LLMModelConfig.Temperature,
		},
	}
}
