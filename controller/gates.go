package controller

import "github.com/agentrt/core/session"

// needsWorkflowSelect reports whether the WorkflowSelect? gate fires:
// more than five candidate workflows were offered (spec.md §4.5).
func needsWorkflowSelect(workflows []*session.Workflow) bool {
	return len(workflows) > 5
}

// needsRouter reports whether the Router? gate fires: the caller left at
// least one of deep_thinking/multi_agent unresolved (spec.md §4.5).
func needsRouter(req Request) bool {
	return req.DeepThinking == nil || req.MultiAgent == nil
}

// needsAnalysis reports whether the Analysis? gate fires, evaluated after
// deep_thinking has been resolved by the caller or the Router.
func needsAnalysis(flags resolvedFlags) bool {
	return flags.deepThinking
}

// needsSummary reports whether the Summary? gate fires: multi-agent mode,
// or the multi-agent loop was force-terminated with partial completion
// (spec.md §4.5, §8 boundary behavior "max_loop_count=1 with incomplete
// tasks").
func needsSummary(flags resolvedFlags) bool {
	return flags.multiAgent || flags.forceSummary
}

// needsSuggest reports whether the Suggest? gate fires.
func needsSuggest(req Request) bool {
	return req.MoreSuggest
}

// selectWorkflow resolves the run's workflow when WorkflowSelect is
// skipped (<=5 candidates): the first-listed workflow wins (spec.md §4.5
// tie-break rule). Callers that need Router/LLM-driven selection when the
// gate fires do so in runGraph; this only covers the skip path.
func selectWorkflow(workflows []*session.Workflow) (*session.Workflow, bool) {
	if len(workflows) == 0 {
		return nil, false
	}
	return workflows[0], true
}

// resolveModeBranch overlays the caller's explicit deep_thinking/multi_agent
// flags on the Router's decision: an explicit flag always replaces the
// Router's value, and an unset one keeps it. runGraph then takes the
// multi-agent subgraph whenever the resolved multi_agent flag is true.
func resolveModeBranch(req Request, routed resolvedFlags) resolvedFlags {
	flags := routed
	if req.DeepThinking != nil {
		flags.deepThinking = *req.DeepThinking
	}
	if req.MultiAgent != nil {
		flags.multiAgent = *req.MultiAgent
	}
	return flags
}
