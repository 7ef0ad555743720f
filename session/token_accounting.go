package session

import "sync"

// TokenAccounting records per-phase token tallies and maintains the
// cumulative sum for the session (spec.md §4.2, §4.8).
type TokenAccounting struct {
	mu          sync.Mutex
	perPhase    map[MessageType]TokenUsage
	cumulative  TokenUsage
	modelWindow int
	reserve     int
}

// DefaultReserveTokens is subtracted from the cumulative model window to
// compute the next phase's history budget (spec.md §4.8).
const DefaultReserveTokens = 1024

// DefaultModelWindow is used when the model's configured max_tokens is
// unknown (spec.md §4.8).
const DefaultModelWindow = 200000

// NewTokenAccounting constructs a tracker bound to the given model context
// window. A modelWindow of 0 falls back to DefaultModelWindow.
func NewTokenAccounting(modelWindow int) *TokenAccounting {
	if modelWindow <= 0 {
		modelWindow = DefaultModelWindow
	}
	return &TokenAccounting{
		perPhase:    make(map[MessageType]TokenUsage),
		modelWindow: modelWindow,
		reserve:     DefaultReserveTokens,
	}
}

// Record attributes usage to phase and adds it to the cumulative total.
func (t *TokenAccounting) Record(phase MessageType, usage TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	agg := t.perPhase[phase]
	agg.PromptTokens += usage.PromptTokens
	agg.CompletionTokens += usage.CompletionTokens
	agg.TotalTokens += usage.TotalTokens
	t.perPhase[phase] = agg

	t.cumulative.PromptTokens += usage.PromptTokens
	t.cumulative.CompletionTokens += usage.CompletionTokens
	t.cumulative.TotalTokens += usage.TotalTokens
}

// Cumulative returns the session-wide total recorded so far.
func (t *TokenAccounting) Cumulative() TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cumulative
}

// PerPhase returns a copy of the per-phase tallies.
func (t *TokenAccounting) PerPhase() map[MessageType]TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[MessageType]TokenUsage, len(t.perPhase))
	for k, v := range t.perPhase {
		out[k] = v
	}
	return out
}

// BudgetTokens computes the history budget for the next phase: the
// cumulative model window bound minus the reserve and minus tokens already
// spent this session (spec.md §4.8), floored at zero.
func (t *TokenAccounting) BudgetTokens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	budget := t.modelWindow - t.reserve - t.cumulative.TotalTokens
	if budget < 0 {
		budget = 0
	}
	return budget
}
