package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentrt/core/model"
	"github.com/agentrt/core/session"
	"github.com/agentrt/core/telemetry"
)

// DefaultTurnWindow is the number of trailing user/assistant turns fed to
// the extraction prompt (spec.md §4.7).
const DefaultTurnWindow = 10

// Extractor runs the async post-processing pass after a session's
// stream_end: it reads the last K turns, asks a small model to propose
// candidate memories, de-duplicates them against each other and the
// store, and resolves contradictions (spec.md §4.7).
type Extractor struct {
	client model.Client
	store  Store
	model  string
	logger telemetry.Logger
}

// New constructs an Extractor. modelID selects the (typically small/cheap)
// model used for extraction and contradiction checks.
func New(client model.Client, store Store, modelID string, logger telemetry.Logger) *Extractor {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Extractor{client: client, store: store, model: modelID, logger: logger}
}

type candidate struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

type extractionResult struct {
	Candidates []candidate `json:"candidates"`
}

// Run extracts memories for userID from the trailing turns of msgs and
// reconciles them against the store. It is designed to be launched as a
// detached goroutine after stream_end; callers that want to observe
// completion should wrap the call themselves.
func (e *Extractor) Run(ctx context.Context, userID string, msgs []*session.Message) error {
	turns := lastTurns(msgs, DefaultTurnWindow)
	if len(turns) == 0 {
		return nil
	}

	candidates, err := e.proposeCandidates(ctx, turns)
	if err != nil {
		e.logger.Error(ctx, "memory extraction proposal failed", "user_id", userID, "error", err)
		return err
	}

	deduped := dedupeCandidates(candidates)

	existing, err := e.store.Recall(ctx, userID)
	if err != nil {
		e.logger.Error(ctx, "memory recall failed", "user_id", userID, "error", err)
		return err
	}

	for _, c := range deduped {
		if err := e.reconcile(ctx, userID, c, existing); err != nil {
			e.logger.Error(ctx, "memory reconcile failed", "user_id", userID, "error", err)
			continue
		}
	}
	return nil
}

// dedupeCandidates removes intra-batch duplicates by string-normalized
// equality (spec.md §4.7); when two candidates share the same normalized
// key but differ in raw text (case, whitespace), the later-indexed
// candidate's text is kept. Candidates that contradict each other without
// being normalized-equal are not detected here, and Run reconciles every
// candidate only against the memories recalled before the batch, so both
// members of such a pair are remembered.
func dedupeCandidates(candidates []candidate) []candidate {
	byKey := make(map[string]candidate)
	var order []string
	for _, c := range candidates {
		key := normalizedKey(Memory{Kind: c.Kind, Text: c.Text})
		if _, exists := byKey[key]; !exists {
			order = append(order, key)
		}
		byKey[key] = c // later-indexed candidate wins
	}
	out := make([]candidate, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

func (e *Extractor) reconcile(ctx context.Context, userID string, c candidate, existing []Memory) error {
	for _, ex := range existing {
		if ex.Kind != c.Kind {
			continue
		}
		contradicts, err := e.judgeContradiction(ctx, ex.Text, c.Text)
		if err != nil {
			return err
		}
		if contradicts {
			if err := e.store.Forget(ctx, userID, ex.ID); err != nil {
				return err
			}
			break
		}
	}
	return e.store.Remember(ctx, userID, Memory{Kind: c.Kind, Text: c.Text})
}

func (e *Extractor) proposeCandidates(ctx context.Context, turns []*session.Message) ([]candidate, error) {
	var transcript string
	for _, m := range turns {
		transcript += fmt.Sprintf("%s: %s\n", m.Role, m.Content)
	}
	prompt := "Extract durable user memories (preference, persona, requirement, fact) from this conversation. " +
		"Respond with JSON: {\"candidates\":[{\"kind\":...,\"text\":...}]}.\n\n" + transcript

	resp, err := e.client.Complete(ctx, &model.Request{
		Model: e.model,
		Messages: []*model.Message{
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: prompt}}},
		},
	})
	if err != nil {
		return nil, err
	}

	text := textFromResponse(resp)
	var result extractionResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("memory: extraction response was not valid JSON: %w", err)
	}
	return result.Candidates, nil
}

func (e *Extractor) judgeContradiction(ctx context.Context, existingText, candidateText string) (bool, error) {
	prompt := fmt.Sprintf(
		"Does statement B contradict statement A? Respond with JSON only: {\"contradicts\": true|false}.\nA: %s\nB: %s",
		existingText, candidateText)
	resp, err := e.client.Complete(ctx, &model.Request{
		Model: e.model,
		Messages: []*model.Message{
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: prompt}}},
		},
	})
	if err != nil {
		return false, err
	}
	var verdict struct {
		Contradicts bool `json:"contradicts"`
	}
	if err := json.Unmarshal([]byte(textFromResponse(resp)), &verdict); err != nil {
		return false, fmt.Errorf("memory: contradiction response was not valid JSON: %w", err)
	}
	return verdict.Contradicts, nil
}

func textFromResponse(resp *model.Response) string {
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

func lastTurns(msgs []*session.Message, k int) []*session.Message {
	var turns []*session.Message
	for _, m := range msgs {
		if m.Role == session.RoleUser || m.Role == session.RoleAssistant {
			turns = append(turns, m)
		}
	}
	if len(turns) > k {
		turns = turns[len(turns)-k:]
	}
	return turns
}
