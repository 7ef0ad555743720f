// Package stubmodel provides a scripted model.Client test double. It has no
// teacher source (there is no production use for a canned oracle); it exists
// purely so phase/controller tests can drive deterministic LLM behavior
// without a network dependency.
package stubmodel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/agentrt/core/model"
)

// Turn is one scripted response returned by Client.Stream/Complete in order.
type Turn struct {
	// Text is streamed as a single ChunkTypeText chunk (or returned verbatim
	// from Complete).
	Text string
	// ToolCalls is emitted after Text as ChunkTypeToolCall chunks.
	ToolCalls []model.ToolCall
	// Usage is reported as the terminal usage delta / Response.Usage.
	Usage model.TokenUsage
	// Err, when set, is returned instead of a response/stream for this turn.
	Err error
}

// Client replays a fixed script of Turns, one per call, advancing one shared
// index on every invocation of Complete or Stream (whichever the caller uses).
type Client struct {
	mu     sync.Mutex
	turns  []Turn
	cursor int
}

// New builds a Client that replays turns in order; the last turn repeats
// once the script is exhausted.
func New(turns ...Turn) *Client {
	return &Client{turns: turns}
}

func (c *Client) next() Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.turns) == 0 {
		return Turn{Text: "ok"}
	}
	idx := c.cursor
	if idx >= len(c.turns) {
		idx = len(c.turns) - 1
	} else {
		c.cursor++
	}
	return c.turns[idx]
}

// Complete returns the next scripted turn as a non-streaming Response.
func (c *Client) Complete(_ context.Context, _ *model.Request) (*model.Response, error) {
	turn := c.next()
	if turn.Err != nil {
		return nil, turn.Err
	}
	resp := &model.Response{Usage: turn.Usage, StopReason: "end_turn"}
	if turn.Text != "" {
		resp.Content = append(resp.Content, model.Message{
			Role:  model.ConversationRoleAssistant,
			Parts: []model.Part{model.TextPart{Text: turn.Text}},
		})
	}
	resp.ToolCalls = turn.ToolCalls
	if len(turn.ToolCalls) > 0 {
		resp.StopReason = "tool_use"
	}
	return resp, nil
}

// Stream returns the next scripted turn as a small fixed sequence of chunks.
func (c *Client) Stream(_ context.Context, _ *model.Request) (model.Streamer, error) {
	turn := c.next()
	if turn.Err != nil {
		return nil, turn.Err
	}
	var chunks []model.Chunk
	if turn.Text != "" {
		chunks = append(chunks, model.Chunk{Type: model.ChunkTypeText, Message: &model.Message{
			Role:  model.ConversationRoleAssistant,
			Parts: []model.Part{model.TextPart{Text: turn.Text}},
		}})
	}
	for i := range turn.ToolCalls {
		tc := turn.ToolCalls[i]
		if len(tc.Payload) == 0 {
			tc.Payload = json.RawMessage("{}")
		}
		chunks = append(chunks, model.Chunk{Type: model.ChunkTypeToolCall, ToolCall: &tc})
	}
	if turn.Usage.TotalTokens > 0 {
		u := turn.Usage
		chunks = append(chunks, model.Chunk{Type: model.ChunkTypeUsage, UsageDelta: &u})
	}
	stopReason := "end_turn"
	if len(turn.ToolCalls) > 0 {
		stopReason = "tool_use"
	}
	chunks = append(chunks, model.Chunk{Type: model.ChunkTypeStop, StopReason: stopReason})
	return &scriptStreamer{chunks: chunks}, nil
}

type scriptStreamer struct {
	chunks []model.Chunk
	idx    int
}

func (s *scriptStreamer) Recv() (model.Chunk, error) {
	if s.idx >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, nil
}

func (s *scriptStreamer) Close() error { return nil }

// ErrScripted is a convenience sentinel for tests that want a Turn to fail.
var ErrScripted = errors.New("stubmodel: scripted failure")
