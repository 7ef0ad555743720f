package anthropicmodel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentrt/core/model"
)

// streamer adapts an Anthropic Messages SSE stream to model.Streamer. A
// background goroutine drains the SDK stream and pushes translated chunks
// onto a buffered channel so Recv never blocks on SDK internals directly.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]

	chunks chan model.Chunk

	mu       sync.Mutex
	finalErr error
	errSet   bool
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion]) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{
		ctx:    cctx,
		cancel: cancel,
		stream: stream,
		chunks: make(chan model.Chunk, 32),
	}
	go s.run()
	return s
}

func (s *streamer) Recv() (model.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		s.setErr(err)
		return model.Chunk{}, err
	}
}

func (s *streamer) Close() error {
	s.cancel()
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *streamer) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalErr
}

func (s *streamer) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.errSet {
		s.finalErr = err
		s.errSet = true
	}
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	var curToolID, curToolName string
	var toolInputBuf []byte

	emit := func(c model.Chunk) bool {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return false
		case s.chunks <- c:
			return true
		}
	}

	for s.stream.Next() {
		event := s.stream.Current()
		switch e := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			switch b := e.ContentBlock.AsAny().(type) {
			case sdk.ToolUseBlock:
				curToolID, curToolName = b.ID, b.Name
				toolInputBuf = toolInputBuf[:0]
			}
		case sdk.ContentBlockDeltaEvent:
			switch d := e.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if !emit(model.Chunk{Type: model.ChunkTypeText, Message: &model.Message{
					Role:  model.ConversationRoleAssistant,
					Parts: []model.Part{model.TextPart{Text: d.Text}},
				}}) {
					return
				}
			case sdk.ThinkingDelta:
				if !emit(model.Chunk{Type: model.ChunkTypeThinking, Thinking: d.Thinking}) {
					return
				}
			case sdk.InputJSONDelta:
				toolInputBuf = append(toolInputBuf, []byte(d.PartialJSON)...)
				if !emit(model.Chunk{Type: model.ChunkTypeToolCallDelta, ToolCallDelta: &model.ToolCallDelta{
					Name: curToolName, ID: curToolID, Delta: d.PartialJSON,
				}}) {
					return
				}
			}
		case sdk.ContentBlockStopEvent:
			if curToolID != "" {
				payload := json.RawMessage(toolInputBuf)
				if len(payload) == 0 {
					payload = json.RawMessage("{}")
				}
				if !emit(model.Chunk{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{
					Name: curToolName, ID: curToolID, Payload: payload,
				}}) {
					return
				}
				curToolID, curToolName = "", ""
				toolInputBuf = nil
			}
		case sdk.MessageDeltaEvent:
			if e.Usage.OutputTokens > 0 {
				if !emit(model.Chunk{Type: model.ChunkTypeUsage, UsageDelta: &model.TokenUsage{
					CompletionTokens: int(e.Usage.OutputTokens),
					TotalTokens:      int(e.Usage.OutputTokens),
				}}) {
					return
				}
			}
			if string(e.Delta.StopReason) != "" {
				if !emit(model.Chunk{Type: model.ChunkTypeStop, StopReason: string(e.Delta.StopReason)}) {
					return
				}
			}
		}
	}
	if err := s.stream.Err(); err != nil {
		s.setErr(err)
		return
	}
	if err := s.ctx.Err(); err != nil {
		s.setErr(err)
		return
	}
	s.setErr(nil)
}

// ErrClosed is a sentinel for a closed stream. Recv does not return it:
// after Close, Recv reports the cancelled context's error (context.Canceled).
var ErrClosed = errors.New("anthropicmodel: stream closed")
