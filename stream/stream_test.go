package stream

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitSmallPayloadIsSingleEvent(t *testing.T) {
	es := New("s1", 8, 32*1024)
	ctx := context.Background()

	go func() {
		_ = es.Emit(ctx, Event{MessageID: "m1", Type: TypeMessage, Payload: MessagePayload{Content: "hi"}})
		_ = es.End(ctx, EndCompleted, TokenUsageView{})
	}()

	var events []Event
	for e := range es.Events() {
		events = append(events, e)
	}
	require.Len(t, events, 2)
	require.Equal(t, TypeMessage, events[0].Type)
	require.Equal(t, TypeStreamEnd, events[1].Type)
	require.Equal(t, int64(1), events[0].Seq)
	require.Equal(t, int64(2), events[1].Seq)
}

func TestEmitChunksOversizedPayloadAndReassembles(t *testing.T) {
	es := New("s1", 64, 16) // tiny threshold to force chunking
	ctx := context.Background()

	bigContent := strings.Repeat("x", 200)

	go func() {
		_ = es.Emit(ctx, Event{MessageID: "big1", Type: TypeMessage, Payload: MessagePayload{Content: bigContent}})
		_ = es.End(ctx, EndCompleted, TokenUsageView{})
	}()

	reasm := NewReassembler()
	var gotRaw json.RawMessage
	var gotType Type
	sawChunkStart, sawChunkEnd := false, false

	for e := range es.Events() {
		switch e.Type {
		case TypeChunkStart:
			sawChunkStart = true
		case TypeChunkEnd:
			sawChunkEnd = true
		case TypeStreamEnd:
			continue
		}
		raw, ot, ok, err := reasm.Feed(e)
		require.NoError(t, err)
		if ok {
			gotRaw, gotType = raw, ot
		}
	}

	require.True(t, sawChunkStart)
	require.True(t, sawChunkEnd)
	require.Equal(t, TypeMessage, gotType)

	var decoded MessagePayload
	require.NoError(t, json.Unmarshal(gotRaw, &decoded))
	require.Equal(t, bigContent, decoded.Content)
}

func TestEndIsIdempotent(t *testing.T) {
	es := New("s1", 4, 1024)
	ctx := context.Background()
	require.NoError(t, es.End(ctx, EndCompleted, TokenUsageView{TotalTokens: 5}))
	require.NoError(t, es.End(ctx, EndFailed, TokenUsageView{TotalTokens: 99}))

	var got Event
	for e := range es.Events() {
		got = e
	}
	require.Equal(t, TypeStreamEnd, got.Type)
	payload := got.Payload.(StreamEndPayload)
	require.Equal(t, EndCompleted, payload.Reason)
}

func TestReassemblerDeduplicatesAtLeastOnceChunks(t *testing.T) {
	reasm := NewReassembler()
	_, _, ok, err := reasm.Feed(Event{MessageID: "m", Type: TypeChunkStart, Payload: ChunkStartPayload{
		OriginalType: TypeMessage, TotalChunks: 2, TotalBytes: 4,
	}})
	require.NoError(t, err)
	require.False(t, ok)

	_, _, ok, err = reasm.Feed(Event{MessageID: "m", Type: TypeJSONChunk, Payload: JSONChunkPayload{ChunkIndex: 0, ChunkData: "ab"}})
	require.NoError(t, err)
	require.False(t, ok)
	// redelivery of the same chunk index (at-least-once transport)
	_, _, ok, err = reasm.Feed(Event{MessageID: "m", Type: TypeJSONChunk, Payload: JSONChunkPayload{ChunkIndex: 0, ChunkData: "ab"}})
	require.NoError(t, err)
	require.False(t, ok)

	_, _, ok, err = reasm.Feed(Event{MessageID: "m", Type: TypeJSONChunk, Payload: JSONChunkPayload{ChunkIndex: 1, ChunkData: "cd"}})
	require.NoError(t, err)
	require.False(t, ok)

	raw, ot, ok, err := reasm.Feed(Event{MessageID: "m", Type: TypeChunkEnd})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TypeMessage, ot)
	require.Equal(t, "abcd", string(raw))
}
