package phase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/core/model"
	"github.com/agentrt/core/model/stubmodel"
	"github.com/agentrt/core/session"
	"github.com/agentrt/core/stream"
	"github.com/agentrt/core/tools"
)

func newSessionCtx(t *testing.T) *session.Context {
	t.Helper()
	return session.New(context.Background(), "sess-1", nil, 200000)
}

func drainEvents(es *stream.EventStream) {
	go func() {
		for range es.Events() {
		}
	}()
}

func TestRunTextOnlyPhaseCompletesWithoutToolCalls(t *testing.T) {
	client := stubmodel.New(stubmodel.Turn{Text: "Hi, how can I help?"})
	r := New(client)
	sc := newSessionCtx(t)
	es := stream.New("sess-1", 16, stream.DefaultChunkThresholdBytes)
	drainEvents(es)

	out, err := r.Run(context.Background(), sc, es, Input{
		Phase:       KindSimpleReply,
		Instruction: "Hello",
	})
	require.NoError(t, err)
	require.Equal(t, "Hi, how can I help?", out.FinalText)
	require.Equal(t, 0, out.ToolRounds)
}

type fakeTools struct {
	defs    []tools.ToolSpec
	results map[string]string
}

func (f *fakeTools) Has(name string) bool { return f.results[name] != "" || name == "get_weather" }

func (f *fakeTools) Invoke(_ context.Context, name string, _ json.RawMessage, _ time.Time) (json.RawMessage, error) {
	return json.RawMessage(`{"text":"` + f.results[name] + `"}`), nil
}

func (f *fakeTools) Definitions() []tools.ToolSpec { return f.defs }

func TestRunResolvesOneToolCallRoundTrip(t *testing.T) {
	client := stubmodel.New(
		stubmodel.Turn{ToolCalls: []model.ToolCall{{ID: "call-1", Name: "get_weather", Payload: json.RawMessage(`{"city":"Beijing"}`)}}},
		stubmodel.Turn{Text: "It is sunny in Beijing."},
	)
	r := New(client)
	sc := newSessionCtx(t)
	es := stream.New("sess-1", 16, stream.DefaultChunkThresholdBytes)
	drainEvents(es)

	ft := &fakeTools{results: map[string]string{"get_weather": "sunny"}}
	out, err := r.Run(context.Background(), sc, es, Input{
		Phase:       KindExecute,
		Instruction: "fetch weather for Beijing",
		Tools:       ft,
	})
	require.NoError(t, err)
	require.Equal(t, "It is sunny in Beijing.", out.FinalText)
	require.Equal(t, 1, out.ToolRounds)
}

func TestRunFailsWithToolLoopExceeded(t *testing.T) {
	var turns []stubmodel.Turn
	for i := 0; i < DefaultMaxToolRounds+2; i++ {
		turns = append(turns, stubmodel.Turn{ToolCalls: []model.ToolCall{{ID: "call", Name: "get_weather", Payload: json.RawMessage(`{}`)}}})
	}
	client := stubmodel.New(turns...)
	r := New(client)
	sc := newSessionCtx(t)
	es := stream.New("sess-1", 16, stream.DefaultChunkThresholdBytes)
	drainEvents(es)

	ft := &fakeTools{results: map[string]string{"get_weather": "sunny"}}
	_, err := r.Run(context.Background(), sc, es, Input{
		Phase:       KindExecute,
		Instruction: "loop forever",
		Tools:       ft,
	})
	require.Error(t, err)
}

func TestRunMalformedToolArgsTriggersOneShotRepairThenFails(t *testing.T) {
	client := stubmodel.New(
		stubmodel.Turn{ToolCalls: []model.ToolCall{{ID: "call-1", Name: "get_weather", Payload: json.RawMessage(`not-json`)}}},
		stubmodel.Turn{ToolCalls: []model.ToolCall{{ID: "call-2", Name: "get_weather", Payload: json.RawMessage(`still-not-json`)}}},
	)
	r := New(client)
	sc := newSessionCtx(t)
	es := stream.New("sess-1", 16, stream.DefaultChunkThresholdBytes)
	drainEvents(es)

	ft := &fakeTools{results: map[string]string{"get_weather": "sunny"}}
	_, err := r.Run(context.Background(), sc, es, Input{
		Phase:       KindExecute,
		Instruction: "fetch weather",
		Tools:       ft,
	})
	require.Error(t, err)
}

func TestRunInterruptedBeforeStartReturnsSessionInterrupted(t *testing.T) {
	client := stubmodel.New(stubmodel.Turn{Text: "unused"})
	r := New(client)
	sc := newSessionCtx(t)
	sc.Cancel()
	es := stream.New("sess-1", 16, stream.DefaultChunkThresholdBytes)
	drainEvents(es)

	_, err := r.Run(context.Background(), sc, es, Input{Phase: KindSimpleReply, Instruction: "hi"})
	require.Error(t, err)
}
