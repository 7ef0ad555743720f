package controller

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/core/interrupt"
	"github.com/agentrt/core/model"
	"github.com/agentrt/core/model/stubmodel"
	"github.com/agentrt/core/session"
	"github.com/agentrt/core/stream"
	"github.com/agentrt/core/tools"
)

func newRegistryWithWeather(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	_, err := r.Register(tools.ToolSpec{
		Name:        "get_weather",
		Description: "fetch current weather for a city",
		Kind:        tools.KindLocal,
		Local: func(_ context.Context, _ json.RawMessage, _ tools.WorkspaceHandle) (any, error) {
			return "sunny", nil
		},
	})
	require.NoError(t, err)
	_, err = r.Register(tools.ToolSpec{
		Name:        "read_file",
		Description: "read a workspace file",
		Kind:        tools.KindLocal,
		Local: func(_ context.Context, _ json.RawMessage, _ tools.WorkspaceHandle) (any, error) {
			return "file contents", nil
		},
	})
	require.NoError(t, err)
	return r
}

func drainAll(t *testing.T, es *stream.EventStream, timeout time.Duration) []stream.Event {
	t.Helper()
	var got []stream.Event
	deadline := time.After(timeout)
	for {
		select {
		case e, ok := <-es.Events():
			if !ok {
				return got
			}
			got = append(got, e)
		case <-deadline:
			t.Fatal("timed out draining event stream")
			return got
		}
	}
}

func TestRunAutoRouteSimpleChatCompletes(t *testing.T) {
	client := stubmodel.New(
		stubmodel.Turn{Text: `{"deep_thinking":false,"multi_agent":false}`}, // router
		stubmodel.Turn{Text: "Hi, how can I help?"},                        // simple_reply
	)
	reg := tools.NewRegistry()
	ctrl := New(client, reg, interrupt.New(), nil, nil)

	req := Request{Messages: []IncomingMessage{{Role: session.RoleUser, Content: "Hello"}}}
	sc, es := ctrl.Start(context.Background(), req)
	events := drainAll(t, es, 5*time.Second)

	require.Equal(t, session.StatusSucceeded, sc.Status())
	last := events[len(events)-1]
	require.Equal(t, stream.TypeStreamEnd, last.Type)
	payload := last.Payload.(stream.StreamEndPayload)
	require.Equal(t, stream.EndCompleted, payload.Reason)
}

func TestRunForcedMultiAgentWithTwoTools(t *testing.T) {
	client := stubmodel.New(
		stubmodel.Turn{Text: `{"tasks":[{"id":"t1","name":"summarize","description":"summarize file X"},{"id":"t2","name":"weather","description":"fetch weather for Beijing"}]}`}, // decompose
		stubmodel.Turn{Text: "plan"}, // plan
		stubmodel.Turn{ToolCalls: []model.ToolCall{
			{ID: "c1", Name: "read_file", Payload: json.RawMessage(`{}`)},
			{ID: "c2", Name: "get_weather", Payload: json.RawMessage(`{}`)},
		}},
		stubmodel.Turn{Text: "executed"}, // continuation after tool results
		stubmodel.Turn{Text: "observed"}, // observe
		stubmodel.Turn{Text: `{"tasks":[{"id":"t1","status":"completed"},{"id":"t2","status":"completed"}]}`}, // judge
		stubmodel.Turn{Text: "stage done"},                                                                   // stage_summary
		stubmodel.Turn{Text: "Summarized file X and fetched Beijing weather."},                                // summary
	)
	reg := newRegistryWithWeather(t)
	multiAgent := true
	deepThinking := false
	ctrl := New(client, reg, interrupt.New(), nil, nil)

	req := Request{
		Messages:       []IncomingMessage{{Role: session.RoleUser, Content: "summarize file X and fetch weather for Beijing"}},
		MultiAgent:     &multiAgent,
		DeepThinking:   &deepThinking,
		AvailableTools: []string{"read_file", "get_weather"},
	}
	sc, es := ctrl.Start(context.Background(), req)
	events := drainAll(t, es, 5*time.Second)

	require.Equal(t, session.StatusSucceeded, sc.Status())
	last := events[len(events)-1]
	payload := last.Payload.(stream.StreamEndPayload)
	require.Equal(t, stream.EndCompleted, payload.Reason)

	tasks := sc.Tasks.All()
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		require.Equal(t, session.TaskCompleted, task.Status)
	}
}

func TestRunPermissionDenialContinuesSession(t *testing.T) {
	client := stubmodel.New(
		stubmodel.Turn{Text: `{"deep_thinking":false,"multi_agent":false}`},
		stubmodel.Turn{ToolCalls: []model.ToolCall{{ID: "c1", Name: "delete_file", Payload: json.RawMessage(`{}`)}}},
		stubmodel.Turn{Text: "Done, but I could not delete the file."},
	)
	reg := tools.NewRegistry() // delete_file deliberately not registered / not in allow-list
	ctrl := New(client, reg, interrupt.New(), nil, nil)

	req := Request{
		Messages:       []IncomingMessage{{Role: session.RoleUser, Content: "delete file X"}},
		AvailableTools: []string{}, // delete_file not permitted
	}
	sc, es := ctrl.Start(context.Background(), req)
	events := drainAll(t, es, 5*time.Second)

	require.Equal(t, session.StatusSucceeded, sc.Status())
	last := events[len(events)-1]
	payload := last.Payload.(stream.StreamEndPayload)
	require.Equal(t, stream.EndCompleted, payload.Reason)
}

// delayedClient wraps a model.Client and sleeps before every call, giving a
// concurrently-issued interrupt() time to fire before the phase observes
// its result — without this, the race between the spawned run goroutine
// and the test's Interrupt call would make the assertion flaky.
type delayedClient struct {
	inner model.Client
	delay time.Duration
}

func (d delayedClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	time.Sleep(d.delay)
	return d.inner.Complete(ctx, req)
}

func (d delayedClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	time.Sleep(d.delay)
	return d.inner.Stream(ctx, req)
}

func TestRunInterruptMidRunYieldsInterruptedStreamEnd(t *testing.T) {
	client := delayedClient{inner: stubmodel.New(stubmodel.Turn{Text: `{"deep_thinking":false,"multi_agent":false}`}), delay: 150 * time.Millisecond}
	reg := tools.NewRegistry()
	reg2 := interrupt.New()
	ctrl := New(client, reg, reg2, nil, nil)

	req := Request{SessionID: "sess-interrupt", Messages: []IncomingMessage{{Role: session.RoleUser, Content: "hi"}}}
	sc, es := ctrl.Start(context.Background(), req)
	_ = reg2.Interrupt("sess-interrupt")
	events := drainAll(t, es, 5*time.Second)

	require.Equal(t, session.StatusInterrupted, sc.Status())
	last := events[len(events)-1]
	payload := last.Payload.(stream.StreamEndPayload)
	require.Equal(t, stream.EndInterrupted, payload.Reason)
}

func TestRunMaxLoopCountExceededForcesSummaryWithPartialNote(t *testing.T) {
	var turns []stubmodel.Turn
	turns = append(turns, stubmodel.Turn{Text: `{"tasks":[{"id":"only","name":"slow","description":"a task that never completes"}]}`}) // decompose
	// One loop iteration: plan, execute (no tools), observe, judge (always running).
	turns = append(turns,
		stubmodel.Turn{Text: "plan"},
		stubmodel.Turn{Text: "execute"},
		stubmodel.Turn{Text: "observe"},
		stubmodel.Turn{Text: `{"tasks":[{"id":"only","status":"running"}]}`},
		stubmodel.Turn{Text: "stage"},
	)
	turns = append(turns, stubmodel.Turn{Text: "Partial progress only."}) // summary
	client := stubmodel.New(turns...)

	reg := tools.NewRegistry()
	multiAgent := true
	deepThinking := false
	ctrl := New(client, reg, interrupt.New(), nil, nil)

	req := Request{
		Messages:     []IncomingMessage{{Role: session.RoleUser, Content: "do a long task"}},
		MultiAgent:   &multiAgent,
		DeepThinking: &deepThinking,
		MaxLoopCount: 1,
	}
	sc, es := ctrl.Start(context.Background(), req)
	events := drainAll(t, es, 5*time.Second)

	require.Equal(t, session.StatusSucceeded, sc.Status())
	last := events[len(events)-1]
	payload := last.Payload.(stream.StreamEndPayload)
	require.Equal(t, stream.EndCompleted, payload.Reason)
	require.True(t, sc.Tasks.AnyIncomplete())
}
