package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageManagerAppendOrderAndCoalesce(t *testing.T) {
	mm := NewMessageManager("s1")
	require.NoError(t, mm.Append(&Message{MessageID: "m1", Role: RoleUser, Content: "hello"}))
	require.NoError(t, mm.Append(&Message{MessageID: "m2", Role: RoleAssistant, Content: "Hi"}))
	require.NoError(t, mm.Coalesce("m2", " there", ""))

	msgs := mm.Get()
	require.Len(t, msgs, 2)
	require.Equal(t, "Hi there", msgs[1].Content)

	require.Error(t, mm.Append(&Message{MessageID: "m1", Role: RoleUser, Content: "dup"}))
}

func TestMessageManagerReplaceOnUpdate(t *testing.T) {
	mm := NewMessageManager("s1")
	require.NoError(t, mm.Append(&Message{MessageID: "t1", Role: RoleTool, Content: "partial", ReplaceOnUpdate: true}))
	require.NoError(t, mm.Replace("t1", &Message{Role: RoleTool, Content: "final"}))

	msg, ok := mm.ByID("t1")
	require.True(t, ok)
	require.Equal(t, "final", msg.Content)

	require.Error(t, mm.Coalesce("t1", "more", ""))
}

func TestHistoryForKeepsEssentialMessages(t *testing.T) {
	mm := NewMessageManager("s1")
	require.NoError(t, mm.Append(&Message{MessageID: "sys", Role: RoleSystem, Content: "system prefix"}))
	require.NoError(t, mm.Append(&Message{MessageID: "u1", Role: RoleUser, Content: "tell me about cats"}))
	require.NoError(t, mm.Append(&Message{MessageID: "r1", Role: RoleAssistant, Type: MessageTypeRouter, Content: "routing internals"}))
	require.NoError(t, mm.Append(&Message{MessageID: "u2", Role: RoleUser, Content: "tell me about dogs"}))
	require.NoError(t, mm.Append(&Message{MessageID: "a1", Role: RoleAssistant, Content: "dogs are great"}))

	hist := mm.HistoryFor(MessageTypeSimpleReply, 100000, 5)
	ids := make([]string, len(hist))
	for i, m := range hist {
		ids[i] = m.MessageID
	}
	require.Contains(t, ids, "sys")
	require.Contains(t, ids, "u2")
	require.Contains(t, ids, "a1")
	require.NotContains(t, ids, "r1") // non-essential phase message dropped
}

func TestHistoryForHardTruncatesToBudget(t *testing.T) {
	mm := NewMessageManager("s1")
	require.NoError(t, mm.Append(&Message{MessageID: "sys", Role: RoleSystem, Content: "sys"}))
	for i := 0; i < 20; i++ {
		require.NoError(t, mm.Append(&Message{MessageID: "u" + string(rune('a'+i)), Role: RoleUser, Content: "padding text to consume tokens in the budget " + string(rune('a'+i))}))
	}
	require.NoError(t, mm.Append(&Message{MessageID: "last-a", Role: RoleAssistant, Content: "final answer"}))

	hist := mm.HistoryFor(MessageTypeSimpleReply, 20, 50)
	require.NotEmpty(t, hist)
	// the essential tail must survive even under an extremely tight budget
	foundLast := false
	for _, m := range hist {
		if m.MessageID == "last-a" {
			foundLast = true
		}
	}
	require.True(t, foundLast)
}

func TestTaskManagerParentCompletionInvariant(t *testing.T) {
	tm := NewTaskManager()
	require.NoError(t, tm.Create(&Task{TaskID: "parent", Name: "parent"}))
	require.NoError(t, tm.Create(&Task{TaskID: "c1", Name: "c1", ParentID: "parent"}))
	require.NoError(t, tm.Create(&Task{TaskID: "c2", Name: "c2", ParentID: "parent"}))

	require.True(t, tm.AnyIncomplete())

	require.NoError(t, tm.UpdateStatus("c1", TaskCompleted))
	parent, _ := tm.Get("parent")
	require.Equal(t, TaskPending, parent.Status) // c2 still incomplete

	require.NoError(t, tm.UpdateStatus("c2", TaskSkipped))
	parent, _ = tm.Get("parent")
	require.Equal(t, TaskCompleted, parent.Status)
	require.False(t, tm.AnyIncomplete())
}

func TestWorkflowManagerAdvanceDescendsSubSteps(t *testing.T) {
	wm := NewWorkflowManager()
	wm.Select(&Workflow{
		WorkflowID: "wf1",
		Steps: []WorkflowStep{
			{Name: "a", SubSteps: []WorkflowStep{{Name: "a.1"}, {Name: "a.2"}}},
			{Name: "b"},
		},
	})

	require.True(t, wm.Advance())
	step, ok := wm.CurrentStep()
	require.True(t, ok)
	require.Equal(t, "a", step.Name)

	require.True(t, wm.Advance())
	step, _ = wm.CurrentStep()
	require.Equal(t, "a.1", step.Name)

	require.True(t, wm.Advance())
	step, _ = wm.CurrentStep()
	require.Equal(t, "a.2", step.Name)

	require.True(t, wm.Advance())
	step, _ = wm.CurrentStep()
	require.Equal(t, "b", step.Name)

	require.False(t, wm.Advance())
}

func TestTokenAccountingBudget(t *testing.T) {
	ta := NewTokenAccounting(10000)
	ta.Record(MessageTypeSimpleReply, TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150})
	require.Equal(t, 150, ta.Cumulative().TotalTokens)
	require.Equal(t, 10000-DefaultReserveTokens-150, ta.BudgetTokens())
}

func TestContextCancelIsObservedByDone(t *testing.T) {
	sc := New(context.Background(), "s1", map[string]any{"locale": "en"}, 0)
	require.False(t, sc.Interrupted())
	sc.Cancel()
	require.True(t, sc.Interrupted())
	sc.SetStatus(StatusInterrupted)
	require.Equal(t, StatusInterrupted, sc.Status())
}
