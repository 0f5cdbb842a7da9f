package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easelhq/easel/internal/agent"
	"github.com/easelhq/easel/internal/broadcast"
	"github.com/easelhq/easel/internal/chat"
	"github.com/easelhq/easel/internal/log"
	"github.com/easelhq/easel/internal/stream"
	"github.com/easelhq/easel/internal/task"
)

type fixture struct {
	store   *chat.MemoryStore
	hub     *broadcast.Hub
	orch    *Orchestrator
	updates <-chan broadcast.Update
}

func newFixture(t *testing.T, graph agent.Graph, confirm []string) *fixture {
	t.Helper()
	store := chat.NewMemoryStore(log.NewNop())
	hub := broadcast.NewHub(64, log.NewNop())
	updates, cancel := hub.Subscribe()
	t.Cleanup(cancel)

	return &fixture{
		store:   store,
		hub:     hub,
		orch:    New(store, task.NewRegistry(), hub, graph, confirm, log.NewNop()),
		updates: updates,
	}
}

func (f *fixture) drain() []broadcast.Update {
	var out []broadcast.Update
	for {
		select {
		case u := <-f.updates:
			out = append(out, u)
		default:
			return out
		}
	}
}

func TestHandleChat_FirstTurnSnapshot(t *testing.T) {
	graph := &agent.ScriptedGraph{Events: []stream.Event{
		stream.Snapshot([]chat.Message{
			{ID: "m1", Role: chat.RoleUser, Content: "hello"},
			{ID: "m2", Role: chat.RoleAssistant, Content: "hi"},
		}),
	}}
	f := newFixture(t, graph, nil)

	err := f.orch.HandleChat(context.Background(), Request{
		SessionID: "s1",
		CanvasID:  "c1",
		Messages:  []chat.Message{{ID: "m1", Role: chat.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)

	history, err := f.store.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "m1", history[0].ID)
	assert.Equal(t, "m2", history[1].ID)

	sessions, err := f.store.Sessions(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "hello", sessions[0].Title)

	got := f.drain()
	require.Len(t, got, 2)
	assert.Equal(t, broadcast.TypeAllMessages, got[0].Type)
	assert.Len(t, got[0].Messages, 2)
	assert.Equal(t, broadcast.TypeDone, got[1].Type)

	assert.False(t, f.orch.Running("s1"))
}

func TestHandleChat_TitleTruncated(t *testing.T) {
	graph := &agent.ScriptedGraph{}
	f := newFixture(t, graph, nil)

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}

	err := f.orch.HandleChat(context.Background(), Request{
		SessionID: "s1",
		CanvasID:  "c1",
		Messages:  []chat.Message{{ID: "m1", Role: chat.RoleUser, Content: string(long)}},
	})
	require.NoError(t, err)

	sessions, err := f.store.Sessions(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Len(t, sessions[0].Title, 200)
}

func TestHandleChat_ToolCallOrdering(t *testing.T) {
	graph := &agent.ScriptedGraph{Events: []stream.Event{
		stream.Incremental(stream.Fragment{ToolCalls: []stream.ToolCall{{ID: "t1", Name: "image_create"}}}),
		stream.Incremental(stream.Fragment{Chunks: []stream.ArgumentChunk{{ID: "t1", Text: `{"prompt":`}}}),
		stream.Incremental(stream.Fragment{Chunks: []stream.ArgumentChunk{{ID: "t1", Text: `"cat"}`}}}),
		stream.Incremental(stream.Fragment{
			ToolCallID: "t1",
			ToolResult: &chat.Message{ID: "r1", Role: chat.RoleTool, Content: "done"},
		}),
	}}
	f := newFixture(t, graph, nil)

	err := f.orch.HandleChat(context.Background(), Request{
		SessionID: "s1",
		Messages:  []chat.Message{{ID: "m1", Role: chat.RoleUser, Content: "draw a cat"}},
	})
	require.NoError(t, err)

	got := f.drain()
	require.Len(t, got, 5)
	assert.Equal(t, broadcast.TypeToolCall, got[0].Type)
	assert.Equal(t, broadcast.TypeToolCallArguments, got[1].Type)
	assert.Equal(t, broadcast.TypeToolCallArguments, got[2].Type)
	assert.Equal(t, broadcast.TypeToolCallResult, got[3].Type)
	assert.Equal(t, broadcast.TypeDone, got[4].Type)
}

func TestHandleChat_StreamErrorBroadcast(t *testing.T) {
	graph := &agent.ScriptedGraph{
		Events: []stream.Event{stream.Incremental(stream.Fragment{Text: "par"})},
		Err:    errors.New("model exploded"),
	}
	f := newFixture(t, graph, nil)

	err := f.orch.HandleChat(context.Background(), Request{
		SessionID: "s1",
		Messages:  []chat.Message{{ID: "m1", Role: chat.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err, "agent failures end the turn cleanly")

	got := f.drain()
	require.Len(t, got, 3)
	assert.Equal(t, broadcast.TypeDelta, got[0].Type)
	assert.Equal(t, broadcast.TypeError, got[1].Type)
	assert.Contains(t, got[1].Error, "model exploded")
	assert.Equal(t, broadcast.TypeDone, got[2].Type, "done is sent even on failure")

	assert.False(t, f.orch.Running("s1"))
}

func TestHandleChat_Cancellation(t *testing.T) {
	graph := &agent.ScriptedGraph{
		Events: []stream.Event{
			stream.Incremental(stream.Fragment{Text: "one"}),
			stream.Incremental(stream.Fragment{Text: "two"}),
			stream.Incremental(stream.Fragment{Text: "three"}),
		},
		Started: make(chan struct{}),
		Gate:    make(chan struct{}),
	}
	f := newFixture(t, graph, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.orch.HandleChat(context.Background(), Request{
			SessionID: "s1",
			Messages:  []chat.Message{{ID: "m1", Role: chat.RoleUser, Content: "hello"}},
		})
	}()

	<-graph.Started
	graph.Gate <- struct{}{} // let the first delta through

	require.True(t, f.orch.Cancel("s1"))

	select {
	case err := <-errCh:
		require.NoError(t, err, "cancellation is not an error")
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not unwind after cancellation")
	}

	assert.False(t, f.orch.Running("s1"), "registry entry removed after cancellation")
	assert.False(t, f.orch.Cancel("s1"), "second cancel finds nothing")

	got := f.drain()
	require.NotEmpty(t, got)
	assert.Equal(t, broadcast.TypeDone, got[len(got)-1].Type)
	deltas := 0
	for _, u := range got {
		if u.Type == broadcast.TypeDelta {
			deltas++
		}
	}
	assert.LessOrEqual(t, deltas, 1, "no deltas after cancellation is observed")

	history, err := f.store.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history, 1, "persisted prefix stays valid, no rollback")
	assert.Equal(t, "m1", history[0].ID)
}

func TestHandleChat_SessionBusy(t *testing.T) {
	graph := &agent.ScriptedGraph{
		Events:  []stream.Event{stream.Incremental(stream.Fragment{Text: "one"})},
		Started: make(chan struct{}),
		Gate:    make(chan struct{}),
	}
	f := newFixture(t, graph, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.orch.HandleChat(context.Background(), Request{
			SessionID: "s1",
			Messages:  []chat.Message{{ID: "m1", Role: chat.RoleUser, Content: "hello"}},
		})
	}()
	<-graph.Started

	err := f.orch.HandleChat(context.Background(), Request{
		SessionID: "s1",
		Messages: []chat.Message{
			{ID: "m1", Role: chat.RoleUser, Content: "hello"},
			{ID: "m2", Role: chat.RoleUser, Content: "again"},
		},
	})
	assert.ErrorIs(t, err, ErrSessionBusy)

	graph.Gate <- struct{}{}
	require.NoError(t, <-errCh)
	assert.False(t, f.orch.Running("s1"))
}

func TestHandleChat_InputValidation(t *testing.T) {
	f := newFixture(t, &agent.ScriptedGraph{}, nil)

	err := f.orch.HandleChat(context.Background(), Request{SessionID: "s1"})
	assert.ErrorIs(t, err, ErrNoMessages)

	err = f.orch.HandleChat(context.Background(), Request{
		Messages: []chat.Message{{ID: "m1", Role: chat.RoleUser, Content: "hi"}},
	})
	assert.Error(t, err)
}

func TestHandleChat_GeneratesUserMessageID(t *testing.T) {
	f := newFixture(t, &agent.ScriptedGraph{}, nil)

	err := f.orch.HandleChat(context.Background(), Request{
		SessionID: "s1",
		Messages:  []chat.Message{{Role: chat.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)

	history, err := f.store.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.NotEmpty(t, history[0].ID, "caller-less message ids are generated")
}

func TestHandleChat_SecondTurnSkipsSessionBootstrap(t *testing.T) {
	graph := &agent.ScriptedGraph{Events: []stream.Event{
		stream.Snapshot([]chat.Message{
			{ID: "m1", Role: chat.RoleUser, Content: "hello"},
			{ID: "m2", Role: chat.RoleAssistant, Content: "hi"},
			{ID: "m3", Role: chat.RoleUser, Content: "more"},
			{ID: "m4", Role: chat.RoleAssistant, Content: "sure"},
		}),
	}}
	f := newFixture(t, graph, nil)

	ctx := context.Background()
	for _, m := range []chat.Message{
		{ID: "m1", SessionID: "s1", Role: chat.RoleUser, Content: "hello"},
		{ID: "m2", SessionID: "s1", Role: chat.RoleAssistant, Content: "hi"},
	} {
		_, err := f.store.Upsert(ctx, m)
		require.NoError(t, err)
	}

	err := f.orch.HandleChat(ctx, Request{
		SessionID: "s1",
		Messages: []chat.Message{
			{ID: "m1", Role: chat.RoleUser, Content: "hello"},
			{ID: "m2", Role: chat.RoleAssistant, Content: "hi"},
			{ID: "m3", Role: chat.RoleUser, Content: "more"},
		},
	})
	require.NoError(t, err)

	history, err := f.store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "m4", history[3].ID)

	sessions, err := f.store.Sessions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, sessions, "no session row is created past the first turn")
}
