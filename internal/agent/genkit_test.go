package agent

import (
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easelhq/easel/internal/chat"
	"github.com/easelhq/easel/internal/stream"
)

func TestChunkEvents_Text(t *testing.T) {
	chunk := &ai.ModelResponseChunk{
		Content: []*ai.Part{ai.NewTextPart("hello")},
	}

	events := chunkEvents("run-1", chunk)
	require.Len(t, events, 1)
	assert.Equal(t, stream.KindText, stream.Classify(events[0]))
	assert.Equal(t, "hello", events[0].Fragment.Text)
	assert.Equal(t, "run-1", events[0].Fragment.RunID)
}

func TestChunkEvents_ToolRequest(t *testing.T) {
	chunk := &ai.ModelResponseChunk{
		Content: []*ai.Part{{
			Kind: ai.PartToolRequest,
			ToolRequest: &ai.ToolRequest{
				Ref:   "t1",
				Name:  "image_create",
				Input: map[string]any{"prompt": "cat"},
			},
		}},
	}

	events := chunkEvents("run-1", chunk)
	require.Len(t, events, 2, "a tool request yields an announcement then its arguments")

	assert.Equal(t, stream.KindToolCallStart, stream.Classify(events[0]))
	require.Len(t, events[0].Fragment.ToolCalls, 1)
	assert.Equal(t, "t1", events[0].Fragment.ToolCalls[0].ID)
	assert.Equal(t, "image_create", events[0].Fragment.ToolCalls[0].Name)

	assert.Equal(t, stream.KindToolCallArgs, stream.Classify(events[1]))
	require.Len(t, events[1].Fragment.Chunks, 1)
	assert.Equal(t, "t1", events[1].Fragment.Chunks[0].ID)
	assert.JSONEq(t, `{"prompt":"cat"}`, events[1].Fragment.Chunks[0].Text)
}

func TestChunkEvents_ToolRequestWithoutRef(t *testing.T) {
	chunk := &ai.ModelResponseChunk{
		Content: []*ai.Part{{
			Kind:        ai.PartToolRequest,
			ToolRequest: &ai.ToolRequest{Name: "image_create"},
		}},
	}

	events := chunkEvents("run-1", chunk)
	require.NotEmpty(t, events)
	assert.Equal(t, "image_create", events[0].Fragment.ToolCalls[0].ID, "name stands in for a missing ref")
}

func TestChunkEvents_ToolResponse(t *testing.T) {
	chunk := &ai.ModelResponseChunk{
		Content: []*ai.Part{{
			Kind: ai.PartToolResponse,
			ToolResponse: &ai.ToolResponse{
				Ref:    "t1",
				Name:   "image_create",
				Output: map[string]any{"url": "img.png"},
			},
		}},
	}

	events := chunkEvents("run-1", chunk)
	require.Len(t, events, 1)
	assert.Equal(t, stream.KindToolResult, stream.Classify(events[0]))
	assert.Equal(t, "t1", events[0].Fragment.ToolCallID)
	require.NotNil(t, events[0].Fragment.ToolResult)
	assert.Equal(t, chat.RoleTool, events[0].Fragment.ToolResult.Role)
	assert.JSONEq(t, `{"url":"img.png"}`, events[0].Fragment.ToolResult.Content)
}

func TestChunkEvents_NilChunk(t *testing.T) {
	assert.Empty(t, chunkEvents("run-1", nil))
}

func TestToGenkitMessages_RoleMapping(t *testing.T) {
	msgs := toGenkitMessages([]chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
		{Role: chat.RoleTool, Content: "{}"},
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, ai.RoleUser, msgs[0].Role)
	assert.Equal(t, ai.RoleModel, msgs[1].Role)
	assert.Equal(t, ai.RoleTool, msgs[2].Role)
}

func TestSnapshotMessages_AppendsAssistantTurn(t *testing.T) {
	req := Request{
		SessionID: "s1",
		Messages:  []chat.Message{{ID: "m1", Role: chat.RoleUser, Content: "hi"}},
	}
	resp := &ai.ModelResponse{
		Message: ai.NewModelMessage(ai.NewTextPart("hello there")),
	}

	final := snapshotMessages(req, "run-1", resp)
	require.Len(t, final, 2)
	assert.Equal(t, "m1", final[0].ID)
	assert.Equal(t, chat.RoleAssistant, final[1].Role)
	assert.Equal(t, "hello there", final[1].Content)
	assert.Equal(t, "run-1", final[1].RunID)
	assert.NotEmpty(t, final[1].ID)
	assert.NotEmpty(t, final[1].Raw)
}

func TestMarshalAny(t *testing.T) {
	assert.Empty(t, marshalAny(nil))
	assert.Equal(t, "plain", marshalAny("plain"))
	assert.JSONEq(t, `{"a":1}`, marshalAny(map[string]any{"a": 1}))
}
