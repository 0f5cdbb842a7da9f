package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/easelhq/easel/internal/chat"
	"github.com/easelhq/easel/internal/stream"
)

// errStopIteration aborts generation when the event consumer stops pulling.
var errStopIteration = errors.New("stream consumer stopped")

// GenkitGraph drives a Genkit model invocation and exposes it as an event
// stream: incremental fragments from the streaming callback, then one
// terminal snapshot built from the final response.
type GenkitGraph struct {
	g         *genkit.Genkit
	modelName string
	logger    *slog.Logger
}

// NewGenkitGraph wraps an initialized Genkit instance. modelName is the
// provider-qualified default model (e.g. "googleai/gemini-2.5-flash").
func NewGenkitGraph(g *genkit.Genkit, modelName string, logger *slog.Logger) *GenkitGraph {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenkitGraph{g: g, modelName: modelName, logger: logger}
}

// Stream runs one generation turn. Fragments are yielded as the model
// streams; when generation completes the full turn snapshot is yielded last.
func (gg *GenkitGraph) Stream(ctx context.Context, req Request) iter.Seq2[stream.Event, error] {
	return func(yield func(stream.Event, error) bool) {
		runID := uuid.NewString()
		model := gg.modelName
		if req.Model != "" {
			model = req.Model
		}

		history := toGenkitMessages(req.Messages)

		stopped := false
		callback := func(cbCtx context.Context, chunk *ai.ModelResponseChunk) error {
			for _, ev := range chunkEvents(runID, chunk) {
				if !yield(ev, nil) {
					stopped = true
					return errStopIteration
				}
			}
			if err := cbCtx.Err(); err != nil {
				return err
			}
			return nil
		}

		resp, err := genkit.Generate(ctx, gg.g,
			ai.WithModelName(model),
			ai.WithMessages(history...),
			ai.WithStreaming(callback),
		)
		if err != nil {
			if stopped || errors.Is(err, errStopIteration) {
				return
			}
			yield(stream.Event{}, fmt.Errorf("generate: %w", err))
			return
		}

		final := snapshotMessages(req, runID, resp)
		yield(stream.Snapshot(final), nil)
	}
}

// toGenkitMessages converts the stored history into model messages.
func toGenkitMessages(msgs []chat.Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case chat.RoleAssistant:
			out = append(out, ai.NewModelMessage(ai.NewTextPart(msg.Content)))
		case chat.RoleTool:
			out = append(out, ai.NewMessage(ai.RoleTool, nil, ai.NewTextPart(msg.Content)))
		default:
			out = append(out, ai.NewUserMessage(ai.NewTextPart(msg.Content)))
		}
	}
	return out
}

// chunkEvents translates one streamed model chunk into inbound events. Part
// order within the chunk is preserved.
func chunkEvents(runID string, chunk *ai.ModelResponseChunk) []stream.Event {
	if chunk == nil {
		return nil
	}

	var events []stream.Event
	for _, part := range chunk.Content {
		switch {
		case part.ToolRequest != nil:
			tr := part.ToolRequest
			callID := tr.Ref
			if callID == "" {
				callID = tr.Name
			}
			events = append(events, stream.Incremental(stream.Fragment{
				RunID:     runID,
				ToolCalls: []stream.ToolCall{{ID: callID, Name: tr.Name}},
			}))
			if args := marshalAny(tr.Input); args != "" {
				events = append(events, stream.Incremental(stream.Fragment{
					RunID:  runID,
					Chunks: []stream.ArgumentChunk{{ID: callID, Text: args}},
				}))
			}
		case part.ToolResponse != nil:
			resp := part.ToolResponse
			callID := resp.Ref
			if callID == "" {
				callID = resp.Name
			}
			events = append(events, stream.Incremental(stream.Fragment{
				RunID:      runID,
				ToolCallID: callID,
				ToolResult: &chat.Message{
					ID:      uuid.NewString(),
					RunID:   runID,
					Role:    chat.RoleTool,
					Content: marshalAny(resp.Output),
				},
			}))
		case part.IsText() && part.Text != "":
			events = append(events, stream.Incremental(stream.Fragment{
				RunID: runID,
				Text:  part.Text,
			}))
		}
	}
	return events
}

// snapshotMessages builds the terminal message list: the inbound history plus
// the completed assistant turn.
func snapshotMessages(req Request, runID string, resp *ai.ModelResponse) []chat.Message {
	final := make([]chat.Message, len(req.Messages), len(req.Messages)+1)
	copy(final, req.Messages)

	assistant := chat.Message{
		ID:        uuid.NewString(),
		RunID:     runID,
		SessionID: req.SessionID,
		Role:      chat.RoleAssistant,
		Content:   resp.Text(),
	}
	if resp.Message != nil {
		if raw, err := json.Marshal(resp.Message); err == nil {
			assistant.Raw = raw
		}
	}
	return append(final, assistant)
}

func marshalAny(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
