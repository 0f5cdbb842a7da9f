// Package agent adapts generative model pipelines to the event stream the
// rest of the system consumes.
//
// A Graph is an opaque producer: it takes the session's prior messages and
// yields incremental events (text deltas, tool-call activity) followed by a
// terminal snapshot of the completed turn. The production implementation
// drives Genkit; tests substitute a scripted graph.
package agent

import (
	"context"
	"iter"

	"github.com/easelhq/easel/internal/chat"
	"github.com/easelhq/easel/internal/stream"
)

// Request carries one turn's input into the graph.
type Request struct {
	SessionID string
	CanvasID  string

	// Messages is the full ordered history of the session including the
	// triggering user message.
	Messages []chat.Message

	// Model optionally overrides the configured model for this turn.
	Model string
}

// Graph produces the event stream for one agent invocation.
//
// The returned sequence yields events in arrival order. A non-nil error ends
// the sequence; iteration also stops when the consumer's context is done.
type Graph interface {
	Stream(ctx context.Context, req Request) iter.Seq2[stream.Event, error]
}
