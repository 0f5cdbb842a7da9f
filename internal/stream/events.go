// Package stream reconstructs well-formed chat messages from the incremental
// event stream of one agent invocation.
//
// The agent graph emits two shapes of event: full snapshots of the turn's
// message list, and incremental fragments of the assistant turn in progress
// (text deltas, tool-call starts, partial tool-call arguments, tool results).
// The processor classifies each event, persists what is durable, and
// broadcasts what is live.
package stream

import "github.com/easelhq/easel/internal/chat"

// Source tags for inbound events.
const (
	SourceSnapshot    = "snapshot"
	SourceIncremental = "incremental"
)

// Kind is the classification of one inbound event.
type Kind int

const (
	KindUnknown Kind = iota
	KindSnapshot
	KindToolResult
	KindText
	KindToolCallStart
	KindToolCallArgs
)

// String returns the kind's name for logging.
func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindToolResult:
		return "tool_result"
	case KindText:
		return "text"
	case KindToolCallStart:
		return "tool_call_start"
	case KindToolCallArgs:
		return "tool_call_args"
	default:
		return "unknown"
	}
}

// ToolCall names one tool invocation announced by the agent.
type ToolCall struct {
	ID   string
	Name string
}

// ArgumentChunk is a partial piece of a tool call's argument text. ID may be
// empty when the producer relies on the most recently announced call.
type ArgumentChunk struct {
	ID   string
	Text string
}

// Fragment is one incremental piece of the assistant turn in progress.
// At most one of the payload groups is meaningful per fragment; Classify
// decides which, in a fixed priority order.
type Fragment struct {
	// RunID correlates fragments of one content chunk sequence. Informational.
	RunID string

	// ToolResult carries a finished tool invocation's result message, keyed
	// by ToolCallID.
	ToolCallID string
	ToolResult *chat.Message

	// Text is rendered assistant text.
	Text string

	// ToolCalls announces new tool invocations by name.
	ToolCalls []ToolCall

	// Chunks carries partial argument text for announced calls.
	Chunks []ArgumentChunk
}

// Event is one inbound item from the agent graph's stream.
type Event struct {
	Source   string
	Messages []chat.Message
	Fragment *Fragment
}

// Snapshot wraps a complete message list as an event.
func Snapshot(msgs []chat.Message) Event {
	return Event{Source: SourceSnapshot, Messages: msgs}
}

// Incremental wraps a fragment as an event.
func Incremental(frag Fragment) Event {
	return Event{Source: SourceIncremental, Fragment: &frag}
}

// Classify maps an event onto exactly one Kind.
//
// Incremental fragments are discriminated by payload presence, tested in
// priority order: tool result, then text, then tool-call start, then argument
// continuation. Anything else, including an unrecognized source tag, is
// KindUnknown and must be ignored by callers, never treated as an error.
func Classify(ev Event) Kind {
	switch ev.Source {
	case SourceSnapshot:
		return KindSnapshot
	case SourceIncremental:
		frag := ev.Fragment
		if frag == nil {
			return KindUnknown
		}
		switch {
		case frag.ToolResult != nil:
			return KindToolResult
		case frag.Text != "":
			return KindText
		case hasNamedCall(frag.ToolCalls):
			return KindToolCallStart
		case len(frag.Chunks) > 0:
			return KindToolCallArgs
		default:
			return KindUnknown
		}
	default:
		return KindUnknown
	}
}

func hasNamedCall(calls []ToolCall) bool {
	for _, tc := range calls {
		if tc.Name != "" {
			return true
		}
	}
	return false
}
