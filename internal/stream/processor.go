package stream

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/easelhq/easel/internal/broadcast"
	"github.com/easelhq/easel/internal/chat"
)

// pendingToolCall accumulates a tool call's argument text while it streams.
// Name is set once at announcement and never changes.
type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

// Processor consumes the event stream of one agent invocation for one
// session. It is single-use and never shared: all state here belongs to
// exactly one in-flight run.
type Processor struct {
	store  chat.Store
	hub    *broadcast.Hub
	logger *slog.Logger

	sessionID string
	canvasID  string

	// confirm holds tool names whose start events are withheld; the tool's
	// own confirmation flow announces them instead.
	confirm map[string]struct{}

	// lastSaved is the index into the snapshot message list of the last
	// message already persisted. It only advances over a contiguous prefix of
	// successful writes, so a transient write failure is retried by the next
	// snapshot.
	lastSaved int

	pending         map[string]*pendingToolCall
	announced       map[string]struct{}
	lastStreamingID string
}

// NewProcessor creates a processor for one run.
//
// lastSaved is the index of the last message of the inbound turn that is
// already durably saved; snapshot persistence starts after it. confirmTools
// lists tool names suppressed from the tool_call event path.
func NewProcessor(store chat.Store, hub *broadcast.Hub, logger *slog.Logger, sessionID, canvasID string, lastSaved int, confirmTools []string) *Processor {
	confirm := make(map[string]struct{}, len(confirmTools))
	for _, name := range confirmTools {
		confirm[name] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:     store,
		hub:       hub,
		logger:    logger.With("session_id", sessionID),
		sessionID: sessionID,
		canvasID:  canvasID,
		confirm:   confirm,
		lastSaved: lastSaved,
		pending:   make(map[string]*pendingToolCall),
		announced: make(map[string]struct{}),
	}
}

// Process handles one inbound event. Anomalies within an event are logged and
// swallowed so the stream keeps flowing; only the caller's context governs
// termination.
func (p *Processor) Process(ctx context.Context, ev Event) {
	switch Classify(ev) {
	case KindSnapshot:
		p.handleSnapshot(ctx, ev.Messages)
	case KindToolResult:
		p.handleToolResult(ev.Fragment)
	case KindText:
		p.handleText(ev.Fragment)
	case KindToolCallStart:
		p.handleToolCallStart(ev.Fragment)
	case KindToolCallArgs:
		p.handleToolCallArgs(ev.Fragment)
	default:
		p.logger.Debug("ignoring unclassified event", "source", ev.Source)
	}
}

// handleSnapshot broadcasts the full message list and persists everything
// beyond the last-saved offset. Broadcast happens regardless of persistence
// outcome; live observation and durability are decoupled.
func (p *Processor) handleSnapshot(ctx context.Context, msgs []chat.Message) {
	canonical := make([]chat.Message, len(msgs))
	for i, msg := range msgs {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		msg.SessionID = p.sessionID
		canonical[i] = msg
	}

	p.hub.Publish(broadcast.Update{
		Type:      broadcast.TypeAllMessages,
		SessionID: p.sessionID,
		CanvasID:  p.canvasID,
		Messages:  canonical,
	})

	contiguous := true
	for i := p.lastSaved + 1; i < len(canonical); i++ {
		if _, err := p.store.Upsert(ctx, canonical[i]); err != nil {
			p.logger.Warn("failed to persist snapshot message",
				"message_id", canonical[i].ID, "index", i, "error", err)
			contiguous = false
			continue
		}
		if contiguous {
			p.lastSaved = i
		}
	}
}

// handleToolResult surfaces a finished tool invocation's result immediately.
// The result usually precedes its snapshot, so broadcasting here keeps
// observer latency low; durability still comes from the snapshot path.
func (p *Processor) handleToolResult(frag *Fragment) {
	msg := *frag.ToolResult
	if msg.Role == "" {
		msg.Role = chat.RoleTool
	}
	msg.SessionID = p.sessionID

	p.hub.Publish(broadcast.Update{
		Type:      broadcast.TypeToolCallResult,
		SessionID: p.sessionID,
		CanvasID:  p.canvasID,
		ID:        frag.ToolCallID,
		Message:   &msg,
	})
}

func (p *Processor) handleText(frag *Fragment) {
	p.hub.Publish(broadcast.Update{
		Type:      broadcast.TypeDelta,
		SessionID: p.sessionID,
		CanvasID:  p.canvasID,
		Text:      frag.Text,
	})
}

// handleToolCallStart announces new tool calls. Each call id is announced at
// most once; names on the confirmation list are withheld entirely and their
// later argument chunks fall through as orphans.
func (p *Processor) handleToolCallStart(frag *Fragment) {
	for _, tc := range frag.ToolCalls {
		if tc.Name == "" || tc.ID == "" {
			continue
		}
		if _, ok := p.announced[tc.ID]; ok {
			continue
		}
		p.announced[tc.ID] = struct{}{}

		if _, ok := p.confirm[tc.Name]; ok {
			p.logger.Debug("withholding confirmation-gated tool call",
				"call_id", tc.ID, "tool", tc.Name)
			continue
		}

		p.pending[tc.ID] = &pendingToolCall{id: tc.ID, name: tc.Name}
		p.lastStreamingID = tc.ID

		p.hub.Publish(broadcast.Update{
			Type:      broadcast.TypeToolCall,
			SessionID: p.sessionID,
			CanvasID:  p.canvasID,
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: "{}",
		})
	}
}

// handleToolCallArgs appends continuation chunks to their pending buffer and
// streams them out. A chunk without an id belongs to the most recently
// announced call; a chunk with no matching pending call is an orphan, logged
// and dropped.
func (p *Processor) handleToolCallArgs(frag *Fragment) {
	for _, chunk := range frag.Chunks {
		id := chunk.ID
		if id == "" {
			id = p.lastStreamingID
		} else {
			p.lastStreamingID = id
		}

		pc, ok := p.pending[id]
		if !ok {
			p.logger.Warn("dropping orphan tool-call argument chunk",
				"call_id", chunk.ID, "text_len", len(chunk.Text))
			continue
		}
		if chunk.Text == "" {
			continue
		}
		pc.args.WriteString(chunk.Text)

		p.hub.Publish(broadcast.Update{
			Type:      broadcast.TypeToolCallArguments,
			SessionID: p.sessionID,
			CanvasID:  p.canvasID,
			ID:        id,
			Text:      chunk.Text,
		})
	}
}

// LastSaved returns the index of the last message known to be persisted.
func (p *Processor) LastSaved() int {
	return p.lastSaved
}

// PendingArguments returns the accumulated argument text for a call id, if
// the call is still pending in this run.
func (p *Processor) PendingArguments(callID string) (string, bool) {
	pc, ok := p.pending[callID]
	if !ok {
		return "", false
	}
	return pc.args.String(), true
}
