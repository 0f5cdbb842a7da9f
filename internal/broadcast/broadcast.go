// Package broadcast fans session events out to connected subscribers.
//
// Delivery is best effort: a subscriber that stops draining its channel loses
// events rather than stalling the producer. Consumers that need the full
// record reconcile from the message log, not from this channel.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/easelhq/easel/internal/chat"
)

// Event type identifiers carried in Update.Type.
const (
	TypeDelta             = "delta"
	TypeToolCall          = "tool_call"
	TypeToolCallArguments = "tool_call_arguments"
	TypeToolCallResult    = "tool_call_result"
	TypeAllMessages       = "all_messages"
	TypeError             = "error"
	TypeDone              = "done"
)

// Update is the outbound event envelope. Every update names its session;
// canvas id rides along when the session belongs to a canvas. Payload fields
// are populated per Type and omitted otherwise.
type Update struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	CanvasID  string `json:"canvas_id,omitempty"`

	// delta, tool_call_arguments
	Text string `json:"text,omitempty"`

	// tool_call, tool_call_arguments, tool_call_result
	ID string `json:"id,omitempty"`

	// tool_call
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// tool_call_result
	Message *chat.Message `json:"message,omitempty"`

	// all_messages
	Messages []chat.Message `json:"messages,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// JSON renders the update for the wire. Marshal failures cannot happen for
// the field types above, so the error is logged and an empty object returned.
func (u Update) JSON() []byte {
	data, err := json.Marshal(u)
	if err != nil {
		slog.Error("failed to marshal update", "type", u.Type, "error", err)
		return []byte("{}")
	}
	return data
}

// Hub is the in-process fan-out point between the orchestrator and event
// subscribers (SSE handlers).
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Update

	buffer int
	logger *slog.Logger
}

// NewHub creates a hub whose subscriber channels buffer up to buffer events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[uint64]chan Update),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called when the subscriber disconnects; it closes the channel.
func (h *Hub) Subscribe() (<-chan Update, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Update, h.buffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the update to every subscriber that has buffer room.
// Subscribers with a full buffer are skipped; the drop is logged at debug
// level and the producer never blocks.
func (h *Hub) Publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- u:
		default:
			h.logger.Debug("dropping event for slow subscriber",
				"subscriber", id, "type", u.Type, "session_id", u.SessionID)
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
