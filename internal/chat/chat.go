// Package chat provides the durable message log for conversation sessions.
//
// Responsibilities: append/upsert chat messages keyed by message id, ordered
// per session, with interchangeable in-memory and PostgreSQL backends.
package chat

import (
	"encoding/json"
	"time"
)

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Session represents one conversation thread. Sessions are created on the
// first turn of a conversation and are never deleted by this subsystem.
type Session struct {
	ID        string    `json:"id"`
	CanvasID  string    `json:"canvas_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Model     string    `json:"model,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one logical turn-unit in a session log.
//
// ID is the stable idempotency key: upserting the same ID twice overwrites
// role/content/raw in place without changing the message's log position.
// RunID is an ephemeral per-invocation correlation key issued by the agent
// graph; it may be empty and is never used as an upsert key.
type Message struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	Seq       int64           `json:"-"`
	CreatedAt time.Time       `json:"-"`
	UpdatedAt time.Time       `json:"-"`
}
