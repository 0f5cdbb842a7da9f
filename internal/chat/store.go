package chat

import (
	"context"
	"errors"
)

// Sentinel errors for store operations. Check with errors.Is().
var (
	// ErrNotFound indicates the requested session or message does not exist.
	ErrNotFound = errors.New("not found")
)

// Store is the message-log contract shared by both backends.
//
// Implementations must serialize concurrent writes per message id: upserting
// the same id from two goroutines leaves exactly one row holding one of the
// two payloads. Selection between backends is a startup configuration
// concern; business logic never branches on the concrete type.
type Store interface {
	// CreateSession creates the session if absent, otherwise refreshes its
	// mutable attributes (title, model, provider) in place.
	CreateSession(ctx context.Context, sess Session) (Session, error)

	// Sessions lists the sessions grouped under a canvas, most recently
	// updated first.
	Sessions(ctx context.Context, canvasID string) ([]Session, error)

	// Upsert inserts the message at the tail of the session log. When a
	// message with the same ID exists it overwrites role/content/raw in place
	// without moving it. Idempotent under retries.
	Upsert(ctx context.Context, msg Message) (Message, error)

	// History returns all messages of a session ordered by insertion
	// sequence.
	History(ctx context.Context, sessionID string) ([]Message, error)

	// Latest returns the most recently inserted message across all sessions,
	// or ErrNotFound when the log is empty.
	Latest(ctx context.Context) (Message, error)
}
