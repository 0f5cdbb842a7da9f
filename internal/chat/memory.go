package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore is the volatile, in-process Store backend.
//
// All mutating operations are guarded by a single mutex. The lock is held
// only for the duration of one read or write, never across I/O.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	messages map[string]*Message
	order    []string // message ids in insertion order
	seq      int64

	logger *slog.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		sessions: make(map[string]Session),
		messages: make(map[string]*Message),
		logger:   logger,
	}
}

// CreateSession creates or refreshes a session.
func (s *MemoryStore) CreateSession(_ context.Context, sess Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.sessions[sess.ID]; ok {
		existing.Title = sess.Title
		existing.Model = sess.Model
		existing.Provider = sess.Provider
		existing.UpdatedAt = now
		s.sessions[sess.ID] = existing
		return existing, nil
	}

	sess.CreatedAt = now
	sess.UpdatedAt = now
	s.sessions[sess.ID] = sess
	s.logger.Debug("created session", "session_id", sess.ID, "canvas_id", sess.CanvasID)
	return sess, nil
}

// Sessions lists sessions belonging to a canvas, most recently updated first.
func (s *MemoryStore) Sessions(_ context.Context, canvasID string) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Session
	for _, sess := range s.sessions {
		if sess.CanvasID == canvasID {
			out = append(out, sess)
		}
	}
	// Insertion-order independent: sort by UpdatedAt descending.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].UpdatedAt.After(out[j-1].UpdatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// Upsert inserts or overwrites a message by id.
func (s *MemoryStore) Upsert(_ context.Context, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.messages[msg.ID]; ok {
		existing.Role = msg.Role
		existing.Content = msg.Content
		existing.Raw = msg.Raw
		existing.UpdatedAt = now
		return *existing, nil
	}

	s.seq++
	msg.Seq = s.seq
	msg.CreatedAt = now
	msg.UpdatedAt = now
	stored := msg
	s.messages[msg.ID] = &stored
	s.order = append(s.order, msg.ID)
	return stored, nil
}

// History returns a session's messages in insertion order.
func (s *MemoryStore) History(_ context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Message
	for _, id := range s.order {
		if msg := s.messages[id]; msg.SessionID == sessionID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

// Latest returns the most recently inserted message, or ErrNotFound.
func (s *MemoryStore) Latest(_ context.Context) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == 0 {
		return Message{}, ErrNotFound
	}
	return *s.messages[s.order[len(s.order)-1]], nil
}
