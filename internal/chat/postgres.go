package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by PostgresStore. Declared here so
// tests can substitute a lighter implementation.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the durable Store backend.
//
// Message ordering is carried by a BIGSERIAL seq column; idempotent upsert is
// expressed as INSERT ... ON CONFLICT (id) DO UPDATE, which keeps the original
// seq and therefore the original log position.
type PostgresStore struct {
	db     DB
	logger *slog.Logger
}

// NewPostgresStore creates a store backed by the given connection pool.
func NewPostgresStore(db DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess Session) (Session, error) {
	const query = `
		INSERT INTO chat_sessions (id, canvas_id, title, model, provider)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			model = EXCLUDED.model,
			provider = EXCLUDED.provider,
			updated_at = now()
		RETURNING id, canvas_id, title, model, provider, created_at, updated_at`

	row := s.db.QueryRow(ctx, query, sess.ID, sess.CanvasID, sess.Title, sess.Model, sess.Provider)
	if err := row.Scan(&sess.ID, &sess.CanvasID, &sess.Title, &sess.Model, &sess.Provider, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Sessions(ctx context.Context, canvasID string) ([]Session, error) {
	const query = `
		SELECT id, canvas_id, title, model, provider, created_at, updated_at
		FROM chat_sessions
		WHERE canvas_id = $1
		ORDER BY updated_at DESC`

	rows, err := s.db.Query(ctx, query, canvasID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.CanvasID, &sess.Title, &sess.Model, &sess.Provider, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, msg Message) (Message, error) {
	const query = `
		INSERT INTO chat_messages (id, run_id, session_id, role, content, raw)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			role = EXCLUDED.role,
			content = EXCLUDED.content,
			raw = EXCLUDED.raw,
			updated_at = now()
		RETURNING id, run_id, session_id, role, content, raw, seq, created_at, updated_at`

	row := s.db.QueryRow(ctx, query, msg.ID, msg.RunID, msg.SessionID, msg.Role, msg.Content, msg.Raw)
	if err := row.Scan(&msg.ID, &msg.RunID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Raw, &msg.Seq, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
		return Message{}, fmt.Errorf("upsert message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) History(ctx context.Context, sessionID string) ([]Message, error) {
	const query = `
		SELECT id, run_id, session_id, role, content, raw, seq, created_at, updated_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY seq ASC`

	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.RunID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Raw, &msg.Seq, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Latest(ctx context.Context) (Message, error) {
	const query = `
		SELECT id, run_id, session_id, role, content, raw, seq, created_at, updated_at
		FROM chat_messages
		ORDER BY seq DESC
		LIMIT 1`

	var msg Message
	row := s.db.QueryRow(ctx, query)
	if err := row.Scan(&msg.ID, &msg.RunID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Raw, &msg.Seq, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, fmt.Errorf("latest message: %w", err)
	}
	return msg, nil
}
