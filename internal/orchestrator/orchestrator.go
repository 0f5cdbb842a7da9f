// Package orchestrator drives one chat turn end to end: persist the user
// message, register the run for cancellation, stream the agent graph through
// the reconstructor, and guarantee cleanup whatever the outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/easelhq/easel/internal/agent"
	"github.com/easelhq/easel/internal/broadcast"
	"github.com/easelhq/easel/internal/chat"
	"github.com/easelhq/easel/internal/stream"
	"github.com/easelhq/easel/internal/task"
)

// maxTitleLen bounds the auto-generated session title.
const maxTitleLen = 200

var (
	// ErrSessionBusy indicates the session already has a turn in flight.
	ErrSessionBusy = errors.New("session already has a turn in flight")

	// ErrNoMessages indicates a turn submission without any messages.
	ErrNoMessages = errors.New("turn submission carries no messages")
)

// Request is one turn submission.
type Request struct {
	SessionID string
	CanvasID  string

	// Messages is the full ordered history including the new user message
	// last. On a session's first turn this holds exactly one message.
	Messages []chat.Message

	// Model and Provider optionally pin the generation backend for the
	// session.
	Model    string
	Provider string
}

// Orchestrator wires the store, registry, hub and agent graph together.
type Orchestrator struct {
	store    chat.Store
	registry *task.Registry
	hub      *broadcast.Hub
	graph    agent.Graph
	logger   *slog.Logger

	confirmTools []string
}

// New creates an orchestrator. confirmTools lists tool names whose start
// events are withheld from the broadcast path.
func New(store chat.Store, registry *task.Registry, hub *broadcast.Hub, graph agent.Graph, confirmTools []string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:        store,
		registry:     registry,
		hub:          hub,
		graph:        graph,
		logger:       logger,
		confirmTools: confirmTools,
	}
}

// HandleChat runs one turn to completion.
//
// The turn moves through started, streaming, and one of completed, cancelled
// or failed. Agent failures are broadcast to observers and absorbed here;
// only pre-streaming problems (bad input, user-message persistence, a busy
// session) surface as a returned error. Cleanup always runs: the registry
// entry is removed and a done event is sent.
func (o *Orchestrator) HandleChat(ctx context.Context, req Request) error {
	if req.SessionID == "" {
		return fmt.Errorf("turn submission missing session id")
	}
	if len(req.Messages) == 0 {
		return ErrNoMessages
	}

	logger := o.logger.With("session_id", req.SessionID)

	// First turn of a conversation: create the session, titled after the
	// opening prompt.
	if len(req.Messages) == 1 {
		if _, err := o.store.CreateSession(ctx, chat.Session{
			ID:       req.SessionID,
			CanvasID: req.CanvasID,
			Title:    truncate(req.Messages[0].Content, maxTitleLen),
			Model:    req.Model,
			Provider: req.Provider,
		}); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	}

	// Persist the triggering user message before anything streams, so a
	// crash mid-turn still leaves a consistent log.
	user := req.Messages[len(req.Messages)-1]
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.SessionID = req.SessionID
	if user.Role == "" {
		user.Role = chat.RoleUser
	}
	if _, err := o.store.Upsert(ctx, user); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}
	req.Messages[len(req.Messages)-1] = user

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t, err := o.registry.Register(req.SessionID, cancel)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSessionBusy, req.SessionID)
	}

	defer func() {
		t.MarkDone()
		o.registry.Unregister(req.SessionID)
		o.hub.Publish(broadcast.Update{
			Type:      broadcast.TypeDone,
			SessionID: req.SessionID,
			CanvasID:  req.CanvasID,
		})
	}()

	// Everything in the inbound history is already durable; snapshot
	// persistence picks up after the last inbound message.
	proc := stream.NewProcessor(o.store, o.hub, o.logger,
		req.SessionID, req.CanvasID, len(req.Messages)-1, o.confirmTools)

	logger.Info("turn started", "history_len", len(req.Messages))

	events := o.graph.Stream(runCtx, agent.Request{
		SessionID: req.SessionID,
		CanvasID:  req.CanvasID,
		Messages:  req.Messages,
		Model:     req.Model,
	})

	for ev, streamErr := range events {
		// Cooperative cancellation: checked between every event, not only
		// at the top of the loop.
		if runCtx.Err() != nil {
			logger.Info("turn cancelled")
			return nil
		}
		if streamErr != nil {
			if errors.Is(streamErr, context.Canceled) {
				logger.Info("turn cancelled")
				return nil
			}
			logger.Error("agent stream failed", "error", streamErr)
			o.hub.Publish(broadcast.Update{
				Type:      broadcast.TypeError,
				SessionID: req.SessionID,
				CanvasID:  req.CanvasID,
				Error:     streamErr.Error(),
			})
			return nil
		}
		proc.Process(runCtx, ev)
	}

	if runCtx.Err() != nil {
		logger.Info("turn cancelled")
		return nil
	}

	logger.Info("turn completed", "saved_through", proc.LastSaved())
	return nil
}

// Running reports whether the session has a turn in flight.
func (o *Orchestrator) Running(sessionID string) bool {
	return o.registry.Running(sessionID)
}

// Cancel requests cancellation of the session's in-flight turn. It returns
// true when a running turn was found, false when the session has no turn in
// flight (never started, finished, or already cleaned up).
func (o *Orchestrator) Cancel(sessionID string) bool {
	return o.registry.Cancel(sessionID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
