package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/easelhq/easel/internal/chat"
	"github.com/easelhq/easel/internal/orchestrator"
)

// maxChatBodyBytes bounds the turn submission body.
const maxChatBodyBytes = 4 << 20

// Cancellation statuses returned by the cancel endpoint.
const (
	statusCancelled      = "cancelled"
	statusNotFoundOrDone = "not_found_or_done"
)

type chatHandler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// chatRequest is a turn submission: the session's full message history with
// the new user message last.
type chatRequest struct {
	SessionID string         `json:"session_id"`
	CanvasID  string         `json:"canvas_id,omitempty"`
	Messages  []chat.Message `json:"messages"`
	Model     string         `json:"model,omitempty"`
	Provider  string         `json:"provider,omitempty"`
}

// send accepts a turn submission and starts the run. The response returns as
// soon as the run is accepted; output flows through the events feed.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	io.Copy(io.Discard, body) //nolint:errcheck

	if req.SessionID == "" {
		WriteError(w, http.StatusBadRequest, "missing_session_id", "session_id is required", h.logger)
		return
	}
	if len(req.Messages) == 0 {
		WriteError(w, http.StatusBadRequest, "missing_messages", "messages must not be empty", h.logger)
		return
	}
	if h.orch.Running(req.SessionID) {
		WriteError(w, http.StatusConflict, "session_busy", "session already has a turn in flight", h.logger)
		return
	}

	// The run outlives this request; cancellation goes through the cancel
	// endpoint, not through client disconnect.
	runCtx := context.WithoutCancel(r.Context())
	go func() {
		if err := h.orch.HandleChat(runCtx, orchestrator.Request{
			SessionID: req.SessionID,
			CanvasID:  req.CanvasID,
			Messages:  req.Messages,
			Model:     req.Model,
			Provider:  req.Provider,
		}); err != nil {
			h.logger.Error("turn failed before streaming",
				"session_id", req.SessionID, "error", err)
		}
	}()

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":     "started",
		"session_id": req.SessionID,
	}, h.logger)
}

// cancel stops the session's in-flight turn if one exists.
func (h *chatHandler) cancel(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		WriteError(w, http.StatusBadRequest, "missing_session_id", "session id is required", h.logger)
		return
	}

	status := statusNotFoundOrDone
	if h.orch.Cancel(sessionID) {
		status = statusCancelled
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": status}, h.logger)
}
