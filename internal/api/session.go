package api

import (
	"log/slog"
	"net/http"

	"github.com/easelhq/easel/internal/chat"
)

type sessionHandler struct {
	store  chat.Store
	logger *slog.Logger
}

// listSessions returns the sessions grouped under a canvas, most recently
// updated first.
func (h *sessionHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	canvasID := r.URL.Query().Get("canvas_id")

	sessions, err := h.store.Sessions(r.Context(), canvasID)
	if err != nil {
		h.logger.Error("failed to list sessions", "canvas_id", canvasID, "error", err)
		WriteError(w, http.StatusInternalServerError, "list_failed", "failed to list sessions", h.logger)
		return
	}
	if sessions == nil {
		sessions = []chat.Session{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions}, h.logger)
}

// getMessages returns a session's message log in insertion order.
func (h *sessionHandler) getMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		WriteError(w, http.StatusBadRequest, "missing_session_id", "session id is required", h.logger)
		return
	}

	msgs, err := h.store.History(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load history", "session_id", sessionID, "error", err)
		WriteError(w, http.StatusInternalServerError, "history_failed", "failed to load messages", h.logger)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{"messages": msgs}, h.logger)
}
