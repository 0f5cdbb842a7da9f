package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/easelhq/easel/internal/chat"
)

type statsHandler struct {
	store  chat.Store
	logger *slog.Logger
}

// getStats reports the most recent activity across all sessions.
func (h *statsHandler) getStats(w http.ResponseWriter, r *http.Request) {
	latest, err := h.store.Latest(r.Context())
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			WriteJSON(w, http.StatusOK, map[string]any{"last_message": nil}, h.logger)
			return
		}
		h.logger.Error("failed to load latest message", "error", err)
		WriteError(w, http.StatusInternalServerError, "stats_failed", "failed to load stats", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"last_message": map[string]string{
			"id":         latest.ID,
			"session_id": latest.SessionID,
			"role":       latest.Role,
		},
	}, h.logger)
}
