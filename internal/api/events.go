package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/easelhq/easel/internal/broadcast"
)

// heartbeatInterval paces SSE keepalive comments so proxies don't reap idle
// connections.
const heartbeatInterval = 15 * time.Second

type eventsHandler struct {
	hub    *broadcast.Hub
	logger *slog.Logger
}

// stream is the live events feed. Each broadcast update is written as one SSE
// event named after its type. An optional session_id query parameter narrows
// the feed to a single session.
func (h *eventsHandler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming", h.logger)
		return
	}

	sessionFilter := r.URL.Query().Get("session_id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	updates, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case u, open := <-updates:
			if !open {
				return
			}
			if sessionFilter != "" && u.SessionID != sessionFilter {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Type, u.JSON()); err != nil {
				h.logger.Debug("event subscriber write failed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}
