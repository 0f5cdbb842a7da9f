// Package api exposes the HTTP surface: turn submission, cancellation, the
// live events feed, and session/message reads.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/easelhq/easel/internal/broadcast"
	"github.com/easelhq/easel/internal/chat"
	"github.com/easelhq/easel/internal/orchestrator"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger       *slog.Logger
	Orchestrator *orchestrator.Orchestrator // Required
	Store        chat.Store                 // Required
	Hub          *broadcast.Hub             // Required
	CORSOrigins  []string                   // Allowed origins for CORS
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Hub == nil {
		return nil, errors.New("hub is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{orch: cfg.Orchestrator, logger: logger}
	sh := &sessionHandler{store: cfg.Store, logger: logger}
	eh := &eventsHandler{hub: cfg.Hub, logger: logger}

	mux := http.NewServeMux()

	// Chat turns
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("POST /api/v1/chat/{id}/cancel", ch.cancel)

	// Session reads
	mux.HandleFunc("GET /api/v1/sessions", sh.listSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", sh.getMessages)

	// Live events feed
	mux.HandleFunc("GET /api/v1/events", eh.stream)

	// Stats
	st := &statsHandler{store: cfg.Store, logger: logger}
	mux.HandleFunc("GET /api/v1/stats", st.getStats)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	var handler http.Handler = mux
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Use a top-level mux to separate health probes from middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
