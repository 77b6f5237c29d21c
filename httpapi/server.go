// Package httpapi exposes the orchestrator over HTTP: a POST /chat endpoint
// streaming exchange events as server-sent events, plus a health probe.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/skosovsky/agentstream"
)

// maxMessageBytes bounds the chat request body.
const maxMessageBytes = 1 << 20

// Server serves the chat API.
type Server struct {
	orch *agentstream.Orchestrator
	log  *slog.Logger
}

// NewServer wires the orchestrator into an HTTP server.
func NewServer(orch *agentstream.Orchestrator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{orch: orch, log: log}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxMessageBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.log.InfoContext(r.Context(), "chat exchange started", "message_len", len(req.Message))

	writer := s.orch.Run(r.Context(), req.Message)
	for ev := range writer.Events() {
		if err := writeSSE(w, flusher, ev); err != nil {
			// Client went away; abort the exchange and drain the rest.
			s.log.DebugContext(r.Context(), "client disconnected", "error", err)
			_ = writer.Close()
			for range writer.Events() {
			}
			return
		}
	}
	s.log.InfoContext(r.Context(), "chat exchange finished")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
