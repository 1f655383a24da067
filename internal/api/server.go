// Package api exposes the local HTTP command endpoint. It runs the same
// pipeline as the chat channels, so permissions, confirmations, and auditing
// are identical.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/valetd/valet/internal/intent"
	"github.com/valetd/valet/internal/ratelimit"
	"github.com/valetd/valet/internal/router"
)

// IntentSource turns a raw message into a structured intent.
type IntentSource interface {
	Query(ctx context.Context, message string, history []intent.Turn, image []byte) intent.Intent
}

// Server handles POST /command and GET /health.
type Server struct {
	Router  *router.Router
	Model   IntentSource
	Token   string
	Limiter *ratelimit.Limiter
	Log     *slog.Logger
}

// NewServer wires the API server. An empty token disables authentication;
// only do that on loopback.
func NewServer(r *router.Router, model IntentSource, token string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{Router: r, Model: model, Token: token, Log: log}
}

// Handler returns the HTTP handler tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", s.handleCommand)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

type commandRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type commandResponse struct {
	Outcome  string `json:"outcome"`
	Text     string `json:"text"`
	TraceID  string `json:"trace_id"`
	FilePath string `json:"file_path,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Token != "" {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if token != s.Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.Message == "" || req.UserID == "" {
		http.Error(w, "message and user_id are required", http.StatusBadRequest)
		return
	}

	// Throttle before the model sees the message.
	if s.Limiter != nil && !s.Limiter.Allow(req.UserID) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(commandResponse{
			Outcome: router.KindRateLimited.String(),
			Text:    router.RateLimitedMessage,
		})
		return
	}

	var out router.Outcome
	if s.Router.HasPending(req.UserID) {
		out = s.Router.ResolveConfirmation(r.Context(), req.UserID, req.Message)
	} else {
		it := s.Model.Query(r.Context(), req.Message, nil, nil)
		out = s.Router.Route(r.Context(), req.UserID, req.Message, it)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(commandResponse{
		Outcome:  out.Kind.String(),
		Text:     out.Text,
		TraceID:  out.TraceID,
		FilePath: out.FilePath,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
