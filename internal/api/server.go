// Package api serves the broker's HTTP surface: chat submission, job status,
// the engine callback, health and chat history.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"async-chat-broker/internal/apperr"
	"async-chat-broker/internal/chatlog"
	"async-chat-broker/internal/config"
	"async-chat-broker/internal/dispatch"
	"async-chat-broker/internal/jobs"
	"async-chat-broker/internal/logging"
	"async-chat-broker/internal/ratelimit"
	"async-chat-broker/internal/telemetry"
)

// Server wires HTTP handlers for the chat broker.
type Server struct {
	cfg        config.Config
	lifecycle  *jobs.Lifecycle
	dispatcher *dispatch.Dispatcher
	chats      chatlog.Log
	limiter    ratelimit.Limiter
	log        *zerolog.Logger
}

// New constructs the API server. limiter may be nil; a nil chat log falls back
// to an in-memory one.
func New(cfg config.Config, lc *jobs.Lifecycle, d *dispatch.Dispatcher, chats chatlog.Log, limiter ratelimit.Limiter, logger *zerolog.Logger) *Server {
	if chats == nil {
		chats = chatlog.NewMemory()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		cfg:        cfg,
		lifecycle:  lc,
		dispatcher: d,
		chats:      chats,
		limiter:    limiter,
		log:        logging.Component(logger, "api"),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware(s.log))
	r.Use(allowAnyOrigin)

	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Options("/chat", preflight("POST, OPTIONS"))
		r.Post("/chat", s.handleSubmit)

		r.Options("/chat/status/{jobId}", preflight("GET, OPTIONS"))
		r.Get("/chat/status/{jobId}", s.handleStatus)

		r.Options("/chat/callback", preflight("POST, OPTIONS"))
		r.Post("/chat/callback", s.handleCallback)

		r.Options("/health", preflight("GET, OPTIONS"))
		r.Get("/health", s.handleHealth)

		r.Options("/chats/{chatId}/messages", preflight("GET, OPTIONS"))
		r.Get("/chats/{chatId}/messages", s.handleMessages)
	})
	return r
}

func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func preflight(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Allow-Headers", "Content-Type, x-csrf-token")
		h.Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusOK)
	}
}

func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeError maps err onto its HTTP status. Server-side failures keep the
// generic message and carry the cause in details.
func writeError(w http.ResponseWriter, err error, msg string) {
	code := apperr.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		writeJSON(w, code, errorResponse{Error: "Internal server error", Details: err.Error()})
		return
	}
	if msg == "" {
		msg = err.Error()
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
