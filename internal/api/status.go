package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"async-chat-broker/internal/apperr"
	"async-chat-broker/internal/models"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")
	noCache(w)
	view, ok, err := s.lifecycle.Status(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", id).Msg("read job status")
		writeError(w, apperr.Internal(err, "read job"), "")
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Job not found"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type messagesResponse struct {
	ChatID   string               `json:"chatId"`
	Messages []models.ChatMessage `json:"messages"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatId")
	msgs, err := s.chats.List(r.Context(), chatID)
	if err != nil {
		writeError(w, apperr.Internal(err, "list chat messages"), "")
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{ChatID: chatID, Messages: msgs})
}
