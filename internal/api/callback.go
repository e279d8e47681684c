package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"async-chat-broker/internal/apperr"
	"async-chat-broker/internal/models"
	"async-chat-broker/internal/telemetry"
)

type callbackRequest struct {
	JobID     string `json:"jobId"`
	Response  string `json:"response"`
	Success   *bool  `json:"success"`
	Error     string `json:"error"`
	SessionID string `json:"sessionId"`
}

type callbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobID   string `json:"jobId"`
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ww := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		telemetry.CallbacksReceived.WithLabelValues(strconv.Itoa(ww.code)).Inc()
	}()

	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ww, apperr.BadRequest("invalid json"), "")
		return
	}
	if req.JobID == "" {
		writeError(ww, apperr.BadRequest("missing jobId"), "Missing jobId")
		return
	}
	success := req.Success == nil || *req.Success

	ctx := r.Context()
	if _, err := s.lifecycle.Complete(ctx, req.JobID, req.Response, success, req.Error); err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			writeError(ww, err, "Job not found")
			return
		}
		s.log.Error().Err(err).Str("job_id", req.JobID).Msg("complete job")
		writeError(ww, err, "")
		return
	}
	s.log.Info().Str("job_id", req.JobID).Bool("success", success).Msg("callback received")

	if req.SessionID != "" && req.Response != "" && success {
		if chatID := models.ChatIDFromSession(req.SessionID); chatID != "" {
			s.saveMessage(r, chatID, models.RoleAssistant, req.Response)
		}
	}

	writeJSON(ww, http.StatusOK, callbackResponse{Success: true, Message: "Job completed", JobID: req.JobID})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}
