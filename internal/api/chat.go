package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"async-chat-broker/internal/apperr"
	"async-chat-broker/internal/logging"
	"async-chat-broker/internal/models"
	"async-chat-broker/internal/ratelimit"
	"async-chat-broker/internal/telemetry"
)

const (
	callbackPath    = "/api/chat/callback"
	syncFallbackMsg = "I'm experiencing some technical difficulties. Please try again."
	streamFinish    = `d:{"finishReason":"stop","usage":{"promptTokens":0,"completionTokens":0}}` + "\n"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type submitRequest struct {
	Messages     []chatMessage `json:"messages"`
	ChatID       string        `json:"chatId"`
	UserID       string        `json:"userId"`
	Model        string        `json:"model"`
	SystemPrompt string        `json:"systemPrompt,omitempty"`
	Async        bool          `json:"async"`
}

type submitResponse struct {
	JobID   string           `json:"jobId"`
	Success bool             `json:"success"`
	Status  models.JobStatus `json:"status"`
	Message string           `json:"message"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.BadRequest("invalid json"), "")
		return
	}
	if len(req.Messages) == 0 || req.ChatID == "" || req.UserID == "" {
		writeError(w, apperr.BadRequest("missing fields"), "Error, missing information")
		return
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), ratelimit.Key(req.UserID))
		if err != nil {
			s.log.Error().Err(err).Str("user_id", req.UserID).Msg("rate limiter")
			writeError(w, apperr.Internal(err, "rate limit"), "")
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limited"})
			return
		}
	}

	content := req.Messages[len(req.Messages)-1].Content
	session := models.SessionKey{UserID: req.UserID, ChatID: req.ChatID}
	s.saveMessage(r, req.ChatID, models.RoleUser, content)

	if req.Async {
		s.submitAsync(w, r, req, content, session)
		return
	}
	s.submitSync(w, r, req.ChatID, content, session)
}

func (s *Server) submitAsync(w http.ResponseWriter, r *http.Request, req submitRequest, content string, session models.SessionKey) {
	ctx := r.Context()
	job, err := s.lifecycle.Create(ctx, content, session.String())
	if err != nil {
		writeError(w, err, "")
		return
	}
	callbackURL := s.callbackURL(r)
	metadata := map[string]string{
		"chatId": req.ChatID,
		"userId": req.UserID,
		"model":  req.Model,
	}
	if req.SystemPrompt != "" {
		metadata["systemPrompt"] = req.SystemPrompt
	}
	if err := s.dispatcher.Dispatch(ctx, job, callbackURL, metadata); err != nil {
		writeError(w, err, "")
		return
	}
	s.log.Info().Str("job_id", job.ID).Str("callback_url", callbackURL).
		Str("message", logging.Redact(content, s.cfg.Dev())).Msg("job submitted")

	writeJSON(w, http.StatusOK, submitResponse{
		JobID:   job.ID,
		Success: true,
		Status:  models.StatusProcessing,
		Message: "Request submitted for processing",
	})
}

func (s *Server) submitSync(w http.ResponseWriter, r *http.Request, chatID, content string, session models.SessionKey) {
	reply := s.dispatcher.Send(r.Context(), content, session.String())
	text := reply.Message
	if !reply.Success && text == "" {
		text = syncFallbackMsg
	}
	s.saveMessage(r, chatID, models.RoleAssistant, text)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Vercel-AI-Data-Stream", "v1")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(textFrame(text))
	_, _ = w.Write([]byte(streamFinish))
}

// textFrame renders a data stream text part: 0:"<json escaped text>"\n.
func textFrame(text string) []byte {
	var buf bytes.Buffer
	buf.WriteString("0:")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(text) // Encode appends the trailing newline
	return buf.Bytes()
}

// callbackURL is PUBLIC_BASE_URL when set, else derived from the request.
func (s *Server) callbackURL(r *http.Request) string {
	if base := strings.TrimRight(s.cfg.PublicBaseURL, "/"); base != "" {
		return base + callbackPath
	}
	host := r.Host
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "https"
		if strings.Contains(host, "localhost") {
			proto = "http"
		}
	}
	return proto + "://" + host + callbackPath
}

// saveMessage appends to the chat log. Failures are logged, never returned.
func (s *Server) saveMessage(r *http.Request, chatID string, role models.Role, content string) {
	_, err := s.chats.Append(r.Context(), chatID, models.ChatMessage{Role: role, Content: content})
	if err != nil {
		s.log.Warn().Err(err).Str("chat_id", chatID).Str("role", string(role)).Msg("save chat message")
	}
}
