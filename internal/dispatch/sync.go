package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"async-chat-broker/internal/apperr"
)

const (
	timeoutReply = "I apologize, but I'm experiencing some technical difficulties right now. Please try your question again in a moment."
	failureReply = "I'm having trouble processing your request right now. Please try again."
)

// SyncReply is the outcome of a synchronous engine call.
type SyncReply struct {
	Message      string
	Success      bool
	Err          error
	ResponseTime time.Duration
}

type engineReply struct {
	Response string `json:"response"`
	Message  string `json:"message"`
	Success  *bool  `json:"success"`
}

// Send posts the message and waits for the engine's answer. Failures are
// folded into a fallback message with Success=false rather than returned.
func (d *Dispatcher) Send(ctx context.Context, message, sessionID string) SyncReply {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, d.cfg.SyncTimeout)
	defer cancel()

	reply := func(err error) SyncReply {
		msg := failureReply
		if apperr.Is(err, apperr.ErrUpstreamTimeout) {
			msg = timeoutReply
		}
		d.log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("synchronous engine call failed")
		return SyncReply{Message: msg, Success: false, Err: err, ResponseTime: time.Since(start)}
	}

	body, err := json.Marshal(d.intake(message, sessionID))
	if err != nil {
		return reply(apperr.Internal(err, "encode engine payload"))
	}
	data, err := d.post(ctx, body, "sync")
	if err != nil {
		return reply(err)
	}

	var out engineReply
	if err := json.Unmarshal(data, &out); err != nil {
		return reply(apperr.Upstream(err, "decode engine response"))
	}
	text := out.Response
	if text == "" {
		text = out.Message
	}
	return SyncReply{
		Message:      text,
		Success:      out.Success == nil || *out.Success,
		ResponseTime: time.Since(start),
	}
}
