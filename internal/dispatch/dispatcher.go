// Package dispatch sends chat turns to the external workflow engine.
//
// Async dispatch is fire-and-forget: the caller gets control back as soon as
// the job is marked processing, and a failure of the outbound call is only
// ever reported through the job's own failed status.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"async-chat-broker/internal/apperr"
	"async-chat-broker/internal/logging"
	"async-chat-broker/internal/models"
	"async-chat-broker/internal/telemetry"
)

const (
	userAgent = "Async Chat Broker/1.0"
	referrer  = "async-chat-broker"
	language  = "en"

	maxEngineBody = 1 << 20
)

// Lifecycle is the part of jobs.Lifecycle the dispatcher drives.
type Lifecycle interface {
	MarkProcessing(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, cause error) (bool, error)
}

// Config holds the engine address and call bounds.
type Config struct {
	WebhookURL  string
	Timeout     time.Duration // async dispatch
	PingTimeout time.Duration
	SyncTimeout time.Duration // legacy synchronous mode
	HTTPClient  *http.Client
}

// IntakePayload is the body posted to the engine.
type IntakePayload struct {
	Message     string            `json:"message"`
	Language    string            `json:"language"`
	Timestamp   string            `json:"timestamp"`
	SessionID   string            `json:"sessionId"`
	JobID       string            `json:"jobId,omitempty"`
	CallbackURL string            `json:"callbackUrl,omitempty"`
	UserAgent   string            `json:"userAgent"`
	Referrer    string            `json:"referrer"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Dispatcher fires intake requests at the engine.
type Dispatcher struct {
	lifecycle Lifecycle
	cfg       Config
	client    *http.Client
	now       func() time.Time
	log       *zerolog.Logger

	wg sync.WaitGroup
}

func New(cfg Config, lifecycle Lifecycle, logger *zerolog.Logger) *Dispatcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = 3 * time.Second
	}
	if cfg.SyncTimeout == 0 {
		cfg.SyncTimeout = 8 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Dispatcher{
		lifecycle: lifecycle,
		cfg:       cfg,
		client:    client,
		now:       time.Now,
		log:       logging.Component(logger, "dispatcher"),
	}
}

// Configured reports whether an engine address is set.
func (d *Dispatcher) Configured() bool {
	return d.cfg.WebhookURL != ""
}

func (d *Dispatcher) intake(message, sessionID string) IntakePayload {
	return IntakePayload{
		Message:   message,
		Language:  language,
		Timestamp: d.now().UTC().Format(time.RFC3339),
		SessionID: sessionID,
		UserAgent: userAgent,
		Referrer:  referrer,
	}
}

// Dispatch marks the job processing and posts it to the engine on a detached
// goroutine. Engine failures never surface here; they fail the job instead.
func (d *Dispatcher) Dispatch(ctx context.Context, job models.Job, callbackURL string, metadata map[string]string) error {
	payload := d.intake(job.UserMessage, job.SessionID)
	payload.JobID = job.ID
	payload.CallbackURL = callbackURL
	payload.Metadata = metadata

	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Internal(err, "encode engine payload")
	}
	if err := d.lifecycle.MarkProcessing(ctx, job.ID); err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fireCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.Timeout)
		defer cancel()

		if _, err := d.post(fireCtx, body, "dispatch"); err != nil {
			d.fail(job.ID, err)
			return
		}
		d.log.Debug().Str("job_id", job.ID).Msg("engine accepted job")
	}()
	return nil
}

func (d *Dispatcher) fail(jobID string, cause error) {
	reason := "unreachable"
	if apperr.Is(cause, apperr.ErrUpstreamTimeout) {
		reason = "timeout"
	}
	telemetry.DispatchFailures.WithLabelValues(reason).Inc()
	d.log.Warn().Err(cause).Str("job_id", jobID).Str("reason", reason).Msg("dispatch failed")

	if _, err := d.lifecycle.Fail(context.Background(), jobID, cause); err != nil {
		d.log.Error().Err(err).Str("job_id", jobID).Msg("mark job failed")
	}
}

// Wait blocks until in-flight dispatches have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// post sends body to the engine and returns the response body of a 2xx reply.
func (d *Dispatcher) post(ctx context.Context, body []byte, kind string) ([]byte, error) {
	start := time.Now()
	defer func() {
		telemetry.EngineLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Internal(err, "build engine request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apperr.Upstream(err, "post to engine")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxEngineBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.UpstreamStatus(resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if err != nil {
		return nil, apperr.Upstream(err, "read engine response")
	}
	return data, nil
}
