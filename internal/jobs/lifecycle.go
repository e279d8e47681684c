package jobs

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"async-chat-broker/internal/apperr"
	"async-chat-broker/internal/logging"
	"async-chat-broker/internal/models"
	"async-chat-broker/internal/telemetry"
)

const defaultFailureReason = "chat processing failed"

// Lifecycle creates jobs and moves them through
// pending -> processing -> completed|failed.
type Lifecycle struct {
	store  Store
	now    func() time.Time
	strict bool
	log    *zerolog.Logger

	entropyMu sync.Mutex
	entropy   io.Reader
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) { l.now = now }
}

// WithStrictCompletion makes Complete a no-op once a job is terminal.
func WithStrictCompletion(strict bool) Option {
	return func(l *Lifecycle) { l.strict = strict }
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(l *Lifecycle) { l.log = logger }
}

func NewLifecycle(store Store, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		store:   store,
		now:     time.Now,
		log:     logging.Nop(),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store exposes the underlying table for sweeps.
func (l *Lifecycle) Store() Store {
	return l.store
}

// Now is the lifecycle's clock.
func (l *Lifecycle) Now() time.Time {
	return l.now()
}

// stamp is the clock truncated to the millisecond precision timestamps are
// served with.
func (l *Lifecycle) stamp() time.Time {
	return l.now().Truncate(time.Millisecond)
}

// newID returns a ULID: 48 bits of millisecond time and 80 bits of entropy,
// monotonic within the same millisecond.
func (l *Lifecycle) newID(at time.Time) (string, error) {
	l.entropyMu.Lock()
	defer l.entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), l.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Create inserts a pending job for the message.
func (l *Lifecycle) Create(ctx context.Context, userMessage, sessionID string) (models.Job, error) {
	now := l.stamp()
	id, err := l.newID(now)
	if err != nil {
		return models.Job{}, apperr.Internal(err, "generate job id")
	}
	job := models.Job{
		ID:          id,
		Status:      models.StatusPending,
		UserMessage: userMessage,
		SessionID:   sessionID,
		CreatedAt:   now,
	}
	if err := l.store.Put(ctx, job); err != nil {
		return models.Job{}, apperr.Internal(err, "store job")
	}
	telemetry.JobsCreated.Inc()
	l.log.Debug().Str("job_id", id).Str("session_id", sessionID).Msg("job created")
	return job, nil
}

// MarkProcessing moves a pending job to processing. Jobs already past pending
// are left untouched.
func (l *Lifecycle) MarkProcessing(ctx context.Context, id string) error {
	_, err := l.store.Update(ctx, id, func(job *models.Job) (bool, error) {
		if job.Status != models.StatusPending {
			return false, nil
		}
		job.Status = models.StatusProcessing
		return true, nil
	})
	return err
}

// Complete records the outcome of a job. It returns false with an
// apperr.ErrNotFound error for unknown ids, without touching the table.
//
// Without strict completion a second call overwrites status, response and
// error again (last writer wins); completedAt always keeps its first value.
// An empty errMsg never clears a previously stored error.
func (l *Lifecycle) Complete(ctx context.Context, id, response string, success bool, errMsg string) (bool, error) {
	var repeated bool
	job, err := l.store.Update(ctx, id, func(job *models.Job) (bool, error) {
		repeated = job.Status.Terminal()
		if repeated && l.strict {
			return false, nil
		}
		msg := errMsg
		if success {
			job.Status = models.StatusCompleted
		} else {
			job.Status = models.StatusFailed
			if msg == "" && job.Error == nil {
				msg = defaultFailureReason
			}
		}
		if success || response != "" {
			job.Response = models.StringPtr(response)
		}
		if msg != "" {
			job.Error = models.StringPtr(msg)
		}
		if job.CompletedAt == nil {
			at := l.stamp()
			job.CompletedAt = &at
		}
		return true, nil
	})
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return false, err
		}
		return false, apperr.Internal(err, "complete job")
	}

	if repeated {
		telemetry.RepeatedCompletions.Inc()
		l.log.Warn().Str("job_id", id).Bool("strict", l.strict).Str("status", string(job.Status)).
			Msg("completion for already finished job")
		if l.strict {
			return true, nil
		}
	}
	telemetry.JobsFinished.WithLabelValues(string(job.Status)).Inc()
	l.log.Info().Str("job_id", id).Str("status", string(job.Status)).
		Dur("processing_time", job.ProcessingTime(l.now())).Msg("job finished")
	return true, nil
}

// Fail marks a job failed with the error's text.
func (l *Lifecycle) Fail(ctx context.Context, id string, cause error) (bool, error) {
	msg := defaultFailureReason
	if cause != nil {
		msg = cause.Error()
	}
	return l.Complete(ctx, id, "", false, msg)
}

// Get returns the stored job.
func (l *Lifecycle) Get(ctx context.Context, id string) (models.Job, bool, error) {
	return l.store.Get(ctx, id)
}

// Status returns a snapshot including the derived processing time.
func (l *Lifecycle) Status(ctx context.Context, id string) (models.JobView, bool, error) {
	job, ok, err := l.store.Get(ctx, id)
	if err != nil || !ok {
		return models.JobView{}, ok, err
	}
	return job.View(l.now()), true, nil
}
