package client

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"async-chat-broker/internal/models"
)

var (
	// ErrTimeout is returned when a job is still running after MaxWait.
	ErrTimeout = errors.New("polling timeout - request took too long")
	// ErrJobFailed marks the error returned for a job that ended failed.
	ErrJobFailed = errors.New("chat job failed")
)

const (
	DefaultInterval = time.Second
	DefaultMaxWait  = 30 * time.Second

	defaultFailure = "Chat processing failed"
)

// StatusSource answers job status queries. *Client implements it.
type StatusSource interface {
	Status(ctx context.Context, jobID string) (models.JobView, error)
}

// Outcome is what Run observed last.
type Outcome struct {
	Job      models.JobView
	Response string
	Canceled bool
}

// Poller queries a job until it completes, fails, times out or the context
// is cancelled.
type Poller struct {
	Source   StatusSource
	Interval time.Duration
	MaxWait  time.Duration

	OnStatusChange func(models.JobView)
	OnComplete     func(response string)
	OnError        func(error)

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewPoller(source StatusSource) *Poller {
	return &Poller{
		Source:   source,
		Interval: DefaultInterval,
		MaxWait:  DefaultMaxWait,
	}
}

// Run polls jobID. Cancellation returns Outcome{Canceled: true} and a nil
// error without invoking any callback. Every other exit invokes exactly one of
// OnComplete or OnError.
func (p *Poller) Run(ctx context.Context, jobID string) (Outcome, error) {
	now, after := p.clock()
	interval, maxWait := p.Interval, p.MaxWait
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	start := now()
	var last Outcome
	for {
		if ctx.Err() != nil {
			return Outcome{Job: last.Job, Canceled: true}, nil
		}
		if now().Sub(start) > maxWait {
			return last, p.fail(ErrTimeout)
		}

		view, err := p.Source.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{Job: last.Job, Canceled: true}, nil
			}
			return last, p.fail(err)
		}
		if view.Status != last.Job.Status && p.OnStatusChange != nil {
			p.OnStatusChange(view)
		}
		last.Job = view

		switch view.Status {
		case models.StatusCompleted:
			if view.Response != nil {
				last.Response = *view.Response
			}
			if p.OnComplete != nil {
				p.OnComplete(last.Response)
			}
			return last, nil
		case models.StatusFailed:
			msg := defaultFailure
			if view.Error != nil && *view.Error != "" {
				msg = *view.Error
			}
			return last, p.fail(errors.Mark(errors.New(msg), ErrJobFailed))
		}

		select {
		case <-ctx.Done():
			return Outcome{Job: last.Job, Canceled: true}, nil
		case <-after(interval):
		}
	}
}

func (p *Poller) fail(err error) error {
	if p.OnError != nil {
		p.OnError(err)
	}
	return err
}

func (p *Poller) clock() (func() time.Time, func(time.Duration) <-chan time.Time) {
	now, after := p.now, p.after
	if now == nil {
		now = time.Now
	}
	if after == nil {
		after = time.After
	}
	return now, after
}
