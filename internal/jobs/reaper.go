package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"async-chat-broker/internal/logging"
	"async-chat-broker/internal/models"
	"async-chat-broker/internal/telemetry"
)

// Archiver receives jobs evicted by the reaper.
type Archiver interface {
	Archive(ctx context.Context, job models.Job) error
}

// Sweep deletes every job created more than maxAge before now, whatever its
// status, and returns the evicted jobs. Jobs exactly maxAge old are kept.
func Sweep(ctx context.Context, store Store, maxAge time.Duration, now time.Time) ([]models.Job, error) {
	return sweep(ctx, store, maxAge, now, nil)
}

// rangedStore narrows a sweep to index entries old enough to expire.
type rangedStore interface {
	ForEachCreatedBefore(ctx context.Context, cutoff time.Time, fn func(models.Job) bool) error
}

// sweep is Sweep with a hook run before each delete. A job whose hook fails
// stays in the store for the next sweep.
func sweep(ctx context.Context, store Store, maxAge time.Duration, now time.Time, before func(models.Job) error) ([]models.Job, error) {
	var expired []models.Job
	collect := func(job models.Job) bool {
		if now.Sub(job.CreatedAt) > maxAge {
			expired = append(expired, job)
		}
		return true
	}
	var err error
	if rs, ok := store.(rangedStore); ok {
		err = rs.ForEachCreatedBefore(ctx, now.Add(-maxAge), collect)
	} else {
		err = store.ForEach(ctx, collect)
	}
	if err != nil {
		return nil, err
	}

	evicted := expired[:0]
	for _, job := range expired {
		if before != nil && before(job) != nil {
			continue
		}
		if err := store.Delete(ctx, job.ID); err != nil {
			return evicted, err
		}
		evicted = append(evicted, job)
	}
	return evicted, nil
}

// Reaper runs Sweep on a fixed interval.
type Reaper struct {
	store    Store
	interval time.Duration
	maxAge   time.Duration
	archiver Archiver
	now      func() time.Time
	log      *zerolog.Logger
}

// NewReaper builds a reaper. archiver may be nil.
func NewReaper(store Store, interval, maxAge time.Duration, archiver Archiver, logger *zerolog.Logger) *Reaper {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reaper{
		store:    store,
		interval: interval,
		maxAge:   maxAge,
		archiver: archiver,
		now:      time.Now,
		log:      logging.Component(logger, "reaper"),
	}
}

// Run sweeps until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.interval).Dur("retention", r.maxAge).Msg("starting reaper")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("stopping reaper")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// RunOnce performs a single sweep. Terminal jobs are archived before they are
// deleted; one that fails to archive is kept and retried on the next sweep.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	var archive func(models.Job) error
	if r.archiver != nil {
		archive = func(job models.Job) error {
			if !job.Status.Terminal() {
				return nil
			}
			if err := r.archiver.Archive(ctx, job); err != nil {
				r.log.Warn().Err(err).Str("job_id", job.ID).Msg("archive failed, keeping job")
				return err
			}
			return nil
		}
	}
	evicted, err := sweep(ctx, r.store, r.maxAge, r.now(), archive)
	telemetry.JobsReaped.Add(float64(len(evicted)))
	if len(evicted) > 0 {
		r.log.Info().Int("count", len(evicted)).Msg("evicted expired jobs")
	}
	return len(evicted), err
}
