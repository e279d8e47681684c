// Package jobs owns the chat job table and its lifecycle: creation, status
// transitions, completion, status snapshots and retention sweeps.
package jobs

import (
	"context"

	"async-chat-broker/internal/models"
)

// Store is the keyed job table. Writes are last-write-wins on the job id;
// callers supply unique ids.
type Store interface {
	Put(ctx context.Context, job models.Job) error
	// Get returns found=false, and no error, for an unknown id.
	Get(ctx context.Context, id string) (models.Job, bool, error)
	Delete(ctx context.Context, id string) error
	// ForEach visits a snapshot of the table until fn returns false.
	ForEach(ctx context.Context, fn func(models.Job) bool) error
	// Update applies mutate to the stored job atomically. mutate reports whether
	// it changed the job; unchanged jobs are not written back. Unknown ids yield
	// an apperr.ErrNotFound error.
	Update(ctx context.Context, id string, mutate func(*models.Job) (bool, error)) (models.Job, error)
	Ping(ctx context.Context) error
}
