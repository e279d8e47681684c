package jobs

import (
	"context"
	"sync"

	"async-chat-broker/internal/apperr"
	"async-chat-broker/internal/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps jobs in a process-wide map. Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]models.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]models.Job)}
}

func (m *MemoryStore) Put(_ context.Context, job models.Job) error {
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (models.Job, bool, error) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	return job, ok, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()
	return nil
}

// ForEach iterates over a copy so fn may call back into the store.
func (m *MemoryStore) ForEach(ctx context.Context, fn func(models.Job) bool) error {
	m.mu.RLock()
	snapshot := make([]models.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		snapshot = append(snapshot, job)
	}
	m.mu.RUnlock()

	for _, job := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(job) {
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) Update(_ context.Context, id string, mutate func(*models.Job) (bool, error)) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, apperr.NotFound("job %s not found", id)
	}
	changed, err := mutate(&job)
	if err != nil {
		return models.Job{}, err
	}
	if changed {
		m.jobs[id] = job
	}
	return job, nil
}

// Len returns the number of stored jobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
