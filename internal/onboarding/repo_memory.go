package onboarding

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and early development.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Job

	Clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]Job{}, Clock: time.Now}
}

func (r *MemoryRepo) Insert(ctx context.Context, j Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Clock().UTC()
	if j.Status == "" {
		j.Status = JobStatusQueued
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	r.rows[j.ID] = j
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, userID, id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.rows[id]
	if !ok || j.UserID != userID {
		return Job{}, ErrJobNotFound
	}
	return j, nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, to JobStatus) error {
	return r.mutate(id, func(j *Job) { j.Status = to })
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, id, reason string) error {
	return r.mutate(id, func(j *Job) {
		j.Status = JobStatusFailed
		j.ErrorMessage = reason
	})
}

func (r *MemoryRepo) mutate(id string, fn func(*Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.rows[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(&j)
	j.UpdatedAt = r.Clock().UTC()
	r.rows[id] = j
	return nil
}
