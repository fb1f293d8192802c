package snapshots

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and early development.
type MemoryRepo struct {
	mu       sync.Mutex
	rows     []Snapshot
	attached map[string]bool
	Samples  []VoiceSample

	Clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{attached: map[string]bool{}, Clock: time.Now}
}

func (r *MemoryRepo) Insert(ctx context.Context, s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Clock().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	r.rows = append(r.rows, s)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, userID, id string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.UserID == userID && s.ID == id {
			return s, nil
		}
	}
	return Snapshot{}, ErrNotFound
}

func (r *MemoryRepo) LatestForUser(ctx context.Context, userID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out *Snapshot
	for i := range r.rows {
		s := r.rows[i]
		if s.UserID != userID {
			continue
		}
		if out == nil || s.CreatedAt.After(out.CreatedAt) {
			out = &r.rows[i]
		}
	}
	if out == nil {
		return Snapshot{}, ErrNotFound
	}
	return *out, nil
}

func (r *MemoryRepo) AttachReflection(ctx context.Context, userID, id string, refl Reflection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].UserID != userID || r.rows[i].ID != id {
			continue
		}
		if r.attached[id] {
			return ErrReflectionAttached
		}
		r.rows[i].Reflection = refl
		r.rows[i].UpdatedAt = r.Clock().UTC()
		r.attached[id] = true
		return nil
	}
	return ErrNotFound
}

func (r *MemoryRepo) InsertVoiceSample(ctx context.Context, v VoiceSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.Clock().UTC()
	}
	r.Samples = append(r.Samples, v)
	return nil
}
