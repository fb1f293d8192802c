package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository used by tests.
type MemoryRepo struct {
	mu    sync.Mutex
	rows  []Call
	Clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{Clock: time.Now}
}

func (r *MemoryRepo) Insert(ctx context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Clock().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.Status == "" {
		c.Status = StatusQueued
	}
	c.UpdatedAt = now
	r.rows = append(r.rows, c)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, userID, id string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].UserID == userID && r.rows[i].ID == id {
			return r.rows[i], nil
		}
	}
	return Call{}, ErrNotFound
}

func (r *MemoryRepo) ListForUser(ctx context.Context, userID string, limit int) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for i := range r.rows {
		if r.rows[i].UserID == userID {
			out = append(out, r.rows[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) ActiveForUser(ctx context.Context, userID string) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for i := range r.rows {
		if r.rows[i].UserID == userID && !r.rows[i].Status.Terminal() {
			out = append(out, r.rows[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) CountActive(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.rows {
		if !r.rows[i].Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) MarkDialing(ctx context.Context, id, conversationID, callSID string, startedAt time.Time) error {
	return r.guarded(id, func(c *Call) bool {
		if c.Status != StatusQueued {
			return false
		}
		c.Status = StatusDialing
		c.ConversationID = conversationID
		c.CallSID = callSID
		t := startedAt
		c.StartedAt = &t
		return true
	})
}

func (r *MemoryRepo) MarkCompleted(ctx context.Context, id string, endedAt time.Time, durationSeconds int) error {
	return r.guarded(id, func(c *Call) bool {
		if c.Status.Terminal() {
			return false
		}
		c.Status = StatusCompleted
		t := endedAt
		c.EndedAt = &t
		c.DurationSeconds = durationSeconds
		return true
	})
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, id, reason string) error {
	return r.guarded(id, func(c *Call) bool {
		if c.Status.Terminal() {
			return false
		}
		c.Status = StatusFailed
		c.FailureReason = truncateReason(reason)
		return true
	})
}

func (r *MemoryRepo) guarded(id string, patch func(*Call) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID != id {
			continue
		}
		if !patch(&r.rows[i]) {
			return ErrRaceLost
		}
		r.rows[i].UpdatedAt = r.Clock().UTC()
		return nil
	}
	return ErrNotFound
}

// ScheduledMemoryRepo is an in-memory ScheduledRepository used by tests.
type ScheduledMemoryRepo struct {
	mu    sync.Mutex
	rows  []ScheduledCall
	Clock func() time.Time
}

func NewScheduledMemoryRepo() *ScheduledMemoryRepo {
	return &ScheduledMemoryRepo{Clock: time.Now}
}

func (r *ScheduledMemoryRepo) Insert(ctx context.Context, sc ScheduledCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Clock().UTC()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	if sc.Status == "" {
		sc.Status = ScheduledStatusPending
	}
	sc.UpdatedAt = now
	r.rows = append(r.rows, sc)
	return nil
}

func (r *ScheduledMemoryRepo) Get(ctx context.Context, userID, id string) (ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].UserID == userID && r.rows[i].ID == id {
			return r.rows[i], nil
		}
	}
	return ScheduledCall{}, ErrNotFound
}

func (r *ScheduledMemoryRepo) ListForUser(ctx context.Context, userID string, limit int) ([]ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ScheduledCall
	for i := range r.rows {
		if r.rows[i].UserID == userID {
			out = append(out, r.rows[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.After(out[j].ScheduledFor) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ScheduledMemoryRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := make([]int, 0, limit)
	for i := range r.rows {
		if r.rows[i].Due(now) {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		return r.rows[idx[a]].ScheduledFor.Before(r.rows[idx[b]].ScheduledFor)
	})
	if limit > 0 && len(idx) > limit {
		idx = idx[:limit]
	}

	out := make([]ScheduledCall, 0, len(idx))
	for _, i := range idx {
		t := now.UTC()
		r.rows[i].Status = ScheduledStatusExecuting
		r.rows[i].AttemptCount++
		r.rows[i].LastAttemptAt = &t
		r.rows[i].UpdatedAt = t
		out = append(out, r.rows[i])
	}
	return out, nil
}

func (r *ScheduledMemoryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ScheduledCall
	for i := range r.rows {
		if r.rows[i].Due(now) {
			out = append(out, r.rows[i])
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ScheduledFor.Before(out[b].ScheduledFor) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ScheduledMemoryRepo) ClaimOne(ctx context.Context, id string, now time.Time) error {
	return r.guarded(id, func(sc *ScheduledCall) bool {
		if sc.Status != ScheduledStatusPending {
			return false
		}
		t := now.UTC()
		sc.Status = ScheduledStatusExecuting
		sc.AttemptCount++
		sc.LastAttemptAt = &t
		return true
	})
}

func (r *ScheduledMemoryRepo) CancelIfPending(ctx context.Context, userID, id string) error {
	return r.guarded(id, func(sc *ScheduledCall) bool {
		if sc.UserID != userID || sc.Status != ScheduledStatusPending {
			return false
		}
		sc.Status = ScheduledStatusCanceled
		return true
	})
}

func (r *ScheduledMemoryRepo) MarkExecuted(ctx context.Context, id string) error {
	return r.guarded(id, func(sc *ScheduledCall) bool {
		if sc.Status != ScheduledStatusExecuting {
			return false
		}
		sc.Status = ScheduledStatusExecuted
		return true
	})
}

func (r *ScheduledMemoryRepo) MarkFailed(ctx context.Context, id, reason string) error {
	return r.guarded(id, func(sc *ScheduledCall) bool {
		if sc.Status != ScheduledStatusExecuting {
			return false
		}
		sc.Status = ScheduledStatusFailed
		sc.FailureReason = truncateReason(reason)
		return true
	})
}

func (r *ScheduledMemoryRepo) guarded(id string, patch func(*ScheduledCall) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID != id {
			continue
		}
		if !patch(&r.rows[i]) {
			return ErrRaceLost
		}
		r.rows[i].UpdatedAt = r.Clock().UTC()
		return nil
	}
	return ErrNotFound
}
