package profiles

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and early development.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Profile

	Clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]Profile{}, Clock: time.Now}
}

func (r *MemoryRepo) Get(ctx context.Context, userID string) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) Create(ctx context.Context, p Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[p.UserID]; ok {
		return nil
	}
	now := r.Clock().UTC()
	if p.SetupStatus == "" {
		p.SetupStatus = StatusNew
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.rows[p.UserID] = p
	return nil
}

func (r *MemoryRepo) UpdateSetupStatus(ctx context.Context, userID string, to SetupStatus) error {
	return r.mutate(userID, func(p *Profile) { p.SetupStatus = to })
}

func (r *MemoryRepo) SetVoiceID(ctx context.Context, userID, voiceID string) error {
	return r.mutate(userID, func(p *Profile) { p.VoiceID = voiceID })
}

func (r *MemoryRepo) SetAgentID(ctx context.Context, userID, agentID string) error {
	return r.mutate(userID, func(p *Profile) { p.AgentID = agentID })
}

func (r *MemoryRepo) SetPhoneNumber(ctx context.Context, userID, phone string) error {
	return r.mutate(userID, func(p *Profile) { p.PhoneNumber = phone })
}

func (r *MemoryRepo) AddUsage(ctx context.Context, userID string, seconds int) error {
	return r.mutate(userID, func(p *Profile) {
		p.CallCount++
		p.TotalCallSeconds += seconds
	})
}

func (r *MemoryRepo) mutate(userID string, fn func(*Profile)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[userID]
	if !ok {
		return ErrNotFound
	}
	fn(&p)
	p.UpdatedAt = r.Clock().UTC()
	r.rows[userID] = p
	return nil
}
