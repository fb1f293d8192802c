package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal lifecycle information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to users by default.
// - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		// Audit not wired; treat as a no-op so flows never depend on it.
		return nil
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// OnboardingStep records one persisted pipeline transition.
func (s *Service) OnboardingStep(ctx context.Context, userID, jobID, message string) {
	_ = s.Append(ctx, Event{
		UserID:  userID,
		Type:    EventTypeOnboardingStep,
		JobID:   jobID,
		Message: message,
	})
}

// CallStatus records a call status transition.
func (s *Service) CallStatus(ctx context.Context, userID, callID, message string) {
	_ = s.Append(ctx, Event{
		UserID:  userID,
		Type:    EventTypeCallStatus,
		CallID:  callID,
		Message: message,
	})
}

// Sweep records a due-call sweep outcome under its trace id.
func (s *Service) Sweep(ctx context.Context, traceID, scheduledCallID, message string) {
	_ = s.Append(ctx, Event{
		Type:            EventTypeSweep,
		TraceID:         traceID,
		ScheduledCallID: scheduledCallID,
		Message:         message,
	})
}
