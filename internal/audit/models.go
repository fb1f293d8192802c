package audit

import "time"

// Event is an immutable, append-only internal log record for lifecycle
// transitions (onboarding steps, call state changes, claim sweeps).
//
// Invariants:
// - Events are never updated or deleted.
// - Audit writes are best-effort; callers must not block critical flows on
//   audit failures.
type Event struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id,omitempty" db:"user_id"`

	// Type indicates the business category of the record.
	Type EventType `json:"type" db:"type"`

	// Target identifiers (optional, depending on the event type).
	JobID           string `json:"job_id,omitempty" db:"job_id"`
	CallID          string `json:"call_id,omitempty" db:"call_id"`
	ScheduledCallID string `json:"scheduled_call_id,omitempty" db:"scheduled_call_id"`

	// TraceID correlates all events of one sweep invocation.
	TraceID string `json:"trace_id,omitempty" db:"trace_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeOnboardingStep EventType = "onboarding_step"
	EventTypeCallStatus     EventType = "call_status"
	EventTypeSweep          EventType = "sweep"
)
