package calls

import "time"

// Call is one outbound phone call from the user's own agent to the user.
//
// Status is forward-only: queued -> dialing -> in_progress -> completed, with
// failed reachable from any non-terminal state. At most one call per user may
// be non-terminal at any observed instant after reconciliation has run.
type Call struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	SnapshotID string `json:"snapshot_id" db:"snapshot_id"`

	// ScheduledCallID links the originating scheduled row; empty for manual
	// calls.
	ScheduledCallID string `json:"scheduled_call_id,omitempty" db:"scheduled_call_id"`

	Origin Origin `json:"origin" db:"origin"`

	Status Status `json:"status" db:"status"`

	// ToNumber is the destination in E.164.
	ToNumber string `json:"to_number" db:"to_number"`

	// ConversationID and CallSID are the provider's identifiers, set once the
	// dial is accepted. A call that never got a ConversationID cannot be
	// reconciled against the provider and is force-failed when stale.
	ConversationID string `json:"conversation_id,omitempty" db:"conversation_id"`
	CallSID        string `json:"call_sid,omitempty" db:"call_sid"`

	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	DurationSeconds int        `json:"duration_seconds" db:"duration_seconds"`

	// FailureReason is populated only for failed calls, truncated.
	FailureReason string `json:"failure_reason,omitempty" db:"failure_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusQueued     Status = "queued"
	StatusDialing    Status = "dialing"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ActiveStatuses are the non-terminal call states counted against the global
// concurrency ceiling.
var ActiveStatuses = []Status{StatusQueued, StatusDialing, StatusInProgress}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var statusRank = map[Status]int{
	StatusQueued:     0,
	StatusDialing:    1,
	StatusInProgress: 2,
	StatusCompleted:  3,
	StatusFailed:     3,
}

// CanTransition reports whether from -> to is a legal forward move.
// Terminal states accept nothing; failed is reachable from any non-terminal
// state.
func CanTransition(from, to Status) bool {
	if from.Terminal() || from == to {
		return false
	}
	if to == StatusFailed || to == StatusCompleted {
		return true
	}
	fr, ok := statusRank[from]
	tr, ok2 := statusRank[to]
	return ok && ok2 && tr == fr+1
}

type Origin string

const (
	// OriginManual is the user-triggered "call me now" flow: the future self
	// calls, so the agent is dialed with time_mode=future.
	OriginManual Origin = "manual"

	// OriginScheduled is the sweep-claimed flow: the past self calls, dialed
	// with time_mode=past.
	OriginScheduled Origin = "scheduled"
)

// ScheduledCall is a user-created request for a future call from the past
// self. Rows are claimed by the sweep exactly once.
//
// State machine: pending --claim--> executing --success--> executed;
// executing --failure--> failed; pending --user cancel--> canceled.
// Cancellation has no effect once claimed.
type ScheduledCall struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	SnapshotID string `json:"snapshot_id" db:"snapshot_id"`

	// ScheduledFor is the earliest instant the row becomes claim-eligible.
	ScheduledFor time.Time `json:"scheduled_for" db:"scheduled_for"`

	Status ScheduledStatus `json:"status" db:"status"`

	AttemptCount  int        `json:"attempt_count" db:"attempt_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty" db:"last_attempt_at"`

	// FailureReason carries the sweep trace id so a failed row can be
	// correlated with the sweep logs that produced it.
	FailureReason string `json:"failure_reason,omitempty" db:"failure_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type ScheduledStatus string

const (
	ScheduledStatusPending   ScheduledStatus = "pending"
	ScheduledStatusExecuting ScheduledStatus = "executing"
	ScheduledStatusExecuted  ScheduledStatus = "executed"
	ScheduledStatusFailed    ScheduledStatus = "failed"
	ScheduledStatusCanceled  ScheduledStatus = "canceled"
)

func (s ScheduledStatus) Terminal() bool {
	return s == ScheduledStatusExecuted || s == ScheduledStatusFailed || s == ScheduledStatusCanceled
}

// Due reports whether the row is claim-eligible at now.
func (s ScheduledCall) Due(now time.Time) bool {
	return s.Status == ScheduledStatusPending && !s.ScheduledFor.After(now)
}
