package profiles

import "time"

// Profile is the per-user record driven by the onboarding orchestrator.
//
// Invariants:
// - SetupStatus moves strictly forward (with a universal escape to error);
//   it never regresses within a profile's lifetime.
// - StatusReady implies both VoiceID and AgentID are set.
//
// Mutation ownership: setup status and provider ids belong to the onboarding
// orchestrator; the phone number belongs to identity sync; usage counters
// belong to the call dispatcher. Profiles are never deleted by this core.
type Profile struct {
	UserID string `json:"user_id" db:"user_id"`

	// PhoneNumber is E.164, or empty when the user has not linked a number.
	PhoneNumber string `json:"phone_number,omitempty" db:"phone_number"`

	SetupStatus SetupStatus `json:"setup_status" db:"setup_status"`

	VoiceID string `json:"voice_id,omitempty" db:"voice_id"`
	AgentID string `json:"agent_id,omitempty" db:"agent_id"`

	CallCount        int `json:"call_count" db:"call_count"`
	TotalCallSeconds int `json:"total_call_seconds" db:"total_call_seconds"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type SetupStatus string

const (
	StatusNew           SetupStatus = "new"
	StatusVoiceUploaded SetupStatus = "voice_uploaded"
	StatusVoiceCreated  SetupStatus = "voice_created"
	StatusAgentCreated  SetupStatus = "agent_created"
	StatusReady         SetupStatus = "ready"
	StatusError         SetupStatus = "error"
)

// setupRank orders the forward-only pipeline. StatusError is reachable from
// any non-terminal state and is not part of the ordering.
var setupRank = map[SetupStatus]int{
	StatusNew:           0,
	StatusVoiceUploaded: 1,
	StatusVoiceCreated:  2,
	StatusAgentCreated:  3,
	StatusReady:         4,
}

// CanTransition reports whether moving from -> to respects the forward-only
// state machine.
func CanTransition(from, to SetupStatus) bool {
	if to == StatusError {
		return from != StatusReady && from != StatusError
	}
	fr, ok := setupRank[from]
	if !ok {
		return false
	}
	tr, ok := setupRank[to]
	if !ok {
		return false
	}
	return tr > fr
}

// IsReady reports whether the profile can be dialed.
func (p Profile) IsReady() bool {
	return p.SetupStatus == StatusReady && p.VoiceID != "" && p.AgentID != ""
}
