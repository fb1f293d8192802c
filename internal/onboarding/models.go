package onboarding

import "time"

// Job tracks one onboarding attempt through the pipeline. It exists so the
// UI can resume polling after a refresh; the job id is the idempotency key
// for that polling, and the row mirrors pipeline progress as each step is
// durably persisted.
type Job struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	SnapshotID string `json:"snapshot_id" db:"snapshot_id"`
	AudioPath  string `json:"audio_path" db:"audio_path"`

	Status JobStatus `json:"status" db:"status"`

	// ErrorMessage is populated only for failed jobs, reason truncated.
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type JobStatus string

const (
	JobStatusQueued       JobStatus = "queued"
	JobStatusProcessing   JobStatus = "processing"
	JobStatusVoiceCreated JobStatus = "voice_created"
	JobStatusAgentCreated JobStatus = "agent_created"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
)

// Terminal reports whether the job has finished, successfully or not.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
