package snapshots

import "time"

// Snapshot is the user's captured self-description anchoring one persona
// (one row per onboarding attempt; multiple snapshots per user are allowed).
//
// Lifecycle: created by the onboarding enqueue step; the reflection fields are
// attached exactly once by the extraction step; immutable afterward.
type Snapshot struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	Title        string    `json:"title" db:"title"`
	SnapshotDate time.Time `json:"snapshot_date" db:"snapshot_date"`

	Reflection Reflection `json:"reflection"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Reflection is the structured self-description extracted from the user's
// spoken narrative. Empty fields stay empty; prompt construction omits them.
type Reflection struct {
	Goals         []string `json:"goals,omitempty" db:"goals"`
	Fears         []string `json:"fears,omitempty" db:"fears"`
	Situation     string   `json:"situation,omitempty" db:"situation"`
	CurrentWork   string   `json:"current_work,omitempty" db:"current_work"`
	OtherNotes    string   `json:"other_notes,omitempty" db:"other_notes"`
	RawTranscript string   `json:"raw_transcript,omitempty" db:"raw_transcript"`
}

// IsEmpty reports whether the reflection carries no extracted content.
func (r Reflection) IsEmpty() bool {
	return len(r.Goals) == 0 && len(r.Fears) == 0 &&
		r.Situation == "" && r.CurrentWork == "" && r.OtherNotes == ""
}

// VoiceSample records an uploaded audio object. Append-only.
type VoiceSample struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	SnapshotID string    `json:"snapshot_id" db:"snapshot_id"`
	AudioPath  string    `json:"audio_path" db:"audio_path"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
