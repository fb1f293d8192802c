package snapshots

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("snapshots: not found")
	ErrReflectionAttached = errors.New("snapshots: reflection already attached")
)

// Repository is the persistence contract for snapshots and voice samples.
type Repository interface {
	Insert(ctx context.Context, s Snapshot) error
	Get(ctx context.Context, userID, id string) (Snapshot, error)
	LatestForUser(ctx context.Context, userID string) (Snapshot, error)

	// AttachReflection writes the extracted reflection exactly once.
	// A second attach for the same snapshot fails with ErrReflectionAttached.
	AttachReflection(ctx context.Context, userID, id string, r Reflection) error

	InsertVoiceSample(ctx context.Context, v VoiceSample) error
}

// PostgresRepo implements Repository on database/sql.
// Goals/fears are stored as JSON-encoded text to keep the driver surface plain.
//
// NOTE: assumes the following tables exist:
//
//	snapshots (
//	  id TEXT PRIMARY KEY,
//	  user_id TEXT NOT NULL,
//	  title TEXT NOT NULL,
//	  snapshot_date TIMESTAMPTZ NOT NULL,
//	  goals TEXT NOT NULL DEFAULT '[]',
//	  fears TEXT NOT NULL DEFAULT '[]',
//	  situation TEXT NOT NULL DEFAULT '',
//	  current_work TEXT NOT NULL DEFAULT '',
//	  other_notes TEXT NOT NULL DEFAULT '',
//	  raw_transcript TEXT NOT NULL DEFAULT '',
//	  reflection_attached BOOLEAN NOT NULL DEFAULT FALSE,
//	  created_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL
//	)
//	voice_samples (
//	  id TEXT PRIMARY KEY,
//	  user_id TEXT NOT NULL,
//	  snapshot_id TEXT NOT NULL,
//	  audio_path TEXT NOT NULL,
//	  created_at TIMESTAMPTZ NOT NULL
//	)
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

func (r *PostgresRepo) Insert(ctx context.Context, s Snapshot) error {
	const q = `
INSERT INTO snapshots (
  id, user_id, title, snapshot_date,
  goals, fears, situation, current_work, other_notes, raw_transcript,
  reflection_attached, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,FALSE,$11,$11)
`
	now := r.clock().UTC()
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.UserID, s.Title, s.SnapshotDate,
		encodeList(s.Reflection.Goals), encodeList(s.Reflection.Fears),
		s.Reflection.Situation, s.Reflection.CurrentWork, s.Reflection.OtherNotes,
		s.Reflection.RawTranscript, now,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, userID, id string) (Snapshot, error) {
	const q = selectSnapshot + ` WHERE user_id = $1 AND id = $2`
	return scanSnapshot(r.db.QueryRowContext(ctx, q, userID, id))
}

func (r *PostgresRepo) LatestForUser(ctx context.Context, userID string) (Snapshot, error) {
	const q = selectSnapshot + ` WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`
	return scanSnapshot(r.db.QueryRowContext(ctx, q, userID))
}

func (r *PostgresRepo) AttachReflection(ctx context.Context, userID, id string, refl Reflection) error {
	// Conditional update: attach at most once.
	const q = `
UPDATE snapshots
SET goals = $3, fears = $4, situation = $5, current_work = $6, other_notes = $7,
    raw_transcript = $8, reflection_attached = TRUE, updated_at = $9
WHERE user_id = $1 AND id = $2 AND reflection_attached = FALSE
`
	res, err := r.db.ExecContext(ctx, q,
		userID, id,
		encodeList(refl.Goals), encodeList(refl.Fears),
		refl.Situation, refl.CurrentWork, refl.OtherNotes, refl.RawTranscript,
		r.clock().UTC(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing row from a second attach.
		if _, gerr := r.Get(ctx, userID, id); gerr != nil {
			return gerr
		}
		return ErrReflectionAttached
	}
	return nil
}

func (r *PostgresRepo) InsertVoiceSample(ctx context.Context, v VoiceSample) error {
	const q = `
INSERT INTO voice_samples (id, user_id, snapshot_id, audio_path, created_at)
VALUES ($1,$2,$3,$4,$5)
`
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.clock().UTC()
	}
	_, err := r.db.ExecContext(ctx, q, v.ID, v.UserID, v.SnapshotID, v.AudioPath, v.CreatedAt)
	return err
}

const selectSnapshot = `
SELECT id, user_id, title, snapshot_date,
       goals, fears, situation, current_work, other_notes, raw_transcript,
       created_at, updated_at
FROM snapshots`

func scanSnapshot(row *sql.Row) (Snapshot, error) {
	var s Snapshot
	var goals, fears string
	if err := row.Scan(
		&s.ID, &s.UserID, &s.Title, &s.SnapshotDate,
		&goals, &fears,
		&s.Reflection.Situation, &s.Reflection.CurrentWork, &s.Reflection.OtherNotes,
		&s.Reflection.RawTranscript,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, err
	}
	s.Reflection.Goals = decodeList(goals)
	s.Reflection.Fears = decodeList(fears)
	return s, nil
}

func encodeList(in []string) string {
	if len(in) == 0 {
		return "[]"
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeList(in string) []string {
	if in == "" || in == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(in), &out); err != nil {
		return nil
	}
	return out
}
