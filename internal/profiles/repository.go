package profiles

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("profiles: not found")

// Repository is the persistence contract for profiles.
type Repository interface {
	Get(ctx context.Context, userID string) (Profile, error)
	Create(ctx context.Context, p Profile) error
	UpdateSetupStatus(ctx context.Context, userID string, to SetupStatus) error
	SetVoiceID(ctx context.Context, userID, voiceID string) error
	SetAgentID(ctx context.Context, userID, agentID string) error
	SetPhoneNumber(ctx context.Context, userID, phone string) error
	AddUsage(ctx context.Context, userID string, seconds int) error
}

// PostgresRepo implements Repository on database/sql.
//
// NOTE: assumes the following table exists:
//
//	profiles (
//	  user_id TEXT PRIMARY KEY,
//	  phone_number TEXT NOT NULL DEFAULT '',
//	  setup_status TEXT NOT NULL DEFAULT 'new',
//	  voice_id TEXT NOT NULL DEFAULT '',
//	  agent_id TEXT NOT NULL DEFAULT '',
//	  call_count INT NOT NULL DEFAULT 0,
//	  total_call_seconds INT NOT NULL DEFAULT 0,
//	  created_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL
//	)
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

func (r *PostgresRepo) Get(ctx context.Context, userID string) (Profile, error) {
	const q = `
SELECT user_id, phone_number, setup_status, voice_id, agent_id, call_count, total_call_seconds, created_at, updated_at
FROM profiles
WHERE user_id = $1
`
	var p Profile
	if err := r.db.QueryRowContext(ctx, q, userID).Scan(
		&p.UserID,
		&p.PhoneNumber,
		&p.SetupStatus,
		&p.VoiceID,
		&p.AgentID,
		&p.CallCount,
		&p.TotalCallSeconds,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

func (r *PostgresRepo) Create(ctx context.Context, p Profile) error {
	const q = `
INSERT INTO profiles (user_id, phone_number, setup_status, voice_id, agent_id, call_count, total_call_seconds, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (user_id) DO NOTHING
`
	now := r.clock().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.SetupStatus == "" {
		p.SetupStatus = StatusNew
	}
	_, err := r.db.ExecContext(ctx, q,
		p.UserID, p.PhoneNumber, p.SetupStatus, p.VoiceID, p.AgentID,
		p.CallCount, p.TotalCallSeconds, p.CreatedAt, now,
	)
	return err
}

func (r *PostgresRepo) UpdateSetupStatus(ctx context.Context, userID string, to SetupStatus) error {
	const q = `UPDATE profiles SET setup_status = $2, updated_at = $3 WHERE user_id = $1`
	return r.exec(ctx, q, userID, to, r.clock().UTC())
}

func (r *PostgresRepo) SetVoiceID(ctx context.Context, userID, voiceID string) error {
	const q = `UPDATE profiles SET voice_id = $2, updated_at = $3 WHERE user_id = $1`
	return r.exec(ctx, q, userID, voiceID, r.clock().UTC())
}

func (r *PostgresRepo) SetAgentID(ctx context.Context, userID, agentID string) error {
	const q = `UPDATE profiles SET agent_id = $2, updated_at = $3 WHERE user_id = $1`
	return r.exec(ctx, q, userID, agentID, r.clock().UTC())
}

func (r *PostgresRepo) SetPhoneNumber(ctx context.Context, userID, phone string) error {
	const q = `UPDATE profiles SET phone_number = $2, updated_at = $3 WHERE user_id = $1`
	return r.exec(ctx, q, userID, phone, r.clock().UTC())
}

func (r *PostgresRepo) AddUsage(ctx context.Context, userID string, seconds int) error {
	const q = `
UPDATE profiles
SET call_count = call_count + 1,
    total_call_seconds = total_call_seconds + $2,
    updated_at = $3
WHERE user_id = $1
`
	return r.exec(ctx, q, userID, seconds, r.clock().UTC())
}

func (r *PostgresRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
