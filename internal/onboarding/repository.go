package onboarding

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrJobNotFound = errors.New("onboarding: job not found")

// Repository is the persistence contract for onboarding jobs.
type Repository interface {
	Insert(ctx context.Context, j Job) error
	Get(ctx context.Context, userID, id string) (Job, error)
	UpdateStatus(ctx context.Context, id string, to JobStatus) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// PostgresRepo implements Repository on database/sql.
//
// NOTE: assumes the following table exists:
//
//	onboarding_jobs (
//	  id TEXT PRIMARY KEY,
//	  user_id TEXT NOT NULL,
//	  snapshot_id TEXT NOT NULL,
//	  audio_path TEXT NOT NULL,
//	  status TEXT NOT NULL DEFAULT 'queued',
//	  error_message TEXT NOT NULL DEFAULT '',
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

func (r *PostgresRepo) Insert(ctx context.Context, j Job) error {
	const q = `
INSERT INTO onboarding_jobs (id, user_id, snapshot_id, audio_path, status, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
`
	now := r.clock().UTC()
	if j.Status == "" {
		j.Status = JobStatusQueued
	}
	_, err := r.db.ExecContext(ctx, q, j.ID, j.UserID, j.SnapshotID, j.AudioPath, j.Status, j.ErrorMessage, now)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, userID, id string) (Job, error) {
	const q = `
SELECT id, user_id, snapshot_id, audio_path, status, error_message, created_at, updated_at
FROM onboarding_jobs
WHERE user_id = $1 AND id = $2
`
	var j Job
	if err := r.db.QueryRowContext(ctx, q, userID, id).Scan(
		&j.ID, &j.UserID, &j.SnapshotID, &j.AudioPath, &j.Status, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, err
	}
	return j, nil
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id string, to JobStatus) error {
	const q = `UPDATE onboarding_jobs SET status = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, q, id, to, r.clock().UTC())
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, reason string) error {
	const q = `UPDATE onboarding_jobs SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1`
	return r.exec(ctx, q, id, JobStatusFailed, reason, r.clock().UTC())
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
		return ErrJobNotFound
	}
	return nil
}
