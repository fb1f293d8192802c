package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("calls: not found")

// Repository is the persistence contract for calls.
//
// The Mark* transitions are conditional updates guarded by the current
// status. A guard miss (another writer got there first) reports a race loss
// via ErrRaceLost — callers treat it as "someone else handled it", never as a
// failure.
type Repository interface {
	Insert(ctx context.Context, c Call) error
	Get(ctx context.Context, userID, id string) (Call, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]Call, error)

	// ActiveForUser returns the user's non-terminal calls, oldest first.
	ActiveForUser(ctx context.Context, userID string) ([]Call, error)

	// CountActive counts non-terminal calls across all users. The ceiling
	// check compares against this; it is a read-then-compare guard, not a
	// lock.
	CountActive(ctx context.Context) (int, error)

	// MarkDialing moves queued -> dialing and records the provider ids.
	MarkDialing(ctx context.Context, id, conversationID, callSID string, startedAt time.Time) error

	// MarkCompleted finalizes a non-terminal call with its resolved timing.
	MarkCompleted(ctx context.Context, id string, endedAt time.Time, durationSeconds int) error

	// MarkFailed finalizes a non-terminal call with a truncated reason.
	MarkFailed(ctx context.Context, id, reason string) error
}

// ErrRaceLost reports a conditional update that matched zero rows because a
// concurrent writer already transitioned the row.
var ErrRaceLost = errors.New("calls: conditional update lost race")

// ScheduledRepository is the persistence contract for scheduled calls.
type ScheduledRepository interface {
	Insert(ctx context.Context, sc ScheduledCall) error
	Get(ctx context.Context, userID, id string) (ScheduledCall, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]ScheduledCall, error)

	// ClaimDue atomically claims up to limit due pending rows, moving them
	// to executing and returning them. Concurrent sweeps never double-claim.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]ScheduledCall, error)

	// ListDue and ClaimOne are the non-atomic fallback used against stores
	// without row locking: select candidates, then conditionally patch each
	// row guarded by status=pending. ClaimOne returns ErrRaceLost for rows a
	// racing sweep already took.
	ListDue(ctx context.Context, now time.Time, limit int) ([]ScheduledCall, error)
	ClaimOne(ctx context.Context, id string, now time.Time) error

	// CancelIfPending cancels the row only while it is still pending.
	// Returns ErrRaceLost once the row has been claimed or finished.
	CancelIfPending(ctx context.Context, userID, id string) error

	MarkExecuted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// PostgresRepo implements Repository on database/sql.
//
// NOTE: assumes the following table exists:
//
//	calls (
//	  id TEXT PRIMARY KEY,
//	  user_id TEXT NOT NULL,
//	  snapshot_id TEXT NOT NULL,
//	  scheduled_call_id TEXT NOT NULL DEFAULT '',
//	  origin TEXT NOT NULL,
//	  status TEXT NOT NULL DEFAULT 'queued',
//	  to_number TEXT NOT NULL,
//	  conversation_id TEXT NOT NULL DEFAULT '',
//	  call_sid TEXT NOT NULL DEFAULT '',
//	  started_at TIMESTAMPTZ,
//	  ended_at TIMESTAMPTZ,
//	  duration_seconds INT NOT NULL DEFAULT 0,
//	  failure_reason TEXT NOT NULL DEFAULT '',
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

const callColumns = `id, user_id, snapshot_id, scheduled_call_id, origin, status, to_number, conversation_id, call_sid, started_at, ended_at, duration_seconds, failure_reason, created_at, updated_at`

func scanCall(row interface{ Scan(...any) error }) (Call, error) {
	var c Call
	err := row.Scan(
		&c.ID, &c.UserID, &c.SnapshotID, &c.ScheduledCallID, &c.Origin,
		&c.Status, &c.ToNumber, &c.ConversationID, &c.CallSID,
		&c.StartedAt, &c.EndedAt, &c.DurationSeconds, &c.FailureReason,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (r *PostgresRepo) Insert(ctx context.Context, c Call) error {
	const q = `
INSERT INTO calls (` + callColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`
	now := r.clock().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.Status == "" {
		c.Status = StatusQueued
	}
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.UserID, c.SnapshotID, c.ScheduledCallID, c.Origin,
		c.Status, c.ToNumber, c.ConversationID, c.CallSID,
		c.StartedAt, c.EndedAt, c.DurationSeconds, c.FailureReason,
		c.CreatedAt, now,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, userID, id string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE user_id = $1 AND id = $2`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) ListForUser(ctx context.Context, userID string, limit int) ([]Call, error) {
	const q = `
SELECT ` + callColumns + `
FROM calls
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCalls(rows)
}

func (r *PostgresRepo) ActiveForUser(ctx context.Context, userID string) ([]Call, error) {
	const q = `
SELECT ` + callColumns + `
FROM calls
WHERE user_id = $1 AND status IN ('queued','dialing','in_progress')
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCalls(rows)
}

func collectCalls(rows *sql.Rows) ([]Call, error) {
	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CountActive(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM calls WHERE status IN ('queued','dialing','in_progress')`
	var n int
	err := r.db.QueryRowContext(ctx, q).Scan(&n)
	return n, err
}

func (r *PostgresRepo) MarkDialing(ctx context.Context, id, conversationID, callSID string, startedAt time.Time) error {
	const q = `
UPDATE calls
SET status = 'dialing', conversation_id = $2, call_sid = $3, started_at = $4, updated_at = $5
WHERE id = $1 AND status = 'queued'
`
	return r.guarded(ctx, q, id, conversationID, callSID, startedAt, r.clock().UTC())
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, id string, endedAt time.Time, durationSeconds int) error {
	const q = `
UPDATE calls
SET status = 'completed', ended_at = $2, duration_seconds = $3, updated_at = $4
WHERE id = $1 AND status IN ('queued','dialing','in_progress')
`
	return r.guarded(ctx, q, id, endedAt, durationSeconds, r.clock().UTC())
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, reason string) error {
	const q = `
UPDATE calls
SET status = 'failed', failure_reason = $2, updated_at = $3
WHERE id = $1 AND status IN ('queued','dialing','in_progress')
`
	return r.guarded(ctx, q, id, truncateReason(reason), r.clock().UTC())
}

// guarded runs a conditional update; zero rows affected means a racing
// writer already moved the row past the guard.
func (r *PostgresRepo) guarded(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRaceLost
	}
	return nil
}

func truncateReason(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// ScheduledPostgresRepo implements ScheduledRepository on database/sql.
//
// NOTE: assumes the following table exists:
//
//	scheduled_calls (
//	  id TEXT PRIMARY KEY,
//	  user_id TEXT NOT NULL,
//	  snapshot_id TEXT NOT NULL,
//	  scheduled_for TIMESTAMPTZ NOT NULL,
//	  status TEXT NOT NULL DEFAULT 'pending',
//	  attempt_count INT NOT NULL DEFAULT 0,
//	  last_attempt_at TIMESTAMPTZ,
//	  failure_reason TEXT NOT NULL DEFAULT '',
//	  created_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL
//	)
type ScheduledPostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewScheduledPostgresRepo(db *sql.DB) *ScheduledPostgresRepo {
	return &ScheduledPostgresRepo{db: db, clock: time.Now}
}

const scheduledColumns = `id, user_id, snapshot_id, scheduled_for, status, attempt_count, last_attempt_at, failure_reason, created_at, updated_at`

func scanScheduled(row interface{ Scan(...any) error }) (ScheduledCall, error) {
	var sc ScheduledCall
	err := row.Scan(
		&sc.ID, &sc.UserID, &sc.SnapshotID, &sc.ScheduledFor, &sc.Status,
		&sc.AttemptCount, &sc.LastAttemptAt, &sc.FailureReason,
		&sc.CreatedAt, &sc.UpdatedAt,
	)
	return sc, err
}

func (r *ScheduledPostgresRepo) Insert(ctx context.Context, sc ScheduledCall) error {
	const q = `
INSERT INTO scheduled_calls (` + scheduledColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	now := r.clock().UTC()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	if sc.Status == "" {
		sc.Status = ScheduledStatusPending
	}
	_, err := r.db.ExecContext(ctx, q,
		sc.ID, sc.UserID, sc.SnapshotID, sc.ScheduledFor, sc.Status,
		sc.AttemptCount, sc.LastAttemptAt, sc.FailureReason,
		sc.CreatedAt, now,
	)
	return err
}

func (r *ScheduledPostgresRepo) Get(ctx context.Context, userID, id string) (ScheduledCall, error) {
	const q = `SELECT ` + scheduledColumns + ` FROM scheduled_calls WHERE user_id = $1 AND id = $2`
	sc, err := scanScheduled(r.db.QueryRowContext(ctx, q, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledCall{}, ErrNotFound
	}
	return sc, err
}

func (r *ScheduledPostgresRepo) ListForUser(ctx context.Context, userID string, limit int) ([]ScheduledCall, error) {
	const q = `
SELECT ` + scheduledColumns + `
FROM scheduled_calls
WHERE user_id = $1
ORDER BY scheduled_for DESC
LIMIT $2
`
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScheduledCall
	for rows.Next() {
		sc, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ClaimDue is the preferred single-statement claim. SKIP LOCKED makes
// concurrent sweeps partition the due set instead of blocking or
// double-claiming.
func (r *ScheduledPostgresRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]ScheduledCall, error) {
	const q = `
UPDATE scheduled_calls
SET status = 'executing',
    attempt_count = attempt_count + 1,
    last_attempt_at = $1,
    updated_at = $1
WHERE id IN (
    SELECT id FROM scheduled_calls
    WHERE status = 'pending' AND scheduled_for <= $1
    ORDER BY scheduled_for ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + scheduledColumns + `
`
	rows, err := r.db.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScheduledCall
	for rows.Next() {
		sc, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *ScheduledPostgresRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]ScheduledCall, error) {
	const q = `
SELECT ` + scheduledColumns + `
FROM scheduled_calls
WHERE status = 'pending' AND scheduled_for <= $1
ORDER BY scheduled_for ASC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScheduledCall
	for rows.Next() {
		sc, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *ScheduledPostgresRepo) ClaimOne(ctx context.Context, id string, now time.Time) error {
	const q = `
UPDATE scheduled_calls
SET status = 'executing',
    attempt_count = attempt_count + 1,
    last_attempt_at = $2,
    updated_at = $2
WHERE id = $1 AND status = 'pending'
`
	return r.guarded(ctx, q, id, now.UTC())
}

func (r *ScheduledPostgresRepo) CancelIfPending(ctx context.Context, userID, id string) error {
	const q = `
UPDATE scheduled_calls
SET status = 'canceled', updated_at = $3
WHERE user_id = $1 AND id = $2 AND status = 'pending'
`
	return r.guarded(ctx, q, userID, id, r.clock().UTC())
}

func (r *ScheduledPostgresRepo) MarkExecuted(ctx context.Context, id string) error {
	const q = `
UPDATE scheduled_calls
SET status = 'executed', updated_at = $2
WHERE id = $1 AND status = 'executing'
`
	return r.guarded(ctx, q, id, r.clock().UTC())
}

func (r *ScheduledPostgresRepo) MarkFailed(ctx context.Context, id, reason string) error {
	const q = `
UPDATE scheduled_calls
SET status = 'failed', failure_reason = $2, updated_at = $3
WHERE id = $1 AND status = 'executing'
`
	return r.guarded(ctx, q, id, truncateReason(reason), r.clock().UTC())
}

func (r *ScheduledPostgresRepo) guarded(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRaceLost
	}
	return nil
}
