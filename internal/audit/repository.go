package audit

import (
	"context"
	"database/sql"
	"time"
)

// PostgresRepo implements Repository on database/sql.
//
// NOTE: assumes the following INSERT-only table exists:
//
//	audit_events (
//	  id TEXT PRIMARY KEY,
//	  user_id TEXT NOT NULL DEFAULT '',
//	  type TEXT NOT NULL,
//	  job_id TEXT NOT NULL DEFAULT '',
//	  call_id TEXT NOT NULL DEFAULT '',
//	  scheduled_call_id TEXT NOT NULL DEFAULT '',
//	  trace_id TEXT NOT NULL DEFAULT '',
//	  message TEXT NOT NULL DEFAULT '',
//	  created_at TIMESTAMPTZ NOT NULL
//	)
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, user_id, type, job_id, call_id, scheduled_call_id, trace_id, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.clock().UTC()
	}
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.UserID, e.Type, e.JobID, e.CallID, e.ScheduledCallID, e.TraceID, e.Message, e.CreatedAt,
	)
	return err
}
