package calls

import (
	"context"
	"errors"
	"fmt"

	"selfcall-platform/internal/snapshots"
	"selfcall-platform/internal/voice"

	"github.com/google/uuid"
)

// SweepResult reports one due-calls sweep. TraceID tags every failure reason
// written during the sweep so rows can be correlated with logs.
type SweepResult struct {
	TraceID   string `json:"trace_id"`
	Claimed   int    `json:"claimed"`
	Processed int    `json:"processed"`

	// Busy is set when the active-call ceiling left no capacity and the
	// sweep did nothing.
	Busy bool `json:"busy,omitempty"`
}

// RunDueCalls claims due scheduled rows and dials them, at most
// requestedLimit and never beyond global capacity. Invoked by an external
// timer trigger; there is no in-process scheduler loop.
//
// Each claimed job is processed independently: one job's failure marks only
// that job and never aborts the batch. Jobs that fail are terminal; only
// rows still pending are picked up by later sweeps.
func (d *Dispatcher) RunDueCalls(ctx context.Context, requestedLimit int) (SweepResult, error) {
	res := SweepResult{TraceID: uuid.NewString()}
	log := d.log.With("trace_id", res.TraceID)

	if requestedLimit <= 0 {
		requestedLimit = d.maxConcurrent
	}

	active, err := d.calls.CountActive(ctx)
	if err != nil {
		return res, err
	}
	capacity := d.maxConcurrent - active
	if capacity < 0 {
		capacity = 0
	}
	limit := requestedLimit
	if capacity < limit {
		limit = capacity
	}
	if limit <= 0 {
		res.Busy = true
		log.Info("sweep skipped, at capacity", "active", active, "ceiling", d.maxConcurrent)
		return res, nil
	}

	claimed, err := d.claimDue(ctx, limit)
	if err != nil {
		return res, err
	}
	res.Claimed = len(claimed)
	if len(claimed) == 0 {
		return res, nil
	}
	log.Info("sweep claimed jobs", "claimed", len(claimed), "limit", limit)

	for _, sc := range claimed {
		if err := d.processScheduled(ctx, sc, res.TraceID); err != nil {
			log.Warn("scheduled call failed", "scheduled_call_id", sc.ID, "user_id", sc.UserID, "err", err)
			continue
		}
		res.Processed++
	}
	return res, nil
}

// claimDue prefers the atomic claim and falls back to per-row conditional
// patches when the store cannot lock rows. Fallback race losses are
// discarded silently: a racing sweep owns those rows.
func (d *Dispatcher) claimDue(ctx context.Context, limit int) ([]ScheduledCall, error) {
	now := d.clock().UTC()

	claimed, err := d.scheduled.ClaimDue(ctx, now, limit)
	if err == nil {
		return claimed, nil
	}
	if !errors.Is(err, ErrClaimUnsupported) {
		return nil, err
	}

	due, err := d.scheduled.ListDue(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	var won []ScheduledCall
	for _, sc := range due {
		if err := d.scheduled.ClaimOne(ctx, sc.ID, now); err != nil {
			if errors.Is(err, ErrRaceLost) {
				continue
			}
			return won, err
		}
		sc.Status = ScheduledStatusExecuting
		won = append(won, sc)
	}
	return won, nil
}

// ErrClaimUnsupported is returned by ScheduledRepository.ClaimDue when the
// backing store cannot perform the atomic claim, switching the sweep to the
// per-row fallback.
var ErrClaimUnsupported = errors.New("calls: atomic claim unsupported")

// processScheduled dials one claimed job. The scheduled row always reaches a
// terminal state here: executed on success, failed (with the trace-tagged
// reason) on any sub-step failure.
func (d *Dispatcher) processScheduled(ctx context.Context, sc ScheduledCall, traceID string) error {
	fail := func(callID string, cause error) error {
		reason := fmt.Sprintf("[sweep %s] %v", traceID, cause)
		if callID != "" {
			if err := d.calls.MarkFailed(ctx, callID, reason); err != nil && !errors.Is(err, ErrRaceLost) {
				d.log.Error("failed to mark call failed", "call_id", callID, "err", err)
			}
		}
		if err := d.scheduled.MarkFailed(ctx, sc.ID, reason); err != nil && !errors.Is(err, ErrRaceLost) {
			d.log.Error("failed to mark scheduled call failed", "scheduled_call_id", sc.ID, "err", err)
		}
		d.audit.Sweep(ctx, traceID, sc.ID, "failed: "+cause.Error())
		return cause
	}

	profile, err := d.profiles.Get(ctx, sc.UserID)
	if err != nil {
		return fail("", fmt.Errorf("load profile: %w", err))
	}
	if !profile.IsReady() {
		return fail("", ErrNotReady)
	}
	if profile.PhoneNumber == "" {
		return fail("", ErrMissingPhone)
	}

	snap, err := d.snapshots.Get(ctx, sc.UserID, sc.SnapshotID)
	if err != nil {
		if errors.Is(err, snapshots.ErrNotFound) {
			return fail("", ErrNoSnapshot)
		}
		return fail("", fmt.Errorf("load snapshot: %w", err))
	}

	call := Call{
		ID:              uuid.NewString(),
		UserID:          sc.UserID,
		SnapshotID:      sc.SnapshotID,
		ScheduledCallID: sc.ID,
		Origin:          OriginScheduled,
		Status:          StatusQueued,
		ToNumber:        profile.PhoneNumber,
	}
	if err := d.calls.Insert(ctx, call); err != nil {
		return fail("", fmt.Errorf("insert call: %w", err))
	}
	d.audit.CallStatus(ctx, sc.UserID, call.ID, "queued (scheduled)")

	// Scheduled flow is the past self calling forward.
	if _, err := d.dial(ctx, call, snap, voice.TimeModePast, profile.AgentID); err != nil {
		// dial already marked the call row failed; mirror onto the
		// scheduled row.
		reason := fmt.Sprintf("[sweep %s] %v", traceID, err)
		if merr := d.scheduled.MarkFailed(ctx, sc.ID, reason); merr != nil && !errors.Is(merr, ErrRaceLost) {
			d.log.Error("failed to mark scheduled call failed", "scheduled_call_id", sc.ID, "err", merr)
		}
		d.audit.Sweep(ctx, traceID, sc.ID, "dial rejected")
		return err
	}

	if err := d.scheduled.MarkExecuted(ctx, sc.ID); err != nil && !errors.Is(err, ErrRaceLost) {
		return fmt.Errorf("mark executed: %w", err)
	}
	d.audit.Sweep(ctx, traceID, sc.ID, "executed")
	return nil
}
