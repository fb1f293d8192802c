package calls

import (
	"context"
	"errors"
	"time"

	"selfcall-platform/internal/snapshots"

	"github.com/google/uuid"
)

var (
	// ErrPastSchedule rejects schedule requests at or before now. No row is
	// created.
	ErrPastSchedule = errors.New("calls: scheduled time must be in the future")

	// ErrNotCancelable reports a cancel attempt on a row no longer pending.
	ErrNotCancelable = errors.New("calls: scheduled call is no longer cancelable")
)

// Schedule creates a pending scheduled call for the user's snapshot. When
// snapshotID is empty the latest snapshot is used.
func (d *Dispatcher) Schedule(ctx context.Context, userID, snapshotID string, scheduledFor time.Time) (ScheduledCall, error) {
	now := d.clock().UTC()
	if !scheduledFor.After(now) {
		return ScheduledCall{}, ErrPastSchedule
	}

	if _, err := d.profiles.Get(ctx, userID); err != nil {
		return ScheduledCall{}, err
	}

	if snapshotID == "" {
		snap, err := d.snapshots.LatestForUser(ctx, userID)
		if err != nil {
			if errors.Is(err, snapshots.ErrNotFound) {
				return ScheduledCall{}, ErrNoSnapshot
			}
			return ScheduledCall{}, err
		}
		snapshotID = snap.ID
	} else if _, err := d.snapshots.Get(ctx, userID, snapshotID); err != nil {
		if errors.Is(err, snapshots.ErrNotFound) {
			return ScheduledCall{}, ErrNoSnapshot
		}
		return ScheduledCall{}, err
	}

	sc := ScheduledCall{
		ID:           uuid.NewString(),
		UserID:       userID,
		SnapshotID:   snapshotID,
		ScheduledFor: scheduledFor.UTC(),
		Status:       ScheduledStatusPending,
	}
	if err := d.scheduled.Insert(ctx, sc); err != nil {
		return ScheduledCall{}, err
	}
	return sc, nil
}

// CancelScheduled cancels a pending scheduled call. Once claimed, the row is
// past cancellation and the attempt reports ErrNotCancelable.
func (d *Dispatcher) CancelScheduled(ctx context.Context, userID, id string) error {
	err := d.scheduled.CancelIfPending(ctx, userID, id)
	if errors.Is(err, ErrRaceLost) {
		// Distinguish "already claimed or finished" from "never existed".
		if _, gerr := d.scheduled.Get(ctx, userID, id); gerr != nil {
			return gerr
		}
		return ErrNotCancelable
	}
	return err
}

// ListScheduled returns the user's scheduled calls, soonest-last.
func (d *Dispatcher) ListScheduled(ctx context.Context, userID string, limit int) ([]ScheduledCall, error) {
	return d.scheduled.ListForUser(ctx, userID, limit)
}

// ListCalls returns the user's call history, newest first.
func (d *Dispatcher) ListCalls(ctx context.Context, userID string, limit int) ([]Call, error) {
	return d.calls.ListForUser(ctx, userID, limit)
}

// GetCall returns one call.
func (d *Dispatcher) GetCall(ctx context.Context, userID, id string) (Call, error) {
	return d.calls.Get(ctx, userID, id)
}
