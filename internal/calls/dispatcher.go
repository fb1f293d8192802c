package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"selfcall-platform/internal/audit"
	"selfcall-platform/internal/profiles"
	"selfcall-platform/internal/snapshots"
	"selfcall-platform/internal/voice"

	"github.com/google/uuid"
)

// Precondition errors. None of them mutates state.
var (
	ErrNotReady         = errors.New("calls: profile is not ready for calls")
	ErrMissingPhone     = errors.New("calls: profile has no phone number")
	ErrNoSnapshot       = errors.New("calls: user has no snapshot")
	ErrActiveCallExists = errors.New("calls: an active call already exists")
)

// Dispatcher starts manual calls and reconciles stuck ones.
type Dispatcher struct {
	calls     Repository
	scheduled ScheduledRepository
	profiles  profiles.Repository
	snapshots snapshots.Repository
	provider  voice.Provider
	audit     *audit.Service

	// agentPhoneNumberID is the provider-side identity of the originating
	// number, shared by every outbound dial.
	agentPhoneNumberID string

	// staleAfter is the reconciliation staleness threshold.
	staleAfter time.Duration

	// maxConcurrent is the global active-call ceiling. Read-then-compared,
	// not locked; an approximate guard under heavy concurrency.
	maxConcurrent int

	log   *slog.Logger
	clock func() time.Time
}

type DispatcherConfig struct {
	AgentPhoneNumberID string
	StalenessThreshold time.Duration
	MaxConcurrent      int
}

func NewDispatcher(
	callRepo Repository,
	scheduledRepo ScheduledRepository,
	profileRepo profiles.Repository,
	snapshotRepo snapshots.Repository,
	provider voice.Provider,
	auditSvc *audit.Service,
	cfg DispatcherConfig,
	log *slog.Logger,
) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = 12 * time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	return &Dispatcher{
		calls:              callRepo,
		scheduled:          scheduledRepo,
		profiles:           profileRepo,
		snapshots:          snapshotRepo,
		provider:           provider,
		audit:              auditSvc,
		agentPhoneNumberID: cfg.AgentPhoneNumberID,
		staleAfter:         cfg.StalenessThreshold,
		maxConcurrent:      cfg.MaxConcurrent,
		log:                log,
		clock:              time.Now,
	}
}

// StartCall runs the manual "call me now" flow: the future self calls, so
// the agent is dialed with time_mode=future.
//
// A dial rejection is terminal for the row it created: the call is marked
// failed with the provider's error body and the error is returned to the
// caller. There is no automatic retry.
func (d *Dispatcher) StartCall(ctx context.Context, userID string) (Call, error) {
	if _, err := d.Reconcile(ctx, userID); err != nil {
		return Call{}, err
	}

	profile, err := d.profiles.Get(ctx, userID)
	if err != nil {
		return Call{}, err
	}
	if !profile.IsReady() {
		return Call{}, ErrNotReady
	}
	if profile.PhoneNumber == "" {
		return Call{}, ErrMissingPhone
	}

	snap, err := d.snapshots.LatestForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, snapshots.ErrNotFound) {
			return Call{}, ErrNoSnapshot
		}
		return Call{}, err
	}

	// Re-check after reconciliation: anything still active blocks a new
	// call. Optimistic, not locked; a tied race is resolved by the next
	// reconciliation pass.
	active, err := d.calls.ActiveForUser(ctx, userID)
	if err != nil {
		return Call{}, err
	}
	if len(active) > 0 {
		return Call{}, ErrActiveCallExists
	}

	call := Call{
		ID:         uuid.NewString(),
		UserID:     userID,
		SnapshotID: snap.ID,
		Origin:     OriginManual,
		Status:     StatusQueued,
		ToNumber:   profile.PhoneNumber,
	}
	if err := d.calls.Insert(ctx, call); err != nil {
		return Call{}, err
	}
	d.audit.CallStatus(ctx, userID, call.ID, "queued (manual)")

	return d.dial(ctx, call, snap, voice.TimeModeFuture, profile.AgentID)
}

// dial performs the outbound call and finalizes the row either way.
func (d *Dispatcher) dial(ctx context.Context, call Call, snap snapshots.Snapshot, mode voice.TimeMode, agentID string) (Call, error) {
	res, err := d.provider.OutboundCall(ctx, voice.OutboundCallRequest{
		AgentID:            agentID,
		AgentPhoneNumberID: d.agentPhoneNumberID,
		ToNumber:           call.ToNumber,
		TimeMode:           mode,
		FirstMessage:       firstMessage(mode, snap),
	})
	if err != nil {
		reason := "dial rejected: " + err.Error()
		if ferr := d.calls.MarkFailed(ctx, call.ID, reason); ferr != nil && !errors.Is(ferr, ErrRaceLost) {
			d.log.Error("failed to mark dial rejection", "call_id", call.ID, "err", ferr)
		}
		d.audit.CallStatus(ctx, call.UserID, call.ID, "dial rejected")
		call.Status = StatusFailed
		call.FailureReason = reason
		return call, fmt.Errorf("calls: dial rejected: %w", err)
	}

	now := d.clock().UTC()
	if err := d.calls.MarkDialing(ctx, call.ID, res.ConversationID, res.CallSID, now); err != nil && !errors.Is(err, ErrRaceLost) {
		return Call{}, err
	}
	d.audit.CallStatus(ctx, call.UserID, call.ID, "dialing")

	call.Status = StatusDialing
	call.ConversationID = res.ConversationID
	call.CallSID = res.CallSID
	call.StartedAt = &now
	d.log.Info("call dialing",
		"user_id", call.UserID, "call_id", call.ID,
		"origin", call.Origin, "conversation_id", res.ConversationID)
	return call, nil
}

// firstMessage is the opening line the agent speaks, resolved per call
// together with time_mode.
func firstMessage(mode voice.TimeMode, snap snapshots.Snapshot) string {
	switch mode {
	case voice.TimeModePast:
		return fmt.Sprintf("Hey, it's you, from back on %s. I wanted to check in on how things turned out.",
			snap.SnapshotDate.Format("January 2, 2006"))
	default:
		return "Hey, it's you, from a little further down the road. I've been looking forward to this call."
	}
}
