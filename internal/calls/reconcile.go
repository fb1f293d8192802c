package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"selfcall-platform/internal/voice"
)

// Stale-call failure reasons. Stored verbatim on force-failed rows so
// operators can tell the resolution paths apart.
const (
	ReasonStaleNoConversationID  = "stale_no_conversation_id"
	ReasonStaleConversationGone  = "stale_conversation_not_found"
	ReasonStaleProviderErrPrefix = "stale_eleven_error_"
	ReasonStaleUnknownState      = "stale_unknown_state"
)

// outcome is a reconciliation decision for one non-terminal call.
type outcome struct {
	// complete and fail are mutually exclusive; both false leaves the call
	// untouched for the next pass.
	complete bool
	fail     bool

	reason          string
	endedAt         time.Time
	durationSeconds int
}

// decide resolves one non-terminal call against the provider's view.
//
// conv/convErr are the result of the conversation query; convErr is ignored
// when the call has no conversation id (there was nothing to query).
// Staleness is measured from started_at, falling back to created_at for
// calls that never started dialing.
func decide(c Call, conv voice.Conversation, convErr error, now time.Time, staleAfter time.Duration) outcome {
	anchor := c.CreatedAt
	if c.StartedAt != nil {
		anchor = *c.StartedAt
	}
	stale := now.Sub(anchor) >= staleAfter

	if c.ConversationID == "" {
		if stale {
			return outcome{fail: true, reason: ReasonStaleNoConversationID}
		}
		return outcome{}
	}

	if convErr != nil {
		if !stale {
			return outcome{}
		}
		if errors.Is(convErr, voice.ErrConversationNotFound) {
			return outcome{fail: true, reason: ReasonStaleConversationGone}
		}
		var pe *voice.ProviderError
		if errors.As(convErr, &pe) {
			return outcome{fail: true, reason: fmt.Sprintf("%s%d", ReasonStaleProviderErrPrefix, pe.StatusCode)}
		}
		return outcome{fail: true, reason: ReasonStaleUnknownState}
	}

	if conv.Ended() {
		ended, dur := resolveEnd(c, conv, now)
		return outcome{complete: true, endedAt: ended, durationSeconds: dur}
	}

	if stale {
		return outcome{fail: true, reason: ReasonStaleUnknownState}
	}
	return outcome{}
}

// resolveEnd computes ended_at and duration for a completed call, preferring
// provider end-time, then provider start + duration, then local start +
// duration.
func resolveEnd(c Call, conv voice.Conversation, now time.Time) (time.Time, int) {
	dur := conv.DurationSeconds
	if dur == 0 && conv.EndedAt != nil && conv.StartedAt != nil {
		dur = int(conv.EndedAt.Sub(*conv.StartedAt).Seconds())
	}

	switch {
	case conv.EndedAt != nil:
		return *conv.EndedAt, dur
	case conv.StartedAt != nil:
		return conv.StartedAt.Add(time.Duration(dur) * time.Second), dur
	case c.StartedAt != nil:
		return c.StartedAt.Add(time.Duration(dur) * time.Second), dur
	default:
		return now, dur
	}
}

// Reconcile resolves the user's stuck calls against provider ground truth
// and returns the calls still active afterwards. This is the self-healing
// path: there are no provider webhooks, so completion is only ever detected
// here.
//
// Guard misses on the terminal writes are race losses (another pass resolved
// the row first) and are skipped silently.
func (d *Dispatcher) Reconcile(ctx context.Context, userID string) ([]Call, error) {
	active, err := d.calls.ActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}

	now := d.clock().UTC()
	var remaining []Call
	for _, c := range active {
		var (
			conv    voice.Conversation
			convErr error
		)
		if c.ConversationID != "" {
			conv, convErr = d.provider.GetConversation(ctx, c.ConversationID)
		}

		o := decide(c, conv, convErr, now, d.staleAfter)
		switch {
		case o.complete:
			if err := d.calls.MarkCompleted(ctx, c.ID, o.endedAt, o.durationSeconds); err != nil {
				if errors.Is(err, ErrRaceLost) {
					continue
				}
				return nil, err
			}
			if err := d.profiles.AddUsage(ctx, userID, o.durationSeconds); err != nil {
				d.log.Warn("usage bump failed", "user_id", userID, "call_id", c.ID, "err", err)
			}
			d.audit.CallStatus(ctx, userID, c.ID, "completed via reconciliation")
		case o.fail:
			if err := d.calls.MarkFailed(ctx, c.ID, o.reason); err != nil {
				if errors.Is(err, ErrRaceLost) {
					continue
				}
				return nil, err
			}
			d.audit.CallStatus(ctx, userID, c.ID, "failed via reconciliation: "+o.reason)
		default:
			remaining = append(remaining, c)
		}
	}
	return remaining, nil
}
