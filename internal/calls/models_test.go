package calls

import (
	"testing"
	"time"
)

func TestCanTransitionForwardOnly(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusDialing, true},
		{StatusDialing, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusQueued, StatusFailed, true},
		{StatusDialing, StatusCompleted, true},
		{StatusDialing, StatusQueued, false},
		{StatusInProgress, StatusDialing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusQueued, false},
		{StatusQueued, StatusQueued, false},
		{StatusQueued, StatusInProgress, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range ActiveStatuses {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestScheduledCallDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sc := ScheduledCall{Status: ScheduledStatusPending, ScheduledFor: now.Add(-time.Minute)}
	if !sc.Due(now) {
		t.Error("past pending row must be due")
	}
	sc.ScheduledFor = now
	if !sc.Due(now) {
		t.Error("row due exactly at now must be claim-eligible")
	}
	sc.ScheduledFor = now.Add(time.Minute)
	if sc.Due(now) {
		t.Error("future row must not be due")
	}
	sc.ScheduledFor = now.Add(-time.Minute)
	for _, st := range []ScheduledStatus{ScheduledStatusExecuting, ScheduledStatusExecuted, ScheduledStatusFailed, ScheduledStatusCanceled} {
		sc.Status = st
		if sc.Due(now) {
			t.Errorf("%s row must not be due", st)
		}
	}
}
