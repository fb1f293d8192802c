package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"selfcall-platform/internal/calls"
)

func seedCalls(t *testing.T, repo *calls.MemoryRepo, rows ...calls.Call) {
	t.Helper()
	for _, c := range rows {
		if err := repo.Insert(context.Background(), c); err != nil {
			t.Fatalf("insert call: %v", err)
		}
	}
}

func TestCallsSummary(t *testing.T) {
	repo := calls.NewMemoryRepo()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedCalls(t, repo,
		calls.Call{ID: "c1", UserID: "u1", Origin: calls.OriginManual, Status: calls.StatusCompleted, DurationSeconds: 120, CreatedAt: base},
		calls.Call{ID: "c2", UserID: "u1", Origin: calls.OriginScheduled, Status: calls.StatusCompleted, DurationSeconds: 300, CreatedAt: base.Add(time.Hour)},
		calls.Call{ID: "c3", UserID: "u1", Origin: calls.OriginManual, Status: calls.StatusFailed, CreatedAt: base.Add(2 * time.Hour)},
		calls.Call{ID: "c4", UserID: "u1", Origin: calls.OriginManual, Status: calls.StatusDialing, CreatedAt: base.Add(3 * time.Hour)},
		calls.Call{ID: "other", UserID: "u2", Origin: calls.OriginManual, Status: calls.StatusCompleted, DurationSeconds: 60, CreatedAt: base},
	)

	svc := NewService(repo)
	got, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("CallsSummary: %v", err)
	}

	want := CallsSummary{
		UserID:                 "u1",
		TotalCalls:             4,
		CompletedCalls:         2,
		FailedCalls:            1,
		ActiveCalls:            1,
		ManualCalls:            3,
		ScheduledCalls:         1,
		TotalDurationSeconds:   420,
		AverageDurationSeconds: 210,
		LongestCallSeconds:     300,
	}
	if got != want {
		t.Fatalf("summary mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestCallsSummaryRangeFilter(t *testing.T) {
	repo := calls.NewMemoryRepo()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedCalls(t, repo,
		calls.Call{ID: "old", UserID: "u1", Status: calls.StatusCompleted, DurationSeconds: 60, CreatedAt: base.Add(-48 * time.Hour)},
		calls.Call{ID: "new", UserID: "u1", Status: calls.StatusCompleted, DurationSeconds: 90, CreatedAt: base},
	)

	svc := NewService(repo)
	got, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		UserID: "u1",
		Range:  TimeRange{From: base.Add(-time.Hour), To: base.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("CallsSummary: %v", err)
	}
	if got.TotalCalls != 1 || got.TotalDurationSeconds != 90 {
		t.Fatalf("range filter broken: %+v", got)
	}
}

func TestCallsSummaryInvalidRequest(t *testing.T) {
	svc := NewService(calls.NewMemoryRepo())

	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing user: err = %v", err)
	}

	now := time.Now()
	_, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		UserID: "u1",
		Range:  TimeRange{From: now, To: now.Add(-time.Hour)},
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("inverted range: err = %v", err)
	}
}
