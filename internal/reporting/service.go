package reporting

import (
	"context"
	"errors"

	"selfcall-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// CallSource is the slice of the call repository reporting reads from.
// Aggregation happens over immutable history rows; reporting never writes.
type CallSource interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]calls.Call, error)
}

type Service struct {
	source CallSource
}

func NewService(source CallSource) *Service { return &Service{source: source} }

// historyWindow caps how many rows one summary scans.
const historyWindow = 1000

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.UserID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if !req.Range.From.IsZero() && !req.Range.To.IsZero() && !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.source == nil {
		return CallsSummary{}, errors.New("reporting: call source not configured")
	}

	rows, err := s.source.ListForUser(ctx, req.UserID, historyWindow)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{UserID: req.UserID}
	for _, c := range rows {
		if !req.Range.From.IsZero() && c.CreatedAt.Before(req.Range.From) {
			continue
		}
		if !req.Range.To.IsZero() && !c.CreatedAt.Before(req.Range.To) {
			continue
		}

		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.DurationSeconds > out.LongestCallSeconds {
			out.LongestCallSeconds = c.DurationSeconds
		}

		switch c.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		default:
			out.ActiveCalls++
		}

		switch c.Origin {
		case calls.OriginScheduled:
			out.ScheduledCalls++
		default:
			out.ManualCalls++
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	return out, nil
}
