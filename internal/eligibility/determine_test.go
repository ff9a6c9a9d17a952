package eligibility

import (
	"context"
	"errors"
	"testing"

	"github.com/aircover/claimpipe/internal/domain"
)

type stubFlightRepo struct {
	flight domain.Flight
	found  bool
	err    error
}

func (s *stubFlightRepo) LatestByNumber(ctx context.Context, flightNumber string) (domain.Flight, bool, error) {
	return s.flight, s.found, s.err
}

func strPtr(s string) *string { return &s }

func flightWithTimes(scheduled, actual *string) domain.Flight {
	return domain.Flight{
		FlightNumber:       "BA123",
		Airline:            "British Airways",
		ScheduledDeparture: scheduled,
		ActualDeparture:    actual,
	}
}

func TestDetermineFlightNotFound(t *testing.T) {
	verdict := Determine(context.Background(), &stubFlightRepo{found: false}, "BA123")

	if verdict.Eligible {
		t.Error("expected not eligible")
	}
	if verdict.Reason != domain.ReasonFlightNotFound {
		t.Errorf("expected reason %s, got %s", domain.ReasonFlightNotFound, verdict.Reason)
	}
	if verdict.DelayMinutes != nil {
		t.Errorf("expected no delay, got %d", *verdict.DelayMinutes)
	}
}

func TestDetermineDBQueryError(t *testing.T) {
	repo := &stubFlightRepo{err: errors.New("connection refused")}
	verdict := Determine(context.Background(), repo, "BA123")

	if verdict.Reason != domain.ReasonDBQueryError {
		t.Errorf("expected reason %s, got %s", domain.ReasonDBQueryError, verdict.Reason)
	}
	if verdict.ErrorDetail == "" {
		t.Error("expected error detail to be set")
	}
}

func TestDetermineMissingTimeData(t *testing.T) {
	cases := []struct {
		name      string
		scheduled *string
		actual    *string
	}{
		{"nil scheduled", nil, strPtr("2024-03-01T12:00:00")},
		{"nil actual", strPtr("2024-03-01T10:00:00"), nil},
		{"empty scheduled", strPtr(""), strPtr("2024-03-01T12:00:00")},
		{"both nil", nil, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubFlightRepo{flight: flightWithTimes(tc.scheduled, tc.actual), found: true}
			verdict := Determine(context.Background(), repo, "BA123")

			if verdict.Reason != domain.ReasonMissingTimeData {
				t.Errorf("expected reason %s, got %s", domain.ReasonMissingTimeData, verdict.Reason)
			}
		})
	}
}

func TestDetermineInvalidTimeFormat(t *testing.T) {
	repo := &stubFlightRepo{
		flight: flightWithTimes(strPtr("not a timestamp"), strPtr("2024-03-01T12:00:00")),
		found:  true,
	}
	verdict := Determine(context.Background(), repo, "BA123")

	if verdict.Reason != domain.ReasonInvalidTimeFormat {
		t.Errorf("expected reason %s, got %s", domain.ReasonInvalidTimeFormat, verdict.Reason)
	}
}

func TestDetermineDelayThreshold(t *testing.T) {
	cases := []struct {
		name      string
		actual    string
		eligible  bool
		reason    domain.Reason
		wantDelay int
	}{
		{"exactly at threshold", "2024-03-01T12:00:00", true, domain.ReasonDelayThresholdMet, 120},
		{"one minute short", "2024-03-01T11:59:00", false, domain.ReasonDelayBelowThreshold, 119},
		{"well above threshold", "2024-03-01T14:30:00", true, domain.ReasonDelayThresholdMet, 270},
		{"no delay", "2024-03-01T10:00:00", false, domain.ReasonDelayBelowThreshold, 0},
		{"early departure", "2024-03-01T09:45:00", false, domain.ReasonDelayBelowThreshold, -15},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubFlightRepo{
				flight: flightWithTimes(strPtr("2024-03-01T10:00:00"), strPtr(tc.actual)),
				found:  true,
			}
			verdict := Determine(context.Background(), repo, "BA123")

			if verdict.Eligible != tc.eligible {
				t.Errorf("expected eligible=%t, got %t", tc.eligible, verdict.Eligible)
			}
			if verdict.Reason != tc.reason {
				t.Errorf("expected reason %s, got %s", tc.reason, verdict.Reason)
			}
			if verdict.DelayMinutes == nil {
				t.Fatal("expected delay minutes to be set")
			}
			if *verdict.DelayMinutes != tc.wantDelay {
				t.Errorf("expected delay %d, got %d", tc.wantDelay, *verdict.DelayMinutes)
			}
		})
	}
}

func TestDetermineAcceptsRFC3339(t *testing.T) {
	repo := &stubFlightRepo{
		flight: flightWithTimes(strPtr("2024-03-01T10:00:00Z"), strPtr("2024-03-01T13:00:00Z")),
		found:  true,
	}
	verdict := Determine(context.Background(), repo, "BA123")

	if !verdict.Eligible {
		t.Error("expected eligible for a 180 minute delay")
	}
	if verdict.DelayMinutes == nil || *verdict.DelayMinutes != 180 {
		t.Errorf("expected delay 180, got %v", verdict.DelayMinutes)
	}
}
