package eligibility

import (
	"context"
	"math"
	"time"

	"github.com/aircover/claimpipe/internal/domain"
	"github.com/aircover/claimpipe/internal/repository"
)

// DelayThresholdMinutes is the compensation cutoff: a rounded delay of at
// least this many minutes makes the claim eligible.
const DelayThresholdMinutes = 120

// departureLayouts are the timestamp formats the warehouse is known to hold.
// Flight times arrive as strings from the load pipeline, so parsing happens
// here rather than at scan time.
var departureLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Verdict is the outcome of one determination. It is always well-formed:
// lookup and data problems surface as Reason codes, not errors.
type Verdict struct {
	Eligible     bool
	DelayMinutes *int
	Reason       domain.Reason
	ErrorDetail  string
}

// Determine resolves the latest flight for the number and applies the delay
// threshold. Every failure mode maps to a Reason; the caller never needs to
// branch on an error.
func Determine(ctx context.Context, flights repository.FlightRepository, flightNumber string) Verdict {
	flight, found, err := flights.LatestByNumber(ctx, flightNumber)
	if err != nil {
		return Verdict{Reason: domain.ReasonDBQueryError, ErrorDetail: err.Error()}
	}
	if !found {
		return Verdict{Reason: domain.ReasonFlightNotFound}
	}

	if flight.ScheduledDeparture == nil || flight.ActualDeparture == nil ||
		*flight.ScheduledDeparture == "" || *flight.ActualDeparture == "" {
		return Verdict{Reason: domain.ReasonMissingTimeData}
	}

	scheduled, ok := parseDeparture(*flight.ScheduledDeparture)
	if !ok {
		return Verdict{Reason: domain.ReasonInvalidTimeFormat, ErrorDetail: "scheduled_departure: " + *flight.ScheduledDeparture}
	}
	actual, ok := parseDeparture(*flight.ActualDeparture)
	if !ok {
		return Verdict{Reason: domain.ReasonInvalidTimeFormat, ErrorDetail: "actual_departure: " + *flight.ActualDeparture}
	}

	delay := int(math.Round(actual.Sub(scheduled).Minutes()))
	if delay < DelayThresholdMinutes {
		return Verdict{DelayMinutes: &delay, Reason: domain.ReasonDelayBelowThreshold}
	}
	return Verdict{Eligible: true, DelayMinutes: &delay, Reason: domain.ReasonDelayThresholdMet}
}

func parseDeparture(s string) (time.Time, bool) {
	for _, layout := range departureLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
