package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageTypeEligibilityCheck tags queued eligibility requests.
const MessageTypeEligibilityCheck = "eligibility_check"

// Reason is a typed eligibility outcome, never an error.
type Reason string

const (
	ReasonFlightNotFound      Reason = "flight_not_found"
	ReasonMissingTimeData     Reason = "missing_time_data"
	ReasonInvalidTimeFormat   Reason = "invalid_time_format"
	ReasonDBQueryError        Reason = "db_query_error"
	ReasonDelayBelowThreshold Reason = "delay_below_threshold"
	ReasonDelayThresholdMet   Reason = "delay_threshold_met"
)

// EligibilityPayload carries the passenger/flight identifiers of a check.
type EligibilityPayload struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	FlightNumber string `json:"flight_number"`
	PassengerID  string `json:"passenger_id"`
}

// EligibilityRequest is the queued check message.
type EligibilityRequest struct {
	Type        string             `json:"type"`
	RequestedAt time.Time          `json:"requested_at"`
	Payload     EligibilityPayload `json:"payload"`
}

// EligibilityResult is the persisted verdict for one processed request.
// There is no dedup key: a request processed twice (sync path plus queued
// path, or a replayed message) produces two rows.
type EligibilityResult struct {
	ID           uuid.UUID `json:"id"`
	PassengerID  string    `json:"passenger_id"`
	FlightNumber string    `json:"flight_number"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Eligible     bool      `json:"eligible"`
	DelayMinutes *int      `json:"delay_minutes,omitempty"`
	Reason       Reason    `json:"reason"`
	RequestedAt  time.Time `json:"requested_at"`
	ProcessedAt  time.Time `json:"processed_at"`
	ErrorDetail  string    `json:"error_detail,omitempty"`
}
