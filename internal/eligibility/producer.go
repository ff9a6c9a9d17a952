package eligibility

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/aircover/claimpipe/internal/domain"
	"github.com/aircover/claimpipe/internal/queue"
	"github.com/aircover/claimpipe/internal/repository"

	"github.com/google/uuid"
)

var (
	// ErrMissingName means first or last name was absent from the request.
	ErrMissingName = errors.New("first_name and last_name are required")
	// ErrMissingPassengerID means no passenger id was supplied.
	ErrMissingPassengerID = errors.New("passenger_id is required")
	// ErrInvalidFlightNumber means the flight number failed format validation.
	ErrInvalidFlightNumber = errors.New("flight_number must be an airline code followed by digits, e.g. BA1234")
)

// flightNumberPattern accepts a 2-3 letter airline code, 1-4 digits and an
// optional suffix letter.
var flightNumberPattern = regexp.MustCompile(`^[A-Z]{2,3}\d{1,4}[A-Z]?$`)

// MessagePublisher publishes queue messages. *queue.Publisher satisfies it.
type MessagePublisher interface {
	Publish(ctx context.Context, routingKey string, v any) error
}

// Service accepts eligibility checks. Each accepted check is answered
// synchronously and also queued so the worker records an independently
// processed verdict.
type Service struct {
	flights   repository.FlightRepository
	results   repository.ResultRepository
	publisher MessagePublisher
	now       func() time.Time
}

// NewService wires the check service. publisher may be nil; checks then run
// synchronously only.
func NewService(flights repository.FlightRepository, results repository.ResultRepository, publisher MessagePublisher) *Service {
	return &Service{
		flights:   flights,
		results:   results,
		publisher: publisher,
		now:       time.Now,
	}
}

// Check validates the payload, queues it for the worker and returns the
// synchronous verdict. Validation errors carry no side effects; queue and
// persistence failures after acceptance are best effort and logged.
func (s *Service) Check(ctx context.Context, payload domain.EligibilityPayload) (domain.EligibilityResult, error) {
	payload = normalizePayload(payload)
	if err := validatePayload(payload); err != nil {
		return domain.EligibilityResult{}, err
	}

	requestedAt := s.now().UTC()

	s.enqueue(ctx, domain.EligibilityRequest{
		Type:        domain.MessageTypeEligibilityCheck,
		RequestedAt: requestedAt,
		Payload:     payload,
	})

	verdict := Determine(ctx, s.flights, payload.FlightNumber)

	result := domain.EligibilityResult{
		ID:           uuid.New(),
		PassengerID:  payload.PassengerID,
		FlightNumber: payload.FlightNumber,
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		Eligible:     verdict.Eligible,
		DelayMinutes: verdict.DelayMinutes,
		Reason:       verdict.Reason,
		RequestedAt:  requestedAt,
		ProcessedAt:  s.now().UTC(),
		ErrorDetail:  verdict.ErrorDetail,
	}

	if err := s.results.Insert(ctx, result); err != nil {
		log.Printf("[ELIGIBILITY] failed to persist verdict for %s: %v", payload.PassengerID, err)
	}

	return result, nil
}

func (s *Service) enqueue(ctx context.Context, req domain.EligibilityRequest) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, queue.TopicEligibilityCheck, req); err != nil {
		// Queueing is best effort; the synchronous verdict still answers
		// the caller.
		log.Printf("[ELIGIBILITY] failed to queue check for %s: %v", req.Payload.PassengerID, err)
	}
}

func normalizePayload(p domain.EligibilityPayload) domain.EligibilityPayload {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.PassengerID = strings.TrimSpace(p.PassengerID)
	p.FlightNumber = strings.ToUpper(strings.TrimSpace(p.FlightNumber))
	return p
}

func validatePayload(p domain.EligibilityPayload) error {
	if p.FirstName == "" || p.LastName == "" {
		return ErrMissingName
	}
	if p.PassengerID == "" {
		return ErrMissingPassengerID
	}
	if !flightNumberPattern.MatchString(p.FlightNumber) {
		return fmt.Errorf("%w: got %q", ErrInvalidFlightNumber, p.FlightNumber)
	}
	return nil
}
