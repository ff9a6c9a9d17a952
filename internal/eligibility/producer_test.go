package eligibility

import (
	"context"
	"errors"
	"testing"

	"github.com/aircover/claimpipe/internal/domain"
	"github.com/aircover/claimpipe/internal/queue"
)

type stubResultRepo struct {
	inserted []domain.EligibilityResult
	err      error
}

func (s *stubResultRepo) Insert(ctx context.Context, result domain.EligibilityResult) error {
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, result)
	return nil
}

type stubPublisher struct {
	published []publishedMessage
	err       error
}

type publishedMessage struct {
	routingKey string
	value      any
}

func (s *stubPublisher) Publish(ctx context.Context, routingKey string, v any) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, publishedMessage{routingKey: routingKey, value: v})
	return nil
}

func validPayload() domain.EligibilityPayload {
	return domain.EligibilityPayload{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		FlightNumber: "BA123",
		PassengerID:  "PAX001",
	}
}

func TestCheckValidation(t *testing.T) {
	svc := NewService(&stubFlightRepo{}, &stubResultRepo{}, nil)

	cases := []struct {
		name    string
		mutate  func(*domain.EligibilityPayload)
		wantErr error
	}{
		{"missing first name", func(p *domain.EligibilityPayload) { p.FirstName = "" }, ErrMissingName},
		{"missing last name", func(p *domain.EligibilityPayload) { p.LastName = "  " }, ErrMissingName},
		{"missing passenger id", func(p *domain.EligibilityPayload) { p.PassengerID = "" }, ErrMissingPassengerID},
		{"empty flight number", func(p *domain.EligibilityPayload) { p.FlightNumber = "" }, ErrInvalidFlightNumber},
		{"digits only flight number", func(p *domain.EligibilityPayload) { p.FlightNumber = "1234" }, ErrInvalidFlightNumber},
		{"too many digits", func(p *domain.EligibilityPayload) { p.FlightNumber = "BA12345" }, ErrInvalidFlightNumber},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := validPayload()
			tc.mutate(&payload)

			_, err := svc.Check(context.Background(), payload)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCheckQueuesAndAnswers(t *testing.T) {
	flights := &stubFlightRepo{
		flight: flightWithTimes(strPtr("2024-03-01T10:00:00"), strPtr("2024-03-01T13:00:00")),
		found:  true,
	}
	results := &stubResultRepo{}
	publisher := &stubPublisher{}

	svc := NewService(flights, results, publisher)

	result, err := svc.Check(context.Background(), validPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Eligible {
		t.Error("expected eligible verdict")
	}
	if result.Reason != domain.ReasonDelayThresholdMet {
		t.Errorf("expected reason %s, got %s", domain.ReasonDelayThresholdMet, result.Reason)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("expected 1 queued message, got %d", len(publisher.published))
	}
	if publisher.published[0].routingKey != queue.TopicEligibilityCheck {
		t.Errorf("expected routing key %s, got %s", queue.TopicEligibilityCheck, publisher.published[0].routingKey)
	}
	req, ok := publisher.published[0].value.(domain.EligibilityRequest)
	if !ok {
		t.Fatalf("expected EligibilityRequest, got %T", publisher.published[0].value)
	}
	if req.Type != domain.MessageTypeEligibilityCheck {
		t.Errorf("expected message type %s, got %s", domain.MessageTypeEligibilityCheck, req.Type)
	}

	if len(results.inserted) != 1 {
		t.Fatalf("expected 1 persisted verdict, got %d", len(results.inserted))
	}
	if results.inserted[0].PassengerID != "PAX001" {
		t.Errorf("expected passenger PAX001, got %s", results.inserted[0].PassengerID)
	}
}

func TestCheckNormalizesFlightNumber(t *testing.T) {
	flights := &stubFlightRepo{found: false}
	results := &stubResultRepo{}
	svc := NewService(flights, results, nil)

	payload := validPayload()
	payload.FlightNumber = "  ba123 "

	result, err := svc.Check(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FlightNumber != "BA123" {
		t.Errorf("expected normalized flight number BA123, got %s", result.FlightNumber)
	}
}

func TestCheckSurvivesPublishFailure(t *testing.T) {
	flights := &stubFlightRepo{found: false}
	results := &stubResultRepo{}
	publisher := &stubPublisher{err: errors.New("broker down")}

	svc := NewService(flights, results, publisher)

	result, err := svc.Check(context.Background(), validPayload())
	if err != nil {
		t.Fatalf("expected publish failure to be swallowed, got %v", err)
	}
	if result.Reason != domain.ReasonFlightNotFound {
		t.Errorf("expected reason %s, got %s", domain.ReasonFlightNotFound, result.Reason)
	}
}

func TestCheckSurvivesPersistFailure(t *testing.T) {
	flights := &stubFlightRepo{found: false}
	results := &stubResultRepo{err: errors.New("insert failed")}

	svc := NewService(flights, results, nil)

	result, err := svc.Check(context.Background(), validPayload())
	if err != nil {
		t.Fatalf("expected persistence failure to be swallowed, got %v", err)
	}
	if result.Reason != domain.ReasonFlightNotFound {
		t.Errorf("expected a verdict despite persistence failure, got reason %s", result.Reason)
	}
}
