package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aircover/claimpipe/internal/domain"
)

// fakeListener feeds scripted payloads to Wait and records teardown.
type fakeListener struct {
	payloads chan string
	closed   bool
}

func (f *fakeListener) wait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case payload := <-f.payloads:
		return payload, nil
	}
}

func (f *fakeListener) close() { f.closed = true }

func newTestNotifier(timeout time.Duration, payloads ...string) (*Notifier, *fakeListener) {
	listener := &fakeListener{payloads: make(chan string, len(payloads))}
	for _, p := range payloads {
		listener.payloads <- p
	}
	notifier := &Notifier{
		timeout: timeout,
		listen: func(ctx context.Context) (verdictListener, error) {
			return listener, nil
		},
	}
	return notifier, listener
}

func verdictPayload(t *testing.T, passengerID, flightNumber string) string {
	t.Helper()
	body, err := json.Marshal(domain.EligibilityResult{
		PassengerID:  passengerID,
		FlightNumber: flightNumber,
		Eligible:     true,
		Reason:       domain.ReasonDelayThresholdMet,
	})
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return string(body)
}

func TestWaitResolvesOnMatchingVerdict(t *testing.T) {
	notifier, listener := newTestNotifier(time.Second,
		verdictPayload(t, "PAX999", "BA123"), // other passenger, skipped
		"not json",                           // unparsable, skipped
		verdictPayload(t, "PAX001", "BA123"),
	)

	result, err := notifier.Wait(context.Background(), "PAX001", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PassengerID != "PAX001" {
		t.Errorf("expected PAX001's verdict, got %s", result.PassengerID)
	}
	if !result.Eligible {
		t.Error("expected the broadcast verdict fields to come through")
	}
	if !listener.closed {
		t.Error("expected the subscription to be torn down")
	}
}

func TestWaitTimesOutWithoutMatch(t *testing.T) {
	notifier, listener := newTestNotifier(20*time.Millisecond,
		verdictPayload(t, "PAX999", "BA123"))

	_, err := notifier.Wait(context.Background(), "PAX001", "")
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
	if !listener.closed {
		t.Error("expected the subscription to be torn down on timeout")
	}
}

func TestWaitMatchSuppressesTimeout(t *testing.T) {
	notifier, listener := newTestNotifier(50 * time.Millisecond)

	payload := verdictPayload(t, "PAX001", "BA123")
	go func() {
		time.Sleep(10 * time.Millisecond)
		listener.payloads <- payload
	}()

	result, err := notifier.Wait(context.Background(), "PAX001", "BA123")
	if err != nil {
		t.Fatalf("a verdict inside the window must win over the timeout, got %v", err)
	}
	if result.FlightNumber != "BA123" {
		t.Errorf("unexpected verdict: %+v", result)
	}
}

func TestWaitFlightNumberNarrowsMatch(t *testing.T) {
	notifier, _ := newTestNotifier(20*time.Millisecond,
		verdictPayload(t, "PAX001", "BA999"))

	_, err := notifier.Wait(context.Background(), "PAX001", "BA123")
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("verdict for another flight must not resolve the wait, got %v", err)
	}
}

func TestWaitSubscribeFailure(t *testing.T) {
	notifier := &Notifier{
		timeout: time.Second,
		listen: func(ctx context.Context) (verdictListener, error) {
			return nil, errors.New("pool exhausted")
		},
	}

	_, err := notifier.Wait(context.Background(), "PAX001", "")
	if err == nil || errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected a subscribe error, got %v", err)
	}
}

func TestMatches(t *testing.T) {
	result := domain.EligibilityResult{PassengerID: "PAX001", FlightNumber: "BA123"}

	cases := []struct {
		name         string
		passengerID  string
		flightNumber string
		want         bool
	}{
		{"passenger only", "PAX001", "", true},
		{"passenger and flight", "PAX001", "BA123", true},
		{"case insensitive", "pax001", "ba123", true},
		{"wrong passenger", "PAX002", "", false},
		{"wrong flight", "PAX001", "BA999", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := matches(result, tc.passengerID, tc.flightNumber); got != tc.want {
				t.Errorf("matches(%q, %q) = %t, want %t", tc.passengerID, tc.flightNumber, got, tc.want)
			}
		})
	}
}
