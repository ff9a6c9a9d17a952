package eligibility

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/aircover/claimpipe/internal/domain"
	"github.com/aircover/claimpipe/internal/queue"
	"github.com/aircover/claimpipe/internal/repository"

	"github.com/google/uuid"
)

// Worker consumes queued eligibility checks. Every message is audited before
// interpretation, so malformed or unknown payloads still leave a trace.
type Worker struct {
	flights repository.FlightRepository
	results repository.ResultRepository
	audit   repository.AuditRepository
	now     func() time.Time
}

// NewWorker wires the queue-side processor. audit may be nil.
func NewWorker(flights repository.FlightRepository, results repository.ResultRepository, audit repository.AuditRepository) *Worker {
	return &Worker{
		flights: flights,
		results: results,
		audit:   audit,
		now:     time.Now,
	}
}

// Handle implements queue.Handler. It never returns an error to the consumer:
// a verdict that cannot be computed or stored is logged and the message is
// considered handled.
func (w *Worker) Handle(ctx context.Context, topic string, body []byte) {
	var req domain.EligibilityRequest
	if err := json.Unmarshal(body, &req); err != nil {
		// Keep the raw bytes recoverable from the audit trail. The audit
		// column is JSONB, so undecodable payloads get wrapped.
		w.recordAudit(ctx, topic, mustMarshal(map[string]string{"raw": string(body)}))
		log.Printf("[WORKER] dropping malformed message on %s: %v", topic, err)
		return
	}

	w.recordAudit(ctx, topic, body)

	if req.Type != domain.MessageTypeEligibilityCheck {
		log.Printf("[WORKER] ignoring message type %q on %s", req.Type, topic)
		return
	}

	verdict := Determine(ctx, w.flights, req.Payload.FlightNumber)

	result := domain.EligibilityResult{
		ID:           uuid.New(),
		PassengerID:  req.Payload.PassengerID,
		FlightNumber: req.Payload.FlightNumber,
		FirstName:    req.Payload.FirstName,
		LastName:     req.Payload.LastName,
		Eligible:     verdict.Eligible,
		DelayMinutes: verdict.DelayMinutes,
		Reason:       verdict.Reason,
		RequestedAt:  req.RequestedAt,
		ProcessedAt:  w.now().UTC(),
		ErrorDetail:  verdict.ErrorDetail,
	}

	if err := w.results.Insert(ctx, result); err != nil {
		log.Printf("[WORKER] failed to persist verdict for %s: %v", req.Payload.PassengerID, err)
		return
	}

	log.Printf("[WORKER] processed %s for passenger %s: eligible=%t reason=%s",
		queue.TopicEligibilityCheck, result.PassengerID, result.Eligible, result.Reason)
}

func (w *Worker) recordAudit(ctx context.Context, topic string, body []byte) {
	if w.audit == nil {
		return
	}
	if err := w.audit.Record(ctx, topic, body); err != nil {
		log.Printf("[WORKER] failed to audit message on %s: %v", topic, err)
	}
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
