package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aircover/claimpipe/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// notifyChannel matches the trigger installed by the migrations: every insert
// into eligibility_results is broadcast as a JSON payload on this channel.
const notifyChannel = "eligibility_results"

// WaitTimeout bounds how long a wait call blocks for a verdict.
const WaitTimeout = 30 * time.Second

// ErrWaitTimeout means no matching verdict arrived inside the window.
var ErrWaitTimeout = errors.New("timed out waiting for eligibility verdict")

// verdictListener is one subscription to the verdict broadcast. wait blocks
// until the next payload or context cancellation; close tears the
// subscription down.
type verdictListener interface {
	wait(ctx context.Context) (string, error)
	close()
}

// Notifier resolves "wait for my verdict" calls off Postgres LISTEN/NOTIFY.
// Each wait holds one pooled connection for its lifetime; only verdicts
// inserted after the subscription starts can resolve it.
type Notifier struct {
	timeout time.Duration
	listen  func(ctx context.Context) (verdictListener, error)
}

// NewNotifier builds a notifier over the shared pool.
func NewNotifier(pool *pgxpool.Pool) *Notifier {
	return &Notifier{
		timeout: WaitTimeout,
		listen: func(ctx context.Context) (verdictListener, error) {
			return newPgxListener(ctx, pool)
		},
	}
}

// Wait blocks until a verdict for the passenger (and flight, when given)
// is inserted, the timeout passes, or ctx is cancelled. Exactly one outcome
// is returned.
func (n *Notifier) Wait(ctx context.Context, passengerID, flightNumber string) (domain.EligibilityResult, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	listener, err := n.listen(ctx)
	if err != nil {
		return domain.EligibilityResult{}, fmt.Errorf("failed to subscribe for verdicts: %w", err)
	}
	defer listener.close()

	for {
		payload, err := listener.wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return domain.EligibilityResult{}, ErrWaitTimeout
			}
			return domain.EligibilityResult{}, fmt.Errorf("failed while waiting for notification: %w", err)
		}

		var result domain.EligibilityResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			log.Printf("[NOTIFIER] dropping unparsable notification: %v", err)
			continue
		}

		if matches(result, passengerID, flightNumber) {
			return result, nil
		}
	}
}

// pgxListener subscribes a pooled connection to the notify channel.
type pgxListener struct {
	conn *pgxpool.Conn
}

func newPgxListener(ctx context.Context, pool *pgxpool.Pool) (*pgxListener, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on %s: %w", notifyChannel, err)
	}
	return &pgxListener{conn: conn}, nil
}

func (l *pgxListener) wait(ctx context.Context) (string, error) {
	notification, err := l.conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	return notification.Payload, nil
}

// close unsubscribes before the connection goes back to the pool, so no
// later borrower inherits the subscription.
func (l *pgxListener) close() {
	cleanup, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := l.conn.Exec(cleanup, "UNLISTEN "+notifyChannel); err != nil {
		log.Printf("[NOTIFIER] failed to unlisten: %v", err)
	}
	l.conn.Release()
}

// matches pairs a broadcast verdict with a waiting caller: passenger id must
// match; flight number narrows the match when the caller supplied one.
func matches(result domain.EligibilityResult, passengerID, flightNumber string) bool {
	if !strings.EqualFold(result.PassengerID, passengerID) {
		return false
	}
	if flightNumber == "" {
		return true
	}
	return strings.EqualFold(result.FlightNumber, flightNumber)
}
