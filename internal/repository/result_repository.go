package repository

import (
	"context"
	"fmt"

	"github.com/aircover/claimpipe/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type resultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository wires an eligibility result repository backed by
// pgxpool. Inserts fire the eligibility_results notify trigger (see
// migrations), which the notifier listens on.
func NewResultRepository(pool *pgxpool.Pool) ResultRepository {
	return &resultRepository{pool: pool}
}

func (r *resultRepository) Insert(ctx context.Context, result domain.EligibilityResult) error {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}

	var delay any
	if result.DelayMinutes != nil {
		delay = *result.DelayMinutes
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO eligibility_results
		 (id, passenger_id, flight_number, first_name, last_name, eligible, delay_minutes, reason, requested_at, processed_at, error_detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		result.ID,
		result.PassengerID,
		result.FlightNumber,
		result.FirstName,
		result.LastName,
		result.Eligible,
		delay,
		string(result.Reason),
		result.RequestedAt,
		result.ProcessedAt,
		result.ErrorDetail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert eligibility result: %w", err)
	}
	return nil
}
