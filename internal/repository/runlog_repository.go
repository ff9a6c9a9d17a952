package repository

import (
	"context"
	"fmt"

	"github.com/aircover/claimpipe/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type runLogRepository struct {
	pool *pgxpool.Pool
}

// NewRunLogRepository wires a run log repository backed by pgxpool.
func NewRunLogRepository(pool *pgxpool.Pool) RunLogRepository {
	return &runLogRepository{pool: pool}
}

func (r *runLogRepository) Record(ctx context.Context, entry domain.RunLogEntry) error {
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO pipeline_run_log (run_id, event_time, message) VALUES ($1, $2, $3)`,
		entry.RunID,
		entry.EventTime,
		entry.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to record run log line: %w", err)
	}
	return nil
}
