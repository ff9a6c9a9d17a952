package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository wires a queue-message audit repository backed by pgxpool.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Record(ctx context.Context, topic string, payload []byte) error {
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO queue_audit (topic, payload) VALUES ($1, $2)`,
		topic,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to record queue audit entry: %w", err)
	}
	return nil
}
