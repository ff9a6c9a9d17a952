package repository

import (
	"context"
	"time"

	"github.com/aircover/claimpipe/internal/domain"
)

// WarehouseRepository defines the row-level operations the ETL orchestrator
// needs against staging, pre-fact, dimension and fact tables. Rows are
// column-name keyed string maps, as parsed from the load-ready CSV.
type WarehouseRepository interface {
	InsertBatch(ctx context.Context, table string, rows []map[string]string) (int64, error)
	UpsertBatch(ctx context.Context, table string, rows []map[string]string, conflictKey string) (int64, error)

	// ActiveDimensionRow returns the row with valid_to IS NULL for the
	// natural key value, if any.
	ActiveDimensionRow(ctx context.Context, table, naturalKey, value string) (map[string]string, bool, error)

	// InsertDimensionRow inserts a new active version (valid_to NULL).
	InsertDimensionRow(ctx context.Context, table string, row map[string]string, validFrom time.Time) error

	// CloseAndInsertDimensionRow closes the active version and inserts the
	// incoming row as the new active version, in one transaction.
	CloseAndInsertDimensionRow(ctx context.Context, table, naturalKey, value string, row map[string]string, now time.Time) error
}

// FlightRepository looks up flight records for eligibility determination.
type FlightRepository interface {
	// LatestByNumber returns the flight with the highest scheduled
	// departure for the flight number.
	LatestByNumber(ctx context.Context, flightNumber string) (domain.Flight, bool, error)
}

// ResultRepository persists eligibility verdicts.
type ResultRepository interface {
	Insert(ctx context.Context, result domain.EligibilityResult) error
}

// AuditRepository stores a raw copy of every consumed queue message.
type AuditRepository interface {
	Record(ctx context.Context, topic string, payload []byte) error
}

// RunLogRepository persists run log lines for replay and reporting.
type RunLogRepository interface {
	Record(ctx context.Context, entry domain.RunLogEntry) error
}
