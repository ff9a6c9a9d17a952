package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type warehouseRepository struct {
	pool *pgxpool.Pool
}

// NewWarehouseRepository wires a warehouse repository backed by pgxpool.
func NewWarehouseRepository(pool *pgxpool.Pool) WarehouseRepository {
	return &warehouseRepository{pool: pool}
}

func (r *warehouseRepository) InsertBatch(ctx context.Context, table string, rows []map[string]string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	cols := columnSet(rows)
	sql, args := buildInsert(table, cols, rows)

	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert batch into %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (r *warehouseRepository) UpsertBatch(ctx context.Context, table string, rows []map[string]string, conflictKey string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	cols := columnSet(rows)
	sql, args := buildInsert(table, cols, rows)

	var updates []string
	for _, col := range cols {
		if col == conflictKey {
			continue
		}
		quoted := pgx.Identifier{col}.Sanitize()
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted))
	}

	if len(updates) == 0 {
		sql += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", pgx.Identifier{conflictKey}.Sanitize())
	} else {
		sql += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
			pgx.Identifier{conflictKey}.Sanitize(), strings.Join(updates, ", "))
	}

	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert batch into %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (r *warehouseRepository) ActiveDimensionRow(ctx context.Context, table, naturalKey, value string) (map[string]string, bool, error) {
	sql := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s = $1 AND valid_to IS NULL ORDER BY valid_from DESC LIMIT 1",
		pgx.Identifier{table}.Sanitize(), pgx.Identifier{naturalKey}.Sanitize(),
	)

	rows, err := r.pool.Query(ctx, sql, value)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query active dimension row in %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			return nil, false, fmt.Errorf("failed to read active dimension row in %s: %w", table, rowsErr)
		}
		return nil, false, nil
	}

	values, err := rows.Values()
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan active dimension row in %s: %w", table, err)
	}

	row := make(map[string]string, len(values))
	for i, desc := range rows.FieldDescriptions() {
		if values[i] == nil {
			continue
		}
		row[desc.Name] = stringifyValue(values[i])
	}
	return row, true, nil
}

func (r *warehouseRepository) InsertDimensionRow(ctx context.Context, table string, row map[string]string, validFrom time.Time) error {
	versioned := make(map[string]string, len(row)+1)
	for k, v := range row {
		versioned[k] = v
	}
	versioned["valid_from"] = validFrom.UTC().Format(time.RFC3339Nano)

	cols := columnSet([]map[string]string{versioned})
	sql, args := buildInsert(table, cols, []map[string]string{versioned})

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to insert dimension row into %s: %w", table, err)
	}
	return nil
}

// CloseAndInsertDimensionRow keeps the close+insert pair atomic inside one
// transaction. Concurrent processes can still race on the preceding active
// row lookup; in-process merges are serialized per natural key by the
// orchestrator.
func (r *warehouseRepository) CloseAndInsertDimensionRow(ctx context.Context, table, naturalKey, value string, row map[string]string, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin dimension merge transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	closeSQL := fmt.Sprintf(
		"UPDATE %s SET valid_to = $1 WHERE %s = $2 AND valid_to IS NULL",
		pgx.Identifier{table}.Sanitize(), pgx.Identifier{naturalKey}.Sanitize(),
	)
	if _, err := tx.Exec(ctx, closeSQL, now.UTC(), value); err != nil {
		return fmt.Errorf("failed to close active dimension row in %s: %w", table, err)
	}

	versioned := make(map[string]string, len(row)+1)
	for k, v := range row {
		versioned[k] = v
	}
	versioned["valid_from"] = now.UTC().Format(time.RFC3339Nano)

	cols := columnSet([]map[string]string{versioned})
	sql, args := buildInsert(table, cols, []map[string]string{versioned})
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to insert new dimension version into %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dimension merge: %w", err)
	}
	return nil
}

// columnSet returns the sorted union of column names across the batch.
func columnSet(rows []map[string]string) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for col := range row {
			seen[col] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func buildInsert(table string, cols []string, rows []map[string]string) (string, []any) {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = pgx.Identifier{col}.Sanitize()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", pgx.Identifier{table}.Sanitize(), strings.Join(quoted, ", "))

	args := make([]any, 0, len(cols)*len(rows))
	placeholder := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, col := range cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", placeholder)
			placeholder++
			if value, ok := row[col]; ok {
				args = append(args, value)
			} else {
				args = append(args, nil)
			}
		}
		sb.WriteString(")")
	}

	return sb.String(), args
}

func stringifyValue(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case []byte:
		return string(value)
	case time.Time:
		return value.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(value)
	}
}
