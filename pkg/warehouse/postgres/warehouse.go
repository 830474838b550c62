// Package postgres provides the PostgreSQL warehouse backend.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimsight-ai/claimsight-engine/pkg/warehouse"
)

// Warehouse executes read statements over a pgx connection pool.
type Warehouse struct {
	pool *pgxpool.Pool
}

// New connects a pool to the warehouse. The connection string is never
// logged by this package; callers sanitize before logging.
func New(ctx context.Context, connString string) (*Warehouse, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Warehouse{pool: pool}, nil
}

// NewFromPool wraps an existing pool (for tests).
func NewFromPool(pool *pgxpool.Pool) *Warehouse {
	return &Warehouse{pool: pool}
}

// Query runs a parameterized statement reading at most fetchLimit rows.
// The statement uses $1, $2, ... placeholders; pgx binds parameters natively,
// so values are never interpolated into SQL text.
func (w *Warehouse) Query(ctx context.Context, sql string, params []any, fetchLimit int) (*warehouse.QueryResult, error) {
	rows, err := w.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, warehouse.NewError("query", isRetryablePgError(err), err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		if fetchLimit > 0 && len(resultRows) >= fetchLimit {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, warehouse.NewError("read row", false, err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, warehouse.NewError("iterate rows", isRetryablePgError(err), err)
	}

	return &warehouse.QueryResult{Columns: columns, Rows: resultRows}, nil
}

// Ping verifies connectivity.
func (w *Warehouse) Ping(ctx context.Context) error {
	if err := w.pool.Ping(ctx); err != nil {
		return warehouse.NewError("ping", true, err)
	}
	return nil
}

// Close releases the pool.
func (w *Warehouse) Close() {
	w.pool.Close()
}

// isRetryablePgError reports whether a pgx error is worth retrying:
// serialization failures, deadlocks, and connection-level failures are;
// anything else (syntax, permissions, constraint) is not.
func isRetryablePgError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"53300", // too_many_connections
			"57P03", // cannot_connect_now
			"08000", "08003", "08006": // connection exceptions
			return true
		}
		return false
	}
	// Non-PgError failures from pgx are typically transport-level.
	return pgconn.SafeToRetry(err)
}

var _ warehouse.Warehouse = (*Warehouse)(nil)
