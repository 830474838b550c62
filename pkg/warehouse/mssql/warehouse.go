// Package mssql provides the SQL Server warehouse backend.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/claimsight-ai/claimsight-engine/pkg/warehouse"
)

// Warehouse executes read statements over a database/sql pool backed by the
// go-mssqldb driver.
type Warehouse struct {
	db *sql.DB
}

// New opens a SQL Server connection pool.
func New(connString string) (*Warehouse, error) {
	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, fmt.Errorf("open sqlserver: %w", err)
	}
	return &Warehouse{db: db}, nil
}

// Query runs a parameterized statement reading at most fetchLimit rows. The
// statement uses @p1, @p2, ... placeholders; parameters are bound as named
// arguments, never interpolated.
func (w *Warehouse) Query(ctx context.Context, sqlQuery string, params []any, fetchLimit int) (*warehouse.QueryResult, error) {
	namedParams := make([]any, len(params))
	for i, p := range params {
		namedParams[i] = sql.Named(fmt.Sprintf("p%d", i+1), p)
	}

	rows, err := w.db.QueryContext(ctx, sqlQuery, namedParams...)
	if err != nil {
		return nil, warehouse.NewError("query", isRetryableMSSQLError(err), err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, warehouse.NewError("get columns", false, err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, warehouse.NewError("get column types", false, err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		if fetchLimit > 0 && len(resultRows) >= fetchLimit {
			break
		}

		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, warehouse.NewError("scan row", false, err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			val := values[i]
			// The driver returns text columns as []byte.
			if b, ok := val.([]byte); ok && isStringType(columnTypes[i].DatabaseTypeName()) {
				val = string(b)
			}
			rowMap[col] = val
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, warehouse.NewError("iterate rows", isRetryableMSSQLError(err), err)
	}

	return &warehouse.QueryResult{Columns: columns, Rows: resultRows}, nil
}

// Ping verifies connectivity.
func (w *Warehouse) Ping(ctx context.Context) error {
	if err := w.db.PingContext(ctx); err != nil {
		return warehouse.NewError("ping", true, err)
	}
	return nil
}

// Close releases the pool.
func (w *Warehouse) Close() {
	_ = w.db.Close()
}

func isStringType(dbType string) bool {
	switch dbType {
	case "CHAR", "VARCHAR", "NCHAR", "NVARCHAR", "TEXT", "NTEXT":
		return true
	}
	return false
}

// isRetryableMSSQLError classifies driver failures by message, since the
// driver does not expose stable error codes for transport faults.
func isRetryableMSSQLError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"deadlock",
		"timeout",
		"unable to open tcp connection",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

var _ warehouse.Warehouse = (*Warehouse)(nil)
