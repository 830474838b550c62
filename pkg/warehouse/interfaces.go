// Package warehouse defines the read-only query surface the pipeline runs
// compiled plans against. The engine never owns the warehouse schema; it only
// reads from it.
package warehouse

import (
	"context"
	"errors"
	"fmt"
)

// QueryResult holds the rows one statement returned. Rows are bounded by the
// fetchLimit passed to Query; callers detect truncation by asking for one row
// more than their ceiling.
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
}

// Warehouse executes parameterized read statements against one backing store.
type Warehouse interface {
	// Query runs a parameterized statement and reads at most fetchLimit rows.
	// Placeholders in sql must already match the warehouse's dialect.
	Query(ctx context.Context, sql string, params []any, fetchLimit int) (*QueryResult, error)
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	Close()
}

// Error wraps a driver failure with a retryability verdict so the execution
// layer can decide whether to back off and retry without inspecting
// driver-specific error types.
type Error struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("warehouse %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable implements the retry package's RetryableError interface.
func (e *Error) IsRetryable() bool { return e.Retryable }

// NewError wraps a driver error.
func NewError(op string, retryable bool, err error) *Error {
	return &Error{Op: op, Retryable: retryable, Err: err}
}

// AsError extracts a warehouse Error from an error chain.
func AsError(err error) (*Error, bool) {
	var werr *Error
	if errors.As(err, &werr) {
		return werr, true
	}
	return nil, false
}
