// Package executor runs compiled query plans against the warehouse with
// resource ceilings: a per-statement timeout, a row ceiling, and a byte
// ceiling. Hitting a ceiling mid-result truncates rather than fails, so the
// caller still gets a usable partial answer.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/apperrors"
	"github.com/claimsight-ai/claimsight-engine/pkg/models"
	"github.com/claimsight-ai/claimsight-engine/pkg/retry"
	"github.com/claimsight-ai/claimsight-engine/pkg/warehouse"
)

// Config bounds a single plan execution.
type Config struct {
	// StatementTimeout caps each statement's wall time.
	StatementTimeout time.Duration
	// MaxRows caps rows per statement. Exceeding it truncates the result.
	MaxRows int
	// MaxResultBytes caps the serialized result size per statement.
	MaxResultBytes int
	// Retry governs backoff for transient warehouse failures.
	Retry *retry.Config
}

// DefaultConfig returns conservative execution bounds.
func DefaultConfig() Config {
	return Config{
		StatementTimeout: 30 * time.Second,
		MaxRows:          10000,
		MaxResultBytes:   4 << 20,
		Retry:            retry.DefaultConfig(),
	}
}

// Executor runs plan statements.
type Executor struct {
	wh     warehouse.Warehouse
	cfg    Config
	logger *zap.Logger
}

// New creates an Executor.
func New(wh warehouse.Warehouse, cfg Config, logger *zap.Logger) *Executor {
	return &Executor{
		wh:     wh,
		cfg:    cfg,
		logger: logger.Named("executor"),
	}
}

// Execute runs every statement in the plan in order. A truncated statement
// (row or byte ceiling hit) still yields its rows, marked Truncated; the
// overall result is then partial. A timed-out or failed statement aborts the
// whole execution.
func (e *Executor) Execute(ctx context.Context, plan *models.QueryPlan) (*models.ExecutionResult, error) {
	start := time.Now()
	result := &models.ExecutionResult{}

	for i := range plan.Statements {
		stmt := &plan.Statements[i]
		set, err := e.executeStatement(ctx, stmt)
		if err != nil {
			return nil, err
		}
		if set.Truncated {
			result.Truncated = true
		}
		result.Sets = append(result.Sets, *set)
	}

	result.Duration = time.Since(start)
	e.logger.Info("plan executed",
		zap.Int("statements", len(plan.Statements)),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (e *Executor) executeStatement(ctx context.Context, stmt *models.PlanStatement) (*models.ResultSet, error) {
	stmtCtx, cancel := context.WithTimeout(ctx, e.cfg.StatementTimeout)
	defer cancel()

	// Fetch one row past the ceiling so truncation is detectable without a
	// second round trip.
	fetchLimit := e.cfg.MaxRows + 1

	var queryResult *warehouse.QueryResult
	err := retry.DoIfRetryable(stmtCtx, e.cfg.Retry, func() error {
		var queryErr error
		queryResult, queryErr = e.wh.Query(stmtCtx, stmt.SQL, stmt.Params, fetchLimit)
		return queryErr
	})
	if err != nil {
		return nil, e.classify(stmt.Label, err)
	}

	set := &models.ResultSet{
		Label:   stmt.Label,
		Columns: queryResult.Columns,
	}

	rows := queryResult.Rows
	if len(rows) > e.cfg.MaxRows {
		rows = rows[:e.cfg.MaxRows]
		set.Truncated = true
	}

	// Byte ceiling: keep whole rows until the budget runs out.
	for _, row := range rows {
		size := int64(approximateRowSize(row))
		if e.cfg.MaxResultBytes > 0 && set.ByteCount+size > int64(e.cfg.MaxResultBytes) && len(set.Rows) > 0 {
			set.Truncated = true
			break
		}
		set.Rows = append(set.Rows, row)
		set.ByteCount += size
	}
	set.RowCount = len(set.Rows)

	if set.Truncated {
		e.logger.Warn("result set truncated",
			zap.String("label", stmt.Label),
			zap.Int("rows_kept", set.RowCount),
			zap.Int64("bytes", set.ByteCount))
	}

	return set, nil
}

// classify maps warehouse failures onto the engine's error taxonomy.
// Timeouts are resource-limit errors; everything else is an execution error.
func (e *Executor) classify(label string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: statement %q exceeded the %s timeout",
			apperrors.ErrResourceLimit, label, e.cfg.StatementTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: statement %q: %v", apperrors.ErrExecution, label, err)
}

// approximateRowSize measures a row by its JSON encoding, which is also how
// the row leaves the engine. Unencodable values count at a flat estimate.
func approximateRowSize(row map[string]any) int {
	encoded, err := json.Marshal(row)
	if err != nil {
		return 64 * len(row)
	}
	return len(encoded)
}
