package planner

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/apperrors"
	"github.com/claimsight-ai/claimsight-engine/pkg/models"
	"github.com/claimsight-ai/claimsight-engine/pkg/registry"
	enginesql "github.com/claimsight-ai/claimsight-engine/pkg/sql"
)

func testSnapshot(t *testing.T) *registry.Snapshot {
	t.Helper()
	schema := &models.SchemaDescriptor{
		Tables: []models.TableDescriptor{
			{
				Name: "claims",
				Columns: []models.ColumnDescriptor{
					{Name: "claim_id", SemanticType: models.SemanticTypeIdentifier},
					{Name: "claim_amount", SemanticType: models.SemanticTypeMetric},
					{Name: "procedure_type", SemanticType: models.SemanticTypeCategory},
					{Name: "patient_state", SemanticType: models.SemanticTypeCategory},
					{Name: "provider_id", SemanticType: models.SemanticTypeIdentifier},
					{Name: "service_date", SemanticType: models.SemanticTypeTimestamp},
				},
			},
			{
				Name: "providers",
				Columns: []models.ColumnDescriptor{
					{Name: "provider_id", SemanticType: models.SemanticTypeIdentifier},
					{Name: "specialty", SemanticType: models.SemanticTypeCategory},
				},
			},
			{
				Name: "payments",
				Columns: []models.ColumnDescriptor{
					{Name: "payment_id", SemanticType: models.SemanticTypeIdentifier},
				},
			},
		},
		Relationships: []models.Relationship{
			{SourceTable: "claims", SourceColumn: "provider_id", TargetTable: "providers", TargetColumn: "provider_id"},
		},
	}
	snap, err := registry.Build(schema, nil)
	require.NoError(t, err)
	return snap
}

func newBuilder(t *testing.T, dialect enginesql.Dialect) *Builder {
	t.Helper()
	b, err := New(dialect, zap.NewNop())
	require.NoError(t, err)
	return b
}

func sumIntent() *models.StructuredIntent {
	return &models.StructuredIntent{
		Tables:  []string{"claims"},
		Metrics: []models.IntentMetric{{Table: "claims", Column: "claim_amount", Aggregate: models.AggSum}},
		Filters: []models.IntentFilter{
			{Table: "claims", Column: "procedure_type", Operator: models.OpEqual, Values: []string{"Virtual Consultation"}},
			{Table: "claims", Column: "service_date", Operator: models.OpBetween, Values: []string{"2026-07-01", "2026-08-01"}},
		},
		Rationale:  "sum of virtual consultation amounts in July",
		Confidence: 0.9,
	}
}

func TestBuildPlainQueryPostgres(t *testing.T) {
	b := newBuilder(t, enginesql.DialectPostgres)
	plan, err := b.Build(sumIntent(), testSnapshot(t))
	require.NoError(t, err)

	require.Len(t, plan.Statements, 1)
	stmt := plan.Statements[0]
	assert.Equal(t, "result", stmt.Label)
	assert.Equal(t,
		`SELECT SUM("claims"."claim_amount") AS "sum_claim_amount" FROM "claims" WHERE "claims"."procedure_type" = $1 AND "claims"."service_date" BETWEEN $2 AND $3`,
		stmt.SQL)
	assert.Equal(t, []any{"Virtual Consultation", "2026-07-01", "2026-08-01"}, stmt.Params)
	assert.Equal(t, "sum_claim_amount", plan.MetricName)
}

func TestBuildMSSQLPlaceholders(t *testing.T) {
	b := newBuilder(t, enginesql.DialectMSSQL)
	plan, err := b.Build(sumIntent(), testSnapshot(t))
	require.NoError(t, err)

	stmt := plan.Statements[0]
	assert.Contains(t, stmt.SQL, "[claims].[procedure_type] = @p1")
	assert.Contains(t, stmt.SQL, "BETWEEN @p2 AND @p3")
}

func TestBuildExplanationPerOperation(t *testing.T) {
	b := newBuilder(t, enginesql.DialectPostgres)
	plan, err := b.Build(sumIntent(), testSnapshot(t))
	require.NoError(t, err)

	assert.Equal(t, len(plan.Operations), len(plan.Explanation))
	// scan, two filters, one aggregate
	require.Len(t, plan.Operations, 4)
	assert.Equal(t, models.PlanOpScan, plan.Operations[0].Type)
	assert.Equal(t, models.PlanOpAggregate, plan.Operations[3].Type)
}

func TestBuildGroupByOrdersResults(t *testing.T) {
	intent := sumIntent()
	intent.GroupBy = []string{"claims.patient_state"}

	b := newBuilder(t, enginesql.DialectPostgres)
	plan, err := b.Build(intent, testSnapshot(t))
	require.NoError(t, err)

	sql := plan.Statements[0].SQL
	assert.Contains(t, sql, `GROUP BY "claims"."patient_state"`)
	assert.Contains(t, sql, `ORDER BY "claims"."patient_state"`)
	assert.Contains(t, sql, `SELECT "claims"."patient_state", SUM(`)
}

func TestBuildComparisonProducesTwoStatements(t *testing.T) {
	intent := sumIntent()
	// Drop the explicit date filter; the comparison windows bound time.
	intent.Filters = intent.Filters[:1]
	intent.Comparison = &models.ComparisonRequest{
		Current:  models.TimeWindow{Column: "service_date", Start: "2026-08-01", End: "2026-09-01"},
		Baseline: models.TimeWindow{Column: "service_date", Start: "2026-07-01", End: "2026-08-01"},
	}

	b := newBuilder(t, enginesql.DialectPostgres)
	plan, err := b.Build(intent, testSnapshot(t))
	require.NoError(t, err)

	require.Len(t, plan.Statements, 2)
	assert.Equal(t, "current", plan.Statements[0].Label)
	assert.Equal(t, "baseline", plan.Statements[1].Label)

	// Shared filter params first, then the leg's window bounds.
	assert.Equal(t, []any{"Virtual Consultation", "2026-08-01", "2026-09-01"}, plan.Statements[0].Params)
	assert.Equal(t, []any{"Virtual Consultation", "2026-07-01", "2026-08-01"}, plan.Statements[1].Params)
	assert.Contains(t, plan.Statements[0].SQL, `"claims"."service_date" >= $2 AND "claims"."service_date" < $3`)
}

func TestBuildJoinFollowsDeclaredRelationship(t *testing.T) {
	intent := sumIntent()
	intent.Tables = []string{"claims", "providers"}
	intent.Filters = append(intent.Filters, models.IntentFilter{
		Table: "providers", Column: "specialty", Operator: models.OpEqual, Values: []string{"Psychiatry"},
	})

	b := newBuilder(t, enginesql.DialectPostgres)
	plan, err := b.Build(intent, testSnapshot(t))
	require.NoError(t, err)

	assert.Contains(t, plan.Statements[0].SQL,
		`JOIN "providers" ON "claims"."provider_id" = "providers"."provider_id"`)
}

func TestBuildRejectsUndeclaredJoin(t *testing.T) {
	intent := sumIntent()
	intent.Tables = []string{"claims", "payments"}

	b := newBuilder(t, enginesql.DialectPostgres)
	_, err := b.Build(intent, testSnapshot(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no declared relationship")
}

func TestBuildRejectsUnknownWindowColumn(t *testing.T) {
	// Validation gates window columns, but a plan referencing an entity
	// outside the descriptor must never exist, so Build verifies them too.
	b := newBuilder(t, enginesql.DialectPostgres)
	intent := &models.StructuredIntent{
		Metrics: []models.IntentMetric{{Table: "claims", Column: "claim_amount", Aggregate: models.AggSum}},
		Comparison: &models.ComparisonRequest{
			Current:  models.TimeWindow{Column: "no_such_column", Start: "2026-08-01", End: "2026-09-01"},
			Baseline: models.TimeWindow{Column: "no_such_column", Start: "2026-07-01", End: "2026-08-01"},
		},
		Rationale:  "month over month",
		Confidence: 0.9,
	}

	_, err := b.Build(intent, testSnapshot(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_column")
}

func TestBuildCoercesMetricParams(t *testing.T) {
	intent := sumIntent()
	intent.Filters = append(intent.Filters, models.IntentFilter{
		Table: "claims", Column: "claim_amount", Operator: models.OpGreaterThan, Values: []string{"250.50"},
	})

	b := newBuilder(t, enginesql.DialectPostgres)
	plan, err := b.Build(intent, testSnapshot(t))
	require.NoError(t, err)
	assert.Equal(t, float64(250.5), plan.Statements[0].Params[3])
}

func TestBuildRejectsNonNumericMetricValue(t *testing.T) {
	intent := sumIntent()
	intent.Filters = append(intent.Filters, models.IntentFilter{
		Table: "claims", Column: "claim_amount", Operator: models.OpGreaterThan, Values: []string{"lots"},
	})

	b := newBuilder(t, enginesql.DialectPostgres)
	_, err := b.Build(intent, testSnapshot(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidationRejected)
}

func TestBuildScreensInjectionInParams(t *testing.T) {
	intent := sumIntent()
	intent.Filters[0].Values = []string{"' OR '1'='1"}

	b := newBuilder(t, enginesql.DialectPostgres)
	_, err := b.Build(intent, testSnapshot(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidationRejected)
}

func TestBuildIsDeterministic(t *testing.T) {
	intent := sumIntent()
	intent.GroupBy = []string{"claims.patient_state"}
	intent.Comparison = &models.ComparisonRequest{
		Current:  models.TimeWindow{Column: "service_date", Start: "2026-08-01", End: "2026-09-01"},
		Baseline: models.TimeWindow{Column: "service_date", Start: "2026-07-01", End: "2026-08-01"},
	}
	snap := testSnapshot(t)
	b := newBuilder(t, enginesql.DialectPostgres)

	first, err := b.Build(intent, snap)
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := b.Build(intent, snap)
		require.NoError(t, err)
		againJSON, err := json.Marshal(again)
		require.NoError(t, err)
		assert.Equal(t, string(firstJSON), string(againJSON))
	}
}
