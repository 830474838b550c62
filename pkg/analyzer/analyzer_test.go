package analyzer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/apperrors"
	"github.com/claimsight-ai/claimsight-engine/pkg/models"
)

func testAnalyzer(norms map[string]Norm) *Analyzer {
	return New(Config{
		TolerancePercent: 5.0,
		AnomalySigma:     2.0,
		Norms:            norms,
	}, zap.NewNop())
}

func sumPlan() *models.QueryPlan {
	return &models.QueryPlan{
		Operations: []models.PlanOperation{
			{Type: models.PlanOpScan, Table: "claims"},
			{Type: models.PlanOpAggregate, Aggregate: &models.AggregateSpec{
				Table: "claims", Column: "claim_amount", Function: models.AggSum, OutputName: "sum_claim_amount",
			}},
		},
		MetricName: "sum_claim_amount",
	}
}

func comparisonPlan() *models.QueryPlan {
	plan := sumPlan()
	plan.Comparison = &models.ComparisonRequest{
		Current:  models.TimeWindow{Column: "service_date", Start: "2026-08-01", End: "2026-09-01"},
		Baseline: models.TimeWindow{Column: "service_date", Start: "2026-07-01", End: "2026-08-01"},
	}
	return plan
}

func comparisonResult(current, baseline float64) *models.ExecutionResult {
	return &models.ExecutionResult{
		Sets: []models.ResultSet{
			{Label: "current", Columns: []string{"sum_claim_amount"},
				Rows: []map[string]any{{"sum_claim_amount": current}}, RowCount: 1},
			{Label: "baseline", Columns: []string{"sum_claim_amount"},
				Rows: []map[string]any{{"sum_claim_amount": baseline}}, RowCount: 1},
		},
	}
}

func findingOfKind(t *testing.T, findings []models.Finding, kind models.FindingKind) *models.Finding {
	t.Helper()
	for i := range findings {
		if findings[i].Kind == kind {
			return &findings[i]
		}
	}
	t.Fatalf("no %s finding in %v", kind, findings)
	return nil
}

func TestAnalyzePercentChange(t *testing.T) {
	a := testAnalyzer(nil)
	findings := a.Analyze(comparisonPlan(), comparisonResult(150, 100))

	pct := findingOfKind(t, findings, models.FindingPercentChange)
	assert.True(t, pct.Defined)
	assert.InDelta(t, 50.0, pct.Value, 1e-9)
	assert.Equal(t, "+50.0%", pct.Formatted)

	delta := findingOfKind(t, findings, models.FindingDelta)
	assert.InDelta(t, 50.0, delta.Value, 1e-9)
	require.NotNil(t, delta.Baseline)
	assert.InDelta(t, 100.0, *delta.Baseline, 1e-9)
}

func TestAnalyzeZeroBaselineIsUndefined(t *testing.T) {
	a := testAnalyzer(nil)
	findings := a.Analyze(comparisonPlan(), comparisonResult(150, 0))

	pct := findingOfKind(t, findings, models.FindingPercentChange)
	assert.False(t, pct.Defined)
	assert.Equal(t, "N/A", pct.Formatted)
	assert.Contains(t, pct.Statement, "baseline value is zero")

	// The delta is still defined.
	delta := findingOfKind(t, findings, models.FindingDelta)
	assert.True(t, delta.Defined)
	assert.InDelta(t, 150.0, delta.Value, 1e-9)
}

func TestAnalyzeTrendClassification(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		baseline float64
		want     models.TrendLabel
	}{
		{"within tolerance is flat", 103, 100, models.TrendFlat},
		{"above tolerance increases", 120, 100, models.TrendIncreasing},
		{"below tolerance decreases", 80, 100, models.TrendDecreasing},
		{"boundary is flat", 105, 100, models.TrendFlat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAnalyzer(nil)
			findings := a.Analyze(comparisonPlan(), comparisonResult(tt.current, tt.baseline))
			trend := findingOfKind(t, findings, models.FindingTrend)
			assert.Equal(t, tt.want, trend.Trend)
		})
	}
}

func TestAnalyzePlainValueFindings(t *testing.T) {
	a := testAnalyzer(nil)
	result := &models.ExecutionResult{
		Sets: []models.ResultSet{{
			Label:   "result",
			Columns: []string{"sum_claim_amount"},
			Rows:    []map[string]any{{"sum_claim_amount": float64(1234)}},
		}},
	}

	findings := a.Analyze(sumPlan(), result)
	require.Len(t, findings, 1)
	assert.Equal(t, models.FindingValue, findings[0].Kind)
	assert.Equal(t, "1234", findings[0].Formatted)
}

func TestAnalyzeGroupedComparisonPairsByKey(t *testing.T) {
	plan := comparisonPlan()
	plan.Operations = append(plan.Operations, models.PlanOperation{
		Type: models.PlanOpGroup, GroupBy: []string{"claims.patient_state"},
	})

	result := &models.ExecutionResult{
		Sets: []models.ResultSet{
			{Label: "current", Rows: []map[string]any{
				{"patient_state": "CA", "sum_claim_amount": float64(200)},
				{"patient_state": "NY", "sum_claim_amount": float64(300)},
			}},
			{Label: "baseline", Rows: []map[string]any{
				{"patient_state": "CA", "sum_claim_amount": float64(100)},
			}},
		},
	}

	a := testAnalyzer(nil)
	findings := a.Analyze(plan, result)

	var caPct, nyValue *models.Finding
	for i := range findings {
		f := &findings[i]
		if f.GroupKey == "CA" && f.Kind == models.FindingPercentChange {
			caPct = f
		}
		if f.GroupKey == "NY" && f.Kind == models.FindingValue {
			nyValue = f
		}
	}

	require.NotNil(t, caPct, "CA has a baseline row, so percent change exists")
	assert.InDelta(t, 100.0, caPct.Value, 1e-9)

	require.NotNil(t, nyValue, "NY has no baseline row, so only the value is reported")
	assert.Contains(t, nyValue.Statement, "no baseline row")
}

func TestAnalyzeAnomalySigma(t *testing.T) {
	norms := map[string]Norm{
		"Virtual Consultation": {Average: 150, StdDev: 100, MaxNormal: 450},
	}
	plan := sumPlan()
	plan.Operations = append(plan.Operations, models.PlanOperation{
		Type: models.PlanOpGroup, GroupBy: []string{"claims.procedure_type"},
	})

	result := &models.ExecutionResult{
		Sets: []models.ResultSet{{
			Label: "result",
			Rows: []map[string]any{
				{"procedure_type": "Virtual Consultation", "sum_claim_amount": float64(600)},
			},
		}},
	}

	a := testAnalyzer(norms)
	findings := a.Analyze(plan, result)

	anomaly := findingOfKind(t, findings, models.FindingAnomaly)
	assert.InDelta(t, 4.5, anomaly.Sigma, 1e-9)
	assert.Equal(t, "Virtual Consultation", anomaly.GroupKey)
}

func TestAnalyzeWithinSigmaIsNotAnomalous(t *testing.T) {
	norms := map[string]Norm{
		"Virtual Consultation": {Average: 150, StdDev: 100, MaxNormal: 450},
	}
	plan := sumPlan()
	plan.Operations = append(plan.Operations, models.PlanOperation{
		Type: models.PlanOpGroup, GroupBy: []string{"claims.procedure_type"},
	})

	result := &models.ExecutionResult{
		Sets: []models.ResultSet{{
			Label: "result",
			Rows: []map[string]any{
				{"procedure_type": "Virtual Consultation", "sum_claim_amount": float64(250)},
			},
		}},
	}

	a := testAnalyzer(norms)
	for _, f := range a.Analyze(plan, result) {
		assert.NotEqual(t, models.FindingAnomaly, f.Kind)
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	a := testAnalyzer(map[string]Norm{"CA": {Average: 100, StdDev: 50}})
	plan := comparisonPlan()
	result := comparisonResult(150, 100)

	first := a.Analyze(plan, result)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, a.Analyze(plan, result))
	}
}

func TestLoadNorms(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "norms.yaml")
	content := `norms:
  Virtual Consultation:
    average: 150
    std_dev: 100
    max_normal: 450
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	norms, err := LoadNorms(path)
	require.NoError(t, err)
	assert.Equal(t, Norm{Average: 150, StdDev: 100, MaxNormal: 450}, norms["Virtual Consultation"])
}

func TestLoadNormsRejectsNegativeStdDev(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "norms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("norms:\n  X:\n    std_dev: -1\n"), 0o644))

	_, err := LoadNorms(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}
