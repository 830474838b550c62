// Package analyzer derives deterministic statistical findings from executed
// query results: absolute values, deltas, percentage changes, trend labels,
// and sigma-based anomaly flags against configured norm baselines.
package analyzer

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/claimsight-ai/claimsight-engine/pkg/apperrors"
	"github.com/claimsight-ai/claimsight-engine/pkg/models"
)

// Norm is the expected distribution of a metric within one category, used as
// the anomaly baseline.
type Norm struct {
	Average   float64 `yaml:"average"`
	StdDev    float64 `yaml:"std_dev"`
	MaxNormal float64 `yaml:"max_normal"`
}

// Config holds the analyzer's statistical parameters.
type Config struct {
	// TolerancePercent is the band (in percent) within which a change
	// classifies as flat.
	TolerancePercent float64
	// AnomalySigma is the standard-deviation multiple past which a value
	// flags as anomalous.
	AnomalySigma float64
	// Norms maps a category value (e.g. a procedure name) to its expected
	// metric distribution.
	Norms map[string]Norm
}

// LoadNorms reads norm baselines from a YAML file keyed by category value.
func LoadNorms(path string) (map[string]Norm, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read norms file: %v", apperrors.ErrConfiguration, err)
	}
	var doc struct {
		Norms map[string]Norm `yaml:"norms"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse norms file: %v", apperrors.ErrConfiguration, err)
	}
	for name, n := range doc.Norms {
		if n.StdDev < 0 {
			return nil, fmt.Errorf("%w: norm %q has negative std_dev", apperrors.ErrConfiguration, name)
		}
	}
	return doc.Norms, nil
}

// Analyzer computes findings. It holds no mutable state; Analyze is pure.
type Analyzer struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an Analyzer.
func New(cfg Config, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		cfg:    cfg,
		logger: logger.Named("analyzer"),
	}
}

// Analyze derives findings from an execution result. For a comparison plan it
// pairs the current and baseline sets by group key and emits delta, percent
// change, and trend findings; for a plain plan it emits value findings.
// Anomaly findings are added wherever a group key has a configured norm.
// Row order is preserved from the result sets, which the plan orders, so
// identical inputs yield identical findings.
func (a *Analyzer) Analyze(plan *models.QueryPlan, result *models.ExecutionResult) []models.Finding {
	metrics := metricColumns(plan)
	groupCols := groupColumns(plan)

	if plan.Comparison != nil {
		return a.analyzeComparison(metrics, groupCols, result)
	}
	return a.analyzePlain(metrics, groupCols, result)
}

func (a *Analyzer) analyzePlain(metrics []string, groupCols []string, result *models.ExecutionResult) []models.Finding {
	set := result.Set("result")
	if set == nil {
		return nil
	}

	var findings []models.Finding
	for _, row := range set.Rows {
		key := groupKey(row, groupCols)
		for _, metric := range metrics {
			value, ok := numericValue(row[metric])
			if !ok {
				continue
			}
			findings = append(findings, models.Finding{
				Kind:      models.FindingValue,
				Metric:    metric,
				Value:     value,
				Defined:   true,
				Statement: valueStatement(metric, value, key),
				Formatted: formatNumber(value),
				GroupKey:  key,
			})
			if anomaly := a.checkAnomaly(metric, key, value); anomaly != nil {
				findings = append(findings, *anomaly)
			}
		}
	}
	return findings
}

func (a *Analyzer) analyzeComparison(metrics []string, groupCols []string, result *models.ExecutionResult) []models.Finding {
	current := result.Set("current")
	baseline := result.Set("baseline")
	if current == nil || baseline == nil {
		return nil
	}

	baselineByKey := make(map[string]map[string]any, len(baseline.Rows))
	for _, row := range baseline.Rows {
		baselineByKey[groupKey(row, groupCols)] = row
	}

	var findings []models.Finding
	for _, row := range current.Rows {
		key := groupKey(row, groupCols)
		baseRow := baselineByKey[key]

		for _, metric := range metrics {
			newValue, ok := numericValue(row[metric])
			if !ok {
				continue
			}

			var oldValue float64
			var hasBaseline bool
			if baseRow != nil {
				oldValue, hasBaseline = numericValue(baseRow[metric])
			}
			if !hasBaseline {
				findings = append(findings, models.Finding{
					Kind:      models.FindingValue,
					Metric:    metric,
					Value:     newValue,
					Defined:   true,
					Statement: valueStatement(metric, newValue, key) + " (no baseline row to compare against)",
					Formatted: formatNumber(newValue),
					GroupKey:  key,
				})
				continue
			}

			findings = append(findings, a.compare(metric, key, oldValue, newValue)...)
			if anomaly := a.checkAnomaly(metric, key, newValue); anomaly != nil {
				findings = append(findings, *anomaly)
			}
		}
	}
	return findings
}

// compare emits the delta, percent-change, and trend findings for one metric
// in one group.
func (a *Analyzer) compare(metric, key string, oldValue, newValue float64) []models.Finding {
	baselineCopy := oldValue
	delta := newValue - oldValue

	findings := []models.Finding{{
		Kind:      models.FindingDelta,
		Metric:    metric,
		Value:     delta,
		Defined:   true,
		Baseline:  &baselineCopy,
		Statement: fmt.Sprintf("%s changed by %s versus the baseline window%s", metric, formatSigned(delta), inGroup(key)),
		Formatted: formatSigned(delta),
		GroupKey:  key,
	}}

	// Percent change is undefined against a zero baseline.
	if oldValue == 0 {
		findings = append(findings, models.Finding{
			Kind:      models.FindingPercentChange,
			Metric:    metric,
			Defined:   false,
			Baseline:  &baselineCopy,
			Statement: fmt.Sprintf("%s percent change is N/A: the baseline value is zero%s", metric, inGroup(key)),
			Formatted: "N/A",
			GroupKey:  key,
		})
		return findings
	}

	percent := (newValue - oldValue) / oldValue * 100
	trend := a.classifyTrend(percent)

	findings = append(findings,
		models.Finding{
			Kind:      models.FindingPercentChange,
			Metric:    metric,
			Value:     percent,
			Defined:   true,
			Baseline:  &baselineCopy,
			Statement: fmt.Sprintf("%s moved %s versus the baseline window%s", metric, formatPercent(percent), inGroup(key)),
			Formatted: formatPercent(percent),
			GroupKey:  key,
		},
		models.Finding{
			Kind:      models.FindingTrend,
			Metric:    metric,
			Value:     percent,
			Defined:   true,
			Baseline:  &baselineCopy,
			Trend:     trend,
			Statement: fmt.Sprintf("%s is %s%s", metric, trend, inGroup(key)),
			Formatted: string(trend),
			GroupKey:  key,
		})
	return findings
}

// classifyTrend labels a percent change, treating anything inside the
// tolerance band as flat.
func (a *Analyzer) classifyTrend(percent float64) models.TrendLabel {
	if math.Abs(percent) <= a.cfg.TolerancePercent {
		return models.TrendFlat
	}
	if percent > 0 {
		return models.TrendIncreasing
	}
	return models.TrendDecreasing
}

// checkAnomaly flags a value sitting past the configured sigma from its
// group's norm baseline. Groups without a norm produce no finding.
func (a *Analyzer) checkAnomaly(metric, key string, value float64) *models.Finding {
	norm, ok := a.cfg.Norms[key]
	if !ok || norm.StdDev == 0 {
		return nil
	}

	sigma := (value - norm.Average) / norm.StdDev
	if math.Abs(sigma) < a.cfg.AnomalySigma {
		return nil
	}

	return &models.Finding{
		Kind:    models.FindingAnomaly,
		Metric:  metric,
		Value:   value,
		Defined: true,
		Sigma:   sigma,
		Statement: fmt.Sprintf("%s of %s sits %.1f standard deviations from the %s baseline (avg %s)",
			metric, formatNumber(value), sigma, key, formatNumber(norm.Average)),
		Formatted: fmt.Sprintf("%.1fσ", sigma),
		GroupKey:  key,
	}
}

// metricColumns returns the aggregate output names from the plan, in
// operation order.
func metricColumns(plan *models.QueryPlan) []string {
	var metrics []string
	for _, op := range plan.Operations {
		if op.Type == models.PlanOpAggregate && op.Aggregate != nil {
			metrics = append(metrics, op.Aggregate.OutputName)
		}
	}
	return metrics
}

// groupColumns returns the bare column names of the plan's grouping, matching
// the result-set column names.
func groupColumns(plan *models.QueryPlan) []string {
	var cols []string
	for _, op := range plan.Operations {
		if op.Type == models.PlanOpGroup {
			for _, g := range op.GroupBy {
				if idx := strings.IndexByte(g, '.'); idx >= 0 {
					cols = append(cols, g[idx+1:])
				} else {
					cols = append(cols, g)
				}
			}
		}
	}
	return cols
}

// groupKey joins a row's group column values into a stable key. Ungrouped
// results share the empty key.
func groupKey(row map[string]any, groupCols []string) string {
	if len(groupCols) == 0 {
		return ""
	}
	parts := make([]string, len(groupCols))
	for i, col := range groupCols {
		parts[i] = fmt.Sprintf("%v", row[col])
	}
	return strings.Join(parts, "/")
}

// numericValue coerces a warehouse value to float64. Drivers return numerics
// as various Go types depending on the column's declared type.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func inGroup(key string) string {
	if key == "" {
		return ""
	}
	return fmt.Sprintf(" for %s", key)
}

func valueStatement(metric string, value float64, key string) string {
	return fmt.Sprintf("%s is %s%s", metric, formatNumber(value), inGroup(key))
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatSigned(v float64) string {
	if v >= 0 {
		return "+" + formatNumber(v)
	}
	return formatNumber(v)
}

func formatPercent(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+%.1f%%", v)
	}
	return fmt.Sprintf("%.1f%%", v)
}
