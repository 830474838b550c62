// Package validator checks structured intents against the schema and
// business-rule set. It is the sole gate between intent and plan: no plan is
// ever built for an intent this package rejects.
package validator

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/models"
	"github.com/claimsight-ai/claimsight-engine/pkg/registry"
)

// completenessRuleID identifies the implicit rule that rejects incomplete or
// low-confidence intents. It is not declared in the rules file.
const completenessRuleID = "COMPLETENESS"

// Config holds the validator's product parameters.
type Config struct {
	// ConfidenceThreshold rejects intents whose model-reported confidence is
	// below it. Configurable; there is no universally right default.
	ConfidenceThreshold float64
}

// Validator evaluates business rules against structured intents.
type Validator struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Validator.
func New(cfg Config, logger *zap.Logger) *Validator {
	return &Validator{
		cfg:    cfg,
		logger: logger.Named("validator"),
	}
}

// Validate evaluates every rule whose scope intersects the intent. On
// acceptance it returns the intent with all entity references resolved to
// canonical names; the input intent is never mutated. Blocking violations
// are reported all together, in rule declaration order, so the clarification
// dialogue is reproducible.
func (v *Validator) Validate(intent *models.StructuredIntent, snap *registry.Snapshot) (*models.ValidationResult, *models.StructuredIntent) {
	result := &models.ValidationResult{}

	// Completeness and reference resolution come first: rules cannot be
	// evaluated meaningfully against entities that don't resolve.
	resolved, refViolations := v.resolveReferences(intent, snap)
	result.Violations = append(result.Violations, refViolations...)
	result.Violations = append(result.Violations, v.checkCompleteness(intent)...)
	result.Violations = append(result.Violations, v.checkTypeCompatibility(resolved, snap)...)

	if len(result.Violations) == 0 {
		blocking, advisory := v.evaluateRules(resolved, snap)
		result.Violations = append(result.Violations, blocking...)
		result.Warnings = advisory
	}

	result.Accepted = len(result.Violations) == 0
	if !result.Accepted {
		withClarification := 0
		seen := make(map[string]bool)
		for _, viol := range result.Violations {
			if viol.Clarification == "" {
				continue
			}
			withClarification++
			if !seen[viol.Clarification] {
				seen[viol.Clarification] = true
				result.ClarificationQuestions = append(result.ClarificationQuestions, viol.Clarification)
			}
		}
		result.ClarityScore = float64(withClarification) / float64(len(result.Violations))
		return result, nil
	}

	return result, resolved
}

// resolveReferences maps every table/column reference through the snapshot's
// synonym index, returning a resolved copy. Unresolvable references become
// blocking violations with "did you mean" clarifications where derivable.
func (v *Validator) resolveReferences(intent *models.StructuredIntent, snap *registry.Snapshot) (*models.StructuredIntent, []models.RuleViolation) {
	var violations []models.RuleViolation
	resolved := *intent
	resolved.Tables = make([]string, len(intent.Tables))
	resolved.Metrics = append([]models.IntentMetric(nil), intent.Metrics...)
	resolved.Filters = append([]models.IntentFilter(nil), intent.Filters...)
	resolved.GroupBy = append([]string(nil), intent.GroupBy...)

	unknownTable := func(name string) {
		viol := models.RuleViolation{
			RuleID:      completenessRuleID,
			Severity:    models.SeverityBlocking,
			Explanation: fmt.Sprintf("the schema has no table matching %q", name),
		}
		if suggestions := snap.SuggestTable(name); len(suggestions) > 0 {
			viol.Clarification = fmt.Sprintf("Did you mean one of: %s?", strings.Join(suggestions, ", "))
		}
		violations = append(violations, viol)
	}

	resolveColumn := func(table, column, role string) string {
		canonical, ok := snap.ResolveColumn(table, column)
		if !ok {
			violations = append(violations, models.RuleViolation{
				RuleID:      completenessRuleID,
				Severity:    models.SeverityBlocking,
				Explanation: fmt.Sprintf("table %q has no column matching %q (%s)", table, column, role),
				Clarification: fmt.Sprintf("Which column of %s did you mean by %q?", table, column),
			})
			return column
		}
		return canonical
	}

	for i, t := range intent.Tables {
		canonical, ok := snap.ResolveTable(t)
		if !ok {
			unknownTable(t)
			resolved.Tables[i] = t
			continue
		}
		resolved.Tables[i] = canonical
	}

	for i := range resolved.Metrics {
		m := &resolved.Metrics[i]
		canonical, ok := snap.ResolveTable(m.Table)
		if !ok {
			unknownTable(m.Table)
			continue
		}
		m.Table = canonical
		m.Column = resolveColumn(canonical, m.Column, "metric")
	}

	for i := range resolved.Filters {
		f := &resolved.Filters[i]
		canonical, ok := snap.ResolveTable(f.Table)
		if !ok {
			unknownTable(f.Table)
			continue
		}
		f.Table = canonical
		f.Column = resolveColumn(canonical, f.Column, "filter")
	}

	for i, g := range resolved.GroupBy {
		parts := strings.SplitN(g, ".", 2)
		if len(parts) != 2 {
			violations = append(violations, models.RuleViolation{
				RuleID:      completenessRuleID,
				Severity:    models.SeverityBlocking,
				Explanation: fmt.Sprintf("group_by reference %q is not table.column", g),
			})
			continue
		}
		canonical, ok := snap.ResolveTable(parts[0])
		if !ok {
			unknownTable(parts[0])
			continue
		}
		col := resolveColumn(canonical, parts[1], "group_by")
		resolved.GroupBy[i] = canonical + "." + col
	}

	if resolved.Comparison != nil {
		// Comparison windows bind to the primary table: the first metric's
		// table, which is also the table the plan scans. An intent may name
		// the table through its metrics alone, so Tables cannot be the anchor.
		cmp := *resolved.Comparison
		if primary := primaryTable(&resolved); primary != "" && snap.Schema.Table(primary) != nil {
			origCurrent := cmp.Current.Column
			cmp.Current.Column = resolveColumn(primary, cmp.Current.Column, "comparison window")
			if cmp.Baseline.Column == origCurrent {
				// Both legs window the same column; resolve and report once.
				cmp.Baseline.Column = cmp.Current.Column
			} else {
				cmp.Baseline.Column = resolveColumn(primary, cmp.Baseline.Column, "comparison window")
			}
		}
		resolved.Comparison = &cmp
	}

	return &resolved, violations
}

// primaryTable returns the canonical table a plan for this intent would scan
// first, or "" when nothing resolves. Mirrors the planner's choice.
func primaryTable(intent *models.StructuredIntent) string {
	if len(intent.Metrics) > 0 {
		return intent.Metrics[0].Table
	}
	if len(intent.Tables) > 0 {
		return intent.Tables[0]
	}
	return ""
}

// checkCompleteness applies the implicit completeness rule: a metric must be
// named, and the model's own confidence must clear the configured threshold.
func (v *Validator) checkCompleteness(intent *models.StructuredIntent) []models.RuleViolation {
	var violations []models.RuleViolation

	if len(intent.Metrics) == 0 {
		violations = append(violations, models.RuleViolation{
			RuleID:        completenessRuleID,
			Severity:      models.SeverityBlocking,
			Explanation:   "the question names no measurable metric",
			Clarification: "Which metric should be computed (for example a sum, average, or count of a numeric column)?",
		})
	}

	if intent.Confidence < v.cfg.ConfidenceThreshold {
		violations = append(violations, models.RuleViolation{
			RuleID:   completenessRuleID,
			Severity: models.SeverityBlocking,
			Explanation: fmt.Sprintf("the reasoning service reported confidence %.2f, below the %.2f threshold",
				intent.Confidence, v.cfg.ConfidenceThreshold),
			Clarification: "Could you rephrase the question more specifically?",
		})
	}

	return violations
}

// checkTypeCompatibility verifies that requested operations make sense for the
// columns' semantic types: numeric aggregates need metric columns (count works
// on anything) and comparison windows need a timestamp column. References that
// did not resolve are skipped; resolution already reported them.
func (v *Validator) checkTypeCompatibility(intent *models.StructuredIntent, snap *registry.Snapshot) []models.RuleViolation {
	var violations []models.RuleViolation

	for _, m := range intent.Metrics {
		if m.Aggregate == models.AggCount {
			continue
		}
		table := snap.Schema.Table(m.Table)
		if table == nil {
			continue
		}
		col := table.Column(m.Column)
		if col == nil {
			continue
		}
		if col.SemanticType != models.SemanticTypeMetric {
			violations = append(violations, models.RuleViolation{
				RuleID:   completenessRuleID,
				Severity: models.SeverityBlocking,
				Explanation: fmt.Sprintf("%s cannot be computed over %s.%s: it is a %s column, not a numeric metric",
					m.Aggregate, m.Table, m.Column, col.SemanticType),
				Clarification: fmt.Sprintf("Which numeric column should the %s cover?", m.Aggregate),
			})
		}
	}

	if cmp := intent.Comparison; cmp != nil {
		primary := primaryTable(intent)
		if table := snap.Schema.Table(primary); table != nil {
			checked := make(map[string]bool, 2)
			for _, window := range []models.TimeWindow{cmp.Current, cmp.Baseline} {
				if checked[window.Column] {
					continue
				}
				checked[window.Column] = true
				col := table.Column(window.Column)
				if col == nil {
					continue
				}
				if col.SemanticType != models.SemanticTypeTimestamp {
					violations = append(violations, models.RuleViolation{
						RuleID:   completenessRuleID,
						Severity: models.SeverityBlocking,
						Explanation: fmt.Sprintf("comparison windows require a timestamp column; %s.%s is a %s column",
							primary, window.Column, col.SemanticType),
						Clarification: fmt.Sprintf("Which date column of %s should the comparison window?", primary),
					})
				}
			}
		}
	}

	return violations
}

// evaluateRules runs every in-scope declared rule. Blocking and advisory
// rules are partitioned; both lists preserve declaration order. A rule whose
// evaluation errors (e.g. it references a column missing from this snapshot)
// is a configuration defect for that rule only: logged and skipped, never
// treated as passed.
func (v *Validator) evaluateRules(intent *models.StructuredIntent, snap *registry.Snapshot) (blocking, advisory []models.RuleViolation) {
	for _, rule := range snap.RulesInScope(intent) {
		violated, explanation, err := v.evaluateRule(&rule, intent, snap)
		if err != nil {
			v.logger.Error("rule evaluation failed, skipping rule",
				zap.String("rule_id", rule.ID),
				zap.Error(err))
			continue
		}
		if !violated {
			continue
		}

		viol := models.RuleViolation{
			RuleID:        rule.ID,
			Severity:      rule.Severity,
			Explanation:   explanation,
			Clarification: rule.Clarification,
		}
		if rule.Severity == models.SeverityBlocking {
			blocking = append(blocking, viol)
		} else {
			advisory = append(advisory, viol)
		}
	}
	return blocking, advisory
}

func (v *Validator) evaluateRule(rule *models.BusinessRule, intent *models.StructuredIntent, snap *registry.Snapshot) (bool, string, error) {
	table := snap.Schema.Table(rule.Scope.Table)
	if table == nil {
		return false, "", fmt.Errorf("rule %s scoped to table %q absent from schema", rule.ID, rule.Scope.Table)
	}

	switch rule.Kind {
	case models.RuleKindRequiredFilter:
		return v.evaluateRequiredFilter(rule, intent, table)
	case models.RuleKindValueRange:
		return v.evaluateValueRange(rule, intent)
	case models.RuleKindEnum:
		return v.evaluateEnum(rule, intent, table)
	case models.RuleKindForbiddenCombination:
		return v.evaluateForbiddenCombination(rule, intent)
	case models.RuleKindForbiddenJoin:
		return v.evaluateForbiddenJoin(rule, intent)
	case models.RuleKindMetricThreshold:
		return v.evaluateMetricThreshold(rule, intent)
	default:
		return false, "", fmt.Errorf("rule %s has unknown kind %q", rule.ID, rule.Kind)
	}
}

func (v *Validator) evaluateRequiredFilter(rule *models.BusinessRule, intent *models.StructuredIntent, table *models.TableDescriptor) (bool, string, error) {
	if table.Column(rule.RequiredFilterColumn) == nil {
		return false, "", fmt.Errorf("required filter column %q absent from schema", rule.RequiredFilterColumn)
	}

	if intent.FilterOn(rule.Scope.Table, rule.RequiredFilterColumn) != nil {
		return false, "", nil
	}
	// A comparison over the column satisfies the requirement: each leg is
	// a time-window restriction on it.
	if cmp := intent.Comparison; cmp != nil && cmp.Current.Column == rule.RequiredFilterColumn {
		return false, "", nil
	}

	return true, fmt.Sprintf("queries on %s require a filter on %s", rule.Scope.Table, rule.RequiredFilterColumn), nil
}

func (v *Validator) evaluateValueRange(rule *models.BusinessRule, intent *models.StructuredIntent) (bool, string, error) {
	filter := intent.FilterOn(rule.Scope.Table, rule.Scope.Column)
	if filter == nil {
		return false, "", nil
	}

	for _, raw := range filter.Values {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return true, fmt.Sprintf("%s.%s expects a numeric value, got %q", rule.Scope.Table, rule.Scope.Column, raw), nil
		}
		if rule.Min != nil && value < *rule.Min {
			return true, fmt.Sprintf("%s.%s value %v is below the allowed minimum %v", rule.Scope.Table, rule.Scope.Column, value, *rule.Min), nil
		}
		if rule.Max != nil && value > *rule.Max {
			return true, fmt.Sprintf("%s.%s value %v is above the allowed maximum %v", rule.Scope.Table, rule.Scope.Column, value, *rule.Max), nil
		}
	}
	return false, "", nil
}

func (v *Validator) evaluateEnum(rule *models.BusinessRule, intent *models.StructuredIntent, table *models.TableDescriptor) (bool, string, error) {
	col := table.Column(rule.Scope.Column)
	if col == nil {
		return false, "", fmt.Errorf("enum column %q absent from schema", rule.Scope.Column)
	}
	if len(col.AllowedValues) == 0 {
		return false, "", fmt.Errorf("enum column %q declares no allowed values", rule.Scope.Column)
	}

	filter := intent.FilterOn(rule.Scope.Table, rule.Scope.Column)
	if filter == nil {
		return false, "", nil
	}

	allowed := make(map[string]bool, len(col.AllowedValues))
	for _, val := range col.AllowedValues {
		allowed[val] = true
	}
	for _, val := range filter.Values {
		if !allowed[val] {
			return true, fmt.Sprintf("%q is not a valid value for %s.%s (allowed: %s)",
				val, rule.Scope.Table, rule.Scope.Column, strings.Join(col.AllowedValues, ", ")), nil
		}
	}
	return false, "", nil
}

func (v *Validator) evaluateForbiddenCombination(rule *models.BusinessRule, intent *models.StructuredIntent) (bool, string, error) {
	var matched []string
	for _, member := range rule.Combination {
		filter := intent.FilterOn(rule.Scope.Table, member.Column)
		if filter == nil {
			return false, "", nil
		}
		found := false
		for _, val := range filter.Values {
			if val == member.Value {
				found = true
				break
			}
		}
		if !found {
			return false, "", nil
		}
		matched = append(matched, fmt.Sprintf("%s=%s", member.Column, member.Value))
	}
	return true, fmt.Sprintf("the combination %s is not permitted: %s", strings.Join(matched, " with "), rule.Description), nil
}

func (v *Validator) evaluateForbiddenJoin(rule *models.BusinessRule, intent *models.StructuredIntent) (bool, string, error) {
	if intent.ReferencesTable(rule.Scope.Table) && intent.ReferencesTable(rule.ForbiddenJoinTable) {
		return true, fmt.Sprintf("joining %s with %s is not permitted", rule.Scope.Table, rule.ForbiddenJoinTable), nil
	}
	return false, "", nil
}

func (v *Validator) evaluateMetricThreshold(rule *models.BusinessRule, intent *models.StructuredIntent) (bool, string, error) {
	categoryFilter := intent.FilterOn(rule.Scope.Table, rule.ThresholdCategoryColumn)
	metricFilter := intent.FilterOn(rule.Scope.Table, rule.Scope.Column)
	if categoryFilter == nil || metricFilter == nil {
		return false, "", nil
	}

	for _, category := range categoryFilter.Values {
		threshold, ok := rule.Thresholds[category]
		if !ok {
			continue
		}
		for _, raw := range metricFilter.Values {
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			if value > threshold {
				return true, fmt.Sprintf("%s value %v exceeds the %v threshold for %s",
					rule.Scope.Column, value, threshold, category), nil
			}
		}
	}
	return false, "", nil
}
