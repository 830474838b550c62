// Package planner deterministically compiles validated intents into typed,
// parameterized query plans. No free-text reasoning happens here: given the
// same intent and schema snapshot, the output is byte-identical.
package planner

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/apperrors"
	"github.com/claimsight-ai/claimsight-engine/pkg/models"
	"github.com/claimsight-ai/claimsight-engine/pkg/registry"
	enginesql "github.com/claimsight-ai/claimsight-engine/pkg/sql"
)

// Builder compiles validated intents for one warehouse dialect.
type Builder struct {
	dialect enginesql.Dialect
	logger  *zap.Logger
}

// New creates a Builder for the given dialect.
func New(dialect enginesql.Dialect, logger *zap.Logger) (*Builder, error) {
	if !enginesql.IsValidDialect(dialect) {
		return nil, fmt.Errorf("%w: unknown warehouse dialect %q", apperrors.ErrConfiguration, dialect)
	}
	return &Builder{
		dialect: dialect,
		logger:  logger.Named("planner"),
	}, nil
}

// Build compiles a validated intent into a QueryPlan. The intent must have
// passed validation against the same snapshot; Build trusts canonical entity
// names but still verifies every reference against the schema, since a plan
// referencing an entity outside the descriptor must never exist.
func (b *Builder) Build(intent *models.StructuredIntent, snap *registry.Snapshot) (*models.QueryPlan, error) {
	if len(intent.Metrics) == 0 {
		return nil, fmt.Errorf("intent carries no metrics; validation must gate this")
	}

	plan := &models.QueryPlan{Comparison: intent.Comparison}

	primary := intent.Metrics[0].Table
	if snap.Schema.Table(primary) == nil {
		return nil, fmt.Errorf("plan references table %q absent from schema", primary)
	}

	// Scan + joins over the referenced table set, in first-reference order.
	tables := referencedTables(intent, primary)
	plan.Operations = append(plan.Operations, models.PlanOperation{
		Type:  models.PlanOpScan,
		Table: primary,
	})
	plan.Explanation = append(plan.Explanation, fmt.Sprintf("Read rows from %s.", primary))

	joined := []string{primary}
	for _, table := range tables[1:] {
		join, err := b.joinFor(joined, table, snap)
		if err != nil {
			return nil, err
		}
		plan.Operations = append(plan.Operations, models.PlanOperation{
			Type: models.PlanOpJoin,
			Join: join,
		})
		plan.Explanation = append(plan.Explanation, fmt.Sprintf(
			"Join %s on %s.%s = %s.%s (declared relationship).",
			table, join.LeftTable, join.LeftColumn, join.RightTable, join.RightColumn))
		joined = append(joined, table)
	}

	// Filters, parameterized in intent order.
	var params []any
	for i := range intent.Filters {
		f := &intent.Filters[i]
		col := columnDescriptor(snap, f.Table, f.Column)
		if col == nil {
			return nil, fmt.Errorf("plan references column %s.%s absent from schema", f.Table, f.Column)
		}

		indexes := make([]int, 0, len(f.Values))
		for _, raw := range f.Values {
			value, err := coerceValue(raw, col.SemanticType)
			if err != nil {
				return nil, fmt.Errorf("%w: filter on %s.%s: %v", apperrors.ErrValidationRejected, f.Table, f.Column, err)
			}
			params = append(params, value)
			indexes = append(indexes, len(params)-1)
		}

		plan.Operations = append(plan.Operations, models.PlanOperation{
			Type: models.PlanOpFilter,
			Filter: &models.FilterSpec{
				Table:        f.Table,
				Column:       f.Column,
				Operator:     f.Operator,
				ParamIndexes: indexes,
			},
		})
		plan.Explanation = append(plan.Explanation, fmt.Sprintf(
			"Keep rows where %s.%s %s %s.", f.Table, f.Column, f.Operator, strings.Join(f.Values, ", ")))
	}

	// Comparison windows: one window operation per leg, each compiled into
	// its own statement below.
	if cmp := intent.Comparison; cmp != nil {
		for _, leg := range []struct {
			label  string
			window models.TimeWindow
		}{
			{"current", cmp.Current},
			{"baseline", cmp.Baseline},
		} {
			window := leg.window
			if columnDescriptor(snap, primary, window.Column) == nil {
				return nil, fmt.Errorf("plan references column %s.%s absent from schema", primary, window.Column)
			}
			plan.Operations = append(plan.Operations, models.PlanOperation{
				Type:   models.PlanOpWindow,
				Window: &window,
			})
			plan.Explanation = append(plan.Explanation, fmt.Sprintf(
				"Restrict the %s period to %s in [%s, %s).", leg.label, window.Column, window.Start, window.End))
		}
	}

	if len(intent.GroupBy) > 0 {
		plan.Operations = append(plan.Operations, models.PlanOperation{
			Type:    models.PlanOpGroup,
			GroupBy: intent.GroupBy,
		})
		plan.Explanation = append(plan.Explanation, fmt.Sprintf(
			"Group rows by %s.", strings.Join(intent.GroupBy, ", ")))
	}

	for i := range intent.Metrics {
		m := &intent.Metrics[i]
		if columnDescriptor(snap, m.Table, m.Column) == nil {
			return nil, fmt.Errorf("plan references column %s.%s absent from schema", m.Table, m.Column)
		}
		spec := &models.AggregateSpec{
			Table:      m.Table,
			Column:     m.Column,
			Function:   m.Aggregate,
			OutputName: fmt.Sprintf("%s_%s", m.Aggregate, m.Column),
		}
		plan.Operations = append(plan.Operations, models.PlanOperation{
			Type:      models.PlanOpAggregate,
			Aggregate: spec,
		})
		plan.Explanation = append(plan.Explanation, fmt.Sprintf(
			"Compute %s of %s.%s as %s.", m.Aggregate, m.Table, m.Column, spec.OutputName))
		if i == 0 {
			plan.MetricName = spec.OutputName
		}
	}

	if err := b.renderStatements(plan, intent, params); err != nil {
		return nil, err
	}

	// Parameter values originate from the reasoning service and are
	// untrusted; screen string parameters even though they are always bound.
	for _, stmt := range plan.Statements {
		if flagged := enginesql.CheckAllParameters(stmt.Params); len(flagged) > 0 {
			b.logger.Warn("plan parameter failed injection screening",
				zap.Int("param_index", flagged[0].ParamIndex),
				zap.String("fingerprint", flagged[0].Fingerprint))
			return nil, fmt.Errorf("%w: filter value looks like a SQL injection attempt", apperrors.ErrValidationRejected)
		}
	}

	return plan, nil
}

// referencedTables returns every table the intent touches, primary first,
// in first-reference order without duplicates.
func referencedTables(intent *models.StructuredIntent, primary string) []string {
	ordered := []string{primary}
	seen := map[string]bool{primary: true}
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			ordered = append(ordered, t)
		}
	}
	for _, t := range intent.Tables {
		add(t)
	}
	for _, m := range intent.Metrics {
		add(m.Table)
	}
	for _, f := range intent.Filters {
		add(f.Table)
	}
	for _, g := range intent.GroupBy {
		if idx := strings.IndexByte(g, '.'); idx > 0 {
			add(g[:idx])
		}
	}
	return ordered
}

// joinFor finds the declared relationship linking the new table to any
// already-joined table. Joins may only follow declared relationships.
func (b *Builder) joinFor(joined []string, table string, snap *registry.Snapshot) (*models.JoinSpec, error) {
	for _, existing := range joined {
		if rel := snap.Relationship(existing, table); rel != nil {
			return &models.JoinSpec{
				LeftTable:   rel.SourceTable,
				LeftColumn:  rel.SourceColumn,
				RightTable:  rel.TargetTable,
				RightColumn: rel.TargetColumn,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: no declared relationship joins %s to %s",
		apperrors.ErrValidationRejected, strings.Join(joined, "/"), table)
}

func columnDescriptor(snap *registry.Snapshot, table, column string) *models.ColumnDescriptor {
	t := snap.Schema.Table(table)
	if t == nil {
		return nil
	}
	return t.Column(column)
}

// coerceValue converts a string value from the intent into the typed
// parameter the warehouse driver binds.
func coerceValue(raw string, semanticType models.SemanticType) (any, error) {
	if semanticType == models.SemanticTypeMetric {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a numeric value, got %q", raw)
		}
		return value, nil
	}
	return raw, nil
}

// renderStatements compiles the operations into one executable statement per
// comparison leg (or a single "result" statement without a comparison).
func (b *Builder) renderStatements(plan *models.QueryPlan, intent *models.StructuredIntent, filterParams []any) error {
	selectList, groupClause, orderClause := b.projection(intent)
	fromClause := b.fromClause(plan)
	whereFragments, err := b.filterFragments(plan)
	if err != nil {
		return err
	}

	render := func(label string, window *models.TimeWindow) models.PlanStatement {
		params := append([]any(nil), filterParams...)
		fragments := append([]string(nil), whereFragments...)

		if window != nil {
			table := intent.Metrics[0].Table
			col := b.dialect.QuoteIdentifier(table) + "." + b.dialect.QuoteIdentifier(window.Column)
			params = append(params, window.Start)
			startPh := b.dialect.Placeholder(len(params))
			params = append(params, window.End)
			endPh := b.dialect.Placeholder(len(params))
			fragments = append(fragments, fmt.Sprintf("%s >= %s AND %s < %s", col, startPh, col, endPh))
		}

		var sb strings.Builder
		sb.WriteString("SELECT ")
		sb.WriteString(selectList)
		sb.WriteString(" FROM ")
		sb.WriteString(fromClause)
		if len(fragments) > 0 {
			sb.WriteString(" WHERE ")
			sb.WriteString(strings.Join(fragments, " AND "))
		}
		sb.WriteString(groupClause)
		sb.WriteString(orderClause)

		return models.PlanStatement{Label: label, SQL: sb.String(), Params: params}
	}

	if cmp := intent.Comparison; cmp != nil {
		current := cmp.Current
		baseline := cmp.Baseline
		plan.Statements = []models.PlanStatement{
			render("current", &current),
			render("baseline", &baseline),
		}
	} else {
		plan.Statements = []models.PlanStatement{render("result", nil)}
	}
	return nil
}

func (b *Builder) projection(intent *models.StructuredIntent) (selectList, groupClause, orderClause string) {
	var selects, groups []string
	for _, g := range intent.GroupBy {
		parts := strings.SplitN(g, ".", 2)
		qualified := b.dialect.QuoteIdentifier(parts[0]) + "." + b.dialect.QuoteIdentifier(parts[1])
		selects = append(selects, qualified)
		groups = append(groups, qualified)
	}
	for _, m := range intent.Metrics {
		qualified := b.dialect.QuoteIdentifier(m.Table) + "." + b.dialect.QuoteIdentifier(m.Column)
		output := fmt.Sprintf("%s_%s", m.Aggregate, m.Column)
		selects = append(selects, fmt.Sprintf("%s(%s) AS %s",
			strings.ToUpper(string(m.Aggregate)), qualified, b.dialect.QuoteIdentifier(output)))
	}

	selectList = strings.Join(selects, ", ")
	if len(groups) > 0 {
		groupClause = " GROUP BY " + strings.Join(groups, ", ")
		// Deterministic row order so repeated runs produce identical results.
		orderClause = " ORDER BY " + strings.Join(groups, ", ")
	}
	return selectList, groupClause, orderClause
}

func (b *Builder) fromClause(plan *models.QueryPlan) string {
	var sb strings.Builder
	for _, op := range plan.Operations {
		switch op.Type {
		case models.PlanOpScan:
			sb.WriteString(b.dialect.QuoteIdentifier(op.Table))
		case models.PlanOpJoin:
			j := op.Join
			// The right table of the relationship may be the one already in
			// the FROM clause; join the other side.
			sb.WriteString(fmt.Sprintf(" JOIN %s ON %s.%s = %s.%s",
				b.dialect.QuoteIdentifier(j.RightTable),
				b.dialect.QuoteIdentifier(j.LeftTable), b.dialect.QuoteIdentifier(j.LeftColumn),
				b.dialect.QuoteIdentifier(j.RightTable), b.dialect.QuoteIdentifier(j.RightColumn)))
		}
	}
	return sb.String()
}

func (b *Builder) filterFragments(plan *models.QueryPlan) ([]string, error) {
	var fragments []string
	for _, op := range plan.Operations {
		if op.Type != models.PlanOpFilter {
			continue
		}
		f := op.Filter
		col := b.dialect.QuoteIdentifier(f.Table) + "." + b.dialect.QuoteIdentifier(f.Column)

		placeholders := make([]string, len(f.ParamIndexes))
		for i, idx := range f.ParamIndexes {
			placeholders[i] = b.dialect.Placeholder(idx + 1)
		}

		switch f.Operator {
		case models.OpEqual:
			fragments = append(fragments, fmt.Sprintf("%s = %s", col, placeholders[0]))
		case models.OpNotEqual:
			fragments = append(fragments, fmt.Sprintf("%s <> %s", col, placeholders[0]))
		case models.OpGreaterThan:
			fragments = append(fragments, fmt.Sprintf("%s > %s", col, placeholders[0]))
		case models.OpGreaterEqual:
			fragments = append(fragments, fmt.Sprintf("%s >= %s", col, placeholders[0]))
		case models.OpLessThan:
			fragments = append(fragments, fmt.Sprintf("%s < %s", col, placeholders[0]))
		case models.OpLessEqual:
			fragments = append(fragments, fmt.Sprintf("%s <= %s", col, placeholders[0]))
		case models.OpIn:
			fragments = append(fragments, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
		case models.OpBetween:
			fragments = append(fragments, fmt.Sprintf("%s BETWEEN %s AND %s", col, placeholders[0], placeholders[1]))
		default:
			return nil, fmt.Errorf("unknown filter operator %q", f.Operator)
		}
	}
	return fragments, nil
}
