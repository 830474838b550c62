package models

// FilterOperator is a comparison operator in a structured intent filter.
type FilterOperator string

const (
	OpEqual        FilterOperator = "eq"
	OpNotEqual     FilterOperator = "neq"
	OpGreaterThan  FilterOperator = "gt"
	OpGreaterEqual FilterOperator = "gte"
	OpLessThan     FilterOperator = "lt"
	OpLessEqual    FilterOperator = "lte"
	OpIn           FilterOperator = "in"
	OpBetween      FilterOperator = "between"
)

// IsValidFilterOperator checks if the given operator is in the known set.
func IsValidFilterOperator(op FilterOperator) bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterEqual,
		OpLessThan, OpLessEqual, OpIn, OpBetween:
		return true
	}
	return false
}

// AggregateFunc is an aggregation applied to a metric.
type AggregateFunc string

const (
	AggSum   AggregateFunc = "sum"
	AggAvg   AggregateFunc = "avg"
	AggCount AggregateFunc = "count"
	AggMin   AggregateFunc = "min"
	AggMax   AggregateFunc = "max"
)

// IsValidAggregateFunc checks if the given function is in the known set.
func IsValidAggregateFunc(f AggregateFunc) bool {
	switch f {
	case AggSum, AggAvg, AggCount, AggMin, AggMax:
		return true
	}
	return false
}

// IntentFilter is one filter condition extracted from the question.
type IntentFilter struct {
	Table    string         `json:"table"`
	Column   string         `json:"column"`
	Operator FilterOperator `json:"operator"`
	// Values carries one value for scalar operators, two for between,
	// one or more for in. Values are strings as produced by the reasoning
	// service; the planner coerces them against the column's semantic type.
	Values []string `json:"values"`
}

// IntentMetric is one requested measure.
type IntentMetric struct {
	Table     string        `json:"table"`
	Column    string        `json:"column"`
	Aggregate AggregateFunc `json:"aggregate"`
}

// TimeWindow is a half-open [Start, End) range over a timestamp column.
type TimeWindow struct {
	Column string `json:"column"`
	Start  string `json:"start"` // ISO 8601 date
	End    string `json:"end"`
}

// ComparisonRequest asks for the metric computed over two windows
// (e.g. last quarter vs the prior quarter).
type ComparisonRequest struct {
	Current  TimeWindow `json:"current"`
	Baseline TimeWindow `json:"baseline"`
	Label    string     `json:"label,omitempty"` // e.g. "quarter-over-quarter"
}

// StructuredIntent is the normalized, typed representation of what the user
// asked for, produced by the reasoning service and validated downstream.
// Immutable once validated; re-parsing produces a new instance.
type StructuredIntent struct {
	Tables     []string           `json:"tables"`
	Metrics    []IntentMetric     `json:"metrics"`
	Filters    []IntentFilter     `json:"filters"`
	GroupBy    []string           `json:"group_by,omitempty"` // "table.column" references
	Comparison *ComparisonRequest `json:"comparison,omitempty"`

	// Rationale is the model's own free-text reasoning for the extraction.
	// Carried for the audit trail only; never trusted or executed.
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"` // model-reported, 0.0-1.0
}

// ReferencesTable reports whether the intent touches the named table through
// its table list, metrics, or filters.
func (si *StructuredIntent) ReferencesTable(table string) bool {
	for _, t := range si.Tables {
		if t == table {
			return true
		}
	}
	for _, m := range si.Metrics {
		if m.Table == table {
			return true
		}
	}
	for _, f := range si.Filters {
		if f.Table == table {
			return true
		}
	}
	return false
}

// ReferencesColumn reports whether the intent filters, measures, or groups by
// the named column.
func (si *StructuredIntent) ReferencesColumn(table, column string) bool {
	for _, m := range si.Metrics {
		if m.Table == table && m.Column == column {
			return true
		}
	}
	for _, f := range si.Filters {
		if f.Table == table && f.Column == column {
			return true
		}
	}
	for _, g := range si.GroupBy {
		if g == table+"."+column {
			return true
		}
	}
	return false
}

// FilterOn returns the first filter on table.column, or nil.
func (si *StructuredIntent) FilterOn(table, column string) *IntentFilter {
	for i := range si.Filters {
		if si.Filters[i].Table == table && si.Filters[i].Column == column {
			return &si.Filters[i]
		}
	}
	return nil
}
