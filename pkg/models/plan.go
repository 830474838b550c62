package models

// PlanOpType identifies one typed operation in a query plan.
type PlanOpType string

const (
	PlanOpScan      PlanOpType = "scan"
	PlanOpJoin      PlanOpType = "join"
	PlanOpFilter    PlanOpType = "filter"
	PlanOpWindow    PlanOpType = "window" // time-window restriction for a comparison leg
	PlanOpAggregate PlanOpType = "aggregate"
	PlanOpGroup     PlanOpType = "group"
)

// JoinSpec describes a join along one declared relationship.
type JoinSpec struct {
	LeftTable   string `json:"left_table"`
	LeftColumn  string `json:"left_column"`
	RightTable  string `json:"right_table"`
	RightColumn string `json:"right_column"`
}

// FilterSpec describes a parameterized filter. ParamIndexes point into the
// owning statement's Params slice; values are never inlined into SQL.
type FilterSpec struct {
	Table       string         `json:"table"`
	Column      string         `json:"column"`
	Operator    FilterOperator `json:"operator"`
	ParamIndexes []int         `json:"param_indexes"`
}

// AggregateSpec describes one aggregation output column.
type AggregateSpec struct {
	Table     string        `json:"table"`
	Column    string        `json:"column"`
	Function  AggregateFunc `json:"function"`
	OutputName string       `json:"output_name"`
}

// PlanOperation is one typed step of a query plan. Exactly one of the
// spec fields matching Type is populated.
type PlanOperation struct {
	Type      PlanOpType     `json:"type"`
	Table     string         `json:"table,omitempty"` // scan
	Join      *JoinSpec      `json:"join,omitempty"`
	Filter    *FilterSpec    `json:"filter,omitempty"`
	Window    *TimeWindow    `json:"window,omitempty"`
	Aggregate *AggregateSpec `json:"aggregate,omitempty"`
	GroupBy   []string       `json:"group_by,omitempty"`
}

// PlanStatement is one executable statement compiled from the plan: dialect
// SQL with positional placeholders and the parameter values in order.
type PlanStatement struct {
	// Label distinguishes comparison legs: "result" for a plain query,
	// "current" and "baseline" for a comparison.
	Label  string `json:"label"`
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

// QueryPlan is the deterministic, typed, parameterized representation of an
// executable query. Built only from a validated intent; immutable once built.
// The Explanation slice has exactly one entry per operation, in execution
// order.
type QueryPlan struct {
	Operations  []PlanOperation `json:"operations"`
	Explanation []string        `json:"explanation"`
	Statements  []PlanStatement `json:"statements"`
	// Comparison is carried through for the analyzer when the intent asked
	// for a period-over-period comparison.
	Comparison *ComparisonRequest `json:"comparison,omitempty"`
	// MetricName is the primary metric's output name, used to label findings.
	MetricName string `json:"metric_name"`
}
