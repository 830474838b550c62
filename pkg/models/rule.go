package models

// RuleSeverity controls whether a violated rule prevents execution.
type RuleSeverity string

const (
	// SeverityBlocking rules must pass before a plan is ever built or executed.
	SeverityBlocking RuleSeverity = "blocking"
	// SeverityAdvisory rules attach warnings but do not prevent execution.
	SeverityAdvisory RuleSeverity = "advisory"
)

// IsValidSeverity checks if the given severity is valid.
func IsValidSeverity(s RuleSeverity) bool {
	return s == SeverityBlocking || s == SeverityAdvisory
}

// RuleKind identifies the predicate a business rule evaluates.
type RuleKind string

const (
	// RuleKindRequiredFilter requires the intent to carry a filter on a column
	// (e.g. amount aggregations require a date range on service_date).
	RuleKindRequiredFilter RuleKind = "required_filter"
	// RuleKindValueRange bounds numeric filter values on a column.
	RuleKindValueRange RuleKind = "value_range"
	// RuleKindEnum restricts filter values to the column's allowed set.
	RuleKindEnum RuleKind = "enum"
	// RuleKindForbiddenCombination rejects a pair of filter values appearing
	// together (e.g. procedure "Mental Health Session" with diagnosis "Common Cold").
	RuleKindForbiddenCombination RuleKind = "forbidden_combination"
	// RuleKindForbiddenJoin rejects plans joining the named pair of tables.
	RuleKindForbiddenJoin RuleKind = "forbidden_join"
	// RuleKindMetricThreshold flags metric values above a per-category threshold.
	// Evaluated against filter values at validation time; the analyzer applies the
	// same thresholds to results.
	RuleKindMetricThreshold RuleKind = "metric_threshold"
)

// IsValidRuleKind checks if the given kind is one the rule engine evaluates.
func IsValidRuleKind(k RuleKind) bool {
	switch k {
	case RuleKindRequiredFilter, RuleKindValueRange, RuleKindEnum,
		RuleKindForbiddenCombination, RuleKindForbiddenJoin, RuleKindMetricThreshold:
		return true
	}
	return false
}

// RuleScope names the tables/columns a rule applies to. A rule is evaluated
// when its scope intersects the entities an intent references.
type RuleScope struct {
	Table  string `yaml:"table" json:"table"`
	Column string `yaml:"column,omitempty" json:"column,omitempty"`
}

// CombinationMember is one side of a forbidden_combination predicate.
type CombinationMember struct {
	Column string `yaml:"column" json:"column"`
	Value  string `yaml:"value" json:"value"`
}

// BusinessRule is one declared constraint on intents and plans. Immutable,
// loaded once with the schema. DeclOrder is the position in the rules file;
// violations are reported in declaration order so clarification dialogues
// are reproducible.
type BusinessRule struct {
	ID          string       `yaml:"id" json:"id"`
	Description string       `yaml:"description" json:"description"`
	Kind        RuleKind     `yaml:"kind" json:"kind"`
	Severity    RuleSeverity `yaml:"severity" json:"severity"`
	Scope       RuleScope    `yaml:"scope" json:"scope"`

	// Kind-specific predicate fields.
	RequiredFilterColumn string              `yaml:"required_filter_column,omitempty" json:"required_filter_column,omitempty"`
	Min                  *float64            `yaml:"min,omitempty" json:"min,omitempty"`
	Max                  *float64            `yaml:"max,omitempty" json:"max,omitempty"`
	Combination          []CombinationMember `yaml:"combination,omitempty" json:"combination,omitempty"`
	ForbiddenJoinTable   string              `yaml:"forbidden_join_table,omitempty" json:"forbidden_join_table,omitempty"`
	// Thresholds maps a category value to the metric ceiling above which the
	// rule fires (e.g. per-procedure maximum normal claim amount).
	Thresholds map[string]float64 `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
	// ThresholdCategoryColumn is the category column the Thresholds keys refer to.
	ThresholdCategoryColumn string `yaml:"threshold_category_column,omitempty" json:"threshold_category_column,omitempty"`

	// Clarification, when set, is the follow-up question surfaced to the user
	// on violation (e.g. "Which date range should the query cover?").
	Clarification string `yaml:"clarification,omitempty" json:"clarification,omitempty"`

	// DeclOrder is assigned by the registry loader, not the rules file.
	DeclOrder int `yaml:"-" json:"decl_order"`
}
