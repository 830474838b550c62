package models

// RuleViolation records one violated business rule with its explanation.
type RuleViolation struct {
	RuleID      string       `json:"rule_id"`
	Severity    RuleSeverity `json:"severity"`
	Explanation string       `json:"explanation"`
	// Clarification is a concrete follow-up question when one is derivable
	// from the rule ("Which date range should the query cover?").
	Clarification string `json:"clarification,omitempty"`
}

// ValidationResult is the outcome of evaluating an intent against the rule
// set. Derived per request; persisted only in the audit trail.
type ValidationResult struct {
	Accepted bool `json:"accepted"`
	// Violations lists blocking violations in rule declaration order.
	Violations []RuleViolation `json:"violations,omitempty"`
	// Warnings lists advisory violations. They never block execution.
	Warnings []RuleViolation `json:"warnings,omitempty"`
	// ClarificationQuestions aggregates the derivable follow-up questions
	// from blocking violations, deduplicated, in declaration order.
	ClarificationQuestions []string `json:"clarification_questions,omitempty"`
	// ClarityScore is the fraction of blocking violations that carry a
	// concrete clarification question. Reported on rejection so callers know
	// whether a follow-up round is likely to succeed.
	ClarityScore float64 `json:"clarity_score"`
}
