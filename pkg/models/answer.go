package models

import "github.com/google/uuid"

// Answer is the caller-facing result of one submitted question.
type Answer struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	// Summary is the human-readable answer composed from the findings, or the
	// rejection explanation when validation rejected the intent.
	Summary  string    `json:"summary"`
	Findings []Finding `json:"findings,omitempty"`
	// Rejected is set when validation rejected the intent; no plan was built
	// and no query ran.
	Rejected               bool            `json:"rejected"`
	Violations             []RuleViolation `json:"violations,omitempty"`
	Warnings               []RuleViolation `json:"warnings,omitempty"`
	ClarificationQuestions []string        `json:"clarification_questions,omitempty"`
	// ClarityScore accompanies a rejection: the fraction of violations that
	// carry a concrete clarification question, so callers can judge whether a
	// follow-up round is likely to succeed.
	ClarityScore float64 `json:"clarity_score,omitempty"`
	// Partial is set when a resource ceiling truncated the results; findings
	// are computed over the truncated rows.
	Partial bool `json:"partial"`
}
