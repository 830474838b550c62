package models

import "time"

// ResultSet holds the typed rows returned for one plan statement.
type ResultSet struct {
	Label     string           `json:"label"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	ByteCount int64            `json:"byte_count"`
	Truncated bool             `json:"truncated"`
}

// ExecutionResult is the executor's output for one plan: one result set per
// statement, in statement order.
type ExecutionResult struct {
	Sets     []ResultSet   `json:"sets"`
	Duration time.Duration `json:"duration"`
	// Truncated is set when any set hit the row or byte ceiling. The rows
	// present are a valid (truncated) prefix, never discarded.
	Truncated bool `json:"truncated"`
}

// Set returns the result set with the given label, or nil.
func (er *ExecutionResult) Set(label string) *ResultSet {
	for i := range er.Sets {
		if er.Sets[i].Label == label {
			return &er.Sets[i]
		}
	}
	return nil
}
