package prompts

import (
	"fmt"
	"strings"

	"github.com/claimsight-ai/claimsight-engine/pkg/models"
)

// IntentSystemMessage frames the reasoning service's role for intent
// extraction. The response contract is enforced downstream regardless.
const IntentSystemMessage = "You are a data analyst assistant. You translate questions about a " +
	"known warehouse schema into a structured JSON intent. You only reference tables and columns " +
	"that appear in the provided schema. You respond with JSON only."

// ClarificationTurn is one prior rejection round threaded back into the prompt.
type ClarificationTurn struct {
	Question string `json:"question"` // the clarification we asked
	Answer   string `json:"answer"`   // what the user answered
}

// BuildIntentPrompt creates the prompt for structured-intent extraction.
// It includes the serialized schema context, rule hints, prior clarification
// turns, and the JSON response format.
func BuildIntentPrompt(question string, snapshotSchema *models.SchemaDescriptor, rules []models.BusinessRule, turns []ClarificationTurn) string {
	var prompt strings.Builder

	prompt.WriteString("# Question\n\n")
	prompt.WriteString(question)
	prompt.WriteString("\n\n")

	if len(turns) > 0 {
		prompt.WriteString("## Prior Clarifications\n\n")
		for _, turn := range turns {
			prompt.WriteString(fmt.Sprintf("- Asked: %s\n  Answered: %s\n", turn.Question, turn.Answer))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Warehouse Schema\n\n")
	for _, table := range snapshotSchema.Tables {
		prompt.WriteString(fmt.Sprintf("### %s\n", table.Name))
		if table.Description != "" {
			prompt.WriteString(table.Description + "\n")
		}
		for _, col := range table.Columns {
			nullable := "not null"
			if col.Nullable {
				nullable = "nullable"
			}
			prompt.WriteString(fmt.Sprintf("- %s (%s, %s)", col.Name, col.SemanticType, nullable))
			if len(col.AllowedValues) > 0 {
				prompt.WriteString(fmt.Sprintf(" values: %s", strings.Join(col.AllowedValues, ", ")))
			}
			prompt.WriteString("\n")
		}
		prompt.WriteString("\n")
	}

	if len(snapshotSchema.Relationships) > 0 {
		prompt.WriteString("## Relationships\n\n")
		for _, rel := range snapshotSchema.Relationships {
			prompt.WriteString(fmt.Sprintf("- %s.%s -> %s.%s\n",
				rel.SourceTable, rel.SourceColumn, rel.TargetTable, rel.TargetColumn))
		}
		prompt.WriteString("\n")
	}

	if len(rules) > 0 {
		prompt.WriteString("## Business Rules\n\n")
		prompt.WriteString("These constraints are enforced after extraction. Extract the intent faithfully even if it violates one.\n\n")
		for _, rule := range rules {
			prompt.WriteString(fmt.Sprintf("- [%s] %s\n", rule.Severity, rule.Description))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString(responseFormat)

	return prompt.String()
}

// BuildStrictRetryPrompt wraps the original prompt with the parse failure
// from the previous attempt. Used for the single bounded retry after a
// malformed response.
func BuildStrictRetryPrompt(original string, parseFailure string) string {
	var prompt strings.Builder
	prompt.WriteString("Your previous response could not be parsed: ")
	prompt.WriteString(parseFailure)
	prompt.WriteString("\n\nRespond again. Output a single JSON object and nothing else: no prose, no markdown fences, no thinking tags.\n\n")
	prompt.WriteString(original)
	return prompt.String()
}

const responseFormat = `## Response Format

Respond with a single JSON object:

{
  "tables": ["<table>"],
  "metrics": [{"table": "<table>", "column": "<column>", "aggregate": "sum|avg|count|min|max"}],
  "filters": [{"table": "<table>", "column": "<column>", "operator": "eq|neq|gt|gte|lt|lte|in|between", "values": ["<value>"]}],
  "group_by": ["<table>.<column>"],
  "comparison": {
    "current": {"column": "<timestamp column>", "start": "YYYY-MM-DD", "end": "YYYY-MM-DD"},
    "baseline": {"column": "<timestamp column>", "start": "YYYY-MM-DD", "end": "YYYY-MM-DD"},
    "label": "<e.g. quarter-over-quarter>"
  },
  "rationale": "<one or two sentences on how you read the question>",
  "confidence": 0.0
}

Rules:
- Omit "comparison" unless the question compares two periods.
- Omit "group_by" unless the question asks for a breakdown.
- If the question names no measurable metric, return empty "metrics" and explain the gap in "rationale" with low confidence.
- "confidence" is your own estimate between 0.0 and 1.0.`
