package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/claimsight-ai/claimsight-engine/pkg/models"
)

func promptSchema() *models.SchemaDescriptor {
	return &models.SchemaDescriptor{
		Tables: []models.TableDescriptor{{
			Name:        "claims",
			Description: "submitted insurance claims",
			Columns: []models.ColumnDescriptor{
				{Name: "claim_amount", SemanticType: models.SemanticTypeMetric},
				{Name: "procedure_type", SemanticType: models.SemanticTypeCategory,
					AllowedValues: []string{"Virtual Consultation", "Follow-up Visit"}},
			},
		}},
		Relationships: []models.Relationship{{
			SourceTable: "claims", SourceColumn: "provider_id",
			TargetTable: "providers", TargetColumn: "provider_id",
		}},
	}
}

func TestBuildIntentPromptContainsSchemaContext(t *testing.T) {
	rules := []models.BusinessRule{{
		Severity:    models.SeverityBlocking,
		Description: "amount queries need a date range",
	}}

	prompt := BuildIntentPrompt("total claims in July", promptSchema(), rules, nil)

	assert.Contains(t, prompt, "total claims in July")
	assert.Contains(t, prompt, "### claims")
	assert.Contains(t, prompt, "claim_amount")
	assert.Contains(t, prompt, "Virtual Consultation, Follow-up Visit")
	assert.Contains(t, prompt, "claims.provider_id -> providers.provider_id")
	assert.Contains(t, prompt, "amount queries need a date range")
	assert.Contains(t, prompt, "## Response Format")
	assert.NotContains(t, prompt, "## Prior Clarifications")
}

func TestBuildIntentPromptThreadsClarifications(t *testing.T) {
	turns := []ClarificationTurn{
		{Question: "Which date range should the query cover?", Answer: "July 2026"},
	}

	prompt := BuildIntentPrompt("total claims", promptSchema(), nil, turns)

	clarIdx := strings.Index(prompt, "## Prior Clarifications")
	schemaIdx := strings.Index(prompt, "## Warehouse Schema")
	assert.Greater(t, clarIdx, -1)
	assert.Less(t, clarIdx, schemaIdx, "clarifications come before the schema")
	assert.Contains(t, prompt, "Answered: July 2026")
}

func TestBuildStrictRetryPromptEmbedsFailure(t *testing.T) {
	original := BuildIntentPrompt("q", promptSchema(), nil, nil)
	prompt := BuildStrictRetryPrompt(original, "no valid JSON found in response")

	assert.True(t, strings.HasPrefix(prompt, "Your previous response could not be parsed"))
	assert.Contains(t, prompt, "no valid JSON found in response")
	assert.Contains(t, prompt, original)
}
