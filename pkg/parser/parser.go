// Package parser turns free-text questions into StructuredIntent candidates
// by delegating to the external reasoning service.
package parser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/apperrors"
	"github.com/claimsight-ai/claimsight-engine/pkg/llm"
	"github.com/claimsight-ai/claimsight-engine/pkg/logging"
	"github.com/claimsight-ai/claimsight-engine/pkg/models"
	"github.com/claimsight-ai/claimsight-engine/pkg/prompts"
	"github.com/claimsight-ai/claimsight-engine/pkg/registry"
)

// extractionTemperature keeps intent extraction near-deterministic. The
// pipeline's determinism guarantees apply only downstream of validation, but
// low temperature reduces spurious re-parse variance.
const extractionTemperature = 0.1

// IntentParser produces a structured intent candidate from text plus schema
// context, or fails. Use this interface for dependency injection in tests.
type IntentParser interface {
	Parse(ctx context.Context, question string, snap *registry.Snapshot, turns []prompts.ClarificationTurn) (*models.StructuredIntent, error)
}

// Parser is the reasoning-service-backed IntentParser.
type Parser struct {
	client llm.ReasoningClient
	logger *zap.Logger
}

// New creates a Parser.
func New(client llm.ReasoningClient, logger *zap.Logger) *Parser {
	return &Parser{
		client: client,
		logger: logger.Named("parser"),
	}
}

var _ IntentParser = (*Parser)(nil)

// Parse invokes the reasoning service and returns a syntactically well-formed
// StructuredIntent. The intent may still be semantically wrong; the validator
// is the gate. Malformed responses and transport failures get one bounded
// retry (with a stricter prompt for malformed output), then surface as a
// reasoning-service error.
func (p *Parser) Parse(ctx context.Context, question string, snap *registry.Snapshot, turns []prompts.ClarificationTurn) (*models.StructuredIntent, error) {
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", apperrors.ErrReasoningService)
	}

	prompt := prompts.BuildIntentPrompt(question, snap.Schema, snap.Rules, turns)

	intent, err := p.attempt(ctx, prompt)
	if err == nil {
		return intent, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// One bounded retry. Malformed output gets a stricter prompt embedding
	// the parse failure; transport errors reuse the original prompt.
	retryPrompt := prompt
	if llm.GetErrorType(err) == llm.ErrorTypeMalformed {
		retryPrompt = prompts.BuildStrictRetryPrompt(prompt, err.Error())
	}

	p.logger.Warn("intent extraction retry",
		zap.String("question", logging.SanitizeQuestion(question)),
		zap.String("error_type", string(llm.GetErrorType(err))),
		zap.Error(err))

	intent, retryErr := p.attempt(ctx, retryPrompt)
	if retryErr != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrReasoningService, retryErr)
	}
	return intent, nil
}

// attempt performs one reasoning call and shape-checks the response.
func (p *Parser) attempt(ctx context.Context, prompt string) (*models.StructuredIntent, error) {
	result, err := p.client.Complete(ctx, prompt, prompts.IntentSystemMessage, extractionTemperature)
	if err != nil {
		return nil, err
	}

	intent, err := llm.ParseJSONResponse[models.StructuredIntent](result.Content)
	if err != nil {
		return nil, llm.NewError(llm.ErrorTypeMalformed, "response is not a structured intent", false, err)
	}

	if err := checkShape(&intent); err != nil {
		return nil, llm.NewError(llm.ErrorTypeMalformed, "structured intent failed shape check", false, err)
	}

	return &intent, nil
}

// checkShape verifies the intent is syntactically well-formed: every field
// type-checked against its expected shape. Semantic checks (does the table
// exist, do the rules pass) belong to the validator.
func checkShape(intent *models.StructuredIntent) error {
	if intent.Confidence < 0 || intent.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", intent.Confidence)
	}
	if intent.Rationale == "" {
		return fmt.Errorf("rationale is missing")
	}

	for i, m := range intent.Metrics {
		if m.Table == "" || m.Column == "" {
			return fmt.Errorf("metric %d missing table or column", i)
		}
		if !models.IsValidAggregateFunc(m.Aggregate) {
			return fmt.Errorf("metric %d has unknown aggregate %q", i, m.Aggregate)
		}
	}

	for i, f := range intent.Filters {
		if f.Table == "" || f.Column == "" {
			return fmt.Errorf("filter %d missing table or column", i)
		}
		if !models.IsValidFilterOperator(f.Operator) {
			return fmt.Errorf("filter %d has unknown operator %q", i, f.Operator)
		}
		switch f.Operator {
		case models.OpBetween:
			if len(f.Values) != 2 {
				return fmt.Errorf("filter %d: between needs exactly 2 values, got %d", i, len(f.Values))
			}
		case models.OpIn:
			if len(f.Values) == 0 {
				return fmt.Errorf("filter %d: in needs at least 1 value", i)
			}
		default:
			if len(f.Values) != 1 {
				return fmt.Errorf("filter %d: %s needs exactly 1 value, got %d", i, f.Operator, len(f.Values))
			}
		}
	}

	if c := intent.Comparison; c != nil {
		for _, w := range []models.TimeWindow{c.Current, c.Baseline} {
			if w.Column == "" || w.Start == "" || w.End == "" {
				return fmt.Errorf("comparison window missing column or bounds")
			}
		}
	}

	return nil
}
