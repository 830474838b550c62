// Package services wires the pipeline stages together: parse, validate,
// build, execute, analyze, with every artifact recorded to the audit trail.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/apperrors"
	"github.com/claimsight-ai/claimsight-engine/pkg/audit"
	"github.com/claimsight-ai/claimsight-engine/pkg/logging"
	"github.com/claimsight-ai/claimsight-engine/pkg/models"
	"github.com/claimsight-ai/claimsight-engine/pkg/parser"
	"github.com/claimsight-ai/claimsight-engine/pkg/prompts"
	"github.com/claimsight-ai/claimsight-engine/pkg/registry"
	"github.com/claimsight-ai/claimsight-engine/pkg/validator"
)

// PlanBuilder compiles a validated intent into an executable plan.
type PlanBuilder interface {
	Build(intent *models.StructuredIntent, snap *registry.Snapshot) (*models.QueryPlan, error)
}

// PlanExecutor runs a compiled plan.
type PlanExecutor interface {
	Execute(ctx context.Context, plan *models.QueryPlan) (*models.ExecutionResult, error)
}

// FindingAnalyzer derives findings from executed results.
type FindingAnalyzer interface {
	Analyze(plan *models.QueryPlan, result *models.ExecutionResult) []models.Finding
}

// Pipeline runs one question through every stage. Instances are safe for
// concurrent use: each Submit call works against the snapshot it took at
// entry and holds no lock across external calls.
type Pipeline struct {
	registry  *registry.Registry
	parser    parser.IntentParser
	validator *validator.Validator
	builder   PlanBuilder
	executor  PlanExecutor
	analyzer  FindingAnalyzer
	recorder  audit.Recorder
	logger    *zap.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(
	reg *registry.Registry,
	intentParser parser.IntentParser,
	v *validator.Validator,
	builder PlanBuilder,
	exec PlanExecutor,
	anl FindingAnalyzer,
	recorder audit.Recorder,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		registry:  reg,
		parser:    intentParser,
		validator: v,
		builder:   builder,
		executor:  exec,
		analyzer:  anl,
		recorder:  recorder,
		logger:    logger.Named("pipeline"),
	}
}

// Submit runs the full pipeline for one question. A validation rejection is
// not an error: the answer carries the violations and clarification
// questions, and the caller may resubmit with clarification turns threaded
// in. Cancellation terminates the trail with a cancelled event.
func (p *Pipeline) Submit(ctx context.Context, question string, clarifications []prompts.ClarificationTurn) (*models.Answer, error) {
	correlationID := p.recorder.Begin(question)
	snap := p.registry.Snapshot()

	logger := p.logger.With(zap.String("correlation_id", correlationID.String()))
	logger.Info("question received", zap.String("question", logging.SanitizeQuestion(question)))

	intent, err := p.parser.Parse(ctx, question, snap, clarifications)
	if err != nil {
		return nil, p.fail(ctx, correlationID, "intent extraction", err)
	}
	p.record(correlationID, models.StageIntentParsed, intent)

	validation, resolved := p.validator.Validate(intent, snap)
	p.record(correlationID, models.StageValidated, validation)

	if !validation.Accepted {
		p.record(correlationID, models.StageRejected, validation)
		logger.Info("intent rejected",
			zap.Int("violations", len(validation.Violations)),
			zap.Float64("clarity_score", validation.ClarityScore))
		return rejectionAnswer(correlationID, validation), nil
	}

	plan, err := p.builder.Build(resolved, snap)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidationRejected) {
			p.record(correlationID, models.StageRejected, map[string]string{"reason": err.Error()})
			return &models.Answer{
				CorrelationID: correlationID,
				Summary:       "The question could not be turned into a safe query: " + err.Error(),
				Rejected:      true,
			}, nil
		}
		return nil, p.fail(ctx, correlationID, "plan build", err)
	}
	p.record(correlationID, models.StagePlanBuilt, plan)

	result, err := p.executor.Execute(ctx, plan)
	if err != nil {
		return nil, p.fail(ctx, correlationID, "execution", err)
	}
	p.record(correlationID, models.StageExecuted, executionArtifact(result))

	findings := p.analyzer.Analyze(plan, result)
	p.record(correlationID, models.StageAnalyzed, findings)

	answer := &models.Answer{
		CorrelationID: correlationID,
		Summary:       composeSummary(findings, result.Truncated),
		Findings:      findings,
		Warnings:      validation.Warnings,
		Partial:       result.Truncated,
	}
	p.record(correlationID, models.StageCompleted, answer)

	logger.Info("question answered",
		zap.Int("findings", len(findings)),
		zap.Bool("partial", answer.Partial))
	return answer, nil
}

// Trail exposes the audit read path.
func (p *Pipeline) Trail(correlationID uuid.UUID) (*models.AuditRecord, error) {
	return p.recorder.Trail(correlationID)
}

// fail terminates the trail with a failed event, or a cancelled event when
// the context is done.
func (p *Pipeline) fail(ctx context.Context, correlationID uuid.UUID, stage string, err error) error {
	if ctx.Err() != nil {
		p.record(correlationID, models.StageCancelled, map[string]string{
			"stage": stage, "reason": ctx.Err().Error(),
		})
		return ctx.Err()
	}
	p.record(correlationID, models.StageFailed, map[string]string{
		"stage": stage, "error": logging.SanitizeError(err),
	})
	return fmt.Errorf("%s: %w", stage, err)
}

// record appends an audit event. A recording failure never fails the
// pipeline; it is logged and the request proceeds.
func (p *Pipeline) record(correlationID uuid.UUID, stage models.AuditStage, artifact any) {
	if err := p.recorder.Record(correlationID, stage, artifact); err != nil {
		p.logger.Error("audit recording failed",
			zap.String("correlation_id", correlationID.String()),
			zap.String("stage", string(stage)),
			zap.Error(err))
	}
}

func rejectionAnswer(correlationID uuid.UUID, validation *models.ValidationResult) *models.Answer {
	explanations := make([]string, len(validation.Violations))
	for i, viol := range validation.Violations {
		explanations[i] = viol.Explanation
	}
	return &models.Answer{
		CorrelationID:          correlationID,
		Summary:                "The question was rejected: " + strings.Join(explanations, "; ") + ".",
		Rejected:               true,
		Violations:             validation.Violations,
		Warnings:               validation.Warnings,
		ClarificationQuestions: validation.ClarificationQuestions,
		ClarityScore:           validation.ClarityScore,
	}
}

// composeSummary joins finding statements into the caller-facing answer.
// Result rows may carry warehouse text columns, so the summary is screened
// for PII before it leaves the engine.
func composeSummary(findings []models.Finding, truncated bool) string {
	if len(findings) == 0 {
		return "The query ran but returned no rows to analyze."
	}
	statements := make([]string, len(findings))
	for i, f := range findings {
		statements[i] = f.Statement
	}
	summary := strings.Join(statements, ". ") + "."
	if truncated {
		summary += " Results were truncated by a resource ceiling; figures cover the retained rows only."
	}
	return logging.MaskPII(summary)
}

// executionArtifact records execution metadata without the full row payload,
// which can be large and may carry row-level PII.
func executionArtifact(result *models.ExecutionResult) map[string]any {
	sets := make([]map[string]any, len(result.Sets))
	for i, set := range result.Sets {
		sets[i] = map[string]any{
			"label":      set.Label,
			"row_count":  set.RowCount,
			"byte_count": set.ByteCount,
			"truncated":  set.Truncated,
		}
	}
	return map[string]any{
		"sets":        sets,
		"duration_ms": result.Duration.Milliseconds(),
		"truncated":   result.Truncated,
	}
}
