package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditStage names a pipeline stage in the trail.
type AuditStage string

const (
	StageReceived     AuditStage = "received"
	StageIntentParsed AuditStage = "intent_parsed"
	StageValidated    AuditStage = "validated"
	StagePlanBuilt    AuditStage = "plan_built"
	StageExecuted     AuditStage = "executed"
	StageAnalyzed     AuditStage = "analyzed"

	// Terminal stages. Every finished trail ends in exactly one of these.
	StageCompleted AuditStage = "completed"
	StageRejected  AuditStage = "rejected"
	StageFailed    AuditStage = "failed"
	StageCancelled AuditStage = "cancelled"
)

// IsTerminalStage reports whether the stage ends a trail.
func IsTerminalStage(s AuditStage) bool {
	switch s {
	case StageCompleted, StageRejected, StageFailed, StageCancelled:
		return true
	}
	return false
}

// AuditEvent is one append-only entry in a request's trail.
type AuditEvent struct {
	Seq       int             `json:"seq"`
	Stage     AuditStage      `json:"stage"`
	Timestamp time.Time       `json:"timestamp"`
	Artifact  json.RawMessage `json:"artifact,omitempty"`
	// Hash is the hex sha256 over (previous event hash || artifact), chaining
	// events so tampering with an intermediate artifact is detectable.
	Hash string `json:"hash"`
}

// AuditRecord is the complete, ordered trace of one request's pathway
// through the pipeline.
type AuditRecord struct {
	CorrelationID uuid.UUID    `json:"correlation_id"`
	Question      string       `json:"question"`
	StartedAt     time.Time    `json:"started_at"`
	Events        []AuditEvent `json:"events"`
}

// Terminal returns the trail's terminal event, or nil if the request is
// still in flight.
func (r *AuditRecord) Terminal() *AuditEvent {
	for i := range r.Events {
		if IsTerminalStage(r.Events[i].Stage) {
			return &r.Events[i]
		}
	}
	return nil
}
