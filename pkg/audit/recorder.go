// Package audit records every request's pathway through the pipeline as an
// append-only, hash-chained trail keyed by correlation id.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/apperrors"
	"github.com/claimsight-ai/claimsight-engine/pkg/models"
)

// Recorder persists audit trails. The write path is append-only: events are
// never mutated or removed by callers; only the recorder itself may compact.
type Recorder interface {
	// Begin mints a correlation id and opens a trail for the question.
	Begin(question string) uuid.UUID
	// Record appends a stage event with its artifact to an open trail.
	// Appending to a finished trail or recording a second terminal stage is
	// an error.
	Record(correlationID uuid.UUID, stage models.AuditStage, artifact any) error
	// Trail returns the ordered events for a correlation id.
	Trail(correlationID uuid.UUID) (*models.AuditRecord, error)
}

// MemoryRecorder keeps trails in process memory. Retention and archival are
// external concerns; the recorder only guarantees ordering and integrity.
type MemoryRecorder struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*models.AuditRecord
	logger  *zap.Logger
	now     func() time.Time
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder(logger *zap.Logger) *MemoryRecorder {
	return &MemoryRecorder{
		records: make(map[uuid.UUID]*models.AuditRecord),
		logger:  logger.Named("audit"),
		now:     time.Now,
	}
}

var _ Recorder = (*MemoryRecorder)(nil)

// Begin opens a trail and records the received stage.
func (r *MemoryRecorder) Begin(question string) uuid.UUID {
	id := uuid.New()

	r.mu.Lock()
	r.records[id] = &models.AuditRecord{
		CorrelationID: id,
		Question:      question,
		StartedAt:     r.now(),
	}
	r.mu.Unlock()

	// Begin never fails on a fresh id; the received event seeds the chain.
	if err := r.Record(id, models.StageReceived, map[string]string{"question": question}); err != nil {
		r.logger.Error("failed to seed audit trail", zap.String("correlation_id", id.String()), zap.Error(err))
	}
	return id
}

// Record appends one event, chaining its hash over the previous event.
func (r *MemoryRecorder) Record(correlationID uuid.UUID, stage models.AuditStage, artifact any) error {
	encoded, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encode audit artifact for stage %s: %w", stage, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[correlationID]
	if !ok {
		return fmt.Errorf("%w: no audit trail for correlation id %s", apperrors.ErrNotFound, correlationID)
	}

	if terminal := record.Terminal(); terminal != nil {
		return fmt.Errorf("audit trail %s already finished with %s; refusing to append %s",
			correlationID, terminal.Stage, stage)
	}

	previousHash := ""
	if n := len(record.Events); n > 0 {
		previousHash = record.Events[n-1].Hash
	}

	record.Events = append(record.Events, models.AuditEvent{
		Seq:       len(record.Events),
		Stage:     stage,
		Timestamp: r.now(),
		Artifact:  json.RawMessage(encoded),
		Hash:      chainHash(previousHash, encoded),
	})
	return nil
}

// Trail returns a copy of the trail so callers cannot mutate stored events.
func (r *MemoryRecorder) Trail(correlationID uuid.UUID) (*models.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[correlationID]
	if !ok {
		return nil, fmt.Errorf("%w: no audit trail for correlation id %s", apperrors.ErrNotFound, correlationID)
	}

	clone := &models.AuditRecord{
		CorrelationID: record.CorrelationID,
		Question:      record.Question,
		StartedAt:     record.StartedAt,
		Events:        make([]models.AuditEvent, len(record.Events)),
	}
	copy(clone.Events, record.Events)
	return clone, nil
}

// VerifyChain recomputes the hash chain and reports the first event whose
// stored hash does not match, or -1 when the chain is intact.
func VerifyChain(record *models.AuditRecord) int {
	previousHash := ""
	for i := range record.Events {
		expected := chainHash(previousHash, record.Events[i].Artifact)
		if record.Events[i].Hash != expected {
			return i
		}
		previousHash = record.Events[i].Hash
	}
	return -1
}

// chainHash hashes the previous event's hash concatenated with the artifact,
// linking each event to its predecessor.
func chainHash(previousHash string, artifact []byte) string {
	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write(artifact)
	return hex.EncodeToString(h.Sum(nil))
}
