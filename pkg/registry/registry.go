package registry

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Registry publishes the current snapshot to concurrent pipelines. Reload
// builds and validates a complete new snapshot before swapping it in; a
// failed reload leaves the previous snapshot serving.
type Registry struct {
	snap   atomic.Pointer[Snapshot]
	mu     sync.Mutex // serializes reloads
	logger *zap.Logger
}

// New creates a registry serving the given snapshot.
func New(snap *Snapshot, logger *zap.Logger) *Registry {
	r := &Registry{logger: logger.Named("registry")}
	r.snap.Store(snap)
	return r
}

// Snapshot returns the current immutable snapshot. Pipelines call this once
// at request start and use the same snapshot for every stage.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Reload loads, validates, and atomically swaps in a new snapshot.
// In-flight requests continue on the snapshot they started with.
func (r *Registry) Reload(schemaPath, rulesPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := Load(schemaPath, rulesPath)
	if err != nil {
		r.logger.Error("registry reload rejected", zap.Error(err))
		return err
	}

	r.snap.Store(snap)
	r.logger.Info("registry reloaded",
		zap.Int("tables", len(snap.Schema.Tables)),
		zap.Int("rules", len(snap.Rules)))
	return nil
}
