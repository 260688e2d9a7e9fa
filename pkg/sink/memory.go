package sink

import (
	"context"
	"sync"

	"github.com/censtats/popproj-connector/pkg/state"
)

// MemorySink is an in-memory destination used in tests.
type MemorySink struct {
	mu          sync.Mutex
	records     []Record
	checkpoints []state.SyncState

	// UpsertErr, when set, is returned by every Upsert call.
	UpsertErr error
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Upsert appends the record (last write wins is not modeled; tests inspect
// the raw sequence).
func (m *MemorySink) Upsert(ctx context.Context, rec Record) error {
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Checkpoint records the checkpointed state.
func (m *MemorySink) Checkpoint(ctx context.Context, s state.SyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints = append(m.checkpoints, s)
	return nil
}

// Close is a no-op.
func (m *MemorySink) Close() error {
	return nil
}

// Records returns a copy of all upserted records.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Checkpoints returns a copy of all checkpointed states.
func (m *MemorySink) Checkpoints() []state.SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]state.SyncState, len(m.checkpoints))
	copy(out, m.checkpoints)
	return out
}

var _ Sink = (*MemorySink)(nil)
