package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/model"
)

// MemoryStore holds encoded documents in process memory.
// Documents go through the same codec as the durable backends.
type MemoryStore struct {
	documents map[string]memoryDocument
	mu        sync.RWMutex
}

type memoryDocument struct {
	data     []byte
	revision int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{documents: make(map[string]memoryDocument)}
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Load decodes the namespace's document, or returns an empty state.
func (m *MemoryStore) Load(ctx context.Context, namespace string) (*model.LedgerState, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}

	m.mu.RLock()
	doc, ok := m.documents[namespace]
	m.mu.RUnlock()
	if !ok {
		return model.NewLedgerState(), nil
	}

	state, err := DecodeState(doc.data)
	if err != nil {
		return nil, err
	}
	state.Revision = doc.revision
	return state, nil
}

// Save encodes and stores the state if state.Revision is still the stored revision.
func (m *MemoryStore) Save(ctx context.Context, namespace string, state *model.LedgerState) error {
	if err := validateSaveArgs(ctx, namespace, state); err != nil {
		return err
	}

	data, err := EncodeState(state)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.documents[namespace].revision
	if current != state.Revision {
		return conflictError(namespace, state.Revision, current)
	}
	m.documents[namespace] = memoryDocument{data: data, revision: current + 1}
	state.Revision = current + 1
	return nil
}

// Seed replaces the namespace's document without going through an engine,
// whatever revision is stored.
func (m *MemoryStore) Seed(namespace string, state *model.LedgerState) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	data, err := EncodeState(state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[namespace] = memoryDocument{data: data, revision: m.documents[namespace].revision + 1}
	return nil
}

// Raw returns the stored document for namespace.
func (m *MemoryStore) Raw(namespace string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[namespace]
	return doc.data, ok
}

// SetRaw stores an arbitrary document, which may be corrupt.
func (m *MemoryStore) SetRaw(namespace string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[namespace] = memoryDocument{data: data, revision: m.documents[namespace].revision + 1}
}
