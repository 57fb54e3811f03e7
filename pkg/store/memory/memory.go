package memory

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/openbloc/merkledrop-go/pkg/cid"
	"github.com/openbloc/merkledrop-go/pkg/store"
)

// MemoryStore is an in-memory implementation of IContentStore, intended for
// tests and single-process demos. All blobs are lost when the process exits.
// Thread-safe via sync.RWMutex; blobs are copied on the way in and out to
// prevent external mutation.
type MemoryStore struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	closed bool
}

var _ store.IContentStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory content store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
	}
}

// Put stores a blob keyed by its derived content id.
func (m *MemoryStore) Put(_ context.Context, blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", errors.New("cannot store empty blob")
	}

	id, err := store.Address(blob)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", errors.New("content store is closed")
	}

	if _, exists := m.blobs[id]; !exists {
		kept := make([]byte, len(blob))
		copy(kept, blob)
		m.blobs[id] = kept
	}

	return id, nil
}

// Get fetches a blob by content id.
func (m *MemoryStore) Get(_ context.Context, id string) ([]byte, error) {
	if _, err := cid.ToDigest(id); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errors.New("content store is closed")
	}

	blob, exists := m.blobs[id]
	if !exists {
		return nil, errors.Wrap(store.ErrNotFound, id)
	}

	out := make([]byte, len(blob))
	copy(out, blob)

	if err := store.VerifyBlob(id, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Has reports whether a blob exists for the content id.
func (m *MemoryStore) Has(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, errors.New("content store is closed")
	}

	_, exists := m.blobs[id]
	return exists, nil
}

// Close marks the store closed. Idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.blobs = nil
	return nil
}

// HealthCheck reports whether the store is usable.
func (m *MemoryStore) HealthCheck(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return errors.New("content store is closed")
	}
	return nil
}
