package deleter

import (
	"context"
	"sync"
)

// MemoryBackend is an in-memory Backend test double recording every path
// it was asked to delete.
type MemoryBackend struct {
	mu      sync.Mutex
	deleted []string
	failing map[string]struct{}
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{failing: make(map[string]struct{})}
}

// FailPath makes subsequent Delete calls for storagePath return an error.
func (m *MemoryBackend) FailPath(storagePath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[storagePath] = struct{}{}
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, storagePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, bad := m.failing[storagePath]; bad {
		return Error.New("simulated delete failure for %s", storagePath)
	}
	m.deleted = append(m.deleted, storagePath)
	return nil
}

// Deleted returns every storage path successfully deleted so far.
func (m *MemoryBackend) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}
