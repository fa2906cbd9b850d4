package reflog

import (
	"context"
	"sync"

	"github.com/casvault/gcsweep/hashid"
)

// MemoryReflog is an in-memory Reflog, single-writer during a GC run as
// spec §5 requires; its removals are synchronous.
type MemoryReflog struct {
	mu      sync.Mutex
	entries map[hashid.Hash]int64
}

// NewMemoryReflog creates an empty MemoryReflog.
func NewMemoryReflog() *MemoryReflog {
	return &MemoryReflog{entries: make(map[hashid.Hash]int64)}
}

// Register adds or updates an entry's timestamp.
func (m *MemoryReflog) Register(hash hashid.Hash, timestamp int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[hash] = timestamp
}

// ListCatalogs implements Reflog.
func (m *MemoryReflog) ListCatalogs(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.entries))
	for h, ts := range m.entries {
		out = append(out, Entry{Hash: h, Timestamp: ts})
	}
	return out, nil
}

// Remove implements Reflog.
func (m *MemoryReflog) Remove(_ context.Context, hash hashid.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, hash)
	return nil
}

// Timestamp implements Reflog.
func (m *MemoryReflog) Timestamp(_ context.Context, hash hashid.Hash) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.entries[hash]
	return ts, ok, nil
}

// Len reports the number of entries currently registered. Test/diagnostic
// helper only.
func (m *MemoryReflog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
