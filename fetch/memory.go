package fetch

import (
	"context"
	"sync"

	"github.com/casvault/gcsweep/catalog"
	"github.com/casvault/gcsweep/hashid"
)

// MemoryFetcher is an in-memory Fetcher for tests, the pack's equivalent
// of a "static singleton mock store" turned into an explicit, per-test
// instance (spec §9 design note 2): callers construct one and pass it in
// configuration rather than reaching for ambient state.
type MemoryFetcher struct {
	mu        sync.RWMutex
	catalogs  map[hashid.Hash]catalog.Catalog
	histories map[hashid.Hash]catalog.History
	missing   map[hashid.Hash]struct{}
	corrupt   map[hashid.Hash]struct{}
	head      HeadManifest
}

// NewMemoryFetcher creates an empty MemoryFetcher.
func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{
		catalogs:  make(map[hashid.Hash]catalog.Catalog),
		histories: make(map[hashid.Hash]catalog.History),
		missing:   make(map[hashid.Hash]struct{}),
		corrupt:   make(map[hashid.Hash]struct{}),
	}
}

// PutCatalog registers a catalog for retrieval.
func (m *MemoryFetcher) PutCatalog(c catalog.Catalog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalogs[c.Hash] = c
}

// PutHistory registers a history database for retrieval.
func (m *MemoryFetcher) PutHistory(h catalog.History) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories[h.Hash] = h
}

// SetHead sets the manifest returned by HeadManifest.
func (m *MemoryFetcher) SetHead(head HeadManifest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.head = head
}

// MarkMissing makes subsequent fetches of hash report NotFound,
// simulating an externally deleted object (spec S_dangling).
func (m *MemoryFetcher) MarkMissing(hash hashid.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missing[hash] = struct{}{}
	delete(m.catalogs, hash)
}

// MarkCorrupt makes subsequent fetches of hash report Corrupt.
func (m *MemoryFetcher) MarkCorrupt(hash hashid.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corrupt[hash] = struct{}{}
}

// FetchCatalog implements Fetcher.
func (m *MemoryFetcher) FetchCatalog(_ context.Context, hash hashid.Hash, _ string) (catalog.Catalog, Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, bad := m.corrupt[hash]; bad {
		return catalog.Catalog{}, Corrupt, Error.New("catalog %s failed validation", hash)
	}
	if _, gone := m.missing[hash]; gone {
		return catalog.Catalog{}, NotFound, nil
	}
	c, ok := m.catalogs[hash]
	if !ok {
		return catalog.Catalog{}, NotFound, nil
	}
	return c, OK, nil
}

// FetchHistory implements Fetcher.
func (m *MemoryFetcher) FetchHistory(_ context.Context, hash hashid.Hash) (catalog.History, Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, bad := m.corrupt[hash]; bad {
		return catalog.History{}, Corrupt, Error.New("history %s failed validation", hash)
	}
	if _, gone := m.missing[hash]; gone {
		return catalog.History{}, NotFound, nil
	}
	h, ok := m.histories[hash]
	if !ok {
		return catalog.History{}, NotFound, nil
	}
	return h, OK, nil
}

// HeadManifest implements Fetcher.
func (m *MemoryFetcher) HeadManifest(_ context.Context) (HeadManifest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.head, nil
}
