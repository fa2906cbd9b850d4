// Package livefilter implements the hash filter (spec §4.1): a set of
// hashes that supports concurrent insertion by many producers during the
// fill phase, then a one-way freeze into a read-only set safe for
// concurrent lookup by many readers.
//
// The backing store shards by the first byte of the digest the way
// shared/nodeidmap shards storj.NodeID by a four-byte prefix, so writers
// contending on different shards never block each other.
package livefilter

import (
	"sync"
	"sync/atomic"
)

const shardCount = 256

// Filter is a concurrency-safe set of Key values.
//
// Fill may be called concurrently by multiple producers before Freeze.
// After Freeze, Fill panics and Contains is safe for unbounded concurrent
// readers, which share each shard's read lock.
type Filter struct {
	shards [shardCount]shard
	frozen atomic.Bool

	// front is a cheap probabilistic pre-check that Contains consults
	// before taking a shard's read lock. A miss here is conclusive (no
	// false negatives); a hit still falls through to the exact shard
	// lookup. This mirrors the pack's habit of gating an expensive exact
	// check behind a bloom filter. Fill does not consult it: every insert
	// takes its shard's lock.
	front frontFilter
}

type shard struct {
	mu   sync.RWMutex
	keys map[Key]struct{}
}

// Key is the comparable form of a hash used as the set element. Callers
// convert their domain hash type to Key (see KeyOf).
type Key [20]byte

// New creates an empty Filter sized for a default workload.
func New() *Filter {
	return NewSized(1 << 20)
}

// NewSized creates an empty Filter whose probabilistic front filter is
// sized for approximately expectedKeys insertions, the way the teacher's
// bloomfilter.OptimalParameters sizes a retain bloom filter from a node's
// last known piece count.
func NewSized(expectedKeys int) *Filter {
	f := &Filter{}
	for i := range f.shards {
		f.shards[i].keys = make(map[Key]struct{})
	}
	bits := uint64(1)
	minBits := uint64(expectedKeys) * 16 // ~2 bytes/key at k=2 hash functions
	for bits < minBits {
		bits <<= 1
	}
	if bits < 1<<10 {
		bits = 1 << 10
	}
	f.front = newFrontFilter(bits)
	return f
}

func (f *Filter) shardFor(k Key) *shard {
	return &f.shards[k[0]]
}

// Fill inserts k into the set. Fill must not be called after Freeze.
func (f *Filter) Fill(k Key) {
	f.FillIfAbsent(k)
}

// FillIfAbsent inserts k into the set and reports whether k was not
// already present — the check and the insert happen under the same
// shard lock, so a caller counting "distinct keys filled" by watching
// this return value never double-counts or races with a concurrent
// insert of the same key. Fill must not be called after Freeze.
func (f *Filter) FillIfAbsent(k Key) bool {
	if f.frozen.Load() {
		panic("livefilter: Fill called after Freeze")
	}
	s := f.shardFor(k)
	s.mu.Lock()
	_, exists := s.keys[k]
	if !exists {
		s.keys[k] = struct{}{}
	}
	s.mu.Unlock()
	if !exists {
		f.front.add(k)
	}
	return !exists
}

// Freeze forbids further Fill calls. After Freeze, Contains may be called
// by any number of concurrent readers without additional synchronization
// cost beyond the shard's read lock.
func (f *Filter) Freeze() {
	f.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (f *Filter) Frozen() bool {
	return f.frozen.Load()
}

// Contains reports whether k was inserted before Freeze.
func (f *Filter) Contains(k Key) bool {
	if !f.front.maybeContains(k) {
		return false
	}
	s := f.shardFor(k)
	s.mu.RLock()
	_, ok := s.keys[k]
	s.mu.RUnlock()
	return ok
}

// Len returns the number of distinct keys filled so far. Intended for
// diagnostics and tests, not for hot-path logic.
func (f *Filter) Len() int {
	n := 0
	for i := range f.shards {
		f.shards[i].mu.RLock()
		n += len(f.shards[i].keys)
		f.shards[i].mu.RUnlock()
	}
	return n
}
