package livefilter

import (
	"hash/maphash"
	"sync/atomic"
)

// frontFilter is a small fixed false-positive-rate membership pre-check, in
// the spirit of the pack's satellite/gc/bloomfilter observer: cheap to
// update under heavy concurrent writes, never a false negative, occasional
// false positive that just costs an extra exact-map lookup.
type frontFilter struct {
	bits []atomic.Uint64
	seed maphash.Seed
	mask uint64
}

func newFrontFilter(bitCount uint64) frontFilter {
	words := (bitCount + 63) / 64
	return frontFilter{
		bits: make([]atomic.Uint64, words),
		seed: maphash.MakeSeed(),
		mask: words*64 - 1,
	}
}

func (f frontFilter) positions(k Key) (uint64, uint64) {
	h := maphash.Bytes(f.seed, k[:])
	h2 := h>>32 | h<<32
	return h & f.mask, h2 & f.mask
}

func (f frontFilter) add(k Key) {
	if len(f.bits) == 0 {
		return
	}
	p0, p1 := f.positions(k)
	f.setBit(p0)
	f.setBit(p1)
}

func (f frontFilter) setBit(pos uint64) {
	word, bit := pos/64, pos%64
	for {
		old := f.bits[word].Load()
		next := old | (1 << bit)
		if next == old || f.bits[word].CompareAndSwap(old, next) {
			return
		}
	}
}

func (f frontFilter) maybeContains(k Key) bool {
	if len(f.bits) == 0 {
		return true
	}
	p0, p1 := f.positions(k)
	return f.testBit(p0) && f.testBit(p1)
}

func (f frontFilter) testBit(pos uint64) bool {
	word, bit := pos/64, pos%64
	return f.bits[word].Load()&(1<<bit) != 0
}
