package sweep

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/casvault/gcsweep/hashid"
	"github.com/casvault/gcsweep/livefilter"
	"github.com/casvault/gcsweep/reflog"
	"github.com/casvault/gcsweep/retention"
	"github.com/casvault/gcsweep/walk"
)

// liveVisitor implements walk.Visitor for Phase A: every visited
// catalog's hash and referenced object hashes are filled into the live
// filter; preservedCount tracks distinct catalogs newly added (dedup
// across the trunk walk and the tag/recycle-bin walk); oldestTrunk
// tracks the minimum timestamp among root-of-traversal records emitted
// while walking the trunk previous-chain specifically.
type liveVisitor struct {
	log       *zap.Logger
	filter    *livefilter.Filter
	entryMeta map[hashid.Hash]retention.LiveEntry

	trackTrunk bool

	preservedCount atomic.Int64
	conflictCount  atomic.Int64

	mu          sync.Mutex
	oldestTrunk int64
}

func (v *liveVisitor) Visit(_ context.Context, rec walk.Record) error {
	if v.filter.FillIfAbsent(livefilter.KeyOf(rec.Hash)) {
		v.preservedCount.Add(1)
	}
	for _, obj := range rec.ReferencedObjects {
		v.filter.Fill(livefilter.KeyOf(obj.Hash))
	}

	if v.trackTrunk && rec.IsRootOfTraversal {
		v.mu.Lock()
		if v.oldestTrunk == -1 || rec.Timestamp < v.oldestTrunk {
			v.oldestTrunk = rec.Timestamp
		}
		v.mu.Unlock()
	}
	return nil
}

// NotFound distinguishes a RETENTION_CONFLICT (a named snapshot or
// recycle-bin target itself is missing — parent is the null hash because
// this hash is the entry point's own hash) from an ordinary I7 partial
// loss encountered deeper in a live subtree, which is tolerated silently
// the same way the condemned walk tolerates it.
func (v *liveVisitor) NotFound(_ context.Context, hash hashid.Hash, parent hashid.Hash) {
	if entry, ok := v.entryMeta[hash]; ok && parent.IsNull() && entry.Kind != retention.EntryHead {
		v.conflictCount.Add(1)
		v.log.Warn("retention conflict: named snapshot target missing, downgraded to not-live",
			zap.String("label", entry.Label), zap.Stringer("hash", hash))
		return
	}
	v.log.Debug("live walk: catalog not found, subtree pruned", zap.Stringer("hash", hash))
}

// condemnedVisitor implements walk.Visitor for Phase B. Options.PostOrder
// guarantees a catalog's nested children are fully processed — their
// objects condemned or preserved, condemned status established — before
// the catalog's own record arrives here.
type condemnedVisitor struct {
	log         *zap.Logger
	filter      *livefilter.Filter
	uploader    Uploader
	reflog      reflog.Reflog
	deletionLog io.Writer
	dlMu        *sync.Mutex
	dryRun      bool

	seenMu      sync.Mutex
	seenObjects map[livefilter.Key]struct{}

	catalogCount atomic.Int64
	objectCount  atomic.Int64
}

func (v *condemnedVisitor) Visit(ctx context.Context, rec walk.Record) error {
	for _, obj := range rec.ReferencedObjects {
		v.condemnObject(obj.Hash)
	}

	catalogKey := livefilter.KeyOf(rec.Hash)
	if v.filter.Contains(catalogKey) {
		// This candidate's own hash turned out to be live — reachable
		// from a live root via content-addressed reuse, or independently
		// reflog-registered while also being covered by retention. I5
		// forbids emitting it as condemned even though it arrived via a
		// condemned-candidate walk.
		return nil
	}

	v.catalogCount.Add(1)
	v.writeDeletionLog(rec.Hash)
	if !v.dryRun {
		v.uploader.DeleteAsync(rec.Hash)
		if err := v.reflog.Remove(ctx, rec.Hash); err != nil {
			return reflog.Error.Wrap(err)
		}
	}
	return nil
}

func (v *condemnedVisitor) condemnObject(hash hashid.Hash) {
	key := livefilter.KeyOf(hash)
	if v.filter.Contains(key) {
		return
	}

	v.seenMu.Lock()
	_, seen := v.seenObjects[key]
	if !seen {
		v.seenObjects[key] = struct{}{}
	}
	v.seenMu.Unlock()
	if seen {
		return
	}

	v.objectCount.Add(1)
	v.writeDeletionLog(hash)
	if !v.dryRun {
		v.uploader.DeleteAsync(hash)
	}
}

func (v *condemnedVisitor) writeDeletionLog(hash hashid.Hash) {
	if v.deletionLog == nil {
		return
	}
	v.dlMu.Lock()
	defer v.dlMu.Unlock()
	_, _ = io.WriteString(v.deletionLog, hash.String()+"\n")
}

func (v *condemnedVisitor) NotFound(_ context.Context, hash hashid.Hash, _ hashid.Hash) {
	v.log.Debug("condemned walk: catalog not found, subtree pruned (I7)", zap.Stringer("hash", hash))
}
