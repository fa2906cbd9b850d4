// Package sweep implements the sweeper (spec §4.6, C6): the orchestrator
// that resolves a retention policy, builds the live set by traversal,
// freezes it, and then walks every reflog-registered candidate a second
// time to condemn whatever the live set does not cover.
package sweep

import (
	"context"
	"io"
	"sync"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/casvault/gcsweep/fetch"
	"github.com/casvault/gcsweep/hashid"
	"github.com/casvault/gcsweep/livefilter"
	"github.com/casvault/gcsweep/reflog"
	"github.com/casvault/gcsweep/retention"
	"github.com/casvault/gcsweep/walk"
)

var mon = monkit.Package()

// Error is the error class for a hard-failure run: CORRUPT during either
// traversal phase, or REFLOG_ERROR (spec §7).
var Error = errs.Class("sweep")

// Uploader is the sweeper's asynchronous delete sink collaborator (spec
// §4.7, C7). deleter.Deleter satisfies this.
type Uploader interface {
	DeleteAsync(hash hashid.Hash)
	ErrorsSoFar() int64
	// Finalize blocks until every delete enqueued so far has completed,
	// so ErrorsSoFar() has stabilised by the time it returns.
	Finalize(ctx context.Context)
}

// Config bundles the retention policy and external interfaces (spec §6)
// a single GC run needs.
type Config struct {
	Retention retention.Config
	// DeletionLog, if non-nil, receives one line per condemned hash in
	// textual hash-with-suffix form (spec §6). No preamble, no summary.
	DeletionLog io.Writer
}

// Result is the sweeper's post-run report (spec §4.6 counters plus the
// overall success/failure boolean spec §7 mandates).
//
// OldestTrunkCatalog is the minimum timestamp among preserved root
// catalogs on the trunk previous-chain. When pruning keeps only the head
// it equals the head's timestamp; it is 0 when the head catalog itself
// was not found.
type Result struct {
	Success                bool
	PreservedCatalogCount  int64
	CondemnedCatalogCount  int64
	CondemnedObjectsCount  int64
	OldestTrunkCatalog     int64
	RetentionConflictCount int64
}

// Sweeper runs one GC pass against a fixed fetcher and reflog.
type Sweeper struct {
	log      *zap.Logger
	fetcher  fetch.Fetcher
	reflog   reflog.Reflog
	uploader Uploader
	cfg      Config
}

// New creates a Sweeper.
func New(log *zap.Logger, fetcher fetch.Fetcher, rl reflog.Reflog, uploader Uploader, cfg Config) *Sweeper {
	return &Sweeper{
		log:      log.Named("sweep"),
		fetcher:  fetcher,
		reflog:   rl,
		uploader: uploader,
		cfg:      cfg,
	}
}

func (s *Sweeper) traverser() walk.Traverser {
	if s.cfg.Retention.NumThreads <= 1 {
		return walk.Serial{}
	}
	return walk.Parallel{}
}

// Run executes Phase A (live set construction) then Phase B (condemned
// walk and deletion), returning the final counters and success boolean.
func (s *Sweeper) Run(ctx context.Context) (res Result, err error) {
	defer mon.Task()(&ctx)(&err)

	resolution, err := retention.Resolve(ctx, s.log, s.cfg.Retention, s.fetcher, s.reflog)
	if err != nil {
		return Result{}, Error.Wrap(err)
	}

	filter := livefilter.New()

	preserved, oldestTrunk, conflicts, err := s.phaseA(ctx, filter, resolution)
	if err != nil {
		return Result{}, Error.Wrap(err)
	}
	filter.Freeze()

	var dlMu sync.Mutex
	condemnedCatalogs, condemnedObjects, err := s.phaseB(ctx, filter, resolution, &dlMu)
	if err != nil {
		return Result{}, Error.Wrap(err)
	}

	s.uploader.Finalize(ctx)

	res = Result{
		Success:                s.uploader.ErrorsSoFar() == 0,
		PreservedCatalogCount:  preserved,
		CondemnedCatalogCount:  condemnedCatalogs,
		CondemnedObjectsCount:  condemnedObjects,
		OldestTrunkCatalog:     oldestTrunk,
		RetentionConflictCount: conflicts,
	}
	return res, nil
}

// phaseA walks every live entry point, filling filter with every visited
// catalog hash and referenced object hash, and returns the number of
// distinct catalogs newly added to the live set plus the oldest
// preserved trunk-catalog timestamp (spec §4.6 Phase A, §9 open question
// on oldest_trunk_catalog's convention).
func (s *Sweeper) phaseA(ctx context.Context, filter *livefilter.Filter, resolution retention.Resolution) (preserved, oldestTrunk, conflicts int64, err error) {
	entryMeta := make(map[hashid.Hash]retention.LiveEntry, len(resolution.LiveEntries))
	var trunkRoots, otherRoots []walk.EntryPoint
	for _, e := range resolution.LiveEntries {
		entryMeta[e.Hash] = e
		if e.Kind == retention.EntryHead {
			trunkRoots = append(trunkRoots, e.EntryPoint)
		} else {
			otherRoots = append(otherRoots, e.EntryPoint)
		}
	}

	v := &liveVisitor{
		log:         s.log,
		filter:      filter,
		entryMeta:   entryMeta,
		oldestTrunk: -1,
	}

	tv := s.traverser()

	if len(trunkRoots) > 0 {
		v.trackTrunk = true
		if err := tv.Traverse(ctx, s.fetcher, walk.Options{
			Roots:   trunkRoots,
			Depth:   resolution.Depth,
			Workers: s.cfg.Retention.NumThreads,
			Reflog:  s.reflog,
		}, v); err != nil {
			return 0, 0, 0, err
		}
	}
	if len(otherRoots) > 0 {
		v.trackTrunk = false
		if err := tv.Traverse(ctx, s.fetcher, walk.Options{
			Roots:   otherRoots,
			Depth:   walk.DepthPolicy{FullHistory: true},
			Workers: s.cfg.Retention.NumThreads,
			Reflog:  s.reflog,
		}, v); err != nil {
			return 0, 0, 0, err
		}
	}

	if v.oldestTrunk == -1 {
		// No trunk root was ever visited: either resolution has no
		// EntryHead (retention.Resolve always emits one) or the head
		// catalog itself was not found. Nothing to report as oldest.
		v.oldestTrunk = 0
	}

	return v.preservedCount.Load(), v.oldestTrunk, v.conflictCount.Load(), nil
}

// phaseB walks every reflog-registered candidate in a single post-order
// traversal call, so the walker's own claim table deduplicates catalogs
// shared between two condemned candidates (spec §9's dedup note). A
// catalog or object already present in the frozen live filter is skipped
// rather than condemned, which is what enforces I5 in the face of
// content-addressed subtree reuse between a condemned root and an
// unrelated live root.
func (s *Sweeper) phaseB(ctx context.Context, filter *livefilter.Filter, resolution retention.Resolution, dlMu *sync.Mutex) (catalogs, objects int64, err error) {
	if len(resolution.CondemnedCandidates) == 0 {
		return 0, 0, nil
	}

	v := &condemnedVisitor{
		log:         s.log,
		filter:      filter,
		uploader:    s.uploader,
		reflog:      s.reflog,
		deletionLog: s.cfg.DeletionLog,
		dlMu:        dlMu,
		dryRun:      s.cfg.Retention.DryRun,
		seenObjects: make(map[livefilter.Key]struct{}),
	}

	tv := s.traverser()
	if err := tv.Traverse(ctx, s.fetcher, walk.Options{
		Roots:     resolution.CondemnedCandidates,
		Depth:     walk.DepthPolicy{FullHistory: true},
		PostOrder: true,
		Workers:   s.cfg.Retention.NumThreads,
		Reflog:    s.reflog,
	}, v); err != nil {
		return 0, 0, err
	}

	return v.catalogCount.Load(), v.objectCount.Load(), nil
}
