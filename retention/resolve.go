// Package retention implements the retention policy (spec §4.5):
// resolving a Config plus the current history chain and reflog into the
// set of root catalogs a sweep must preserve, and the candidate set it
// must consider for condemnation.
//
// Resolve does not itself compute live_roots' transitive closure or
// condemned_roots' set difference — that requires walking the catalog
// DAG, which is the sweeper's job (spec §4.6 Phase A/B). Resolve's
// output is narrower and cheaper: the entry points Phase A should walk,
// tagged with the depth semantics each one carries, plus the raw reflog
// candidate list Phase B should consider. The sweeper enforces I5 (no
// hash in both live and condemned) by checking the frozen live filter
// during Phase B, not by Resolve pre-computing a set difference it has
// no way to evaluate before Phase A's walk completes.
package retention

import (
	"context"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"github.com/casvault/gcsweep/catalog"
	"github.com/casvault/gcsweep/fetch"
	"github.com/casvault/gcsweep/hashid"
	"github.com/casvault/gcsweep/reflog"
	"github.com/casvault/gcsweep/walk"
)

var mon = monkit.Package()

// EntryKind records which clause of spec §4.5 contributed a live entry
// point, so the sweeper can tell a head/trunk NotFound (tolerated, I7)
// apart from a named-snapshot NotFound (RETENTION_CONFLICT, spec §7).
type EntryKind int

const (
	// EntryHead is the current head root catalog (§4.5.1); carries the
	// trunk previous-chain (§4.5.2/3) behind it.
	EntryHead EntryKind = iota
	// EntryTag is a named snapshot's target in the current history
	// database (§4.5.4).
	EntryTag
	// EntryRecycleBin is a named snapshot's target recovered from a
	// preceding history database's recycle bin (§4.5.5).
	EntryRecycleBin
)

// LiveEntry is one root catalog Phase A must walk, annotated with why it
// is live.
type LiveEntry struct {
	walk.EntryPoint
	Kind  EntryKind
	Label string // tag name for EntryTag and EntryRecycleBin, empty for EntryHead
}

// Resolution is Resolve's output: what Phase A should walk, and what
// Phase B should consider.
type Resolution struct {
	// LiveEntries are the entry points Phase A's traversal walks.
	LiveEntries []LiveEntry
	// Depth is the depth predicate governing how far along each
	// EntryHead entry's previous-chain the trunk walk descends.
	Depth walk.DepthPolicy
	// CondemnedCandidates are every reflog-registered catalog hash,
	// as entry points for Phase B. Phase B's own per-catalog liveness
	// check against the frozen live filter is what actually separates
	// live from condemned (spec §4.5's set difference); Resolve does
	// not attempt that separation itself since it cannot know the live
	// closure before Phase A runs.
	CondemnedCandidates []walk.EntryPoint
}

// Resolve implements spec §4.5. It fetches the current head manifest and
// history database, walks the full PreviousRevision chain of histories
// to recover recycle-bin targets, and lists the reflog for Phase B's
// candidate set.
func Resolve(ctx context.Context, log *zap.Logger, cfg Config, fetcher fetch.Fetcher, rlog reflog.Reflog) (_ Resolution, err error) {
	defer mon.Task()(&ctx)(&err)

	log = log.Named("retention")

	res := Resolution{Depth: cfg.depthPolicy()}

	head, err := fetcher.HeadManifest(ctx)
	if err != nil {
		return Resolution{}, err
	}

	res.LiveEntries = append(res.LiveEntries, LiveEntry{
		EntryPoint: walk.EntryPoint{Hash: head.RootCatalogHash, FollowPrevious: true},
		Kind:       EntryHead,
	})

	if !head.HistoryHash.IsNull() {
		current, status, err := fetcher.FetchHistory(ctx, head.HistoryHash)
		switch {
		case err != nil:
			return Resolution{}, err
		case status == fetch.Corrupt:
			return Resolution{}, fetch.Error.New("corrupt history %s", head.HistoryHash)
		case status == fetch.NotFound:
			log.Warn("head history database missing; skipping tag/recycle-bin retention",
				zap.Stringer("hash", head.HistoryHash))
		default:
			res.appendTags(current)
			res.collectRecycleBins(ctx, log, fetcher, current.PreviousRevision)
		}
	}

	entries, err := rlog.ListCatalogs(ctx)
	if err != nil {
		return Resolution{}, reflog.Error.Wrap(err)
	}
	for _, e := range entries {
		if e.Hash.Suffix != hashid.SuffixCatalog {
			// The reflog also tracks certificate/history/metainfo
			// top-level objects (spec glossary); only root catalogs
			// are within this sweep's condemned-walk scope.
			continue
		}
		res.CondemnedCandidates = append(res.CondemnedCandidates, walk.EntryPoint{Hash: e.Hash, FollowPrevious: false})
	}

	return res, nil
}

// appendTags adds every tag's target across every branch of h (spec
// §4.5.4 — "every tag ... on every branch" is satisfied by iterating
// h.Tags directly; Tag.Branch is metadata, not a partition that excludes
// any tag from this set).
func (res *Resolution) appendTags(h catalog.History) {
	for _, tag := range h.Tags {
		res.LiveEntries = append(res.LiveEntries, LiveEntry{
			EntryPoint: walk.EntryPoint{Hash: tag.RootHash, FollowPrevious: false},
			Kind:       EntryTag,
			Label:      tag.Name,
		})
	}
}

// collectRecycleBins walks the PreviousRevision chain of history
// databases starting at prevHash, adding every recycle-bin tag's target
// as a live entry (spec §4.5.5's orphan-recovery rationale). A missing
// history database along the chain stops recovery for everything before
// it but is not a hard failure — those older recycle bins simply cannot
// be consulted this run.
func (res *Resolution) collectRecycleBins(ctx context.Context, log *zap.Logger, fetcher fetch.Fetcher, prevHash hashid.Hash) {
	for !prevHash.IsNull() {
		h, status, err := fetcher.FetchHistory(ctx, prevHash)
		if err != nil || status != fetch.OK {
			log.Warn("could not follow history chain further for recycle-bin recovery",
				zap.Stringer("hash", prevHash), zap.Error(err))
			return
		}
		for _, tag := range h.RecycleBin {
			res.LiveEntries = append(res.LiveEntries, LiveEntry{
				EntryPoint: walk.EntryPoint{Hash: tag.RootHash, FollowPrevious: false},
				Kind:       EntryRecycleBin,
				Label:      tag.Name,
			})
		}
		prevHash = h.PreviousRevision
	}
}
