// Package walk implements catalog traversal (spec §4.4): walking the
// catalog DAG from a set of entry points, yielding each reachable catalog
// at most once, with an optional post-order guarantee the sweeper's
// condemned pass relies on. Two interchangeable strategies — Serial and
// Parallel — sit behind the single Traverser contract, mirroring the
// pack's pattern of a serial and a bounded-parallel implementation tested
// against the same behavioral contract.
package walk

import (
	"context"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/casvault/gcsweep/catalog"
	"github.com/casvault/gcsweep/fetch"
	"github.com/casvault/gcsweep/hashid"
)

var mon = monkit.Package()

// Error is the error class for a CORRUPT hard failure encountered during
// traversal.
var Error = errs.Class("walk")

// DepthPolicy selects which root catalogs along a trunk previous-chain are
// eligible for a walk to descend into, and where it must stop.
type DepthPolicy struct {
	// FullHistory, when true, never prunes the previous-chain.
	FullHistory bool
	// KeepHistoryDepth preserves this many revisions back from the first
	// catalog of whichever entry point has FollowPrevious set — that
	// catalog's own revision is taken as the head baseline, so the
	// caller never has to fetch it twice just to learn the number.
	// Ignored when FullHistory is true.
	KeepHistoryDepth int64
	// KeepHistoryTimestamp preserves any catalog whose timestamp is
	// strictly greater than this value. UnsetTimestamp (-1), not the zero
	// value, means no timestamp-based preservation.
	KeepHistoryTimestamp int64
	// TimestampSource selects whether pruning decisions read a catalog's
	// embedded timestamp or the reflog's registration timestamp for it.
	TimestampSource TimestampSource
}

// UnsetTimestamp is the sentinel for "no timestamp-based retention".
const UnsetTimestamp = int64(-1)

// TimestampSource selects where a traversal reads a catalog's timestamp
// from when evaluating the depth predicate.
type TimestampSource int

const (
	// CatalogEmbeddedTimestamp reads Catalog.Timestamp.
	CatalogEmbeddedTimestamp TimestampSource = iota
	// ReflogRegisteredTimestamp reads the reflog's Timestamp(hash).
	ReflogRegisteredTimestamp
)

// EntryPoint is a root catalog hash to start a walk from.
type EntryPoint struct {
	Hash hashid.Hash
	// FollowPrevious marks this entry point as the head of the trunk
	// previous-chain: after visiting it, the traversal continues to its
	// Previous link under the depth predicate (spec §4.4). Entry points
	// contributed by named snapshots or recycle-bin recovery (spec
	// §4.5.4-5) leave this false — only their own subtree is live, not
	// their ancestry.
	FollowPrevious bool
}

// Record is yielded for every catalog a traversal visits.
type Record struct {
	Hash              hashid.Hash
	Revision          int64
	Timestamp         int64
	IsRootOfTraversal bool
	ReferencedObjects []catalog.ReferencedObject
	NestedCatalogs    []hashid.Hash
	PreviousHash      hashid.Hash
}

// Visitor receives traversal records. Visit is called at most once per
// distinct catalog hash. When PostOrder is requested, Visit for a catalog
// is only called after Visit has returned for all of its nested children.
//
// NotFound is called instead of Visit when a catalog hash could not be
// fetched (I7); the traversal prunes that subtree and continues.
type Visitor interface {
	Visit(ctx context.Context, rec Record) error
	NotFound(ctx context.Context, hash hashid.Hash, parent hashid.Hash)
}

// Options configures a single traversal.
type Options struct {
	Roots []EntryPoint
	Depth DepthPolicy
	// Ignore hashes whose Previous chain need not be followed further —
	// typically hashes already known live from an earlier phase.
	Ignore map[hashid.Hash]struct{}
	// PostOrder requires that a catalog is yielded only after all its
	// nested children have been yielded. The sweeper's condemned walk
	// requires this; the live walk does not care.
	PostOrder bool
	// Workers bounds parallelism for the Parallel traverser; ignored by
	// Serial. Workers <= 1 selects effectively-serial behavior even under
	// the Parallel traverser.
	Workers int
	// Reflog supplies Timestamp lookups when Depth.TimestampSource is
	// ReflogRegisteredTimestamp. May be nil when CatalogEmbeddedTimestamp
	// is used.
	Reflog timestampLookup
}

// Traverser walks a catalog DAG from a set of roots.
type Traverser interface {
	Traverse(ctx context.Context, fetcher fetch.Fetcher, opts Options, visitor Visitor) error
}
