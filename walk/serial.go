package walk

import (
	"context"

	"github.com/casvault/gcsweep/catalog"
	"github.com/casvault/gcsweep/fetch"
	"github.com/casvault/gcsweep/hashid"
)

// Serial is the single-threaded Traverser. It is the degenerate case the
// bounded-parallel strategy reduces to at Workers<=1 (spec §5).
type Serial struct{}

var _ Traverser = Serial{}

type serialClaims struct {
	seen map[hashid.Hash]struct{}
}

func (c *serialClaims) claim(hash hashid.Hash) bool {
	if _, ok := c.seen[hash]; ok {
		return false
	}
	c.seen[hash] = struct{}{}
	return true
}

// Traverse implements Traverser.
func (Serial) Traverse(ctx context.Context, fetcher fetch.Fetcher, opts Options, visitor Visitor) (err error) {
	defer mon.Task()(&ctx)(&err)

	claims := &serialClaims{seen: make(map[hashid.Hash]struct{})}

	for _, root := range opts.Roots {
		if err := walkTrunk(ctx, fetcher, opts, visitor, claims, root); err != nil {
			return err
		}
	}
	return nil
}

// walkTrunk visits root's subtree, then — if root.FollowPrevious and the
// depth predicate allows — continues to the Previous root, repeating.
func walkTrunk(ctx context.Context, fetcher fetch.Fetcher, opts Options, visitor Visitor, claims *serialClaims, root EntryPoint) error {
	hash := root.Hash
	parent := hashid.Null
	isTrunkRoot := root.FollowPrevious
	first := true
	var headRevision int64

	for {
		if hash.IsNull() {
			return nil
		}
		if _, ignored := opts.Ignore[hash]; ignored {
			return nil
		}

		c, status, err := fetcher.FetchCatalog(ctx, hash, "")
		if err != nil || status == fetch.Corrupt {
			return Error.New("corrupt catalog %s: %v", hash, err)
		}
		if status == fetch.NotFound {
			visitor.NotFound(ctx, hash, parent)
			return nil
		}

		if first {
			headRevision = c.Revision
		}

		ts := timestampOf(ctx, opts.Reflog, c.Timestamp, c.Hash, opts.Depth.TimestampSource)
		if !first && !trunkEligible(opts.Depth, headRevision, c.Revision, ts) {
			return nil
		}

		if claims.claim(hash) {
			if err := walkNested(ctx, fetcher, opts, visitor, claims, c.Hash, c.Nested); err != nil {
				return err
			}
			if err := visitor.Visit(ctx, toRecord(c, ts, true)); err != nil {
				return err
			}
		}

		if !isTrunkRoot {
			return nil
		}

		parent = c.Hash
		hash = c.Previous
		first = false
	}
}

// walkNested recursively visits nested catalogs in post-order: a child is
// fully visited (its own nested tree expanded and its record emitted)
// before the loop returns to its parent's caller, which then emits the
// parent's own record. This is exactly spec §4.4's post-order guarantee.
func walkNested(ctx context.Context, fetcher fetch.Fetcher, opts Options, visitor Visitor, claims *serialClaims, parent hashid.Hash, nested []hashid.Hash) error {
	for _, childHash := range nested {
		if !claims.claim(childHash) {
			continue
		}

		c, status, err := fetcher.FetchCatalog(ctx, childHash, "")
		if err != nil || status == fetch.Corrupt {
			return Error.New("corrupt catalog %s: %v", childHash, err)
		}
		if status == fetch.NotFound {
			visitor.NotFound(ctx, childHash, parent)
			continue
		}

		if err := walkNested(ctx, fetcher, opts, visitor, claims, c.Hash, c.Nested); err != nil {
			return err
		}

		ts := timestampOf(ctx, opts.Reflog, c.Timestamp, c.Hash, opts.Depth.TimestampSource)
		if err := visitor.Visit(ctx, toRecord(c, ts, false)); err != nil {
			return err
		}
	}
	return nil
}

func toRecord(c catalog.Catalog, timestamp int64, isRoot bool) Record {
	return Record{
		Hash:              c.Hash,
		Revision:          c.Revision,
		Timestamp:         timestamp,
		IsRootOfTraversal: isRoot,
		ReferencedObjects: c.Objects,
		NestedCatalogs:    c.Nested,
		PreviousHash:      c.Previous,
	}
}
