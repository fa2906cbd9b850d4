package walk

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/casvault/gcsweep/catalog"
	"github.com/casvault/gcsweep/fetch"
	"github.com/casvault/gcsweep/hashid"
)

// Parallel is the bounded-parallel Traverser: every catalog expansion runs
// on a single shared errgroup.Group, while a semaphore sized Workers gates
// the actual FetchCatalog calls — the pack's errgroup-per-pool idiom,
// adapted so the bounded resource is the blocking I/O (spec §5's
// suspension point) rather than the orchestration goroutines themselves.
// A goroutine blocked waiting for a sibling's result never holds a
// semaphore slot, so the acyclic catalog DAG (I2) cannot deadlock the
// pool.
type Parallel struct{}

var _ Traverser = Parallel{}

// pnode tracks the in-flight/completed state of one claimed hash.
type pnode struct {
	done chan struct{}
}

type parallelClaims struct {
	mu    sync.Mutex
	nodes map[hashid.Hash]*pnode
}

func newParallelClaims() *parallelClaims {
	return &parallelClaims{nodes: make(map[hashid.Hash]*pnode)}
}

// acquire returns (node, true) if the caller becomes the owner responsible
// for expanding hash and must close node.done when finished, or
// (node, false) if another goroutine already owns it and the caller
// should wait on node.done instead.
func (c *parallelClaims) acquire(hash hashid.Hash) (*pnode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.nodes[hash]; ok {
		return n, false
	}
	n := &pnode{done: make(chan struct{})}
	c.nodes[hash] = n
	return n, true
}

// pctx bundles the values every recursive step of a parallel traversal
// needs, so they thread through without a long parameter list growing
// every time the walk gains a new piece of shared state.
type pctx struct {
	fetcher fetch.Fetcher
	opts    Options
	visitor Visitor
	claims  *parallelClaims
	sem     chan struct{}
	visitMu *sync.Mutex
	eg      *errgroup.Group
}

// Traverse implements Traverser.
func (Parallel) Traverse(ctx context.Context, fetcher fetch.Fetcher, opts Options, visitor Visitor) (err error) {
	defer mon.Task()(&ctx)(&err)

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	mon.IntVal("walk-parallel-workers").Observe(int64(workers))

	eg, gctx := errgroup.WithContext(ctx)
	p := &pctx{
		fetcher: fetcher,
		opts:    opts,
		visitor: visitor,
		claims:  newParallelClaims(),
		sem:     make(chan struct{}, workers),
		visitMu: &sync.Mutex{},
		eg:      eg,
	}

	for _, root := range opts.Roots {
		root := root
		eg.Go(func() error {
			return p.walkTrunk(gctx, root)
		})
	}
	return eg.Wait()
}

func (p *pctx) fetch(ctx context.Context, hash hashid.Hash) (catalog.Catalog, fetch.Status, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return catalog.Catalog{}, fetch.NotFound, ctx.Err()
	}
	defer func() { <-p.sem }()
	return p.fetcher.FetchCatalog(ctx, hash, "")
}

func (p *pctx) emit(ctx context.Context, rec Record) error {
	p.visitMu.Lock()
	defer p.visitMu.Unlock()
	return p.visitor.Visit(ctx, rec)
}

func waitNode(ctx context.Context, node *pnode) error {
	select {
	case <-node.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pctx) walkTrunk(ctx context.Context, root EntryPoint) error {
	hash := root.Hash
	parent := hashid.Null
	isTrunkRoot := root.FollowPrevious
	first := true
	var headRevision int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if hash.IsNull() {
			return nil
		}
		if _, ignored := p.opts.Ignore[hash]; ignored {
			return nil
		}

		c, status, err := p.fetch(ctx, hash)
		if err != nil {
			return err
		}
		if status == fetch.Corrupt {
			return Error.New("corrupt catalog %s", hash)
		}
		if status == fetch.NotFound {
			p.visitor.NotFound(ctx, hash, parent)
			return nil
		}

		if first {
			headRevision = c.Revision
		}

		ts := timestampOf(ctx, p.opts.Reflog, c.Timestamp, c.Hash, p.opts.Depth.TimestampSource)
		if !first && !trunkEligible(p.opts.Depth, headRevision, c.Revision, ts) {
			return nil
		}

		if node, owner := p.claims.acquire(hash); owner {
			err := p.walkNested(ctx, c.Hash, c.Nested)
			if err == nil {
				err = p.emit(ctx, toRecord(c, ts, true))
			}
			close(node.done)
			if err != nil {
				return err
			}
		} else if err := waitNode(ctx, node); err != nil {
			return err
		}

		if !isTrunkRoot {
			return nil
		}

		parent = c.Hash
		hash = c.Previous
		first = false
	}
}

// walkNested expands every child of parent. When PostOrder is requested it
// waits for all children to finish before returning, so the caller only
// emits its own record afterwards (post-order preserved under
// concurrency); otherwise children are spawned on the shared errgroup and
// left to complete on their own time, since the live walk does not care
// about ordering (spec §4.4).
func (p *pctx) walkNested(ctx context.Context, parent hashid.Hash, nested []hashid.Hash) error {
	if len(nested) == 0 {
		return nil
	}

	if !p.opts.PostOrder {
		for _, childHash := range nested {
			childHash := childHash
			p.eg.Go(func() error {
				return p.expandChild(ctx, parent, childHash)
			})
		}
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(len(nested))
	for _, childHash := range nested {
		childHash := childHash
		p.eg.Go(func() error {
			defer wg.Done()
			return p.expandChild(ctx, parent, childHash)
		})
	}
	wg.Wait()
	return ctx.Err()
}

func (p *pctx) expandChild(ctx context.Context, parent, childHash hashid.Hash) error {
	node, owner := p.claims.acquire(childHash)
	if !owner {
		return waitNode(ctx, node)
	}

	c, status, err := p.fetch(ctx, childHash)
	if err != nil {
		close(node.done)
		return err
	}
	if status == fetch.Corrupt {
		close(node.done)
		return Error.New("corrupt catalog %s", childHash)
	}
	if status == fetch.NotFound {
		p.visitor.NotFound(ctx, childHash, parent)
		close(node.done)
		return nil
	}

	err = p.walkNested(ctx, c.Hash, c.Nested)
	if err == nil {
		ts := timestampOf(ctx, p.opts.Reflog, c.Timestamp, c.Hash, p.opts.Depth.TimestampSource)
		err = p.emit(ctx, toRecord(c, ts, false))
	}
	close(node.done)
	return err
}
