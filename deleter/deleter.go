// Package deleter implements the uploader sink (spec §4.7, C7): an
// asynchronous delete-request queue that accepts condemned hashes from
// the sweeper and issues best-effort delete calls against a storage
// Backend, without the sweeper ever blocking on completion.
package deleter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/casvault/gcsweep/hashid"
)

var mon = monkit.Package()

// Error is the error class for sink misuse (double start, use after
// close) and for MemoryBackend's simulated failures. Per-delete backend errors are logged
// and counted, never raised as Go errors (spec §4.7 — the sweeper does
// not depend on delete ordering or individual outcomes, only on the
// aggregate errors_so_far()).
var Error = errs.Class("deleter")

// Backend performs the actual storage deletion for one object, addressed
// by its storage path (spec §6 — "delete-request input is the object's
// storage path, not the hash").
type Backend interface {
	Delete(ctx context.Context, storagePath string) error
}

// Deleter is the sweeper's uploader collaborator: a bounded-queue,
// worker-pool sink that processes delete requests best-effort and
// asynchronously, modeled directly on the pack's piece deleter.
type Deleter struct {
	mu         sync.Mutex
	ch         chan request
	numWorkers int
	eg         *errgroup.Group
	log        *zap.Logger
	backend    Backend
	stop       func()
	closed     bool

	errorCount atomic.Int64

	// pending/drained track outstanding (enqueued but not yet completed)
	// requests so Wait/Finalize can block until the queue is fully
	// drained and errorCount has stabilised (spec §4.7). Tracking is
	// unconditional, not test-only, since production callers need the
	// same completion guarantee Finalize promises.
	pending int
	drained chan struct{}
}

type request struct {
	hash      hashid.Hash
	queueTime time.Time
}

// NewDeleter creates a Deleter. queueSize <= 0 selects a default queue
// of 10000 requests.
func NewDeleter(log *zap.Logger, backend Backend, numWorkers, queueSize int) *Deleter {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &Deleter{
		ch:         make(chan request, queueSize),
		numWorkers: numWorkers,
		log:        log.Named("deleter"),
		backend:    backend,
	}
}

// Run starts the delete workers.
func (d *Deleter) Run(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Error.New("already closed")
	}
	if d.stop != nil {
		return Error.New("already started")
	}

	ctx, d.stop = context.WithCancel(ctx)
	d.eg = &errgroup.Group{}
	for i := 0; i < d.numWorkers; i++ {
		d.eg.Go(func() error {
			return d.work(ctx)
		})
	}
	return nil
}

// DeleteAsync enqueues hash for deletion. If the queue is full the
// event is counted and the caller blocks until a worker frees a slot,
// so no condemned hash is dropped (the sweeper removes a catalog's
// reflog entry right after enqueueing it, so a dropped request would
// never be enumerated again).
func (d *Deleter) DeleteAsync(hash hashid.Hash) {
	d.trackPending(1)

	select {
	case d.ch <- request{hash: hash, queueTime: time.Now()}:
	default:
		mon.Counter("deleter-queue-full").Inc(1)
		d.ch <- request{hash: hash, queueTime: time.Now()}
	}
}

// ErrorsSoFar implements the uploader contract's errors_so_far().
func (d *Deleter) ErrorsSoFar() int64 {
	return d.errorCount.Load()
}

// trackPending adjusts the outstanding-request count by delta and closes
// drained whenever the count reaches zero, so Wait can block on it
// without polling.
func (d *Deleter) trackPending(delta int) {
	d.mu.Lock()
	d.pending += delta
	if d.pending < 0 {
		d.pending = 0
	}
	if d.pending == 0 {
		if d.drained != nil {
			close(d.drained)
			d.drained = nil
		}
	} else if d.drained == nil {
		d.drained = make(chan struct{})
	}
	d.mu.Unlock()
}

func (d *Deleter) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-d.ch:
			mon.IntVal("deleter-queue-time").Observe(int64(time.Since(r.queueTime)))
			mon.IntVal("deleter-queue-size").Observe(int64(len(d.ch)))

			path := r.hash.StoragePath()
			if err := d.backend.Delete(ctx, path); err != nil {
				d.errorCount.Add(1)
				d.log.Error("delete failed", zap.Stringer("hash", r.hash), zap.Error(err))
			} else {
				d.log.Debug("deleted", zap.Stringer("hash", r.hash))
			}

			d.trackPending(-1)
		}
	}
}

// Close stops all workers and waits for them to exit. Outstanding queued
// requests that have not yet been dequeued are abandoned — callers that
// need every enqueued delete to complete first must call Wait before
// Close.
func (d *Deleter) Close() error {
	d.mu.Lock()
	d.closed = true
	stop := d.stop
	eg := d.eg
	d.mu.Unlock()

	if stop != nil {
		stop()
	}
	if eg != nil {
		return eg.Wait()
	}
	return nil
}

// Wait blocks until the queue is empty and every enqueued delete has
// completed (spec §4.7's finalize()).
func (d *Deleter) Wait(ctx context.Context) {
	d.mu.Lock()
	drained := d.drained
	d.mu.Unlock()
	if drained != nil {
		select {
		case <-ctx.Done():
		case <-drained:
		}
	}
}

// Finalize implements the sweeper's Uploader contract: block until
// outstanding deletes have completed, so ErrorsSoFar() has stabilised by
// the time Finalize returns (spec §4.7).
func (d *Deleter) Finalize(ctx context.Context) {
	d.Wait(ctx)
}
