// Package reflog defines the reflog collaborator (spec §4.3): durable
// enumeration of every root catalog (and other top-level object) ever
// registered with the repository.
package reflog

import (
	"context"

	"github.com/zeebo/errs"

	"github.com/casvault/gcsweep/hashid"
)

// Error is the error class for a REFLOG_ERROR hard failure (spec §7).
var Error = errs.Class("reflog")

// Entry is a single reflog record.
type Entry struct {
	Hash      hashid.Hash
	Timestamp int64
}

// Reflog is the append-only registry of root-catalog (and top-level
// object) hashes the repository has ever published.
type Reflog interface {
	// ListCatalogs returns every registered entry. Iteration order is
	// irrelevant.
	ListCatalogs(ctx context.Context) ([]Entry, error)
	// Remove removes a single entry. Idempotent: removing an
	// already-absent hash is not an error.
	Remove(ctx context.Context, hash hashid.Hash) error
	// Timestamp returns the last-registration time of hash.
	Timestamp(ctx context.Context, hash hashid.Hash) (int64, bool, error)
}
