// Package fetch defines the object-fetcher collaborator (spec §4.2): the
// core's view of the storage backend, which is out of scope here and
// supplied by the caller. NOT_FOUND is a first-class result, not an error
// (spec I7); CORRUPT aborts the run.
package fetch

import (
	"context"

	"github.com/zeebo/errs"

	"github.com/casvault/gcsweep/catalog"
	"github.com/casvault/gcsweep/hashid"
)

// Error is the error class for fetcher failures, including the error
// that accompanies a Corrupt result. A NotFound result carries no error.
var Error = errs.Class("fetch")

// Status is the outcome of a fetch.
type Status int

const (
	// OK means the object was retrieved successfully.
	OK Status = iota
	// NotFound means the object does not exist in the backend. Soft
	// failure: traversal continues, the subtree is pruned (I7).
	NotFound
	// Corrupt means the object exists but failed validation. Hard
	// failure: the run aborts.
	Corrupt
)

// HeadManifest is the repository's current published state.
type HeadManifest struct {
	RootCatalogHash hashid.Hash
	HistoryHash     hashid.Hash
}

// Fetcher retrieves catalogs and history databases by hash.
type Fetcher interface {
	FetchCatalog(ctx context.Context, hash hashid.Hash, pathHint string) (catalog.Catalog, Status, error)
	FetchHistory(ctx context.Context, hash hashid.Hash) (catalog.History, Status, error)
	HeadManifest(ctx context.Context) (HeadManifest, error)
}
