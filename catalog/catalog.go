// Package catalog defines the value types of the repository's data model:
// catalogs, named snapshots, branches, and history databases. Catalogs are
// immutable once published and are represented here as plain value records
// keyed by hash in whatever store holds them — a Catalog never points at
// another Catalog directly, only at its hash, so the in-memory graph cannot
// form a cycle through Go's ownership (spec §9, weak previous/parent links).
package catalog

import "github.com/casvault/gcsweep/hashid"

// ReferencedObject is an object a catalog lists in its contents: an
// ordinary file or a chunk, identified by hash and size.
type ReferencedObject struct {
	Hash hashid.Hash
	Size int64
}

// Catalog is an immutable directory-listing object.
type Catalog struct {
	Hash      hashid.Hash
	RootPath  string
	Revision  int64
	Timestamp int64
	IsRoot    bool

	// Parent is the enclosing catalog in the current revision; the null
	// hash at the root of a revision.
	Parent hashid.Hash
	// Previous is the same subtree in the prior revision of this branch;
	// the null hash when this subtree first appears.
	Previous hashid.Hash

	Objects []ReferencedObject
	Nested  []hashid.Hash
}

// Tag is a named snapshot pinning a root catalog in a history database.
type Tag struct {
	Name        string
	RootHash    hashid.Hash
	Size        int64
	Revision    int64
	Timestamp   int64
	Description string
	Branch      string
}

// Branch is a named line of tags diverging from the trunk.
type Branch struct {
	Name            string
	ParentName      string
	InitialRevision int64
}

// History is an ordered set of tags and branches, plus a bounded recycle
// bin of tags unlinked from this database, and a link to the database that
// preceded it.
type History struct {
	Hash     hashid.Hash
	Tags     []Tag
	Branches []Branch

	// RecycleBin holds tags removed from this database but not yet
	// eligible for collection (spec §4.6 orphan recovery rationale).
	RecycleBin []Tag

	// PreviousRevision chains to the history database this one replaced,
	// the null hash if this is the oldest known history database.
	PreviousRevision hashid.Hash
}
