package walk

import (
	"context"

	"github.com/casvault/gcsweep/hashid"
)

// timestampOf resolves a catalog's timestamp according to opts' configured
// TimestampSource, consulting the reflog when requested (spec §6
// use_reflog_timestamps).
func timestampOf(ctx context.Context, reflog timestampLookup, embedded int64, hash hashid.Hash, source TimestampSource) int64 {
	if source != ReflogRegisteredTimestamp || reflog == nil {
		return embedded
	}
	if ts, ok, err := reflog.Timestamp(ctx, hash); err == nil && ok {
		return ts
	}
	return embedded
}

// timestampLookup is the minimal reflog capability the traverser needs.
// It is satisfied by reflog.Reflog; declared locally to avoid importing
// the reflog package purely for this one method (keeps the traversal
// contract's collaborator surface small, per spec §9 design note).
type timestampLookup interface {
	Timestamp(ctx context.Context, hash hashid.Hash) (int64, bool, error)
}

// trunkEligible evaluates the depth predicate (spec §4.4) for a candidate
// trunk root catalog at the given revision/timestamp: is this candidate,
// reached by following a Previous link, itself eligible to be visited?
// headRevision is the revision of the chain's first (always-live) catalog.
// The walk stops at the first candidate for which this returns false —
// revision and timestamp are both non-increasing walking backwards (I3),
// so once the predicate fails it fails for everything further back too.
func trunkEligible(d DepthPolicy, headRevision, revision, timestamp int64) bool {
	if d.FullHistory {
		return true
	}
	if revision >= headRevision-d.KeepHistoryDepth {
		return true
	}
	if d.KeepHistoryTimestamp != UnsetTimestamp && timestamp > d.KeepHistoryTimestamp {
		return true
	}
	return false
}

// claimTable tracks which hashes have been (or are being) expanded during
// a single traversal call, guaranteeing the "visited at most once"
// contract. serialClaims implements it; Parallel uses
// parallelClaims.acquire instead, which also lets a non-owner wait for
// the owner to finish.
type claimTable interface {
	// claim returns true if the caller won the right to expand hash.
	claim(hash hashid.Hash) bool
}
