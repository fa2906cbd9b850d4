package retention_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/casvault/gcsweep/catalog"
	"github.com/casvault/gcsweep/fetch"
	"github.com/casvault/gcsweep/hashid"
	"github.com/casvault/gcsweep/reflog"
	"github.com/casvault/gcsweep/retention"
	"github.com/casvault/gcsweep/walk"
)

func catHash(b byte) hashid.Hash {
	h := hashid.Hash{Suffix: hashid.SuffixCatalog}
	h.Digest[0] = b
	return h
}

func histHash(b byte) hashid.Hash {
	h := hashid.Hash{Suffix: hashid.SuffixHistory}
	h.Digest[0] = b
	return h
}

func TestResolveHeadAndTags(t *testing.T) {
	f := fetch.NewMemoryFetcher()
	rl := reflog.NewMemoryReflog()

	head := catHash(1)
	hist := histHash(1)
	tagTarget := catHash(2)

	f.PutCatalog(catalog.Catalog{Hash: head, Revision: 5, IsRoot: true})
	f.PutHistory(catalog.History{
		Hash: hist,
		Tags: []catalog.Tag{
			{Name: "Revision2", RootHash: tagTarget, Revision: 2},
		},
	})
	f.SetHead(fetch.HeadManifest{RootCatalogHash: head, HistoryHash: hist})
	rl.Register(head, 500)
	rl.Register(tagTarget, 200)

	res, err := retention.Resolve(context.Background(), zaptest.NewLogger(t), retention.Config{
		KeepHistoryDepth:     retention.FullHistoryDepth,
		KeepHistoryTimestamp: retention.UnsetTimestamp,
	}, f, rl)
	require.NoError(t, err)

	require.Len(t, res.LiveEntries, 2)
	require.Equal(t, head, res.LiveEntries[0].Hash)
	require.True(t, res.LiveEntries[0].FollowPrevious)
	require.Equal(t, retention.EntryHead, res.LiveEntries[0].Kind)

	require.Equal(t, tagTarget, res.LiveEntries[1].Hash)
	require.False(t, res.LiveEntries[1].FollowPrevious)
	require.Equal(t, retention.EntryTag, res.LiveEntries[1].Kind)
	require.Equal(t, "Revision2", res.LiveEntries[1].Label)

	require.True(t, res.Depth.FullHistory)
	require.ElementsMatch(t, []walk.EntryPoint{
		{Hash: head, FollowPrevious: false},
		{Hash: tagTarget, FollowPrevious: false},
	}, res.CondemnedCandidates)
}

func TestResolveRecycleBinWalksHistoryChain(t *testing.T) {
	f := fetch.NewMemoryFetcher()
	rl := reflog.NewMemoryReflog()

	head := catHash(1)
	currentHist := histHash(1)
	olderHist := histHash(2)
	recycled := catHash(3)

	f.PutCatalog(catalog.Catalog{Hash: head, Revision: 1, IsRoot: true})
	f.PutHistory(catalog.History{Hash: currentHist, PreviousRevision: olderHist})
	f.PutHistory(catalog.History{
		Hash: olderHist,
		RecycleBin: []catalog.Tag{
			{Name: "Revision2", RootHash: recycled},
		},
	})
	f.SetHead(fetch.HeadManifest{RootCatalogHash: head, HistoryHash: currentHist})

	res, err := retention.Resolve(context.Background(), zaptest.NewLogger(t), retention.Config{
		KeepHistoryDepth:     retention.FullHistoryDepth,
		KeepHistoryTimestamp: retention.UnsetTimestamp,
	}, f, rl)
	require.NoError(t, err)

	require.Len(t, res.LiveEntries, 2)
	require.Equal(t, recycled, res.LiveEntries[1].Hash)
	require.Equal(t, retention.EntryRecycleBin, res.LiveEntries[1].Kind)
	require.Equal(t, "Revision2", res.LiveEntries[1].Label)
}

func TestResolveFiltersNonCatalogReflogEntries(t *testing.T) {
	f := fetch.NewMemoryFetcher()
	rl := reflog.NewMemoryReflog()

	head := catHash(1)
	f.PutCatalog(catalog.Catalog{Hash: head, Revision: 1, IsRoot: true})
	f.SetHead(fetch.HeadManifest{RootCatalogHash: head})

	rl.Register(head, 100)
	rl.Register(histHash(9), 100) // not a catalog; must not become a condemned candidate

	res, err := retention.Resolve(context.Background(), zaptest.NewLogger(t), retention.Config{
		KeepHistoryDepth:     retention.FullHistoryDepth,
		KeepHistoryTimestamp: retention.UnsetTimestamp,
	}, f, rl)
	require.NoError(t, err)
	require.Len(t, res.CondemnedCandidates, 1)
	require.Equal(t, head, res.CondemnedCandidates[0].Hash)
}
