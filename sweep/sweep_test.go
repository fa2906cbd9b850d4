package sweep_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/casvault/gcsweep/catalog"
	"github.com/casvault/gcsweep/deleter"
	"github.com/casvault/gcsweep/fetch"
	"github.com/casvault/gcsweep/hashid"
	"github.com/casvault/gcsweep/reflog"
	"github.com/casvault/gcsweep/retention"
	"github.com/casvault/gcsweep/sweep"
)

func rootHash(b byte) hashid.Hash {
	h := hashid.Hash{Suffix: hashid.SuffixCatalog}
	h.Digest[0] = b
	return h
}

func objHash(b byte) hashid.Hash {
	h := hashid.Hash{Suffix: hashid.SuffixNone}
	h.Digest[0] = b
	return h
}

// fixture builds five root catalogs (revisions 1..5, timestamps
// 100..500), each referencing one unique object, linked by Previous, and
// registers all five in the reflog. Returns the fetcher, reflog, and the
// root hashes in revision order.
func fixture() (*fetch.MemoryFetcher, *reflog.MemoryReflog, []hashid.Hash) {
	f := fetch.NewMemoryFetcher()
	rl := reflog.NewMemoryReflog()
	roots := make([]hashid.Hash, 5)

	var prev hashid.Hash
	for i := 0; i < 5; i++ {
		root := rootHash(byte(10 + i))
		obj := objHash(byte(100 + i))
		f.PutCatalog(catalog.Catalog{
			Hash:      root,
			Revision:  int64(i + 1),
			Timestamp: int64((i + 1) * 100),
			IsRoot:    true,
			Previous:  prev,
			Objects:   []catalog.ReferencedObject{{Hash: obj, Size: 10}},
		})
		rl.Register(root, int64((i+1)*100))
		roots[i] = root
		prev = root
	}
	f.SetHead(fetch.HeadManifest{RootCatalogHash: roots[4]})
	return f, rl, roots
}

func TestSweepFullHistoryPreservesEverything(t *testing.T) {
	f, rl, _ := fixture()
	backend := deleter.NewMemoryBackend()
	log := zaptest.NewLogger(t)
	d := deleter.NewDeleter(log, backend, 2, 0)
	require.NoError(t, d.Run(context.Background()))
	defer func() { require.NoError(t, d.Close()) }()

	s := sweep.New(log, f, rl, d, sweep.Config{Retention: retention.Config{
		KeepHistoryDepth:     retention.FullHistoryDepth,
		KeepHistoryTimestamp: retention.UnsetTimestamp,
		NumThreads:           1,
	}})

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success)
	require.EqualValues(t, 5, res.PreservedCatalogCount)
	require.EqualValues(t, 0, res.CondemnedCatalogCount)
	require.EqualValues(t, 0, res.CondemnedObjectsCount)
	require.EqualValues(t, 100, res.OldestTrunkCatalog)
	require.Equal(t, 5, rl.Len())
}

func TestSweepDepthCondemnsOlderRevisions(t *testing.T) {
	f, rl, roots := fixture()
	backend := deleter.NewMemoryBackend()
	log := zaptest.NewLogger(t)
	d := deleter.NewDeleter(log, backend, 2, 0)
	require.NoError(t, d.Run(context.Background()))
	defer func() { require.NoError(t, d.Close()) }()

	var dlog bytes.Buffer
	s := sweep.New(log, f, rl, d, sweep.Config{
		Retention: retention.Config{
			KeepHistoryDepth:     1, // preserves revisions 4,5
			KeepHistoryTimestamp: retention.UnsetTimestamp,
			NumThreads:           1,
		},
		DeletionLog: &dlog,
	})

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success)
	require.EqualValues(t, 2, res.PreservedCatalogCount)
	require.EqualValues(t, 3, res.CondemnedCatalogCount)
	require.EqualValues(t, 3, res.CondemnedObjectsCount)
	require.EqualValues(t, 400, res.OldestTrunkCatalog)

	// reflog retains only the two preserved revisions.
	require.Equal(t, 2, rl.Len())
	remaining, err := rl.ListCatalogs(context.Background())
	require.NoError(t, err)
	var remainingHashes []hashid.Hash
	for _, e := range remaining {
		remainingHashes = append(remainingHashes, e.Hash)
	}
	require.ElementsMatch(t, []hashid.Hash{roots[3], roots[4]}, remainingHashes)

	// three condemned root catalogs' storage paths were deleted.
	require.Len(t, backend.Deleted(), 6) // 3 catalogs + 3 objects

	lines := strings.Split(strings.TrimSpace(dlog.String()), "\n")
	require.Len(t, lines, 6)
}

func TestSweepIdempotentSecondRun(t *testing.T) {
	f, rl, _ := fixture()
	backend := deleter.NewMemoryBackend()
	log := zaptest.NewLogger(t)
	cfg := retention.Config{KeepHistoryDepth: 1, KeepHistoryTimestamp: retention.UnsetTimestamp, NumThreads: 1}

	d1 := deleter.NewDeleter(log, backend, 2, 0)
	require.NoError(t, d1.Run(context.Background()))
	s1 := sweep.New(log, f, rl, d1, sweep.Config{Retention: cfg})
	res1, err := s1.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, res1.CondemnedCatalogCount)
	require.NoError(t, d1.Close())

	d2 := deleter.NewDeleter(log, backend, 2, 0)
	require.NoError(t, d2.Run(context.Background()))
	s2 := sweep.New(log, f, rl, d2, sweep.Config{Retention: cfg})
	res2, err := s2.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 0, res2.CondemnedCatalogCount)
	require.EqualValues(t, 0, res2.CondemnedObjectsCount)
	require.NoError(t, d2.Close())
}

func TestSweepDanglingCatalogTolerated(t *testing.T) {
	f, rl, roots := fixture()
	f.MarkMissing(roots[2]) // revision 3 externally deleted

	backend := deleter.NewMemoryBackend()
	log := zaptest.NewLogger(t)
	cfg := retention.Config{KeepHistoryDepth: 1, KeepHistoryTimestamp: retention.UnsetTimestamp, NumThreads: 1}

	d := deleter.NewDeleter(log, backend, 2, 0)
	require.NoError(t, d.Run(context.Background()))
	defer func() { require.NoError(t, d.Close()) }()

	s := sweep.New(log, f, rl, d, sweep.Config{Retention: cfg})
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success)

	// revision 3 is neither preserved nor condemned: its subtree is pruned.
	require.EqualValues(t, 2, res.PreservedCatalogCount)
	require.EqualValues(t, 2, res.CondemnedCatalogCount)
	require.EqualValues(t, 2, res.CondemnedObjectsCount)
}

func TestSweepDryRunSkipsDeleteAndReflogRemoval(t *testing.T) {
	f, rl, _ := fixture()
	backend := deleter.NewMemoryBackend()
	log := zaptest.NewLogger(t)
	cfg := retention.Config{
		KeepHistoryDepth:     1,
		KeepHistoryTimestamp: retention.UnsetTimestamp,
		NumThreads:           1,
		DryRun:               true,
	}

	d := deleter.NewDeleter(log, backend, 2, 0)
	require.NoError(t, d.Run(context.Background()))
	defer func() { require.NoError(t, d.Close()) }()

	var dlog bytes.Buffer
	s := sweep.New(log, f, rl, d, sweep.Config{Retention: cfg, DeletionLog: &dlog})
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, res.CondemnedCatalogCount)
	require.EqualValues(t, 3, res.CondemnedObjectsCount)

	require.Empty(t, backend.Deleted())
	require.Equal(t, 5, rl.Len()) // nothing removed under dry-run
	require.NotEmpty(t, dlog.String())
}
