package fetch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/casvault/gcsweep/catalog"
	"github.com/casvault/gcsweep/fetch"
	"github.com/casvault/gcsweep/hashid"
)

func TestMemoryFetcherRoundTrip(t *testing.T) {
	m := fetch.NewMemoryFetcher()
	hash := hashid.Hash{Suffix: hashid.SuffixCatalog, Digest: [hashid.Size]byte{1}}
	m.PutCatalog(catalog.Catalog{Hash: hash, Revision: 1})
	m.SetHead(fetch.HeadManifest{RootCatalogHash: hash})

	c, status, err := m.FetchCatalog(context.Background(), hash, "")
	require.NoError(t, err)
	require.Equal(t, fetch.OK, status)
	require.Equal(t, hash, c.Hash)

	head, err := m.HeadManifest(context.Background())
	require.NoError(t, err)
	require.Equal(t, hash, head.RootCatalogHash)
}

func TestMemoryFetcherNotFound(t *testing.T) {
	m := fetch.NewMemoryFetcher()
	hash := hashid.Hash{Suffix: hashid.SuffixCatalog, Digest: [hashid.Size]byte{2}}

	_, status, err := m.FetchCatalog(context.Background(), hash, "")
	require.NoError(t, err)
	require.Equal(t, fetch.NotFound, status)
}

func TestMemoryFetcherMarkMissingOverridesExisting(t *testing.T) {
	m := fetch.NewMemoryFetcher()
	hash := hashid.Hash{Suffix: hashid.SuffixCatalog, Digest: [hashid.Size]byte{3}}
	m.PutCatalog(catalog.Catalog{Hash: hash})
	m.MarkMissing(hash)

	_, status, err := m.FetchCatalog(context.Background(), hash, "")
	require.NoError(t, err)
	require.Equal(t, fetch.NotFound, status)
}

func TestMemoryFetcherMarkCorrupt(t *testing.T) {
	m := fetch.NewMemoryFetcher()
	hash := hashid.Hash{Suffix: hashid.SuffixCatalog, Digest: [hashid.Size]byte{4}}
	m.PutCatalog(catalog.Catalog{Hash: hash})
	m.MarkCorrupt(hash)

	_, status, err := m.FetchCatalog(context.Background(), hash, "")
	require.Error(t, err)
	require.Equal(t, fetch.Corrupt, status)
}

func TestMemoryFetcherHistoryNotFound(t *testing.T) {
	m := fetch.NewMemoryFetcher()
	hash := hashid.Hash{Suffix: hashid.SuffixHistory, Digest: [hashid.Size]byte{5}}

	_, status, err := m.FetchHistory(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, fetch.NotFound, status)
}
