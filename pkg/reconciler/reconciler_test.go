package reconciler

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/clipbridge/clipbridge/pkg/cas"
	"github.com/clipbridge/clipbridge/pkg/catalog"
	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/stretchr/testify/require"
)

func shaOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newFixture(t *testing.T) (*catalog.BoltStore, *cas.Store) {
	t.Helper()
	store, err := catalog.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blobs, err := cas.New(t.TempDir())
	require.NoError(t, err)
	return store, blobs
}

func putItem(t *testing.T, store *catalog.BoltStore, blobs *cas.Store, account, itemID string, data []byte, nowMS int64) {
	t.Helper()
	sha := shaOf(data)
	meta := types.ItemMeta{
		ItemID: itemID,
		Kind:   types.KindImage,
		Content: types.ContentDescriptor{
			MIME:   "image/png",
			SHA256: sha,
			Length: int64(len(data)),
		},
		SourceDeviceID: "device-a",
		CreatedAtMS:    nowMS,
	}
	_, err := store.InsertMetaAndHistory(account, meta, nowMS)
	require.NoError(t, err)
	wrote, err := blobs.PutIfAbsent(sha, data, itemID+"-tmp")
	require.NoError(t, err)
	require.True(t, wrote)
	require.NoError(t, store.MarkCachePresent(sha, nowMS))
}

func TestTrimHistoryRemovesOldestBeyondCap(t *testing.T) {
	store, blobs := newFixture(t)
	putItem(t, store, blobs, "acct-1", "item-1", []byte("aaaaaaaaaa"), 1000)
	putItem(t, store, blobs, "acct-1", "item-2", []byte("bbbbbbbbbb"), 2000)
	putItem(t, store, blobs, "acct-1", "item-3", []byte("cccccccccc"), 3000)

	r := NewReconciler(store, blobs, "acct-1", types.GCLimits{MaxHistoryItems: 2})
	require.NoError(t, r.trimHistory())

	metas, err := store.ListHistoryMetas("acct-1", 10)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	for _, m := range metas {
		require.NotEqual(t, "item-1", m.ItemID, "oldest history row must be trimmed first")
	}
}

func TestTrimHistoryNoopWhenLimitUnset(t *testing.T) {
	store, blobs := newFixture(t)
	putItem(t, store, blobs, "acct-1", "item-1", []byte("aaaaaaaaaa"), 1000)

	r := NewReconciler(store, blobs, "acct-1", types.GCLimits{})
	require.NoError(t, r.trimHistory())

	metas, err := store.ListHistoryMetas("acct-1", 10)
	require.NoError(t, err)
	require.Len(t, metas, 1)
}

func TestEvictBlobsDropsOldestPresentRowPastByteCap(t *testing.T) {
	store, blobs := newFixture(t)
	first := make([]byte, 40)
	for i := range first {
		first[i] = 'x'
	}
	second := make([]byte, 40)
	for i := range second {
		second[i] = 'y'
	}
	putItem(t, store, blobs, "acct-1", "item-1", first, 1000)
	putItem(t, store, blobs, "acct-1", "item-2", second, 2000)

	r := NewReconciler(store, blobs, "acct-1", types.GCLimits{MaxCASBytes: 50})
	require.NoError(t, r.evictBlobs())

	require.False(t, blobs.BlobExists(shaOf(first)), "oldest-accessed blob must be evicted")
	require.True(t, blobs.BlobExists(shaOf(second)), "newer blob must remain")

	row, err := store.GetCacheRow(shaOf(first))
	require.NoError(t, err)
	require.False(t, row.Present, "evicted blob's cache row must be flipped back to absent")
}

func TestEvictBlobsNoopWhenLimitUnset(t *testing.T) {
	store, blobs := newFixture(t)
	data := make([]byte, 100)
	putItem(t, store, blobs, "acct-1", "item-1", data, 1000)

	r := NewReconciler(store, blobs, "acct-1", types.GCLimits{})
	require.NoError(t, r.evictBlobs())

	require.True(t, blobs.BlobExists(shaOf(data)))
}
