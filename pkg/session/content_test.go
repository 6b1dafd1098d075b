package session

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"testing"
	"time"

	"github.com/clipbridge/clipbridge/pkg/cas"
	"github.com/clipbridge/clipbridge/pkg/events"
	"github.com/clipbridge/clipbridge/pkg/wire/control"
	"github.com/stretchr/testify/require"
)

func newTestActorWithCAS(t *testing.T, role Role) *actor {
	t.Helper()
	a, _ := newTestActor(t, role)

	store, err := cas.New(t.TempDir())
	require.NoError(t, err)
	a.deps.CAS = store
	return a
}

func beginIncomingTransfer(t *testing.T, a *actor, reqID string, body []byte) string {
	t.Helper()
	sum := sha256.Sum256(body)
	sha := hex.EncodeToString(sum[:])

	a.pendingFetch = &contentRequest{itemID: "item-1", transferID: "transfer-1"}
	require.NoError(t, a.onContentBegin(&control.ContentBegin{
		ReqID:      reqID,
		ItemID:     "item-1",
		TotalBytes: int64(len(body)),
		SHA256:     sha,
	}))
	require.NoError(t, a.handleDataFrame(body))
	return sha
}

func TestOnContentEndCommitsOnMatchingHashAndPublishesLocalPath(t *testing.T) {
	a := newTestActorWithCAS(t, RoleClient)
	body := []byte("the actual bytes received over the wire")
	sha := beginIncomingTransfer(t, a, "req-1", body)

	sub := a.deps.Events.Subscribe()
	defer a.deps.Events.Unsubscribe(sub)

	require.NoError(t, a.onContentEnd(&control.ContentEnd{ReqID: "req-1", SHA256: sha}))
	require.True(t, a.deps.CAS.BlobExists(sha))

	select {
	case ev := <-sub:
		require.Equal(t, events.TypeContentCached, ev.Type)
		require.Equal(t, sha, ev.SHA256)
		require.Equal(t, "transfer-1", ev.TransferID)
		require.NotEmpty(t, ev.LocalPath, "CONTENT_CACHED must carry the CAS path the content was committed to")
		data, err := os.ReadFile(ev.LocalPath)
		require.NoError(t, err)
		require.Equal(t, body, data)
	case <-time.After(time.Second):
		t.Fatal("expected a CONTENT_CACHED event")
	}
}

func TestOnContentEndRejectsTamperedBytesAndDiscardsTmpFile(t *testing.T) {
	a := newTestActorWithCAS(t, RoleClient)
	body := []byte("what the advertised hash actually describes")
	sha := beginIncomingTransfer(t, a, "req-2", body)

	tmpPath := a.incoming.tmpPath

	sub := a.deps.Events.Subscribe()
	defer a.deps.Events.Unsubscribe(sub)

	// A peer that lies about the sha256 in ContentEnd (or whose bytes were
	// corrupted in transit) must never make it into the CAS.
	fakeSHA := "0000000000000000000000000000000000000000000000000000000000000000"[:64]
	require.NoError(t, a.onContentEnd(&control.ContentEnd{ReqID: "req-2", SHA256: fakeSHA}))

	require.False(t, a.deps.CAS.BlobExists(sha), "mismatched content must not be committed to the CAS")
	_, statErr := os.Stat(tmpPath)
	require.True(t, os.IsNotExist(statErr), "the tmp file must be discarded on hash mismatch")

	select {
	case ev := <-sub:
		require.Equal(t, events.TypeCoreError, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a CORE_ERROR event reporting the failed transfer")
	}
}
