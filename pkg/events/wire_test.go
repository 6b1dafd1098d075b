package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWireMapsContentCachedToLocalRefSchema(t *testing.T) {
	e := &Event{
		Type:       TypeContentCached,
		Timestamp:  time.UnixMilli(5000),
		ItemID:     "item-1",
		SHA256:     "deadbeef",
		TransferID: "transfer-1",
		LocalPath:  "/cache/blobs/sha256/de/deadbeef",
	}
	w := e.Wire()
	require.Equal(t, "CONTENT_CACHED", w.Type)
	require.Equal(t, int64(5000), w.TSMS)
	require.Equal(t, "transfer-1", w.Payload["transfer_id"])
	localRef, ok := w.Payload["local_ref"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "/cache/blobs/sha256/de/deadbeef", localRef["local_path"])
}

func TestWireMapsPeerOfflineReason(t *testing.T) {
	e := &Event{Type: TypePeerOffline, Timestamp: time.UnixMilli(1), DeviceID: "dev-b", Message: "heartbeat timeout"}
	w := e.Wire()
	require.Equal(t, "PEER_OFFLINE", w.Type)
	require.Equal(t, "dev-b", w.Payload["device_id"])
	require.Equal(t, "heartbeat timeout", w.Payload["reason"])
}
