package session

import (
	"strings"
	"testing"
	"time"

	"github.com/clipbridge/clipbridge/pkg/catalog"
	"github.com/clipbridge/clipbridge/pkg/events"
	"github.com/clipbridge/clipbridge/pkg/transport"
	"github.com/clipbridge/clipbridge/pkg/trust"
	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/clipbridge/clipbridge/pkg/wire/control"
	"github.com/stretchr/testify/require"
)

func newTestActor(t *testing.T, role Role) (*actor, *catalog.BoltStore) {
	t.Helper()
	store, err := catalog.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	return &actor{
		role: role,
		conn: &transport.Conn{RemoteFingerprint: "fp-remote"},
		deps: Deps{
			Catalog: store,
			Trust:   trust.New(store, "acct-1"),
			Events:  broker,
			Config:  Config{AccountUID: "acct-1", AccountTag: "tag-1", DeviceID: "device-a"},
		},
		state:      StateOnline,
		lastActive: time.Now(),
	}, store
}

func sampleRemoteItem(itemID, sha string) types.ItemMeta {
	return types.ItemMeta{
		ItemID: itemID,
		Kind:   types.KindText,
		Content: types.ContentDescriptor{
			MIME:   "text/plain",
			SHA256: sha,
			Length: 7,
		},
		SourceDeviceID: "device-b",
		CreatedAtMS:    1000,
	}
}

func TestOnItemMetaIgnoredBeforeOnline(t *testing.T) {
	a, store := newTestActor(t, RoleServer)
	a.state = StateAccountVerified
	a.remoteDeviceID = "device-b"

	require.NoError(t, a.onItemMeta(&control.ItemMetaMsg{Item: sampleRemoteItem("item-1", "sha-1")}))

	metas, err := store.ListHistoryMetas("acct-1", 10)
	require.NoError(t, err)
	require.Empty(t, metas, "metadata arriving before Online must be ignored")
}

func TestOnItemMetaInsertsOnceAndIsIdempotentOnReplay(t *testing.T) {
	a, store := newTestActor(t, RoleServer)
	a.remoteDeviceID = "device-b"
	meta := sampleRemoteItem("item-1", "sha-1")

	require.NoError(t, a.onItemMeta(&control.ItemMetaMsg{Item: meta}))
	require.NoError(t, a.onItemMeta(&control.ItemMetaMsg{Item: meta}))

	metas, err := store.ListHistoryMetas("acct-1", 10)
	require.NoError(t, err)
	require.Len(t, metas, 1, "replaying the same ItemMeta must not duplicate history")
}

func TestPerformTOFUCheckPinsOnFirstContact(t *testing.T) {
	a, _ := newTestActor(t, RoleClient)
	a.remoteDeviceID = "device-b"

	require.NoError(t, a.performTOFUCheck())
}

func TestPerformTOFUCheckRejectsChangedFingerprint(t *testing.T) {
	a, _ := newTestActor(t, RoleClient)
	a.remoteDeviceID = "device-b"
	require.NoError(t, a.performTOFUCheck())

	a.conn = &transport.Conn{RemoteFingerprint: "fp-different"}
	err := a.performTOFUCheck()
	require.Error(t, err)
	require.Contains(t, err.Error(), ErrCodeTLSPinMismatch)
}

func TestPerformTOFUCheckRequiresKnownDeviceID(t *testing.T) {
	a, _ := newTestActor(t, RoleClient)
	require.Error(t, a.performTOFUCheck())
}

func TestTransitionToOnlineEmitsPeerOnlineOnce(t *testing.T) {
	a, _ := newTestActor(t, RoleClient)
	a.state = StateAccountVerified
	a.remoteDeviceID = "device-b"

	sub := a.deps.Events.Subscribe()
	defer a.deps.Events.Unsubscribe(sub)

	require.NoError(t, a.transitionToOnline())
	require.Equal(t, StateOnline, a.state)

	select {
	case ev := <-sub:
		require.Equal(t, events.TypePeerOnline, ev.Type)
		require.Equal(t, "device-b", ev.DeviceID)
	case <-time.After(time.Second):
		t.Fatal("expected a PEER_ONLINE event")
	}

	select {
	case ev := <-sub:
		t.Fatalf("expected exactly one PEER_ONLINE event, got a further %s event", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIsValidSHA(t *testing.T) {
	require.True(t, isValidSHA(strings.Repeat("a3", 32)))
	require.False(t, isValidSHA("too-short"))
	require.False(t, isValidSHA(""))
	require.False(t, isValidSHA(strings.Repeat("g", 64)), "non-hex characters must be rejected")
}
