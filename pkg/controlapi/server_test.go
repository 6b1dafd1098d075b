package controlapi_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/clipbridge/clipbridge/pkg/controlapi"
	"github.com/clipbridge/clipbridge/pkg/controlclient"
	"github.com/clipbridge/clipbridge/pkg/core"
	"github.com/clipbridge/clipbridge/pkg/ingest"
	"github.com/clipbridge/clipbridge/pkg/supervisor"
	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeDaemon is a minimal stand-in for *core.Core so the RPC wiring can
// be exercised over a real Unix socket without booting a networked
// supervisor, discovery, or catalog.
type fakeDaemon struct {
	items        []types.ItemMeta
	status       core.Status
	peers        []supervisor.PeerStatus
	shutdownCalls int
	fetchErr     error
	transferID   string
}

func (f *fakeDaemon) PlanLocalIngest(snap ingest.Snapshot, force bool) (ingest.Plan, error) {
	return ingest.PlanIngest(snap, "device-test", "test-device", force, types.DefaultSizeLimits())
}

func (f *fakeDaemon) IngestLocalCopyWithForce(snap ingest.Snapshot, force bool) (types.ItemMeta, error) {
	plan, err := ingest.PlanIngest(snap, "device-test", "test-device", force, types.DefaultSizeLimits())
	if err != nil {
		return types.ItemMeta{}, err
	}
	f.items = append([]types.ItemMeta{plan.Meta}, f.items...)
	return plan.Meta, nil
}

func (f *fakeDaemon) ListHistory(limit int) ([]types.ItemMeta, error) {
	if limit < len(f.items) {
		return f.items[:limit], nil
	}
	return f.items, nil
}

func (f *fakeDaemon) GetStatus() core.Status { return f.status }

func (f *fakeDaemon) ListPeers() []supervisor.PeerStatus { return f.peers }

func (f *fakeDaemon) EnsureContentCached(itemID, fileID string) (string, error) {
	return f.transferID, f.fetchErr
}

func (f *fakeDaemon) Shutdown() { f.shutdownCalls++ }

func newTestServer(t *testing.T, daemon *fakeDaemon) *controlclient.Client {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "control.sock")

	server, err := controlapi.NewServer(socketPath, daemon)
	require.NoError(t, err)
	go server.Serve()
	t.Cleanup(func() { server.Close() })

	var client *controlclient.Client
	require.Eventually(t, func() bool {
		c, derr := controlclient.Dial(socketPath)
		if derr != nil {
			return false
		}
		client = c
		return true
	}, 2*time.Second, 20*time.Millisecond)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestControlIngestAndList(t *testing.T) {
	client := newTestServer(t, &fakeDaemon{})

	meta, needsConfirm, err := client.Ingest(ingest.Snapshot{
		Kind: types.KindText,
		TS:   time.UnixMilli(1000),
		Text: "hello world",
	}, false)
	require.NoError(t, err)
	require.False(t, needsConfirm)
	require.NotEmpty(t, meta.ItemID)

	items, err := client.List(10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, meta.ItemID, items[0].ItemID)
}

func TestControlIngestOverSoftCapNeedsConfirm(t *testing.T) {
	client := newTestServer(t, &fakeDaemon{})

	limits := types.DefaultSizeLimits()
	big := make([]byte, limits.Text.SoftCap+10)
	for i := range big {
		big[i] = 'a'
	}

	meta, needsConfirm, err := client.Ingest(ingest.Snapshot{
		Kind: types.KindText,
		TS:   time.UnixMilli(1000),
		Text: string(big),
	}, false)
	require.NoError(t, err)
	require.True(t, needsConfirm)
	require.Empty(t, meta.ItemID, "meta must be zero-valued when confirmation is needed")
}

func TestControlStatusAndPeers(t *testing.T) {
	daemon := &fakeDaemon{
		status: core.Status{Running: true, DeviceID: "device-test"},
		peers: []supervisor.PeerStatus{
			{DeviceID: "device-b", State: types.PeerOnline},
		},
	}
	client := newTestServer(t, daemon)

	status, err := client.Status()
	require.NoError(t, err)
	require.True(t, status.Running)
	require.Equal(t, "device-test", status.DeviceID)

	peers, err := client.Peers()
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, "device-b", peers[0].DeviceID)
}

func TestControlFetchPropagatesTransferID(t *testing.T) {
	daemon := &fakeDaemon{transferID: "xfer-1"}
	client := newTestServer(t, daemon)

	transferID, err := client.Fetch("item-1", "")
	require.NoError(t, err)
	require.Equal(t, "xfer-1", transferID)
}

func TestControlFetchPropagatesError(t *testing.T) {
	daemon := &fakeDaemon{fetchErr: errors.New("item not found")}
	client := newTestServer(t, daemon)

	_, err := client.Fetch("missing-item", "")
	require.Error(t, err)
}

func TestControlShutdownInvokesDaemon(t *testing.T) {
	daemon := &fakeDaemon{}
	client := newTestServer(t, daemon)

	require.NoError(t, client.Shutdown())
	require.Eventually(t, func() bool {
		return daemon.shutdownCalls == 1
	}, 2*time.Second, 20*time.Millisecond)
}
