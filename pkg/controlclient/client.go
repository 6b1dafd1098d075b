package controlclient

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"github.com/clipbridge/clipbridge/pkg/controlapi"
	"github.com/clipbridge/clipbridge/pkg/core"
	"github.com/clipbridge/clipbridge/pkg/ingest"
	"github.com/clipbridge/clipbridge/pkg/supervisor"
	"github.com/clipbridge/clipbridge/pkg/types"
)

const dialTimeout = 2 * time.Second

// Client is a connection to a running daemon's control socket.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the control socket at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("controlclient: dial %s: %w", socketPath, err)
	}
	return &Client{rpc: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Ingest plans and applies snap on the daemon, forcing past the soft
// size cap when force is true. needsConfirm is true when force was
// false and the item exceeded its soft cap, in which case meta is zero.
func (c *Client) Ingest(snap ingest.Snapshot, force bool) (meta types.ItemMeta, needsConfirm bool, err error) {
	args := &controlapi.IngestArgs{Snapshot: snap, Force: force}
	reply := &controlapi.IngestReply{}
	if err := c.rpc.Call("Control.Ingest", args, reply); err != nil {
		return types.ItemMeta{}, false, err
	}
	return reply.Meta, reply.NeedsConfirm, nil
}

// List returns up to limit history rows, newest first.
func (c *Client) List(limit int) ([]types.ItemMeta, error) {
	args := &controlapi.ListArgs{Limit: limit}
	reply := &controlapi.ListReply{}
	if err := c.rpc.Call("Control.List", args, reply); err != nil {
		return nil, err
	}
	return reply.Items, nil
}

// Status returns the daemon's current status snapshot.
func (c *Client) Status() (core.Status, error) {
	args := &controlapi.StatusArgs{}
	reply := &controlapi.StatusReply{}
	if err := c.rpc.Call("Control.Status", args, reply); err != nil {
		return core.Status{}, err
	}
	return reply.Status, nil
}

// Peers reports every known or connected peer.
func (c *Client) Peers() ([]supervisor.PeerStatus, error) {
	args := &controlapi.PeersArgs{}
	reply := &controlapi.PeersReply{}
	if err := c.rpc.Call("Control.Peers", args, reply); err != nil {
		return nil, err
	}
	return reply.Peers, nil
}

// Fetch requests itemID's content (optionally scoped to fileID) be
// cached locally, pulling it from a peer if necessary.
func (c *Client) Fetch(itemID, fileID string) (string, error) {
	args := &controlapi.FetchArgs{ItemID: itemID, FileID: fileID}
	reply := &controlapi.FetchReply{}
	if err := c.rpc.Call("Control.Fetch", args, reply); err != nil {
		return "", err
	}
	return reply.TransferID, nil
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown() error {
	args := &controlapi.ShutdownArgs{}
	reply := &controlapi.ShutdownReply{}
	return c.rpc.Call("Control.Shutdown", args, reply)
}
