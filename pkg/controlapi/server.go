package controlapi

import (
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"

	"github.com/clipbridge/clipbridge/pkg/core"
	"github.com/clipbridge/clipbridge/pkg/ingest"
	"github.com/clipbridge/clipbridge/pkg/log"
	"github.com/clipbridge/clipbridge/pkg/supervisor"
	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/rs/zerolog"
)

// IngestArgs requests a local clipboard snapshot be planned and applied.
type IngestArgs struct {
	Snapshot ingest.Snapshot
	Force    bool
}

// IngestReply carries the meta the daemon committed, or NeedsConfirm set
// when the item exceeded its soft cap and Force was false.
type IngestReply struct {
	Meta         types.ItemMeta
	NeedsConfirm bool
}

// ListArgs requests up to Limit history rows.
type ListArgs struct {
	Limit int
}

// ListReply carries the returned history rows.
type ListReply struct {
	Items []types.ItemMeta
}

// StatusArgs is empty; Status takes no parameters.
type StatusArgs struct{}

// StatusReply is the daemon's point-in-time status snapshot.
type StatusReply struct {
	Status core.Status
}

// PeersArgs is empty; Peers takes no parameters.
type PeersArgs struct{}

// PeersReply carries every known or connected peer.
type PeersReply struct {
	Peers []supervisor.PeerStatus
}

// FetchArgs requests an item's content (or one file of a file-list item)
// be pulled from whichever peer owns it.
type FetchArgs struct {
	ItemID string
	FileID string
}

// FetchReply carries the transfer id the caller can use to correlate the
// completion event on the daemon's event stream; empty if the content
// was already cached locally.
type FetchReply struct {
	TransferID string
}

// ShutdownArgs is empty; Shutdown takes no parameters.
type ShutdownArgs struct{}

// ShutdownReply is empty.
type ShutdownReply struct{}

// daemonAPI is the slice of *core.Core that the control RPCs need.
// Control depends on this interface rather than the concrete type so
// tests can exercise the RPC wiring against a fake daemon instead of a
// fully networked Core.
type daemonAPI interface {
	PlanLocalIngest(snap ingest.Snapshot, force bool) (ingest.Plan, error)
	IngestLocalCopyWithForce(snap ingest.Snapshot, force bool) (types.ItemMeta, error)
	ListHistory(limit int) ([]types.ItemMeta, error)
	GetStatus() core.Status
	ListPeers() []supervisor.PeerStatus
	EnsureContentCached(itemID, fileID string) (string, error)
	Shutdown()
}

// Control is the RPC receiver registered against the control socket.
// Every exported method is one RPC, dispatched by net/rpc under the
// name "Control.<Method>".
type Control struct {
	core   daemonAPI
	logger zerolog.Logger
}

// Ingest plans and applies args.Snapshot.
func (c *Control) Ingest(args *IngestArgs, reply *IngestReply) error {
	plan, err := c.core.PlanLocalIngest(args.Snapshot, args.Force)
	if err != nil {
		return err
	}
	if plan.NeedsUserConfirm {
		reply.NeedsConfirm = true
		return nil
	}
	meta, err := c.core.IngestLocalCopyWithForce(args.Snapshot, args.Force)
	if err != nil {
		return err
	}
	reply.Meta = meta
	return nil
}

// List returns up to args.Limit history rows.
func (c *Control) List(args *ListArgs, reply *ListReply) error {
	items, err := c.core.ListHistory(args.Limit)
	if err != nil {
		return err
	}
	reply.Items = items
	return nil
}

// Status reports the daemon's current status.
func (c *Control) Status(args *StatusArgs, reply *StatusReply) error {
	reply.Status = c.core.GetStatus()
	return nil
}

// Peers reports every known or connected peer.
func (c *Control) Peers(args *PeersArgs, reply *PeersReply) error {
	reply.Peers = c.core.ListPeers()
	return nil
}

// Fetch ensures args.ItemID's content (optionally scoped to args.FileID)
// is cached locally, requesting it from a peer if necessary.
func (c *Control) Fetch(args *FetchArgs, reply *FetchReply) error {
	transferID, err := c.core.EnsureContentCached(args.ItemID, args.FileID)
	if err != nil {
		return err
	}
	reply.TransferID = transferID
	return nil
}

// Shutdown stops the daemon. The reply is sent before the process exits.
func (c *Control) Shutdown(args *ShutdownArgs, reply *ShutdownReply) error {
	go c.core.Shutdown()
	return nil
}

// Server owns the control socket's listener and dispatches incoming
// connections to an *rpc.Server registered with a Control receiver.
type Server struct {
	listener net.Listener
	rpc      *rpc.Server
	logger   zerolog.Logger
}

// NewServer creates the control socket at socketPath (removing any stale
// socket left by an unclean shutdown) and registers a Control receiver
// wrapping coreHandle on a new rpc.Server.
func NewServer(socketPath string, coreHandle daemonAPI) (*Server, error) {
	if socketPath == "" {
		return nil, errors.New("controlapi: empty socket path")
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return nil, fmt.Errorf("controlapi: create socket dir: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("controlapi: remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("controlapi: listen on socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o700); err != nil {
		ln.Close()
		return nil, fmt.Errorf("controlapi: chmod socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	control := &Control{core: coreHandle, logger: log.WithComponent("controlapi")}
	if err := rpcServer.Register(control); err != nil {
		ln.Close()
		return nil, fmt.Errorf("controlapi: register control receiver: %w", err)
	}

	return &Server{
		listener: ln,
		rpc:      rpcServer,
		logger:   log.WithComponent("controlapi"),
	}, nil
}

// Serve accepts connections until the listener is closed, handling each
// one as a JSON-RPC session in its own goroutine.
func (s *Server) Serve() error {
	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("control socket listening")
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}
