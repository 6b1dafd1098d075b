package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/clipbridge/clipbridge/pkg/discovery"
	"github.com/clipbridge/clipbridge/pkg/log"
	"github.com/clipbridge/clipbridge/pkg/session"
	"github.com/clipbridge/clipbridge/pkg/transport"
	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/rs/zerolog"
)

const maintenanceInterval = 1 * time.Second

// Config carries the identity and policy the supervisor needs to run
// discovery, dial peers, and gate broadcasts.
type Config struct {
	DeviceID     string
	DeviceName   string
	AccountUID   string
	AccountTag   string
	Capabilities []string
	GlobalPolicy types.GlobalPolicy
}

// PeerStatus is one row of Supervisor.ListPeers: a known or connected
// peer and its current connection state.
type PeerStatus struct {
	DeviceID string
	State    types.PeerState
}

// Metrics is the subset of gauges/counters the supervisor updates as
// sessions come and go. Implemented by pkg/metrics; kept as an
// interface here so supervisor never imports it directly.
type Metrics interface {
	SetSessionsOnline(count int)
	BackoffRetry()
}

type noopMetrics struct{}

func (noopMetrics) SetSessionsOnline(int) {}
func (noopMetrics) BackoffRetry()         {}

// Supervisor owns the local transport endpoint and discovery service
// for one device and drives every peer connection through its single
// run loop.
type Supervisor struct {
	cfg    Config
	deps   session.Deps
	logger zerolog.Logger

	transport *transport.Endpoint
	discovery *discovery.Service
	metrics   Metrics

	cmdCh  chan command
	done   chan struct{}
	cancel context.CancelFunc
}

type commandKind int

const (
	cmdBroadcastMeta commandKind = iota
	cmdListPeers
	cmdRequestContent
	cmdShutdown
)

type command struct {
	kind commandKind
	meta types.ItemMeta

	deviceID, itemID, fileID string

	peersReply   chan []PeerStatus
	contentReply chan contentResult
}

type contentResult struct {
	transferID string
	err        error
}

// Spawn binds a QUIC endpoint on an ephemeral port, starts mDNS
// discovery advertising it, and launches the supervisor's run loop.
func Spawn(identity *transport.Identity, cfg Config, deps session.Deps, metrics Metrics) (*Supervisor, error) {
	ep, err := transport.NewEndpoint(identity)
	if err != nil {
		return nil, err
	}

	disc, err := discovery.Start(cfg.DeviceID, cfg.DeviceName, cfg.AccountUID, cfg.Capabilities, ep.BoundPort())
	if err != nil {
		ep.Close()
		return nil, err
	}

	if metrics == nil {
		metrics = noopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:       cfg,
		deps:      deps,
		logger:    log.WithComponent("supervisor"),
		transport: ep,
		discovery: disc,
		metrics:   metrics,
		cmdCh:     make(chan command, 32),
		done:      make(chan struct{}),
		cancel:    cancel,
	}

	go s.run(ctx)
	return s, nil
}

// BoundPort returns the local UDP port the transport endpoint bound to.
func (s *Supervisor) BoundPort() int {
	return s.transport.BoundPort()
}

// BroadcastMeta asynchronously announces meta to every online peer,
// subject to the global policy.
func (s *Supervisor) BroadcastMeta(meta types.ItemMeta) {
	select {
	case s.cmdCh <- command{kind: cmdBroadcastMeta, meta: meta}:
	case <-s.done:
	}
}

// ListPeers returns the current view of every known or connected peer.
func (s *Supervisor) ListPeers() []PeerStatus {
	reply := make(chan []PeerStatus, 1)
	select {
	case s.cmdCh <- command{kind: cmdListPeers, peersReply: reply}:
	case <-s.done:
		return nil
	}
	select {
	case peers := <-reply:
		return peers
	case <-s.done:
		return nil
	}
}

// RequestContentFrom asks whichever online session owns deviceID to
// stream content for itemID (optionally fileID within a file-list
// item). It returns a transfer id immediately; completion is reported
// asynchronously on the Events broker.
func (s *Supervisor) RequestContentFrom(deviceID, itemID, fileID string) (string, error) {
	reply := make(chan contentResult, 1)
	select {
	case s.cmdCh <- command{kind: cmdRequestContent, deviceID: deviceID, itemID: itemID, fileID: fileID, contentReply: reply}:
	case <-s.done:
		return "", errSupervisorShutdown
	}
	select {
	case res := <-reply:
		return res.transferID, res.err
	case <-s.done:
		return "", errSupervisorShutdown
	}
}

// Shutdown stops discovery, closes the transport endpoint, shuts down
// every active session, and blocks until the run loop has exited.
func (s *Supervisor) Shutdown() {
	select {
	case s.cmdCh <- command{kind: cmdShutdown}:
	case <-s.done:
		return
	}
	<-s.done
}

type loopState struct {
	sessions     []*session.Handle
	pendingDials map[string]bool
	backoff      map[string]*backoffState
	knownPeers   map[string]types.PeerCandidate
}

func newLoopState() *loopState {
	return &loopState{
		pendingDials: make(map[string]bool),
		backoff:      make(map[string]*backoffState),
		knownPeers:   make(map[string]types.PeerCandidate),
	}
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	st := newLoopState()
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	acceptCh := make(chan *transport.Conn)
	acceptErrCh := make(chan error, 1)
	go s.acceptLoop(ctx, acceptCh, acceptErrCh)

	for {
		select {
		case cmd := <-s.cmdCh:
			if s.handleCommand(st, cmd) {
				return
			}

		case ev := <-s.discovery.Events():
			s.handleDiscoveryEvent(st, ev)

		case conn := <-acceptCh:
			h := session.Spawn(session.RoleServer, conn, s.deps, "")
			st.sessions = append(st.sessions, h)

		case <-acceptErrCh:
			// transport closed; discovery/command paths still drain until Shutdown.

		case <-ticker.C:
			s.maintain(st)
		}
	}
}

func (s *Supervisor) acceptLoop(ctx context.Context, out chan<- *transport.Conn, errCh chan<- error) {
	for {
		conn, err := s.transport.Accept(ctx)
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
			return
		}
		select {
		case out <- conn:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Supervisor) handleCommand(st *loopState, cmd command) (shutdown bool) {
	switch cmd.kind {
	case cmdBroadcastMeta:
		s.broadcastMeta(st, cmd.meta)
	case cmdListPeers:
		cmd.peersReply <- s.peerStatuses(st)
	case cmdRequestContent:
		cmd.contentReply <- s.requestContent(st, cmd.deviceID, cmd.itemID, cmd.fileID)
	case cmdShutdown:
		s.shutdownAll(st)
		return true
	}
	return false
}

func (s *Supervisor) broadcastMeta(st *loopState, meta types.ItemMeta) {
	if s.cfg.GlobalPolicy == types.PolicyDenyAll {
		s.logger.Debug().Str("item_id", meta.ItemID).Msg("broadcast denied by deny-all policy")
		return
	}
	for _, h := range st.sessions {
		if h.IsOnline() {
			h.SendMeta(meta)
		}
	}
}

func (s *Supervisor) peerStatuses(st *loopState) []PeerStatus {
	peers := make([]PeerStatus, 0, len(st.sessions)+len(st.knownPeers))
	seen := make(map[string]bool, len(st.sessions))

	for _, h := range st.sessions {
		did := h.PeerDeviceID()
		if did == "" {
			continue
		}
		peers = append(peers, PeerStatus{DeviceID: did, State: h.PublicState()})
		seen[did] = true
	}
	for did := range st.knownPeers {
		if !seen[did] {
			peers = append(peers, PeerStatus{DeviceID: did, State: types.PeerDiscovered})
		}
	}
	return peers
}

func (s *Supervisor) requestContent(st *loopState, deviceID, itemID, fileID string) contentResult {
	for _, h := range st.sessions {
		if h.PeerDeviceID() == deviceID && h.IsOnline() {
			transferID, err := h.RequestContent(itemID, fileID)
			return contentResult{transferID: transferID, err: err}
		}
	}
	return contentResult{err: errPeerNotOnline}
}

func (s *Supervisor) shutdownAll(st *loopState) {
	s.discovery.Stop()
	s.transport.Close()
	var wg sync.WaitGroup
	for _, h := range st.sessions {
		wg.Add(1)
		go func(h *session.Handle) {
			defer wg.Done()
			h.Shutdown()
		}(h)
	}
	wg.Wait()
}

// backoffState tracks the exponential retry schedule for a device that
// has dropped or failed to dial: 2^min(fail_count,6) seconds.
type backoffState struct {
	failCount   int
	nextRetryMS int64
}

func backoffDelayMS(failCount int) int64 {
	n := failCount
	if n > 6 {
		n = 6
	}
	return int64(1) << uint(n) * 1000
}

var (
	errSupervisorShutdown = supervisorError("supervisor: shut down")
	errPeerNotOnline      = supervisorError("supervisor: no online session for device")
)

type supervisorError string

func (e supervisorError) Error() string { return string(e) }
