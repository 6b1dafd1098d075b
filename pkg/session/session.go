// Package session implements the per-connection Session Actor: the
// state machine that drives one peer connection from a freshly accepted
// or dialed transport stream through authentication to steady-state
// metadata and content exchange.
//
// A Session owns the connection's single bidirectional stream
// exclusively: a dedicated reader goroutine reads frames from it, and one
// actor goroutine handles them and does all writes, driven by a select
// loop over inbound frames, caller commands, and a heartbeat ticker.
package session

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clipbridge/clipbridge/pkg/ake"
	"github.com/clipbridge/clipbridge/pkg/cas"
	"github.com/clipbridge/clipbridge/pkg/catalog"
	"github.com/clipbridge/clipbridge/pkg/events"
	"github.com/clipbridge/clipbridge/pkg/log"
	"github.com/clipbridge/clipbridge/pkg/transport"
	"github.com/clipbridge/clipbridge/pkg/trust"
	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/clipbridge/clipbridge/pkg/wire/control"
	"github.com/clipbridge/clipbridge/pkg/wire/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	heartbeatInterval = 2 * time.Second
	heartbeatTimeout  = 6 * time.Second
	contentChunkSize  = 256 << 10
)

// Role distinguishes the handshake initiator from the responder. The
// initiator speaks first (Hello) and drives the OPAQUE login as the
// AKE client; the responder answers and drives it as the AKE server.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// State is the session's externally observable lifecycle stage.
type State string

const (
	StateTransportReady  State = "transport_ready"
	StateHandshaking     State = "handshaking"
	StateAccountVerified State = "account_verified"
	StateOnline          State = "online"
	StateTerminated       State = "terminated"
)

// HandshakeStep is the fine-grained position within StateHandshaking,
// exposed mainly for logging and tests.
type HandshakeStep string

const (
	StepSendingHello    HandshakeStep = "sending_hello"
	StepWaitingHello    HandshakeStep = "waiting_for_hello"
	StepWaitingHelloAck HandshakeStep = "waiting_for_hello_ack"
	StepOpaqueStart     HandshakeStep = "opaque_start"
	StepOpaqueResponse  HandshakeStep = "opaque_response"
	StepOpaqueFinish    HandshakeStep = "opaque_finish"
	StepWaitingAuthOk   HandshakeStep = "waiting_auth_ok"
)

// Error codes carried in AuthFail/Error control messages.
const (
	ErrCodeAccountTagMismatch = "AUTH_ACCOUNT_TAG_MISMATCH"
	ErrCodeProtocolVersion    = "AUTH_PROTOCOL_VERSION_MISMATCH"
	ErrCodeTLSPinMismatch     = "TLS_PIN_MISMATCH"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodePolicyReject       = "POLICY_REJECT"
)

// Config is the subset of device identity a session needs to run the
// handshake and tag outgoing items.
type Config struct {
	DeviceID   string
	DeviceName string
	AccountUID string
	AccountTag string
}

// Deps are the shared, long-lived collaborators a session reads and
// writes through. None of them are owned by the session.
type Deps struct {
	Catalog catalog.Store
	CAS     *cas.Store
	Trust   *trust.Store
	Events  *events.Broker
	Config  Config
}

// Handle is the supervisor-facing reference to a running session: a
// thread-safe view of its state plus a command channel to direct it.
type Handle struct {
	initialDeviceID string // "" for a server session awaiting Hello
	peerDeviceID    atomic.Value
	state           atomic.Value
	cmdCh           chan command
	done            chan struct{}
}

// PeerDeviceID returns the remote device id once known, or the expected
// id a dialed session was opened with.
func (h *Handle) PeerDeviceID() string {
	if v, ok := h.peerDeviceID.Load().(string); ok {
		return v
	}
	return h.initialDeviceID
}

// State returns the session's current lifecycle stage.
func (h *Handle) State() State {
	if v, ok := h.state.Load().(State); ok {
		return v
	}
	return StateTransportReady
}

// IsOnline reports whether the session has completed authentication.
func (h *Handle) IsOnline() bool {
	return h.State() == StateOnline
}

// IsFinished reports whether the session's actor goroutine has exited.
func (h *Handle) IsFinished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// PublicState maps the internal State to the PeerState enum reported by
// Core.ListPeers.
func (h *Handle) PublicState() types.PeerState {
	switch h.State() {
	case StateTransportReady:
		return types.PeerConnecting
	case StateHandshaking:
		return types.PeerHandshaking
	case StateAccountVerified:
		return types.PeerAccountVerified
	case StateOnline:
		return types.PeerOnline
	default:
		return types.PeerOffline
	}
}

// SendMeta asynchronously broadcasts meta to the peer if the session is
// online by the time the actor dequeues the command; dropped otherwise.
func (h *Handle) SendMeta(meta types.ItemMeta) {
	select {
	case h.cmdCh <- command{kind: cmdSendMeta, meta: meta}:
	case <-h.done:
	}
}

// RequestContent asks the peer to stream content for itemID (optionally
// one file of a file-list item), returning a transfer id immediately.
// Completion and failure are reported asynchronously via the Events
// broker as TypeContentCached / TypeCoreError, tagged with this id.
func (h *Handle) RequestContent(itemID, fileID string) (transferID string, err error) {
	transferID = uuid.NewString()
	select {
	case h.cmdCh <- command{kind: cmdRequestContent, req: contentRequest{itemID: itemID, fileID: fileID, transferID: transferID}}:
		return transferID, nil
	case <-h.done:
		return "", errors.New("session: already terminated")
	}
}

// Shutdown asks the session to close gracefully and blocks until its
// actor goroutine has exited.
func (h *Handle) Shutdown() {
	select {
	case h.cmdCh <- command{kind: cmdShutdown}:
	case <-h.done:
		return
	}
	<-h.done
}

type cmdKind int

const (
	cmdSendMeta cmdKind = iota
	cmdRequestContent
	cmdShutdown
)

type command struct {
	kind cmdKind
	meta types.ItemMeta
	req  contentRequest
}

type contentRequest struct {
	itemID     string
	fileID     string
	transferID string
}

// Spawn starts a session actor goroutine over conn and returns a Handle
// to it. expectedDeviceID is the device id discovery already resolved
// for a client-role (dialed) session, or "" for a server-role (accepted)
// session that learns the peer's id from its Hello.
func Spawn(role Role, conn *transport.Conn, deps Deps, expectedDeviceID string) *Handle {
	h := &Handle{
		initialDeviceID: expectedDeviceID,
		cmdCh:           make(chan command, 32),
		done:            make(chan struct{}),
	}
	h.state.Store(StateTransportReady)
	if expectedDeviceID != "" {
		h.peerDeviceID.Store(expectedDeviceID)
	}

	a := &actor{
		role:       role,
		conn:       conn,
		deps:       deps,
		handle:     h,
		logger:     log.WithComponent("session").With().Str("role", string(role)).Str("remote_fp", conn.RemoteFingerprint).Logger(),
		lastActive: time.Now(),
	}

	go a.run()
	return h
}

// actor holds the per-session mutable state; only the goroutine started
// by Spawn ever touches it.
type actor struct {
	role   Role
	conn   *transport.Conn
	deps   Deps
	handle *Handle
	logger zerolog.Logger

	state          State
	handshakeStep  HandshakeStep
	remoteDeviceID string
	lastActive     time.Time
	writeMu        sync.Mutex

	clientOpaque *ake.ClientSession
	serverOpaque *ake.ServerSession

	pendingFetch *contentRequest // outstanding RequestContent awaiting ContentBegin

	incoming *incomingTransfer // active inbound content transfer, if any
}

type incomingTransfer struct {
	reqID      string
	sha256     string
	mime       string
	totalBytes int64
	written    int64
	hasher     hash.Hash
	file       *os.File
	tmpPath    string
	itemID     string
	fileID     string
}

func (a *actor) run() {
	defer close(a.handle.done)

	frameCh := make(chan frame.Frame, 8)
	errCh := make(chan error, 1)
	readCtx, cancelRead := context.WithCancel(context.Background())
	defer cancelRead()

	go a.readLoop(readCtx, frameCh, errCh)

	if err := a.startHandshake(); err != nil {
		a.logger.Warn().Err(err).Msg("handshake send failed")
		a.terminate()
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case f, ok := <-frameCh:
			if !ok {
				break loop
			}
			a.lastActive = time.Now()
			if err := a.handleFrame(f); err != nil {
				runErr = err
				break loop
			}

		case err := <-errCh:
			if !errors.Is(err, io.EOF) {
				runErr = err
			}
			break loop

		case cmd := <-a.handle.cmdCh:
			if !a.handleCommand(cmd) {
				break loop
			}

		case <-ticker.C:
			if err := a.tickHeartbeat(); err != nil {
				runErr = err
				break loop
			}
		}
	}

	cancelRead()
	a.terminate()

	if a.remoteDeviceID != "" {
		reason := "connection closed"
		if runErr != nil {
			reason = runErr.Error()
		}
		a.deps.Events.Publish(&events.Event{
			Type:     events.TypePeerOffline,
			DeviceID: a.remoteDeviceID,
			Message:  reason,
		})
	}
	if runErr != nil {
		a.logger.Warn().Err(runErr).Msg("session ended")
	} else {
		a.logger.Info().Msg("session ended")
	}
}

func (a *actor) readLoop(ctx context.Context, out chan<- frame.Frame, errCh chan<- error) {
	for {
		f, err := frame.Read(a.conn.Stream)
		if err != nil {
			select {
			case errCh <- err:
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- f:
		case <-ctx.Done():
			return
		}
	}
}

func (a *actor) setState(s State) {
	a.state = s
	a.handle.state.Store(s)
}

func (a *actor) setStep(step HandshakeStep) {
	a.handshakeStep = step
	a.logger.Debug().Str("step", string(step)).Msg("handshake step")
}

func (a *actor) setRemoteDeviceID(id string) {
	a.remoteDeviceID = id
	a.handle.peerDeviceID.Store(id)
}

func (a *actor) terminate() {
	a.setState(StateTerminated)
	if a.incoming != nil {
		a.abortIncomingTransfer("session terminated")
	}
	a.conn.Raw.CloseWithError(0, "session closed")
}

func (a *actor) send(typ string, msg any) error {
	payload, err := control.Encode(typ, uuid.NewString(), "", msg)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", typ, err)
	}
	return a.sendFrame(frame.Frame{Type: frame.TypeControl, Payload: payload})
}

func (a *actor) sendFrame(f frame.Frame) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return frame.Encode(a.conn.Stream, f)
}

func (a *actor) startHandshake() error {
	switch a.role {
	case RoleClient:
		a.setState(StateHandshaking)
		a.setStep(StepSendingHello)
		hello := control.Hello{
			ProtocolVersion: control.ProtocolVersion,
			DeviceID:        a.deps.Config.DeviceID,
			AccountTag:      a.deps.Config.AccountTag,
			Capabilities:    []string{"text", "image", "file-list"},
			ClientNonce:     uuid.NewString(),
		}
		if err := a.send(control.TypeHello, hello); err != nil {
			return err
		}
		a.setStep(StepWaitingHelloAck)
		return nil

	case RoleServer:
		a.setState(StateHandshaking)
		a.setStep(StepWaitingHello)
	}
	return nil
}

func (a *actor) handleCommand(cmd command) bool {
	switch cmd.kind {
	case cmdSendMeta:
		if a.state == StateOnline {
			if err := a.send(control.TypeItemMeta, control.ItemMetaMsg{Item: cmd.meta}); err != nil {
				a.logger.Warn().Err(err).Msg("send item meta failed")
			}
		}
		return true

	case cmdRequestContent:
		if a.state != StateOnline {
			a.deps.Events.Publish(&events.Event{Type: events.TypeCoreError, Message: "session offline", ItemID: cmd.req.itemID, TransferID: cmd.req.transferID})
			return true
		}
		if a.pendingFetch != nil {
			a.deps.Events.Publish(&events.Event{Type: events.TypeCoreError, Message: "fetch already in flight on this session", ItemID: cmd.req.itemID, TransferID: cmd.req.transferID})
			return true
		}
		if err := a.send(control.TypeContentGet, control.ContentGet{ItemID: cmd.req.itemID, FileID: cmd.req.fileID}); err != nil {
			a.deps.Events.Publish(&events.Event{Type: events.TypeCoreError, Message: err.Error(), ItemID: cmd.req.itemID, TransferID: cmd.req.transferID})
			return true
		}
		req := cmd.req
		a.pendingFetch = &req
		return true

	case cmdShutdown:
		_ = a.send(control.TypeClose, control.CloseMsg{Reason: "shutdown"})
		return false
	}
	return true
}

func (a *actor) tickHeartbeat() error {
	if time.Since(a.lastActive) > heartbeatTimeout {
		_ = a.send(control.TypeError, control.ErrorMsg{ErrorCode: ErrCodeTimeout, Message: "heartbeat timeout"})
		return errors.New("session: heartbeat timeout")
	}
	if a.state == StateOnline {
		return a.send(control.TypePing, control.Ping{TS: types.NowMS(time.Now())})
	}
	return nil
}
