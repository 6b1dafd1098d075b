package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/clipbridge/clipbridge/pkg/ake"
	"github.com/clipbridge/clipbridge/pkg/events"
	"github.com/clipbridge/clipbridge/pkg/trust"
	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/clipbridge/clipbridge/pkg/wire/control"
	"github.com/clipbridge/clipbridge/pkg/wire/frame"
)

// handleFrame dispatches one inbound frame: a control frame is decoded
// and routed through handleControl, a data frame is routed to the
// active inbound content transfer.
func (a *actor) handleFrame(f frame.Frame) error {
	switch f.Type {
	case frame.TypeControl:
		_, msg, err := control.Decode(f.Payload)
		if err != nil {
			a.logger.Warn().Err(err).Msg("malformed control frame")
			a.deps.Events.Publish(&events.Event{Type: events.TypeCoreError, DeviceID: a.remoteDeviceID, Message: "malformed control frame"})
			return err
		}
		return a.handleControl(msg)

	case frame.TypeData:
		return a.handleDataFrame(f.Payload)

	default:
		return fmt.Errorf("session: unknown frame type %d", f.Type)
	}
}

func (a *actor) handleControl(msg any) error {
	switch m := msg.(type) {
	case *control.Hello:
		return a.onHello(m)
	case *control.HelloAck:
		return a.onHelloAck(m)
	case *control.OpaqueStart:
		return a.onOpaqueStart(m)
	case *control.OpaqueResponse:
		return a.onOpaqueResponse(m)
	case *control.OpaqueFinish:
		return a.onOpaqueFinish(m)
	case *control.AuthOk:
		return a.onAuthOk()
	case *control.AuthFail:
		return fmt.Errorf("session: remote auth fail: %s", m.ErrorCode)
	case *control.Ping:
		return a.send(control.TypePong, control.Pong{TS: m.TS})
	case *control.Pong:
		return nil
	case *control.ItemMetaMsg:
		return a.onItemMeta(m)
	case *control.ContentGet:
		return a.onContentGet(m)
	case *control.ContentBegin:
		return a.onContentBegin(m)
	case *control.ContentEnd:
		return a.onContentEnd(m)
	case *control.ContentCancel:
		a.abortIncomingTransfer("peer cancelled: " + m.Reason)
		return nil
	case *control.ErrorMsg:
		return fmt.Errorf("session: remote error %s: %s", m.ErrorCode, m.Message)
	case *control.CloseMsg:
		return errors.New("session: remote closed: " + m.Reason)
	default:
		return fmt.Errorf("session: unhandled control message %T", msg)
	}
}

func (a *actor) onHello(m *control.Hello) error {
	if a.role != RoleServer {
		return nil
	}
	if m.ProtocolVersion != control.ProtocolVersion {
		_ = a.send(control.TypeAuthFail, control.AuthFail{ErrorCode: ErrCodeProtocolVersion})
		_ = a.send(control.TypeClose, control.CloseMsg{Reason: "protocol version mismatch"})
		return fmt.Errorf("session: protocol version mismatch: %d", m.ProtocolVersion)
	}
	if m.AccountTag != a.deps.Config.AccountTag {
		_ = a.send(control.TypeAuthFail, control.AuthFail{ErrorCode: ErrCodeAccountTagMismatch})
		_ = a.send(control.TypeClose, control.CloseMsg{Reason: "account tag mismatch"})
		return errors.New("session: account tag mismatch")
	}

	a.setRemoteDeviceID(m.DeviceID)
	a.setStep(StepOpaqueStart)
	if err := a.send(control.TypeHelloAck, control.HelloAck{
		ServerDeviceID:  a.deps.Config.DeviceID,
		ProtocolVersion: control.ProtocolVersion,
	}); err != nil {
		return err
	}
	return nil
}

func (a *actor) onHelloAck(m *control.HelloAck) error {
	if a.role != RoleClient {
		return nil
	}
	a.setRemoteDeviceID(m.ServerDeviceID)
	return a.startOpaqueLogin()
}

func (a *actor) startOpaqueLogin() error {
	a.setStep(StepOpaqueStart)
	client, err := ake.NewClientSession(a.deps.Config.AccountUID)
	if err != nil {
		return fmt.Errorf("session: new client session: %w", err)
	}
	a.clientOpaque = client

	ke1, err := client.ClientInit()
	if err != nil {
		return fmt.Errorf("session: client init: %w", err)
	}
	if err := a.send(control.TypeOpaqueStart, control.OpaqueStart{Bytes: ke1}); err != nil {
		return err
	}
	a.setStep(StepOpaqueResponse)
	return nil
}

func (a *actor) onOpaqueStart(m *control.OpaqueStart) error {
	if a.role != RoleServer {
		return nil
	}
	material, err := ake.DeriveServerMaterial(a.deps.Config.AccountUID)
	if err != nil {
		return fmt.Errorf("session: derive server material: %w", err)
	}
	server, err := ake.NewServerSession(material)
	if err != nil {
		return fmt.Errorf("session: new server session: %w", err)
	}
	a.serverOpaque = server

	ke2, err := server.ServerRespond(m.Bytes)
	if err != nil {
		return fmt.Errorf("session: server respond: %w", err)
	}
	if err := a.send(control.TypeOpaqueResponse, control.OpaqueResponse{Bytes: ke2}); err != nil {
		return err
	}
	a.setStep(StepOpaqueFinish)
	return nil
}

func (a *actor) onOpaqueResponse(m *control.OpaqueResponse) error {
	if a.role != RoleClient || a.clientOpaque == nil {
		return nil
	}
	ke3, _, err := a.clientOpaque.ClientFinish(m.Bytes)
	if err != nil {
		return fmt.Errorf("session: client finish: %w", err)
	}
	if err := a.send(control.TypeOpaqueFinish, control.OpaqueFinish{Bytes: ke3}); err != nil {
		return err
	}
	a.setStep(StepWaitingAuthOk)
	return nil
}

func (a *actor) onOpaqueFinish(m *control.OpaqueFinish) error {
	if a.role != RoleServer || a.serverOpaque == nil {
		return nil
	}
	if _, err := a.serverOpaque.ServerFinish(m.Bytes); err != nil {
		_ = a.send(control.TypeError, control.ErrorMsg{ErrorCode: ErrCodePolicyReject, Message: "authentication failed"})
		return fmt.Errorf("session: server finish: %w", err)
	}
	a.setState(StateAccountVerified)

	if err := a.performTOFUCheck(); err != nil {
		_ = a.send(control.TypeError, control.ErrorMsg{ErrorCode: ErrCodeTLSPinMismatch, Message: err.Error()})
		return err
	}

	if err := a.send(control.TypeAuthOk, control.AuthOk{SessionFlags: control.SessionFlags{AccountVerified: true}}); err != nil {
		return err
	}
	return a.transitionToOnline()
}

func (a *actor) onAuthOk() error {
	if a.role != RoleClient {
		return nil
	}
	a.setState(StateAccountVerified)
	if err := a.performTOFUCheck(); err != nil {
		return err
	}
	return a.transitionToOnline()
}

// performTOFUCheck pins the remote certificate fingerprint on first
// contact, or requires it to match the pin already on file.
func (a *actor) performTOFUCheck() error {
	if a.remoteDeviceID == "" {
		return errors.New("session: missing remote device id")
	}
	err := a.deps.Trust.Verify(a.remoteDeviceID, a.conn.RemoteFingerprint, types.NowMS(time.Now()))
	if errors.Is(err, trust.ErrFingerprintMismatch) {
		return fmt.Errorf("session: %s: device %s", ErrCodeTLSPinMismatch, a.remoteDeviceID)
	}
	return err
}

func (a *actor) transitionToOnline() error {
	a.setState(StateOnline)
	if a.remoteDeviceID != "" {
		a.deps.Events.Publish(&events.Event{Type: events.TypePeerOnline, DeviceID: a.remoteDeviceID})
	}
	return nil
}

func (a *actor) onItemMeta(m *control.ItemMetaMsg) error {
	if a.state != StateOnline {
		return nil
	}
	isNew, err := a.deps.Catalog.InsertRemoteItem(a.deps.Config.AccountUID, m.Item, types.NowMS(time.Now()))
	if err != nil {
		a.logger.Warn().Err(err).Str("item_id", m.Item.ItemID).Msg("insert remote item failed")
		return nil
	}
	if isNew {
		a.deps.Events.Publish(&events.Event{Type: events.TypeItemMetaAdded, ItemID: m.Item.ItemID, SHA256: m.Item.Content.SHA256, DeviceID: a.remoteDeviceID})
	}
	return nil
}
