package control

import (
	"encoding/json"
	"fmt"

	"github.com/clipbridge/clipbridge/pkg/types"
)

// ProtocolVersion is the control-plane version advertised in Hello. Peers
// advertising a different version fail the handshake with AuthFail.
const ProtocolVersion = 1

// Message types, used as the "type" discriminator in the JSON envelope.
const (
	TypeHello          = "hello"
	TypeHelloAck       = "hello_ack"
	TypeAuthFail       = "auth_fail"
	TypeOpaqueStart    = "opaque_start"
	TypeOpaqueResponse = "opaque_response"
	TypeOpaqueFinish   = "opaque_finish"
	TypeAuthOk         = "auth_ok"
	TypePing           = "ping"
	TypePong           = "pong"
	TypeItemMeta       = "item_meta"
	TypeContentGet     = "content_get"
	TypeContentBegin   = "content_begin"
	TypeContentEnd     = "content_end"
	TypeContentCancel  = "content_cancel"
	TypeError          = "error"
	TypeClose          = "close"
)

// Envelope is the wire shape of every control message: a type discriminator
// plus the type-specific payload, carried as raw JSON so Decode can dispatch
// before unmarshaling the body.
type Envelope struct {
	Type    string          `json:"type"`
	MsgID   string          `json:"msg_id,omitempty"`
	ReplyTo string          `json:"reply_to,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hello is the initiator's opening message.
type Hello struct {
	ProtocolVersion int      `json:"protocol_version"`
	DeviceID        string   `json:"device_id"`
	AccountTag      string   `json:"account_tag"`
	Capabilities    []string `json:"capabilities,omitempty"`
	ClientNonce     string   `json:"client_nonce"`
}

// HelloAck is the responder's reply to a valid Hello.
type HelloAck struct {
	ServerDeviceID  string `json:"server_device_id"`
	ProtocolVersion int    `json:"protocol_version"`
}

// AuthFail terminates a handshake that can never succeed (bad account tag,
// mismatched protocol version).
type AuthFail struct {
	ErrorCode string `json:"error_code"`
}

// OpaqueStart carries the initiator's AKE KE1 message.
type OpaqueStart struct {
	Bytes []byte `json:"bytes"`
}

// OpaqueResponse carries the responder's AKE KE2 message.
type OpaqueResponse struct {
	Bytes []byte `json:"bytes"`
}

// OpaqueFinish carries the initiator's AKE KE3 message.
type OpaqueFinish struct {
	Bytes []byte `json:"bytes"`
}

// SessionFlags reports what the responder verified during AuthOk.
type SessionFlags struct {
	AccountVerified bool `json:"account_verified"`
}

// AuthOk concludes a successful handshake.
type AuthOk struct {
	SessionFlags SessionFlags `json:"session_flags"`
}

// Ping/Pong carry the sender's local timestamp in milliseconds, used by the
// peer to measure round-trip but not required for the heartbeat's own
// liveness accounting (any inbound frame refreshes last-active).
type Ping struct {
	TS int64 `json:"ts"`
}

type Pong struct {
	TS int64 `json:"ts"`
}

// ItemMetaMsg broadcasts an item's metadata to a peer.
type ItemMetaMsg struct {
	Item types.ItemMeta `json:"item"`
}

// ContentGet requests content bytes for an item, optionally scoped to one
// file of a file-list item and an offset to resume a partial transfer.
type ContentGet struct {
	ItemID string `json:"item_id"`
	FileID string `json:"file_id,omitempty"`
	Offset int64  `json:"offset,omitempty"`
}

// ContentBegin opens a content transfer identified by ReqID.
type ContentBegin struct {
	ReqID      string `json:"req_id"`
	ItemID     string `json:"item_id"`
	FileID     string `json:"file_id,omitempty"`
	TotalBytes int64  `json:"total_bytes"`
	SHA256     string `json:"sha256"`
	MIME       string `json:"mime"`
}

// ContentEnd closes a content transfer.
type ContentEnd struct {
	ReqID  string `json:"req_id"`
	SHA256 string `json:"sha256"`
}

// ContentCancel aborts an in-flight content transfer.
type ContentCancel struct {
	ReqID  string `json:"req_id"`
	Reason string `json:"reason"`
}

// ErrorMsg reports a protocol or application-level error to the peer.
type ErrorMsg struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message,omitempty"`
}

// CloseMsg announces a graceful session close.
type CloseMsg struct {
	Reason string `json:"reason"`
}

// Encode marshals a typed payload into its Envelope form. payload must be
// one of the message structs defined in this package; typ must be the
// matching Type* constant.
func Encode(typ string, msgID, replyTo string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("control: marshal payload: %w", err)
	}
	env := Envelope{Type: typ, MsgID: msgID, ReplyTo: replyTo, Data: data}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("control: marshal envelope: %w", err)
	}
	return out, nil
}

// Decode parses an envelope and unmarshals its Data into the concrete
// message type named by the envelope's Type, returning the message as an
// any the caller type-switches on.
func Decode(raw []byte) (envelope Envelope, msg any, err error) {
	if err = json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, nil, fmt.Errorf("control: unmarshal envelope: %w", err)
	}

	var target any
	switch envelope.Type {
	case TypeHello:
		target = &Hello{}
	case TypeHelloAck:
		target = &HelloAck{}
	case TypeAuthFail:
		target = &AuthFail{}
	case TypeOpaqueStart:
		target = &OpaqueStart{}
	case TypeOpaqueResponse:
		target = &OpaqueResponse{}
	case TypeOpaqueFinish:
		target = &OpaqueFinish{}
	case TypeAuthOk:
		target = &AuthOk{}
	case TypePing:
		target = &Ping{}
	case TypePong:
		target = &Pong{}
	case TypeItemMeta:
		target = &ItemMetaMsg{}
	case TypeContentGet:
		target = &ContentGet{}
	case TypeContentBegin:
		target = &ContentBegin{}
	case TypeContentEnd:
		target = &ContentEnd{}
	case TypeContentCancel:
		target = &ContentCancel{}
	case TypeError:
		target = &ErrorMsg{}
	case TypeClose:
		target = &CloseMsg{}
	default:
		return envelope, nil, fmt.Errorf("control: unknown message type %q", envelope.Type)
	}

	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, target); err != nil {
			return envelope, nil, fmt.Errorf("control: unmarshal %s payload: %w", envelope.Type, err)
		}
	}
	return envelope, target, nil
}
