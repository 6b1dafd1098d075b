package control

import (
	"testing"

	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHelloRoundTrip(t *testing.T) {
	want := Hello{
		ProtocolVersion: ProtocolVersion,
		DeviceID:        "dev-1",
		AccountTag:      "acct-tag",
		Capabilities:    []string{"text", "image"},
		ClientNonce:     "nonce-123",
	}
	raw, err := Encode(TypeHello, "msg-1", "", want)
	require.NoError(t, err)

	env, msg, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, TypeHello, env.Type)
	require.Equal(t, "msg-1", env.MsgID)

	got, ok := msg.(*Hello)
	require.True(t, ok)
	require.Equal(t, want, *got)
}

func TestEncodeDecodeItemMeta(t *testing.T) {
	item := types.ItemMeta{
		ItemID: "item-1",
		Kind:   types.KindText,
		Content: types.ContentDescriptor{
			MIME:   "text/plain",
			SHA256: "deadbeef",
			Length: 5,
		},
	}
	raw, err := Encode(TypeItemMeta, "", "", ItemMetaMsg{Item: item})
	require.NoError(t, err)

	_, msg, err := Decode(raw)
	require.NoError(t, err)
	got, ok := msg.(*ItemMetaMsg)
	require.True(t, ok)
	require.Equal(t, item, got.Item)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, _, err := Decode([]byte(`{"type":"not_a_real_type"}`))
	require.Error(t, err)
}

func TestDecodeReplyToPropagates(t *testing.T) {
	raw, err := Encode(TypePong, "msg-2", "msg-1", Pong{TS: 42})
	require.NoError(t, err)

	env, msg, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "msg-1", env.ReplyTo)
	pong, ok := msg.(*Pong)
	require.True(t, ok)
	require.Equal(t, int64(42), pong.TS)
}
