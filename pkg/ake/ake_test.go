package ake

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshakeConvergesOnSameSessionKeyWithMatchingAccount(t *testing.T) {
	material, err := DeriveServerMaterial("account-123")
	require.NoError(t, err)

	client, err := NewClientSession("account-123")
	require.NoError(t, err)
	server, err := NewServerSession(material)
	require.NoError(t, err)

	ke1, err := client.ClientInit()
	require.NoError(t, err)

	ke2, err := server.ServerRespond(ke1)
	require.NoError(t, err)

	ke3, clientKey, err := client.ClientFinish(ke2)
	require.NoError(t, err)
	require.NotEmpty(t, clientKey)

	serverKey, err := server.ServerFinish(ke3)
	require.NoError(t, err)

	require.Equal(t, clientKey, serverKey)
}

func TestDeriveServerMaterialIsDeterministic(t *testing.T) {
	a, err := DeriveServerMaterial("same-account")
	require.NoError(t, err)
	b, err := DeriveServerMaterial("same-account")
	require.NoError(t, err)

	require.Equal(t, a.record.Serialize(), b.record.Serialize())
}

func TestHandshakeFailsOnMismatchedAccount(t *testing.T) {
	material, err := DeriveServerMaterial("account-a")
	require.NoError(t, err)

	client, err := NewClientSession("account-b")
	require.NoError(t, err)
	server, err := NewServerSession(material)
	require.NoError(t, err)

	ke1, err := client.ClientInit()
	require.NoError(t, err)

	ke2, err := server.ServerRespond(ke1)
	require.NoError(t, err)

	ke3, _, clientErr := client.ClientFinish(ke2)
	if clientErr != nil {
		return
	}

	_, serverErr := server.ServerFinish(ke3)
	require.Error(t, serverErr)
}
