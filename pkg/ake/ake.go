package ake

import (
	"crypto/sha512"
	"fmt"

	"github.com/bytemare/opaque"
	"github.com/bytemare/opaque/message"
)

// configuration pins the ciphersuite: Ristretto255 for both the OPRF and
// the key-exchange group, triple-DH key exchange, identity KSF. The shared
// secret authenticated here is an account uid, which is already
// high-entropy, so no extra key-stretching is warranted.
var configuration = opaque.DefaultConfiguration()

// credentialIdentifier is fixed: clipbridge has exactly one account
// "user" per registration, mirroring the single hard-coded identifier
// clipbridge's reference client used during registration derivation.
var credentialIdentifier = []byte("clipbridge-account")

// ServerMaterial is the server-side registration record and OPRF seed
// needed to answer a login, reconstructed on demand from the account uid
// rather than ever persisted to disk.
type ServerMaterial struct {
	setup  *opaque.ServerSetup
	record *message.RegistrationRecord
}

// DeriveServerMaterial reconstructs the OPAQUE server registration record
// for accountUID deterministically: a ChaCha20-backed seed from
// sha-512(accountUID) drives a full client/server registration round-trip
// in memory, and only the resulting record is kept. Any device holding
// accountUID can call this at any time and obtain byte-identical material,
// so nothing about it needs to be synchronized between peers.
func DeriveServerMaterial(accountUID string) (*ServerMaterial, error) {
	seed := sha512.Sum512([]byte(accountUID))
	rng := newSeededReader(seed[:32])

	setup, err := configuration.NewServerSetup(rng)
	if err != nil {
		return nil, fmt.Errorf("ake: derive server setup: %w", err)
	}

	client, err := configuration.Client()
	if err != nil {
		return nil, fmt.Errorf("ake: new client: %w", err)
	}
	server, err := configuration.Server()
	if err != nil {
		return nil, fmt.Errorf("ake: new server: %w", err)
	}

	regReq := client.RegistrationInit([]byte(accountUID))
	regResp, err := server.RegistrationResponse(regReq, setup.ServerPublicKey(), credentialIdentifier, setup.OPRFSeed())
	if err != nil {
		return nil, fmt.Errorf("ake: registration response: %w", err)
	}
	record, _, err := client.RegistrationFinalize(regResp, opaque.ClientRegistrationFinalizeOptions{})
	if err != nil {
		return nil, fmt.Errorf("ake: registration finalize: %w", err)
	}

	return &ServerMaterial{setup: setup, record: record}, nil
}

// ClientSession drives the initiator side of a login: ClientInit produces
// the OpaqueStart payload, ClientFinish consumes the peer's OpaqueResponse
// and produces the OpaqueFinish payload plus the derived session key.
type ClientSession struct {
	client     *opaque.Client
	accountUID string
}

// NewClientSession begins a login attempt authenticated by accountUID.
func NewClientSession(accountUID string) (*ClientSession, error) {
	client, err := configuration.Client()
	if err != nil {
		return nil, fmt.Errorf("ake: new client: %w", err)
	}
	return &ClientSession{client: client, accountUID: accountUID}, nil
}

// ClientInit produces the serialized KE1 message carried in OpaqueStart.
func (c *ClientSession) ClientInit() ([]byte, error) {
	ke1, err := c.client.GenerateKE1([]byte(c.accountUID))
	if err != nil {
		return nil, fmt.Errorf("ake: generate ke1: %w", err)
	}
	return ke1.Serialize(), nil
}

// ClientFinish consumes the responder's serialized KE2 (from
// OpaqueResponse) and returns the serialized KE3 (for OpaqueFinish) and the
// session key both sides converge on. A wrong accountUID on either side
// causes this call, or the responder's ServerFinish, to fail.
func (c *ClientSession) ClientFinish(ke2Bytes []byte) (ke3Bytes []byte, sessionKey []byte, err error) {
	ke2 := &message.KE2{}
	if err := ke2.Deserialize(configuration, ke2Bytes); err != nil {
		return nil, nil, fmt.Errorf("ake: deserialize ke2: %w", err)
	}

	ke3, result, err := c.client.GenerateKE3(ke2)
	if err != nil {
		return nil, nil, fmt.Errorf("ake: generate ke3: %w", err)
	}
	return ke3.Serialize(), result.SessionKey, nil
}

// ServerSession drives the responder side of a login against previously
// derived ServerMaterial: ServerRespond consumes OpaqueStart and produces
// OpaqueResponse, ServerFinish consumes OpaqueFinish and yields the
// session key.
type ServerSession struct {
	server   *opaque.Server
	material *ServerMaterial
}

// NewServerSession begins answering a login using material derived by
// DeriveServerMaterial for the same account uid as the initiator.
func NewServerSession(material *ServerMaterial) (*ServerSession, error) {
	server, err := configuration.Server()
	if err != nil {
		return nil, fmt.Errorf("ake: new server: %w", err)
	}
	return &ServerSession{server: server, material: material}, nil
}

// ServerRespond consumes the initiator's serialized KE1 (from OpaqueStart)
// and returns the serialized KE2 (for OpaqueResponse).
func (s *ServerSession) ServerRespond(ke1Bytes []byte) ([]byte, error) {
	ke1 := &message.KE1{}
	if err := ke1.Deserialize(configuration, ke1Bytes); err != nil {
		return nil, fmt.Errorf("ake: deserialize ke1: %w", err)
	}

	ke2, err := s.server.GenerateKE2(s.material.setup, credentialIdentifier, s.material.record, ke1, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("ake: generate ke2: %w", err)
	}
	return ke2.Serialize(), nil
}

// ServerFinish consumes the initiator's serialized KE3 (from OpaqueFinish)
// and returns the session key, or an error if the initiator authenticated
// with a different account uid.
func (s *ServerSession) ServerFinish(ke3Bytes []byte) ([]byte, error) {
	ke3 := &message.KE3{}
	if err := ke3.Deserialize(configuration, ke3Bytes); err != nil {
		return nil, fmt.Errorf("ake: deserialize ke3: %w", err)
	}

	sessionKey, err := s.server.LoginFinish(ke3)
	if err != nil {
		return nil, fmt.Errorf("ake: login finish: %w", err)
	}
	return sessionKey, nil
}
