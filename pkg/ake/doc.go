/*
Package ake implements clipbridge's authenticated key exchange: an OPAQUE
password-authenticated key exchange where the "password" is the shared
account uid. Ciphersuite: Ristretto255 (OPRF and key-exchange group),
triple-DH key exchange, identity KSF — the account uid is already
high-entropy per session scope, so no added key-stretching is needed.

Server registration material is never persisted: both initiator and
responder derive it deterministically from sha-512(account-uid) on
demand, which is what lets either device act as the AKE's "server" role
(see pkg/session for the initiator/responder role assignment).

The three-message flow maps directly onto the control protocol's
OpaqueStart/OpaqueResponse/OpaqueFinish messages (pkg/wire/control):
ClientInit produces the OpaqueStart payload, ServerRespond consumes it and
produces OpaqueResponse, ClientFinish consumes that and produces
OpaqueFinish, and ServerFinish consumes that to complete the exchange and
yield the shared session key.
*/
package ake
