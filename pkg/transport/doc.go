/*
Package transport implements clipbridge's peer transport: a QUIC endpoint
authenticated by a persistent, self-signed device certificate, mutual TLS
1.3 with ALPN "clipbridge-v1", and one bidirectional stream per session.

# Identity

Each device owns one self-signed certificate, generated on first run and
stored at <data>/tls/cert.der (public) and <data>/tls/key.encrypted
(private key, encrypted at rest). The encryption key is derived from
(device-id, account-uid) by a memory-hard KDF (argon2id, m=64MiB, t=3,
p=1) so that an attacker with the encrypted file alone cannot brute-force
the key offline without paying that per-guess cost. Changing the KDF
input (for example, rotating the account) makes the existing file fail
to decrypt; Identity treats that as "no identity yet" and regenerates.

# Session establishment

The server's TLS verifier accepts any client certificate unconditionally
— peer authentication is the job of the AKE (pkg/ake) and trust store
(pkg/trust) layered on top, not the transport. The transport's only
responsibility is capturing the remote certificate's fingerprint at
session start for the session actor to pin.
*/
package transport
