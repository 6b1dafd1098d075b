package transport

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"time"

	"github.com/clipbridge/clipbridge/pkg/log"
	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"
)

// ALPN is the application-layer protocol negotiated on every QUIC
// connection; a mismatch fails the TLS handshake before any clipbridge
// frame is exchanged.
const ALPN = "clipbridge-v1"

const (
	idleTimeout     = 10 * time.Second
	keepAlivePeriod = 2 * time.Second
)

// Endpoint is a bound QUIC listener plus the identity and dial capability
// needed to both accept and initiate peer sessions.
type Endpoint struct {
	identity *Identity
	listener *quic.Listener
	logger   zerolog.Logger
}

// Conn wraps an established QUIC connection and the single bidirectional
// stream clipbridge uses for all frame traffic on it, plus the peer
// certificate fingerprint captured at handshake time.
type Conn struct {
	Raw                *quic.Conn
	Stream             *quic.Stream
	RemoteFingerprint  string
}

// NewEndpoint binds a QUIC listener to an unspecified IPv4 address on an
// OS-assigned port, configured for mutual TLS 1.3 with ALPN and a
// verifier that accepts any client certificate — peer authentication
// happens above the transport, in the AKE and trust store.
func NewEndpoint(identity *Identity) (*Endpoint, error) {
	tlsConf := &tls.Config{
		Certificates:       []tls.Certificate{identity.TLSCertificate()},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN},
	}

	quicConf := &quic.Config{
		MaxIdleTimeout:  idleTimeout,
		KeepAlivePeriod: keepAlivePeriod,
	}

	ln, err := quic.ListenAddr("0.0.0.0:0", tlsConf, quicConf)
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}

	return &Endpoint{
		identity: identity,
		listener: ln,
		logger:   log.WithComponent("transport"),
	}, nil
}

// BoundPort returns the OS-assigned port the endpoint is listening on.
func (e *Endpoint) BoundPort() int {
	addr, ok := e.listener.Addr().(*net.UDPAddr)
	if !ok {
		return 0
	}
	return addr.Port
}

// Close shuts down the listener.
func (e *Endpoint) Close() error {
	return e.listener.Close()
}

// Accept blocks until a peer connects, then waits for the single
// bidirectional stream the dialing side opens.
func (e *Endpoint) Accept(ctx context.Context) (*Conn, error) {
	raw, err := e.listener.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}

	stream, err := raw.AcceptStream(ctx)
	if err != nil {
		raw.CloseWithError(0, "stream accept failed")
		return nil, fmt.Errorf("transport: accept stream: %w", err)
	}

	fp, err := remoteFingerprint(raw)
	if err != nil {
		raw.CloseWithError(0, "missing peer certificate")
		return nil, err
	}

	return &Conn{Raw: raw, Stream: stream, RemoteFingerprint: fp}, nil
}

// Dial connects to addr and opens the session's bidirectional stream.
func (e *Endpoint) Dial(ctx context.Context, addr string) (*Conn, error) {
	tlsConf := &tls.Config{
		Certificates:       []tls.Certificate{e.identity.TLSCertificate()},
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN},
	}
	quicConf := &quic.Config{
		MaxIdleTimeout:  idleTimeout,
		KeepAlivePeriod: keepAlivePeriod,
	}

	raw, err := quic.DialAddr(ctx, addr, tlsConf, quicConf)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	stream, err := raw.OpenStreamSync(ctx)
	if err != nil {
		raw.CloseWithError(0, "stream open failed")
		return nil, fmt.Errorf("transport: open stream: %w", err)
	}

	fp, err := remoteFingerprint(raw)
	if err != nil {
		raw.CloseWithError(0, "missing peer certificate")
		return nil, err
	}

	return &Conn{Raw: raw, Stream: stream, RemoteFingerprint: fp}, nil
}

func remoteFingerprint(conn *quic.Conn) (string, error) {
	state := conn.ConnectionState().TLS
	if len(state.PeerCertificates) == 0 {
		return "", fmt.Errorf("transport: peer presented no certificate")
	}
	return fingerprintOf(state.PeerCertificates[0]), nil
}

func fingerprintOf(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return fmt.Sprintf("%x", sum)
}

// FilterAddrsByFamily keeps only addresses whose host matches the address
// family of local (an IPv4 local socket never dials v6 literals and vice
// versa). An empty result is not an error — the supervisor treats it as a
// skip, not a failure.
func FilterAddrsByFamily(addrs []string, localIsV4 bool) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		host, _, err := net.SplitHostPort(a)
		if err != nil {
			continue
		}
		ip := net.ParseIP(host)
		if ip == nil {
			continue
		}
		isV4 := ip.To4() != nil
		if isV4 == localIsV4 {
			out = append(out, a)
		}
	}
	return out
}
