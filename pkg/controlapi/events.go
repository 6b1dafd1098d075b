package controlapi

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/clipbridge/clipbridge/pkg/events"
	"github.com/clipbridge/clipbridge/pkg/log"
	"github.com/rs/zerolog"
)

// EventsServer streams every event published on a broker to connected
// clients as newline-delimited §6 JSON, one subscription per
// connection. Unlike Server, this isn't request/response: a client
// dials once and reads for as long as it wants to observe the daemon,
// which is how Fetch's transfer id gets correlated against the
// eventual CONTENT_CACHED.
type EventsServer struct {
	listener net.Listener
	broker   *events.Broker
	logger   zerolog.Logger
}

// NewEventsServer creates the events socket at socketPath (removing any
// stale socket left by an unclean shutdown).
func NewEventsServer(socketPath string, broker *events.Broker) (*EventsServer, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("controlapi: empty events socket path")
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return nil, fmt.Errorf("controlapi: create events socket dir: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("controlapi: remove stale events socket: %w", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("controlapi: listen on events socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o700); err != nil {
		ln.Close()
		return nil, fmt.Errorf("controlapi: chmod events socket: %w", err)
	}

	return &EventsServer{
		listener: ln,
		broker:   broker,
		logger:   log.WithComponent("controlapi.events"),
	}, nil
}

// Serve accepts connections until the listener is closed, streaming a
// freshly subscribed feed of §6-schema events to each one.
func (s *EventsServer) Serve() error {
	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("events socket listening")
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.stream(conn)
	}
}

func (s *EventsServer) stream(conn net.Conn) {
	defer conn.Close()

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	enc := json.NewEncoder(conn)
	for event := range sub {
		if err := enc.Encode(event.Wire()); err != nil {
			s.logger.Debug().Err(err).Msg("events client disconnected")
			return
		}
	}
}

// Close stops accepting new connections.
func (s *EventsServer) Close() error {
	return s.listener.Close()
}
