package controlclient

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/clipbridge/clipbridge/pkg/events"
)

// EventsClient is a connection to a running daemon's events socket,
// decoding §6-schema events as the daemon publishes them.
type EventsClient struct {
	conn net.Conn
	dec  *json.Decoder
}

// DialEvents connects to the events socket at socketPath.
func DialEvents(socketPath string) (*EventsClient, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("controlclient: dial events %s: %w", socketPath, err)
	}
	return &EventsClient{conn: conn, dec: json.NewDecoder(conn)}, nil
}

// Next blocks until the daemon publishes another event and returns its
// §6 wire representation. It returns io.EOF once the daemon closes the
// connection.
func (c *EventsClient) Next() (events.WireEvent, error) {
	var w events.WireEvent
	if err := c.dec.Decode(&w); err != nil {
		return events.WireEvent{}, err
	}
	return w, nil
}

// Close closes the underlying connection.
func (c *EventsClient) Close() error {
	return c.conn.Close()
}
