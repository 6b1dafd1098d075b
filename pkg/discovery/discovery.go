package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/clipbridge/clipbridge/pkg/log"
	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/libp2p/zeroconf/v2"
	"github.com/rs/zerolog"
)

// ServiceType is the mDNS service type clipbridge announces and browses.
const ServiceType = "_clipbridge._udp.local."

// EventKind discriminates a Discovery Event.
type EventKind string

const (
	EventCandidateFound EventKind = "candidate_found"
	EventCandidateLost  EventKind = "candidate_lost"
)

// Event is emitted to the supervisor as mDNS records resolve. Service only
// sends EventCandidateFound; EventCandidateLost is defined but never sent.
type Event struct {
	Kind      EventKind
	Candidate types.PeerCandidate // set when Kind == EventCandidateFound
	DeviceID  string              // set when Kind == EventCandidateLost
}

// Service announces this device and browses for peers sharing the same
// account, emitting Events on Events().
type Service struct {
	localDeviceID  string
	localAccountUID string

	server *zeroconf.Server
	events chan Event
	logger zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start registers the local service instance and begins browsing. Port is
// the transport endpoint's bound port.
func Start(deviceID, deviceName, accountUID string, capabilities []string, port int) (*Service, error) {
	txt := []string{
		"acct=" + accountUID,
		"did=" + deviceID,
		"proto=1",
		"cap=" + strings.Join(capabilities, ","),
	}

	server, err := zeroconf.Register(deviceID, ServiceType, "local.", port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		localDeviceID:   deviceID,
		localAccountUID: accountUID,
		server:          server,
		events:          make(chan Event, 32),
		logger:          log.WithComponent("discovery").With().Str("device_id", deviceID).Logger(),
		cancel:          cancel,
	}

	entries := make(chan *zeroconf.ServiceEntry, 32)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := zeroconf.Browse(ctx, ServiceType, "local.", entries); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("mdns browse stopped")
		}
	}()
	go func() {
		defer s.wg.Done()
		s.consume(ctx, entries)
	}()

	return s, nil
}

// Events returns the channel of discovery events. Callers must drain it.
func (s *Service) Events() <-chan Event {
	return s.events
}

// Stop unregisters the local service and stops browsing.
func (s *Service) Stop() {
	s.cancel()
	s.server.Shutdown()
	s.wg.Wait()
	close(s.events)
}

func (s *Service) consume(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if candidate, ok := parseCandidate(entry, s.localAccountUID, s.localDeviceID); ok {
				select {
				case s.events <- Event{Kind: EventCandidateFound, Candidate: candidate}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// parseCandidate extracts a PeerCandidate from a resolved mDNS entry,
// filtering out records that aren't on the local account or that
// describe the local device itself.
func parseCandidate(entry *zeroconf.ServiceEntry, localAccountUID, localDeviceID string) (types.PeerCandidate, bool) {
	props := parseTXT(entry.Text)

	if props["acct"] != localAccountUID {
		return types.PeerCandidate{}, false
	}
	deviceID := props["did"]
	if deviceID == "" || deviceID == localDeviceID {
		return types.PeerCandidate{}, false
	}

	var addrs []string
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, formatAddr(ip, entry.Port))
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, formatAddr(ip, entry.Port))
	}
	if len(addrs) == 0 {
		return types.PeerCandidate{}, false
	}

	return types.PeerCandidate{
		DeviceID:     deviceID,
		Addrs:        addrs,
		Capabilities: parseCapabilities(props["cap"]),
	}, true
}

func formatAddr(ip net.IP, port int) string {
	if ip.To4() == nil {
		return fmt.Sprintf("[%s]:%d", ip.String(), port)
	}
	return fmt.Sprintf("%s:%d", ip.String(), port)
}

func parseTXT(entries []string) map[string]string {
	out := make(map[string]string, len(entries))
	for _, kv := range entries {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}

func parseCapabilities(raw string) []string {
	var out []string
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
