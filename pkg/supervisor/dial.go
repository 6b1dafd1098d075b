package supervisor

import (
	"context"
	"time"

	"github.com/clipbridge/clipbridge/pkg/discovery"
	"github.com/clipbridge/clipbridge/pkg/session"
	"github.com/clipbridge/clipbridge/pkg/transport"
	"github.com/clipbridge/clipbridge/pkg/types"
)

const dialTimeout = 5 * time.Second

// maintain runs once per maintenanceInterval: it resets backoff for
// sessions that reached Online, drops finished sessions (bumping their
// backoff), and redials anyone whose backoff has expired and for whom
// an address is on file.
func (s *Supervisor) maintain(st *loopState) {
	now := types.NowMS(time.Now())

	for _, h := range st.sessions {
		did := h.PeerDeviceID()
		if did == "" || !h.IsOnline() {
			continue
		}
		if _, backingOff := st.backoff[did]; backingOff {
			s.logger.Debug().Str("device_id", did).Msg("session online, resetting backoff")
			delete(st.backoff, did)
		}
	}

	live := st.sessions[:0]
	var onlineCount int
	for _, h := range st.sessions {
		if h.IsFinished() {
			if did := h.PeerDeviceID(); did != "" {
				s.bumpBackoff(st, did, now)
			}
			continue
		}
		if h.IsOnline() {
			onlineCount++
		}
		live = append(live, h)
	}
	st.sessions = live
	s.metrics.SetSessionsOnline(onlineCount)

	var toDial []types.PeerCandidate
	for did, b := range st.backoff {
		if now < b.nextRetryMS || st.pendingDials[did] {
			continue
		}
		if candidate, ok := st.knownPeers[did]; ok {
			toDial = append(toDial, candidate)
		}
	}

	for _, candidate := range toDial {
		if b, ok := st.backoff[candidate.DeviceID]; ok {
			b.nextRetryMS = now + 5000
		}
		s.performDial(st, candidate)
	}
}

func (s *Supervisor) bumpBackoff(st *loopState, deviceID string, nowMS int64) {
	b, ok := st.backoff[deviceID]
	if !ok {
		b = &backoffState{}
		st.backoff[deviceID] = b
	}
	b.failCount++
	delay := backoffDelayMS(b.failCount)
	b.nextRetryMS = nowMS + delay
	delete(st.pendingDials, deviceID)
	s.metrics.BackoffRetry()
	s.logger.Info().Str("device_id", deviceID).Int("fail_count", b.failCount).Int64("backoff_ms", delay).Msg("session disconnected")
}

// handleDiscoveryEvent records the peer's address in the address book
// and, unless we already hold or are dialing a session to it, or lose
// the device-id tie-break, dials it. A discovery signal for a peer
// already in backoff is allowed to bypass the wait once.
func (s *Supervisor) handleDiscoveryEvent(st *loopState, ev discovery.Event) {
	if ev.Kind != discovery.EventCandidateFound {
		return
	}
	peer := ev.Candidate
	st.knownPeers[peer.DeviceID] = peer

	if s.cfg.DeviceID >= peer.DeviceID {
		return
	}
	for _, h := range st.sessions {
		if h.PeerDeviceID() == peer.DeviceID {
			return
		}
	}
	if st.pendingDials[peer.DeviceID] {
		return
	}

	if b, ok := st.backoff[peer.DeviceID]; ok {
		now := types.NowMS(time.Now())
		if now < b.nextRetryMS {
			s.logger.Debug().Str("device_id", peer.DeviceID).Msg("discovery signal bypasses backoff wait")
		}
	}

	s.performDial(st, peer)
}

func (s *Supervisor) performDial(st *loopState, peer types.PeerCandidate) {
	// The endpoint always binds an IPv4 wildcard address (see
	// transport.NewEndpoint), so only IPv4 peer addresses are dialable.
	addrs := transport.FilterAddrsByFamily(peer.Addrs, true)
	if len(addrs) == 0 {
		return
	}

	st.pendingDials[peer.DeviceID] = true

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	var lastErr error
	for _, addr := range addrs {
		conn, err := s.transport.Dial(ctx, addr)
		if err != nil {
			lastErr = err
			continue
		}
		h := session.Spawn(session.RoleClient, conn, s.deps, peer.DeviceID)
		st.sessions = append(st.sessions, h)
		delete(st.pendingDials, peer.DeviceID)
		return
	}

	delete(st.pendingDials, peer.DeviceID)
	s.bumpBackoff(st, peer.DeviceID, types.NowMS(time.Now()))
	s.logger.Warn().Str("device_id", peer.DeviceID).Err(lastErr).Msg("dial failed")
}
