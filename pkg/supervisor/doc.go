/*
Package supervisor implements the Connection Supervisor: the single
goroutine that owns the local QUIC endpoint and mDNS discovery service
for one device, and turns their events into live Session Actors.

# Responsibilities

The supervisor is the only place that decides when to dial a peer and
when to give up on one for a while:

	┌─────────────────────────── SUPERVISOR ───────────────────────────┐
	│                                                                    │
	│   discovery.Event ──► known_peers address book                   │
	│                       pending_dials (de-dupe concurrent dials)    │
	│                       backoff_map (exponential retry schedule)    │
	│                                                                    │
	│   transport.Accept() ──► session.Spawn(RoleServer, ...)           │
	│   perform dial       ──► session.Spawn(RoleClient, ...)           │
	│                                                                    │
	│   1s maintenance tick:                                            │
	│     - drop finished sessions, bump their backoff                  │
	│     - clear backoff for sessions that reached Online              │
	│     - redial anyone whose backoff has expired and has a known addr│
	└────────────────────────────────────────────────────────────────────┘

A device-id tie-break (the lower id dials) keeps two devices that
discover each other simultaneously from opening duplicate connections;
a discovery signal for a peer already in backoff is allowed to bypass
the backoff wait once, since seeing it on the wire again is evidence
it is reachable now.
*/
package supervisor
