// Package discovery announces and browses clipbridge's mDNS service,
// _clipbridge._udp.local., translating resolved records into
// CandidateFound events for the connection supervisor. It never emits
// CandidateLost: a record that expires produces no event. It never filters by reachability — only by whether a record belongs to the
// local account and isn't the local device itself.
package discovery
