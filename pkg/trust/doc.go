// Package trust records trust-on-first-use TLS certificate fingerprints
// for known peers. A session's responder pins the first fingerprint it
// sees for a device id; later connections from that device must present
// the same fingerprint or the session is rejected before the AKE even
// starts. Store.Forget clears a pin, which is the only recovery path after
// a peer regenerates its identity (see pkg/transport); no clipbridgectl
// subcommand calls it.
package trust
