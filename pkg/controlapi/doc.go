/*
Package controlapi implements clipbridged's control-plane RPC service:
the small, local-only surface clipbridgectl (and anything else sharing
the machine) uses to drive a running daemon.

Transport is JSON-RPC 1.0 (net/rpc/jsonrpc) over a Unix domain socket
created with 0700 permissions in the daemon's data directory — there
is no network listener and no TLS here, since the socket's filesystem
permissions are the access control. This mirrors the trust model of
local-only tools like the Docker or containerd control sockets, since a
clipbridge daemon's control plane only ever has local callers (the
paired CLI) and never needs to cross a network boundary.

Server wraps a *core.Core and exposes exactly six RPCs — Ingest, List,
Status, Peers, Fetch, Shutdown — each a plain net/rpc method taking an
*Args struct and a *Reply pointer. controlclient provides the
corresponding typed client.
*/
package controlapi
