/*
Package controlclient is the typed client for clipbridged's control
socket: it dials the Unix domain socket controlapi listens on and
wraps the resulting net/rpc/jsonrpc connection with one Go method per
RPC (Ingest, List, Status, Peers, Fetch, Shutdown), so clipbridgectl
never constructs an *rpc.Client call by hand.
*/
package controlclient
