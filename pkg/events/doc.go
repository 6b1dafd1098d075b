// Package events is an in-memory pub/sub broker for clipbridge's core
// facade. It broadcasts peer and item lifecycle events to subscribers —
// the local control API, log sinks, anything that wants to react to
// state changes without being wired directly into the supervisor or
// ingest path. Publish never blocks on a slow subscriber: a full
// subscriber buffer drops the event rather than stalling the broker.
package events
