// Package policy implements the clipbridge ingest policy decision: a pure
// function of kind, size, and the force flag against a soft/hard size cap
// table. It performs no I/O and holds no state.
package policy
