// Package ingest builds an ItemMeta and ingestion plan from a raw clipboard
// snapshot: canonicalizing content to bytes, hashing, building a preview,
// and invoking the policy engine. It performs no catalog or CAS writes —
// that's the caller's job once a plan is accepted.
package ingest
