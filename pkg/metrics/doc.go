/*
Package metrics defines and exposes clipbridge's Prometheus metrics.

Metrics are package-level collectors registered once in init(); callers
update them inline at the point an event occurs (ingest, session
online/offline, GC eviction) rather than through a polling collector,
except for the CAS byte total, which Collector samples every 15s since
nothing naturally observes it otherwise.
clipbridge_content_transfer_duration_seconds is registered but nothing
observes it, so it stays empty.

# Metrics

	clipbridge_items_ingested_total{kind}
	clipbridge_sessions_online
	clipbridge_backoff_retries_total
	clipbridge_cas_bytes
	clipbridge_gc_evicted_total
	clipbridge_history_trimmed_total{account}
	clipbridge_reconcile_cycle_duration_seconds
	clipbridge_content_transfer_duration_seconds{outcome}

Handler returns the http.Handler to mount at /metrics; HealthHandler,
ReadyHandler, and LivenessHandler (in health.go) serve a small
operational status JSON document independent of Prometheus scraping.
*/
package metrics
