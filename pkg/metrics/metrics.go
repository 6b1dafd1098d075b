package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ItemsIngestedTotal counts items accepted by the ingest planner,
	// by kind (text/image/file-list).
	ItemsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipbridge_items_ingested_total",
			Help: "Total number of clipboard items ingested, by kind",
		},
		[]string{"kind"},
	)

	// SessionsOnline is the current number of peer sessions that have
	// completed authentication.
	SessionsOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipbridge_sessions_online",
			Help: "Current number of peer sessions in the Online state",
		},
	)

	// BackoffRetriesTotal counts every time the connection supervisor
	// schedules a reconnect attempt after a dial failure or dropped
	// session.
	BackoffRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clipbridge_backoff_retries_total",
			Help: "Total number of connection supervisor backoff/retry cycles",
		},
	)

	// CASBytes is the current total size of the content-addressed blob
	// store on disk.
	CASBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipbridge_cas_bytes",
			Help: "Current total size in bytes of the CAS blob store",
		},
	)

	// GCEvictedTotal counts blobs removed by the garbage collector's
	// byte-cap eviction pass.
	GCEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clipbridge_gc_evicted_total",
			Help: "Total number of CAS blobs evicted by garbage collection",
		},
	)

	// HistoryTrimmedTotal counts history rows removed by the garbage
	// collector's per-account item-count cap.
	HistoryTrimmedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipbridge_history_trimmed_total",
			Help: "Total number of history rows trimmed by garbage collection, by account",
		},
		[]string{"account"},
	)

	// ReconcileCycleDuration times a full GC reconciler pass.
	ReconcileCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clipbridge_reconcile_cycle_duration_seconds",
			Help:    "Duration of a garbage collection reconciler cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ContentTransferDuration is a histogram for content fetch durations,
	// by outcome (ok/error). It is registered and exported, but no code in
	// this module observes it.
	ContentTransferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipbridge_content_transfer_duration_seconds",
			Help:    "Duration of an inbound content transfer, by outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		ItemsIngestedTotal,
		SessionsOnline,
		BackoffRetriesTotal,
		CASBytes,
		GCEvictedTotal,
		HistoryTrimmedTotal,
		ReconcileCycleDuration,
		ContentTransferDuration,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
