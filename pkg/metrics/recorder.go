package metrics

// Recorder implements supervisor.Metrics (and satisfies it structurally,
// without either package importing the other) by forwarding straight to
// the package-level Prometheus collectors.
type Recorder struct{}

// SetSessionsOnline updates the online-sessions gauge.
func (Recorder) SetSessionsOnline(count int) {
	SessionsOnline.Set(float64(count))
}

// BackoffRetry increments the backoff-retry counter.
func (Recorder) BackoffRetry() {
	BackoffRetriesTotal.Inc()
}
