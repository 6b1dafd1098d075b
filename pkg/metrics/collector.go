package metrics

import "time"

// casByteser is satisfied by *cas.Store; declared as an interface here so
// metrics never imports pkg/cas.
type casByteser interface {
	TotalSizeBytes() (int64, error)
}

// Collector periodically samples gauge-style metrics that aren't
// naturally updated at the point of occurrence (CAS size on disk),
// complementing the counters pkg/core, pkg/supervisor, and
// pkg/reconciler update inline as events happen.
type Collector struct {
	cas    casByteser
	stopCh chan struct{}
}

// NewCollector builds a Collector over anything that can report the
// CAS's current byte total, typically *cas.Store.
func NewCollector(cas casByteser) *Collector {
	return &Collector{
		cas:    cas,
		stopCh: make(chan struct{}),
	}
}

// Start begins the 15s sampling loop.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if n, err := c.cas.TotalSizeBytes(); err == nil {
		CASBytes.Set(float64(n))
	}
}
