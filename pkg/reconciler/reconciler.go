// Package reconciler runs the periodic garbage collection pass that
// keeps the catalog's history and the CAS's blob store within the
// configured limits.
package reconciler

import (
	"sync"
	"time"

	"github.com/clipbridge/clipbridge/pkg/cas"
	"github.com/clipbridge/clipbridge/pkg/catalog"
	"github.com/clipbridge/clipbridge/pkg/log"
	"github.com/clipbridge/clipbridge/pkg/metrics"
	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/rs/zerolog"
)

const interval = 30 * time.Second

// Reconciler trims history rows past the configured per-account item
// count and evicts the oldest-accessed CAS blobs past the configured
// byte cap.
type Reconciler struct {
	catalog    catalog.Store
	cas        *cas.Store
	accountUID string
	limits     types.GCLimits
	logger     zerolog.Logger
	mu         sync.Mutex
	stopCh     chan struct{}
}

// NewReconciler builds a Reconciler over store and blobs, scoped to
// accountUID, enforcing limits.
func NewReconciler(store catalog.Store, blobs *cas.Store, accountUID string, limits types.GCLimits) *Reconciler {
	return &Reconciler{
		catalog:    store,
		cas:        blobs,
		accountUID: accountUID,
		limits:     limits,
		logger:     log.WithComponent("reconciler"),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info().Msg("gc reconciler started")

	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stopCh:
			r.logger.Info().Msg("gc reconciler stopped")
			return
		}
	}
}

func (r *Reconciler) reconcile() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconcileCycleDuration)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.trimHistory(); err != nil {
		r.logger.Error().Err(err).Msg("trim history failed")
	}
	if err := r.evictBlobs(); err != nil {
		r.logger.Error().Err(err).Msg("evict blobs failed")
	}
}

func (r *Reconciler) trimHistory() error {
	if r.limits.MaxHistoryItems <= 0 {
		return nil
	}
	removed, err := r.catalog.TrimHistory(r.accountUID, r.limits.MaxHistoryItems)
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		metrics.HistoryTrimmedTotal.WithLabelValues(r.accountUID).Add(float64(len(removed)))
		r.logger.Info().Int("count", len(removed)).Msg("trimmed history rows")
	}
	return nil
}

func (r *Reconciler) evictBlobs() error {
	if r.limits.MaxCASBytes <= 0 {
		return nil
	}

	rows, err := r.catalog.ListCacheRows()
	if err != nil {
		return err
	}

	candidates := make([]cas.EvictionCandidate, 0, len(rows))
	for _, row := range rows {
		if !row.Present {
			continue
		}
		candidates = append(candidates, cas.EvictionCandidate{
			SHA256:       row.SHA256,
			Size:         row.TotalBytes,
			LastAccessMS: row.LastAccessMS,
		})
	}

	freed, removed, err := r.cas.GC(candidates, r.limits.MaxCASBytes)
	if err != nil {
		return err
	}
	for _, sha := range removed {
		if merr := r.catalog.MarkCacheAbsent(sha); merr != nil {
			r.logger.Error().Err(merr).Str("sha256", sha).Msg("failed to mark evicted blob absent")
		}
	}
	if len(removed) > 0 {
		metrics.GCEvictedTotal.Add(float64(len(removed)))
		r.logger.Info().Int("count", len(removed)).Int64("freed_bytes", freed).Msg("evicted cas blobs")
	}
	return nil
}
