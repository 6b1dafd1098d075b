// Package core implements the Core Facade: the single entry point that
// wires the catalog, CAS, ingest planner, and connection supervisor
// together and exposes the handful of operations every front end
// (clipbridged's daemon loop, clipbridgectl over the control socket)
// actually needs.
package core

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/clipbridge/clipbridge/pkg/cas"
	"github.com/clipbridge/clipbridge/pkg/catalog"
	"github.com/clipbridge/clipbridge/pkg/events"
	"github.com/clipbridge/clipbridge/pkg/ingest"
	"github.com/clipbridge/clipbridge/pkg/log"
	"github.com/clipbridge/clipbridge/pkg/metrics"
	"github.com/clipbridge/clipbridge/pkg/reconciler"
	"github.com/clipbridge/clipbridge/pkg/session"
	"github.com/clipbridge/clipbridge/pkg/supervisor"
	"github.com/clipbridge/clipbridge/pkg/transport"
	"github.com/clipbridge/clipbridge/pkg/trust"
	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/rs/zerolog"
)

// ErrShutdown is returned by every error-returning operation once
// Shutdown has run. ListPeers and GetStatus return no error: after
// Shutdown, ListPeers returns nil and GetStatus reports Running false.
var ErrShutdown = errors.New("core: already shut down")

// Status is the snapshot returned by GetStatus.
type Status struct {
	Running     bool                    `json:"running"`
	DeviceID    string                  `json:"device_id"`
	NetEnabled  bool                    `json:"net_enabled"`
	UptimeSec   float64                 `json:"uptime_sec"`
	CASBytes    int64                   `json:"cas_bytes"`
	HistoryRows int                     `json:"history_rows"`
	Peers       []supervisor.PeerStatus `json:"peers"`
}

// Core is the authoritative, long-lived handle a process holds for the
// lifetime of one device's clipbridge instance.
type Core struct {
	cfg              types.Config
	catalog          catalog.Store
	cas              *cas.Store
	supervisor       *supervisor.Supervisor
	events           *events.Broker
	reconciler       *reconciler.Reconciler
	metricsCollector *metrics.Collector
	logger           zerolog.Logger
	startedAt        time.Time
	shutdown         atomic.Bool
}

// Init opens the catalog and CAS under cfg's data/cache directories,
// loads or creates this device's QUIC identity, and starts the
// connection supervisor. The returned Core owns all of it; Shutdown
// releases it.
func Init(cfg types.Config, metricsRecorder supervisor.Metrics) (*Core, error) {
	store, err := catalog.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("core: open catalog: %w", err)
	}

	blobs, err := cas.New(cfg.CacheDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("core: open cas: %w", err)
	}

	identity, err := transport.LoadOrCreateIdentity(cfg.DataDir, cfg.DeviceID, cfg.AccountUID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("core: load identity: %w", err)
	}

	trustStore := trust.New(store, cfg.AccountUID)

	broker := events.NewBroker()
	broker.Start()

	deps := session.Deps{
		Catalog: store,
		CAS:     blobs,
		Trust:   trustStore,
		Events:  broker,
		Config: session.Config{
			DeviceID:   cfg.DeviceID,
			DeviceName: cfg.DeviceName,
			AccountUID: cfg.AccountUID,
			AccountTag: cfg.AccountTag,
		},
	}

	sup, err := supervisor.Spawn(identity, supervisor.Config{
		DeviceID:     cfg.DeviceID,
		DeviceName:   cfg.DeviceName,
		AccountUID:   cfg.AccountUID,
		AccountTag:   cfg.AccountTag,
		Capabilities: []string{"text", "image", "file-list"},
		GlobalPolicy: cfg.GlobalPolicy,
	}, deps, metricsRecorder)
	if err != nil {
		broker.Stop()
		store.Close()
		return nil, fmt.Errorf("core: start supervisor: %w", err)
	}

	recon := reconciler.NewReconciler(store, blobs, cfg.AccountUID, cfg.GC)
	recon.Start()

	collector := metrics.NewCollector(blobs)
	collector.Start()

	logger := log.WithComponent("core").With().Str("device_id", cfg.DeviceID).Logger()
	logger.Info().Str("account_tag", cfg.AccountTag).Msg("core initialized")

	return &Core{
		cfg:              cfg,
		catalog:          store,
		cas:              blobs,
		supervisor:       sup,
		events:           broker,
		reconciler:       recon,
		metricsCollector: collector,
		logger:           logger,
		startedAt:        time.Now(),
	}, nil
}

// Events returns the broker every ingest, peer, and content-transfer
// event is published on; callers subscribe via events.Broker.Subscribe.
func (c *Core) Events() *events.Broker {
	return c.events
}

// PlanLocalIngest evaluates policy for snap without writing anything,
// so a caller can show a confirmation prompt before committing.
func (c *Core) PlanLocalIngest(snap ingest.Snapshot, force bool) (ingest.Plan, error) {
	if c.shutdown.Load() {
		return ingest.Plan{}, ErrShutdown
	}
	return ingest.PlanIngest(snap, c.cfg.DeviceID, c.cfg.DeviceName, force, c.cfg.SizeLimits)
}

// IngestLocalCopy plans and applies snap without forcing past the soft
// size cap.
func (c *Core) IngestLocalCopy(snap ingest.Snapshot) (types.ItemMeta, error) {
	return c.IngestLocalCopyWithForce(snap, false)
}

// IngestLocalCopyWithForce plans and applies snap, bypassing the soft
// size cap's confirmation requirement when force is true.
func (c *Core) IngestLocalCopyWithForce(snap ingest.Snapshot, force bool) (types.ItemMeta, error) {
	if c.shutdown.Load() {
		return types.ItemMeta{}, ErrShutdown
	}
	plan, err := ingest.PlanIngest(snap, c.cfg.DeviceID, c.cfg.DeviceName, force, c.cfg.SizeLimits)
	if err != nil {
		return types.ItemMeta{}, err
	}
	return c.applyIngest(plan)
}

func (c *Core) applyIngest(plan ingest.Plan) (types.ItemMeta, error) {
	now := types.NowMS(time.Now())

	alreadyCached, err := c.catalog.InsertMetaAndHistory(c.cfg.AccountUID, plan.Meta, now)
	if err != nil {
		return types.ItemMeta{}, fmt.Errorf("core: insert meta: %w", err)
	}

	sha := plan.Meta.Content.SHA256
	if !alreadyCached || !c.cas.BlobExists(sha) {
		tmpName := plan.Meta.ItemID + ".tmp"
		if _, err := c.cas.PutIfAbsent(sha, plan.ContentBytes, tmpName); err != nil {
			return types.ItemMeta{}, fmt.Errorf("core: write cas blob: %w", err)
		}
		if !c.cas.BlobExists(sha) {
			return types.ItemMeta{}, fmt.Errorf("core: cas write failed: blob missing after put")
		}
		if err := c.catalog.MarkCachePresent(sha, now); err != nil {
			return types.ItemMeta{}, fmt.Errorf("core: mark cache present: %w", err)
		}
	} else if err := c.catalog.TouchCache(sha, now); err != nil {
		return types.ItemMeta{}, fmt.Errorf("core: touch cache: %w", err)
	}

	metrics.ItemsIngestedTotal.WithLabelValues(string(plan.Meta.Kind)).Inc()
	c.events.Publish(&events.Event{
		Type:   events.TypeItemMetaAdded,
		ItemID: plan.Meta.ItemID,
		SHA256: sha,
	})
	c.supervisor.BroadcastMeta(plan.Meta)

	return plan.Meta, nil
}

// ListHistory returns up to limit of this account's items, newest first.
func (c *Core) ListHistory(limit int) ([]types.ItemMeta, error) {
	if c.shutdown.Load() {
		return nil, ErrShutdown
	}
	return c.catalog.ListHistoryMetas(c.cfg.AccountUID, limit)
}

// EnsureContentCached fetches itemID's content (optionally one file of
// a file-list item) from whichever online peer owns it, if not already
// present locally. It returns a transfer id immediately; completion is
// reported asynchronously on Events() as TypeContentCached/TypeCoreError.
func (c *Core) EnsureContentCached(itemID, fileID string) (string, error) {
	if c.shutdown.Load() {
		return "", ErrShutdown
	}

	items, err := c.catalog.ListHistoryMetas(c.cfg.AccountUID, 1<<20)
	if err != nil {
		return "", fmt.Errorf("core: list history: %w", err)
	}

	var meta *types.ItemMeta
	for i := range items {
		if items[i].ItemID == itemID {
			meta = &items[i]
			break
		}
	}
	if meta == nil {
		return "", fmt.Errorf("core: item %s not found", itemID)
	}

	sha := meta.Content.SHA256
	if fileID != "" {
		found := false
		for _, f := range meta.Files {
			if f.FileID == fileID {
				sha = f.SHA256
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("core: file %s not found in item %s", fileID, itemID)
		}
	}

	if c.cas.BlobExists(sha) {
		return "", nil
	}
	if meta.SourceDeviceID == c.cfg.DeviceID {
		return "", fmt.Errorf("core: content for item %s originated locally but is missing from cas", itemID)
	}

	return c.supervisor.RequestContentFrom(meta.SourceDeviceID, itemID, fileID)
}

// ListPeers reports every known or connected peer and its state.
func (c *Core) ListPeers() []supervisor.PeerStatus {
	if c.shutdown.Load() {
		return nil
	}
	return c.supervisor.ListPeers()
}

// GetStatus reports a point-in-time snapshot of this instance.
func (c *Core) GetStatus() Status {
	running := !c.shutdown.Load()
	st := Status{
		Running:    running,
		DeviceID:   c.cfg.DeviceID,
		NetEnabled: running,
		UptimeSec:  time.Since(c.startedAt).Seconds(),
	}
	if !running {
		return st
	}

	if n, err := c.cas.TotalSizeBytes(); err == nil {
		st.CASBytes = n
	}
	if rows, err := c.catalog.ListHistoryMetas(c.cfg.AccountUID, 1<<20); err == nil {
		st.HistoryRows = len(rows)
	}
	st.Peers = c.supervisor.ListPeers()
	return st
}

// Shutdown idempotently stops the supervisor (and with it discovery,
// transport, and every session), stops the event broker, and closes
// the catalog. Subsequent calls are no-ops.
func (c *Core) Shutdown() {
	if c.shutdown.Swap(true) {
		return
	}
	c.reconciler.Stop()
	c.metricsCollector.Stop()
	c.supervisor.Shutdown()
	c.events.Stop()
	if err := c.catalog.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close catalog")
	}
}
