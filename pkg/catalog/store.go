package catalog

import "github.com/clipbridge/clipbridge/pkg/types"

// Store is the device-local catalog: the source of truth for what items
// and history this device knows about. It never holds content bytes —
// those live in the CAS, joined here only by sha256.
type Store interface {
	// InsertMetaAndHistory records a locally or remotely produced item:
	// inserts a content_cache row if absent (present=false), inserts the
	// item, inserts a history row for account. Returns whether the cache
	// row already existed (and therefore whether its sha might already be
	// present locally).
	InsertMetaAndHistory(account string, meta types.ItemMeta, nowMS int64) (alreadyCached bool, err error)

	// InsertRemoteItem is InsertMetaAndHistory's counterpart for items
	// learned from a peer: it additionally reports whether the
	// (account, item-id) pair was new. Duplicates are a no-op beyond the
	// idempotent existence check.
	InsertRemoteItem(account string, meta types.ItemMeta, nowMS int64) (isNew bool, err error)

	// MarkCachePresent flips a content_cache row's present bit and
	// refreshes its last-access timestamp.
	MarkCachePresent(sha256 string, nowMS int64) error

	// MarkCacheAbsent flips a content_cache row's present bit back to
	// false after its backing blob has been evicted from the CAS.
	MarkCacheAbsent(sha256 string) error

	// TouchCache refreshes a content_cache row's last-access timestamp
	// without changing its present bit.
	TouchCache(sha256 string, nowMS int64) error

	// GetCacheRow returns the content_cache row for sha256, or
	// ErrNotFound if none exists.
	GetCacheRow(sha256 string) (types.CacheRow, error)

	// ListHistoryMetas returns up to limit ItemMeta for account, newest
	// first by history sort timestamp.
	ListHistoryMetas(account string, limit int) ([]types.ItemMeta, error)

	// ListCacheRows returns every content_cache row, for GC candidate
	// selection.
	ListCacheRows() ([]types.CacheRow, error)

	// TrimHistory deletes history rows for account beyond maxItems,
	// oldest first, returning the item ids removed (the caller is
	// responsible for deciding whether any orphaned cache rows should
	// also be evicted from the CAS).
	TrimHistory(account string, maxItems int) (removedItemIDs []string, err error)

	// GetPeerFingerprint / SavePeerFingerprint implement TOFU pinning.
	GetPeerFingerprint(account, deviceID string) (string, error)
	SavePeerFingerprint(account, deviceID, fingerprintHex string, nowMS int64) error
	ClearPeerFingerprint(account, deviceID string) error

	Close() error
}
