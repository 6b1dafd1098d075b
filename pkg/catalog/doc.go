/*
Package catalog implements the device-local catalog store: a single bbolt
database holding everything this device knows about synchronized items,
independent of whether their content bytes are cached locally.

# Buckets

	items          item-id -> ItemMeta JSON
	history        "<account>|<item-id>" -> HistoryEntry JSON
	content_cache  sha256 -> CacheRow JSON
	trusted_peers  "<account>|<device-id>" -> TrustedPeer JSON (TOFU pins)

The catalog is the source of truth for what this device knows; the CAS
(pkg/cas) is the source of truth for what bytes it has. A content_cache row
can exist with present=false, meaning the device knows an item references
that sha but hasn't fetched its bytes yet.

# Transaction model

Reads use db.View (concurrent, snapshot-isolated); writes use db.Update
(serialized, atomic, fsynced). Insert operations are gated on existence
checks inside the same write transaction, giving INSERT-OR-IGNORE
semantics without a separate unique-constraint mechanism.

# Usage

	store, err := catalog.NewBoltStore(dataDir)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	alreadyCached, err := store.InsertMetaAndHistory(accountUID, meta, nowMS)
	if err == nil && !alreadyCached {
		// content isn't known locally yet; schedule a fetch
	}
*/
package catalog
