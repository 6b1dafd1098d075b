package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/clipbridge/clipbridge/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketItems         = []byte("items")
	bucketHistory       = []byte("history")
	bucketContentCache  = []byte("content_cache")
	bucketTrustedPeers  = []byte("trusted_peers")
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("catalog: not found")

// BoltStore implements Store on top of a single bbolt database file,
// one bucket per table, mirroring the bucket-per-entity layout the teacher
// uses for its cluster state store.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the catalog database under
// dataDir/core.db and ensures all buckets exist.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "core.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketItems, bucketHistory, bucketContentCache, bucketTrustedPeers} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("catalog: create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func historyKey(account, itemID string) []byte {
	return []byte(account + "|" + itemID)
}

func peerKey(account, deviceID string) []byte {
	return []byte(account + "|" + deviceID)
}

func (s *BoltStore) InsertMetaAndHistory(account string, meta types.ItemMeta, nowMS int64) (bool, error) {
	var alreadyCached bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		cacheB := tx.Bucket(bucketContentCache)
		existing := cacheB.Get([]byte(meta.Content.SHA256))
		if existing != nil {
			alreadyCached = true
		} else {
			row := types.CacheRow{
				SHA256:       meta.Content.SHA256,
				TotalBytes:   meta.Content.Length,
				Present:      false,
				LastAccessMS: nowMS,
				CreatedAtMS:  nowMS,
			}
			data, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := cacheB.Put([]byte(row.SHA256), data); err != nil {
				return err
			}
		}

		itemsB := tx.Bucket(bucketItems)
		if itemsB.Get([]byte(meta.ItemID)) == nil {
			itemData, err := json.Marshal(meta)
			if err != nil {
				return err
			}
			if err := itemsB.Put([]byte(meta.ItemID), itemData); err != nil {
				return err
			}
		}

		historyB := tx.Bucket(bucketHistory)
		key := historyKey(account, meta.ItemID)
		if historyB.Get(key) != nil {
			return nil
		}
		entry := types.HistoryEntry{
			AccountUID:   account,
			ItemID:       meta.ItemID,
			SortTS:       nowMS,
			SourceDevice: meta.SourceDeviceID,
		}
		entryData, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return historyB.Put(key, entryData)
	})
	return alreadyCached, err
}

func (s *BoltStore) InsertRemoteItem(account string, meta types.ItemMeta, nowMS int64) (bool, error) {
	var isNew bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		historyB := tx.Bucket(bucketHistory)
		key := historyKey(account, meta.ItemID)
		if historyB.Get(key) != nil {
			isNew = false
			return nil
		}
		isNew = true

		cacheB := tx.Bucket(bucketContentCache)
		if cacheB.Get([]byte(meta.Content.SHA256)) == nil {
			row := types.CacheRow{
				SHA256:       meta.Content.SHA256,
				TotalBytes:   meta.Content.Length,
				Present:      false,
				LastAccessMS: nowMS,
				CreatedAtMS:  nowMS,
			}
			data, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := cacheB.Put([]byte(row.SHA256), data); err != nil {
				return err
			}
		}

		itemsB := tx.Bucket(bucketItems)
		itemData, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := itemsB.Put([]byte(meta.ItemID), itemData); err != nil {
			return err
		}

		entry := types.HistoryEntry{
			AccountUID:   account,
			ItemID:       meta.ItemID,
			SortTS:       nowMS,
			SourceDevice: meta.SourceDeviceID,
		}
		entryData, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return historyB.Put(key, entryData)
	})
	return isNew, err
}

func (s *BoltStore) MarkCachePresent(sha256 string, nowMS int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContentCache)
		row, err := getCacheRowTx(b, sha256)
		if err != nil {
			return err
		}
		row.Present = true
		row.LastAccessMS = nowMS
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put([]byte(sha256), data)
	})
}

// MarkCacheAbsent flips a content_cache row's present bit back to false,
// used after GC evicts the backing blob so the row never claims bytes
// that no longer exist on disk.
func (s *BoltStore) MarkCacheAbsent(sha256 string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContentCache)
		row, err := getCacheRowTx(b, sha256)
		if err != nil {
			return err
		}
		row.Present = false
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put([]byte(sha256), data)
	})
}

func (s *BoltStore) TouchCache(sha256 string, nowMS int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContentCache)
		row, err := getCacheRowTx(b, sha256)
		if err != nil {
			return err
		}
		row.LastAccessMS = nowMS
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put([]byte(sha256), data)
	})
}

func (s *BoltStore) GetCacheRow(sha256 string) (types.CacheRow, error) {
	var row types.CacheRow
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContentCache)
		r, err := getCacheRowTx(b, sha256)
		if err != nil {
			return err
		}
		row = r
		return nil
	})
	return row, err
}

func getCacheRowTx(b *bolt.Bucket, sha256 string) (types.CacheRow, error) {
	var row types.CacheRow
	data := b.Get([]byte(sha256))
	if data == nil {
		return row, ErrNotFound
	}
	if err := json.Unmarshal(data, &row); err != nil {
		return row, fmt.Errorf("catalog: decode cache row: %w", err)
	}
	return row, nil
}

func (s *BoltStore) ListCacheRows() ([]types.CacheRow, error) {
	var rows []types.CacheRow
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContentCache)
		return b.ForEach(func(k, v []byte) error {
			var row types.CacheRow
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		})
	})
	return rows, err
}

func (s *BoltStore) ListHistoryMetas(account string, limit int) ([]types.ItemMeta, error) {
	type ranked struct {
		sortTS int64
		itemID string
	}
	var entries []ranked

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		return b.ForEach(func(k, v []byte) error {
			var entry types.HistoryEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if entry.AccountUID != account || entry.Deleted {
				return nil
			}
			entries = append(entries, ranked{sortTS: entry.SortTS, itemID: entry.ItemID})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].sortTS > entries[j].sortTS })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	metas := make([]types.ItemMeta, 0, len(entries))
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketItems)
		for _, e := range entries {
			data := b.Get([]byte(e.itemID))
			if data == nil {
				continue
			}
			var meta types.ItemMeta
			if err := json.Unmarshal(data, &meta); err != nil {
				return err
			}
			metas = append(metas, meta)
		}
		return nil
	})
	return metas, err
}

func (s *BoltStore) TrimHistory(account string, maxItems int) ([]string, error) {
	type ranked struct {
		sortTS int64
		itemID string
		key    []byte
	}
	var entries []ranked

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		return b.ForEach(func(k, v []byte) error {
			var entry types.HistoryEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if entry.AccountUID != account || entry.Deleted {
				return nil
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			entries = append(entries, ranked{sortTS: entry.SortTS, itemID: entry.ItemID, key: keyCopy})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(entries) <= maxItems {
		return nil, nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].sortTS > entries[j].sortTS })
	toRemove := entries[maxItems:]

	removed := make([]string, 0, len(toRemove))
	err = s.db.Update(func(tx *bolt.Tx) error {
		historyB := tx.Bucket(bucketHistory)
		itemsB := tx.Bucket(bucketItems)
		for _, e := range toRemove {
			if err := historyB.Delete(e.key); err != nil {
				return err
			}
			if err := itemsB.Delete([]byte(e.itemID)); err != nil {
				return err
			}
			removed = append(removed, e.itemID)
		}
		return nil
	})
	return removed, err
}

func (s *BoltStore) GetPeerFingerprint(account, deviceID string) (string, error) {
	var fp string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTrustedPeers)
		data := b.Get(peerKey(account, deviceID))
		if data == nil {
			return ErrNotFound
		}
		var peer types.TrustedPeer
		if err := json.Unmarshal(data, &peer); err != nil {
			return err
		}
		fp = peer.FingerprintHex
		return nil
	})
	return fp, err
}

func (s *BoltStore) SavePeerFingerprint(account, deviceID, fingerprintHex string, nowMS int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTrustedPeers)
		peer := types.TrustedPeer{
			AccountUID:     account,
			DeviceID:       deviceID,
			FingerprintHex: fingerprintHex,
			FirstSeenMS:    nowMS,
		}
		data, err := json.Marshal(peer)
		if err != nil {
			return err
		}
		return b.Put(peerKey(account, deviceID), data)
	})
}

func (s *BoltStore) ClearPeerFingerprint(account, deviceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTrustedPeers)
		return b.Delete(peerKey(account, deviceID))
	})
}
