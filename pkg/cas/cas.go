package cas

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/clipbridge/clipbridge/pkg/log"
	"github.com/rs/zerolog"
)

// ErrInvalidSHA is returned when a caller passes a string that isn't a
// 64-character lowercase hex sha256.
var ErrInvalidSHA = errors.New("cas: invalid sha256 hex")

// Store is a content-addressable blob store rooted at a cache directory,
// laid out as:
//
//	<root>/blobs/sha256/<aa>/<sha256hex>
//	<root>/tmp/*
//
// where <aa> is the first two hex characters of the sha. Store is safe for
// concurrent use: a per-hash lock pool serializes competing writers of the
// same content without serializing writes of different content.
type Store struct {
	root   string
	blobs  string
	tmp    string
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[string]*hashLock
}

type hashLock struct {
	mu   sync.Mutex
	refs int32
}

// New creates a Store rooted at root, creating blobs/ and tmp/ if needed.
func New(root string) (*Store, error) {
	blobs := filepath.Join(root, "blobs", "sha256")
	tmp := filepath.Join(root, "tmp")
	if err := os.MkdirAll(blobs, 0o750); err != nil {
		return nil, fmt.Errorf("cas: mkdir blobs: %w", err)
	}
	if err := os.MkdirAll(tmp, 0o750); err != nil {
		return nil, fmt.Errorf("cas: mkdir tmp: %w", err)
	}
	return &Store{
		root:   root,
		blobs:  blobs,
		tmp:    tmp,
		logger: log.WithComponent("cas"),
		locks:  make(map[string]*hashLock),
	}, nil
}

func isValidSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func (s *Store) blobPath(sha string) string {
	return filepath.Join(s.blobs, sha[:2], sha)
}

// lockHash acquires the per-hash lock for sha, returning an unlock func.
// Entries are removed from the map once unreferenced so the lock pool
// doesn't grow unboundedly over the process lifetime.
func (s *Store) lockHash(sha string) func() {
	s.mu.Lock()
	hl, ok := s.locks[sha]
	if !ok {
		hl = &hashLock{}
		s.locks[sha] = hl
	}
	hl.refs++
	s.mu.Unlock()

	hl.mu.Lock()
	return func() {
		hl.mu.Unlock()
		s.mu.Lock()
		hl.refs--
		if hl.refs == 0 {
			delete(s.locks, sha)
		}
		s.mu.Unlock()
	}
}

// BlobPath returns the on-disk path a blob for sha is stored (or would be
// stored) at, for callers that need to hand the location to something
// outside the store (e.g. the CONTENT_CACHED event's local_ref).
func (s *Store) BlobPath(sha string) (string, error) {
	if !isValidSHA256Hex(sha) {
		return "", ErrInvalidSHA
	}
	return s.blobPath(sha), nil
}

// BlobExists is a pure filesystem check.
func (s *Store) BlobExists(sha string) bool {
	if !isValidSHA256Hex(sha) {
		return false
	}
	_, err := os.Stat(s.blobPath(sha))
	return err == nil
}

// PutIfAbsent writes bytes to a temp file, then atomically renames it into
// place under sha's blob path if no blob yet exists there. It returns
// wrote=true only if this call performed the write; concurrent or repeat
// calls with the same sha are no-ops beyond the initial temp write+rename
// race, which is resolved by the per-hash lock.
func (s *Store) PutIfAbsent(sha string, data []byte, tmpName string) (wrote bool, err error) {
	if !isValidSHA256Hex(sha) {
		return false, ErrInvalidSHA
	}

	unlock := s.lockHash(sha)
	defer unlock()

	dst := s.blobPath(sha)
	if _, statErr := os.Stat(dst); statErr == nil {
		return false, nil
	}

	tmpPath := filepath.Join(s.tmp, tmpName)
	if err := os.WriteFile(tmpPath, data, 0o440); err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("cas: write tmp: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("cas: mkdir shard: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		if os.IsExist(err) {
			os.Remove(tmpPath)
			return false, nil
		}
		os.Remove(tmpPath)
		return false, fmt.Errorf("cas: rename: %w", err)
	}

	return true, nil
}

// CommitTmpFile renames a pre-populated tmp file (written outside PutIfAbsent,
// e.g. streamed content-transfer bytes) into its final CAS path. Idempotent
// if the destination already exists — the tmp file is discarded instead.
func (s *Store) CommitTmpFile(tmpPath, sha string) error {
	if !isValidSHA256Hex(sha) {
		return ErrInvalidSHA
	}

	unlock := s.lockHash(sha)
	defer unlock()

	dst := s.blobPath(sha)
	if _, statErr := os.Stat(dst); statErr == nil {
		os.Remove(tmpPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("cas: mkdir shard: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		if os.IsExist(err) {
			os.Remove(tmpPath)
			return nil
		}
		return fmt.Errorf("cas: commit rename: %w", err)
	}
	return nil
}

// NewTmpFile opens a fresh temp file under the store's tmp directory,
// returning its path and an open handle for the caller to stream into
// before calling CommitTmpFile.
func (s *Store) NewTmpFile(name string) (*os.File, string, error) {
	path := filepath.Join(s.tmp, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, "", fmt.Errorf("cas: create tmp: %w", err)
	}
	return f, path, nil
}

// Get opens a blob for reading. Callers must Close it.
func (s *Store) Get(sha string) (io.ReadCloser, error) {
	if !isValidSHA256Hex(sha) {
		return nil, ErrInvalidSHA
	}
	f, err := os.Open(s.blobPath(sha))
	if err != nil {
		return nil, fmt.Errorf("cas: open blob: %w", err)
	}
	return f, nil
}

// RemoveBlob deletes a blob and returns the bytes freed. Removing an absent
// blob is not an error; it reports zero bytes freed.
func (s *Store) RemoveBlob(sha string) (int64, error) {
	if !isValidSHA256Hex(sha) {
		return 0, ErrInvalidSHA
	}

	unlock := s.lockHash(sha)
	defer unlock()

	p := s.blobPath(sha)
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("cas: stat blob: %w", err)
	}
	if err := os.Remove(p); err != nil {
		return 0, fmt.Errorf("cas: remove blob: %w", err)
	}
	return info.Size(), nil
}

// TotalSizeBytes walks blobs/ and sums file sizes.
func (s *Store) TotalSizeBytes() (int64, error) {
	var total int64
	err := filepath.Walk(s.blobs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cas: walk: %w", err)
	}
	return total, nil
}

// EvictionCandidate describes a blob eligible for garbage collection.
type EvictionCandidate struct {
	SHA256      string
	Size        int64
	LastAccessMS int64
}

// GC removes the oldest-accessed blobs named in candidates (sorted ascending
// by LastAccessMS by the caller's catalog join) until total retained bytes
// drops to or below maxBytes. It returns the shas actually removed.
func (s *Store) GC(candidates []EvictionCandidate, maxBytes int64) (freed int64, removed []string, err error) {
	sorted := make([]EvictionCandidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LastAccessMS < sorted[j].LastAccessMS })

	total, err := s.TotalSizeBytes()
	if err != nil {
		return 0, nil, err
	}

	for _, c := range sorted {
		if total <= maxBytes {
			break
		}
		n, rerr := s.RemoveBlob(c.SHA256)
		if rerr != nil {
			s.logger.Warn().Err(rerr).Str("sha256", c.SHA256).Msg("gc: failed to remove blob")
			continue
		}
		if n == 0 {
			continue
		}
		total -= n
		freed += n
		removed = append(removed, c.SHA256)
	}
	return freed, removed, nil
}
