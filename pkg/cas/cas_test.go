package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	return s
}

func shaOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestPutIfAbsentWritesOnce(t *testing.T) {
	s := newTestStore(t)
	data := []byte("hello world")
	sha := shaOf(data)

	wrote, err := s.PutIfAbsent(sha, data, "tmp-1")
	require.NoError(t, err)
	require.True(t, wrote)
	require.True(t, s.BlobExists(sha))

	wrote, err = s.PutIfAbsent(sha, data, "tmp-2")
	require.NoError(t, err)
	require.False(t, wrote, "second put of identical bytes must be a no-op")

	total, err := s.TotalSizeBytes()
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), total, "exactly one blob file should exist")
}

func TestPutIfAbsentRejectsInvalidSHA(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PutIfAbsent("not-a-sha", []byte("x"), "tmp")
	require.ErrorIs(t, err, ErrInvalidSHA)
}

func TestBlobPathMatchesWhereCommitWrote(t *testing.T) {
	s := newTestStore(t)
	data := []byte("hello world")
	sha := shaOf(data)

	_, err := s.PutIfAbsent(sha, data, "tmp-1")
	require.NoError(t, err)

	path, err := s.BlobPath(sha)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestBlobPathRejectsInvalidSHA(t *testing.T) {
	s := newTestStore(t)
	_, err := s.BlobPath("not-a-sha")
	require.ErrorIs(t, err, ErrInvalidSHA)
}

func TestCommitTmpFileIdempotent(t *testing.T) {
	s := newTestStore(t)
	data := []byte("streamed content")
	sha := shaOf(data)

	f, path, err := s.NewTmpFile("stream-1")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.CommitTmpFile(path, sha))
	require.True(t, s.BlobExists(sha))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "tmp file should be renamed away")

	// Committing a second pre-populated tmp file for the same sha is a no-op.
	f2, path2, err := s.NewTmpFile("stream-2")
	require.NoError(t, err)
	_, err = f2.Write(data)
	require.NoError(t, err)
	require.NoError(t, f2.Close())
	require.NoError(t, s.CommitTmpFile(path2, sha))
	_, err = os.Stat(path2)
	require.True(t, os.IsNotExist(err))
}

func TestRemoveBlobReturnsFreedBytes(t *testing.T) {
	s := newTestStore(t)
	data := []byte("some bytes to remove")
	sha := shaOf(data)

	_, err := s.PutIfAbsent(sha, data, "tmp")
	require.NoError(t, err)

	freed, err := s.RemoveBlob(sha)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), freed)
	require.False(t, s.BlobExists(sha))

	// Removing an already-absent blob is not an error.
	freed, err = s.RemoveBlob(sha)
	require.NoError(t, err)
	require.Zero(t, freed)
}

func TestGCEvictsOldestFirstUntilUnderCap(t *testing.T) {
	s := newTestStore(t)

	a := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa") // 40 bytes
	b := []byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb") // 40 bytes
	shaA, shaB := shaOf(a), shaOf(b)

	_, err := s.PutIfAbsent(shaA, a, "tmp-a")
	require.NoError(t, err)
	_, err = s.PutIfAbsent(shaB, b, "tmp-b")
	require.NoError(t, err)

	candidates := []EvictionCandidate{
		{SHA256: shaA, Size: int64(len(a)), LastAccessMS: 1},
		{SHA256: shaB, Size: int64(len(b)), LastAccessMS: 2},
	}

	freed, removed, err := s.GC(candidates, 50)
	require.NoError(t, err)
	require.Equal(t, int64(len(a)), freed)
	require.Equal(t, []string{shaA}, removed)
	require.False(t, s.BlobExists(shaA))
	require.True(t, s.BlobExists(shaB))
}
