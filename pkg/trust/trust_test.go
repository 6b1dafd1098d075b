package trust

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clipbridge/clipbridge/pkg/catalog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	c, err := catalog.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return New(c, "acct-1")
}

func TestVerifyPinsOnFirstUse(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Verify("dev-a", "fp-1", 1000))
	require.NoError(t, s.Verify("dev-a", "fp-1", 1001))
}

func TestVerifyRejectsMismatchedFingerprint(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Verify("dev-a", "fp-1", 1000))

	err := s.Verify("dev-a", "fp-evil", 1001)
	require.ErrorIs(t, err, ErrFingerprintMismatch)
}

func TestForgetAllowsRepin(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Verify("dev-a", "fp-1", 1000))
	require.NoError(t, s.Forget("dev-a"))
	require.NoError(t, s.Verify("dev-a", "fp-2", 1002))
}
