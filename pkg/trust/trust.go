package trust

import (
	"errors"
	"fmt"

	"github.com/clipbridge/clipbridge/pkg/catalog"
)

// ErrFingerprintMismatch is returned by Verify when a peer presents a
// certificate fingerprint that differs from the one pinned for its
// device id. Sessions must treat this as fatal and not proceed to the AKE.
var ErrFingerprintMismatch = errors.New("trust: fingerprint mismatch")

// Store pins and checks peer certificate fingerprints on top of a
// catalog.Store's trusted_peers bucket.
type Store struct {
	catalog catalog.Store
	account string
}

// New returns a Store scoped to one account uid.
func New(c catalog.Store, accountUID string) *Store {
	return &Store{catalog: c, account: accountUID}
}

// Verify checks observedFingerprintHex against the pin for deviceID. If no
// pin exists yet, it is created (trust-on-first-use) and Verify succeeds.
// If a pin exists and differs, ErrFingerprintMismatch is returned.
func (s *Store) Verify(deviceID, observedFingerprintHex string, nowMS int64) error {
	pinned, err := s.catalog.GetPeerFingerprint(s.account, deviceID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return s.catalog.SavePeerFingerprint(s.account, deviceID, observedFingerprintHex, nowMS)
		}
		return fmt.Errorf("trust: get fingerprint: %w", err)
	}
	if pinned != observedFingerprintHex {
		return ErrFingerprintMismatch
	}
	return nil
}

// Forget clears the pin for deviceID, allowing the next connection from it
// to re-pin under trust-on-first-use after a peer has regenerated its
// device identity. No clipbridgectl subcommand calls it.
func (s *Store) Forget(deviceID string) error {
	if err := s.catalog.ClearPeerFingerprint(s.account, deviceID); err != nil {
		return fmt.Errorf("trust: clear fingerprint: %w", err)
	}
	return nil
}
