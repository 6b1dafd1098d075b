package ake

import (
	"golang.org/x/crypto/chacha20"
)

// seededReader is a deterministic io.Reader backed by ChaCha20 keyed with a
// fixed seed, mirroring the seeded CSPRNG clipbridge's reference
// implementation uses to make server registration reconstructible from a
// password hash alone. A zero nonce is fine: the same seed reproducing the
// same stream is what makes the derivation deterministic, and the stream is
// never used for anything but this one-shot derivation.
type seededReader struct {
	cipher *chacha20.Cipher
}

func newSeededReader(seed []byte) *seededReader {
	key := make([]byte, chacha20.KeySize)
	copy(key, seed)
	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		// Only possible if key/nonce sizes are wrong, which they never are here.
		panic("ake: seeded cipher init: " + err.Error())
	}
	return &seededReader{cipher: c}
}

func (r *seededReader) Read(p []byte) (int, error) {
	zero := make([]byte, len(p))
	r.cipher.XORKeyStream(p, zero)
	return len(p), nil
}
