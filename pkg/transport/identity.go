package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/argon2"
)

const (
	certValidity = 10 * 365 * 24 * time.Hour

	// Memory-hard KDF parameters fixed by the transport identity spec.
	argonMemoryKiB = 64 * 1024
	argonTime      = 3
	argonThreads   = 1
	argonKeyLen    = 32
)

// argonSalt is fixed, not secret: the KDF input already includes the
// device-id and account-uid, which supplies the per-identity entropy.
var argonSalt = []byte("clipbridge-identity-kdf-salt-v1")

const certFileName = "cert.der"
const keyFileName = "key.encrypted"

// Identity is a device's persistent self-signed TLS certificate and
// private key.
type Identity struct {
	Cert       *x509.Certificate
	CertDER    []byte
	PrivateKey *ecdsa.PrivateKey

	// FingerprintHex is sha-256 of CertDER, hex encoded.
	FingerprintHex string
}

// TLSCertificate returns the tls.Certificate form used to configure the
// QUIC endpoint.
func (id *Identity) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{id.CertDER},
		PrivateKey:  id.PrivateKey,
		Leaf:        id.Cert,
	}
}

// LoadOrCreateIdentity loads the identity from dataDir/tls, generating and
// persisting a new one if absent or if the encrypted key fails to decrypt
// under the current KDF input (e.g. after an account rotation).
func LoadOrCreateIdentity(dataDir, deviceID, accountUID string) (*Identity, error) {
	tlsDir := filepath.Join(dataDir, "tls")
	certPath := filepath.Join(tlsDir, certFileName)
	keyPath := filepath.Join(tlsDir, keyFileName)

	key := deriveKey(deviceID, accountUID)

	id, err := loadIdentity(certPath, keyPath, key)
	if err == nil {
		return id, nil
	}

	return generateIdentity(deviceID, tlsDir, certPath, keyPath, key)
}

func deriveKey(deviceID, accountUID string) []byte {
	input := []byte(deviceID + "\x00" + accountUID)
	return argon2.IDKey(input, argonSalt, argonTime, argonMemoryKiB, argonThreads, argonKeyLen)
}

func loadIdentity(certPath, keyPath string, key []byte) (*Identity, error) {
	certDER, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("transport: read cert: %w", err)
	}
	encryptedKey, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("transport: read key: %w", err)
	}

	keyDER, err := decrypt(key, encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("transport: decrypt key: %w", err)
	}

	parsedKey, err := x509.ParsePKCS8PrivateKey(keyDER)
	if err != nil {
		return nil, fmt.Errorf("transport: parse key: %w", err)
	}
	privKey, ok := parsedKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("transport: unexpected private key type %T", parsedKey)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("transport: parse cert: %w", err)
	}

	return &Identity{
		Cert:           cert,
		CertDER:        certDER,
		PrivateKey:     privKey,
		FingerprintHex: fingerprint(certDER),
	}, nil
}

func generateIdentity(deviceID, tlsDir, certPath, keyPath string, key []byte) (*Identity, error) {
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("transport: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("transport: generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: deviceID},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(certValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &privKey.PublicKey, privKey)
	if err != nil {
		return nil, fmt.Errorf("transport: create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("transport: parse generated certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(privKey)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal key: %w", err)
	}
	encryptedKey, err := encrypt(key, keyDER)
	if err != nil {
		return nil, fmt.Errorf("transport: encrypt key: %w", err)
	}

	if err := os.MkdirAll(tlsDir, 0o700); err != nil {
		return nil, fmt.Errorf("transport: mkdir tls dir: %w", err)
	}
	if err := os.WriteFile(certPath, certDER, 0o600); err != nil {
		return nil, fmt.Errorf("transport: write cert: %w", err)
	}
	if err := os.WriteFile(keyPath, encryptedKey, 0o600); err != nil {
		return nil, fmt.Errorf("transport: write key: %w", err)
	}

	return &Identity{
		Cert:           cert,
		CertDER:        certDER,
		PrivateKey:     privKey,
		FingerprintHex: fingerprint(certDER),
	}, nil
}

func fingerprint(certDER []byte) string {
	sum := sha256.Sum256(certDER)
	return fmt.Sprintf("%x", sum)
}

// encrypt seals plaintext with AES-256-GCM under key, prepending a random
// 12-byte nonce to the output.
func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("transport: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("transport: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("transport: generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens ciphertext produced by encrypt. An AEAD tag mismatch
// (wrong key) surfaces as an error, which callers treat as "no usable
// identity" rather than a fatal fault.
func decrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("transport: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("transport: new gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("transport: ciphertext too short")
	}
	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ct, nil)
}
