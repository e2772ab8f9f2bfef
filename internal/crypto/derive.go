package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	deriveIterations = 100_000
)

// DeriveKey derives a fixed-length symmetric key from a passphrase using
// PBKDF2-SHA256. The salt is the SHA-256 digest of the passphrase itself,
// so the same passphrase always yields the same key across environments.
// That determinism is a deliberate operational trade-off carried over from
// the original design: keys are reproducible from configuration alone, at
// the cost of per-key salting. Changing it is a product decision, not a
// code fix.
func DeriveKey(passphrase string) []byte {
	salt := sha256.Sum256([]byte(passphrase))
	return pbkdf2.Key([]byte(passphrase), salt[:], deriveIterations, KeySize, sha256.New)
}
