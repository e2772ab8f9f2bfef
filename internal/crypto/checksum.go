package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum returns the SHA-256 digest of data as a hex string. It detects
// corruption and tampering of stored payloads.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum compares a freshly computed checksum against a stored one.
// Plain equality, not constant-time: checksums guard integrity, never
// authentication, so timing leaks carry no secret.
func VerifyChecksum(data []byte, expected string) bool {
	return Checksum(data) == expected
}
