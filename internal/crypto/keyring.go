package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"custodian/pkg/domain"
)

// Keyring holds one Cipher per data category, derived once at startup from
// the master passphrase. It is immutable after construction and safe for
// unsynchronized concurrent reads.
type Keyring struct {
	ciphers map[domain.DataCategory]*Cipher
	keyIDs  map[domain.DataCategory]string
}

// NewKeyring derives a per-category key from the master passphrase. Each
// category key is independent: compromising one does not expose the others,
// even though all descend from the same configuration secret.
func NewKeyring(masterPassphrase string) (*Keyring, error) {
	if masterPassphrase == "" {
		return nil, fmt.Errorf("master passphrase is required")
	}

	kr := &Keyring{
		ciphers: make(map[domain.DataCategory]*Cipher),
		keyIDs:  make(map[domain.DataCategory]string),
	}
	for _, category := range domain.Categories() {
		passphrase := masterPassphrase + ":" + category.String()
		c, err := NewFromPassphrase(passphrase)
		if err != nil {
			return nil, fmt.Errorf("derive key for category %s: %w", category, err)
		}
		kr.ciphers[category] = c
		kr.keyIDs[category] = keyFingerprint(c.key)
	}
	return kr, nil
}

// For returns the cipher for a category.
func (kr *Keyring) For(category domain.DataCategory) (*Cipher, error) {
	c, ok := kr.ciphers[category]
	if !ok {
		return nil, fmt.Errorf("no key for category %s", category)
	}
	return c, nil
}

// KeyID returns a non-secret fingerprint of the category key, recorded in
// encryption metadata so operators can tell which key sealed a record.
func (kr *Keyring) KeyID(category domain.DataCategory) string {
	return kr.keyIDs[category]
}

func keyFingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}
