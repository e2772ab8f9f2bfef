// Package crypto is the symmetric encryption primitive underneath the field
// engine and the secure record store: key derivation, AES-256-GCM
// authenticated encryption, and SHA-256 integrity checksums.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// Algorithm identifies the cipher recorded in encryption metadata.
const Algorithm = "AES-256-GCM"

// Cipher performs authenticated encryption with a single fixed key. It is
// read-only after construction and safe for concurrent use.
type Cipher struct {
	key  []byte
	aead cipher.AEAD
}

// New builds a Cipher from a 32-byte key (see DeriveKey).
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeySize, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Cipher{key: key, aead: aead}, nil
}

// NewFromPassphrase derives the key and builds the Cipher in one step.
func NewFromPassphrase(passphrase string) (*Cipher, error) {
	return New(DeriveKey(passphrase))
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext || tag).
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: generate nonce: %v", ErrEncryptionFailed, err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any tampering, truncation,
// or key mismatch yields ErrDecryptionFailed.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed encoding", ErrDecryptionFailed)
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// EncryptObject JSON-serializes a structured value and encrypts the result.
// Used by the field engine for list and map values.
func (c *Cipher) EncryptObject(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("%w: serialize value: %v", ErrEncryptionFailed, err)
	}
	return c.Encrypt(data)
}

// DecryptObject decrypts and JSON-deserializes a value produced by
// EncryptObject. Ciphertext that opens but does not parse as JSON is
// reported as a decryption failure so field-level callers can fall back to
// string decryption.
func (c *Cipher) DecryptObject(encoded string) (any, error) {
	data, err := c.Decrypt(encoded)
	if err != nil {
		return nil, err
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("%w: deserialize value: %v", ErrDecryptionFailed, err)
	}
	return value, nil
}
