package crypto

import "errors"

var (
	// ErrEncryptionFailed wraps failures while sealing plaintext.
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrDecryptionFailed covers tampered ciphertext, truncated input,
	// malformed encoding, and key mismatch. Callers cannot distinguish
	// these cases; AES-GCM authentication failure is deliberately opaque.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidKeySize is returned when a derived or supplied key is not
	// 32 bytes.
	ErrInvalidKeySize = errors.New("invalid key size")
)

// IsDecryptionError reports whether err stems from unreadable ciphertext.
func IsDecryptionError(err error) bool {
	return errors.Is(err, ErrDecryptionFailed)
}
