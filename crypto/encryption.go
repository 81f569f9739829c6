package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrShareAuth is returned when a sealed share does not authenticate under
// the given key and additional data.
var ErrShareAuth = errors.New("sealed share failed authentication")

// SealedShare is one share encrypted for one node with AES-256-GCM,
// laid out as nonce || ciphertext || tag.
type SealedShare []byte

// SealShare encrypts a share under a key from DeriveSharedSecret. The
// additional data must name what the share belongs to; OpenShare only
// succeeds with the same additional data.
func SealShare(key SharedKey, plaintext, additionalData []byte) (SealedShare, error) {
	aead, err := shareAEAD(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(out, out, plaintext, additionalData), nil
}

// OpenShare decrypts a share sealed with SealShare.
func OpenShare(key SharedKey, sealed SealedShare, additionalData []byte) ([]byte, error) {
	aead, err := shareAEAD(key)
	if err != nil {
		return nil, err
	}

	n := aead.NonceSize()
	if len(sealed) < n+aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrShareAuth, len(sealed))
	}
	plaintext, err := aead.Open(nil, sealed[:n], sealed[n:], additionalData)
	if err != nil {
		return nil, ErrShareAuth
	}
	return plaintext, nil
}

func shareAEAD(key SharedKey) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("shared key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
