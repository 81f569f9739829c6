package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// UserIDSize is the byte length of a user id before hex encoding.
const UserIDSize = 20

// PublicKey is an Ed25519 verification key. User keys sign requests to the
// cluster and the cluster key signs quotes. It encodes as hex text.
type PublicKey []byte

// PrivateKey is an Ed25519 signing key in the 64-byte seed||public form.
type PrivateKey []byte

// Signature is an Ed25519 signature. It encodes as hex text.
type Signature []byte

// SharedKey is a symmetric key derived from an X25519 agreement.
type SharedKey []byte

// GenerateKeyPair creates a random signing key.
func GenerateKeyPair() (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PublicKey(pub), PrivateKey(priv), nil
}

// ParsePublicKey decodes a hex public key.
func ParsePublicKey(s string) (PublicKey, error) {
	raw, err := decodeHex([]byte(s), ed25519.PublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	return PublicKey(raw), nil
}

func (pk PublicKey) String() string { return hex.EncodeToString(pk) }

func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

func (pk *PublicKey) UnmarshalText(text []byte) error {
	raw, err := decodeHex(text, ed25519.PublicKeySize)
	if err != nil {
		return fmt.Errorf("public key: %w", err)
	}
	*pk = raw
	return nil
}

// Equal reports whether both keys are the same, in constant time.
func (pk PublicKey) Equal(other PublicKey) bool {
	return len(pk) == len(other) && subtle.ConstantTimeCompare(pk, other) == 1
}

// UserID identifies the key holder: hex of the first 20 bytes of SHA3-256
// over the key.
func (pk PublicKey) UserID() string {
	digest := sha3.Sum256(pk)
	return hex.EncodeToString(digest[:UserIDSize])
}

// PublicKey returns the verification half of the key.
func (sk PrivateKey) PublicKey() (PublicKey, error) {
	if len(sk) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(sk))
	}
	pub := make(PublicKey, ed25519.PublicKeySize)
	copy(pub, ed25519.PrivateKey(sk).Public().(ed25519.PublicKey))
	return pub, nil
}

// Sign signs data with sk.
func Sign(sk PrivateKey, data []byte) (Signature, error) {
	if len(sk) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return Signature(ed25519.Sign(ed25519.PrivateKey(sk), data)), nil
}

// Verify reports whether s is a valid signature of data by pk.
func (s Signature) Verify(pk PublicKey, data []byte) bool {
	if len(pk) != ed25519.PublicKeySize || len(s) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk), data, s)
}

func (s Signature) String() string { return hex.EncodeToString(s) }

func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Signature) UnmarshalText(text []byte) error {
	raw, err := decodeHex(text, ed25519.SignatureSize)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	*s = raw
	return nil
}

// decodeHex decodes text and requires exactly size bytes.
func decodeHex(text []byte, size int) ([]byte, error) {
	raw := make([]byte, hex.DecodedLen(len(text)))
	n, err := hex.Decode(raw, text)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("expected %d bytes, got %d", size, n)
	}
	return raw[:n], nil
}
