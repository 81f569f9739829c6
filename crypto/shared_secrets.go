package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// ExchangePublicKey is an X25519 public key. A client's exchange public key
// is its party id; cluster nodes publish theirs in the cluster info.
type ExchangePublicKey [32]byte

// ExchangePrivateKey is an X25519 private key.
type ExchangePrivateKey [32]byte

// String returns the hex encoding of the public key.
func (pk ExchangePublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

// MarshalText implements encoding.TextMarshaler.
func (pk ExchangePublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *ExchangePublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParseExchangePublicKey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// IsZero reports whether the key is unset.
func (pk ExchangePublicKey) IsZero() bool {
	return pk == ExchangePublicKey{}
}

// ParseExchangePublicKey decodes a hex-encoded X25519 public key.
func ParseExchangePublicKey(data string) (ExchangePublicKey, error) {
	var pk ExchangePublicKey
	raw, err := hex.DecodeString(data)
	if err != nil {
		return pk, err
	}
	if len(raw) != len(pk) {
		return pk, errors.New("invalid exchange key size")
	}
	copy(pk[:], raw)
	return pk, nil
}

// PublicKey returns the X25519 public key for this private key.
func (sk ExchangePrivateKey) PublicKey() ExchangePublicKey {
	var pubKey ExchangePublicKey
	curve25519.ScalarBaseMult((*[32]byte)(&pubKey), (*[32]byte)(&sk))
	return pubKey
}

// GenerateExchangeKeyPair generates a new X25519 key pair for key exchange.
func GenerateExchangeKeyPair() (ExchangePublicKey, ExchangePrivateKey, error) {
	var privKey ExchangePrivateKey
	if _, err := rand.Read(privKey[:]); err != nil {
		return ExchangePublicKey{}, privKey, err
	}
	return privKey.PublicKey(), privKey, nil
}

// DeriveSharedSecret performs X25519 key agreement and derives a 32-byte key
// bound to info with HKDF-SHA256.
func DeriveSharedSecret(privateKey ExchangePrivateKey, publicKey ExchangePublicKey, info []byte) (SharedKey, error) {
	sharedPoint, err := curve25519.X25519(privateKey[:], publicKey[:])
	if err != nil {
		return nil, err
	}

	kdf := hkdf.New(sha256.New, sharedPoint, nil, info)
	secret := make([]byte, 32)
	if _, err := kdf.Read(secret); err != nil {
		return nil, err
	}

	return SharedKey(secret), nil
}
