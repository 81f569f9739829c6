package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"

	"golang.org/x/crypto/hkdf"
)

// Key derivation from a human-chosen seed string.
//
// Insecure by example: anyone who knows or guesses the seed recovers the
// keys. Only local development networks should use these; real deployments
// generate keys with GenerateKeyPair / GenerateExchangeKeyPair or load them
// from a key management service.

var (
	userKeyInfo = []byte("nada-quickstart/user-key/v1")
	nodeKeyInfo = []byte("nada-quickstart/node-key/v1")
)

// UserKeyFromSeed deterministically derives an Ed25519 user key from seed.
func UserKeyFromSeed(seed string) PrivateKey {
	return PrivateKey(ed25519.NewKeyFromSeed(expandSeed(seed, userKeyInfo)))
}

// NodeKeyFromSeed deterministically derives an X25519 node key from seed.
func NodeKeyFromSeed(seed string) ExchangePrivateKey {
	var sk ExchangePrivateKey
	copy(sk[:], expandSeed(seed, nodeKeyInfo))
	return sk
}

func expandSeed(seed string, info []byte) []byte {
	kdf := hkdf.New(sha256.New, []byte(seed), nil, info)
	out := make([]byte, 32)
	if _, err := kdf.Read(out); err != nil {
		// hkdf only fails once more than 255*32 bytes were read
		panic(err.Error())
	}
	return out
}
