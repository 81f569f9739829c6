// Package crypto provides the cryptographic primitives used by the quickstart
// client and the development network.
//
//   - Ed25519 user keys and signatures for authenticating client requests and
//     cluster quotes
//   - X25519 node keys and HKDF-derived shared secrets between a client and
//     each cluster node
//   - AES-GCM sealing of secret shares in transit (SealShare / OpenShare)
//   - Field arithmetic over 2^127-1 and additive secret sharing
//
// # Seed-derived keys
//
// UserKeyFromSeed and NodeKeyFromSeed reproduce the quickstart's fixed-seed
// key derivation. They are insecure by example: the seed is the key.
//
// Note: field arithmetic uses math/big and is not constant-time.
package crypto
