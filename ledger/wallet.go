package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// AddressPrefix is the human-readable prefix of chain addresses.
const AddressPrefix = "nillion1"

// Wallet holds a secp256k1 account key.
type Wallet struct {
	key     *secp256k1.PrivateKey
	address string
}

// NewWalletFromHex loads a wallet from a hex-encoded 32-byte private key.
func NewWalletFromHex(privateKey string) (*Wallet, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, errors.New("invalid private key size")
	}
	return newWallet(secp256k1.PrivKeyFromBytes(raw)), nil
}

// GenerateWallet creates a wallet with a fresh random key.
func GenerateWallet() (*Wallet, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return newWallet(key), nil
}

func newWallet(key *secp256k1.PrivateKey) *Wallet {
	return &Wallet{key: key, address: AddressFromPublicKey(key.PubKey())}
}

// Address returns the account address.
func (w *Wallet) Address() string { return w.address }

// PrivateKeyHex returns the hex-encoded private key.
func (w *Wallet) PrivateKeyHex() string {
	return hex.EncodeToString(w.key.Serialize())
}

// Sign signs tx with the wallet key. The transaction sender must be the wallet.
func (w *Wallet) Sign(tx *Transaction) (*SignedTransaction, error) {
	if tx.From != w.address {
		return nil, fmt.Errorf("transaction sender %s is not %s", tx.From, w.address)
	}
	hash, err := tx.signingHash()
	if err != nil {
		return nil, err
	}
	sig := ecdsa.Sign(w.key, hash[:])
	return &SignedTransaction{
		Tx:        *tx,
		PublicKey: w.key.PubKey().SerializeCompressed(),
		Signature: sig.Serialize(),
	}, nil
}

// AddressFromPublicKey derives the address of a public key: the prefix
// followed by the hex of the first 20 bytes of SHA3-256 over the
// compressed key.
func AddressFromPublicKey(pub *secp256k1.PublicKey) string {
	digest := sha3.Sum256(pub.SerializeCompressed())
	return AddressPrefix + hex.EncodeToString(digest[:20])
}

// ValidAddress reports whether addr is well formed.
func ValidAddress(addr string) bool {
	rest, ok := strings.CutPrefix(addr, AddressPrefix)
	if !ok || len(rest) != 40 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

// Transaction transfers funds between accounts.
type Transaction struct {
	ChainID  string `json:"chain_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   uint64 `json:"amount"`
	Memo     string `json:"memo"`
	Sequence uint64 `json:"sequence"`
}

func (tx *Transaction) signingHash() ([32]byte, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// SignedTransaction is a transaction with the sender's compressed public key
// and DER-encoded ECDSA signature.
type SignedTransaction struct {
	Tx        Transaction `json:"tx"`
	PublicKey []byte      `json:"public_key"`
	Signature []byte      `json:"signature"`
}

// Hash identifies the signed transaction.
func (s *SignedTransaction) Hash() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(data)
	return strings.ToUpper(hex.EncodeToString(digest[:])), nil
}

// Verify checks that the signature is valid and that the key belongs to the sender.
func (s *SignedTransaction) Verify() error {
	pub, err := secp256k1.ParsePubKey(s.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if AddressFromPublicKey(pub) != s.Tx.From {
		return fmt.Errorf("%w: key does not match sender", ErrInvalidSignature)
	}
	sig, err := ecdsa.ParseDERSignature(s.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	hash, err := s.Tx.signingHash()
	if err != nil {
		return err
	}
	if !sig.Verify(hash[:], pub) {
		return ErrInvalidSignature
	}
	return nil
}
