// Package ledger implements the payment chain of the development network:
// secp256k1 wallets, signed transfers and an in-memory account ledger.
//
// The ledger has a single writer and no consensus. It exists so that quotes
// can be paid and receipts verified the way they are against a real chain.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBadSequence       = errors.New("bad sequence")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrWrongChain        = errors.New("wrong chain id")
	ErrTxNotFound        = errors.New("transaction not found")
	ErrInvalidAddress    = errors.New("invalid address")
)

// Account is the state of one address.
type Account struct {
	Address  string `json:"address"`
	Balance  uint64 `json:"balance"`
	Sequence uint64 `json:"sequence"`
}

// TxRecord is an included transaction.
type TxRecord struct {
	Hash     string             `json:"hash"`
	Height   uint64             `json:"height"`
	Time     time.Time          `json:"time"`
	SignedTx *SignedTransaction `json:"signed_tx"`
}

// Ledger is an in-memory account ledger. Every accepted transaction is a block.
type Ledger struct {
	chainID string

	mu       sync.RWMutex
	accounts map[string]*Account
	txs      map[string]*TxRecord
	height   uint64
}

// New creates a ledger with genesis balances.
func New(chainID string, genesis map[string]uint64) *Ledger {
	l := &Ledger{
		chainID:  chainID,
		accounts: make(map[string]*Account),
		txs:      make(map[string]*TxRecord),
	}
	for addr, balance := range genesis {
		l.accounts[addr] = &Account{Address: addr, Balance: balance}
	}
	return l
}

// ChainID returns the chain identifier transactions must carry.
func (l *Ledger) ChainID() string { return l.chainID }

// Height returns the number of accepted transactions.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.height
}

// Fund credits addr out of thin air. Used by the devnet faucet.
func (l *Ledger) Fund(addr string, amount uint64) error {
	if !ValidAddress(addr) {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.account(addr).Balance += amount
	return nil
}

// Account returns a copy of the account state. Unknown addresses have a zero state.
func (l *Ledger) Account(_ context.Context, addr string) (*Account, error) {
	if !ValidAddress(addr) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if acc, ok := l.accounts[addr]; ok {
		cp := *acc
		return &cp, nil
	}
	return &Account{Address: addr}, nil
}

// Submit verifies and applies a signed transaction and returns its hash.
func (l *Ledger) Submit(_ context.Context, stx *SignedTransaction) (string, error) {
	tx := &stx.Tx
	if tx.ChainID != l.chainID {
		return "", fmt.Errorf("%w: %s", ErrWrongChain, tx.ChainID)
	}
	if !ValidAddress(tx.To) {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, tx.To)
	}
	if err := stx.Verify(); err != nil {
		return "", err
	}
	hash, err := stx.Hash()
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from := l.account(tx.From)
	if tx.Sequence != from.Sequence {
		return "", fmt.Errorf("%w: expected %d, got %d", ErrBadSequence, from.Sequence, tx.Sequence)
	}
	if from.Balance < tx.Amount {
		return "", fmt.Errorf("%w: balance %d, amount %d", ErrInsufficientFunds, from.Balance, tx.Amount)
	}

	from.Balance -= tx.Amount
	from.Sequence++
	l.account(tx.To).Balance += tx.Amount

	l.height++
	l.txs[hash] = &TxRecord{Hash: hash, Height: l.height, Time: time.Now().UTC(), SignedTx: stx}
	return hash, nil
}

// Transaction looks up an included transaction by hash.
func (l *Ledger) Transaction(_ context.Context, hash string) (*TxRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.txs[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, hash)
	}
	return rec, nil
}

// account returns the mutable account, creating it. Callers hold the write lock.
func (l *Ledger) account(addr string) *Account {
	acc, ok := l.accounts[addr]
	if !ok {
		acc = &Account{Address: addr}
		l.accounts[addr] = acc
	}
	return acc
}
