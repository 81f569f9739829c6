package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newFundedLedger(t *testing.T, amount uint64) (*Ledger, *Wallet, *Wallet) {
	t.Helper()
	payer, err := GenerateWallet()
	require.NoError(t, err)
	payee, err := GenerateWallet()
	require.NoError(t, err)
	return New("nillion-chain-devnet", map[string]uint64{payer.Address(): amount}), payer, payee
}

func transfer(t *testing.T, w *Wallet, to string, amount, seq uint64) *SignedTransaction {
	t.Helper()
	stx, err := w.Sign(&Transaction{
		ChainID:  "nillion-chain-devnet",
		From:     w.Address(),
		To:       to,
		Amount:   amount,
		Memo:     "memo",
		Sequence: seq,
	})
	require.NoError(t, err)
	return stx
}

func TestWalletFromHex(t *testing.T) {
	w, err := GenerateWallet()
	require.NoError(t, err)
	require.True(t, ValidAddress(w.Address()))

	loaded, err := NewWalletFromHex(w.PrivateKeyHex())
	require.NoError(t, err)
	require.Equal(t, w.Address(), loaded.Address())

	_, err = NewWalletFromHex("zz")
	require.Error(t, err)
	_, err = NewWalletFromHex("abcd")
	require.Error(t, err)

	require.False(t, ValidAddress("cosmos1abc"))
	require.False(t, ValidAddress(AddressPrefix+"xyz"))
}

func TestSubmitTransfers(t *testing.T) {
	ctx := context.Background()
	l, payer, payee := newFundedLedger(t, 100)

	hash, err := l.Submit(ctx, transfer(t, payer, payee.Address(), 30, 0))
	require.NoError(t, err)

	rec, err := l.Transaction(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, uint64(1), rec.Height)
	require.Equal(t, uint64(30), rec.SignedTx.Tx.Amount)

	from, err := l.Account(ctx, payer.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(70), from.Balance)
	require.Equal(t, uint64(1), from.Sequence)

	to, err := l.Account(ctx, payee.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(30), to.Balance)

	_, err = l.Transaction(ctx, "deadbeef")
	require.ErrorIs(t, err, ErrTxNotFound)
}

func TestSubmitRejects(t *testing.T) {
	ctx := context.Background()
	l, payer, payee := newFundedLedger(t, 100)

	t.Run("insufficient funds", func(t *testing.T) {
		_, err := l.Submit(ctx, transfer(t, payer, payee.Address(), 101, 0))
		require.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("bad sequence", func(t *testing.T) {
		_, err := l.Submit(ctx, transfer(t, payer, payee.Address(), 1, 5))
		require.ErrorIs(t, err, ErrBadSequence)
	})

	t.Run("replay", func(t *testing.T) {
		stx := transfer(t, payer, payee.Address(), 1, 0)
		_, err := l.Submit(ctx, stx)
		require.NoError(t, err)
		_, err = l.Submit(ctx, stx)
		require.ErrorIs(t, err, ErrBadSequence)
	})

	t.Run("tampered amount", func(t *testing.T) {
		stx := transfer(t, payer, payee.Address(), 1, 1)
		stx.Tx.Amount = 50
		_, err := l.Submit(ctx, stx)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("foreign key", func(t *testing.T) {
		stx := transfer(t, payer, payee.Address(), 1, 1)
		stx.PublicKey = transfer(t, payee, payer.Address(), 1, 0).PublicKey
		_, err := l.Submit(ctx, stx)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("wrong chain", func(t *testing.T) {
		stx, err := payer.Sign(&Transaction{ChainID: "other", From: payer.Address(), To: payee.Address(), Amount: 1, Sequence: 1})
		require.NoError(t, err)
		_, err = l.Submit(ctx, stx)
		require.ErrorIs(t, err, ErrWrongChain)
	})

	t.Run("invalid recipient", func(t *testing.T) {
		_, err := l.Submit(ctx, transfer(t, payer, "nowhere", 1, 1))
		require.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("sign for another sender", func(t *testing.T) {
		_, err := payer.Sign(&Transaction{From: payee.Address()})
		require.Error(t, err)
	})
}

func TestFund(t *testing.T) {
	ctx := context.Background()
	l, _, payee := newFundedLedger(t, 0)

	require.NoError(t, l.Fund(payee.Address(), 500))
	acc, err := l.Account(ctx, payee.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(500), acc.Balance)

	require.ErrorIs(t, l.Fund("bad", 1), ErrInvalidAddress)
}
