package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/flashbots/nada-quickstart/protocol"
	"go.uber.org/atomic"
)

var (
	// ErrQuoteMismatch means the cluster quoted a different operation than requested.
	ErrQuoteMismatch = errors.New("quote does not match operation")
	// ErrNotPaid means a receipt was requested from an operation that was never paid.
	ErrNotPaid = errors.New("operation not paid")
	// ErrReceiptConsumed means the receipt of a paid operation was already used.
	ErrReceiptConsumed = errors.New("receipt already consumed")
)

// Quoter prices operations.
type Quoter interface {
	RequestQuote(ctx context.Context, op *protocol.Operation) (*protocol.Signed[protocol.Quote], error)
}

// Payer settles a quote on the payment chain and returns the transaction hash.
type Payer interface {
	Pay(ctx context.Context, quote *protocol.Quote) (string, error)
}

// QuotedOperation is an operation with a quote that has not been paid yet.
type QuotedOperation struct {
	op    *protocol.Operation
	quote *protocol.Signed[protocol.Quote]
}

// RequestQuote asks q to price op and checks that the returned quote is for op.
func RequestQuote(ctx context.Context, q Quoter, op *protocol.Operation) (*QuotedOperation, error) {
	digest, err := op.Digest()
	if err != nil {
		return nil, err
	}

	signed, err := q.RequestQuote(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("request quote: %w", err)
	}
	quote, _, err := signed.Recover()
	if err != nil {
		return nil, fmt.Errorf("quote signature: %w", err)
	}
	if quote.OperationKind != op.Kind || quote.OperationDigest != digest {
		return nil, ErrQuoteMismatch
	}
	return &QuotedOperation{op: op, quote: signed}, nil
}

// Operation returns the quoted operation.
func (q *QuotedOperation) Operation() *protocol.Operation { return q.op }

// Quote returns the quote terms.
func (q *QuotedOperation) Quote() *protocol.Quote { return q.quote.Object }

// Pay settles the quote with payer.
func (q *QuotedOperation) Pay(ctx context.Context, payer Payer) (*PaidOperation, error) {
	txHash, err := payer.Pay(ctx, q.quote.Object)
	if err != nil {
		return nil, fmt.Errorf("pay quote %s: %w", q.quote.Object.Nonce, err)
	}
	return &PaidOperation{
		receipt: &protocol.Receipt{Quote: q.quote, TxHash: txHash},
	}, nil
}

// PaidOperation holds the receipt of a paid quote. The receipt can be taken once.
type PaidOperation struct {
	receipt  *protocol.Receipt
	consumed atomic.Bool
}

// Receipt hands out the payment receipt for submission.
func (p *PaidOperation) Receipt() (*protocol.Receipt, error) {
	if p == nil || p.receipt == nil {
		return nil, ErrNotPaid
	}
	if p.consumed.Swap(true) {
		return nil, ErrReceiptConsumed
	}
	return p.receipt, nil
}

// Nonce is the nonce of the paid quote, or empty if unpaid.
func (p *PaidOperation) Nonce() string {
	if p == nil || p.receipt == nil {
		return ""
	}
	return p.receipt.Quote.Object.Nonce
}

// GetQuoteAndPay quotes op and pays for it.
func GetQuoteAndPay(ctx context.Context, q Quoter, op *protocol.Operation, payer Payer) (*PaidOperation, error) {
	quoted, err := RequestQuote(ctx, q, op)
	if err != nil {
		return nil, err
	}
	return quoted.Pay(ctx, payer)
}
