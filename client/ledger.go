package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/flashbots/nada-quickstart/ledger"
	"github.com/flashbots/nada-quickstart/protocol"
)

// ChainInfo describes the payment chain.
type ChainInfo struct {
	ChainID string `json:"chain_id"`
	Height  uint64 `json:"height"`
}

type submitTxResponse struct {
	TxHash string `json:"tx_hash"`
}

// LedgerAPI is the part of the payment chain a payer needs.
type LedgerAPI interface {
	Account(ctx context.Context, addr string) (*ledger.Account, error)
	Submit(ctx context.Context, stx *ledger.SignedTransaction) (string, error)
}

// LedgerClient talks to the payment chain over HTTP.
type LedgerClient struct {
	api *httpAPI
}

// NewLedgerClient creates a client for the chain at baseURL.
// A nil httpClient uses DefaultHTTPClient.
func NewLedgerClient(baseURL string, httpClient *http.Client) *LedgerClient {
	return &LedgerClient{api: newHTTPAPI(baseURL, httpClient)}
}

// ChainInfo fetches the chain id and height.
func (c *LedgerClient) ChainInfo(ctx context.Context) (*ChainInfo, error) {
	var info ChainInfo
	if err := c.api.do(ctx, http.MethodGet, "/chain", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Account fetches the state of addr.
func (c *LedgerClient) Account(ctx context.Context, addr string) (*ledger.Account, error) {
	var account ledger.Account
	if err := c.api.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(addr), nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Submit broadcasts a signed transaction and returns its hash.
func (c *LedgerClient) Submit(ctx context.Context, stx *ledger.SignedTransaction) (string, error) {
	var resp submitTxResponse
	if err := c.api.do(ctx, http.MethodPost, "/txs", stx, &resp); err != nil {
		return "", err
	}
	return resp.TxHash, nil
}

// Transaction fetches an included transaction.
func (c *LedgerClient) Transaction(ctx context.Context, hash string) (*ledger.TxRecord, error) {
	var rec ledger.TxRecord
	if err := c.api.do(ctx, http.MethodGet, "/txs/"+url.PathEscape(hash), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LedgerPayer pays quotes from a wallet.
type LedgerPayer struct {
	chain   LedgerAPI
	wallet  *ledger.Wallet
	chainID string

	mu sync.Mutex
}

// NewLedgerPayer creates a payer that signs transfers for chainID with wallet.
func NewLedgerPayer(chain LedgerAPI, wallet *ledger.Wallet, chainID string) *LedgerPayer {
	return &LedgerPayer{chain: chain, wallet: wallet, chainID: chainID}
}

// Address is the paying account.
func (p *LedgerPayer) Address() string { return p.wallet.Address() }

// Pay transfers the quoted cost to the quote's payment address. The quote
// nonce goes into the memo so the cluster can match the payment.
func (p *LedgerPayer) Pay(ctx context.Context, quote *protocol.Quote) (string, error) {
	if quote == nil {
		return "", errors.New("nil quote")
	}
	if quote.ChainID != p.chainID {
		return "", fmt.Errorf("quote is for chain %q, payer is on %q", quote.ChainID, p.chainID)
	}

	// Sequence numbers must be used in order.
	p.mu.Lock()
	defer p.mu.Unlock()

	account, err := p.chain.Account(ctx, p.wallet.Address())
	if err != nil {
		return "", fmt.Errorf("fetch account: %w", err)
	}
	if account.Balance < quote.Cost {
		return "", fmt.Errorf("%w: balance %d, cost %d", ledger.ErrInsufficientFunds, account.Balance, quote.Cost)
	}

	stx, err := p.wallet.Sign(&ledger.Transaction{
		ChainID:  p.chainID,
		From:     p.wallet.Address(),
		To:       quote.PaymentAddress,
		Amount:   quote.Cost,
		Memo:     quote.Nonce,
		Sequence: account.Sequence,
	})
	if err != nil {
		return "", err
	}
	return p.chain.Submit(ctx, stx)
}
