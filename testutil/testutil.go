package testutil

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flashbots/nada-quickstart/crypto"
	"github.com/flashbots/nada-quickstart/protocol"
	"github.com/flashbots/nada-quickstart/services"
	"github.com/stretchr/testify/require"
)

// Test defaults.
const (
	DefaultClusterID  = "nillion-devnet-test"
	DefaultChainID    = "nillion-chain-devnet-test"
	DefaultFundAmount = 1_000_000
)

// DefaultPrices are small nonzero prices so payments are exercised.
var DefaultPrices = protocol.Prices{
	StoreProgramBase:   10,
	StoreProgramPerKiB: 1,
	StoreValuePerDay:   2,
	ComputeBase:        5,
	ComputePerValue:    1,
}

// DevnetOption customizes a test devnet.
type DevnetOption func(*services.OrchestratorConfig)

// WithNodes sets the number of cluster nodes.
func WithNodes(n int) DevnetOption {
	return func(cfg *services.OrchestratorConfig) {
		cfg.NumNodes = n
	}
}

// WithPrices sets the cluster prices.
func WithPrices(prices protocol.Prices) DevnetOption {
	return func(cfg *services.OrchestratorConfig) {
		cfg.Prices = prices
	}
}

// WithQuoteTTL sets how long quotes stay valid.
func WithQuoteTTL(ttl time.Duration) DevnetOption {
	return func(cfg *services.OrchestratorConfig) {
		cfg.QuoteTTL = ttl
	}
}

// WithFundAmount sets the genesis balance of the funded account.
func WithFundAmount(amount uint64) DevnetOption {
	return func(cfg *services.OrchestratorConfig) {
		cfg.FundAmount = amount
	}
}

// WithEnvFile makes the devnet write its env file to path.
func WithEnvFile(path string) DevnetOption {
	return func(cfg *services.OrchestratorConfig) {
		cfg.EnvFile = path
	}
}

// StartDevnet deploys a devnet on loopback ports and shuts it down when the
// test ends.
func StartDevnet(t testing.TB, options ...DevnetOption) *services.Orchestrator {
	t.Helper()

	cfg := &services.OrchestratorConfig{
		ClusterID:   DefaultClusterID,
		NumNodes:    3,
		ClusterAddr: "127.0.0.1:0",
		LedgerAddr:  "127.0.0.1:0",
		ChainID:     DefaultChainID,
		FundAmount:  DefaultFundAmount,
		Prices:      DefaultPrices,
		QuoteTTL:    time.Minute,
		Log:         DiscardLogger(),
	}
	for _, option := range options {
		option(cfg)
	}

	o := services.NewOrchestrator(cfg)
	require.NoError(t, o.Deploy())
	t.Cleanup(o.Shutdown)
	return o
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// GenerateTestUser creates a user signing key and a party exchange key.
func GenerateTestUser(t testing.TB) (crypto.PrivateKey, crypto.ExchangePrivateKey) {
	t.Helper()
	_, userKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, partyKey, err := crypto.GenerateExchangeKeyPair()
	require.NoError(t, err)
	return userKey, partyKey
}
