// Package common provides shared utilities for the nada-quickstart commands.
//
// It holds the YAML configuration of the devnet command and the helpers that
// turn it into an orchestrator configuration:
//
//   - Config loading with defaults
//   - Value store selection (in-memory or Postgres)
//   - Input value parsing for cleartext program runs
package common

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flashbots/nada-quickstart/cluster"
	"github.com/flashbots/nada-quickstart/nada"
	"github.com/flashbots/nada-quickstart/protocol"
	"github.com/flashbots/nada-quickstart/quickstart"
	"github.com/flashbots/nada-quickstart/services"
	"gopkg.in/yaml.v3"
)

// Config is the devnet configuration file.
type Config struct {
	HTTPAddr   string `yaml:"http_addr"`
	LedgerAddr string `yaml:"ledger_addr"`
	// EnvFile receives the connection settings for clients.
	EnvFile string `yaml:"env_file"`

	Cluster ClusterConfig `yaml:"cluster"`
	Chain   ChainConfig   `yaml:"chain"`

	// Postgres enables the persistent value store when set.
	Postgres *services.PostgresConfig `yaml:"postgres"`
}

// ClusterConfig configures the compute cluster.
type ClusterConfig struct {
	ID              string        `yaml:"id"`
	Nodes           int           `yaml:"nodes"`
	NodeSeed        string        `yaml:"node_seed"`
	QuoteTTL        time.Duration `yaml:"quote_ttl"`
	MaxValueTTLDays uint32        `yaml:"max_value_ttl_days"`
	Prices          PricesConfig  `yaml:"prices"`
}

// PricesConfig lists operation prices in the chain's base unit.
type PricesConfig struct {
	StoreProgramBase   uint64 `yaml:"store_program_base"`
	StoreProgramPerKiB uint64 `yaml:"store_program_per_kib"`
	StoreValuePerDay   uint64 `yaml:"store_value_per_day"`
	ComputeBase        uint64 `yaml:"compute_base"`
	ComputePerValue    uint64 `yaml:"compute_per_value"`
}

// ChainConfig configures the payment chain.
type ChainConfig struct {
	ChainID string `yaml:"chain_id"`
	// FundedKey is the hex private key funded at genesis; generated if empty.
	FundedKey  string `yaml:"funded_key"`
	FundAmount uint64 `yaml:"fund_amount"`
}

// DefaultConfig returns the settings of a local devnet.
func DefaultConfig() *Config {
	envFile, _ := quickstart.DefaultEnvFile()
	return &Config{
		HTTPAddr:   "127.0.0.1:37939",
		LedgerAddr: "127.0.0.1:26648",
		EnvFile:    envFile,
		Cluster: ClusterConfig{
			ID:       "9e68173f-9c23-4acc-ba81-4f079b639964",
			Nodes:    5,
			QuoteTTL: 5 * time.Minute,
			Prices: PricesConfig{
				StoreProgramBase:   100,
				StoreProgramPerKiB: 10,
				StoreValuePerDay:   2,
				ComputeBase:        50,
				ComputePerValue:    1,
			},
		},
		Chain: ChainConfig{
			ChainID:    "nillion-chain-devnet",
			FundAmount: 1_000_000_000,
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the orchestrator cannot default.
func (c *Config) Validate() error {
	if c.Cluster.ID == "" {
		return fmt.Errorf("cluster.id is required")
	}
	if c.Cluster.Nodes <= 0 {
		return fmt.Errorf("cluster.nodes must be positive, got %d", c.Cluster.Nodes)
	}
	if c.Chain.ChainID == "" {
		return fmt.Errorf("chain.chain_id is required")
	}
	return nil
}

// Prices converts the configured prices.
func (p PricesConfig) Prices() protocol.Prices {
	return protocol.Prices{
		StoreProgramBase:   p.StoreProgramBase,
		StoreProgramPerKiB: p.StoreProgramPerKiB,
		StoreValuePerDay:   p.StoreValuePerDay,
		ComputeBase:        p.ComputeBase,
		ComputePerValue:    p.ComputePerValue,
	}
}

// NewStore opens the configured value store. The returned close function
// is always non-nil.
func NewStore(cfg *Config) (cluster.Store, func() error, error) {
	if cfg.Postgres == nil {
		return cluster.NewInMemoryStore(), func() error { return nil }, nil
	}
	store, err := services.NewPostgresStore(cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres store: %w", err)
	}
	return store, store.Close, nil
}

// OrchestratorConfig turns the file configuration into a deployment.
func (c *Config) OrchestratorConfig(store cluster.Store, log *slog.Logger) *services.OrchestratorConfig {
	return &services.OrchestratorConfig{
		ClusterID:       c.Cluster.ID,
		NumNodes:        c.Cluster.Nodes,
		NodeSeed:        c.Cluster.NodeSeed,
		ClusterAddr:     c.HTTPAddr,
		LedgerAddr:      c.LedgerAddr,
		ChainID:         c.Chain.ChainID,
		FundedKey:       c.Chain.FundedKey,
		FundAmount:      c.Chain.FundAmount,
		Prices:          c.Cluster.Prices.Prices(),
		QuoteTTL:        c.Cluster.QuoteTTL,
		MaxValueTTLDays: c.Cluster.MaxValueTTLDays,
		Store:           store,
		EnvFile:         c.EnvFile,
		Log:             log,
	}
}

// ParseInputs parses name=value pairs into values typed by the artifact's
// input declarations.
func ParseInputs(a *nada.Artifact, pairs []string) (protocol.NadaValues, error) {
	values := make(protocol.NadaValues, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("input %q: expected name=value", pair)
		}
		in, ok := a.Input(name)
		if !ok {
			return nil, fmt.Errorf("program %s has no input %s", a.Name, name)
		}

		v := protocol.NadaValue{Type: in.Type}
		var err error
		if in.Type.IsBoolean() {
			v.Boolean, err = strconv.ParseBool(raw)
		} else {
			v.Integer, err = strconv.ParseInt(raw, 10, 64)
		}
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", name, err)
		}
		values[name] = v
	}
	return values, nil
}
