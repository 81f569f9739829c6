package services

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/flashbots/nada-quickstart/api/httpserver"
	"github.com/flashbots/nada-quickstart/cluster"
	"github.com/flashbots/nada-quickstart/crypto"
	"github.com/flashbots/nada-quickstart/ledger"
	"github.com/flashbots/nada-quickstart/node"
	"github.com/flashbots/nada-quickstart/protocol"
)

// OrchestratorConfig contains devnet deployment configuration.
type OrchestratorConfig struct {
	ClusterID string
	NumNodes  int
	// NodeSeed derives node keys deterministically. Empty means random keys.
	NodeSeed string

	ClusterAddr string
	LedgerAddr  string

	ChainID string
	// FundedKey is the hex secp256k1 key funded at genesis. Empty generates one.
	FundedKey  string
	FundAmount uint64

	Prices          protocol.Prices
	QuoteTTL        time.Duration
	MaxValueTTLDays uint32

	// Store defaults to an in-memory store.
	Store cluster.Store

	// EnvFile is written after deployment when set.
	EnvFile string

	Log *slog.Logger
}

// Orchestrator runs a devnet: one ledger and one cluster, each behind its
// own HTTP server.
type Orchestrator struct {
	config *OrchestratorConfig
	log    *slog.Logger

	Ledger  *ledger.Ledger
	Cluster *cluster.Cluster
	Funded  *ledger.Wallet

	ledgerServer  *httpserver.BaseServer
	clusterServer *httpserver.BaseServer
}

// NewOrchestrator creates a devnet orchestrator.
func NewOrchestrator(config *OrchestratorConfig) *Orchestrator {
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{config: config, log: log}
}

// Deploy creates the ledger and cluster, starts both servers and writes the
// env file.
func (o *Orchestrator) Deploy() error {
	cfg := o.config
	if cfg.NumNodes <= 0 {
		return errors.New("at least one node is required")
	}

	var err error
	if cfg.FundedKey != "" {
		o.Funded, err = ledger.NewWalletFromHex(cfg.FundedKey)
	} else {
		o.Funded, err = ledger.GenerateWallet()
	}
	if err != nil {
		return fmt.Errorf("funded wallet: %w", err)
	}
	payee, err := ledger.GenerateWallet()
	if err != nil {
		return fmt.Errorf("payment wallet: %w", err)
	}
	o.Ledger = ledger.New(cfg.ChainID, map[string]uint64{o.Funded.Address(): cfg.FundAmount})

	_, signingKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate cluster key: %w", err)
	}

	nodes := make([]*node.Node, cfg.NumNodes)
	for i := range nodes {
		var key crypto.ExchangePrivateKey
		if cfg.NodeSeed != "" {
			key = crypto.NodeKeyFromSeed(fmt.Sprintf("%s/%d", cfg.NodeSeed, i))
		} else if _, key, err = crypto.GenerateExchangeKeyPair(); err != nil {
			return fmt.Errorf("generate node key: %w", err)
		}
		nodes[i] = node.New(i, cfg.ClusterID, key)
	}

	store := cfg.Store
	if store == nil {
		store = cluster.NewInMemoryStore()
	}

	o.Cluster, err = cluster.New(&cluster.Config{
		ClusterID:       cfg.ClusterID,
		SigningKey:      signingKey,
		PaymentAddress:  payee.Address(),
		ChainID:         cfg.ChainID,
		Nodes:           nodes,
		Prices:          cfg.Prices,
		QuoteTTL:        cfg.QuoteTTL,
		MaxValueTTLDays: cfg.MaxValueTTLDays,
		Store:           store,
		Payments:        o.Ledger,
		Log:             o.log,
	})
	if err != nil {
		return fmt.Errorf("create cluster: %w", err)
	}

	o.ledgerServer, err = o.startServer(cfg.LedgerAddr, "ledger", NewHTTPLedger(o.Ledger))
	if err != nil {
		o.Cluster.Close()
		return err
	}
	o.clusterServer, err = o.startServer(cfg.ClusterAddr, "cluster", NewHTTPCluster(o.Cluster))
	if err != nil {
		o.ledgerServer.Shutdown()
		o.Cluster.Close()
		return err
	}

	o.log.Info("devnet running",
		"clusterID", cfg.ClusterID,
		"nodes", cfg.NumNodes,
		"clusterURL", o.ClusterURL(),
		"ledgerURL", o.LedgerURL(),
		"fundedAddress", o.Funded.Address(),
	)

	if cfg.EnvFile != "" {
		if err := WriteEnvFile(cfg.EnvFile, o.Env()); err != nil {
			o.Shutdown()
			return fmt.Errorf("write env file: %w", err)
		}
		o.log.Info("wrote env file", "path", cfg.EnvFile)
	}
	return nil
}

func (o *Orchestrator) startServer(addr, name string, routes httpserver.RouteRegistrar) (*httpserver.BaseServer, error) {
	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               addr,
		Log:                      o.log.With("service", name),
		DrainDuration:            time.Second,
		GracefulShutdownDuration: 5 * time.Second,
		ReadTimeout:              30 * time.Second,
		WriteTimeout:             30 * time.Second,
	}, routes)
	if err != nil {
		return nil, fmt.Errorf("create %s server: %w", name, err)
	}
	if err := srv.RunInBackground(); err != nil {
		return nil, fmt.Errorf("start %s server: %w", name, err)
	}
	return srv, nil
}

// ClusterURL is the base URL of the cluster API.
func (o *Orchestrator) ClusterURL() string {
	return "http://" + o.clusterServer.Addr()
}

// LedgerURL is the base URL of the ledger API.
func (o *Orchestrator) LedgerURL() string {
	return "http://" + o.ledgerServer.Addr()
}

// Env returns the connection settings for clients of this devnet.
func (o *Orchestrator) Env() map[string]string {
	return map[string]string{
		protocol.EnvClusterID:  o.config.ClusterID,
		protocol.EnvClusterURL: o.ClusterURL(),
		protocol.EnvChainURL:   o.LedgerURL(),
		protocol.EnvChainID:    o.config.ChainID,
		protocol.EnvPrivateKey: o.Funded.PrivateKeyHex(),
	}
}

// Shutdown stops both servers and the cluster workers.
func (o *Orchestrator) Shutdown() {
	if o.clusterServer != nil {
		o.clusterServer.Shutdown()
	}
	if o.ledgerServer != nil {
		o.ledgerServer.Shutdown()
	}
	if o.Cluster != nil {
		o.Cluster.Close()
	}
}

// WriteEnvFile writes env as KEY=value lines in key order, creating parent
// directories. The file holds a private key and is written with mode 0600.
func WriteEnvFile(path string, env map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, env[k])
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}
