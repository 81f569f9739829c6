// Command devnet runs a local development network: a payment ledger and a
// compute cluster, each behind its own HTTP server.
//
// On startup the devnet funds a payment account and writes the connection
// settings to an env file (by default ~/.config/nillion/nillion-devnet.env),
// which the quickstart command reads.
//
// # Configuration File
//
//	http_addr: "127.0.0.1:37939"
//	ledger_addr: "127.0.0.1:26648"
//	env_file: "/home/me/.config/nillion/nillion-devnet.env"
//	cluster:
//	  id: "9e68173f-9c23-4acc-ba81-4f079b639964"
//	  nodes: 5
//	  node_seed: ""         # deterministic node keys, random if empty
//	  quote_ttl: 5m
//	  max_value_ttl_days: 0 # unlimited
//	  prices:
//	    store_program_base: 100
//	    store_program_per_kib: 10
//	    store_value_per_day: 2
//	    compute_base: 50
//	    compute_per_value: 1
//	chain:
//	  chain_id: "nillion-chain-devnet"
//	  funded_key: ""        # hex secp256k1 key, generated if empty
//	  fund_amount: 1000000000
//	postgres:               # optional, in-memory store if absent
//	  host: localhost
//	  port: 5432
//	  user: nada
//	  password: nada
//	  database: nada
//
// # Usage
//
//	go run ./cmd/devnet
//	go run ./cmd/devnet --config=devnet.yaml --nodes=3
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flashbots/nada-quickstart/cmd/common"
	"github.com/flashbots/nada-quickstart/services"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		addr       = flag.String("addr", "", "Cluster HTTP listen address")
		ledgerAddr = flag.String("ledger-addr", "", "Ledger HTTP listen address")
		nodes      = flag.Int("nodes", 0, "Number of cluster nodes")
		envFile    = flag.String("env-file", "", "Where to write the client env file")
		fundedKey  = flag.String("funded-key", "", "Hex private key to fund at genesis")
		logJSON    = flag.Bool("log-json", false, "Log in JSON")
	)
	flag.Parse()

	cfg := common.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = common.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *ledgerAddr != "" {
		cfg.LedgerAddr = *ledgerAddr
	}
	if *nodes > 0 {
		cfg.Cluster.Nodes = *nodes
	}
	if *envFile != "" {
		cfg.EnvFile = *envFile
	}
	if *fundedKey != "" {
		cfg.Chain.FundedKey = *fundedKey
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if *logJSON {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	log := slog.New(handler)

	store, closeStore, err := common.NewStore(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	devnet := services.NewOrchestrator(cfg.OrchestratorConfig(store, log))
	if err := devnet.Deploy(); err != nil {
		fmt.Printf("Deploy error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Cluster %s with %d nodes at %s\n", cfg.Cluster.ID, cfg.Cluster.Nodes, devnet.ClusterURL())
	fmt.Printf("Ledger %s at %s\n", cfg.Chain.ChainID, devnet.LedgerURL())
	fmt.Printf("Funded account: %s\n", devnet.Funded.Address())
	if cfg.EnvFile != "" {
		fmt.Printf("Environment written to %s\n", cfg.EnvFile)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("Shutting down devnet...")
	devnet.Shutdown()
}
