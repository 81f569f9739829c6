/*
Package services runs the devnet behind HTTP.

# Components

HTTPCluster wraps a cluster.Cluster. Every POST body is a protocol.Signed
request; the signer's user id identifies the caller.

  - GET /cluster: cluster id, quote key, payment address, nodes and prices
  - POST /quote: price an operation
  - POST /programs: store a compiled program
  - POST /values: store a value set
  - POST /values/retrieve, POST /values/delete: manage a value set
  - POST /compute: start a computation
  - POST /compute/result: poll a computation as one of its output parties

HTTPLedger wraps a ledger.Ledger:

  - GET /chain: chain id and height
  - GET /accounts/{address}: balance and sequence
  - POST /txs: submit a signed transaction
  - GET /txs/{hash}: look up an included transaction

PostgresStore persists cluster state in PostgreSQL.

Orchestrator deploys a ledger and a cluster on two api/httpserver servers and
writes the env file read by the quickstart:

	o := services.NewOrchestrator(&services.OrchestratorConfig{
		ClusterID:   "devnet",
		NumNodes:    3,
		ClusterAddr: "localhost:37939",
		LedgerAddr:  "localhost:26648",
		ChainID:     "nillion-chain-devnet",
		FundAmount:  1_000_000_000,
		EnvFile:     os.ExpandEnv("$HOME/.config/nillion/nillion-devnet.env"),
	})
	if err := o.Deploy(); err != nil {
		return err
	}
	defer o.Shutdown()
*/
package services
