package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flashbots/nada-quickstart/programs"
	"github.com/flashbots/nada-quickstart/protocol"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devnet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: "127.0.0.1:9000"
cluster:
  id: my-cluster
  nodes: 3
  quote_ttl: 30s
  prices:
    compute_base: 7
chain:
  chain_id: my-chain
postgres:
  host: db
  port: 5433
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	require.Equal(t, DefaultConfig().LedgerAddr, cfg.LedgerAddr)
	require.Equal(t, 30*time.Second, cfg.Cluster.QuoteTTL)
	require.Equal(t, uint64(7), cfg.Cluster.Prices.ComputeBase)
	require.Equal(t, DefaultConfig().Cluster.Prices.StoreProgramBase, cfg.Cluster.Prices.StoreProgramBase)
	require.Equal(t, "db", cfg.Postgres.Host)
	require.Equal(t, 5433, cfg.Postgres.Port)

	oc := cfg.OrchestratorConfig(nil, nil)
	require.Equal(t, "my-cluster", oc.ClusterID)
	require.Equal(t, 3, oc.NumNodes)
	require.Equal(t, "my-chain", oc.ChainID)
	require.Equal(t, uint64(7), oc.Prices.ComputeBase)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Cluster.Nodes = 0
	require.ErrorContains(t, cfg.Validate(), "cluster.nodes")

	cfg = DefaultConfig()
	cfg.Chain.ChainID = ""
	require.ErrorContains(t, cfg.Validate(), "chain.chain_id")
}

func TestNewStoreDefaultsToMemory(t *testing.T) {
	store, closeStore, err := NewStore(DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, closeStore())
}

func TestParseInputs(t *testing.T) {
	artifact, err := programs.Compile("main")
	require.NoError(t, err)

	values, err := ParseInputs(artifact, []string{"data_sensor_a=5", "threshold=-4"})
	require.NoError(t, err)
	require.Equal(t, protocol.NadaValues{
		"data_sensor_a": protocol.NewSecretInteger(5),
		"threshold":     protocol.NewPublicInteger(-4),
	}, values)

	_, err = ParseInputs(artifact, []string{"data_sensor_a"})
	require.ErrorContains(t, err, "name=value")
	_, err = ParseInputs(artifact, []string{"unknown=1"})
	require.ErrorContains(t, err, "no input unknown")
	_, err = ParseInputs(artifact, []string{"data_sensor_a=five"})
	require.Error(t, err)
}
