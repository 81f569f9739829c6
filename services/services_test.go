package services

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flashbots/nada-quickstart/crypto"
	"github.com/flashbots/nada-quickstart/ledger"
	"github.com/flashbots/nada-quickstart/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func deployTestDevnet(t *testing.T, envFile string) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(&OrchestratorConfig{
		ClusterID:   "test-devnet",
		NumNodes:    3,
		NodeSeed:    "test-nodes",
		ClusterAddr: "127.0.0.1:0",
		LedgerAddr:  "127.0.0.1:0",
		ChainID:     "nillion-chain-test",
		FundAmount:  1_000_000,
		Prices:      protocol.Prices{StoreProgramBase: 10, StoreValuePerDay: 1, ComputeBase: 5},
		QuoteTTL:    time.Minute,
		EnvFile:     envFile,
		Log:         testLogger(),
	})
	require.NoError(t, o.Deploy())
	t.Cleanup(o.Shutdown)
	return o
}

func getJSON[T any](t *testing.T, url string) (*T, int) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode
	}
	v, err := protocol.DecodeMessage[T](resp.Body)
	require.NoError(t, err)
	return v, resp.StatusCode
}

func TestOrchestratorDeploy(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "nillion", "nillion-devnet.env")
	o := deployTestDevnet(t, envFile)

	data, err := os.ReadFile(envFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	require.Contains(t, lines, protocol.EnvClusterID+"=test-devnet")
	require.Contains(t, lines, protocol.EnvChainID+"=nillion-chain-test")
	require.Contains(t, lines, protocol.EnvClusterURL+"="+o.ClusterURL())
	require.Contains(t, lines, protocol.EnvChainURL+"="+o.LedgerURL())
	require.Contains(t, lines, protocol.EnvPrivateKey+"="+o.Funded.PrivateKeyHex())

	info, status := getJSON[protocol.ClusterInfo](t, o.ClusterURL()+"/cluster")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "test-devnet", info.ClusterID)
	require.Len(t, info.Nodes, 3)
	require.Equal(t, crypto.NodeKeyFromSeed("test-nodes/0").PublicKey(), info.Nodes[0].ExchangeKey)

	chain, status := getJSON[ChainInfo](t, o.LedgerURL()+"/chain")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "nillion-chain-test", chain.ChainID)

	account, status := getJSON[ledger.Account](t, o.LedgerURL()+"/accounts/"+o.Funded.Address())
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, uint64(1_000_000), account.Balance)

	_, status = getJSON[struct{}](t, o.ClusterURL()+"/livez")
	require.Equal(t, http.StatusOK, status)
}

func postSigned[T any](t *testing.T, h http.Handler, path string, key crypto.PrivateKey, req *T) *httptest.ResponseRecorder {
	t.Helper()
	signed, err := protocol.NewSigned(key, req)
	require.NoError(t, err)
	body, err := json.Marshal(signed)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)))
	return w
}

func TestHTTPClusterStatusCodes(t *testing.T) {
	o := deployTestDevnet(t, "")
	r := chi.NewRouter()
	NewHTTPCluster(o.Cluster).RegisterRoutes(r)

	_, userKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	t.Run("quote", func(t *testing.T) {
		w := postSigned(t, r, "/quote", userKey, &protocol.QuoteRequest{
			Operation: protocol.StoreProgramOperation("main", []byte{1, 2, 3}),
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var quote protocol.Signed[protocol.Quote]
		require.NoError(t, json.NewDecoder(w.Body).Decode(&quote))
		info := o.Cluster.Info()
		q, err := quote.RecoverFrom(info.PublicKey)
		require.NoError(t, err)
		require.Equal(t, uint64(10), q.Cost)
		require.Equal(t, info.PaymentAddress, q.PaymentAddress)
	})

	t.Run("unknown program", func(t *testing.T) {
		w := postSigned(t, r, "/quote", userKey, &protocol.QuoteRequest{
			Operation: protocol.ComputeOperation("nobody/main", nil),
		})
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid operation", func(t *testing.T) {
		w := postSigned(t, r, "/quote", userKey, &protocol.QuoteRequest{})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing receipt", func(t *testing.T) {
		w := postSigned(t, r, "/programs", userKey, &protocol.StoreProgramRequest{Name: "main"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown computation", func(t *testing.T) {
		w := postSigned(t, r, "/compute/result", userKey, &protocol.ComputeResultRequest{ComputeID: "missing"})
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("tampered signature", func(t *testing.T) {
		signed, err := protocol.NewSigned(userKey, &protocol.ValuesRequest{StoreID: "a"})
		require.NoError(t, err)
		signed.Object.StoreID = "b"
		body, err := json.Marshal(signed)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/values/retrieve", bytes.NewReader(body)))
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/values", strings.NewReader("{")))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHTTPLedger(t *testing.T) {
	payer, err := ledger.GenerateWallet()
	require.NoError(t, err)
	payee, err := ledger.GenerateWallet()
	require.NoError(t, err)
	l := ledger.New("nillion-chain-test", map[string]uint64{payer.Address(): 100})

	r := chi.NewRouter()
	NewHTTPLedger(l).RegisterRoutes(r)

	submit := func(amount, seq uint64) *httptest.ResponseRecorder {
		stx, err := payer.Sign(&ledger.Transaction{
			ChainID:  "nillion-chain-test",
			From:     payer.Address(),
			To:       payee.Address(),
			Amount:   amount,
			Sequence: seq,
		})
		require.NoError(t, err)
		body, err := json.Marshal(stx)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/txs", bytes.NewReader(body)))
		return w
	}

	w := submit(40, 0)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp SubmitTxResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/txs/"+resp.TxHash, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var rec ledger.TxRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rec))
	require.Equal(t, uint64(40), rec.SignedTx.Tx.Amount)

	require.Equal(t, http.StatusConflict, submit(10, 0).Code)
	require.Equal(t, http.StatusPaymentRequired, submit(1000, 1).Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/txs/UNKNOWN", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts/not-an-address", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
