package quickstart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/flashbots/nada-quickstart/client"
	"github.com/flashbots/nada-quickstart/crypto"
	"github.com/flashbots/nada-quickstart/nada"
	"github.com/flashbots/nada-quickstart/programs"
	"github.com/flashbots/nada-quickstart/protocol"
	"github.com/flashbots/nada-quickstart/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mainArtifactFS(t *testing.T) fstest.MapFS {
	t.Helper()
	artifact, err := programs.Compile("main")
	require.NoError(t, err)
	data, err := nada.EncodeArtifact(artifact)
	require.NoError(t, err)
	return fstest.MapFS{nada.ArtifactFileName("main"): {Data: data}}
}

func testConfig() *Config {
	return &Config{
		ClusterID:      "cluster",
		ClusterURL:     "http://cluster",
		ChainURL:       "http://chain",
		ChainID:        "chain",
		PrivateKey:     "00",
		Seed:           DefaultSeed,
		ProgramName:    "main",
		TTLDays:        DefaultTTLDays,
		ComputeTimeout: time.Second,
	}
}

// recorder logs the calls made by Run in order.
type recorder struct {
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

type fakeNetwork struct {
	rec    *recorder
	key    crypto.PrivateKey
	events func(ctx context.Context, computeID string) (protocol.ComputeEvent, error)

	counter   int
	computeID string
}

func newFakeNetwork(t *testing.T, rec *recorder) *fakeNetwork {
	_, key, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return &fakeNetwork{
		rec: rec,
		key: key,
		events: func(_ context.Context, computeID string) (protocol.ComputeEvent, error) {
			return &protocol.ComputeFinishedEvent{ID: computeID, Result: protocol.NadaValues{
				"total_data":         protocol.NewSecretInteger(15),
				"is_total_data_high": protocol.NewSecretBoolean(true),
			}}, nil
		},
	}
}

func (f *fakeNetwork) nextID(prefix string) string {
	f.counter++
	return fmt.Sprintf("%s-%d", prefix, f.counter)
}

func (f *fakeNetwork) UserID() string  { return "user" }
func (f *fakeNetwork) PartyID() string { return "party" }

func (f *fakeNetwork) RequestQuote(_ context.Context, op *protocol.Operation) (*protocol.Signed[protocol.Quote], error) {
	f.rec.add("quote %s", op.Kind)
	digest, err := op.Digest()
	if err != nil {
		return nil, err
	}
	return protocol.NewSigned(f.key, &protocol.Quote{
		Nonce:           f.nextID("nonce"),
		OperationKind:   op.Kind,
		OperationDigest: digest,
		Cost:            1,
	})
}

func (f *fakeNetwork) receipt(kind protocol.OperationKind, paid *client.PaidOperation) error {
	receipt, err := paid.Receipt()
	if err != nil {
		return err
	}
	if receipt.Quote.Object.OperationKind != kind {
		return fmt.Errorf("receipt for %s used for %s", receipt.Quote.Object.OperationKind, kind)
	}
	f.rec.add("submit %s", kind)
	return nil
}

func (f *fakeNetwork) StoreProgram(_ context.Context, name string, _ []byte, paid *client.PaidOperation) (*protocol.StoreProgramResponse, error) {
	if err := f.receipt(protocol.OperationStoreProgram, paid); err != nil {
		return nil, err
	}
	return &protocol.StoreProgramResponse{ActionID: f.nextID("action"), ProgramID: f.UserID() + "/" + name}, nil
}

func (f *fakeNetwork) StoreValues(_ context.Context, values protocol.NadaValues, permissions *protocol.Permissions, _ uint32, paid *client.PaidOperation) (string, error) {
	if err := f.receipt(protocol.OperationStoreValues, paid); err != nil {
		return "", err
	}
	if !permissions.CanCompute(f.UserID(), f.UserID()+"/main") {
		return "", errors.New("missing compute permission")
	}
	return f.nextID("store"), nil
}

func (f *fakeNetwork) Compute(_ context.Context, bindings *protocol.ProgramBindings, storeIDs []string, _ protocol.NadaValues, paid *client.PaidOperation) (string, error) {
	if err := f.receipt(protocol.OperationCompute, paid); err != nil {
		return "", err
	}
	if len(bindings.InputParties) != 4 || bindings.OutputParties["Aggregator"] != f.PartyID() || len(storeIDs) != 1 {
		return "", errors.New("unexpected compute request")
	}
	f.computeID = f.nextID("compute")
	return f.computeID, nil
}

func (f *fakeNetwork) NextComputeEvent(ctx context.Context) (protocol.ComputeEvent, error) {
	f.rec.add("event")
	return f.events(ctx, f.computeID)
}

type fakePayer struct {
	rec *recorder
}

func (p *fakePayer) Pay(_ context.Context, quote *protocol.Quote) (string, error) {
	p.rec.add("pay %s", quote.OperationKind)
	return "TX-" + quote.Nonce, nil
}

func fakeDeps(network *fakeNetwork, rec *recorder, programs fs.FS, out *bytes.Buffer) *Deps {
	deps := &Deps{
		NewNetwork: func(context.Context, *Config, crypto.PrivateKey, crypto.ExchangePrivateKey) (Network, error) {
			rec.add("network")
			return network, nil
		},
		NewPayer: func(context.Context, *Config) (client.Payer, error) {
			rec.add("payer")
			return &fakePayer{rec: rec}, nil
		},
		Programs: programs,
	}
	if out != nil {
		deps.Stdout = out
	}
	return deps
}

// permissionFS fails every open with a permission error.
type permissionFS struct{}

func (permissionFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
}

func TestArtifactPreconditions(t *testing.T) {
	tests := []struct {
		name     string
		programs fs.FS
		want     error
		wantFS   error
	}{
		{"not found", fstest.MapFS{}, ErrArtifactNotFound, fs.ErrNotExist},
		{"not readable", permissionFS{}, ErrArtifactNotReadable, fs.ErrPermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			var out bytes.Buffer
			_, err := Run(context.Background(), testConfig(), fakeDeps(newFakeNetwork(t, rec), rec, tt.programs, &out))
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, tt.wantFS)
			require.Empty(t, rec.calls)
			require.Empty(t, out.String())
		})
	}
}

func TestRunQuotesAndPaysBeforeSubmitting(t *testing.T) {
	rec := &recorder{}
	var out bytes.Buffer
	network := newFakeNetwork(t, rec)

	res, err := Run(context.Background(), testConfig(), fakeDeps(network, rec, mainArtifactFS(t), &out))
	require.NoError(t, err)

	require.Equal(t, []string{
		"network",
		"payer",
		"quote store_program", "pay store_program", "submit store_program",
		"quote store_values", "pay store_values", "submit store_values",
		"quote compute", "pay compute", "submit compute",
		"event",
	}, rec.calls)

	assert.Equal(t, "user/main", res.ProgramID)
	assert.Equal(t, strings.Join([]string{
		"Stored program. action_id: " + res.ActionID,
		"Stored program_id: user/main",
		"Stored secrets. store_id: " + res.StoreID,
		"Computation sent to network. compute_id: " + res.ComputeID,
		"Compute complete for compute_id " + res.ComputeID,
		"Output is_total_data_high: true",
		"Output total_data: 15",
	}, "\n")+"\n", out.String())
}

func TestRunSkipsOtherComputations(t *testing.T) {
	rec := &recorder{}
	network := newFakeNetwork(t, rec)
	finished := network.events
	seen := 0
	network.events = func(ctx context.Context, computeID string) (protocol.ComputeEvent, error) {
		seen++
		if seen == 1 {
			return &protocol.ComputeFinishedEvent{ID: "someone-else"}, nil
		}
		return finished(ctx, computeID)
	}

	res, err := Run(context.Background(), testConfig(), fakeDeps(network, rec, mainArtifactFS(t), nil))
	require.NoError(t, err)
	assert.Equal(t, 2, seen)
	assert.Equal(t, protocol.NewSecretInteger(15), res.Outputs["total_data"])
}

func TestRunComputeFailure(t *testing.T) {
	rec := &recorder{}
	network := newFakeNetwork(t, rec)
	network.events = func(_ context.Context, computeID string) (protocol.ComputeEvent, error) {
		return &protocol.ComputeFailedEvent{ID: computeID, Error: "overflow"}, nil
	}

	_, err := Run(context.Background(), testConfig(), fakeDeps(network, rec, mainArtifactFS(t), nil))
	var failed *ComputeFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "overflow", failed.Reason)
}

func TestRunComputeTimeout(t *testing.T) {
	rec := &recorder{}
	network := newFakeNetwork(t, rec)
	network.events = func(ctx context.Context, _ string) (protocol.ComputeEvent, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	cfg := testConfig()
	cfg.ComputeTimeout = 20 * time.Millisecond
	_, err := Run(context.Background(), cfg, fakeDeps(network, rec, mainArtifactFS(t), nil))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	network.events = func(ctx context.Context, _ string) (protocol.ComputeEvent, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	_, err = Run(ctx, testConfig(), fakeDeps(network, rec, mainArtifactFS(t), nil))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunRequiresBoundedWait(t *testing.T) {
	for _, timeout := range []time.Duration{0, -time.Second} {
		rec := &recorder{}
		cfg := testConfig()
		cfg.ComputeTimeout = timeout
		_, err := Run(context.Background(), cfg, fakeDeps(newFakeNetwork(t, rec), rec, mainArtifactFS(t), nil))
		require.ErrorContains(t, err, "compute timeout must be positive")
		require.Empty(t, rec.calls)
	}
}

func TestRemoteErrorsPropagate(t *testing.T) {
	rec := &recorder{}
	deps := fakeDeps(newFakeNetwork(t, rec), rec, mainArtifactFS(t), nil)
	remote := &client.RemoteError{StatusCode: 402, Message: "payment invalid"}
	deps.NewPayer = func(context.Context, *Config) (client.Payer, error) {
		return nil, remote
	}

	_, err := Run(context.Background(), testConfig(), deps)
	require.ErrorIs(t, err, remote)
}

func TestRunAgainstDevnet(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "nillion-devnet.env")
	testutil.StartDevnet(t, testutil.WithEnvFile(envFile))

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ComputeTimeout = 10 * time.Second

	deps := DefaultDeps()
	deps.Programs = mainArtifactFS(t)
	var out bytes.Buffer
	deps.Stdout = &out

	first, err := Run(context.Background(), cfg, deps)
	require.NoError(t, err)
	assert.Equal(t, protocol.NadaValues{
		"total_data":         protocol.NewSecretInteger(15),
		"is_total_data_high": protocol.NewSecretBoolean(true),
	}, first.Outputs)
	assert.Contains(t, out.String(), "Output total_data: 15\n")
	assert.Contains(t, out.String(), "Output is_total_data_high: true\n")

	second, err := Run(context.Background(), cfg, deps)
	require.NoError(t, err)
	assert.Equal(t, first.ProgramID, second.ProgramID)
	assert.NotEqual(t, first.ActionID, second.ActionID)
	assert.NotEqual(t, first.StoreID, second.StoreID)
	assert.NotEqual(t, first.ComputeID, second.ComputeID)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "nillion-devnet.env")
	require.NoError(t, os.WriteFile(envFile, []byte(strings.Join([]string{
		protocol.EnvClusterID + "=cluster-from-file",
		protocol.EnvClusterURL + "=http://127.0.0.1:1",
		protocol.EnvChainURL + "=http://127.0.0.1:2",
		protocol.EnvChainID + "=chain-from-file",
		protocol.EnvPrivateKey + "=abcd",
	}, "\n")), 0o600))

	t.Setenv(protocol.EnvChainID, "chain-from-env")
	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)
	assert.Equal(t, "cluster-from-file", cfg.ClusterID)
	assert.Equal(t, "chain-from-env", cfg.ChainID)
	assert.Equal(t, "abcd", cfg.PrivateKey)
	assert.Equal(t, DefaultProgramName, cfg.ProgramName)
	assert.Equal(t, uint32(DefaultTTLDays), cfg.TTLDays)
	assert.Equal(t, DefaultComputeTimeout, cfg.ComputeTimeout)

	_, err = LoadConfig(filepath.Join(dir, "missing.env"))
	require.Error(t, err)
}
