package quickstart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/flashbots/nada-quickstart/client"
	"github.com/flashbots/nada-quickstart/crypto"
	"github.com/flashbots/nada-quickstart/ledger"
	"github.com/flashbots/nada-quickstart/nada"
	"github.com/flashbots/nada-quickstart/protocol"
)

var (
	ErrArtifactNotFound    = fmt.Errorf("program artifact not found: %w", fs.ErrNotExist)
	ErrArtifactNotReadable = fmt.Errorf("program artifact not readable: %w", fs.ErrPermission)
)

// ComputeFailedError is returned when the network reports a failed computation.
type ComputeFailedError struct {
	ComputeID string
	Reason    string
}

func (e *ComputeFailedError) Error() string {
	return fmt.Sprintf("computation %s failed: %s", e.ComputeID, e.Reason)
}

// Network is the cluster API the quickstart uses.
type Network interface {
	client.Quoter
	UserID() string
	PartyID() string
	StoreProgram(ctx context.Context, name string, artifact []byte, paid *client.PaidOperation) (*protocol.StoreProgramResponse, error)
	StoreValues(ctx context.Context, values protocol.NadaValues, permissions *protocol.Permissions, ttlDays uint32, paid *client.PaidOperation) (string, error)
	Compute(ctx context.Context, bindings *protocol.ProgramBindings, storeIDs []string, values protocol.NadaValues, paid *client.PaidOperation) (string, error)
	NextComputeEvent(ctx context.Context) (protocol.ComputeEvent, error)
}

// Deps are the collaborators of Run.
type Deps struct {
	NewNetwork func(ctx context.Context, cfg *Config, userKey crypto.PrivateKey, nodeKey crypto.ExchangePrivateKey) (Network, error)
	NewPayer   func(ctx context.Context, cfg *Config) (client.Payer, error)
	// Programs is rooted at the program directory. Defaults to os.DirFS(cfg.ProgramDir).
	Programs fs.FS
	Stdout   io.Writer
}

// DefaultDeps connects to the cluster and the payment chain over HTTP.
func DefaultDeps() *Deps {
	return &Deps{
		NewNetwork: func(ctx context.Context, cfg *Config, userKey crypto.PrivateKey, nodeKey crypto.ExchangePrivateKey) (Network, error) {
			return client.Dial(ctx, &client.NetworkConfig{
				ClusterURL:   cfg.ClusterURL,
				ClusterID:    cfg.ClusterID,
				UserKey:      userKey,
				PartyKey:     nodeKey,
				PollInterval: cfg.PollInterval,
			})
		},
		NewPayer: func(ctx context.Context, cfg *Config) (client.Payer, error) {
			wallet, err := ledger.NewWalletFromHex(cfg.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("load payment key: %w", err)
			}
			return client.NewLedgerPayer(client.NewLedgerClient(cfg.ChainURL, nil), wallet, cfg.ChainID), nil
		},
		Stdout: os.Stdout,
	}
}

// Result carries the identifiers and outputs of one run.
type Result struct {
	ActionID  string
	ProgramID string
	StoreID   string
	ComputeID string
	Outputs   protocol.NadaValues
}

// Inputs are the values the quickstart stores for the sensor program.
func Inputs() protocol.NadaValues {
	return protocol.NadaValues{
		"data_sensor_a":        protocol.NewSecretInteger(5),
		"data_sensor_b":        protocol.NewSecretInteger(7),
		"data_sensor_c":        protocol.NewSecretInteger(3),
		"threshold":            protocol.NewPublicInteger(4),
		"total_data_threshold": protocol.NewPublicInteger(10),
	}
}

// Parties of the sensor program, all bound to the running client.
var (
	inputParties = []string{"SensorA", "SensorB", "SensorC", "Aggregator"}
	outputParty  = "Aggregator"
)

// ReadArtifact reads the compiled program from fsys.
func ReadArtifact(fsys fs.FS, programName string) ([]byte, error) {
	name := nada.ArtifactFileName(programName)
	data, err := fs.ReadFile(fsys, name)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotReadable, name)
	}
	return nil, fmt.Errorf("read %s: %w", name, err)
}

// Run stores the program and the sensor values, runs the computation and
// prints its outputs. Every chargeable call is quoted and paid first.
func Run(ctx context.Context, cfg *Config, deps *Deps) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	programs := deps.Programs
	if programs == nil {
		programs = os.DirFS(cfg.ProgramDir)
	}
	out := deps.Stdout
	if out == nil {
		out = io.Discard
	}

	artifact, err := ReadArtifact(programs, cfg.ProgramName)
	if err != nil {
		return nil, err
	}

	network, err := deps.NewNetwork(ctx, cfg, crypto.UserKeyFromSeed(cfg.Seed), crypto.NodeKeyFromSeed(cfg.Seed))
	if err != nil {
		return nil, err
	}
	payer, err := deps.NewPayer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res := &Result{}

	paid, err := client.GetQuoteAndPay(ctx, network, protocol.StoreProgramOperation(cfg.ProgramName, artifact), payer)
	if err != nil {
		return nil, err
	}
	stored, err := network.StoreProgram(ctx, cfg.ProgramName, artifact, paid)
	if err != nil {
		return nil, err
	}
	res.ActionID, res.ProgramID = stored.ActionID, stored.ProgramID
	fmt.Fprintf(out, "Stored program. action_id: %s\n", res.ActionID)
	fmt.Fprintf(out, "Stored program_id: %s\n", res.ProgramID)

	values := Inputs()
	permissions := protocol.DefaultPermissionsForUser(network.UserID())
	permissions.AddComputePermissions(map[string][]string{network.UserID(): {res.ProgramID}})

	paid, err = client.GetQuoteAndPay(ctx, network, protocol.StoreValuesOperation(values, cfg.TTLDays), payer)
	if err != nil {
		return nil, err
	}
	res.StoreID, err = network.StoreValues(ctx, values, permissions, cfg.TTLDays, paid)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Stored secrets. store_id: %s\n", res.StoreID)

	bindings := protocol.NewProgramBindings(res.ProgramID)
	for _, party := range inputParties {
		bindings.AddInputParty(party, network.PartyID())
	}
	bindings.AddOutputParty(outputParty, network.PartyID())

	paid, err = client.GetQuoteAndPay(ctx, network, protocol.ComputeOperation(res.ProgramID, nil), payer)
	if err != nil {
		return nil, err
	}
	res.ComputeID, err = network.Compute(ctx, bindings, []string{res.StoreID}, nil, paid)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Computation sent to network. compute_id: %s\n", res.ComputeID)

	res.Outputs, err = awaitResult(ctx, cfg, network, res.ComputeID)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Compute complete for compute_id %s\n", res.ComputeID)
	for _, name := range res.Outputs.Names() {
		fmt.Fprintf(out, "Output %s: %s\n", name, res.Outputs[name])
	}
	return res, nil
}

// awaitResult waits for the event of computeID, bounded by cfg.ComputeTimeout.
func awaitResult(ctx context.Context, cfg *Config, network Network, computeID string) (protocol.NadaValues, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ComputeTimeout)
	defer cancel()

	for {
		event, err := network.NextComputeEvent(ctx)
		if err != nil {
			return nil, fmt.Errorf("wait for compute %s: %w", computeID, err)
		}
		if event.ComputeID() != computeID {
			continue
		}
		switch e := event.(type) {
		case *protocol.ComputeFinishedEvent:
			return e.Result, nil
		case *protocol.ComputeFailedEvent:
			return nil, &ComputeFailedError{ComputeID: computeID, Reason: e.Error}
		}
		return nil, fmt.Errorf("unexpected event %T for compute %s", event, computeID)
	}
}
