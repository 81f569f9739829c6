package protocol

import (
	"github.com/flashbots/nada-quickstart/crypto"
)

// ProgramBindings map the program's party names to runtime party ids.
type ProgramBindings struct {
	ProgramID     string            `json:"program_id"`
	InputParties  map[string]string `json:"input_parties"`
	OutputParties map[string]string `json:"output_parties"`
}

// NewProgramBindings creates empty bindings for programID.
func NewProgramBindings(programID string) *ProgramBindings {
	return &ProgramBindings{
		ProgramID:     programID,
		InputParties:  map[string]string{},
		OutputParties: map[string]string{},
	}
}

// AddInputParty binds the program party name as an input provider.
func (b *ProgramBindings) AddInputParty(name, partyID string) {
	b.InputParties[name] = partyID
}

// AddOutputParty binds the program party name as an output receiver.
func (b *ProgramBindings) AddOutputParty(name, partyID string) {
	b.OutputParties[name] = partyID
}

// ComputeStatus is the lifecycle state of a computation.
type ComputeStatus string

const (
	ComputePending  ComputeStatus = "pending"
	ComputeFinished ComputeStatus = "finished"
	ComputeFailed   ComputeStatus = "failed"
)

// ComputeEvent is delivered to a client once a computation leaves the pending state.
type ComputeEvent interface {
	ComputeID() string
}

// ComputeFinishedEvent carries the outputs revealed to the receiving party.
type ComputeFinishedEvent struct {
	ID     string
	Result NadaValues
}

func (e *ComputeFinishedEvent) ComputeID() string { return e.ID }

// ComputeFailedEvent reports a computation the cluster could not complete.
type ComputeFailedEvent struct {
	ID    string
	Error string
}

func (e *ComputeFailedEvent) ComputeID() string { return e.ID }

// NodeInfo describes one cluster node.
type NodeInfo struct {
	Index       int                      `json:"index"`
	ExchangeKey crypto.ExchangePublicKey `json:"exchange_key"`
}

// Prices is the cluster pricing table, in the chain's smallest unit.
type Prices struct {
	StoreProgramBase   uint64 `json:"store_program_base"`
	StoreProgramPerKiB uint64 `json:"store_program_per_kib"`
	StoreValuePerDay   uint64 `json:"store_value_per_day"`
	ComputeBase        uint64 `json:"compute_base"`
	ComputePerValue    uint64 `json:"compute_per_value"`
}

// ClusterInfo is published by the cluster for clients to connect.
type ClusterInfo struct {
	ClusterID      string           `json:"cluster_id"`
	PublicKey      crypto.PublicKey `json:"public_key"`
	PaymentAddress string           `json:"payment_address"`
	ChainID        string           `json:"chain_id"`
	Nodes          []NodeInfo       `json:"nodes"`
	Prices         Prices           `json:"prices"`
}

// QuoteRequest asks for the price of an operation.
type QuoteRequest struct {
	Operation *Operation `json:"operation"`
}

// StoreProgramRequest uploads a compiled artifact.
type StoreProgramRequest struct {
	Name     string   `json:"name"`
	Artifact []byte   `json:"artifact"`
	Receipt  *Receipt `json:"receipt"`
}

// StoreProgramResponse identifies the stored program.
type StoreProgramResponse struct {
	ActionID  string `json:"action_id"`
	ProgramID string `json:"program_id"`
}

// StoreValuesRequest uploads a value set. Secret shares are sealed to each
// node with the uploading party's exchange key, scoped to the quote nonce.
type StoreValuesRequest struct {
	PartyID     string                  `json:"party_id"`
	Values      map[string]EncodedValue `json:"values"`
	Permissions *Permissions            `json:"permissions"`
	TTLDays     uint32                  `json:"ttl_days"`
	Receipt     *Receipt                `json:"receipt"`
}

// StoreValuesResponse identifies the stored value set.
type StoreValuesResponse struct {
	StoreID string `json:"store_id"`
}

// ValuesRequest addresses a stored value set for retrieval or deletion.
type ValuesRequest struct {
	StoreID string `json:"store_id"`
}

// RetrieveValuesResponse returns a value set as it was uploaded.
type RetrieveValuesResponse struct {
	StoreID string                  `json:"store_id"`
	PartyID string                  `json:"party_id"`
	Scope   string                  `json:"scope"`
	Values  map[string]EncodedValue `json:"values"`
}

// ComputeRequest starts a computation over stored and compute-time values.
type ComputeRequest struct {
	PartyID  string                  `json:"party_id"`
	Bindings *ProgramBindings        `json:"bindings"`
	StoreIDs []string                `json:"store_ids"`
	Values   map[string]EncodedValue `json:"values"`
	Receipt  *Receipt                `json:"receipt"`
}

// ComputeResponse identifies the started computation.
type ComputeResponse struct {
	ComputeID string `json:"compute_id"`
}

// ComputeResultRequest fetches the outputs of a computation for one party.
// Proofs holds one ResultProofs tag per node, bound to the request signer.
type ComputeResultRequest struct {
	ComputeID string   `json:"compute_id"`
	PartyID   string   `json:"party_id"`
	Proofs    [][]byte `json:"proofs"`
}

// ComputeResultResponse reports the status of a computation. Outputs are
// sealed by each node to the requesting party and scoped to the compute id.
type ComputeResultResponse struct {
	ComputeID string                  `json:"compute_id"`
	Status    ComputeStatus           `json:"status"`
	Outputs   map[string]EncodedValue `json:"outputs,omitempty"`
	Error     string                  `json:"error,omitempty"`
}
