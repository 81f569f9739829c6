package protocol

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/zeebo/blake3"
)

// OperationKind names a chargeable cluster operation.
type OperationKind string

const (
	OperationStoreProgram OperationKind = "store_program"
	OperationStoreValues  OperationKind = "store_values"
	OperationCompute      OperationKind = "compute"
)

// Operation describes a chargeable operation for quoting. It carries only
// what pricing needs and what the cluster can recompute from the submission:
// never secret values.
type Operation struct {
	Kind OperationKind `json:"kind"`

	// store_program
	ProgramName   string `json:"program_name,omitempty"`
	ProgramDigest string `json:"program_digest,omitempty"`
	ProgramSize   int    `json:"program_size,omitempty"`

	// store_values and compute
	Values  map[string]ValueType `json:"values,omitempty"`
	TTLDays uint32               `json:"ttl_days,omitempty"`

	// compute
	ProgramID string `json:"program_id,omitempty"`
}

// StoreProgramOperation quotes storing the compiled artifact under name.
func StoreProgramOperation(name string, artifact []byte) *Operation {
	digest := blake3.Sum256(artifact)
	return &Operation{
		Kind:          OperationStoreProgram,
		ProgramName:   name,
		ProgramDigest: hex.EncodeToString(digest[:]),
		ProgramSize:   len(artifact),
	}
}

// StoreValuesOperation quotes storing values for ttlDays.
func StoreValuesOperation(values NadaValues, ttlDays uint32) *Operation {
	return &Operation{
		Kind:    OperationStoreValues,
		Values:  values.Types(),
		TTLDays: ttlDays,
	}
}

// ComputeOperation quotes running programID with additional compute-time values.
func ComputeOperation(programID string, values NadaValues) *Operation {
	return &Operation{
		Kind:      OperationCompute,
		ProgramID: programID,
		Values:    values.Types(),
	}
}

// Digest is the BLAKE3 hash of the operation's JSON encoding. Map keys are
// serialized in sorted order, so equal operations have equal digests.
func (o *Operation) Digest() (string, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return "", err
	}
	digest := blake3.Sum256(data)
	return hex.EncodeToString(digest[:]), nil
}

// Quote is the cluster's signed price for one operation.
type Quote struct {
	Nonce           string        `json:"nonce"`
	ClusterID       string        `json:"cluster_id"`
	OperationKind   OperationKind `json:"operation_kind"`
	OperationDigest string        `json:"operation_digest"`
	Cost            uint64        `json:"cost"`
	PaymentAddress  string        `json:"payment_address"`
	ChainID         string        `json:"chain_id"`
	ExpiresAt       time.Time     `json:"expires_at"`
}

// Expired reports whether the quote is no longer valid at now.
func (q *Quote) Expired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}

// Receipt proves that a quote was paid. A receipt is accepted once.
type Receipt struct {
	Quote  *Signed[Quote] `json:"quote"`
	TxHash string         `json:"tx_hash"`
}
