package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flashbots/nada-quickstart/protocol"
)

// ProgramRecord is a stored program artifact.
type ProgramRecord struct {
	ProgramID string    `json:"program_id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Artifact  []byte    `json:"artifact"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
}

// ValuesRecord is a stored value set. Secret values stay sealed to the
// nodes; Scope and PartyID are needed to open them.
type ValuesRecord struct {
	StoreID     string                           `json:"store_id"`
	Owner       string                           `json:"owner"`
	PartyID     string                           `json:"party_id"`
	Scope       string                           `json:"scope"`
	Values      map[string]protocol.EncodedValue `json:"values"`
	Permissions *protocol.Permissions            `json:"permissions"`
	ExpiresAt   time.Time                        `json:"expires_at"`
}

// ComputeRecord tracks a computation. Outputs are keyed by receiving party id.
type ComputeRecord struct {
	ComputeID string                                      `json:"compute_id"`
	Owner     string                                      `json:"owner"`
	ProgramID string                                      `json:"program_id"`
	Bindings  *protocol.ProgramBindings                   `json:"bindings"`
	Status    protocol.ComputeStatus                      `json:"status"`
	Outputs   map[string]map[string]protocol.EncodedValue `json:"outputs,omitempty"`
	Error     string                                      `json:"error,omitempty"`
	CreatedAt time.Time                                   `json:"created_at"`
}

// Store persists cluster state. Load methods return ErrNotFound for unknown ids.
type Store interface {
	SaveProgram(ctx context.Context, rec *ProgramRecord) error
	LoadProgram(ctx context.Context, programID string) (*ProgramRecord, error)

	SaveValues(ctx context.Context, rec *ValuesRecord) error
	LoadValues(ctx context.Context, storeID string) (*ValuesRecord, error)
	DeleteValues(ctx context.Context, storeID string) error

	SaveComputation(ctx context.Context, rec *ComputeRecord) error
	LoadComputation(ctx context.Context, computeID string) (*ComputeRecord, error)

	// ConsumeNonce marks a quote nonce as spent. It returns ErrReceiptReused
	// if the nonce was spent before.
	ConsumeNonce(ctx context.Context, nonce string) error
}

// InMemoryStore implements Store without a database.
type InMemoryStore struct {
	mu           sync.RWMutex
	programs     map[string]*ProgramRecord
	values       map[string]*ValuesRecord
	computations map[string]*ComputeRecord
	nonces       map[string]struct{}
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		programs:     make(map[string]*ProgramRecord),
		values:       make(map[string]*ValuesRecord),
		computations: make(map[string]*ComputeRecord),
		nonces:       make(map[string]struct{}),
	}
}

func (s *InMemoryStore) SaveProgram(_ context.Context, rec *ProgramRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.programs[rec.ProgramID] = &cp
	return nil
}

func (s *InMemoryStore) LoadProgram(_ context.Context, programID string) (*ProgramRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.programs[programID]
	if !ok {
		return nil, fmt.Errorf("%w: program %s", ErrNotFound, programID)
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) SaveValues(_ context.Context, rec *ValuesRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.values[rec.StoreID] = &cp
	return nil
}

func (s *InMemoryStore) LoadValues(_ context.Context, storeID string) (*ValuesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.values[storeID]
	if !ok {
		return nil, fmt.Errorf("%w: values %s", ErrNotFound, storeID)
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) DeleteValues(_ context.Context, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[storeID]; !ok {
		return fmt.Errorf("%w: values %s", ErrNotFound, storeID)
	}
	delete(s.values, storeID)
	return nil
}

func (s *InMemoryStore) SaveComputation(_ context.Context, rec *ComputeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.computations[rec.ComputeID] = &cp
	return nil
}

func (s *InMemoryStore) LoadComputation(_ context.Context, computeID string) (*ComputeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.computations[computeID]
	if !ok {
		return nil, fmt.Errorf("%w: computation %s", ErrNotFound, computeID)
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) ConsumeNonce(_ context.Context, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, used := s.nonces[nonce]; used {
		return fmt.Errorf("%w: %s", ErrReceiptReused, nonce)
	}
	s.nonces[nonce] = struct{}{}
	return nil
}
