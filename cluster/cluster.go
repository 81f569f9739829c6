// Package cluster implements the development cluster: it quotes operations,
// verifies payments, stores programs and values, and runs computations
// across its nodes.
//
// The cluster keeps secret inputs additively shared across nodes and applies
// linear operations on shares. Comparisons open the difference of their
// operands inside the cluster, so this is a development network and not a
// secure MPC implementation.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/flashbots/nada-quickstart/crypto"
	"github.com/flashbots/nada-quickstart/ledger"
	"github.com/flashbots/nada-quickstart/nada"
	"github.com/flashbots/nada-quickstart/node"
	"github.com/flashbots/nada-quickstart/protocol"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PaymentVerifier looks up included ledger transactions.
type PaymentVerifier interface {
	Transaction(ctx context.Context, hash string) (*ledger.TxRecord, error)
}

// Config configures a cluster.
type Config struct {
	ClusterID string

	// SigningKey signs quotes.
	SigningKey crypto.PrivateKey

	// PaymentAddress receives payments for quotes on ChainID.
	PaymentAddress string
	ChainID        string

	Nodes    []*node.Node
	Prices   protocol.Prices
	QuoteTTL time.Duration

	// MaxValueTTLDays bounds how long value sets may be stored.
	MaxValueTTLDays uint32

	Store    Store
	Payments PaymentVerifier
	Log      *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Cluster serves quoting, storage and computation requests.
type Cluster struct {
	cfg       *Config
	log       *slog.Logger
	publicKey crypto.PublicKey
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates the configuration and creates a cluster.
func New(cfg *Config) (*Cluster, error) {
	if cfg.ClusterID == "" {
		return nil, errors.New("cluster id is required")
	}
	if len(cfg.Nodes) == 0 {
		return nil, errors.New("at least one node is required")
	}
	for i, n := range cfg.Nodes {
		if n.Index() != i {
			return nil, fmt.Errorf("node %d has index %d", i, n.Index())
		}
	}
	if cfg.Store == nil || cfg.Payments == nil {
		return nil, errors.New("store and payment verifier are required")
	}
	if !ledger.ValidAddress(cfg.PaymentAddress) {
		return nil, fmt.Errorf("invalid payment address %q", cfg.PaymentAddress)
	}
	publicKey, err := cfg.SigningKey.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Cluster{
		cfg:       cfg,
		log:       log.With("cluster", cfg.ClusterID),
		publicKey: publicKey,
		now:       now,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Close stops running computations and waits for them to exit.
func (c *Cluster) Close() {
	c.cancel()
	c.wg.Wait()
}

// Info describes the cluster to clients.
func (c *Cluster) Info() *protocol.ClusterInfo {
	nodes := make([]protocol.NodeInfo, len(c.cfg.Nodes))
	for i, n := range c.cfg.Nodes {
		nodes[i] = n.Info()
	}
	return &protocol.ClusterInfo{
		ClusterID:      c.cfg.ClusterID,
		PublicKey:      c.publicKey,
		PaymentAddress: c.cfg.PaymentAddress,
		ChainID:        c.cfg.ChainID,
		Nodes:          nodes,
		Prices:         c.cfg.Prices,
	}
}

// ProgramID scopes a program name to its owner.
func ProgramID(userID, name string) string {
	return userID + "/" + name
}

func validProgramName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "/ \t\n")
}

// RequestQuote prices an operation and signs the quote.
func (c *Cluster) RequestQuote(ctx context.Context, op *protocol.Operation) (*protocol.Signed[protocol.Quote], error) {
	if op == nil {
		return nil, fmt.Errorf("%w: missing operation", ErrInvalidRequest)
	}
	cost, err := c.price(ctx, op)
	if err != nil {
		return nil, err
	}
	digest, err := op.Digest()
	if err != nil {
		return nil, err
	}

	quote := &protocol.Quote{
		Nonce:           uuid.NewString(),
		ClusterID:       c.cfg.ClusterID,
		OperationKind:   op.Kind,
		OperationDigest: digest,
		Cost:            cost,
		PaymentAddress:  c.cfg.PaymentAddress,
		ChainID:         c.cfg.ChainID,
		ExpiresAt:       c.now().Add(c.cfg.QuoteTTL).UTC(),
	}
	return protocol.NewSigned(c.cfg.SigningKey, quote)
}

func (c *Cluster) price(ctx context.Context, op *protocol.Operation) (uint64, error) {
	p := c.cfg.Prices
	switch op.Kind {
	case protocol.OperationStoreProgram:
		if !validProgramName(op.ProgramName) {
			return 0, fmt.Errorf("%w: program name %q", ErrInvalidRequest, op.ProgramName)
		}
		kib := uint64((op.ProgramSize + 1023) / 1024)
		return p.StoreProgramBase + p.StoreProgramPerKiB*kib, nil

	case protocol.OperationStoreValues:
		if len(op.Values) == 0 {
			return 0, fmt.Errorf("%w: no values", ErrInvalidRequest)
		}
		if err := c.checkTTL(op.TTLDays); err != nil {
			return 0, err
		}
		return p.StoreValuePerDay * uint64(op.TTLDays) * uint64(len(op.Values)), nil

	case protocol.OperationCompute:
		if _, err := c.cfg.Store.LoadProgram(ctx, op.ProgramID); err != nil {
			return 0, err
		}
		return p.ComputeBase + p.ComputePerValue*uint64(len(op.Values)), nil
	}
	return 0, fmt.Errorf("%w: unknown operation %q", ErrInvalidRequest, op.Kind)
}

func (c *Cluster) checkTTL(days uint32) error {
	if days == 0 {
		return fmt.Errorf("%w: ttl must be at least one day", ErrInvalidRequest)
	}
	if c.cfg.MaxValueTTLDays > 0 && days > c.cfg.MaxValueTTLDays {
		return fmt.Errorf("%w: ttl exceeds %d days", ErrInvalidRequest, c.cfg.MaxValueTTLDays)
	}
	return nil
}

// acceptReceipt verifies that receipt pays for op and spends it.
func (c *Cluster) acceptReceipt(ctx context.Context, receipt *protocol.Receipt, op *protocol.Operation) (*protocol.Quote, error) {
	if receipt == nil || receipt.Quote == nil {
		return nil, fmt.Errorf("%w: missing receipt", ErrPaymentInvalid)
	}
	quote, err := receipt.Quote.RecoverFrom(c.publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuote, err)
	}
	if quote.ClusterID != c.cfg.ClusterID {
		return nil, fmt.Errorf("%w: quote for cluster %s", ErrInvalidQuote, quote.ClusterID)
	}
	if quote.Expired(c.now()) {
		return nil, ErrQuoteExpired
	}

	digest, err := op.Digest()
	if err != nil {
		return nil, err
	}
	if quote.OperationKind != op.Kind || quote.OperationDigest != digest {
		return nil, ErrOperationMismatch
	}

	rec, err := c.cfg.Payments.Transaction(ctx, receipt.TxHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentInvalid, err)
	}
	tx := rec.SignedTx.Tx
	switch {
	case tx.ChainID != quote.ChainID:
		return nil, fmt.Errorf("%w: wrong chain", ErrPaymentInvalid)
	case tx.To != quote.PaymentAddress:
		return nil, fmt.Errorf("%w: wrong recipient", ErrPaymentInvalid)
	case tx.Memo != quote.Nonce:
		return nil, fmt.Errorf("%w: memo does not match quote nonce", ErrPaymentInvalid)
	case tx.Amount < quote.Cost:
		return nil, fmt.Errorf("%w: paid %d, quoted %d", ErrPaymentInvalid, tx.Amount, quote.Cost)
	}

	if err := c.cfg.Store.ConsumeNonce(ctx, quote.Nonce); err != nil {
		return nil, err
	}
	return quote, nil
}

// StoreProgram stores a compiled artifact for userID and returns its action
// and program ids. Storing the same name again replaces the program.
func (c *Cluster) StoreProgram(ctx context.Context, userID string, req *protocol.StoreProgramRequest) (*protocol.StoreProgramResponse, error) {
	if !validProgramName(req.Name) {
		return nil, fmt.Errorf("%w: program name %q", ErrInvalidRequest, req.Name)
	}
	artifact, err := nada.DecodeArtifact(req.Artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	op := protocol.StoreProgramOperation(req.Name, req.Artifact)
	if _, err := c.acceptReceipt(ctx, req.Receipt, op); err != nil {
		return nil, err
	}

	programID := ProgramID(userID, req.Name)
	if err := c.cfg.Store.SaveProgram(ctx, &ProgramRecord{
		ProgramID: programID,
		Owner:     userID,
		Name:      req.Name,
		Artifact:  req.Artifact,
		Digest:    op.ProgramDigest,
		CreatedAt: c.now().UTC(),
	}); err != nil {
		return nil, err
	}

	actionID := uuid.NewString()
	c.log.Info("stored program", "programID", programID, "actionID", actionID, "operations", len(artifact.Operations))
	return &protocol.StoreProgramResponse{ActionID: actionID, ProgramID: programID}, nil
}

// StoreValues stores a value set for userID and returns its store id.
func (c *Cluster) StoreValues(ctx context.Context, userID string, req *protocol.StoreValuesRequest) (*protocol.StoreValuesResponse, error) {
	partyKey, err := crypto.ParseExchangePublicKey(req.PartyID)
	if err != nil {
		return nil, fmt.Errorf("%w: party id: %v", ErrInvalidRequest, err)
	}
	if err := c.checkTTL(req.TTLDays); err != nil {
		return nil, err
	}

	permissions := req.Permissions
	if permissions == nil {
		permissions = protocol.DefaultPermissionsForUser(userID)
	}
	if permissions.Owner == "" {
		permissions.Owner = userID
	}
	if permissions.Owner != userID {
		return nil, fmt.Errorf("%w: cannot store values owned by %s", ErrPermissionDenied, permissions.Owner)
	}

	types, err := c.checkEncodedValues(req.Values)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: no values", ErrInvalidRequest)
	}

	op := &protocol.Operation{Kind: protocol.OperationStoreValues, Values: types, TTLDays: req.TTLDays}
	if err := c.checkReceiptQuote(req.Receipt); err != nil {
		return nil, err
	}
	scope := req.Receipt.Quote.Object.Nonce
	if err := c.checkSharesOpen(ctx, partyKey, scope, req.Values); err != nil {
		return nil, err
	}
	if _, err := c.acceptReceipt(ctx, req.Receipt, op); err != nil {
		return nil, err
	}

	storeID := uuid.NewString()
	if err := c.cfg.Store.SaveValues(ctx, &ValuesRecord{
		StoreID:     storeID,
		Owner:       userID,
		PartyID:     req.PartyID,
		Scope:       scope,
		Values:      req.Values,
		Permissions: permissions,
		ExpiresAt:   c.now().Add(time.Duration(req.TTLDays) * 24 * time.Hour).UTC(),
	}); err != nil {
		return nil, err
	}

	c.log.Info("stored values", "storeID", storeID, "owner", userID, "values", len(types))
	return &protocol.StoreValuesResponse{StoreID: storeID}, nil
}

// checkReceiptQuote checks the receipt quote signature before its nonce is
// used to open shares.
func (c *Cluster) checkReceiptQuote(receipt *protocol.Receipt) error {
	if receipt == nil || receipt.Quote == nil {
		return fmt.Errorf("%w: missing receipt", ErrPaymentInvalid)
	}
	if _, err := receipt.Quote.RecoverFrom(c.publicKey); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuote, err)
	}
	return nil
}

func (c *Cluster) checkEncodedValues(values map[string]protocol.EncodedValue) (map[string]protocol.ValueType, error) {
	types := make(map[string]protocol.ValueType, len(values))
	for name, ev := range values {
		if name == "" {
			return nil, fmt.Errorf("%w: empty value name", ErrInvalidRequest)
		}
		if !ev.Type.Valid() {
			return nil, fmt.Errorf("%w: value %s has unknown type %q", ErrInvalidRequest, name, ev.Type)
		}
		if ev.Type.IsSecret() {
			if ev.Clear != nil || len(ev.Shares) != len(c.cfg.Nodes) {
				return nil, fmt.Errorf("%w: secret value %s needs %d sealed shares", ErrInvalidRequest, name, len(c.cfg.Nodes))
			}
		} else if ev.Clear == nil || ev.Clear.Type != ev.Type || len(ev.Shares) != 0 {
			return nil, fmt.Errorf("%w: public value %s must be sent in clear", ErrInvalidRequest, name)
		}
		types[name] = ev.Type
	}
	return types, nil
}

// checkSharesOpen has every node open its shares, rejecting uploads that
// were not sealed for this cluster and scope.
func (c *Cluster) checkSharesOpen(ctx context.Context, party crypto.ExchangePublicKey, scope string, values map[string]protocol.EncodedValue) error {
	g, _ := errgroup.WithContext(ctx)
	for _, n := range c.cfg.Nodes {
		g.Go(func() error {
			if _, err := n.OpenInputs(party, scope, values); err != nil {
				return fmt.Errorf("%w: node %d: %v", ErrInvalidRequest, n.Index(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Cluster) loadLiveValues(ctx context.Context, storeID string) (*ValuesRecord, error) {
	rec, err := c.cfg.Store.LoadValues(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !c.now().Before(rec.ExpiresAt) {
		return nil, fmt.Errorf("%w: values %s expired", ErrNotFound, storeID)
	}
	return rec, nil
}

// RetrieveValues returns a value set as uploaded. Secret shares remain
// sealed to the uploading party.
func (c *Cluster) RetrieveValues(ctx context.Context, userID, storeID string) (*protocol.RetrieveValuesResponse, error) {
	rec, err := c.loadLiveValues(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !rec.Permissions.CanRetrieve(userID) {
		return nil, ErrPermissionDenied
	}
	return &protocol.RetrieveValuesResponse{
		StoreID: rec.StoreID,
		PartyID: rec.PartyID,
		Scope:   rec.Scope,
		Values:  rec.Values,
	}, nil
}

// DeleteValues removes a value set.
func (c *Cluster) DeleteValues(ctx context.Context, userID, storeID string) error {
	rec, err := c.cfg.Store.LoadValues(ctx, storeID)
	if err != nil {
		return err
	}
	if !rec.Permissions.CanDelete(userID) {
		return ErrPermissionDenied
	}
	return c.cfg.Store.DeleteValues(ctx, storeID)
}

// inputSource is one party's upload: a stored value set or the compute-time
// values of a compute request.
type inputSource struct {
	partyID  string
	partyKey crypto.ExchangePublicKey
	scope    string
	values   map[string]protocol.EncodedValue
}

type computeJob struct {
	computeID string
	artifact  *nada.Artifact
	sources   []inputSource
	// inputs maps each program input to the index of its source.
	inputs map[string]int
	// outputKeys maps each output party name to its bound exchange key.
	outputKeys map[string]crypto.ExchangePublicKey
	bindings   *protocol.ProgramBindings
}

// Compute checks a computation request, accepts its payment and starts the
// computation. It returns as soon as the computation is recorded as pending.
func (c *Cluster) Compute(ctx context.Context, userID string, req *protocol.ComputeRequest) (*protocol.ComputeResponse, error) {
	if req.Bindings == nil {
		return nil, fmt.Errorf("%w: missing bindings", ErrInvalidRequest)
	}
	programID := req.Bindings.ProgramID
	program, err := c.cfg.Store.LoadProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	artifact, err := nada.DecodeArtifact(program.Artifact)
	if err != nil {
		return nil, fmt.Errorf("stored program %s: %w", programID, err)
	}

	job := &computeJob{
		computeID:  uuid.NewString(),
		artifact:   artifact,
		inputs:     make(map[string]int),
		outputKeys: make(map[string]crypto.ExchangePublicKey),
		bindings:   req.Bindings,
	}

	seen := map[string]bool{}
	for _, storeID := range req.StoreIDs {
		if seen[storeID] {
			return nil, fmt.Errorf("%w: store id %s given twice", ErrInvalidRequest, storeID)
		}
		seen[storeID] = true

		rec, err := c.loadLiveValues(ctx, storeID)
		if err != nil {
			return nil, err
		}
		if !rec.Permissions.CanCompute(userID, programID) {
			return nil, fmt.Errorf("%w: %s may not compute %s over %s", ErrPermissionDenied, userID, programID, storeID)
		}
		partyKey, err := crypto.ParseExchangePublicKey(rec.PartyID)
		if err != nil {
			return nil, fmt.Errorf("stored values %s: %w", storeID, err)
		}
		if err := job.addSource(inputSource{partyID: rec.PartyID, partyKey: partyKey, scope: rec.Scope, values: rec.Values}); err != nil {
			return nil, err
		}
	}

	types, err := c.checkEncodedValues(req.Values)
	if err != nil {
		return nil, err
	}
	if len(req.Values) > 0 {
		partyKey, err := crypto.ParseExchangePublicKey(req.PartyID)
		if err != nil {
			return nil, fmt.Errorf("%w: party id: %v", ErrInvalidRequest, err)
		}
		if err := c.checkReceiptQuote(req.Receipt); err != nil {
			return nil, err
		}
		scope := req.Receipt.Quote.Object.Nonce
		if err := c.checkSharesOpen(ctx, partyKey, scope, req.Values); err != nil {
			return nil, err
		}
		if err := job.addSource(inputSource{partyID: req.PartyID, partyKey: partyKey, scope: scope, values: req.Values}); err != nil {
			return nil, err
		}
	}

	if err := job.checkInputs(); err != nil {
		return nil, err
	}
	if err := job.bindOutputs(); err != nil {
		return nil, err
	}

	op := &protocol.Operation{Kind: protocol.OperationCompute, ProgramID: programID, Values: types}
	if _, err := c.acceptReceipt(ctx, req.Receipt, op); err != nil {
		return nil, err
	}

	rec := &ComputeRecord{
		ComputeID: job.computeID,
		Owner:     userID,
		ProgramID: programID,
		Bindings:  req.Bindings,
		Status:    protocol.ComputePending,
		CreatedAt: c.now().UTC(),
	}
	if err := c.cfg.Store.SaveComputation(ctx, rec); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runComputation(rec, job)
	}()

	c.log.Info("computation started", "computeID", job.computeID, "programID", programID, "stores", len(req.StoreIDs))
	return &protocol.ComputeResponse{ComputeID: job.computeID}, nil
}

func (j *computeJob) addSource(src inputSource) error {
	idx := len(j.sources)
	for name := range src.values {
		if _, dup := j.inputs[name]; dup {
			return fmt.Errorf("%w: value %s supplied more than once", ErrInvalidRequest, name)
		}
		j.inputs[name] = idx
	}
	j.sources = append(j.sources, src)
	return nil
}

// checkInputs matches supplied values against the program's declared inputs
// and their party bindings.
func (j *computeJob) checkInputs() error {
	for _, in := range j.artifact.Inputs {
		idx, ok := j.inputs[in.Name]
		if !ok {
			return fmt.Errorf("%w: missing input %s", ErrInvalidRequest, in.Name)
		}
		src := j.sources[idx]
		if got := src.values[in.Name].Type; got != in.Type {
			return fmt.Errorf("%w: input %s is %s, program declares %s", ErrInvalidRequest, in.Name, got, in.Type)
		}
		bound, ok := j.bindings.InputParties[in.Party]
		if !ok {
			return fmt.Errorf("%w: input party %s is not bound", ErrInvalidRequest, in.Party)
		}
		if bound != src.partyID {
			return fmt.Errorf("%w: input %s was not provided by party %s", ErrInvalidRequest, in.Name, in.Party)
		}
	}
	for name := range j.inputs {
		if _, ok := j.artifact.Input(name); !ok {
			return fmt.Errorf("%w: program has no input %s", ErrInvalidRequest, name)
		}
	}
	return nil
}

func (j *computeJob) bindOutputs() error {
	for _, party := range j.artifact.OutputParties() {
		partyID, ok := j.bindings.OutputParties[party]
		if !ok {
			return fmt.Errorf("%w: output party %s is not bound", ErrInvalidRequest, party)
		}
		key, err := crypto.ParseExchangePublicKey(partyID)
		if err != nil {
			return fmt.Errorf("%w: output party %s: %v", ErrInvalidRequest, party, err)
		}
		j.outputKeys[party] = key
	}
	return nil
}

func (c *Cluster) runComputation(rec *ComputeRecord, job *computeJob) {
	log := c.log.With("computeID", job.computeID)

	outputs, err := c.evaluate(c.ctx, job)
	if err != nil {
		log.Error("computation failed", "err", err)
		rec.Status = protocol.ComputeFailed
		rec.Error = err.Error()
	} else {
		log.Info("computation finished", "outputs", len(job.artifact.Outputs))
		rec.Status = protocol.ComputeFinished
		rec.Outputs = outputs
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), 5*time.Second)
	defer cancel()
	if err := c.cfg.Store.SaveComputation(ctx, rec); err != nil {
		log.Error("could not save computation", "err", err)
	}
}

// ComputeResult reports the status of a computation to one of its bound
// output parties. The requester must prove to every node that it holds the
// party's exchange key; anyone else is refused.
func (c *Cluster) ComputeResult(ctx context.Context, requester crypto.PublicKey, req *protocol.ComputeResultRequest) (*protocol.ComputeResultResponse, error) {
	rec, err := c.cfg.Store.LoadComputation(ctx, req.ComputeID)
	if err != nil {
		return nil, err
	}

	bound := false
	for _, partyID := range rec.Bindings.OutputParties {
		if partyID == req.PartyID {
			bound = true
			break
		}
	}
	if !bound {
		return nil, fmt.Errorf("%w: %s is not an output party of %s", ErrPermissionDenied, req.PartyID, req.ComputeID)
	}
	if err := c.checkResultProofs(requester, req); err != nil {
		return nil, err
	}

	resp := &protocol.ComputeResultResponse{ComputeID: rec.ComputeID, Status: rec.Status}
	switch rec.Status {
	case protocol.ComputeFailed:
		resp.Error = rec.Error
	case protocol.ComputeFinished:
		resp.Outputs = rec.Outputs[req.PartyID]
		if resp.Outputs == nil {
			resp.Outputs = map[string]protocol.EncodedValue{}
		}
	}
	return resp, nil
}

func (c *Cluster) checkResultProofs(requester crypto.PublicKey, req *protocol.ComputeResultRequest) error {
	party, err := crypto.ParseExchangePublicKey(req.PartyID)
	if err != nil {
		return fmt.Errorf("%w: party id: %v", ErrInvalidRequest, err)
	}
	if len(req.Proofs) != len(c.cfg.Nodes) {
		return fmt.Errorf("%w: %d result proofs for %d nodes", ErrPermissionDenied, len(req.Proofs), len(c.cfg.Nodes))
	}
	for i, n := range c.cfg.Nodes {
		if !n.CheckResultProof(party, req.ComputeID, requester, req.Proofs[i]) {
			return fmt.Errorf("%w: node %d rejected the proof for party %s", ErrPermissionDenied, i, req.PartyID)
		}
	}
	return nil
}
