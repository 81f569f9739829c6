package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/flashbots/nada-quickstart/crypto"
	"github.com/flashbots/nada-quickstart/protocol"
)

// ErrNoPendingComputations is returned by NextComputeEvent when nothing is in flight.
var ErrNoPendingComputations = errors.New("no pending computations")

// DefaultPollInterval is how often NextComputeEvent asks for results.
const DefaultPollInterval = 100 * time.Millisecond

// NetworkConfig configures a NetworkClient.
type NetworkConfig struct {
	ClusterURL string
	// ClusterID must match the cluster behind ClusterURL.
	ClusterID string

	// UserKey signs every request and identifies the user.
	UserKey crypto.PrivateKey
	// PartyKey seals inputs and opens outputs; its public half is the party id.
	PartyKey crypto.ExchangePrivateKey

	HTTPClient   *http.Client
	PollInterval time.Duration
}

// NetworkClient is a user's connection to a compute cluster.
type NetworkClient struct {
	api     *httpAPI
	info    *protocol.ClusterInfo
	userKey crypto.PrivateKey
	userPub crypto.PublicKey
	userID  string
	party   crypto.ExchangePrivateKey

	pollInterval time.Duration

	mu      sync.Mutex
	pending []string
}

// Dial fetches the cluster description and checks it is the configured cluster.
func Dial(ctx context.Context, cfg *NetworkConfig) (*NetworkClient, error) {
	if cfg.UserKey == nil {
		return nil, errors.New("user key is required")
	}
	pubkey, err := cfg.UserKey.PublicKey()
	if err != nil {
		return nil, err
	}

	api := newHTTPAPI(cfg.ClusterURL, cfg.HTTPClient)
	var info protocol.ClusterInfo
	if err := api.do(ctx, http.MethodGet, "/cluster", nil, &info); err != nil {
		return nil, fmt.Errorf("fetch cluster info: %w", err)
	}
	if cfg.ClusterID != "" && info.ClusterID != cfg.ClusterID {
		return nil, fmt.Errorf("connected to cluster %q, expected %q", info.ClusterID, cfg.ClusterID)
	}
	if len(info.Nodes) == 0 {
		return nil, errors.New("cluster has no nodes")
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	return &NetworkClient{
		api:          api,
		info:         &info,
		userKey:      cfg.UserKey,
		userPub:      pubkey,
		userID:       pubkey.UserID(),
		party:        cfg.PartyKey,
		pollInterval: poll,
	}, nil
}

// ClusterInfo is the cluster description fetched by Dial.
func (c *NetworkClient) ClusterInfo() *protocol.ClusterInfo { return c.info }

// UserID identifies the user to the cluster.
func (c *NetworkClient) UserID() string { return c.userID }

// PartyID identifies this client as an input and output party.
func (c *NetworkClient) PartyID() string { return c.party.PublicKey().String() }

func postSigned[Req, Resp any](ctx context.Context, c *NetworkClient, path string, req *Req) (*Resp, error) {
	signed, err := protocol.NewSigned(c.userKey, req)
	if err != nil {
		return nil, err
	}
	var resp Resp
	if err := c.api.do(ctx, http.MethodPost, path, signed, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestQuote prices op.
func (c *NetworkClient) RequestQuote(ctx context.Context, op *protocol.Operation) (*protocol.Signed[protocol.Quote], error) {
	quote, err := postSigned[protocol.QuoteRequest, protocol.Signed[protocol.Quote]](ctx, c, "/quote", &protocol.QuoteRequest{Operation: op})
	if err != nil {
		return nil, err
	}
	if _, err := quote.RecoverFrom(c.info.PublicKey); err != nil {
		return nil, fmt.Errorf("quote not signed by cluster: %w", err)
	}
	return quote, nil
}

// StoreProgram uploads a compiled program under name.
func (c *NetworkClient) StoreProgram(ctx context.Context, name string, artifact []byte, paid *PaidOperation) (*protocol.StoreProgramResponse, error) {
	receipt, err := paid.Receipt()
	if err != nil {
		return nil, err
	}
	return postSigned[protocol.StoreProgramRequest, protocol.StoreProgramResponse](ctx, c, "/programs", &protocol.StoreProgramRequest{
		Name:     name,
		Artifact: artifact,
		Receipt:  receipt,
	})
}

// StoreValues seals values to the nodes and stores them for ttlDays.
// The paid quote's nonce scopes the sealed shares.
func (c *NetworkClient) StoreValues(ctx context.Context, values protocol.NadaValues, permissions *protocol.Permissions, ttlDays uint32, paid *PaidOperation) (string, error) {
	receipt, err := paid.Receipt()
	if err != nil {
		return "", err
	}
	encoded, err := protocol.SealValues(c.party, c.info.Nodes, c.info.ClusterID, receipt.Quote.Object.Nonce, values)
	if err != nil {
		return "", fmt.Errorf("seal values: %w", err)
	}

	resp, err := postSigned[protocol.StoreValuesRequest, protocol.StoreValuesResponse](ctx, c, "/values", &protocol.StoreValuesRequest{
		PartyID:     c.PartyID(),
		Values:      encoded,
		Permissions: permissions,
		TTLDays:     ttlDays,
		Receipt:     receipt,
	})
	if err != nil {
		return "", err
	}
	return resp.StoreID, nil
}

// RetrieveValues fetches and opens a stored value set uploaded by this party.
func (c *NetworkClient) RetrieveValues(ctx context.Context, storeID string) (protocol.NadaValues, error) {
	resp, err := postSigned[protocol.ValuesRequest, protocol.RetrieveValuesResponse](ctx, c, "/values/retrieve", &protocol.ValuesRequest{StoreID: storeID})
	if err != nil {
		return nil, err
	}
	if resp.PartyID != c.PartyID() {
		return nil, fmt.Errorf("values %s were stored by party %s", storeID, resp.PartyID)
	}
	return protocol.OpenValues(c.party, c.info.Nodes, c.info.ClusterID, resp.Scope, resp.Values)
}

// DeleteValues removes a stored value set.
func (c *NetworkClient) DeleteValues(ctx context.Context, storeID string) error {
	signed, err := protocol.NewSigned(c.userKey, &protocol.ValuesRequest{StoreID: storeID})
	if err != nil {
		return err
	}
	return c.api.do(ctx, http.MethodPost, "/values/delete", signed, nil)
}

// Compute starts a computation over stored values and compute-time values
// and returns its id. Results are delivered by NextComputeEvent.
func (c *NetworkClient) Compute(ctx context.Context, bindings *protocol.ProgramBindings, storeIDs []string, values protocol.NadaValues, paid *PaidOperation) (string, error) {
	receipt, err := paid.Receipt()
	if err != nil {
		return "", err
	}

	req := &protocol.ComputeRequest{
		PartyID:  c.PartyID(),
		Bindings: bindings,
		StoreIDs: storeIDs,
		Receipt:  receipt,
	}
	if len(values) > 0 {
		req.Values, err = protocol.SealValues(c.party, c.info.Nodes, c.info.ClusterID, receipt.Quote.Object.Nonce, values)
		if err != nil {
			return "", fmt.Errorf("seal values: %w", err)
		}
	}

	resp, err := postSigned[protocol.ComputeRequest, protocol.ComputeResponse](ctx, c, "/compute", req)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.pending = append(c.pending, resp.ComputeID)
	c.mu.Unlock()
	return resp.ComputeID, nil
}

// ComputeResult checks one computation. It returns nil while the computation
// is pending.
func (c *NetworkClient) ComputeResult(ctx context.Context, computeID string) (protocol.ComputeEvent, error) {
	proofs, err := protocol.ResultProofs(c.party, c.info.Nodes, c.info.ClusterID, computeID, c.userPub)
	if err != nil {
		return nil, err
	}
	resp, err := postSigned[protocol.ComputeResultRequest, protocol.ComputeResultResponse](ctx, c, "/compute/result", &protocol.ComputeResultRequest{
		ComputeID: computeID,
		PartyID:   c.PartyID(),
		Proofs:    proofs,
	})
	if err != nil {
		return nil, err
	}

	switch resp.Status {
	case protocol.ComputePending:
		return nil, nil
	case protocol.ComputeFailed:
		return &protocol.ComputeFailedEvent{ID: computeID, Error: resp.Error}, nil
	case protocol.ComputeFinished:
		outputs, err := protocol.OpenValues(c.party, c.info.Nodes, c.info.ClusterID, computeID, resp.Outputs)
		if err != nil {
			return nil, fmt.Errorf("open outputs of %s: %w", computeID, err)
		}
		return &protocol.ComputeFinishedEvent{ID: computeID, Result: outputs}, nil
	}
	return nil, fmt.Errorf("computation %s: unknown status %q", computeID, resp.Status)
}

// NextComputeEvent waits for any computation started by this client to
// finish or fail. Computations are checked in submission order.
func (c *NetworkClient) NextComputeEvent(ctx context.Context) (protocol.ComputeEvent, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		pending := append([]string(nil), c.pending...)
		c.mu.Unlock()
		if len(pending) == 0 {
			return nil, ErrNoPendingComputations
		}

		for _, id := range pending {
			event, err := c.ComputeResult(ctx, id)
			if err != nil {
				return nil, err
			}
			if event != nil {
				c.removePending(id)
				return event, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// PendingComputations lists computations whose result has not been delivered.
func (c *NetworkClient) PendingComputations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := append([]string(nil), c.pending...)
	sort.Strings(pending)
	return pending
}

func (c *NetworkClient) removePending(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pending {
		if p == id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}
