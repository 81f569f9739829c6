// Package node implements a single cluster node. A node holds one additive
// share of every secret wire of a computation and never sees another node's
// shares.
package node

import (
	"fmt"
	"math/big"

	"github.com/flashbots/nada-quickstart/crypto"
	"github.com/flashbots/nada-quickstart/protocol"
)

// Node is a cluster member identified by its index and X25519 key.
type Node struct {
	index     int
	clusterID string
	key       crypto.ExchangePrivateKey
}

// New creates node index of clusterID.
func New(index int, clusterID string, key crypto.ExchangePrivateKey) *Node {
	return &Node{index: index, clusterID: clusterID, key: key}
}

// Index returns the node position in the cluster.
func (n *Node) Index() int { return n.index }

// Info returns the public description of the node.
func (n *Node) Info() protocol.NodeInfo {
	return protocol.NodeInfo{Index: n.index, ExchangeKey: n.key.PublicKey()}
}

func (n *Node) sharedKey(party crypto.ExchangePublicKey) (crypto.SharedKey, error) {
	return crypto.DeriveSharedSecret(n.key, party, protocol.ShareKeyInfo(n.clusterID))
}

// OpenInputs opens this node's share of every secret value uploaded by party.
func (n *Node) OpenInputs(party crypto.ExchangePublicKey, scope string, values map[string]protocol.EncodedValue) (map[string]*big.Int, error) {
	key, err := n.sharedKey(party)
	if err != nil {
		return nil, err
	}

	shares := make(map[string]*big.Int)
	for name, ev := range values {
		if !ev.Type.IsSecret() {
			continue
		}
		if len(ev.Shares) <= n.index {
			return nil, fmt.Errorf("value %s: no share for node %d", name, n.index)
		}
		share, err := protocol.OpenShare(key, scope, name, ev.Shares[n.index])
		if err != nil {
			return nil, fmt.Errorf("value %s: %w", name, err)
		}
		shares[name] = share
	}
	return shares, nil
}

// CheckResultProof reports whether proof shows that the caller holds the
// exchange key of party and asked for computeID while signing as requester.
func (n *Node) CheckResultProof(party crypto.ExchangePublicKey, computeID string, requester crypto.PublicKey, proof []byte) bool {
	key, err := crypto.DeriveSharedSecret(n.key, party, protocol.ResultProofInfo(n.clusterID))
	if err != nil {
		return false
	}
	return protocol.VerifyResultProof(key, computeID, requester, proof)
}

// SealOutput seals this node's share of an output to the receiving party.
func (n *Node) SealOutput(party crypto.ExchangePublicKey, computeID, name string, share *big.Int) (crypto.SealedShare, error) {
	key, err := n.sharedKey(party)
	if err != nil {
		return nil, err
	}
	return crypto.SealShare(key, crypto.FieldElementBytes(share), protocol.ShareAdditionalData(computeID, name))
}

// Session is a node's view of the wires of one computation.
type Session struct {
	node  *Node
	wires map[int]*big.Int
}

// NewSession starts evaluating a computation on this node.
func (n *Node) NewSession() *Session {
	return &Session{node: n, wires: make(map[int]*big.Int)}
}

// Node returns the node running the session.
func (s *Session) Node() *Node { return s.node }

// Set assigns this node's share of wire.
func (s *Session) Set(wire int, share *big.Int) {
	s.wires[wire] = share
}

// Share returns this node's share of wire.
func (s *Session) Share(wire int) (*big.Int, error) {
	share, ok := s.wires[wire]
	if !ok {
		return nil, fmt.Errorf("node %d: wire %d not evaluated", s.node.index, wire)
	}
	return share, nil
}

// Term is a signed reference to a secret wire.
type Term struct {
	Wire   int
	Negate bool
}

// Linear computes dst = sum(±terms) + constant on shares. Only node 0 adds
// the public constant so that the shares still sum to the right value.
func (s *Session) Linear(dst int, terms []Term, constant *big.Int) error {
	acc := big.NewInt(0)
	for _, term := range terms {
		share, err := s.Share(term.Wire)
		if err != nil {
			return err
		}
		if term.Negate {
			crypto.FieldSubInplace(acc, share, crypto.ShareFieldOrder)
		} else {
			crypto.FieldAddInplace(acc, share, crypto.ShareFieldOrder)
		}
	}
	if constant != nil && s.node.index == 0 {
		crypto.FieldAddInplace(acc, constant, crypto.ShareFieldOrder)
	}
	s.wires[dst] = acc
	return nil
}
