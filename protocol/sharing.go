package protocol

import (
	"fmt"
	"math/big"

	"github.com/flashbots/nada-quickstart/crypto"
)

// SealValues prepares values for upload. Public values travel in clear;
// secret values are additively shared and each share is sealed to its node.
func SealValues(sender crypto.ExchangePrivateKey, nodes []NodeInfo, clusterID, scope string, values NadaValues) (map[string]EncodedValue, error) {
	keys, err := shareKeys(sender, nodes, clusterID)
	if err != nil {
		return nil, err
	}

	encoded := make(map[string]EncodedValue, len(values))
	for name, value := range values {
		if !value.Type.Valid() {
			return nil, fmt.Errorf("value %s: unknown type %q", name, value.Type)
		}
		if !value.Type.IsSecret() {
			v := value
			encoded[name] = EncodedValue{Type: value.Type, Clear: &v}
			continue
		}

		shares, err := crypto.SplitAdditive(value.FieldElement(), len(nodes), nil)
		if err != nil {
			return nil, fmt.Errorf("value %s: %w", name, err)
		}
		sealed, err := SealShares(keys, scope, name, shares)
		if err != nil {
			return nil, fmt.Errorf("value %s: %w", name, err)
		}
		encoded[name] = EncodedValue{Type: value.Type, Shares: sealed}
	}
	return encoded, nil
}

// OpenValues reconstructs values that the nodes sealed to recipient.
func OpenValues(recipient crypto.ExchangePrivateKey, nodes []NodeInfo, clusterID, scope string, encoded map[string]EncodedValue) (NadaValues, error) {
	keys, err := shareKeys(recipient, nodes, clusterID)
	if err != nil {
		return nil, err
	}

	values := make(NadaValues, len(encoded))
	for name, ev := range encoded {
		if !ev.Type.Valid() {
			return nil, fmt.Errorf("value %s: unknown type %q", name, ev.Type)
		}
		if ev.Clear != nil {
			if ev.Clear.Type != ev.Type {
				return nil, fmt.Errorf("value %s: type mismatch", name)
			}
			values[name] = *ev.Clear
			continue
		}
		if len(ev.Shares) != len(keys) {
			return nil, fmt.Errorf("value %s: expected %d shares, got %d", name, len(keys), len(ev.Shares))
		}

		shares := make([]*big.Int, len(keys))
		for i, key := range keys {
			share, err := OpenShare(key, scope, name, ev.Shares[i])
			if err != nil {
				return nil, fmt.Errorf("value %s: node %d: %w", name, i, err)
			}
			shares[i] = share
		}

		value, err := ValueFromFieldElement(ev.Type, crypto.ReconstructAdditive(shares))
		if err != nil {
			return nil, fmt.Errorf("value %s: %w", name, err)
		}
		values[name] = value
	}
	return values, nil
}

// SealShares seals shares[i] under keys[i].
func SealShares(keys []crypto.SharedKey, scope, name string, shares []*big.Int) ([]crypto.SealedShare, error) {
	sealed := make([]crypto.SealedShare, len(shares))
	for i, share := range shares {
		s, err := crypto.SealShare(keys[i], crypto.FieldElementBytes(share), ShareAdditionalData(scope, name))
		if err != nil {
			return nil, err
		}
		sealed[i] = s
	}
	return sealed, nil
}

// OpenShare opens one sealed field element.
func OpenShare(key crypto.SharedKey, scope, name string, sealed crypto.SealedShare) (*big.Int, error) {
	plaintext, err := crypto.OpenShare(key, sealed, ShareAdditionalData(scope, name))
	if err != nil {
		return nil, err
	}
	return crypto.FieldElementFromBytes(plaintext)
}

func shareKeys(own crypto.ExchangePrivateKey, nodes []NodeInfo, clusterID string) ([]crypto.SharedKey, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("cluster %s has no nodes", clusterID)
	}
	keys := make([]crypto.SharedKey, len(nodes))
	for i, node := range nodes {
		if node.Index != i {
			return nil, fmt.Errorf("node list out of order at %d", i)
		}
		key, err := crypto.DeriveSharedSecret(own, node.ExchangeKey, ShareKeyInfo(clusterID))
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		keys[i] = key
	}
	return keys, nil
}
