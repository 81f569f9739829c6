package protocol

import (
	"crypto/subtle"
	"errors"

	"github.com/flashbots/nada-quickstart/crypto"
	"github.com/zeebo/blake3"
)

// ResultProofInfo is the HKDF info for the keys a party uses to prove to a
// node that it holds its exchange key.
func ResultProofInfo(clusterID string) []byte {
	return []byte("nada-quickstart/result-proof/" + clusterID)
}

// ResultProofTag is a keyed blake3 tag over the compute id and the key that
// signs the result request, so a proof cannot be reused by another user.
func ResultProofTag(key crypto.SharedKey, computeID string, requester crypto.PublicKey) ([]byte, error) {
	h, err := blake3.NewKeyed(key)
	if err != nil {
		return nil, err
	}
	h.WriteString(computeID)
	h.Write([]byte{0})
	h.Write(requester)
	return h.Sum(nil), nil
}

// ResultProofs computes one proof per node, in node order.
func ResultProofs(party crypto.ExchangePrivateKey, nodes []NodeInfo, clusterID, computeID string, requester crypto.PublicKey) ([][]byte, error) {
	if len(requester) == 0 {
		return nil, errors.New("requester key is required")
	}
	proofs := make([][]byte, len(nodes))
	for i, n := range nodes {
		key, err := crypto.DeriveSharedSecret(party, n.ExchangeKey, ResultProofInfo(clusterID))
		if err != nil {
			return nil, err
		}
		if proofs[i], err = ResultProofTag(key, computeID, requester); err != nil {
			return nil, err
		}
	}
	return proofs, nil
}

// VerifyResultProof compares proof against the expected tag in constant time.
func VerifyResultProof(key crypto.SharedKey, computeID string, requester crypto.PublicKey, proof []byte) bool {
	want, err := ResultProofTag(key, computeID, requester)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(want, proof) == 1
}
