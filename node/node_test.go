package node

import (
	"math/big"
	"testing"

	"github.com/flashbots/nada-quickstart/crypto"
	"github.com/flashbots/nada-quickstart/protocol"
	"github.com/stretchr/testify/require"
)

func testCluster(t *testing.T, n int) []*Node {
	t.Helper()
	nodes := make([]*Node, n)
	for i := range nodes {
		_, key, err := crypto.GenerateExchangeKeyPair()
		require.NoError(t, err)
		nodes[i] = New(i, "test-cluster", key)
	}
	return nodes
}

func infos(nodes []*Node) []protocol.NodeInfo {
	out := make([]protocol.NodeInfo, len(nodes))
	for i, n := range nodes {
		out[i] = n.Info()
	}
	return out
}

func TestOpenInputsAndLinear(t *testing.T) {
	nodes := testCluster(t, 3)
	partyPub, party, err := crypto.GenerateExchangeKeyPair()
	require.NoError(t, err)

	encoded, err := protocol.SealValues(party, infos(nodes), "test-cluster", "nonce", protocol.NadaValues{
		"a": protocol.NewSecretInteger(5),
		"b": protocol.NewSecretInteger(7),
		"t": protocol.NewPublicInteger(4),
	})
	require.NoError(t, err)

	sessions := make([]*Session, len(nodes))
	for i, n := range nodes {
		shares, err := n.OpenInputs(partyPub, "nonce", encoded)
		require.NoError(t, err)
		require.Len(t, shares, 2)

		sessions[i] = n.NewSession()
		sessions[i].Set(0, shares["a"])
		sessions[i].Set(1, shares["b"])
		// a - b + 4
		require.NoError(t, sessions[i].Linear(2, []Term{{Wire: 0}, {Wire: 1, Negate: true}}, big.NewInt(4)))
	}

	var shares []*big.Int
	for _, s := range sessions {
		share, err := s.Share(2)
		require.NoError(t, err)
		shares = append(shares, share)
	}
	got, err := crypto.DecodeInt64(crypto.ReconstructAdditive(shares))
	require.NoError(t, err)
	require.Equal(t, int64(2), got)

	_, err = sessions[0].Share(9)
	require.Error(t, err)

	_, err = nodes[0].OpenInputs(partyPub, "other-nonce", encoded)
	require.Error(t, err)
}

func TestSealOutput(t *testing.T) {
	nodes := testCluster(t, 2)
	partyPub, party, err := crypto.GenerateExchangeKeyPair()
	require.NoError(t, err)

	shares, err := crypto.SplitAdditive(crypto.EncodeInt64(15), 2, nil)
	require.NoError(t, err)

	sealed := make([]crypto.SealedShare, 2)
	for i, n := range nodes {
		sealed[i], err = n.SealOutput(partyPub, "compute-1", "total", shares[i])
		require.NoError(t, err)
	}

	out, err := protocol.OpenValues(party, infos(nodes), "test-cluster", "compute-1", map[string]protocol.EncodedValue{
		"total": {Type: protocol.SecretInteger, Shares: sealed},
	})
	require.NoError(t, err)
	require.Equal(t, protocol.NewSecretInteger(15), out["total"])
}

func TestCheckResultProof(t *testing.T) {
	nodes := testCluster(t, 2)
	partyPub, party, err := crypto.GenerateExchangeKeyPair()
	require.NoError(t, err)
	requester, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	other, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	proofs, err := protocol.ResultProofs(party, infos(nodes), "test-cluster", "compute-1", requester)
	require.NoError(t, err)
	require.Len(t, proofs, 2)

	for i, n := range nodes {
		require.True(t, n.CheckResultProof(partyPub, "compute-1", requester, proofs[i]))
		require.False(t, n.CheckResultProof(partyPub, "compute-2", requester, proofs[i]))
		require.False(t, n.CheckResultProof(partyPub, "compute-1", other, proofs[i]))
		require.False(t, n.CheckResultProof(partyPub, "compute-1", requester, nil))
	}
	require.False(t, nodes[0].CheckResultProof(partyPub, "compute-1", requester, proofs[1]))

	strangerPub, _, err := crypto.GenerateExchangeKeyPair()
	require.NoError(t, err)
	require.False(t, nodes[0].CheckResultProof(strangerPub, "compute-1", requester, proofs[0]))
}
