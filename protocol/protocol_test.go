package protocol

import (
	"bytes"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/flashbots/nada-quickstart/crypto"
	"github.com/stretchr/testify/require"
)

func testNodes(t *testing.T, n int) ([]NodeInfo, []crypto.ExchangePrivateKey) {
	t.Helper()
	infos := make([]NodeInfo, n)
	keys := make([]crypto.ExchangePrivateKey, n)
	for i := range infos {
		pub, priv, err := crypto.GenerateExchangeKeyPair()
		require.NoError(t, err)
		infos[i] = NodeInfo{Index: i, ExchangeKey: pub}
		keys[i] = priv
	}
	return infos, keys
}

func TestSignedRoundTrip(t *testing.T) {
	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	quote := &Quote{Nonce: "n", Cost: 10, ExpiresAt: time.Unix(100, 0).UTC()}
	signed, err := NewSigned(priv, quote)
	require.NoError(t, err)

	data, err := json.Marshal(signed)
	require.NoError(t, err)
	decoded, err := DecodeMessage[Signed[Quote]](bytes.NewReader(data))
	require.NoError(t, err)

	obj, signer, err := decoded.Recover()
	require.NoError(t, err)
	require.True(t, signer.Equal(pub))
	require.Equal(t, quote.Cost, obj.Cost)

	_, err = decoded.RecoverFrom(pub)
	require.NoError(t, err)

	otherPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = decoded.RecoverFrom(otherPub)
	require.ErrorIs(t, err, ErrBadSignature)

	decoded.Object.Cost = 1
	_, _, err = decoded.Recover()
	require.ErrorIs(t, err, ErrBadSignature)

	_, _, err = (&Signed[Quote]{}).Recover()
	require.Error(t, err)
}

func TestOperationDigest(t *testing.T) {
	values := NadaValues{
		"data_sensor_a": NewSecretInteger(5),
		"threshold":     NewPublicInteger(4),
	}

	d1, err := StoreValuesOperation(values, 5).Digest()
	require.NoError(t, err)
	d2, err := StoreValuesOperation(values, 5).Digest()
	require.NoError(t, err)
	require.Equal(t, d1, d2)

	// secret magnitudes never reach the quote
	d3, err := StoreValuesOperation(NadaValues{
		"data_sensor_a": NewSecretInteger(500),
		"threshold":     NewPublicInteger(4),
	}, 5).Digest()
	require.NoError(t, err)
	require.Equal(t, d1, d3)

	d4, err := StoreValuesOperation(values, 6).Digest()
	require.NoError(t, err)
	require.NotEqual(t, d1, d4)

	p1, err := StoreProgramOperation("main", []byte("artifact")).Digest()
	require.NoError(t, err)
	p2, err := StoreProgramOperation("main", []byte("artifact2")).Digest()
	require.NoError(t, err)
	require.NotEqual(t, p1, p2)
}

func TestPermissions(t *testing.T) {
	p := DefaultPermissionsForUser("alice")
	require.Equal(t, "alice", p.Owner)
	require.True(t, p.CanRetrieve("alice"))
	require.True(t, p.CanDelete("alice"))
	require.False(t, p.CanRetrieve("bob"))
	require.False(t, p.CanCompute("alice", "alice/main"))

	p.AddComputePermissions(map[string][]string{"alice": {"alice/main"}})
	p.AddComputePermissions(map[string][]string{"alice": {"alice/main", "alice/other"}})
	require.True(t, p.CanCompute("alice", "alice/main"))
	require.True(t, p.CanCompute("alice", "alice/other"))
	require.False(t, p.CanCompute("bob", "alice/main"))
	require.Equal(t, []string{"alice/main", "alice/other"}, p.Compute["alice"])
}

func TestSealOpenValues(t *testing.T) {
	nodes, nodeKeys := testNodes(t, 3)
	_, sender, err := crypto.GenerateExchangeKeyPair()
	require.NoError(t, err)

	values := NadaValues{
		"a":    NewSecretInteger(-5),
		"b":    NewSecretBoolean(true),
		"t":    NewPublicInteger(4),
		"flag": NewPublicBoolean(false),
	}

	encoded, err := SealValues(sender, nodes, "cluster", "nonce-1", values)
	require.NoError(t, err)
	require.Len(t, encoded["a"].Shares, 3)
	require.Nil(t, encoded["a"].Clear)
	require.NotNil(t, encoded["t"].Clear)
	require.Empty(t, encoded["t"].Shares)

	// each node can open its own share of a
	senderPub := sender.PublicKey()
	var shares []*big.Int
	for i, key := range nodeKeys {
		shared, err := crypto.DeriveSharedSecret(key, senderPub, ShareKeyInfo("cluster"))
		require.NoError(t, err)
		share, err := OpenShare(shared, "nonce-1", "a", encoded["a"].Shares[i])
		require.NoError(t, err)
		shares = append(shares, share)

		_, err = OpenShare(shared, "nonce-2", "a", encoded["a"].Shares[i])
		require.Error(t, err)
	}
	got, err := crypto.DecodeInt64(crypto.ReconstructAdditive(shares))
	require.NoError(t, err)
	require.Equal(t, int64(-5), got)

	// the sender can open its own upload
	opened, err := OpenValues(sender, nodes, "cluster", "nonce-1", encoded)
	require.NoError(t, err)
	require.Equal(t, values, opened)

	_, err = OpenValues(sender, nodes[:2], "cluster", "nonce-1", encoded)
	require.Error(t, err)
}

func TestValueFromFieldElement(t *testing.T) {
	v, err := ValueFromFieldElement(SecretBoolean, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, "true", v.String())

	_, err = ValueFromFieldElement(SecretBoolean, big.NewInt(2))
	require.Error(t, err)

	v, err = ValueFromFieldElement(SecretInteger, crypto.EncodeInt64(-3))
	require.NoError(t, err)
	require.Equal(t, "-3", v.String())

	_, err = ValueFromFieldElement("Float", big.NewInt(1))
	require.Error(t, err)
}
