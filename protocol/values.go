package protocol

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strconv"

	"github.com/flashbots/nada-quickstart/crypto"
)

// ValueType is the runtime type of a Nada value.
type ValueType string

const (
	SecretInteger ValueType = "SecretInteger"
	PublicInteger ValueType = "PublicInteger"
	SecretBoolean ValueType = "SecretBoolean"
	PublicBoolean ValueType = "PublicBoolean"
)

// Valid reports whether t is one of the known value types.
func (t ValueType) Valid() bool {
	switch t {
	case SecretInteger, PublicInteger, SecretBoolean, PublicBoolean:
		return true
	}
	return false
}

// IsSecret reports whether values of this type are secret shared.
func (t ValueType) IsSecret() bool {
	return t == SecretInteger || t == SecretBoolean
}

// IsBoolean reports whether t is a boolean type.
func (t ValueType) IsBoolean() bool {
	return t == SecretBoolean || t == PublicBoolean
}

// NadaValue is a typed value stored in or produced by the network.
type NadaValue struct {
	Type    ValueType `json:"type"`
	Integer int64     `json:"integer,omitempty"`
	Boolean bool      `json:"boolean,omitempty"`
}

func NewSecretInteger(v int64) NadaValue { return NadaValue{Type: SecretInteger, Integer: v} }
func NewPublicInteger(v int64) NadaValue { return NadaValue{Type: PublicInteger, Integer: v} }
func NewSecretBoolean(v bool) NadaValue  { return NadaValue{Type: SecretBoolean, Boolean: v} }
func NewPublicBoolean(v bool) NadaValue  { return NadaValue{Type: PublicBoolean, Boolean: v} }

// String formats the value without its type, e.g. "15" or "true".
func (v NadaValue) String() string {
	if v.Type.IsBoolean() {
		return strconv.FormatBool(v.Boolean)
	}
	return strconv.FormatInt(v.Integer, 10)
}

// FieldElement encodes the value into the share field. Booleans map to 0 and 1.
func (v NadaValue) FieldElement() *big.Int {
	if v.Type.IsBoolean() {
		if v.Boolean {
			return big.NewInt(1)
		}
		return big.NewInt(0)
	}
	return crypto.EncodeInt64(v.Integer)
}

// ValueFromFieldElement decodes a field element into a value of type t.
func ValueFromFieldElement(t ValueType, el *big.Int) (NadaValue, error) {
	if !t.Valid() {
		return NadaValue{}, fmt.Errorf("unknown value type %q", t)
	}
	if t.IsBoolean() {
		switch {
		case el.Sign() == 0:
			return NadaValue{Type: t, Boolean: false}, nil
		case el.Cmp(big.NewInt(1)) == 0:
			return NadaValue{Type: t, Boolean: true}, nil
		default:
			return NadaValue{}, errors.New("boolean share does not reconstruct to 0 or 1")
		}
	}
	i, err := crypto.DecodeInt64(el)
	if err != nil {
		return NadaValue{}, err
	}
	return NadaValue{Type: t, Integer: i}, nil
}

// NadaValues maps value names to values.
type NadaValues map[string]NadaValue

// Names returns the value names in sorted order.
func (v NadaValues) Names() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Types returns the type of every value, keyed by name.
func (v NadaValues) Types() map[string]ValueType {
	types := make(map[string]ValueType, len(v))
	for name, value := range v {
		types[name] = value.Type
	}
	return types
}

// EncodedValue is a value as it travels between clients and the cluster:
// public values in clear, secret values as one sealed share per node.
type EncodedValue struct {
	Type   ValueType            `json:"type"`
	Clear  *NadaValue           `json:"clear,omitempty"`
	Shares []crypto.SealedShare `json:"shares,omitempty"`
}

// ShareKeyInfo is the HKDF info used for share sealing keys within a cluster.
func ShareKeyInfo(clusterID string) []byte {
	return []byte("nada-quickstart/shares/" + clusterID)
}

// ShareAdditionalData binds a sealed share to its scope (a quote nonce or
// compute id) and value name.
func ShareAdditionalData(scope, name string) []byte {
	return []byte(scope + "/" + name)
}
