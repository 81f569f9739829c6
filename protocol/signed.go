package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/flashbots/nada-quickstart/crypto"
)

// ErrBadSignature is returned when a signed message does not verify.
var ErrBadSignature = errors.New("signature not valid")

// signingDomain prefixes every signed payload.
const signingDomain = "nada-quickstart/signed/v1\x00"

// Signed is an object together with its signer's key and signature.
// Clients sign every request with their user key; the cluster signs quotes.
// The signature covers the signer's key and the JSON encoding of the object.
type Signed[T any] struct {
	PublicKey crypto.PublicKey `json:"public_key"`
	Signature crypto.Signature `json:"signature"`
	Object    *T               `json:"object"`
}

func signingPayload[T any](obj *T, signer crypto.PublicKey) ([]byte, error) {
	body, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, len(signingDomain)+len(signer)+len(body))
	payload = append(payload, signingDomain...)
	payload = append(payload, signer...)
	return append(payload, body...), nil
}

// NewSigned signs obj with key.
func NewSigned[T any](key crypto.PrivateKey, obj *T) (*Signed[T], error) {
	if obj == nil {
		return nil, errors.New("nothing to sign")
	}
	signer, err := key.PublicKey()
	if err != nil {
		return nil, err
	}
	payload, err := signingPayload(obj, signer)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(key, payload)
	if err != nil {
		return nil, err
	}
	return &Signed[T]{PublicKey: signer, Signature: sig, Object: obj}, nil
}

// Recover verifies the signature and returns the object and its signer.
func (s *Signed[T]) Recover() (*T, crypto.PublicKey, error) {
	if s == nil || s.Object == nil {
		return nil, nil, errors.New("empty signed message")
	}
	payload, err := signingPayload(s.Object, s.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	if !s.Signature.Verify(s.PublicKey, payload) {
		return nil, nil, ErrBadSignature
	}
	return s.Object, s.PublicKey, nil
}

// RecoverFrom is Recover that also requires a specific signer.
func (s *Signed[T]) RecoverFrom(signer crypto.PublicKey) (*T, error) {
	obj, pubkey, err := s.Recover()
	if err != nil {
		return nil, err
	}
	if !pubkey.Equal(signer) {
		return nil, fmt.Errorf("%w: signed by %s, expected %s", ErrBadSignature, pubkey, signer)
	}
	return obj, nil
}

// DecodeMessage reads one JSON message.
func DecodeMessage[T any](r io.Reader) (*T, error) {
	var msg T
	if err := json.NewDecoder(r).Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
