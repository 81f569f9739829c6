package crypto

import (
	"errors"
	"math/big"
)

// ShareFieldOrder is the prime 2^127 - 1. Secret integers are additively
// shared in this field; signed values are mapped with EncodeInt64.
var ShareFieldOrder *big.Int

// FieldElementSize is the fixed encoding size of a share field element.
const FieldElementSize = 16

// ErrOutOfRange is returned when a field element does not decode into an int64.
var ErrOutOfRange = errors.New("field element out of int64 range")

var halfFieldOrder *big.Int

func init() {
	ShareFieldOrder = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	halfFieldOrder = new(big.Int).Rsh(ShareFieldOrder, 1)
}

// FieldAddInplace performs modular addition in-place: l = (l + r) mod fieldOrder.
// Both operands must already be reduced. The result is stored in l and also returned.
func FieldAddInplace(l *big.Int, r *big.Int, fieldOrder *big.Int) *big.Int {
	l.Add(l, r)
	if l.Cmp(fieldOrder) >= 0 {
		l.Sub(l, fieldOrder)
	}
	if l.Sign() < 0 {
		l.Add(l, fieldOrder)
	}
	return l
}

// FieldSubInplace performs modular subtraction in-place: l = (l - r) mod fieldOrder.
// The result is stored in l and also returned.
func FieldSubInplace(l *big.Int, r *big.Int, fieldOrder *big.Int) *big.Int {
	l.Sub(l, r)
	if l.Cmp(fieldOrder) >= 0 {
		l.Sub(l, fieldOrder)
	}
	if l.Sign() < 0 {
		l.Add(l, fieldOrder)
	}
	return l
}

// EncodeInt64 maps a signed integer into the share field.
// Negative values wrap to the upper half of the field.
func EncodeInt64(v int64) *big.Int {
	el := big.NewInt(v)
	if el.Sign() < 0 {
		el.Add(el, ShareFieldOrder)
	}
	return el
}

// DecodeSigned interprets a field element as a signed integer: elements in
// the upper half of the field are negative.
func DecodeSigned(el *big.Int) *big.Int {
	res := new(big.Int).Set(el)
	if res.Cmp(halfFieldOrder) > 0 {
		res.Sub(res, ShareFieldOrder)
	}
	return res
}

// DecodeInt64 is DecodeSigned restricted to the int64 range.
func DecodeInt64(el *big.Int) (int64, error) {
	res := DecodeSigned(el)
	if !res.IsInt64() {
		return 0, ErrOutOfRange
	}
	return res.Int64(), nil
}

// FieldElementBytes encodes a reduced field element as FieldElementSize big-endian bytes.
func FieldElementBytes(el *big.Int) []byte {
	out := make([]byte, FieldElementSize)
	return el.FillBytes(out)
}

// FieldElementFromBytes decodes a big-endian field element, rejecting
// encodings of the wrong size or not reduced modulo the field order.
func FieldElementFromBytes(data []byte) (*big.Int, error) {
	if len(data) != FieldElementSize {
		return nil, errors.New("invalid field element size")
	}
	el := new(big.Int).SetBytes(data)
	if el.Cmp(ShareFieldOrder) >= 0 {
		return nil, errors.New("field element not reduced")
	}
	return el, nil
}
