package nada

import (
	"fmt"
	"math/big"

	"github.com/flashbots/nada-quickstart/protocol"
)

// Evaluate runs the artifact in cleartext. Input types must match the
// declarations. Integer results outside the int64 range are an error.
func Evaluate(a *Artifact, inputs protocol.NadaValues) (protocol.NadaValues, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	for _, in := range a.Inputs {
		v, ok := inputs[in.Name]
		if !ok {
			return nil, fmt.Errorf("missing input %s", in.Name)
		}
		if v.Type != in.Type {
			return nil, fmt.Errorf("input %s: got %s, declared %s", in.Name, v.Type, in.Type)
		}
	}

	wires := make([]*big.Int, len(a.Operations))
	for i, op := range a.Operations {
		switch op.Kind {
		case OpInput:
			v := inputs[op.Input]
			if v.Type.IsBoolean() {
				wires[i] = boolInt(v.Boolean)
			} else {
				wires[i] = big.NewInt(v.Integer)
			}
		case OpAdd:
			wires[i] = new(big.Int).Add(wires[op.Operands[0]], wires[op.Operands[1]])
		case OpSub:
			wires[i] = new(big.Int).Sub(wires[op.Operands[0]], wires[op.Operands[1]])
		case OpGreaterThan:
			wires[i] = boolInt(wires[op.Operands[0]].Cmp(wires[op.Operands[1]]) > 0)
		case OpLessThan:
			wires[i] = boolInt(wires[op.Operands[0]].Cmp(wires[op.Operands[1]]) < 0)
		}
	}

	result := make(protocol.NadaValues, len(a.Outputs))
	for _, out := range a.Outputs {
		w := wires[out.Operation]
		if out.Type.IsBoolean() {
			result[out.Name] = protocol.NadaValue{Type: out.Type, Boolean: w.Sign() != 0}
			continue
		}
		if !w.IsInt64() {
			return nil, fmt.Errorf("output %s overflows int64", out.Name)
		}
		result[out.Name] = protocol.NadaValue{Type: out.Type, Integer: w.Int64()}
	}
	return result, nil
}

func boolInt(b bool) *big.Int {
	if b {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}
