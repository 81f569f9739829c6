package nada

import (
	"errors"
	"fmt"

	"github.com/flashbots/nada-quickstart/protocol"
)

var (
	// ErrUndeclaredParty is returned when a party that was not declared by
	// the program owns an input or receives an output.
	ErrUndeclaredParty = errors.New("undeclared party")
	// ErrDuplicateName is returned when a party, input or output name is reused.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrForeignValue is returned when a value from another program is used.
	ErrForeignValue = errors.New("value belongs to another program")
	// ErrTypeMismatch is returned when an operator is applied to unsupported types.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrNoOutputs is returned when compiling a program without outputs.
	ErrNoOutputs = errors.New("program declares no outputs")
)

// Party is a named participant of a program.
type Party struct {
	program *Program
	name    string
}

// Name returns the party name.
func (p *Party) Name() string { return p.name }

// Value is a typed node of the expression graph under construction.
type Value struct {
	program *Program
	op      int
	typ     protocol.ValueType
}

// Type returns the value type.
func (v *Value) Type() protocol.ValueType { return v.typ }

// Program builds an expression graph. Builder methods never fail; the first
// error is kept and reported by Compile.
type Program struct {
	name    string
	parties []*Party
	inputs  []Input
	ops     []Operation
	outputs []Output
	err     error
}

// NewProgram starts a program definition.
func NewProgram(name string) *Program {
	return &Program{name: name}
}

// Name returns the program name.
func (p *Program) Name() string { return p.name }

func (p *Program) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

// Party declares a party.
func (p *Program) Party(name string) *Party {
	for _, existing := range p.parties {
		if existing.name == name {
			p.fail(fmt.Errorf("%w: party %s", ErrDuplicateName, name))
			return existing
		}
	}
	party := &Party{program: p, name: name}
	p.parties = append(p.parties, party)
	return party
}

// SecretInteger declares a secret integer input owned by party.
func (p *Program) SecretInteger(name string, party *Party) *Value {
	return p.input(name, party, protocol.SecretInteger)
}

// PublicInteger declares a public integer input owned by party.
func (p *Program) PublicInteger(name string, party *Party) *Value {
	return p.input(name, party, protocol.PublicInteger)
}

// SecretBoolean declares a secret boolean input owned by party.
func (p *Program) SecretBoolean(name string, party *Party) *Value {
	return p.input(name, party, protocol.SecretBoolean)
}

func (p *Program) input(name string, party *Party, typ protocol.ValueType) *Value {
	if !p.owns(party) {
		p.fail(fmt.Errorf("%w: input %s", ErrUndeclaredParty, name))
	}
	for _, in := range p.inputs {
		if in.Name == name {
			p.fail(fmt.Errorf("%w: input %s", ErrDuplicateName, name))
		}
	}

	partyName := ""
	if party != nil {
		partyName = party.name
	}
	p.inputs = append(p.inputs, Input{Name: name, Party: partyName, Type: typ})
	return p.push(Operation{Kind: OpInput, Input: name, Type: typ})
}

func (p *Program) owns(party *Party) bool {
	return party != nil && party.program == p
}

func (p *Program) push(op Operation) *Value {
	p.ops = append(p.ops, op)
	return &Value{program: p, op: len(p.ops) - 1, typ: op.Type}
}

// Add returns v + o.
func (v *Value) Add(o *Value) *Value { return v.binary(OpAdd, o) }

// Sub returns v - o.
func (v *Value) Sub(o *Value) *Value { return v.binary(OpSub, o) }

// GreaterThan returns v > o.
func (v *Value) GreaterThan(o *Value) *Value { return v.binary(OpGreaterThan, o) }

// LessThan returns v < o.
func (v *Value) LessThan(o *Value) *Value { return v.binary(OpLessThan, o) }

func (v *Value) binary(kind OpKind, o *Value) *Value {
	p := v.program
	if o == nil || o.program != p {
		p.fail(fmt.Errorf("%w: operand of %s", ErrForeignValue, kind))
		return &Value{program: p, op: v.op, typ: v.typ}
	}

	typ, err := resultType(kind, v.typ, o.typ)
	if err != nil {
		p.fail(err)
		return &Value{program: p, op: v.op, typ: v.typ}
	}
	return p.push(Operation{Kind: kind, Operands: []int{v.op, o.op}, Type: typ})
}

// resultType applies the typing rules: arithmetic and comparisons take
// integers, and the result is secret if any operand is secret.
func resultType(kind OpKind, l, r protocol.ValueType) (protocol.ValueType, error) {
	if l.IsBoolean() || r.IsBoolean() {
		return "", fmt.Errorf("%w: %s on %s and %s", ErrTypeMismatch, kind, l, r)
	}
	secret := l.IsSecret() || r.IsSecret()
	switch {
	case kind.IsComparison() && secret:
		return protocol.SecretBoolean, nil
	case kind.IsComparison():
		return protocol.PublicBoolean, nil
	case secret:
		return protocol.SecretInteger, nil
	default:
		return protocol.PublicInteger, nil
	}
}

// Output declares a named output delivered to party.
func (p *Program) Output(v *Value, name string, party *Party) {
	if v == nil || v.program != p {
		p.fail(fmt.Errorf("%w: output %s", ErrForeignValue, name))
		return
	}
	if !p.owns(party) {
		p.fail(fmt.Errorf("%w: output %s", ErrUndeclaredParty, name))
		return
	}
	for _, out := range p.outputs {
		if out.Name == name {
			p.fail(fmt.Errorf("%w: output %s", ErrDuplicateName, name))
			return
		}
	}
	p.outputs = append(p.outputs, Output{Name: name, Party: party.name, Operation: v.op, Type: v.typ})
}

// Compile produces the artifact. Operations that no output depends on are
// dropped; every declared input is kept.
func (p *Program) Compile() (*Artifact, error) {
	if p.err != nil {
		return nil, p.err
	}
	if len(p.outputs) == 0 {
		return nil, ErrNoOutputs
	}

	live := make([]bool, len(p.ops))
	for _, out := range p.outputs {
		live[out.Operation] = true
	}
	for i := len(p.ops) - 1; i >= 0; i-- {
		if p.ops[i].Kind == OpInput {
			live[i] = true
		}
		if !live[i] {
			continue
		}
		for _, operand := range p.ops[i].Operands {
			live[operand] = true
		}
	}

	renumber := make([]int, len(p.ops))
	var ops []Operation
	for i, op := range p.ops {
		if !live[i] {
			continue
		}
		operands := make([]int, len(op.Operands))
		for j, operand := range op.Operands {
			operands[j] = renumber[operand]
		}
		if len(operands) == 0 {
			operands = nil
		}
		renumber[i] = len(ops)
		ops = append(ops, Operation{Kind: op.Kind, Input: op.Input, Operands: operands, Type: op.Type})
	}

	outputs := make([]Output, len(p.outputs))
	for i, out := range p.outputs {
		out.Operation = renumber[out.Operation]
		outputs[i] = out
	}

	parties := make([]string, len(p.parties))
	for i, party := range p.parties {
		parties[i] = party.name
	}

	a := &Artifact{
		Version:    ArtifactVersion,
		Name:       p.name,
		Parties:    parties,
		Inputs:     append([]Input(nil), p.inputs...),
		Operations: ops,
		Outputs:    outputs,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}
