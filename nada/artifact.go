package nada

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flashbots/nada-quickstart/protocol"
	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// ArtifactVersion is the encoding version written into compiled artifacts.
const ArtifactVersion = 1

// ArtifactExtension is appended to the program name to form the artifact file name.
const ArtifactExtension = ".nada.bin"

// OpKind identifies an operation in the expression graph.
type OpKind string

const (
	OpInput       OpKind = "input"
	OpAdd         OpKind = "add"
	OpSub         OpKind = "sub"
	OpGreaterThan OpKind = "gt"
	OpLessThan    OpKind = "lt"
)

func (k OpKind) arity() int {
	switch k {
	case OpInput:
		return 0
	case OpAdd, OpSub, OpGreaterThan, OpLessThan:
		return 2
	}
	return -1
}

// IsComparison reports whether the operation produces a boolean.
func (k OpKind) IsComparison() bool {
	return k == OpGreaterThan || k == OpLessThan
}

// Operation is a node of the expression graph. Operands index earlier operations.
type Operation struct {
	Kind     OpKind             `cbor:"kind"`
	Input    string             `cbor:"input,omitempty"`
	Operands []int              `cbor:"operands,omitempty"`
	Type     protocol.ValueType `cbor:"type"`
}

// Input is a declared program input.
type Input struct {
	Name  string             `cbor:"name"`
	Party string             `cbor:"party"`
	Type  protocol.ValueType `cbor:"type"`
}

// Output is a named program output delivered to one party.
type Output struct {
	Name      string             `cbor:"name"`
	Party     string             `cbor:"party"`
	Operation int                `cbor:"operation"`
	Type      protocol.ValueType `cbor:"type"`
}

// Artifact is the compiled, network-executable form of a program.
// Operations are in topological order.
type Artifact struct {
	Version    int         `cbor:"version"`
	Name       string      `cbor:"name"`
	Parties    []string    `cbor:"parties"`
	Inputs     []Input     `cbor:"inputs"`
	Operations []Operation `cbor:"operations"`
	Outputs    []Output    `cbor:"outputs"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// EncodeArtifact serializes the artifact with deterministic CBOR.
func EncodeArtifact(a *Artifact) ([]byte, error) {
	return encMode.Marshal(a)
}

// DecodeArtifact parses and validates an encoded artifact.
func DecodeArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Digest is the BLAKE3-256 hash of the artifact encoding.
func (a *Artifact) Digest() ([32]byte, error) {
	data, err := EncodeArtifact(a)
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(data), nil
}

// Input looks up a declared input by name.
func (a *Artifact) Input(name string) (Input, bool) {
	for _, in := range a.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return Input{}, false
}

// InputParties returns the parties that own at least one input, in declaration order.
func (a *Artifact) InputParties() []string {
	var parties []string
	seen := map[string]bool{}
	for _, in := range a.Inputs {
		if !seen[in.Party] {
			seen[in.Party] = true
			parties = append(parties, in.Party)
		}
	}
	return parties
}

// OutputParties returns the parties receiving at least one output, in declaration order.
func (a *Artifact) OutputParties() []string {
	var parties []string
	seen := map[string]bool{}
	for _, out := range a.Outputs {
		if !seen[out.Party] {
			seen[out.Party] = true
			parties = append(parties, out.Party)
		}
	}
	return parties
}

// Validate checks the structural invariants of an artifact. Artifacts come
// from untrusted uploads, so the cluster validates before evaluating.
func (a *Artifact) Validate() error {
	if a.Version != ArtifactVersion {
		return fmt.Errorf("unsupported artifact version %d", a.Version)
	}
	if a.Name == "" {
		return errors.New("artifact has no name")
	}
	if len(a.Outputs) == 0 {
		return ErrNoOutputs
	}

	parties := map[string]bool{}
	for _, p := range a.Parties {
		if parties[p] {
			return fmt.Errorf("%w: party %s", ErrDuplicateName, p)
		}
		parties[p] = true
	}

	inputs := map[string]Input{}
	for _, in := range a.Inputs {
		if _, dup := inputs[in.Name]; dup {
			return fmt.Errorf("%w: input %s", ErrDuplicateName, in.Name)
		}
		if !parties[in.Party] {
			return fmt.Errorf("%w: %s owns input %s", ErrUndeclaredParty, in.Party, in.Name)
		}
		if !in.Type.Valid() {
			return fmt.Errorf("input %s: unknown type %q", in.Name, in.Type)
		}
		inputs[in.Name] = in
	}

	for i, op := range a.Operations {
		if op.Kind.arity() < 0 {
			return fmt.Errorf("operation %d: unknown kind %q", i, op.Kind)
		}
		if len(op.Operands) != op.Kind.arity() {
			return fmt.Errorf("operation %d: expected %d operands", i, op.Kind.arity())
		}
		operandTypes := make([]protocol.ValueType, len(op.Operands))
		for j, operand := range op.Operands {
			if operand < 0 || operand >= i {
				return fmt.Errorf("operation %d: operand %d is not an earlier operation", i, operand)
			}
			operandTypes[j] = a.Operations[operand].Type
		}

		var want protocol.ValueType
		if op.Kind == OpInput {
			in, ok := inputs[op.Input]
			if !ok {
				return fmt.Errorf("operation %d: undeclared input %s", i, op.Input)
			}
			want = in.Type
		} else {
			var err error
			want, err = resultType(op.Kind, operandTypes[0], operandTypes[1])
			if err != nil {
				return fmt.Errorf("operation %d: %w", i, err)
			}
		}
		if op.Type != want {
			return fmt.Errorf("operation %d: type %s, expected %s", i, op.Type, want)
		}
	}

	outputs := map[string]bool{}
	for _, out := range a.Outputs {
		if outputs[out.Name] {
			return fmt.Errorf("%w: output %s", ErrDuplicateName, out.Name)
		}
		outputs[out.Name] = true
		if !parties[out.Party] {
			return fmt.Errorf("%w: %s receives output %s", ErrUndeclaredParty, out.Party, out.Name)
		}
		if out.Operation < 0 || out.Operation >= len(a.Operations) {
			return fmt.Errorf("output %s: no such operation %d", out.Name, out.Operation)
		}
		if a.Operations[out.Operation].Type != out.Type {
			return fmt.Errorf("output %s: type mismatch", out.Name)
		}
	}
	return nil
}

// ArtifactFileName returns the file name of the compiled program.
func ArtifactFileName(programName string) string {
	return programName + ArtifactExtension
}

// WriteArtifactFile writes the encoded artifact to <dir>/<name>.nada.bin and
// returns the written path.
func WriteArtifactFile(dir string, a *Artifact) (string, error) {
	data, err := EncodeArtifact(a)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ArtifactFileName(a.Name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ReadArtifactFile reads and decodes an artifact file.
func ReadArtifactFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeArtifact(data)
}
