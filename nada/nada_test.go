package nada

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flashbots/nada-quickstart/protocol"
	"github.com/stretchr/testify/require"
)

func sumProgram() *Program {
	p := NewProgram("sum")
	alice := p.Party("Alice")
	bob := p.Party("Bob")
	a := p.SecretInteger("a", alice)
	b := p.PublicInteger("b", bob)
	p.Output(a.Add(b), "sum", bob)
	p.Output(b.Sub(a).LessThan(b), "a_positive", alice)
	return p
}

func TestCompileTypes(t *testing.T) {
	artifact, err := sumProgram().Compile()
	require.NoError(t, err)

	require.Equal(t, []Operation{
		{Kind: OpInput, Input: "a", Type: protocol.SecretInteger},
		{Kind: OpInput, Input: "b", Type: protocol.PublicInteger},
		{Kind: OpAdd, Operands: []int{0, 1}, Type: protocol.SecretInteger},
		{Kind: OpSub, Operands: []int{1, 0}, Type: protocol.SecretInteger},
		{Kind: OpLessThan, Operands: []int{3, 1}, Type: protocol.SecretBoolean},
	}, artifact.Operations)

	require.Equal(t, []string{"Alice", "Bob"}, artifact.InputParties())
	require.Equal(t, []string{"Bob", "Alice"}, artifact.OutputParties())
}

func TestCompilePublicOnly(t *testing.T) {
	p := NewProgram("public")
	alice := p.Party("Alice")
	x := p.PublicInteger("x", alice)
	y := p.PublicInteger("y", alice)
	p.Output(x.GreaterThan(y), "gt", alice)

	artifact, err := p.Compile()
	require.NoError(t, err)
	require.Equal(t, protocol.PublicBoolean, artifact.Outputs[0].Type)
}

func TestCompileDropsDeadOperations(t *testing.T) {
	p := NewProgram("dead")
	alice := p.Party("Alice")
	x := p.SecretInteger("x", alice)
	y := p.SecretInteger("y", alice)
	x.Add(y).Add(y) // never output
	p.Output(x.Sub(y), "diff", alice)

	artifact, err := p.Compile()
	require.NoError(t, err)
	require.Len(t, artifact.Operations, 3)
	require.Equal(t, 2, artifact.Outputs[0].Operation)
	require.Equal(t, OpSub, artifact.Operations[2].Kind)
}

func TestCompileErrors(t *testing.T) {
	t.Run("undeclared party", func(t *testing.T) {
		other := NewProgram("other").Party("Mallory")
		p := NewProgram("p")
		alice := p.Party("Alice")
		x := p.SecretInteger("x", other)
		p.Output(x, "x", alice)
		_, err := p.Compile()
		require.ErrorIs(t, err, ErrUndeclaredParty)
	})

	t.Run("nil party", func(t *testing.T) {
		p := NewProgram("p")
		alice := p.Party("Alice")
		x := p.SecretInteger("x", alice)
		p.Output(x, "x", nil)
		_, err := p.Compile()
		require.ErrorIs(t, err, ErrUndeclaredParty)
	})

	t.Run("duplicate input", func(t *testing.T) {
		p := NewProgram("p")
		alice := p.Party("Alice")
		x := p.SecretInteger("x", alice)
		p.PublicInteger("x", alice)
		p.Output(x, "x", alice)
		_, err := p.Compile()
		require.ErrorIs(t, err, ErrDuplicateName)
	})

	t.Run("duplicate output", func(t *testing.T) {
		p := NewProgram("p")
		alice := p.Party("Alice")
		x := p.SecretInteger("x", alice)
		p.Output(x, "out", alice)
		p.Output(x, "out", alice)
		_, err := p.Compile()
		require.ErrorIs(t, err, ErrDuplicateName)
	})

	t.Run("duplicate party", func(t *testing.T) {
		p := NewProgram("p")
		alice := p.Party("Alice")
		p.Party("Alice")
		p.Output(p.SecretInteger("x", alice), "x", alice)
		_, err := p.Compile()
		require.ErrorIs(t, err, ErrDuplicateName)
	})

	t.Run("foreign value", func(t *testing.T) {
		other := NewProgram("other")
		y := other.SecretInteger("y", other.Party("Bob"))
		p := NewProgram("p")
		alice := p.Party("Alice")
		x := p.SecretInteger("x", alice)
		p.Output(x.Add(y), "sum", alice)
		_, err := p.Compile()
		require.ErrorIs(t, err, ErrForeignValue)
	})

	t.Run("arithmetic on booleans", func(t *testing.T) {
		p := NewProgram("p")
		alice := p.Party("Alice")
		x := p.SecretInteger("x", alice)
		flag := p.SecretBoolean("flag", alice)
		p.Output(x.GreaterThan(x).Add(flag), "bad", alice)
		_, err := p.Compile()
		require.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("no outputs", func(t *testing.T) {
		p := NewProgram("p")
		p.SecretInteger("x", p.Party("Alice"))
		_, err := p.Compile()
		require.ErrorIs(t, err, ErrNoOutputs)
	})
}

func TestArtifactEncoding(t *testing.T) {
	artifact, err := sumProgram().Compile()
	require.NoError(t, err)

	first, err := EncodeArtifact(artifact)
	require.NoError(t, err)
	second, err := EncodeArtifact(artifact)
	require.NoError(t, err)
	require.Equal(t, first, second)

	decoded, err := DecodeArtifact(first)
	require.NoError(t, err)
	require.Equal(t, artifact, decoded)

	d1, err := artifact.Digest()
	require.NoError(t, err)
	d2, err := decoded.Digest()
	require.NoError(t, err)
	require.Equal(t, d1, d2)

	_, err = DecodeArtifact([]byte("not cbor"))
	require.Error(t, err)
}

func TestDecodeRejectsInvalidGraphs(t *testing.T) {
	base := func() *Artifact {
		a, err := sumProgram().Compile()
		require.NoError(t, err)
		return a
	}

	for _, tc := range []struct {
		name   string
		mutate func(a *Artifact)
	}{
		{"version", func(a *Artifact) { a.Version = 99 }},
		{"forward reference", func(a *Artifact) { a.Operations[2].Operands = []int{0, 3} }},
		{"wrong result type", func(a *Artifact) { a.Operations[2].Type = protocol.PublicInteger }},
		{"unknown op", func(a *Artifact) { a.Operations[2].Kind = "mul" }},
		{"undeclared input", func(a *Artifact) { a.Operations[0].Input = "zzz" }},
		{"unknown party", func(a *Artifact) { a.Outputs[0].Party = "Eve" }},
		{"output out of range", func(a *Artifact) { a.Outputs[0].Operation = 42 }},
		{"no outputs", func(a *Artifact) { a.Outputs = nil }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := base()
			tc.mutate(a)
			data, err := EncodeArtifact(a)
			require.NoError(t, err)
			_, err = DecodeArtifact(data)
			require.Error(t, err)
		})
	}
}

func TestArtifactFile(t *testing.T) {
	artifact, err := sumProgram().Compile()
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "target")
	path, err := WriteArtifactFile(dir, artifact)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "sum.nada.bin"), path)

	read, err := ReadArtifactFile(path)
	require.NoError(t, err)
	require.Equal(t, artifact, read)

	_, err = ReadArtifactFile(filepath.Join(dir, "missing.nada.bin"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestEvaluate(t *testing.T) {
	artifact, err := sumProgram().Compile()
	require.NoError(t, err)

	out, err := Evaluate(artifact, protocol.NadaValues{
		"a": protocol.NewSecretInteger(3),
		"b": protocol.NewPublicInteger(10),
	})
	require.NoError(t, err)
	require.Equal(t, protocol.NewSecretInteger(13), out["sum"])
	require.Equal(t, protocol.NewSecretBoolean(true), out["a_positive"])

	_, err = Evaluate(artifact, protocol.NadaValues{"a": protocol.NewSecretInteger(3)})
	require.Error(t, err)

	_, err = Evaluate(artifact, protocol.NadaValues{
		"a": protocol.NewPublicInteger(3),
		"b": protocol.NewPublicInteger(10),
	})
	require.Error(t, err)
}
