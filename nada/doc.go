// Package nada defines programs for the cluster and compiles them into
// artifacts.
//
// A program declares parties, inputs owned by exactly one party, derived
// values built with Add, Sub, GreaterThan and LessThan, and outputs delivered
// to exactly one party:
//
//	p := nada.NewProgram("main")
//	alice := p.Party("Alice")
//	a := p.SecretInteger("a", alice)
//	b := p.PublicInteger("b", alice)
//	p.Output(a.Add(b), "sum", alice)
//	artifact, err := p.Compile()
//
// Compiled artifacts are encoded with deterministic CBOR and stored as
// <name>.nada.bin. Evaluate runs an artifact in cleartext and is the
// reference the cluster's results are tested against.
package nada
