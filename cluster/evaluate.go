package cluster

import (
	"context"
	"fmt"
	"math/big"

	"github.com/flashbots/nada-quickstart/crypto"
	"github.com/flashbots/nada-quickstart/nada"
	"github.com/flashbots/nada-quickstart/node"
	"github.com/flashbots/nada-quickstart/protocol"
	"golang.org/x/sync/errgroup"
)

// evaluate runs the job over the nodes and returns the outputs keyed by
// receiving party id. Public wires are evaluated once in clear; secret wires
// live only as node shares.
func (c *Cluster) evaluate(ctx context.Context, job *computeJob) (map[string]map[string]protocol.EncodedValue, error) {
	a := job.artifact

	sessions, err := c.openInputs(ctx, job)
	if err != nil {
		return nil, err
	}

	public := make(map[int]*big.Int)
	for i, op := range a.Operations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch op.Kind {
		case nada.OpInput:
			if !op.Type.IsSecret() {
				ev := job.sources[job.inputs[op.Input]].values[op.Input]
				public[i] = ev.Clear.FieldElement()
			}

		case nada.OpAdd, nada.OpSub:
			if !op.Type.IsSecret() {
				l, r := public[op.Operands[0]], public[op.Operands[1]]
				res := new(big.Int).Set(l)
				if op.Kind == nada.OpAdd {
					crypto.FieldAddInplace(res, r, crypto.ShareFieldOrder)
				} else {
					crypto.FieldSubInplace(res, r, crypto.ShareFieldOrder)
				}
				public[i] = res
				continue
			}
			terms, constant := linearTerms(public, op.Operands[0], op.Operands[1], op.Kind == nada.OpSub)
			for _, s := range sessions {
				if err := s.Linear(i, terms, constant); err != nil {
					return nil, err
				}
			}

		case nada.OpGreaterThan, nada.OpLessThan:
			l, r := op.Operands[0], op.Operands[1]
			if op.Kind == nada.OpLessThan {
				l, r = r, l
			}
			if !op.Type.IsSecret() {
				diff := new(big.Int).Set(public[l])
				crypto.FieldSubInplace(diff, public[r], crypto.ShareFieldOrder)
				public[i] = boolElement(crypto.DecodeSigned(diff).Sign() > 0)
				continue
			}
			if err := compare(sessions, i, public, l, r); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("operation %d: unsupported kind %q", i, op.Kind)
		}
	}

	return c.sealOutputs(ctx, job, sessions, public)
}

func (c *Cluster) openInputs(ctx context.Context, job *computeJob) ([]*node.Session, error) {
	wires := map[string]int{}
	for i, op := range job.artifact.Operations {
		if op.Kind == nada.OpInput && op.Type.IsSecret() {
			wires[op.Input] = i
		}
	}

	sessions := make([]*node.Session, len(c.cfg.Nodes))
	g, _ := errgroup.WithContext(ctx)
	for i, n := range c.cfg.Nodes {
		s := n.NewSession()
		sessions[i] = s
		g.Go(func() error {
			for _, src := range job.sources {
				shares, err := n.OpenInputs(src.partyKey, src.scope, src.values)
				if err != nil {
					return fmt.Errorf("node %d: %w", n.Index(), err)
				}
				for name, share := range shares {
					if wire, ok := wires[name]; ok {
						s.Set(wire, share)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// linearTerms splits l ± r into secret terms and a public constant.
func linearTerms(public map[int]*big.Int, l, r int, negateRight bool) ([]node.Term, *big.Int) {
	var terms []node.Term
	constant := big.NewInt(0)
	for _, operand := range []struct {
		wire   int
		negate bool
	}{{l, false}, {r, negateRight}} {
		if v, ok := public[operand.wire]; ok {
			if operand.negate {
				crypto.FieldSubInplace(constant, v, crypto.ShareFieldOrder)
			} else {
				crypto.FieldAddInplace(constant, v, crypto.ShareFieldOrder)
			}
			continue
		}
		terms = append(terms, node.Term{Wire: operand.wire, Negate: operand.negate})
	}
	return terms, constant
}

// compare sets wire dst to shares of l > r. The difference l - r is opened
// inside the cluster; only the boolean result leaves as shares.
func compare(sessions []*node.Session, dst int, public map[int]*big.Int, l, r int) error {
	tmp := -(dst + 1)
	terms, constant := linearTerms(public, l, r, true)

	diffShares := make([]*big.Int, len(sessions))
	for k, s := range sessions {
		if err := s.Linear(tmp, terms, constant); err != nil {
			return err
		}
		share, err := s.Share(tmp)
		if err != nil {
			return err
		}
		diffShares[k] = share
	}

	diff := crypto.DecodeSigned(crypto.ReconstructAdditive(diffShares))
	shares, err := crypto.SplitAdditive(boolElement(diff.Sign() > 0), len(sessions), nil)
	if err != nil {
		return err
	}
	for k, s := range sessions {
		s.Set(dst, shares[k])
	}
	return nil
}

func (c *Cluster) sealOutputs(ctx context.Context, job *computeJob, sessions []*node.Session, public map[int]*big.Int) (map[string]map[string]protocol.EncodedValue, error) {
	outputs := make(map[string]map[string]protocol.EncodedValue)
	for _, out := range job.artifact.Outputs {
		partyID := job.bindings.OutputParties[out.Party]
		if outputs[partyID] == nil {
			outputs[partyID] = make(map[string]protocol.EncodedValue)
		}

		if !out.Type.IsSecret() {
			value, err := protocol.ValueFromFieldElement(out.Type, public[out.Operation])
			if err != nil {
				return nil, fmt.Errorf("output %s: %w", out.Name, err)
			}
			outputs[partyID][out.Name] = protocol.EncodedValue{Type: out.Type, Clear: &value}
			continue
		}

		shares := make([]*big.Int, len(sessions))
		for k, s := range sessions {
			share, err := s.Share(out.Operation)
			if err != nil {
				return nil, err
			}
			shares[k] = share
		}

		sealed := make([]crypto.SealedShare, len(sessions))
		key := job.outputKeys[out.Party]
		g, _ := errgroup.WithContext(ctx)
		for k, s := range sessions {
			g.Go(func() error {
				var err error
				sealed[k], err = s.Node().SealOutput(key, job.computeID, out.Name, shares[k])
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("output %s: %w", out.Name, err)
		}
		outputs[partyID][out.Name] = protocol.EncodedValue{Type: out.Type, Shares: sealed}
	}
	return outputs, nil
}

func boolElement(b bool) *big.Int {
	if b {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}
