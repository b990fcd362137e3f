// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nddma

import (
	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/support/sets"
	"github.com/pkg/errors"
)

// transposePair is a load and the transpose inserted after it, to be merged once the graph has
// been laid out.
type transposePair struct {
	load, transpose kernelgraph.NodeID

	// origin is the name of the transpose that was folded.
	origin string
}

// foldTransposes pushes every foldable transpose up to the loads it reads from.
func (c *canonicalizer) foldTransposes() []transposePair {
	var pairs []transposePair
	for _, transpose := range c.g.NodesOfKind(kernelgraph.KindTranspose) {
		folded, err := c.foldTranspose(transpose)
		if err != nil {
			c.skip(transpose, err)
			continue
		}
		pairs = append(pairs, folded...)
		c.report.Transposes++
	}
	if len(pairs) > 0 {
		if err := c.g.TopoSort(); err != nil {
			panic(errors.WithMessage(err, "sorting graph after folding transposes"))
		}
	}
	return pairs
}

// relayout is a new tensor for an output, collected before mutating the graph.
type relayout struct {
	output *kernelgraph.Output
	tensor *kernelgraph.Tensor
}

// foldTranspose rewrites Load -> (Elementwise|Cast|Pad)* -> Transpose into
// Load -> Transpose' -> (Elementwise|Cast|Pad)*, with the intermediate tensors in the transposed
// order.
func (c *canonicalizer) foldTranspose(transpose *kernelgraph.Node) ([]transposePair, error) {
	if transpose.NumInputs() != 1 || transpose.NumOutputs() != 1 {
		return nil, errors.Wrapf(errUnsupported, "transpose with %d inputs and %d outputs",
			transpose.NumInputs(), transpose.NumOutputs())
	}
	order := transpose.Outputs[0].Tensor.Axes
	vectorized := transpose.Outputs[0].Tensor.VectorizedAxes

	// Walk back to the loads.
	var chain, loads []*kernelgraph.Node
	inside := sets.MakeWith(transpose.ID)
	visited := sets.Make[kernelgraph.NodeID]()
	stack := []*kernelgraph.Node{c.g.Producer(transpose, 0)}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visited.InsertNew(node.ID) {
			continue
		}
		switch {
		case node.Kind == kernelgraph.KindScalar:
			continue
		case node.Kind == kernelgraph.KindLoad:
			loads = append(loads, node)
		case node.Kind.IsElementwiseLike():
			chain = append(chain, node)
			stack = append(stack, c.g.ProducerNodes(node)...)
		default:
			return nil, errors.Wrapf(errUnsupported, "%s in the chain of transpose", node)
		}
		inside.Insert(node.ID)
	}
	if len(loads) == 0 {
		return nil, errors.Wrap(errUnsupported, "no load feeding the transpose")
	}
	for _, node := range append(chain, loads...) {
		for _, consumer := range c.g.ConsumerNodes(node) {
			if !inside.Has(consumer.ID) {
				return nil, errors.Wrapf(errUnsupported, "%s also feeds %s", node, consumer)
			}
		}
	}

	// Collect the new layouts before changing anything.
	var relayouts []relayout
	for _, node := range chain {
		for _, output := range node.Outputs {
			permuted, err := output.Tensor.Permute(order, vectorized)
			if err != nil {
				return nil, errors.Wrapf(errUnsupported, "%s: %v", node, err)
			}
			relayouts = append(relayouts, relayout{output, permuted})
		}
	}
	loadTensors := make([]*kernelgraph.Tensor, len(loads))
	for i, load := range loads {
		permuted, err := load.Outputs[0].Tensor.Permute(order, vectorized)
		if err != nil {
			return nil, errors.Wrapf(errUnsupported, "%s: %v", load, err)
		}
		loadTensors[i] = permuted
	}

	for _, r := range relayouts {
		r.output.Tensor = r.tensor
	}
	pairs := make([]transposePair, len(loads))
	for i, load := range loads {
		id := c.g.InsertAfter(load.OutputRef(0), load.Name+"_"+transpose.Name, kernelgraph.KindTranspose, loadTensors[i])
		pairs[i] = transposePair{load: load.ID, transpose: id, origin: transpose.Name}
	}
	c.g.RewireConsumers(transpose.OutputRef(0), transpose.Inputs[0])
	c.removeNode(transpose)
	return pairs, nil
}

// mergePairs merges each load with the transpose inserted after it, taking the transpose's
// final layout.
func (c *canonicalizer) mergePairs(pairs []transposePair) {
	for _, pair := range pairs {
		load := c.g.MustNode(pair.load)
		transpose := c.g.MustNode(pair.transpose)
		load.Outputs[0].Tensor = transpose.Outputs[0].Tensor.Clone()
		load.Kind = kernelgraph.KindNDDMA
		load.Attrs.MergedFrom = append(load.Attrs.MergedFrom, pair.origin)
		c.result.States.Set(load.OutputRef(0), c.result.Type(transpose.OutputRef(0)))
		c.g.RewireConsumers(transpose.OutputRef(0), load.OutputRef(0))
		c.removeNode(transpose)
		c.merged.Insert(load.ID)
	}
}
