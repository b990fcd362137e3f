// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package align

import (
	"slices"

	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/support/sets"
	"github.com/pkg/errors"
)

// IsLoadFeedsReduce searches depth-first through the consumers of load for a Reduce node. The
// search stops at stores and boundary nodes. It returns the first reduce found.
func IsLoadFeedsReduce(g *kernelgraph.Graph, load *kernelgraph.Node) (*kernelgraph.Node, bool) {
	visited := sets.MakeWith(load.ID)
	stack := consumersReversed(g, load)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visited.InsertNew(node.ID) {
			continue
		}
		switch {
		case node.Kind == kernelgraph.KindReduce:
			return node, true
		case node.Kind == kernelgraph.KindStore, node.Kind.IsBoundary():
			continue
		}
		stack = append(stack, consumersReversed(g, node)...)
	}
	return nil, false
}

// consumersReversed returns the consumers of node in reverse order, so popping from a stack
// visits them in their original order.
func consumersReversed(g *kernelgraph.Graph, node *kernelgraph.Node) []*kernelgraph.Node {
	consumers := g.ConsumerNodes(node)
	slices.Reverse(consumers)
	return consumers
}

// IsLoadNeedAlignForReduce returns whether load feeds a reduction that vectorizes a different
// innermost axis than the load: the tail of the load is not the innermost axis with a non-zero
// stride in the reduce output.
func IsLoadNeedAlignForReduce(g *kernelgraph.Graph, load *kernelgraph.Node) (bool, error) {
	reduce, found := IsLoadFeedsReduce(g, load)
	if !found {
		return false, nil
	}
	d, err := AnalyzeDiscontinuity(load.Outputs[0].Tensor)
	if err != nil {
		return false, err
	}
	if !d.HasTail {
		return false, nil
	}
	out := reduce.Outputs[0].Tensor
	for i := len(out.VectorizedAxes) - 1; i >= 0; i-- {
		axis := out.VectorizedAxes[i]
		pos, err := out.AxisPosition(axis)
		if err != nil {
			return false, errors.WithMessagef(err, "reduce %s", reduce)
		}
		if IsDegenerate(out.Repeats[pos], out.Strides[pos]) {
			continue
		}
		return axis != d.TailAxis, nil
	}
	return false, nil
}
