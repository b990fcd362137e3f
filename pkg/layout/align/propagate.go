// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package align

import (
	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/support/sets"
	"k8s.io/klog/v2"
)

// BackPropagate drives the producers of node's inputs (and, transitively, everything connected to
// them) to target. It returns the number of outputs whose type changed.
//
// node itself is not changed: its rule is responsible for its own outputs.
func (p *Pass) BackPropagate(node *kernelgraph.Node, target AlignType) int {
	var queue []kernelgraph.NodeID
	for _, input := range node.Inputs {
		queue = append(queue, input.Node)
	}
	return p.propagate(node, target, queue, "back")
}

// ForwardPropagate is like BackPropagate, but starts from the consumers of node's outputs.
func (p *Pass) ForwardPropagate(node *kernelgraph.Node, target AlignType) int {
	var queue []kernelgraph.NodeID
	for _, output := range node.Outputs {
		for _, consumer := range output.Consumers {
			queue = append(queue, consumer.Node)
		}
	}
	return p.propagate(node, target, queue, "forward")
}

// propagate is a worklist fixed point: each node is visited at most once per call.
//
// A visited node first has its outputs set to target. If any of them changed, its inputs are
// driven to target too, except for tail-broadcast nodes, whose inputs hold a single element of
// the tail, and pads, whose inputs keep their own layout by construction.
func (p *Pass) propagate(seed *kernelgraph.Node, target AlignType, queue []kernelgraph.NodeID, direction string) int {
	visited := sets.MakeWith(seed.ID)
	var changed int
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if !visited.InsertNew(id) {
			continue
		}
		node := p.graph.MustNode(id)
		if node.Kind.IsBoundary() {
			continue
		}
		n, consumers := p.driveOutputs(node, target)
		changed += n
		queue = append(queue, consumers...)
		if n == 0 || node.Kind == kernelgraph.KindPad || p.isTailBroadcast(node) {
			continue
		}
		queue = append(queue, p.driveInputs(node, target)...)
	}
	if changed > 0 {
		klog.V(2).Infof("  %s-propagated %s from %s: %d outputs changed", direction, target, seed, changed)
	}
	p.propagated += changed
	return changed
}

// satisfies returns whether current needs no change to become target.
func satisfies(current, target AlignType) bool {
	return current == target || (current == FixedNotAligned && target == NotAligned)
}

// driveOutputs sets the outputs of node to target, returning the number changed and the consumers
// of the changed outputs.
func (p *Pass) driveOutputs(node *kernelgraph.Node, target AlignType) (int, []kernelgraph.NodeID) {
	var changed int
	var consumers []kernelgraph.NodeID
	for idx, output := range node.Outputs {
		ref := node.OutputRef(idx)
		st, found := p.states.Get(ref)
		if found && satisfies(st.Type, target) {
			continue
		}
		if found && st.Type == FixedNotAligned {
			p.states.MarkConflict(ref)
			continue
		}
		p.states.Set(ref, target)
		changed++
		for _, consumer := range output.Consumers {
			consumers = append(consumers, consumer.Node)
		}
	}
	return changed, consumers
}

// driveInputs flags FixedNotAligned inputs as conflicting and returns the producers of the other
// inputs not yet at target.
func (p *Pass) driveInputs(node *kernelgraph.Node, target AlignType) []kernelgraph.NodeID {
	var producers []kernelgraph.NodeID
	for _, input := range node.Inputs {
		st, found := p.states.Get(input)
		if found && satisfies(st.Type, target) {
			continue
		}
		if found && st.Type == FixedNotAligned {
			p.states.MarkConflict(input)
			continue
		}
		producers = append(producers, input.Node)
	}
	return producers
}

// isTailBroadcast returns whether node expands a tail of repeat 1 produced by a non-scalar node.
func (p *Pass) isTailBroadcast(node *kernelgraph.Node) bool {
	if node.NumInputs() == 0 {
		return false
	}
	input := node.Inputs[0]
	if p.graph.MustNode(input.Node).Kind == kernelgraph.KindScalar {
		return false
	}
	inRepeats := p.vectorizedRepeats(p.graph.Tensor(input), node)
	outRepeats := p.vectorizedRepeats(node.Outputs[0].Tensor, node)
	if len(inRepeats) == 0 || len(outRepeats) == 0 {
		return false
	}
	return inRepeats[len(inRepeats)-1].IsOne() && !outRepeats[len(outRepeats)-1].IsOne()
}
