// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package align

import (
	"fmt"

	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/symbolic"
	"k8s.io/klog/v2"
)

// resolvePads inserts a Pad node after every conflicting output that needs one, and returns the
// ids of the inserted nodes. The graph is left unsorted: the caller re-sorts it.
func (p *Pass) resolvePads() []kernelgraph.NodeID {
	var pads []kernelgraph.NodeID
	for _, ref := range p.states.Conflicts() {
		node := p.graph.Node(ref.Node)
		if node == nil || node.Kind.IsBoundary() {
			continue
		}
		tensor := p.graph.Tensor(ref)
		if !p.needsPad(tensor, node) {
			klog.V(2).Infof("  %s of %s: conflict needs no pad", ref, node)
			continue
		}
		if !p.platform.SupportsPad(tensor.DType) {
			klog.Warningf("alignment: cannot pad output %s of %s, dtype %s not supported by platform %q",
				ref, node, tensor.DType, p.platform.Name)
			continue
		}
		if p.platform.CompatibilityMode && node.Kind.IsLoad() && p.analyze(tensor, node).IsTailAxisDiscontinuous {
			klog.V(2).Infof("  %s of %s: discontinuous load served by compatibility-mode transfer", ref, node)
			continue
		}
		padID := p.graph.InsertAfter(ref, fmt.Sprintf("%s_pad%d", node.Name, ref.Index), kernelgraph.KindPad, tensor.Clone())
		p.states.Set(kernelgraph.OutputRef{Node: padID, Index: 0}, Aligned)
		p.states.ClearConflict(ref)
		pads = append(pads, padID)
		klog.V(1).Infof("alignment: inserted pad #%d after %s of %s", padID, ref, node)
	}
	return pads
}

// needsPad returns false if aligning the tensor would not change its layout: either the tail is
// already a multiple of the factor, or there is nothing outside the tail whose stride would move.
func (p *Pass) needsPad(t *kernelgraph.Tensor, node *kernelgraph.Node) bool {
	n := len(t.VectorizedAxes)
	if n == 0 {
		return false
	}
	tailPos := p.axisPosition(t, t.VectorizedAxes[n-1], node)
	tailRepeat := t.Repeats[tailPos]
	factor := Factor(p.alignWidth, t.DType)
	if symbolic.StaticCheckEq(symbolic.RoundUp(tailRepeat, factor), tailRepeat) == symbolic.True {
		return false
	}
	for _, axis := range t.VectorizedAxes[:n-1] {
		if !t.Strides[p.axisPosition(t, axis, node)].IsZero() {
			return true
		}
	}
	return false
}
