// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package align

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/symbolic"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// inferNode assigns the type of all outputs of node, dispatching on its kind.
func (p *Pass) inferNode(node *kernelgraph.Node) {
	if node.NumOutputs() == 0 {
		exceptions.Panicf("%s has no outputs", node)
	}
	var alignType AlignType
	switch node.Kind {
	case kernelgraph.KindLoad, kernelgraph.KindNDDMA:
		alignType = p.inferLoad(node)
	case kernelgraph.KindStore:
		alignType = p.inferStore(node)
	case kernelgraph.KindBroadcast:
		alignType = p.inferBroadcast(node)
	case kernelgraph.KindConcat:
		alignType = p.inferConcat(node)
	case kernelgraph.KindReduce:
		alignType = p.inferReduce(node)
	case kernelgraph.KindPad:
		// Pads exist to produce an aligned copy of their input.
		alignType = Aligned
	default:
		alignType = p.inferDefault(node)
	}
	for idx := range node.Outputs {
		p.assign(node.OutputRef(idx), alignType)
	}
	klog.V(2).Infof("  %s: %s", node, alignType)

	// Only Aligned or Discontinuous tails are forwarded: FixedNotAligned is never pushed onto
	// consumers.
	if p.policy.ForwardsBroadcastOfOne() && p.isTailRepeatOne(node) {
		if forwarded := p.states.Type(node.OutputRef(0)); forwarded.rank() > NotAligned.rank() {
			p.ForwardPropagate(node, forwarded)
		}
	}
}

// assign the inferred type to ref. Types set earlier by propagation are only raised, and
// FixedNotAligned entries are only flagged.
func (p *Pass) assign(ref kernelgraph.OutputRef, alignType AlignType) {
	st, found := p.states.Get(ref)
	switch {
	case !found || alignType == FixedNotAligned:
		p.states.Set(ref, alignType)
	case st.Type == FixedNotAligned:
		if alignType != NotAligned {
			p.states.MarkConflict(ref)
		}
	case alignType.rank() > st.Type.rank():
		p.states.Set(ref, alignType)
	}
}

// inferDefault is the rule of elementwise-like nodes: the largest type of the inputs.
func (p *Pass) inferDefault(node *kernelgraph.Node) AlignType {
	result := Invalid
	var hasFixed bool
	for _, input := range node.Inputs {
		st, found := p.states.Get(input)
		if !found {
			continue
		}
		if st.Type == FixedNotAligned {
			hasFixed = true
		}
		result = Max(result, st.Type)
	}
	if hasFixed {
		p.BackPropagate(node, FixedNotAligned)
		return FixedNotAligned
	}
	if result == Invalid {
		return p.policy.DefaultType()
	}
	return result
}

func (p *Pass) inferLoad(node *kernelgraph.Node) AlignType {
	d := p.analyze(node.Outputs[0].Tensor, node)
	needAlign, err := IsLoadNeedAlignForReduce(p.graph, node)
	if err != nil {
		panic(errors.WithMessagef(err, "checking reductions fed by %s", node))
	}
	return p.policy.LoadType(d, needAlign)
}

// inferStore keeps the type of the stored tensor, unless the destination is not contiguous in
// the buffer, in which case a packed input has to be aligned.
func (p *Pass) inferStore(node *kernelgraph.Node) AlignType {
	if node.NumInputs() != 1 {
		exceptions.Panicf("%s must have exactly one input, got %d", node, node.NumInputs())
	}
	inType := p.states.Type(node.Inputs[0])
	if inType == Invalid {
		inType = p.policy.DefaultType()
	}
	if inType.IsNotAligned() {
		d := p.analyze(node.Outputs[0].Tensor, node)
		if !d.IsBufferContiguous() {
			p.BackPropagate(node, Aligned)
			return Aligned
		}
	}
	return inType
}

// inferBroadcast aligns broadcasts of any axis other than the tail: the vector engine
// replicates whole aligned blocks.
func (p *Pass) inferBroadcast(node *kernelgraph.Node) AlignType {
	if node.NumInputs() != 1 {
		exceptions.Panicf("%s must have exactly one input, got %d", node, node.NumInputs())
	}
	if !p.states.Has(node.Inputs[0]) {
		// Broadcast of a scalar or directly from a buffer.
		return NotAligned
	}
	out := node.Outputs[0].Tensor
	axisIdx := p.firstBroadcastAxis(node)
	if axisIdx >= 0 && axisIdx != len(out.VectorizedAxes)-1 {
		p.BackPropagate(node, Aligned)
		return Aligned
	}
	return p.inferDefault(node)
}

// firstBroadcastAxis returns the index in the output's VectorizedAxes of the outermost axis
// broadcast by node (input repeat 1, output repeat not 1), or -1.
func (p *Pass) firstBroadcastAxis(node *kernelgraph.Node) int {
	in := p.graph.Tensor(node.Inputs[0])
	out := node.Outputs[0].Tensor
	for i, axis := range out.VectorizedAxes {
		pos := p.axisPosition(out, axis, node)
		inRepeat := symbolic.One
		if inPos, found := in.AxisIndex(axis); found {
			inRepeat = in.Repeats[inPos]
		}
		if inRepeat.IsOne() && !out.Repeats[pos].IsOne() {
			return i
		}
	}
	return -1
}

// inferConcat handles concats along a small tail without looking at the inputs: the output is
// laid out directly, and it only needs to be aligned if some input's tail doesn't divide the
// alignment width.
func (p *Pass) inferConcat(node *kernelgraph.Node) AlignType {
	applies, needsPad := p.smallTailConcat(node)
	if !applies {
		return p.inferDefault(node)
	}
	node.Attrs.SmallTailConcat = true
	switch {
	case p.options.StrictConcat:
		return FixedNotAligned
	case needsPad:
		return Aligned
	}
	return NotAligned
}

func (p *Pass) smallTailConcat(node *kernelgraph.Node) (applies, needsPad bool) {
	out := node.Outputs[0].Tensor
	n := len(out.VectorizedAxes)
	if n == 0 || node.NumInputs() == 0 {
		return false, false
	}
	tail := out.VectorizedAxes[n-1]
	if node.Attrs.ConcatAxis != tail {
		return false, false
	}
	outRepeat, ok := constRepeat(out, tail)
	if !ok {
		return false, false
	}
	outBytes := outRepeat * int64(out.ElementSize())
	if outBytes > int64(p.platform.SmallTailLimit(p.alignWidth)) {
		return false, false
	}
	for _, input := range node.Inputs {
		in := p.graph.Tensor(input)
		repeat, ok := constRepeat(in, tail)
		if !ok {
			return false, false
		}
		inBytes := repeat * int64(in.ElementSize())
		if inBytes <= 0 || int64(p.alignWidth)%inBytes != 0 {
			needsPad = true
		}
	}
	return true, needsPad
}

func constRepeat(t *kernelgraph.Tensor, axis kernelgraph.AxisID) (int64, bool) {
	pos, found := t.AxisIndex(axis)
	if !found {
		return 0, false
	}
	return t.Repeats[pos].IsConst()
}

// inferReduce packs reductions over broadcast data and aligns every other reduction, and the
// decision is pushed back to the inputs.
func (p *Pass) inferReduce(node *kernelgraph.Node) AlignType {
	if node.NumInputs() == 0 {
		exceptions.Panicf("%s has no inputs", node)
	}
	in := p.graph.Tensor(node.Inputs[0])
	out := node.Outputs[0].Tensor
	axes := p.reductionAxes(node, in, out)
	result := NotAligned
	if len(axes) == 0 {
		result = Aligned
	}
	for _, axis := range axes {
		pos, found := in.AxisIndex(axis)
		if !found {
			exceptions.Panicf("reduce axis %d of %s not found in its input %s", axis, node, in)
		}
		if !in.Strides[pos].IsZero() {
			result = Aligned
			break
		}
	}
	p.BackPropagate(node, result)
	return result
}

// reductionAxes returns Attrs.ReduceAxes if set. Otherwise, the vectorized axes of the output
// with a zero stride whose input repeat is not 1.
func (p *Pass) reductionAxes(node *kernelgraph.Node, in, out *kernelgraph.Tensor) []kernelgraph.AxisID {
	if len(node.Attrs.ReduceAxes) > 0 {
		return node.Attrs.ReduceAxes
	}
	var axes []kernelgraph.AxisID
	for _, axis := range out.VectorizedAxes {
		pos := p.axisPosition(out, axis, node)
		if !out.Strides[pos].IsZero() {
			continue
		}
		if inPos, found := in.AxisIndex(axis); found && !in.Repeats[inPos].IsOne() {
			axes = append(axes, axis)
		}
	}
	return axes
}

// isTailRepeatOne returns whether the innermost vectorized repeat of the first output is 1.
func (p *Pass) isTailRepeatOne(node *kernelgraph.Node) bool {
	repeats := p.vectorizedRepeats(node.Outputs[0].Tensor, node)
	return len(repeats) > 0 && repeats[len(repeats)-1].IsOne()
}

func (p *Pass) analyze(t *kernelgraph.Tensor, node *kernelgraph.Node) Discontinuity {
	d, err := AnalyzeDiscontinuity(t)
	if err != nil {
		panic(errors.WithMessagef(err, "%s", node))
	}
	return d
}

func (p *Pass) axisPosition(t *kernelgraph.Tensor, axis kernelgraph.AxisID, node *kernelgraph.Node) int {
	pos, err := t.AxisPosition(axis)
	if err != nil {
		panic(errors.WithMessagef(err, "%s", node))
	}
	return pos
}

func (p *Pass) vectorizedRepeats(t *kernelgraph.Tensor, node *kernelgraph.Node) []symbolic.Expr {
	repeats, err := t.VectorizedRepeats()
	if err != nil {
		panic(errors.WithMessagef(err, "%s", node))
	}
	return repeats
}
