// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package align implements the vector-alignment pass over a kernel graph.
//
// For every tensor produced inside the vector engine the pass decides an AlignType: whether its
// tail (innermost vectorized) axis is packed, rounded up to the alignment factor, or spread one
// element per aligned block. It works in three phases:
//
//  1. Inference: every node is visited once in topological order, and the rule of its kind
//     (selected by a Policy) assigns the type of its outputs. Some rules need to change tensors
//     already inferred: they do so with BackPropagate and ForwardPropagate, a worklist fixed point
//     that walks the graph in both directions.
//  2. Pad resolution: FixedNotAligned tensors are never changed by propagation, instead they are
//     flagged as conflicting. A Pad node is inserted after each conflicting tensor that needs it.
//  3. Stride synthesis: the vectorized strides of every tensor are computed from its type, see
//     SynthesizeStrides.
//
// Structural problems with the graph (a vectorized axis not found in a tensor, a store with two
// inputs, etc.) abort the pass and are returned as errors by Run.
package align

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/platform"
	"github.com/gomlx/vecalign/pkg/core/symbolic"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Options of the alignment pass. The zero value is valid: DefaultPolicy on platform.Default().
type Options struct {
	Policy   Policy
	Platform *platform.Config

	// StrictConcat makes small-tail concats FixedNotAligned, so any attempt to align them
	// results in a Pad node instead.
	StrictConcat bool
}

// Pass holds the state of one run of the alignment pass over a graph.
type Pass struct {
	graph      *kernelgraph.Graph
	policy     Policy
	platform   *platform.Config
	options    Options
	alignWidth int
	states     *StateTable

	// propagated counts the outputs changed by propagation, for logging.
	propagated int
}

// Result of the alignment pass.
type Result struct {
	Graph      *kernelgraph.Graph
	Policy     Policy
	AlignWidth int
	States     *StateTable

	// Pads are the Pad nodes inserted by the pad resolver.
	Pads []kernelgraph.NodeID

	// Propagated is the number of output types changed by propagation.
	Propagated int
}

// Run the alignment pass over g: it assigns an AlignType to every non-boundary output, inserts
// Pad nodes where needed, and sets the VectorizedStrides of every non-boundary tensor.
//
// The graph is mutated in place. Nothing is kept across calls, so Run can be called again after
// the graph is rewritten.
func Run(g *kernelgraph.Graph, opts Options) (*Result, error) {
	p, err := NewPass(g, opts)
	if err != nil {
		return nil, err
	}
	return p.Run()
}

// NewPass validates the graph and the options, sorts the graph and selects the alignment width.
// Most users should call Run instead.
func NewPass(g *kernelgraph.Graph, opts Options) (*Pass, error) {
	p := &Pass{
		graph:    g,
		policy:   opts.Policy,
		platform: opts.Platform,
		options:  opts,
		states:   NewStateTable(),
	}
	if p.policy == nil {
		p.policy = DefaultPolicy
	}
	if p.platform == nil {
		p.platform = platform.Default()
	}
	if err := p.platform.Validate(); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid graph %q", g.Name())
	}
	if err := g.TopoSort(); err != nil {
		return nil, errors.WithMessagef(err, "invalid graph %q", g.Name())
	}
	p.alignWidth = ChooseAlignWidth(g, p.platform)
	return p, nil
}

// ChooseAlignWidth returns 64 if the platform allows it and some transpose produces a float32
// tensor, and 32 otherwise.
func ChooseAlignWidth(g *kernelgraph.Graph, cfg *platform.Config) int {
	if cfg.MaxAlignWidth < platform.AlignWidth64 {
		return platform.AlignWidth32
	}
	for _, node := range g.NodesOfKind(kernelgraph.KindTranspose) {
		for _, output := range node.Outputs {
			if output.Tensor.DType == dtypes.Float32 {
				return platform.AlignWidth64
			}
		}
	}
	return platform.AlignWidth32
}

// AlignWidth in bytes selected for this pass.
func (p *Pass) AlignWidth() int { return p.alignWidth }

// States returns the state table being built.
func (p *Pass) States() *StateTable { return p.states }

// Run the three phases of the pass. A Pass should only be run once.
func (p *Pass) Run() (result *Result, err error) {
	err = exceptions.TryCatch[error](func() { result = p.run() })
	if err != nil {
		return nil, errors.WithMessagef(err, "alignment pass over graph %q", p.graph.Name())
	}
	return result, nil
}

func (p *Pass) run() *Result {
	g := p.graph
	klog.V(1).Infof("alignment pass over %q: policy=%s, align width %s, %d nodes",
		g.Name(), p.policy.Name(), humanize.Bytes(uint64(p.alignWidth)), g.NumNodes())
	for _, node := range g.Nodes() {
		if node.Kind.IsBoundary() {
			continue
		}
		p.inferNode(node)
	}

	pads := p.resolvePads()
	if len(pads) > 0 {
		if err := g.TopoSort(); err != nil {
			panic(errors.WithMessage(err, "sorting graph after inserting pads"))
		}
	}

	for _, node := range g.Nodes() {
		if node.Kind.IsBoundary() {
			continue
		}
		p.synthesizeNode(node)
	}
	klog.V(1).Infof("alignment pass over %q: %d tensors classified, %d changed by propagation, %d pads inserted",
		g.Name(), p.states.Len(), p.propagated, len(pads))
	return &Result{
		Graph:      g,
		Policy:     p.policy,
		AlignWidth: p.alignWidth,
		States:     p.states,
		Pads:       pads,
		Propagated: p.propagated,
	}
}

// synthesizeNode sets the vectorized strides of every output of node. Stores copy the strides of
// their input.
func (p *Pass) synthesizeNode(node *kernelgraph.Node) {
	if node.Kind == kernelgraph.KindStore {
		input := p.graph.Tensor(node.Inputs[0])
		output := node.Outputs[0].Tensor
		output.VectorizedStrides = append([]symbolic.Expr(nil), input.VectorizedStrides...)
		return
	}
	for idx, output := range node.Outputs {
		ref := node.OutputRef(idx)
		st, found := p.states.Get(ref)
		if !found {
			exceptions.Panicf("output %s of %s has no alignment type", ref, node)
		}
		strides, err := SynthesizeStrides(output.Tensor, st.Type, p.alignWidth)
		if err != nil {
			panic(errors.WithMessagef(err, "output %s of %s", ref, node))
		}
		output.Tensor.VectorizedStrides = strides
	}
}

// Type returns the alignment type of ref, or Invalid if it has none (boundary nodes).
func (r *Result) Type(ref kernelgraph.OutputRef) AlignType {
	return r.States.Type(ref)
}

// Describe returns a human-readable report of the pass: one line per non-boundary output with its
// type and vectorized strides.
func (r *Result) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "graph %q: policy=%s, align width %s, %d pads\n",
		r.Graph.Name(), r.Policy.Name(), humanize.Bytes(uint64(r.AlignWidth)), len(r.Pads))
	for _, node := range r.Graph.Nodes() {
		if node.Kind.IsBoundary() {
			continue
		}
		for idx, output := range node.Outputs {
			st, _ := r.States.Get(node.OutputRef(idx))
			conflict := ""
			if st.ConflictWithOutput {
				conflict = " (conflict)"
			}
			fmt.Fprintf(&sb, "  %-12s %-12s %-16s%s vstrides=%v\n",
				fmt.Sprintf("%s:%d", node.Name, idx), node.Kind, st.Type, conflict, output.Tensor.VectorizedStrides)
		}
	}
	return sb.String()
}
