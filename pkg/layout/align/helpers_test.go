// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package align

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/symbolic"
	"github.com/stretchr/testify/require"
)

func consts(values ...int64) []symbolic.Expr {
	exprs := make([]symbolic.Expr, len(values))
	for i, v := range values {
		exprs[i] = symbolic.Const(v)
	}
	return exprs
}

func axesUpTo(n int) []kernelgraph.AxisID {
	axes := make([]kernelgraph.AxisID, n)
	for i := range axes {
		axes[i] = kernelgraph.AxisID(i)
	}
	return axes
}

// contiguous returns a row-major tensor over axes 0..len(repeats)-1.
func contiguous(dtype dtypes.DType, repeats ...int64) *kernelgraph.Tensor {
	return kernelgraph.NewContiguousTensor(dtype, axesUpTo(len(repeats)), consts(repeats...))
}

// strided returns a tensor over axes 0..len(repeats)-1 with explicit strides.
func strided(dtype dtypes.DType, repeats, strides []int64) *kernelgraph.Tensor {
	t := contiguous(dtype, repeats...)
	t.Strides = consts(strides...)
	return t
}

func exprStrings(exprs []symbolic.Expr) []string {
	s := make([]string, len(exprs))
	for i, e := range exprs {
		s[i] = e.String()
	}
	return s
}

// builder adds nodes consuming the first output of their inputs.
type builder struct {
	t *testing.T
	g *kernelgraph.Graph
}

func newBuilder(t *testing.T, name string) *builder {
	return &builder{t: t, g: kernelgraph.New(name)}
}

func (b *builder) add(name string, kind kernelgraph.Kind, tensor *kernelgraph.Tensor, inputs ...kernelgraph.NodeID) kernelgraph.NodeID {
	refs := make([]kernelgraph.OutputRef, len(inputs))
	for i, input := range inputs {
		refs[i] = kernelgraph.OutputRef{Node: input}
	}
	return b.g.AddNode(name, kind, refs, tensor)
}

// load adds a buffer and a load of the given tensor from it.
func (b *builder) load(name string, tensor *kernelgraph.Tensor) kernelgraph.NodeID {
	buffer := b.add(name+"_buffer", kernelgraph.KindBuffer, tensor.Clone())
	return b.add(name, kernelgraph.KindLoad, tensor, buffer)
}

// store adds a store of input with the given output layout, and the buffer it writes to.
func (b *builder) store(name string, tensor *kernelgraph.Tensor, input kernelgraph.NodeID) kernelgraph.NodeID {
	store := b.add(name, kernelgraph.KindStore, tensor, input)
	b.add(name+"_buffer", kernelgraph.KindBuffer, tensor.Clone(), store)
	return store
}

func (b *builder) run(opts Options) *Result {
	result, err := Run(b.g, opts)
	require.NoError(b.t, err)
	return result
}

func out(id kernelgraph.NodeID) kernelgraph.OutputRef {
	return kernelgraph.OutputRef{Node: id}
}
