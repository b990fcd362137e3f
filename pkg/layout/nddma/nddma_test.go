// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nddma

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/symbolic"
	"github.com/gomlx/vecalign/pkg/layout/align"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func consts(values ...int64) []symbolic.Expr {
	exprs := make([]symbolic.Expr, len(values))
	for i, v := range values {
		exprs[i] = symbolic.Const(v)
	}
	return exprs
}

func contiguous(dtype dtypes.DType, repeats ...int64) *kernelgraph.Tensor {
	axes := make([]kernelgraph.AxisID, len(repeats))
	for i := range axes {
		axes[i] = kernelgraph.AxisID(i)
	}
	return kernelgraph.NewContiguousTensor(dtype, axes, consts(repeats...))
}

// transposed returns the contiguous tensor over axes (1, 0) with the given repeats.
func transposed(dtype dtypes.DType, repeats ...int64) *kernelgraph.Tensor {
	return kernelgraph.NewContiguousTensor(dtype, []kernelgraph.AxisID{1, 0}, consts(repeats...))
}

func exprStrings(exprs []symbolic.Expr) []string {
	s := make([]string, len(exprs))
	for i, e := range exprs {
		s[i] = e.String()
	}
	return s
}

func out(id kernelgraph.NodeID) kernelgraph.OutputRef {
	return kernelgraph.OutputRef{Node: id}
}

type builder struct {
	g *kernelgraph.Graph
}

func (b *builder) add(name string, kind kernelgraph.Kind, tensor *kernelgraph.Tensor, inputs ...kernelgraph.NodeID) kernelgraph.NodeID {
	refs := make([]kernelgraph.OutputRef, len(inputs))
	for i, input := range inputs {
		refs[i] = out(input)
	}
	return b.g.AddNode(name, kind, refs, tensor)
}

func (b *builder) load(name string, tensor *kernelgraph.Tensor) kernelgraph.NodeID {
	buffer := b.add(name+"_buffer", kernelgraph.KindBuffer, tensor.Clone())
	return b.add(name, kernelgraph.KindLoad, tensor, buffer)
}

func (b *builder) store(name string, tensor *kernelgraph.Tensor, input kernelgraph.NodeID) kernelgraph.NodeID {
	store := b.add(name, kernelgraph.KindStore, tensor, input)
	b.add(name+"_buffer", kernelgraph.KindBuffer, tensor.Clone(), store)
	return store
}

func TestFoldTranspose(t *testing.T) {
	b := &builder{g: kernelgraph.New("transpose")}
	load := b.load("load", contiguous(dtypes.Float32, 4, 10))
	transpose := b.add("transpose", kernelgraph.KindTranspose, transposed(dtypes.Float32, 10, 4), load)
	store := b.store("store", transposed(dtypes.Float32, 10, 4), transpose)

	report, err := Canonicalize(b.g, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Transposes)
	assert.Empty(t, report.Skipped)
	assert.Empty(t, b.g.NodesOfKind(kernelgraph.KindTranspose))
	assert.Equal(t, []kernelgraph.NodeID{load}, report.Merged)
	assert.Equal(t, 64, report.Result.AlignWidth)

	node := b.g.Node(load)
	assert.Equal(t, kernelgraph.KindNDDMA, node.Kind)
	assert.Equal(t, []string{"transpose"}, node.Attrs.MergedFrom)
	tensor := node.Outputs[0].Tensor
	assert.Equal(t, []kernelgraph.AxisID{1, 0}, tensor.Axes)
	assert.Equal(t, []string{"10", "4"}, exprStrings(tensor.Repeats))
	assert.Equal(t, []string{"1", "10"}, exprStrings(tensor.Strides))
	assert.Equal(t, []string{"4", "1"}, exprStrings(tensor.VectorizedStrides))
	assert.Equal(t, out(load), b.g.Node(store).Inputs[0])
	assert.Equal(t, align.NotAligned, report.Result.Type(out(load)))
	assert.Equal(t, Score{Node: "load", Static: true, Value: ScoreNeutral}, report.Scores[load])
	require.NoError(t, b.g.Validate())
}

func TestFoldTransposeThroughChain(t *testing.T) {
	b := &builder{g: kernelgraph.New("chain")}
	scalar := b.add("scale", kernelgraph.KindScalar, contiguous(dtypes.Float32, 1))
	load := b.load("load", contiguous(dtypes.Float16, 4, 10))
	cast := b.add("cast", kernelgraph.KindCast, contiguous(dtypes.Float32, 4, 10), load)
	mul := b.add("mul", kernelgraph.KindElementwise, contiguous(dtypes.Float32, 4, 10), cast, scalar)
	transpose := b.add("transpose", kernelgraph.KindTranspose, transposed(dtypes.Float32, 10, 4), mul)
	store := b.store("store", transposed(dtypes.Float32, 10, 4), transpose)

	report, err := Canonicalize(b.g, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Transposes)
	assert.Equal(t, kernelgraph.KindNDDMA, b.g.Node(load).Kind)
	assert.Equal(t, dtypes.Float16, b.g.Tensor(out(load)).DType)
	for _, id := range []kernelgraph.NodeID{cast, mul} {
		assert.Equal(t, []kernelgraph.AxisID{1, 0}, b.g.Tensor(out(id)).Axes)
	}
	assert.Equal(t, dtypes.Float32, b.g.Tensor(out(cast)).DType)
	assert.Equal(t, out(load), b.g.Node(cast).Inputs[0])
	assert.Equal(t, out(mul), b.g.Node(store).Inputs[0])
	assert.Equal(t, []kernelgraph.AxisID{0}, b.g.Tensor(out(scalar)).Axes)
	require.NoError(t, b.g.Validate())
}

func TestFoldTransposeThroughPad(t *testing.T) {
	b := &builder{g: kernelgraph.New("pad_chain")}
	load := b.load("load", contiguous(dtypes.Float32, 4, 10))
	pad := b.add("pad", kernelgraph.KindPad, contiguous(dtypes.Float32, 4, 10), load)
	transpose := b.add("transpose", kernelgraph.KindTranspose, transposed(dtypes.Float32, 10, 4), pad)
	store := b.store("store", transposed(dtypes.Float32, 10, 4), transpose)

	report, err := Canonicalize(b.g, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Transposes)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, kernelgraph.KindNDDMA, b.g.Node(load).Kind)
	assert.Equal(t, []kernelgraph.AxisID{1, 0}, b.g.Tensor(out(pad)).Axes)
	assert.Equal(t, out(load), b.g.Node(pad).Inputs[0])
	assert.Equal(t, out(pad), b.g.Node(store).Inputs[0])
	require.NoError(t, b.g.Validate())
}

func TestFoldTransposeUnsupported(t *testing.T) {
	t.Run("reduce in chain", func(t *testing.T) {
		b := &builder{g: kernelgraph.New("reduce")}
		load := b.load("load", contiguous(dtypes.Float32, 4, 10))
		reduce := b.add("reduce", kernelgraph.KindReduce, contiguous(dtypes.Float32, 4, 1), load)
		b.g.Node(reduce).Attrs.ReduceAxes = []kernelgraph.AxisID{1}
		transpose := b.add("transpose", kernelgraph.KindTranspose, transposed(dtypes.Float32, 1, 4), reduce)
		b.store("store", transposed(dtypes.Float32, 1, 4), transpose)

		report, err := Canonicalize(b.g, Options{})
		require.NoError(t, err)
		assert.Equal(t, 0, report.Transposes)
		require.Len(t, report.Skipped, 1)
		assert.Contains(t, report.Skipped[0], "unsupported pattern")
		assert.Len(t, b.g.NodesOfKind(kernelgraph.KindTranspose), 1)
		assert.Equal(t, kernelgraph.KindLoad, b.g.Node(load).Kind)
	})
	t.Run("load with other consumers", func(t *testing.T) {
		b := &builder{g: kernelgraph.New("fanout")}
		load := b.load("load", contiguous(dtypes.Float32, 4, 10))
		transpose := b.add("transpose", kernelgraph.KindTranspose, transposed(dtypes.Float32, 10, 4), load)
		b.store("store_t", transposed(dtypes.Float32, 10, 4), transpose)
		b.store("store", contiguous(dtypes.Float32, 4, 10), load)

		report, err := Canonicalize(b.g, Options{})
		require.NoError(t, err)
		require.Len(t, report.Skipped, 1)
		assert.Contains(t, report.Skipped[0], "also feeds")
		assert.Empty(t, report.Merged)
	})
}

func TestMergeBroadcast(t *testing.T) {
	b := &builder{g: kernelgraph.New("broadcast")}
	load := b.load("load", contiguous(dtypes.Float32, 1, 10))
	bcast := b.add("bcast", kernelgraph.KindBroadcast, contiguous(dtypes.Float32, 4, 10), load)
	store := b.store("store", contiguous(dtypes.Float32, 4, 10), bcast)

	report, err := Canonicalize(b.g, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Broadcasts)
	assert.Nil(t, b.g.Node(bcast))
	assert.Equal(t, out(load), b.g.Node(store).Inputs[0])

	node := b.g.Node(load)
	assert.Equal(t, kernelgraph.KindNDDMA, node.Kind)
	assert.Equal(t, []string{"bcast"}, node.Attrs.MergedFrom)
	tensor := node.Outputs[0].Tensor
	assert.Equal(t, []string{"4", "10"}, exprStrings(tensor.Repeats))
	assert.Equal(t, []string{"0", "1"}, exprStrings(tensor.Strides))
	assert.Equal(t, []string{"16", "1"}, exprStrings(tensor.VectorizedStrides))
	// The store reads rows at the aligned pitch of the broadcast.
	assertRowPitch(t, tensor, 16)
	assertRowPitch(t, b.g.Tensor(out(store)), 16)
	assert.Equal(t, align.Aligned, report.Result.Type(out(load)))
	assert.False(t, report.Result.States.Has(out(bcast)))
	require.NoError(t, b.g.Validate())
}

func TestSwapCast(t *testing.T) {
	b := &builder{g: kernelgraph.New("cast_swap")}
	load := b.load("load", contiguous(dtypes.Float16, 1, 20))
	cast := b.add("cast", kernelgraph.KindCast, contiguous(dtypes.Float32, 1, 20), load)
	bcast := b.add("bcast", kernelgraph.KindBroadcast, contiguous(dtypes.Float32, 4, 20), cast)
	store := b.store("store", contiguous(dtypes.Float32, 4, 20), bcast)

	report, err := Canonicalize(b.g, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.CastSwaps)
	assert.Equal(t, 0, report.Broadcasts)
	assert.Empty(t, b.g.NodesOfKind(kernelgraph.KindBroadcast))

	// load (NDDMA, float16, broadcast) -> cast -> store
	assert.Equal(t, out(load), b.g.Node(cast).Inputs[0])
	assert.Equal(t, out(cast), b.g.Node(store).Inputs[0])
	loadTensor := b.g.Tensor(out(load))
	assert.Equal(t, dtypes.Float16, loadTensor.DType)
	assert.Equal(t, []string{"4", "20"}, exprStrings(loadTensor.Repeats))
	// Re-aligned for float16: 20 rounded up to 16 elements.
	assert.Equal(t, []string{"32", "1"}, exprStrings(loadTensor.VectorizedStrides))
	assertRowPitch(t, loadTensor, 32)
	castTensor := b.g.Tensor(out(cast))
	assert.Equal(t, dtypes.Float32, castTensor.DType)
	assert.Equal(t, []string{"24", "1"}, exprStrings(castTensor.VectorizedStrides))
	assertRowPitch(t, b.g.Tensor(out(store)), 24)
	assert.Equal(t, align.Aligned, report.Result.Type(out(cast)))

	var names []string
	for _, node := range b.g.Nodes() {
		names = append(names, node.Name)
	}
	assert.Equal(t, []string{"load_buffer", "load", "cast", "store", "store_buffer"}, names)
	require.NoError(t, b.g.Validate())
}

// assertRowPitch checks the vectorized stride of the outer axis of a 2D tensor.
func assertRowPitch(t *testing.T, tensor *kernelgraph.Tensor, want int64) {
	t.Helper()
	require.Len(t, tensor.VectorizedStrides, 2)
	pitch, ok := tensor.VectorizedStrides[0].IsConst()
	require.True(t, ok, "row pitch %s is not a constant", tensor.VectorizedStrides[0])
	assert.NotZero(t, pitch)
	assert.Equal(t, want, pitch)
}

func TestHasAlignedRowPitch(t *testing.T) {
	rows := contiguous(dtypes.Float32, 4, 20)
	rows.VectorizedStrides = consts(24, 1)
	assert.True(t, hasAlignedRowPitch(rows, 32))
	// Aligned for float32 but not for float16.
	rows.DType = dtypes.Float16
	assert.False(t, hasAlignedRowPitch(rows, 32))

	packed := contiguous(dtypes.Float32, 4, 20)
	packed.VectorizedStrides = consts(20, 1)
	assert.False(t, hasAlignedRowPitch(packed, 32))

	degenerate := contiguous(dtypes.Float32, 4, 20)
	degenerate.VectorizedStrides = consts(0, 1)
	assert.False(t, hasAlignedRowPitch(degenerate, 32))

	assert.False(t, hasAlignedRowPitch(contiguous(dtypes.Float32, 20), 32))
}

func TestSwapCastSharedRowPitch(t *testing.T) {
	b := &builder{g: kernelgraph.New("cast_swap_shared_pitch")}
	load := b.load("load", contiguous(dtypes.Float16, 1, 16))
	cast := b.add("cast", kernelgraph.KindCast, contiguous(dtypes.Float32, 1, 16), load)
	bcast := b.add("bcast", kernelgraph.KindBroadcast, contiguous(dtypes.Float32, 4, 16), cast)
	b.store("store", contiguous(dtypes.Float32, 4, 16), bcast)

	report, err := Canonicalize(b.g, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.CastSwaps)
	// 16 float16 elements already fill a 32 bytes block: the pitch is the same for both widths.
	assertRowPitch(t, b.g.Tensor(out(load)), 16)
	assertRowPitch(t, b.g.Tensor(out(cast)), 16)
}
