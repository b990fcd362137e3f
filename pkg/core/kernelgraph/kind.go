// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgraph

// Kind classifies the compute performed by a node, and it is what the layout passes dispatch on.
type Kind int

//go:generate go tool enumer -type=Kind -trimprefix=Kind -output=gen_kind_enumer.go kind.go

const (
	KindInvalid Kind = iota

	// KindElementwise nodes map each input element to one output element (Add, Exp, ...).
	KindElementwise

	// KindBroadcast expands axes of repeat 1 in its input to larger repeats in its output.
	KindBroadcast

	// KindLoad reads a tensor from a Buffer node into the vector engine's local memory.
	KindLoad

	// KindStore writes a tensor from local memory back into a Buffer.
	KindStore

	// KindReduce reduces one or more axes (see Attrs.ReduceAxes).
	KindReduce

	// KindConcat concatenates its inputs along Attrs.ConcatAxis.
	KindConcat

	// KindSplit is the inverse of KindConcat: one input, several outputs.
	KindSplit

	// KindTranspose permutes the axes of its input: the permutation is given by the order of the axes
	// of the output tensor.
	KindTranspose

	// KindCast converts the element type, it is otherwise elementwise.
	KindCast

	// KindBuffer is a boundary node: a global memory buffer (graph input or output).
	KindBuffer

	// KindScalar is a boundary node holding a scalar value (constant or kernel argument).
	KindScalar

	// KindPad is inserted by the alignment pass to re-layout an unaligned tensor into an aligned one.
	KindPad

	// KindNDDMA is a load with a non-contiguous access pattern, created by merging a load with
	// transposes and/or broadcasts.
	KindNDDMA

	// KindOther is any other computation: it follows the default alignment rules.
	KindOther
)

// IsBoundary returns whether nodes of this kind are outside the vector engine: they have no
// alignment state and no vectorized strides.
func (k Kind) IsBoundary() bool {
	return k == KindBuffer || k == KindScalar
}

// IsLoad returns whether the kind reads from global memory (Load or NDDMA).
func (k Kind) IsLoad() bool {
	return k == KindLoad || k == KindNDDMA
}

// IsElementwiseLike returns whether the node maps elements one to one: elementwise operations,
// casts and pads.
func (k Kind) IsElementwiseLike() bool {
	return k == KindElementwise || k == KindCast || k == KindPad
}
