// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgraph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/vecalign/pkg/core/symbolic"
	"github.com/pkg/errors"
)

// AxisID identifies an axis of the kernel's iteration space. Tensors in the same graph share
// axis ids: the same id in two tensors refers to the same loop.
type AxisID int64

// Tensor describes the memory layout of the value produced by one output port.
//
// Axes, Repeats and Strides are parallel: Repeats[i] is the extent of Axes[i] and Strides[i]
// its stride (in elements) in the underlying memory. A stride of 0 means the axis is a broadcast.
//
// VectorizedAxes lists the axes mapped to the vector engine, outermost first, so the last one is
// the tail axis. VectorizedStrides is filled by the alignment pass, parallel to VectorizedAxes.
type Tensor struct {
	Axes              []AxisID
	Repeats           []symbolic.Expr
	Strides           []symbolic.Expr
	VectorizedAxes    []AxisID
	VectorizedStrides []symbolic.Expr
	DType             dtypes.DType
}

// NewContiguousTensor creates a tensor whose strides are the row-major contiguous strides of the
// given repeats, with every axis vectorized. Axes with repeat 1 get stride 0.
func NewContiguousTensor(dtype dtypes.DType, axes []AxisID, repeats []symbolic.Expr) *Tensor {
	return &Tensor{
		Axes:           slices.Clone(axes),
		Repeats:        slices.Clone(repeats),
		Strides:        ContiguousStrides(repeats),
		VectorizedAxes: slices.Clone(axes),
		DType:          dtype,
	}
}

// ContiguousStrides returns the row-major strides for the given repeats. Axes of repeat 1
// get stride 0.
func ContiguousStrides(repeats []symbolic.Expr) []symbolic.Expr {
	strides := make([]symbolic.Expr, len(repeats))
	size := symbolic.One
	for i := len(repeats) - 1; i >= 0; i-- {
		if repeats[i].IsOne() {
			strides[i] = symbolic.Zero
			continue
		}
		strides[i] = size
		size = symbolic.Mul(size, repeats[i])
	}
	return strides
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Axes:              slices.Clone(t.Axes),
		Repeats:           slices.Clone(t.Repeats),
		Strides:           slices.Clone(t.Strides),
		VectorizedAxes:    slices.Clone(t.VectorizedAxes),
		VectorizedStrides: slices.Clone(t.VectorizedStrides),
		DType:             t.DType,
	}
}

// ElementSize returns the size in bytes of one element.
func (t *Tensor) ElementSize() int {
	return int(t.DType.Memory())
}

// AxisIndex returns the position of the axis in t.Axes.
func (t *Tensor) AxisIndex(axis AxisID) (int, bool) {
	idx := slices.Index(t.Axes, axis)
	return idx, idx >= 0
}

// AxisPosition is like AxisIndex but returns an error if the axis is not found.
func (t *Tensor) AxisPosition(axis AxisID) (int, error) {
	idx, found := t.AxisIndex(axis)
	if !found {
		return -1, errors.Errorf("vectorized axis %d not found in tensor axes %v", axis, t.Axes)
	}
	return idx, nil
}

// VectorizedRepeats returns the repeats of the vectorized axes, in vectorized order.
func (t *Tensor) VectorizedRepeats() ([]symbolic.Expr, error) {
	repeats := make([]symbolic.Expr, len(t.VectorizedAxes))
	for i, axis := range t.VectorizedAxes {
		pos, err := t.AxisPosition(axis)
		if err != nil {
			return nil, err
		}
		repeats[i] = t.Repeats[pos]
	}
	return repeats, nil
}

// Permute returns a copy of the tensor with its axes (and corresponding repeats and strides)
// reordered to `order`, and with VectorizedAxes set to `vectorized`. Every axis in `order` must
// exist in t.
func (t *Tensor) Permute(order, vectorized []AxisID) (*Tensor, error) {
	if len(order) != len(t.Axes) {
		return nil, errors.Errorf("cannot permute tensor with axes %v into %v: rank mismatch", t.Axes, order)
	}
	out := &Tensor{
		Axes:           slices.Clone(order),
		Repeats:        make([]symbolic.Expr, len(order)),
		Strides:        make([]symbolic.Expr, len(order)),
		VectorizedAxes: slices.Clone(vectorized),
		DType:          t.DType,
	}
	for i, axis := range order {
		pos, found := t.AxisIndex(axis)
		if !found {
			return nil, errors.Errorf("cannot permute tensor with axes %v: axis %d not found", t.Axes, axis)
		}
		out.Repeats[i] = t.Repeats[pos]
		out.Strides[i] = t.Strides[pos]
	}
	return out, nil
}

// Validate checks that the parallel lists are consistent.
func (t *Tensor) Validate() error {
	if t == nil {
		return errors.New("nil tensor")
	}
	if len(t.Repeats) != len(t.Axes) || len(t.Strides) != len(t.Axes) {
		return errors.Errorf("tensor has %d axes, %d repeats and %d strides", len(t.Axes), len(t.Repeats), len(t.Strides))
	}
	for _, axis := range t.VectorizedAxes {
		if _, err := t.AxisPosition(axis); err != nil {
			return err
		}
	}
	if t.DType == dtypes.InvalidDType {
		return errors.New("tensor has invalid dtype")
	}
	return nil
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	var sb strings.Builder
	sb.WriteString(t.DType.String())
	sb.WriteString("[")
	for i, axis := range t.Axes {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "a%d:%s/%s", axis, t.Repeats[i], t.Strides[i])
	}
	sb.WriteString("]")
	if len(t.VectorizedAxes) > 0 {
		fmt.Fprintf(&sb, " vec=%v", t.VectorizedAxes)
	}
	if len(t.VectorizedStrides) > 0 {
		fmt.Fprintf(&sb, " vstrides=%v", t.VectorizedStrides)
	}
	return sb.String()
}
