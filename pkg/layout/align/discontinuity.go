// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package align

import (
	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/symbolic"
	"github.com/pkg/errors"
)

// Discontinuity summarizes how the vectorized axes of a tensor map to its underlying memory.
type Discontinuity struct {
	// HasTail is false if every vectorized axis is degenerate (repeat 1 or stride 0).
	HasTail bool

	// TailAxis is the innermost non-degenerate vectorized axis, if HasTail.
	TailAxis kernelgraph.AxisID

	// IsTailAxisDiscontinuous is true if the stride of the tail axis is not provably 1.
	IsTailAxisDiscontinuous bool

	// Count is the number of non-degenerate axes (outside the tail) whose stride is not provably
	// the product of the strides and repeats of the axes inside it.
	Count int

	// HasMultipleDiscontinuities is Count > 1.
	HasMultipleDiscontinuities bool
}

// IsBufferContiguous returns whether the vectorized axes read the buffer as one contiguous block.
func (d Discontinuity) IsBufferContiguous() bool {
	return !d.IsTailAxisDiscontinuous && d.Count == 0
}

// IsDegenerate returns whether an axis can be ignored for layout purposes: repeat 1 or a structural
// stride of 0.
func IsDegenerate(repeat, stride symbolic.Expr) bool {
	return repeat.IsOne() || stride.IsZero()
}

// AnalyzeDiscontinuity walks the vectorized axes of t from the innermost outwards and reports
// where the memory access stops being contiguous.
//
// It returns an error if a vectorized axis is not one of the tensor's axes.
func AnalyzeDiscontinuity(t *kernelgraph.Tensor) (Discontinuity, error) {
	var d Discontinuity
	var expected symbolic.Expr
	for i := len(t.VectorizedAxes) - 1; i >= 0; i-- {
		axis := t.VectorizedAxes[i]
		pos, err := t.AxisPosition(axis)
		if err != nil {
			return Discontinuity{}, errors.WithMessage(err, "analyzing discontinuity")
		}
		repeat, stride := t.Repeats[pos], t.Strides[pos]
		if IsDegenerate(repeat, stride) {
			continue
		}
		if !d.HasTail {
			d.HasTail = true
			d.TailAxis = axis
			d.IsTailAxisDiscontinuous = symbolic.StaticCheckEq(stride, symbolic.One) != symbolic.True
			expected = symbolic.Mul(stride, repeat)
			continue
		}
		if symbolic.StaticCheckEq(stride, expected) != symbolic.True {
			d.Count++
		}
		expected = symbolic.Mul(stride, repeat)
	}
	d.HasMultipleDiscontinuities = d.Count > 1
	return d, nil
}
