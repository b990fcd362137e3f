// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package align

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/symbolic"
	"github.com/pkg/errors"
)

// Factor returns the alignment factor in elements: alignWidth / element size, at least 1.
func Factor(alignWidth int, dtype dtypes.DType) int64 {
	size := int64(dtype.Memory())
	if size <= 0 || size >= int64(alignWidth) {
		return 1
	}
	return int64(alignWidth) / size
}

// SynthesizeStrides computes the vectorized strides (in elements, parallel to t.VectorizedAxes)
// for a tensor of the given alignment type.
//
// The tail axis is laid out according to alignType:
//
//   - Aligned: stride 1, and the axes outside it see the tail rounded up to the factor.
//   - Discontinuous: every tail element occupies a whole aligned block (stride = factor).
//   - NotAligned, FixedNotAligned: packed.
//
// The other axes get packed strides over the running size, and degenerate axes get stride 0.
// The function only reads t, so calling it twice gives identical results.
func SynthesizeStrides(t *kernelgraph.Tensor, alignType AlignType, alignWidth int) ([]symbolic.Expr, error) {
	if alignType == Invalid {
		return nil, errors.Errorf("cannot synthesize strides for tensor %s without an alignment type", t)
	}
	n := len(t.VectorizedAxes)
	strides := make([]symbolic.Expr, n)
	if n == 0 {
		return strides, nil
	}
	factor := Factor(alignWidth, t.DType)

	// Tail.
	pos, err := t.AxisPosition(t.VectorizedAxes[n-1])
	if err != nil {
		return nil, errors.WithMessage(err, "synthesizing strides")
	}
	repeat := t.Repeats[pos]
	degenerate := IsDegenerate(repeat, t.Strides[pos])
	sizeProduct := symbolic.One
	switch alignType {
	case Aligned:
		if degenerate {
			strides[n-1] = symbolic.Zero
			sizeProduct = symbolic.RoundUp(symbolic.One, factor)
		} else {
			strides[n-1] = sizeProduct
			sizeProduct = symbolic.RoundUp(repeat, factor)
		}
	case Discontinuous:
		if degenerate {
			strides[n-1] = symbolic.Zero
			sizeProduct = symbolic.RoundUp(symbolic.One, factor)
		} else {
			strides[n-1] = symbolic.RoundUp(symbolic.One, factor)
			sizeProduct = symbolic.Mul(strides[n-1], repeat)
		}
	default:
		if degenerate {
			strides[n-1] = symbolic.Zero
		} else {
			strides[n-1] = symbolic.One
			sizeProduct = repeat
		}
	}

	for i := n - 2; i >= 0; i-- {
		pos, err := t.AxisPosition(t.VectorizedAxes[i])
		if err != nil {
			return nil, errors.WithMessage(err, "synthesizing strides")
		}
		repeat := t.Repeats[pos]
		if IsDegenerate(repeat, t.Strides[pos]) {
			strides[i] = symbolic.Zero
			continue
		}
		strides[i] = sizeProduct
		sizeProduct = symbolic.Mul(sizeProduct, repeat)
	}
	return strides, nil
}
