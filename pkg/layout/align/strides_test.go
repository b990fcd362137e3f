// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package align

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/symbolic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactor(t *testing.T) {
	assert.Equal(t, int64(8), Factor(32, dtypes.Float32))
	assert.Equal(t, int64(16), Factor(64, dtypes.Float32))
	assert.Equal(t, int64(32), Factor(32, dtypes.Int8))
	assert.Equal(t, int64(4), Factor(32, dtypes.Float64))
}

func TestSynthesizeStrides(t *testing.T) {
	testCases := []struct {
		name      string
		tensor    *kernelgraph.Tensor
		alignType AlignType
		want      []string
	}{
		{"aligned", contiguous(dtypes.Float32, 2, 10), Aligned, []string{"16", "1"}},
		{"discontinuous", contiguous(dtypes.Float32, 2, 10), Discontinuous, []string{"80", "8"}},
		{"discontinuous degenerate tail", contiguous(dtypes.Float32, 2, 1), Discontinuous, []string{"8", "0"}},
		{"aligned degenerate tail", contiguous(dtypes.Float32, 2, 1), Aligned, []string{"8", "0"}},
		{"not aligned", contiguous(dtypes.Float32, 2, 10), NotAligned, []string{"10", "1"}},
		{"fixed not aligned", contiguous(dtypes.Float32, 2, 10), FixedNotAligned, []string{"10", "1"}},
		{"not aligned degenerate tail", contiguous(dtypes.Float32, 2, 1), NotAligned, []string{"1", "0"}},
		{"already multiple", contiguous(dtypes.Float32, 3, 16), Aligned, []string{"16", "1"}},
		{"degenerate middle", contiguous(dtypes.Int8, 3, 1, 5), Aligned, []string{"32", "0", "1"}},
		{"three axes", contiguous(dtypes.Float16, 2, 3, 5), Aligned, []string{"48", "16", "1"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			strides, err := SynthesizeStrides(tc.tensor, tc.alignType, 32)
			require.NoError(t, err)
			assert.Equal(t, tc.want, exprStrings(strides))
		})
	}

	_, err := SynthesizeStrides(contiguous(dtypes.Float32, 2, 10), Invalid, 32)
	require.Error(t, err)
}

func TestSynthesizeStridesProperties(t *testing.T) {
	// Symbolic tensor with a degenerate axis in the middle.
	tensor := kernelgraph.NewContiguousTensor(dtypes.Float16, axesUpTo(4),
		[]symbolic.Expr{symbolic.Sym("s0"), symbolic.Sym("s1"), symbolic.One, symbolic.Sym("s2")})
	factor := Factor(32, tensor.DType)
	for _, alignType := range []AlignType{NotAligned, Aligned, Discontinuous, FixedNotAligned} {
		t.Run(alignType.String(), func(t *testing.T) {
			strides, err := SynthesizeStrides(tensor, alignType, 32)
			require.NoError(t, err)

			// Synthesis only reads the tensor.
			again, err := SynthesizeStrides(tensor, alignType, 32)
			require.NoError(t, err)
			assert.Equal(t, exprStrings(strides), exprStrings(again))

			// Degenerate axes always get stride 0.
			assert.True(t, strides[2].IsZero())

			if alignType == Aligned || alignType == Discontinuous {
				// The first non-degenerate axis outside the tail starts at an aligned block.
				assert.True(t, strides[1].IsMultipleOf(factor), "stride %s not a multiple of %d", strides[1], factor)
			}
		})
	}

	strides, err := SynthesizeStrides(tensor, Aligned, 32)
	require.NoError(t, err)
	assert.Equal(t, []string{"RoundUp(s2, 16)*s1", "RoundUp(s2, 16)", "0", "1"}, exprStrings(strides))
	value, err := strides[0].Eval(symbolic.Bindings{"s1": 3, "s2": 20})
	require.NoError(t, err)
	assert.Equal(t, int64(96), value)
}
