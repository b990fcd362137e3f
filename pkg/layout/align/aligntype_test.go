// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package align

import (
	"testing"

	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMax(t *testing.T) {
	assert.Equal(t, Aligned, Max(NotAligned, Aligned))
	assert.Equal(t, Discontinuous, Max(Discontinuous, Aligned))
	assert.Equal(t, NotAligned, Max(Invalid, NotAligned))
	assert.Equal(t, FixedNotAligned, Max(Discontinuous, FixedNotAligned))
	assert.Equal(t, FixedNotAligned, Max(FixedNotAligned, Invalid))

	alignType, err := AlignTypeString("FixedNotAligned")
	require.NoError(t, err)
	assert.True(t, alignType.IsNotAligned())
	assert.False(t, Discontinuous.IsNotAligned())
}

func TestStateTable(t *testing.T) {
	table := NewStateTable()
	a := kernelgraph.OutputRef{Node: 3, Index: 1}
	b := kernelgraph.OutputRef{Node: 1, Index: 0}
	assert.Equal(t, Invalid, table.Type(a))

	table.Set(a, FixedNotAligned)
	table.Set(b, Aligned)
	table.MarkConflict(a)
	table.MarkConflict(kernelgraph.OutputRef{Node: 9}) // No entry: ignored.
	table.Set(a, FixedNotAligned)
	assert.Equal(t, []kernelgraph.OutputRef{b, a}, table.Refs())
	assert.Equal(t, []kernelgraph.OutputRef{a}, table.Conflicts())
	assert.Equal(t, "#1:0: Aligned\n#3:1: FixedNotAligned (conflict)\n", table.String())

	table.ClearConflict(a)
	assert.Empty(t, table.Conflicts())
	assert.Equal(t, 2, table.Len())
}
