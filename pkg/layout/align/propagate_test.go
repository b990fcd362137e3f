// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package align

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/platform"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds load -> exp -> store, and a pass over it with every output set to NotAligned.
func chain(t *testing.T) (p *Pass, load, exp, store *kernelgraph.Node) {
	b := newBuilder(t, "chain")
	loadID := b.load("load", contiguous(dtypes.Float32, 4, 10))
	expID := b.add("exp", kernelgraph.KindElementwise, contiguous(dtypes.Float32, 4, 10), loadID)
	storeID := b.store("store", contiguous(dtypes.Float32, 4, 10), expID)
	p = must.M1(NewPass(b.g, Options{}))
	load, exp, store = b.g.Node(loadID), b.g.Node(expID), b.g.Node(storeID)
	for _, node := range []*kernelgraph.Node{load, exp, store} {
		p.states.Set(node.OutputRef(0), NotAligned)
	}
	return
}

func TestBackPropagateFixedNotAlignedIsSticky(t *testing.T) {
	p, load, exp, store := chain(t)
	p.states.Set(load.OutputRef(0), FixedNotAligned)

	changed := p.BackPropagate(store, Aligned)
	assert.Equal(t, 1, changed)
	assert.Equal(t, Aligned, p.states.Type(exp.OutputRef(0)))
	st, _ := p.states.Get(load.OutputRef(0))
	assert.Equal(t, TensorState{Type: FixedNotAligned, ConflictWithOutput: true}, st)
	assert.Equal(t, []kernelgraph.OutputRef{load.OutputRef(0)}, p.states.Conflicts())

	// The seed's own outputs are left to its rule.
	assert.Equal(t, NotAligned, p.states.Type(store.OutputRef(0)))
}

func TestBackPropagateNotAlignedOverFixed(t *testing.T) {
	p, load, exp, _ := chain(t)
	p.states.Set(load.OutputRef(0), FixedNotAligned)
	assert.Equal(t, 0, p.BackPropagate(exp, NotAligned))
	assert.Empty(t, p.states.Conflicts())
}

func TestForwardPropagate(t *testing.T) {
	p, load, exp, store := chain(t)
	changed := p.ForwardPropagate(load, Aligned)
	assert.Equal(t, 2, changed)
	assert.Equal(t, NotAligned, p.states.Type(load.OutputRef(0)))
	assert.Equal(t, Aligned, p.states.Type(exp.OutputRef(0)))
	assert.Equal(t, Aligned, p.states.Type(store.OutputRef(0)))

	// Already at the target: nothing changes.
	assert.Equal(t, 0, p.ForwardPropagate(load, Aligned))
}

func TestBackPropagateStopsAtTailBroadcast(t *testing.T) {
	b := newBuilder(t, "tail_broadcast")
	load := b.load("load", contiguous(dtypes.Float32, 4, 1))
	bcast := b.add("bcast", kernelgraph.KindBroadcast, contiguous(dtypes.Float32, 4, 10), load)
	exp := b.add("exp", kernelgraph.KindElementwise, contiguous(dtypes.Float32, 4, 10), bcast)
	store := b.store("store", contiguous(dtypes.Float32, 4, 10), exp)
	p := must.M1(NewPass(b.g, Options{}))
	for _, id := range []kernelgraph.NodeID{load, bcast, exp, store} {
		p.states.Set(out(id), NotAligned)
	}
	require.True(t, p.isTailBroadcast(b.g.Node(bcast)))

	changed := p.BackPropagate(b.g.Node(store), Aligned)
	assert.Equal(t, 2, changed)
	assert.Equal(t, Aligned, p.states.Type(out(bcast)))
	assert.Equal(t, NotAligned, p.states.Type(out(load)))
}

func TestPropagateDiamond(t *testing.T) {
	b := newBuilder(t, "diamond")
	load := b.load("load", contiguous(dtypes.Float16, 8, 8))
	left := b.add("left", kernelgraph.KindElementwise, contiguous(dtypes.Float16, 8, 8), load)
	right := b.add("right", kernelgraph.KindCast, contiguous(dtypes.Float16, 8, 8), load)
	add := b.add("add", kernelgraph.KindElementwise, contiguous(dtypes.Float16, 8, 8), left, right)
	store := b.store("store", contiguous(dtypes.Float16, 8, 8), add)
	p := must.M1(NewPass(b.g, Options{}))
	for _, id := range []kernelgraph.NodeID{load, left, right, add} {
		p.states.Set(out(id), NotAligned)
	}
	assert.Equal(t, 4, p.BackPropagate(b.g.Node(store), Discontinuous))
	for _, id := range []kernelgraph.NodeID{load, left, right, add} {
		assert.Equal(t, Discontinuous, p.states.Type(out(id)))
	}
}

func TestResolvePadsCompatibilityMode(t *testing.T) {
	build := func(cfg *platform.Config) (*Pass, kernelgraph.NodeID) {
		b := newBuilder(t, "compat")
		// Transposed read: the tail is discontinuous.
		load := b.load("load", strided(dtypes.Float32, []int64{4, 10}, []int64{1, 4}))
		b.store("store", contiguous(dtypes.Float32, 4, 10), load)
		p := must.M1(NewPass(b.g, Options{Platform: cfg}))
		p.states.Set(out(load), FixedNotAligned)
		p.states.MarkConflict(out(load))
		return p, load
	}

	p, load := build(must.M1(platform.Parse("compat")))
	assert.Empty(t, p.resolvePads())
	st, _ := p.states.Get(out(load))
	assert.True(t, st.ConflictWithOutput)

	p, load = build(platform.Default())
	pads := p.resolvePads()
	require.Len(t, pads, 1)
	assert.Equal(t, Aligned, p.states.Type(out(pads[0])))
	assert.Empty(t, p.states.Conflicts())
}

func TestResolvePadsNotNeeded(t *testing.T) {
	b := newBuilder(t, "no_pad")
	// Tail of 16 float32 is already a multiple of the factor.
	multiple := b.load("multiple", contiguous(dtypes.Float32, 4, 16))
	// Single vectorized axis: nothing moves when the tail is rounded up.
	single := b.load("single", contiguous(dtypes.Float32, 10))
	p := must.M1(NewPass(b.g, Options{}))
	for _, id := range []kernelgraph.NodeID{multiple, single} {
		p.states.Set(out(id), FixedNotAligned)
		p.states.MarkConflict(out(id))
	}
	assert.Empty(t, p.resolvePads())
	assert.Len(t, p.states.Conflicts(), 2)
}
