// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nddma

import (
	"slices"

	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/symbolic"
	"github.com/gomlx/vecalign/pkg/layout/align"
	"github.com/pkg/errors"
)

// mergeBroadcasts merges Load -> Broadcast and Load -> Cast -> Broadcast chains.
func (c *canonicalizer) mergeBroadcasts() {
	for _, load := range c.g.Nodes() {
		if !load.Kind.IsLoad() {
			continue
		}
		consumer, found := c.singleConsumer(load)
		if !found {
			continue
		}
		var err error
		switch consumer.Kind {
		case kernelgraph.KindBroadcast:
			err = c.mergeBroadcast(load, consumer)
		case kernelgraph.KindCast:
			bcast, found := c.singleConsumer(consumer)
			if !found || bcast.Kind != kernelgraph.KindBroadcast {
				continue
			}
			err = c.swapCast(load, consumer, bcast)
		default:
			continue
		}
		if err != nil {
			c.skip(load, err)
		}
	}
}

// singleConsumer returns the only consumer of node, if it has exactly one output consumed once.
func (c *canonicalizer) singleConsumer(node *kernelgraph.Node) (*kernelgraph.Node, bool) {
	if node.NumOutputs() != 1 || len(node.Outputs[0].Consumers) != 1 {
		return nil, false
	}
	return c.g.MustNode(node.Outputs[0].Consumers[0].Node), true
}

// mergedTensor returns the tensor of a load reading directly in the broadcast layout: the
// broadcast's repeats and vectorized strides in the load's axis order, with stride 0 on the
// broadcast axes.
func mergedTensor(load, bcast *kernelgraph.Tensor) (*kernelgraph.Tensor, error) {
	if len(bcast.Axes) != len(load.Axes) {
		return nil, errors.Wrapf(errUnsupported, "broadcast axes %v don't map to load axes %v", bcast.Axes, load.Axes)
	}
	merged := &kernelgraph.Tensor{
		Axes:              slices.Clone(load.Axes),
		Repeats:           make([]symbolic.Expr, len(load.Axes)),
		Strides:           make([]symbolic.Expr, len(load.Axes)),
		VectorizedAxes:    slices.Clone(bcast.VectorizedAxes),
		VectorizedStrides: slices.Clone(bcast.VectorizedStrides),
		DType:             load.DType,
	}
	for i, axis := range load.Axes {
		pos, found := bcast.AxisIndex(axis)
		if !found {
			return nil, errors.Wrapf(errUnsupported, "load axis %d not found in broadcast axes %v", axis, bcast.Axes)
		}
		merged.Repeats[i] = bcast.Repeats[pos]
		if load.Repeats[i].IsOne() && !bcast.Repeats[pos].IsOne() {
			merged.Strides[i] = symbolic.Zero
		} else {
			merged.Strides[i] = load.Strides[i]
		}
	}
	return merged, nil
}

func (c *canonicalizer) mergeBroadcast(load, bcast *kernelgraph.Node) error {
	merged, err := mergedTensor(load.Outputs[0].Tensor, bcast.Outputs[0].Tensor)
	if err != nil {
		return err
	}
	c.absorb(load, bcast, merged)
	c.report.Broadcasts++
	return nil
}

// swapCast rewrites Load -> Cast -> Broadcast into Load -> Broadcast -> Cast, so the broadcast
// moves the pre-cast type, and then merges the broadcast into the load.
func (c *canonicalizer) swapCast(load, cast, bcast *kernelgraph.Node) error {
	loadTensor, bcastTensor := load.Outputs[0].Tensor, bcast.Outputs[0].Tensor
	preCast := bcastTensor.Clone()
	preCast.DType = loadTensor.DType
	merged, err := mergedTensor(loadTensor, preCast)
	if err != nil {
		return err
	}
	bcastType := c.result.Type(bcast.OutputRef(0))
	if bcastType == align.Aligned && hasAlignedRowPitch(bcastTensor, c.result.AlignWidth) {
		// Rows move at the pre-cast element width. preCast keeps the materialized strides, so no
		// broadcast axis is degenerate.
		strides, err := align.SynthesizeStrides(preCast, align.Aligned, c.result.AlignWidth)
		if err != nil {
			panic(errors.WithMessagef(err, "re-aligning %s merged with %s", load, bcast))
		}
		merged.VectorizedStrides = strides
	}

	postCast := bcastTensor.Clone()
	postCast.DType = cast.Outputs[0].Tensor.DType
	c.g.RewireConsumers(bcast.OutputRef(0), cast.OutputRef(0))
	c.g.SetInput(kernelgraph.InputRef{Node: bcast.ID}, load.OutputRef(0))
	c.g.SetInput(kernelgraph.InputRef{Node: cast.ID}, bcast.OutputRef(0))
	bcast.Outputs[0].Tensor = preCast
	cast.Outputs[0].Tensor = postCast
	c.result.States.Set(cast.OutputRef(0), bcastType)

	c.absorb(load, bcast, merged)
	c.report.CastSwaps++
	return nil
}

// hasAlignedRowPitch returns whether the penultimate vectorized axis of t steps over whole aligned
// rows: its vectorized stride is non-zero and equals the tail rounded up to the factor of t's
// element width.
func hasAlignedRowPitch(t *kernelgraph.Tensor, alignWidth int) bool {
	n := len(t.VectorizedAxes)
	if n < 2 || len(t.VectorizedStrides) != n {
		return false
	}
	pitch := t.VectorizedStrides[n-2]
	if pitch.IsZero() {
		return false
	}
	tailPos, found := t.AxisIndex(t.VectorizedAxes[n-1])
	if !found {
		return false
	}
	tail := t.Repeats[tailPos]
	if align.IsDegenerate(tail, t.Strides[tailPos]) {
		tail = symbolic.One
	}
	return symbolic.Equal(pitch, symbolic.RoundUp(tail, align.Factor(alignWidth, t.DType)))
}

// absorb replaces load's tensor by merged and removes bcast, whose consumers now read from load.
func (c *canonicalizer) absorb(load, bcast *kernelgraph.Node, merged *kernelgraph.Tensor) {
	load.Outputs[0].Tensor = merged
	load.Kind = kernelgraph.KindNDDMA
	load.Attrs.MergedFrom = append(load.Attrs.MergedFrom, bcast.Name)
	c.result.States.Set(load.OutputRef(0), c.result.Type(bcast.OutputRef(0)))
	c.g.RewireConsumers(bcast.OutputRef(0), load.OutputRef(0))
	c.removeNode(bcast)
	c.merged.Insert(load.ID)
}
