// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package align

import (
	"strings"

	"github.com/pkg/errors"
)

// Policy supplies the decisions that differ between the two inference strategies.
// Everything else is shared by the per-kind rules of the pass.
type Policy interface {
	// Name of the policy, as accepted by PolicyByName.
	Name() string

	// DefaultType is assigned by the default rule to nodes whose inputs have no alignment entry.
	DefaultType() AlignType

	// LoadType classifies a load (or NDDMA) output. needAlignForReduce is the result of
	// IsLoadNeedAlignForReduce for the load.
	LoadType(d Discontinuity, needAlignForReduce bool) AlignType

	// ForwardsBroadcastOfOne returns whether a node whose output tail repeat is 1 forwards its
	// type to its consumers after inference.
	ForwardsBroadcastOfOne() bool
}

var (
	// DefaultPolicy is optimistic: nodes without information default to Aligned, and any
	// non-contiguous load is Aligned.
	DefaultPolicy Policy = defaultPolicy{}

	// RestrictivePolicy defaults to NotAligned and only aligns loads with several discontinuities.
	RestrictivePolicy Policy = restrictivePolicy{}
)

// PolicyByName returns "default" or "restrictive" (case-insensitive).
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return DefaultPolicy, nil
	case "restrictive":
		return RestrictivePolicy, nil
	}
	return nil, errors.Errorf("unknown alignment policy %q, valid values are \"default\" or \"restrictive\"", name)
}

type defaultPolicy struct{}

func (defaultPolicy) Name() string           { return "default" }
func (defaultPolicy) DefaultType() AlignType { return Aligned }

func (defaultPolicy) LoadType(d Discontinuity, needAlignForReduce bool) AlignType {
	switch {
	case d.IsTailAxisDiscontinuous:
		return Discontinuous
	case d.Count > 0, needAlignForReduce:
		return Aligned
	}
	return NotAligned
}

func (defaultPolicy) ForwardsBroadcastOfOne() bool { return false }

type restrictivePolicy struct{}

func (restrictivePolicy) Name() string           { return "restrictive" }
func (restrictivePolicy) DefaultType() AlignType { return NotAligned }

func (restrictivePolicy) LoadType(d Discontinuity, needAlignForReduce bool) AlignType {
	switch {
	case d.IsTailAxisDiscontinuous:
		return Discontinuous
	case d.HasMultipleDiscontinuities, needAlignForReduce:
		return Aligned
	}
	return NotAligned
}

func (restrictivePolicy) ForwardsBroadcastOfOne() bool { return true }
