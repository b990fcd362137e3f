// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package align

// AlignType classifies how the tail axis of a tensor is laid out in the vector engine's memory.
type AlignType int

//go:generate go tool enumer -type=AlignType -output=gen_aligntype_enumer.go aligntype.go

const (
	// Invalid is the zero value: the tensor has not been classified.
	Invalid AlignType = iota

	// NotAligned tensors are packed: no rounding is applied to the tail axis.
	NotAligned

	// Aligned tensors have their tail axis rounded up to the alignment factor.
	Aligned

	// Discontinuous tensors have a tail axis with a non-unit stride in memory: each tail element
	// gets its own aligned block.
	Discontinuous

	// FixedNotAligned is a sticky NotAligned: propagation never overrides it, it can only flag it
	// as conflicting, in which case a Pad node is inserted after it.
	FixedNotAligned
)

// rank orders the comparable types: NotAligned < Aligned < Discontinuous.
// FixedNotAligned and Invalid have rank -1.
func (t AlignType) rank() int {
	switch t {
	case NotAligned:
		return 0
	case Aligned:
		return 1
	case Discontinuous:
		return 2
	default:
		return -1
	}
}

// Max returns the larger of two alignment types according to NotAligned < Aligned < Discontinuous.
// FixedNotAligned always wins, and Invalid always loses.
func Max(a, b AlignType) AlignType {
	if a == FixedNotAligned || b == FixedNotAligned {
		return FixedNotAligned
	}
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// IsNotAligned returns whether no rounding is applied to the tail: NotAligned or FixedNotAligned.
func (t AlignType) IsNotAligned() bool {
	return t == NotAligned || t == FixedNotAligned
}
