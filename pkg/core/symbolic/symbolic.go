// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package symbolic implements the size expressions used by kernel graphs: an integer coefficient
// multiplied by a product of atoms, where an atom is either a named tiling symbol (e.g. "s0") or an
// irreducible RoundUp of another expression.
//
// Symbols are assumed to be bound to strictly positive integers, which is what makes some
// comparisons decidable at compile time. Comparisons return a Truth, since many of them can only be
// answered once the symbols are bound.
//
// Expressions are immutable values and safe to copy.
package symbolic

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Truth is the result of a static check: it may be decidable (True, False) or not (Unknown).
type Truth int8

const (
	Unknown Truth = iota
	True
	False
)

// String implements fmt.Stringer.
func (t Truth) String() string {
	switch t {
	case True:
		return "True"
	case False:
		return "False"
	default:
		return "Unknown"
	}
}

// Not inverts a decided Truth, and keeps Unknown.
func (t Truth) Not() Truth {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

// atom is either a named symbol or RoundUp(inner, multiple).
type atom struct {
	name     string
	inner    *Expr
	multiple int64
	key      string
}

// Expr is a symbolic size: coeff × atoms[0] × atoms[1] × ...
//
// The zero value is the constant 0. Use Const, Sym, Mul and RoundUp to build expressions.
type Expr struct {
	coeff int64
	atoms []atom
}

// Zero and One are the most common constants.
var (
	Zero = Const(0)
	One  = Const(1)
)

// Const returns the constant expression v.
func Const(v int64) Expr {
	return Expr{coeff: v}
}

// Sym returns the expression made of the single symbol name.
// The name should be a valid C identifier, since it is used when emitting code.
func Sym(name string) Expr {
	if name == "" {
		panic(errors.New("symbolic.Sym requires a non-empty name"))
	}
	return Expr{coeff: 1, atoms: []atom{{name: name, key: name}}}
}

// IsConst returns the value of the expression if it is a known constant.
func (e Expr) IsConst() (int64, bool) {
	if len(e.atoms) == 0 || e.coeff == 0 {
		return e.coeff, true
	}
	return 0, false
}

// IsZero returns whether the expression is structurally zero.
func (e Expr) IsZero() bool {
	v, ok := e.IsConst()
	return ok && v == 0
}

// IsOne returns whether the expression is structurally one.
func (e Expr) IsOne() bool {
	v, ok := e.IsConst()
	return ok && v == 1
}

// Symbols returns the sorted names of all symbols used by the expression (including the ones
// inside RoundUp terms), without repetition.
func (e Expr) Symbols() []string {
	var names []string
	var collect func(e Expr)
	collect = func(e Expr) {
		for _, a := range e.atoms {
			if a.inner != nil {
				collect(*a.inner)
			} else {
				names = append(names, a.name)
			}
		}
	}
	collect(e)
	slices.Sort(names)
	return slices.Compact(names)
}

// Mul returns the product of the given expressions. Mul() with no arguments returns One.
func Mul(exprs ...Expr) Expr {
	result := Expr{coeff: 1}
	for _, e := range exprs {
		if e.IsZero() {
			return Zero
		}
		result.coeff *= e.coeff
		result.atoms = append(result.atoms, e.atoms...)
	}
	slices.SortStableFunc(result.atoms, func(a, b atom) int { return strings.Compare(a.key, b.key) })
	return result
}

// RoundUp returns e rounded up to the next multiple of `multiple`.
//
// It simplifies whenever possible: constants are folded, multiples of 1 are the identity and
// expressions whose coefficient is already a multiple are returned unchanged.
func RoundUp(e Expr, multiple int64) Expr {
	if multiple <= 0 {
		panic(errors.Errorf("symbolic.RoundUp(%s, %d): multiple must be positive", e, multiple))
	}
	if v, ok := e.IsConst(); ok {
		return Const(roundUp(v, multiple))
	}
	if multiple == 1 || e.coeff%multiple == 0 {
		return e
	}
	inner := e
	key := fmt.Sprintf("RoundUp(%s, %d)", inner.String(), multiple)
	return Expr{coeff: 1, atoms: []atom{{inner: &inner, multiple: multiple, key: key}}}
}

// roundUp rounds v up to the next multiple of m, for positive m.
func roundUp[T constraints.Integer](v, m T) T {
	return ceilDiv(v, m) * m
}

// ceilDiv returns ⌈v/m⌉ for non-negative v and positive m.
func ceilDiv[T constraints.Integer](v, m T) T {
	return (v + m - 1) / m
}

// String returns a canonical rendering of the expression: two expressions with the same
// string are structurally equal.
func (e Expr) String() string {
	if len(e.atoms) == 0 || e.coeff == 0 {
		return strconv.FormatInt(e.coeff, 10)
	}
	parts := make([]string, 0, len(e.atoms)+1)
	if e.coeff != 1 {
		parts = append(parts, strconv.FormatInt(e.coeff, 10))
	}
	for _, a := range e.atoms {
		parts = append(parts, a.key)
	}
	return strings.Join(parts, "*")
}

// C renders the expression as a C expression, prefixing every symbol with symbolPrefix
// (e.g. "t." to read them from a tiling struct).
func (e Expr) C(symbolPrefix string) string {
	if len(e.atoms) == 0 || e.coeff == 0 {
		return strconv.FormatInt(e.coeff, 10)
	}
	parts := make([]string, 0, len(e.atoms)+1)
	if e.coeff != 1 {
		parts = append(parts, strconv.FormatInt(e.coeff, 10))
	}
	for _, a := range e.atoms {
		if a.inner != nil {
			parts = append(parts, fmt.Sprintf("((((%s) + %d) / %d) * %d)",
				a.inner.C(symbolPrefix), a.multiple-1, a.multiple, a.multiple))
			continue
		}
		parts = append(parts, symbolPrefix+a.name)
	}
	return strings.Join(parts, " * ")
}

// Eval evaluates the expression with the given bindings for its symbols.
func (e Expr) Eval(bindings Bindings) (int64, error) {
	value := e.coeff
	for _, a := range e.atoms {
		if a.inner != nil {
			inner, err := a.inner.Eval(bindings)
			if err != nil {
				return 0, err
			}
			value *= roundUp(inner, a.multiple)
			continue
		}
		v, found := bindings[a.name]
		if !found {
			return 0, errors.Errorf("symbol %q not bound while evaluating %s", a.name, e)
		}
		value *= int64(v)
	}
	return value, nil
}

// sameAtoms returns whether both expressions have the exact same product of atoms.
func sameAtoms(a, b Expr) bool {
	return slices.EqualFunc(a.atoms, b.atoms, func(x, y atom) bool { return x.key == y.key })
}

// StaticCheckEq checks whether a == b can be decided at compile time.
func StaticCheckEq(a, b Expr) Truth {
	aConst, aIsConst := a.IsConst()
	bConst, bIsConst := b.IsConst()
	switch {
	case aIsConst && bIsConst:
		if aConst == bConst {
			return True
		}
		return False
	case sameAtoms(a, b):
		if a.coeff == b.coeff {
			return True
		}
		// Atoms are strictly positive, so different coefficients yield different values.
		return False
	case (aIsConst && aConst == 0) || (bIsConst && bConst == 0):
		// Non-constant side is a non-zero coefficient times positive atoms.
		return False
	}
	return Unknown
}

// StaticCheckNe checks whether a != b can be decided at compile time.
func StaticCheckNe(a, b Expr) Truth {
	return StaticCheckEq(a, b).Not()
}

// Equal returns whether the two expressions are provably equal.
func Equal(a, b Expr) bool {
	return StaticCheckEq(a, b) == True
}

// IsMultipleOf returns whether e is provably a multiple of m.
func (e Expr) IsMultipleOf(m int64) bool {
	if m <= 1 {
		return true
	}
	if e.coeff%m == 0 {
		return true
	}
	for _, a := range e.atoms {
		if a.inner != nil && a.multiple%m == 0 {
			return true
		}
	}
	return false
}
