// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nddma

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/gomlx/vecalign/pkg/core/kernelgraph"
	"github.com/gomlx/vecalign/pkg/core/platform"
	"github.com/gomlx/vecalign/pkg/core/symbolic"
	"github.com/gomlx/vecalign/pkg/layout/align"
	"github.com/gomlx/vecalign/pkg/support/sets"
	"github.com/pkg/errors"
)

const (
	// ScoreLow means the merged layout is not expected to pay off.
	ScoreLow = -1

	// ScoreNeutral is the score of every other layout.
	ScoreNeutral = 1
)

// Score estimates whether the layout of a merged NDDMA node executes efficiently.
//
// If the tail size is symbolic the score can't be decided at compile time: it is then
// given by the C expression returned by Score.C, over the tiling parameters.
type Score struct {
	Node string

	// Static is true if Value is known at compile time.
	Static bool
	Value  int

	// conditions (in C) under which the score is ScoreLow.
	conditions []string
	symbols    []string
}

// ScoreNode scores the first output of a merged node:
//
//   - Element types narrower than 4 bytes whose tail is already aligned score low: there is no
//     alignment gain.
//   - Tail broadcasts wider than cfg.LargeTailBytes score low.
//   - Everything else scores neutral.
func ScoreNode(node *kernelgraph.Node, cfg *platform.Config, alignWidth int) (Score, error) {
	score := Score{Node: node.Name, Static: true, Value: ScoreNeutral}
	if node.NumOutputs() == 0 {
		return score, errors.Errorf("cannot score %s: no outputs", node)
	}
	t := node.Outputs[0].Tensor
	n := len(t.VectorizedAxes)
	if n == 0 {
		return score, nil
	}
	pos, err := t.AxisPosition(t.VectorizedAxes[n-1])
	if err != nil {
		return score, errors.WithMessagef(err, "scoring %s", node)
	}
	repeat := t.Repeats[pos]
	elementSize := t.ElementSize()
	var low bool

	if elementSize < 4 {
		factor := align.Factor(alignWidth, t.DType)
		switch {
		case repeat.IsMultipleOf(factor):
			low = true
		case symbolic.StaticCheckEq(symbolic.RoundUp(repeat, factor), repeat) == symbolic.Unknown:
			score.conditions = append(score.conditions, fmt.Sprintf("(%s) %% %d == 0", repeat.C("t->"), factor))
		}
	}

	if t.Strides[pos].IsZero() && !repeat.IsOne() {
		width := symbolic.Mul(repeat, symbolic.Const(int64(elementSize)))
		if widthBytes, ok := width.IsConst(); ok {
			low = low || widthBytes > int64(cfg.LargeTailBytes)
		} else {
			score.conditions = append(score.conditions, fmt.Sprintf("%s > %d", width.C("t->"), cfg.LargeTailBytes))
		}
	}

	switch {
	case low:
		score.Value = ScoreLow
		score.conditions = nil
	case len(score.conditions) > 0:
		score.Static = false
		score.Value = 0
		score.symbols = repeat.Symbols()
	}
	return score, nil
}

// C returns the score as a C expression.
func (s Score) C() string {
	if s.Static {
		return strconv.Itoa(s.Value)
	}
	return fmt.Sprintf("(%s) ? %d : %d", strings.Join(s.conditions, " || "), ScoreLow, ScoreNeutral)
}

// String implements fmt.Stringer.
func (s Score) String() string {
	if s.Static {
		return fmt.Sprintf("%+d", s.Value)
	}
	return "dynamic(" + s.C() + ")"
}

// GenerateScoreFunc generates the C source of one scoring function per node, named
// "<prefix>_<node name>", plus the tiling struct "<prefix>_tiling" holding the symbols they read.
//
// Static scores are emitted as constant functions, so the caller can always call them.
func GenerateScoreFunc(prefix string, nodes []*kernelgraph.Node, cfg *platform.Config, alignWidth int) (string, error) {
	scores := make([]Score, 0, len(nodes))
	symbols := sets.Make[string]()
	for _, node := range nodes {
		score, err := ScoreNode(node, cfg, alignWidth)
		if err != nil {
			return "", err
		}
		scores = append(scores, score)
		symbols.Insert(score.symbols...)
	}

	e := newEmitter()
	e.writef("// Code generated by vecalign; DO NOT EDIT.\n\n")
	tiling := cIdentifier(prefix) + "_tiling"
	e.writef("typedef struct {\n")
	e.indent++
	for _, symbol := range sets.Sorted(symbols) {
		e.writef("long %s;\n", symbol)
	}
	if symbols.Len() == 0 {
		e.writef("char unused;\n")
	}
	e.indent--
	e.writef("} %s;\n", tiling)
	for _, score := range scores {
		e.writef("\n// Score of %q: %s\n", score.Node, score)
		e.writef("static inline int %s_%s(const %s *t) {\n", cIdentifier(prefix), cIdentifier(score.Node), tiling)
		e.indent++
		if score.Static {
			e.writef("(void)t;\n")
		}
		e.writef("return %s;\n", score.C())
		e.indent--
		e.writef("}\n")
	}
	return e.buf.String(), nil
}

// emitter writes indented C code.
type emitter struct {
	buf    *bytes.Buffer
	indent int
}

func newEmitter() *emitter {
	return &emitter{buf: &bytes.Buffer{}}
}

// writef writes a formatted line with indentation.
func (e *emitter) writef(format string, args ...any) {
	for i := 0; i < e.indent; i++ {
		e.buf.WriteString("\t")
	}
	fmt.Fprintf(e.buf, format, args...)
}

// cIdentifier replaces characters not valid in a C identifier by '_'.
func cIdentifier(name string) string {
	id := []rune(name)
	for i, r := range id {
		valid := r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r))))
		if !valid {
			id[i] = '_'
		}
	}
	return string(id)
}
